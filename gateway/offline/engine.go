// Package offline is the standalone retrieval backend: a small in-process
// catalog engine serving the same contract as the remote API. It exists so
// the whole system runs with no external collaborators.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hqtran/keyseek/models"
)

const (
	ModeNaive = "naive"
	ModeBleve = "bleve"

	// fallbackSize is how many catalog entries the demo fallback returns
	// when a query matches nothing or carries no usable filter.
	fallbackSize = 4
)

// Archive persists sessions and query history; when nil the engine keeps
// them in memory only.
type Archive interface {
	CreateSession(ctx context.Context, s models.SessionInfo) error
	ListSessions(ctx context.Context) ([]models.SessionInfo, error)
	SaveQuery(ctx context.Context, item models.HistoryItem) error
	HistoryBySession(ctx context.Context, sessionID string) ([]models.HistoryItem, error)
}

type Config struct {
	Catalog     []Video
	CatalogPath string
	Mode        string // naive (default) or bleve
	FPS         float64
	Limit       int // max results per query, 0 = unlimited
	Archive     Archive
	Logger      *log.Logger
}

type Engine struct {
	videos  []Video
	mode    string
	fps     float64
	limit   int
	archive Archive
	logger  *log.Logger
	index   *bleveIndex // nil in naive mode

	mu       sync.RWMutex
	sessions []models.SessionInfo
	known    map[string]bool
	history  map[string][]models.HistoryItem
}

func NewEngine(cfg Config) (*Engine, error) {
	videos := cfg.Catalog
	if len(videos) == 0 && cfg.CatalogPath != "" {
		loaded, err := LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		videos = loaded
	}
	if len(videos) == 0 {
		videos = SampleCatalog()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeNaive
	}
	if cfg.FPS <= 0 {
		cfg.FPS = models.DefaultFPS
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[OFFLINE] ", log.LstdFlags)
	}

	e := &Engine{
		videos:  videos,
		mode:    cfg.Mode,
		fps:     cfg.FPS,
		limit:   cfg.Limit,
		archive: cfg.Archive,
		logger:  cfg.Logger,
		known:   make(map[string]bool),
		history: make(map[string][]models.HistoryItem),
	}

	switch cfg.Mode {
	case ModeNaive:
	case ModeBleve:
		idx, err := newBleveIndex(videos)
		if err != nil {
			return nil, fmt.Errorf("build bleve index: %w", err)
		}
		e.index = idx
	default:
		return nil, fmt.Errorf("unknown offline engine mode %q", cfg.Mode)
	}
	return e, nil
}

func (e *Engine) CreateSession(ctx context.Context) (models.SessionInfo, error) {
	info := models.SessionInfo{SessionID: uuid.NewString(), CreatedAt: time.Now().UTC()}
	if e.archive != nil {
		if err := e.archive.CreateSession(ctx, info); err != nil {
			return models.SessionInfo{}, &models.APIError{Detail: err.Error(), StatusCode: http.StatusInternalServerError}
		}
	}
	e.mu.Lock()
	e.sessions = append(e.sessions, info)
	e.known[info.SessionID] = true
	e.mu.Unlock()
	return info, nil
}

func (e *Engine) ListSessions(ctx context.Context) ([]models.SessionInfo, error) {
	if e.archive != nil {
		out, err := e.archive.ListSessions(ctx)
		if err != nil {
			return nil, &models.APIError{Detail: err.Error(), StatusCode: http.StatusInternalServerError}
		}
		return out, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.SessionInfo, len(e.sessions))
	copy(out, e.sessions)
	return out, nil
}

func (e *Engine) QueryText(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error) {
	return e.query(ctx, sessionID, req)
}

// QueryImage ranks by the textual channels only; the engine has no visual
// model, so the image payload is accepted and ignored.
func (e *Engine) QueryImage(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error) {
	return e.query(ctx, sessionID, req)
}

func (e *Engine) History(ctx context.Context, sessionID string) (models.HistoryResponse, error) {
	if e.archive != nil {
		items, err := e.archive.HistoryBySession(ctx, sessionID)
		if err != nil {
			return models.HistoryResponse{}, &models.APIError{Detail: err.Error(), StatusCode: http.StatusInternalServerError}
		}
		return models.HistoryResponse{SessionID: sessionID, Queries: items}, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	items := make([]models.HistoryItem, len(e.history[sessionID]))
	copy(items, e.history[sessionID])
	return models.HistoryResponse{SessionID: sessionID, Queries: items}, nil
}

func (e *Engine) Health(ctx context.Context) (models.HealthStatus, error) {
	return models.HealthStatus{
		Status:  "ok",
		Message: fmt.Sprintf("offline engine (%s), %d videos", e.mode, len(e.videos)),
	}, nil
}

func (e *Engine) query(ctx context.Context, sessionID string, req models.QueryRequest) (models.QueryResponse, error) {
	if req.IsEmpty() {
		return models.QueryResponse{}, &models.APIError{
			Detail:     "at least one query field must be provided",
			StatusCode: http.StatusUnprocessableEntity,
		}
	}
	// A session id persisted by a client from an earlier process lifetime
	// is accepted and registered on first use.
	e.ensureSession(sessionID)

	text := strings.TrimSpace(req.TextQuery)
	if text == "" {
		text = strings.TrimSpace(strings.Join([]string{req.OCRText, req.ASRText}, " "))
	}

	var results []models.QueryResult
	if e.index != nil {
		results = e.searchBleve(text)
	} else {
		results = e.searchNaive(text)
	}
	if e.limit > 0 && len(results) > e.limit {
		results = results[:e.limit]
	}

	resp := models.QueryResponse{
		QueryID:   uuid.NewString(),
		SessionID: sessionID,
		Results:   results,
	}
	e.record(ctx, sessionID, resp.QueryID, req, results)
	return resp, nil
}

type scoredVideo struct {
	video Video
	score float64
}

// searchNaive implements the contractual scorer: one point per matching bare
// term, two for a location match, one per matching object filter. Candidates
// scoring zero are dropped when any filter is present; ordering is descending
// score with ties kept in catalog insertion order.
func (e *Engine) searchNaive(text string) []models.QueryResult {
	p := parseQuery(text)

	var candidates []scoredVideo
	for _, v := range e.videos {
		hay := v.searchText()
		score := 0.0
		for _, t := range p.Terms {
			if strings.Contains(hay, t) {
				score++
			}
		}
		if p.Location != "" && strings.Contains(hay, p.Location) {
			score += 2
		}
		for _, o := range p.Objects {
			if strings.Contains(hay, o) {
				score++
			}
		}
		candidates = append(candidates, scoredVideo{video: v, score: score})
	}

	if p.hasFilters() {
		kept := candidates[:0]
		for _, c := range candidates {
			if c.score > 0 {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	if !p.hasFilters() || len(candidates) == 0 {
		candidates = candidates[:0]
		for i, v := range e.videos {
			if i >= fallbackSize {
				break
			}
			candidates = append(candidates, scoredVideo{video: v, score: 1})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	return e.expand(candidates)
}

func (e *Engine) searchBleve(text string) []models.QueryResult {
	hits, err := e.index.search(text, len(e.videos))
	if err != nil || len(hits) == 0 {
		if err != nil {
			e.logger.Printf("bleve search failed, falling back to naive: %v", err)
		}
		return e.searchNaive(text)
	}
	byID := make(map[string]Video, len(e.videos))
	for _, v := range e.videos {
		byID[v.ID] = v
	}
	var candidates []scoredVideo
	for _, h := range hits {
		if v, ok := byID[h.id]; ok {
			candidates = append(candidates, scoredVideo{video: v, score: h.score})
		}
	}
	return e.expand(candidates)
}

// expand turns ranked videos into keyframe results. Scores are emitted in
// [0,1]: the video's share of the best raw score, decayed per keyframe the
// way the demo data staggered its frames.
func (e *Engine) expand(candidates []scoredVideo) []models.QueryResult {
	var maxScore float64
	for _, c := range candidates {
		if c.score > maxScore {
			maxScore = c.score
		}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	var out []models.QueryResult
	rank := 1
	for _, c := range candidates {
		base := c.score / maxScore
		for i, kf := range c.video.keyframes() {
			decay := 0.9 - 0.1*float64(i)
			if decay < 0.5 {
				decay = 0.5
			}
			out = append(out, models.QueryResult{
				KeyframeID:  kf.ID,
				VideoID:     c.video.ID,
				FrameNumber: models.FrameForTimestamp(kf.TimestampMS, e.videoFPS(c.video)),
				TimestampMS: kf.TimestampMS,
				ImageURL:    kf.ImageURL,
				Metadata:    e.metadataFor(c.video),
				Rank:        rank,
				Score:       base * decay,
			})
			rank++
		}
	}
	return out
}

func (e *Engine) videoFPS(v Video) float64 {
	if v.FPS > 0 {
		return v.FPS
	}
	return e.fps
}

func (e *Engine) metadataFor(v Video) json.RawMessage {
	meta := map[string]any{
		"title":       v.Title,
		"description": v.Description,
		"fps":         e.videoFPS(v),
	}
	if len(v.Tags) > 0 {
		meta["keyword"] = v.Tags
	}
	if v.Location != "" {
		meta["location"] = v.Location
	}
	if len(v.Objects) > 0 {
		meta["objects"] = v.Objects
	}
	if v.ASRText != "" {
		meta["asr_text"] = v.ASRText
	}
	if v.DurationSec > 0 {
		meta["duration"] = v.DurationSec
	}
	if v.WatchURL != "" {
		meta["watch_url"] = v.WatchURL
	}
	if v.VideoURL != "" {
		meta["video_url"] = v.VideoURL
	}
	if v.ThumbnailURL != "" {
		meta["thumbnail_url"] = v.ThumbnailURL
	}
	b, _ := json.Marshal(meta)
	return b
}

func (e *Engine) ensureSession(id string) {
	if id == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.known[id] {
		e.known[id] = true
		e.sessions = append(e.sessions, models.SessionInfo{SessionID: id, CreatedAt: time.Now().UTC()})
	}
}

func (e *Engine) record(ctx context.Context, sessionID, queryID string, req models.QueryRequest, results []models.QueryResult) {
	item := models.HistoryItem{
		QueryID:    queryID,
		SessionID:  sessionID,
		TextQuery:  req.TextQuery,
		ImageQuery: req.ImageQuery,
		ODJSON:     req.ODJSON,
		OCRText:    req.OCRText,
		ASRText:    req.ASRText,
		QueryTime:  time.Now().UTC(),
		Results:    results,
	}
	if e.archive != nil {
		if err := e.archive.SaveQuery(ctx, item); err != nil {
			e.logger.Printf("archive query %s: %v", queryID, err)
		}
		return
	}
	e.mu.Lock()
	e.history[sessionID] = append(e.history[sessionID], item)
	e.mu.Unlock()
}
