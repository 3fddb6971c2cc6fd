package models

import (
	"encoding/json"
	"strings"
	"time"
)

// QueryType classifies a request by which channels are populated.
type QueryType string

const (
	QueryTypeText       QueryType = "text"
	QueryTypeImage      QueryType = "image"
	QueryTypeMultimodal QueryType = "multimodal"
)

// QueryRequest is the retrieval API request body. Every channel is optional,
// but at least one must be set before the request leaves the process.
type QueryRequest struct {
	TextQuery  string `json:"text_query,omitempty"`
	ImageQuery string `json:"image_query,omitempty"`
	Image      string `json:"image,omitempty"` // base64, no data-URL prefix
	ODJSON     string `json:"od_json,omitempty"`
	OCRText    string `json:"ocr_text,omitempty"`
	ASRText    string `json:"asr_text,omitempty"`
}

func (q QueryRequest) IsEmpty() bool {
	return strings.TrimSpace(q.TextQuery) == "" &&
		strings.TrimSpace(q.ImageQuery) == "" &&
		strings.TrimSpace(q.Image) == "" &&
		strings.TrimSpace(q.ODJSON) == "" &&
		strings.TrimSpace(q.OCRText) == "" &&
		strings.TrimSpace(q.ASRText) == ""
}

// HasImage reports whether the raw image channel is populated, which routes
// the request to the image query endpoint.
func (q QueryRequest) HasImage() bool {
	return strings.TrimSpace(q.Image) != "" || strings.TrimSpace(q.ImageQuery) != ""
}

func (q QueryRequest) Type() QueryType {
	switch {
	case strings.TrimSpace(q.TextQuery) != "":
		return QueryTypeText
	case q.HasImage():
		return QueryTypeImage
	default:
		return QueryTypeMultimodal
	}
}

// Literal is the human-readable text recorded in the history step: the first
// populated textual channel, or a placeholder for pure image queries.
func (q QueryRequest) Literal() string {
	for _, s := range []string{q.TextQuery, q.ImageQuery, q.OCRText, q.ASRText, q.ODJSON} {
		if strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return "Multimodal query"
}

// QueryResult is one ranked keyframe as returned by the retrieval API.
// Metadata may arrive as an object or as a JSON-encoded string; it is kept
// raw here and resolved once, in Normalize.
type QueryResult struct {
	KeyframeID  string          `json:"keyframe_id"`
	VideoID     string          `json:"video_id"`
	FrameNumber int             `json:"frame_number"`
	TimestampMS int64           `json:"timestamp_ms"`
	ImageURL    string          `json:"image_url"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Rank        int             `json:"rank"`
	Score       float64         `json:"score"` // [0,1]
}

type QueryResponse struct {
	QueryID   string        `json:"query_id"`
	SessionID string        `json:"session_id"`
	Results   []QueryResult `json:"results"`
}

type SessionInfo struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryItem is one past query with its result set, as returned by the
// retrieval API's history endpoint.
type HistoryItem struct {
	QueryID    string        `json:"query_id"`
	SessionID  string        `json:"session_id"`
	TextQuery  string        `json:"text_query,omitempty"`
	ImageQuery string        `json:"image_query,omitempty"`
	ODJSON     string        `json:"od_json,omitempty"`
	OCRText    string        `json:"ocr_text,omitempty"`
	ASRText    string        `json:"asr_text,omitempty"`
	QueryTime  time.Time     `json:"query_time"`
	Results    []QueryResult `json:"results"`
}

// Request reconstructs the query channels of a history item.
func (h HistoryItem) Request() QueryRequest {
	return QueryRequest{
		TextQuery:  h.TextQuery,
		ImageQuery: h.ImageQuery,
		ODJSON:     h.ODJSON,
		OCRText:    h.OCRText,
		ASRText:    h.ASRText,
	}
}

type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Queries   []HistoryItem `json:"queries"`
}

type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ResultItem is the normalized client-side shape consumed by presentation
// and the session state machine.
type ResultItem struct {
	ID          string         `json:"id"`
	VideoID     string         `json:"video_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Thumbnail   string         `json:"thumbnail"`
	FrameNumber int            `json:"frame_number"`
	TimestampMS int64          `json:"timestamp_ms"`
	FPS         float64        `json:"fps"`
	DurationSec float64        `json:"duration_sec,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Score       float64        `json:"score"` // [0,1]
	Rank        int            `json:"rank,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HistoryStep is one entry of the linear refine-and-narrow trail. The
// sequence is append-only; only a full reset discards it.
type HistoryStep struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Query        string    `json:"query"`
	QueryType    QueryType `json:"query_type"`
	ResultsCount int       `json:"results_count"`
	Completed    bool      `json:"completed"`
}
