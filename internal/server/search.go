package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hqtran/keyseek/gateway"
	"github.com/hqtran/keyseek/models"
	"github.com/hqtran/keyseek/preview"
	"github.com/hqtran/keyseek/query"
	"github.com/hqtran/keyseek/session"
)

// SessionHeader carries the client's persisted session id; the server-side
// analog of the browser's stored searchSessionId.
const SessionHeader = "X-Search-Session"

// SearchHandler serves the client-facing API over the session machines.
type SearchHandler struct {
	Manager *session.Manager
	Gateway gateway.Searcher
	Metrics *Metrics
	Logger  *log.Logger
}

func (h *SearchHandler) Register(g *echo.Group) {
	g.POST("/search", h.search)
	g.POST("/refine", h.refine)
	g.POST("/select", h.selectItem)
	g.POST("/reset", h.reset)
	g.GET("/state", h.state)
	g.GET("/history", h.history)
	g.GET("/sessions", h.sessions)
	g.GET("/videos/:id", h.video)
}

// searchRequest mirrors the tabbed form's channels.
type searchRequest struct {
	Text       string `json:"text"`
	OCRText    string `json:"ocr_text"`
	ASRText    string `json:"asr_text"`
	ODJSON     string `json:"od_json"`
	Image      string `json:"image"`
	ImageQuery string `json:"image_query"`
}

// stateResponse is every state-bearing reply: the machine snapshot plus the
// convergence contract for the presentation layer.
type stateResponse struct {
	session.State
	Converged bool   `json:"converged"`
	Redirect  string `json:"redirect,omitempty"`
}

func respond(c echo.Context, code int, st session.State) error {
	c.Response().Header().Set(SessionHeader, st.SessionID)
	resp := stateResponse{State: st, Converged: st.Converged()}
	if resp.Converged {
		resp.Redirect = "/api/videos/" + st.Results[0].ID
	}
	return c.JSON(code, resp)
}

func (h *SearchHandler) machine(c echo.Context) (*session.Machine, error) {
	id := c.Request().Header.Get(SessionHeader)
	m, err := h.Manager.Acquire(c.Request().Context(), id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadGateway, "failed to initialize session: "+err.Error())
	}
	return m, nil
}

func (h *SearchHandler) search(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q, err := query.Build(query.Fields{
		Text:       req.Text,
		OCRText:    req.OCRText,
		ASRText:    req.ASRText,
		ODJSON:     req.ODJSON,
		Image:      req.Image,
		ImageQuery: req.ImageQuery,
	})
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		}
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return h.run(c, func(m *session.Machine) error {
		return m.Search(c.Request().Context(), q)
	})
}

func (h *SearchHandler) refine(c echo.Context) error {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "refinement text required")
	}
	return h.run(c, func(m *session.Machine) error {
		return m.Refine(c.Request().Context(), req.Text)
	})
}

// run executes one state-advancing operation with the no-overlap guard and
// persists the outcome.
func (h *SearchHandler) run(c echo.Context, op func(*session.Machine) error) error {
	m, err := h.machine(c)
	if err != nil {
		return err
	}
	if m.Busy() {
		return echo.NewHTTPError(http.StatusConflict, "a search is already in progress for this session")
	}

	start := time.Now()
	opErr := op(m)
	h.Metrics.ObserveSearch(time.Since(start), opErr == nil)
	h.Manager.Persist(c.Request().Context(), m)

	st := m.Snapshot()
	switch {
	case opErr == nil:
		return respond(c, http.StatusOK, st)
	case errors.Is(opErr, session.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, opErr.Error())
	default:
		// Search failure: the error travels inside the state, prior
		// results untouched.
		return respond(c, http.StatusBadGateway, st)
	}
}

func (h *SearchHandler) selectItem(c echo.Context) error {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.Bind(&req); err != nil || req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "result id required")
	}
	m, err := h.machine(c)
	if err != nil {
		return err
	}
	item, ok := m.FindResult(req.ID)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "result not in current set")
	}
	m.Select(item)
	h.Manager.Persist(c.Request().Context(), m)
	return respond(c, http.StatusOK, m.Snapshot())
}

func (h *SearchHandler) reset(c echo.Context) error {
	m, err := h.machine(c)
	if err != nil {
		return err
	}
	m.Reset()
	h.Manager.Persist(c.Request().Context(), m)
	return respond(c, http.StatusOK, m.Snapshot())
}

func (h *SearchHandler) state(c echo.Context) error {
	m, err := h.machine(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, m.Snapshot())
}

func (h *SearchHandler) history(c echo.Context) error {
	m, err := h.machine(c)
	if err != nil {
		return err
	}
	st := m.Snapshot()
	hist, err := h.Gateway.History(c.Request().Context(), st.SessionID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, hist)
}

func (h *SearchHandler) sessions(c echo.Context) error {
	list, err := h.Gateway.ListSessions(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, list)
}

// video is the single-item detail view the convergence redirect points to.
// It decorates the item with the preview widget's timing values.
func (h *SearchHandler) video(c echo.Context) error {
	m, err := h.machine(c)
	if err != nil {
		return err
	}
	item, ok := m.FindResult(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "video not found in current results")
	}

	watchURL, _ := item.Metadata["watch_url"].(string)
	videoURL, _ := item.Metadata["video_url"].(string)
	return c.JSON(http.StatusOK, videoDetail{
		Item:         item,
		SeekSeconds:  preview.SeekSeconds(item.TimestampMS),
		EmbedURL:     preview.EmbedURL(watchURL, item.TimestampMS),
		VideoURL:     videoURL,
		DisplayScore: models.DisplayScore(item.Score),
	})
}

type videoDetail struct {
	Item         models.ResultItem `json:"item"`
	SeekSeconds  int64             `json:"seek_seconds"`
	EmbedURL     string            `json:"embed_url,omitempty"`
	VideoURL     string            `json:"video_url,omitempty"`
	DisplayScore string            `json:"display_score"`
}

// apiError translates gateway failures into the HTTP error surface.
func apiError(err error) error {
	var apiErr *models.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return echo.NewHTTPError(apiErr.StatusCode, apiErr.Detail)
	}
	return echo.NewHTTPError(http.StatusBadGateway, err.Error())
}
