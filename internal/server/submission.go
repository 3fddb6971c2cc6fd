package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hqtran/keyseek/session"
	"github.com/hqtran/keyseek/submission"
)

// SubmissionHandler serves the curated frame list: entries added from the
// current result set or by hand, edited inline, and exported as CSV.
type SubmissionHandler struct {
	Sessions *session.Manager
	Lists    *submission.Manager
}

func (h *SubmissionHandler) Register(g *echo.Group) {
	g.GET("/submission", h.list)
	g.POST("/submission", h.add)
	g.PATCH("/submission/:id", h.edit)
	g.DELETE("/submission/:id", h.remove)
	g.DELETE("/submission", h.clear)
	g.GET("/submission/export", h.export)
}

// resolve binds the request to its session's list, minting a session when the
// header is absent, same as the search endpoints.
func (h *SubmissionHandler) resolve(c echo.Context) (string, *submission.List, error) {
	m, err := h.Sessions.Acquire(c.Request().Context(), c.Request().Header.Get(SessionHeader))
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadGateway, "failed to initialize session: "+err.Error())
	}
	id := m.Snapshot().SessionID
	c.Response().Header().Set(SessionHeader, id)
	return id, h.Lists.For(id), nil
}

type addEntryRequest struct {
	// ResultID picks an item from the current result set; its video id,
	// frame number, and title seed the entry.
	ResultID   string `json:"result_id"`
	VideoID    string `json:"video_id"`
	FrameIdx   *int   `json:"frame_idx"`
	VideoTitle string `json:"video_title"`
}

func (h *SubmissionHandler) add(c echo.Context) error {
	var req addEntryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sid, list, err := h.resolve(c)
	if err != nil {
		return err
	}

	var entry submission.Entry
	var addErr error
	switch {
	case req.ResultID != "":
		m, err := h.Sessions.Acquire(c.Request().Context(), sid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		item, ok := m.FindResult(req.ResultID)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "result not in current set")
		}
		frame := item.FrameNumber
		if req.FrameIdx != nil {
			// the client sends the frame it captured in the preview
			frame = *req.FrameIdx
		}
		entry, addErr = list.Add(item.VideoID, frame, item.Title)
	case req.VideoID != "":
		frame := 0
		if req.FrameIdx != nil {
			frame = *req.FrameIdx
		}
		entry, addErr = list.Add(req.VideoID, frame, req.VideoTitle)
	default:
		if req.FrameIdx == nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "frame_idx required for a manual entry")
		}
		entry, addErr = list.AddManual(*req.FrameIdx)
	}
	if addErr != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, addErr.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *SubmissionHandler) list(c echo.Context) error {
	_, list, err := h.resolve(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list.Entries())
}

func (h *SubmissionHandler) edit(c echo.Context) error {
	var req struct {
		FrameIdx *int `json:"frame_idx"`
	}
	if err := c.Bind(&req); err != nil || req.FrameIdx == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "frame_idx required")
	}
	_, list, err := h.resolve(c)
	if err != nil {
		return err
	}
	entry, err := list.EditFrame(c.Param("id"), *req.FrameIdx)
	switch {
	case errors.Is(err, submission.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *SubmissionHandler) remove(c echo.Context) error {
	_, list, err := h.resolve(c)
	if err != nil {
		return err
	}
	if err := list.Remove(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SubmissionHandler) clear(c echo.Context) error {
	_, list, err := h.resolve(c)
	if err != nil {
		return err
	}
	list.Clear()
	return c.NoContent(http.StatusNoContent)
}

func (h *SubmissionHandler) export(c echo.Context) error {
	_, list, err := h.resolve(c)
	if err != nil {
		return err
	}
	if list.Len() == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no entries to export")
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+submission.ExportFilename(time.Now())+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return list.ExportCSV(c.Response())
}
