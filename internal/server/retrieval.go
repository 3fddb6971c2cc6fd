package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hqtran/keyseek/gateway"
	"github.com/hqtran/keyseek/models"
)

// RetrievalHandler exposes the retrieval API contract itself, backed by the
// offline engine, so the service runs standalone with no external search
// server.
type RetrievalHandler struct {
	Engine gateway.Searcher
}

func (h *RetrievalHandler) Register(e *echo.Echo) {
	e.POST("/session", h.createSession)
	e.GET("/sessions", h.listSessions)
	e.POST("/query-text", h.queryText)
	e.POST("/query-img", h.queryImage)
	e.GET("/history", h.history)
	e.GET("/health", h.health)
}

func (h *RetrievalHandler) createSession(c echo.Context) error {
	info, err := h.Engine.CreateSession(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *RetrievalHandler) listSessions(c echo.Context) error {
	list, err := h.Engine.ListSessions(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *RetrievalHandler) queryText(c echo.Context) error {
	sessionID, req, err := h.bindQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.Engine.QueryText(c.Request().Context(), sessionID, req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RetrievalHandler) queryImage(c echo.Context) error {
	sessionID, req, err := h.bindQuery(c)
	if err != nil {
		return err
	}
	resp, err := h.Engine.QueryImage(c.Request().Context(), sessionID, req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RetrievalHandler) bindQuery(c echo.Context) (string, models.QueryRequest, error) {
	sessionID := c.QueryParam("session")
	if sessionID == "" {
		return "", models.QueryRequest{}, echo.NewHTTPError(http.StatusBadRequest, "session query parameter required")
	}
	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return "", models.QueryRequest{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return sessionID, req, nil
}

func (h *RetrievalHandler) history(c echo.Context) error {
	sessionID := c.QueryParam("session")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session query parameter required")
	}
	resp, err := h.Engine.History(c.Request().Context(), sessionID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *RetrievalHandler) health(c echo.Context) error {
	status, err := h.Engine.Health(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, status)
}
