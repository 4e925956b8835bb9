package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/store"
)

type SessionsHandler struct {
	Store *store.Store
}

// Register mounts session CRUD on an already-authenticated group.
func (h *SessionsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PUT("/:id/terms", h.updateTerms)
	g.PUT("/:id/status", h.updateStatus)
	g.DELETE("/:id", h.delete)
}

func (h *SessionsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListSessions(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.Session{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SessionsHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	if !strings.HasPrefix(req.PostURL, "http") {
		return echo.NewHTTPError(http.StatusBadRequest, "post_url must be a LinkedIn post URL")
	}
	id, err := h.Store.CreateSession(c.Request().Context(), userID, req.Title, req.PostURL, cleanTerms(req.BoostTerms), cleanTerms(req.DownTerms))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *SessionsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	sess, ok, err := h.Store.GetSessionByID(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) updateTerms(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req UpdateTermsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	err := h.Store.UpdateSessionTerms(c.Request().Context(), c.Param("id"), userID, cleanTerms(req.BoostTerms), cleanTerms(req.DownTerms))
	if err != nil {
		return storeErr(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *SessionsHandler) updateStatus(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.Status {
	case store.SessionStatusActive, store.SessionStatusCompleted, store.SessionStatusPaused:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "status must be active, completed or paused")
	}
	if err := h.Store.UpdateSessionStatus(c.Request().Context(), c.Param("id"), userID, req.Status); err != nil {
		return storeErr(err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *SessionsHandler) delete(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeleteSession(c.Request().Context(), c.Param("id"), userID); err != nil {
		return storeErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
