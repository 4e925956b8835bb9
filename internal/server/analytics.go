package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/store"
)

type AnalyticsHandler struct {
	Store *store.Store
}

// Register mounts the analytics route on an already-authenticated group.
func (h *AnalyticsHandler) Register(sessions *echo.Group) {
	sessions.GET("/:id/analytics", h.session)
}

// session aggregates commenter, scoring and feedback activity for a session.
//
//	@Summary	Session analytics
//	@Tags		analytics
//	@Produce	json
//	@Success	200	{object}	store.SessionAnalytics
//	@Failure	404	{object}	HTTPError
//	@Router		/api/sessions/{id}/analytics [get]
func (h *AnalyticsHandler) session(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	sess, ok, err := h.Store.GetSessionByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	stats, err := h.Store.SessionAnalytics(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
