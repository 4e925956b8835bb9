package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/store"
)

type PatternsHandler struct {
	Store *store.Store
}

// Register mounts the pattern routes on an already-authenticated group.
func (h *PatternsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.POST("/:id/approve", h.approve)
	g.DELETE("/:id", h.delete)
}

// list returns the user's discovered patterns, optionally approved only.
//
//	@Summary	List discovered patterns
//	@Tags		patterns
//	@Produce	json
//	@Param		approved	query		bool	false	"Only approved patterns"
//	@Success	200			{array}		store.PatternRecord
//	@Router		/api/patterns [get]
func (h *PatternsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	approvedOnly := c.QueryParam("approved") == "true"
	items, err := h.Store.ListPatterns(c.Request().Context(), userID, approvedOnly)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.PatternRecord{}
	}
	return c.JSON(http.StatusOK, items)
}

// approve sets or clears human approval. Only approved patterns feed the
// scoring adjustments.
//
//	@Summary	Approve or revoke a discovered pattern
//	@Tags		patterns
//	@Accept		json
//	@Success	200
//	@Failure	404	{object}	HTTPError
//	@Router		/api/patterns/{id}/approve [post]
func (h *PatternsHandler) approve(c echo.Context) error {
	userID := c.Get("user_id").(string)
	req := ApprovePatternRequest{Approved: true}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.Store.SetPatternApproval(c.Request().Context(), c.Param("id"), userID, req.Approved); err != nil {
		return storeErr(err)
	}
	return c.NoContent(http.StatusOK)
}

// delete removes a pattern the user no longer wants applied.
//
//	@Summary	Delete a discovered pattern
//	@Tags		patterns
//	@Success	204
//	@Failure	404	{object}	HTTPError
//	@Router		/api/patterns/{id} [delete]
func (h *PatternsHandler) delete(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeletePattern(c.Request().Context(), c.Param("id"), userID); err != nil {
		return storeErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}
