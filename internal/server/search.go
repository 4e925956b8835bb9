package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/search"
	"github.com/leadscope/leadscope/internal/store"
)

type SearchHandler struct {
	Store *store.Store
	Index *search.Index
}

// Register mounts the search route on an already-authenticated group.
func (h *SearchHandler) Register(sessions *echo.Group) {
	sessions.GET("/:id/commenters/search", h.search)
}

// search runs a full-text query over the session's commenters and joins the
// index hits back to the stored rows. Hits whose rows have since been deleted
// are dropped.
//
//	@Summary	Search commenters in a session
//	@Tags		search
//	@Produce	json
//	@Param		q		query		string	true	"Query text"
//	@Param		limit	query		int		false	"Max hits"
//	@Success	200		{object}	SearchResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/sessions/{id}/commenters/search [get]
func (h *SearchHandler) search(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q required")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	sess, ok, err := h.Store.GetSessionByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	hits, err := h.Index.Search(sess.ID, q, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := SearchResponse{Query: q, Hits: []SearchHit{}}
	for _, hit := range hits {
		rec, ok, err := h.Store.GetCommenterByID(ctx, hit.CommenterID, userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if !ok {
			continue
		}
		resp.Hits = append(resp.Hits, SearchHit{Score: hit.Score, Commenter: rec})
	}
	return c.JSON(http.StatusOK, resp)
}
