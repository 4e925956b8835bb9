package server

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/store"
)

type FeedbackHandler struct {
	Store *store.Store
}

// Register mounts the feedback routes on already-authenticated groups.
func (h *FeedbackHandler) Register(api, sessions *echo.Group) {
	api.POST("/feedback", h.create)
	sessions.GET("/:id/feedback", h.list)
}

// create appends one feedback interaction. Feedback is append-only: there is
// no update or delete surface.
//
//	@Summary	Record feedback on a commenter or session
//	@Tags		feedback
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreateFeedbackRequest	true	"Feedback payload"
//	@Success	201		{object}	IDResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	404		{object}	HTTPError
//	@Router		/api/feedback [post]
func (h *FeedbackHandler) create(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	var req CreateFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	switch req.FeedbackType {
	case store.FeedbackTypeBinary, store.FeedbackTypeDetailed, store.FeedbackTypeOutcome, store.FeedbackTypeVoice:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "feedback_type must be binary, detailed, outcome or voice")
	}

	if _, ok, err := h.Store.GetSessionByID(ctx, req.SessionID, userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	} else if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if req.CommenterID != "" {
		rec, ok, err := h.Store.GetCommenterByID(ctx, req.CommenterID, userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		if !ok || rec.SessionID != req.SessionID {
			return echo.NewHTTPError(http.StatusNotFound, "commenter not found in session")
		}
	}

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, err := h.Store.CreateFeedback(ctx, store.FeedbackRecord{
		UserID:       userID,
		SessionID:    req.SessionID,
		CommenterID:  req.CommenterID,
		FeedbackType: req.FeedbackType,
		Payload:      payload,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

// list returns the session's feedback history, newest first.
//
//	@Summary	List feedback for a session
//	@Tags		feedback
//	@Produce	json
//	@Success	200	{array}		store.FeedbackRecord
//	@Failure	404	{object}	HTTPError
//	@Router		/api/sessions/{id}/feedback [get]
func (h *FeedbackHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	sess, ok, err := h.Store.GetSessionByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	items, err := h.Store.ListFeedbackBySession(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.FeedbackRecord{}
	}
	return c.JSON(http.StatusOK, items)
}
