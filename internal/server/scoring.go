package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/learning"
	"github.com/leadscope/leadscope/internal/scoring"
	"github.com/leadscope/leadscope/internal/store"
)

type ScoringHandler struct {
	Store      *store.Store
	Weights    scoring.Weights
	MinSupport int
}

// Register mounts the scoring routes on already-authenticated groups.
func (h *ScoringHandler) Register(sessions, commenters *echo.Group) {
	sessions.POST("/:id/score", h.scoreSession)
	commenters.POST("/:id/score", h.scoreCommenter)
}

// scoreSession scores every commenter in the session. Already-scored rows
// are skipped unless ?rescore=true.
//
//	@Summary	Score all commenters in a session
//	@Tags		scoring
//	@Produce	json
//	@Success	200	{object}	ScoreResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/api/sessions/{id}/score [post]
func (h *ScoringHandler) scoreSession(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	sess, ok, err := h.Store.GetSessionByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	rescore := c.QueryParam("rescore") == "true"

	commenters, err := h.Store.ListCommenters(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	adjustments, err := h.adjustments(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	scoringRuns.Inc()
	resp := ScoreResponse{SessionID: sess.ID}
	var sum, minScore, maxScore float64
	for _, rec := range commenters {
		if rec.RelevanceScore != nil && !rescore {
			continue
		}
		res, err := h.scoreOne(ctx, rec, sess, adjustments)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp.Results = append(resp.Results, CommenterScore{CommenterID: rec.ID, Name: rec.Name, Result: res})
		sum += res.Score
		if len(resp.Results) == 1 || res.Score < minScore {
			minScore = res.Score
		}
		if res.Score > maxScore {
			maxScore = res.Score
		}
	}
	resp.Scored = len(resp.Results)
	if resp.Scored > 0 {
		resp.Analytics = &ScoreBatchSummary{AvgScore: sum / float64(resp.Scored), MaxScore: maxScore, MinScore: minScore}
	}
	return c.JSON(http.StatusOK, resp)
}

// scoreCommenter scores one commenter against its session's term lists.
//
//	@Summary	Score one commenter
//	@Tags		scoring
//	@Produce	json
//	@Success	200	{object}	CommenterScore
//	@Failure	404	{object}	HTTPError
//	@Router		/api/commenters/{id}/score [post]
func (h *ScoringHandler) scoreCommenter(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	rec, ok, err := h.Store.GetCommenterByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "commenter not found")
	}
	sess, ok, err := h.Store.GetSessionByID(ctx, rec.SessionID, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	adjustments, err := h.adjustments(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	res, err := h.scoreOne(ctx, rec, sess, adjustments)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, CommenterScore{CommenterID: rec.ID, Name: rec.Name, Result: res})
}

func (h *ScoringHandler) scoreOne(ctx context.Context, rec store.CommenterRecord, sess store.Session, adjustments []scoring.Adjustment) (scoring.Result, error) {
	res := scoring.Score(commenterSnapshot(rec), sess.BoostTerms, sess.DownTerms, adjustments, h.Weights)
	breakdown, err := json.Marshal(res)
	if err != nil {
		return scoring.Result{}, err
	}
	if err := h.Store.UpdateCommenterScore(ctx, rec.ID, res.Score, res.Confidence, breakdown); err != nil {
		return scoring.Result{}, err
	}
	commentersScored.Inc()
	return res, nil
}

// adjustments loads the user's approved patterns as scoring deltas.
func (h *ScoringHandler) adjustments(ctx context.Context, userID string) ([]scoring.Adjustment, error) {
	patterns, err := h.Store.ListPatterns(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	return learning.AdjustmentsFromPatterns(patterns, h.MinSupport), nil
}

// commenterSnapshot rebuilds the scoring input from a stored row. Enrichment
// extracts join the post corpus so shared content participates in matching.
func commenterSnapshot(rec store.CommenterRecord) scoring.Commenter {
	var blob profileBlob
	_ = json.Unmarshal(rec.Profile, &blob)

	snap := scoring.Commenter{
		Name:        rec.Name,
		Headline:    rec.Headline,
		Company:     rec.Company,
		Location:    rec.Location,
		CommentText: rec.CommentText,
		ProfileURL:  rec.ProfileURL,
		Followers:   blob.Followers,
		Connections: blob.Connections,
	}
	for _, p := range blob.RecentPosts {
		snap.RecentPosts = append(snap.RecentPosts, scoring.RecentPost{
			Text: p.Text, Likes: p.Likes, Comments: p.Comments, Reposts: p.Reposts,
		})
	}
	for _, ex := range blob.Extracts {
		snap.RecentPosts = append(snap.RecentPosts, scoring.RecentPost{Text: ex.Title + "\n" + ex.Text})
	}
	return snap
}
