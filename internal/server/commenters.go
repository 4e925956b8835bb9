package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/enrich"
	"github.com/leadscope/leadscope/internal/linkedin"
	"github.com/leadscope/leadscope/internal/search"
	"github.com/leadscope/leadscope/internal/store"
)

type CommentersHandler struct {
	Store    *store.Store
	LinkedIn *linkedin.Client
	Profiles *cache.ProfileCache
	Index    *search.Index
	Enricher *enrich.Enricher
	Logger   *log.Logger
}

// Register mounts the extraction routes on already-authenticated groups.
func (h *CommentersHandler) Register(sessions, commenters *echo.Group) {
	sessions.POST("/:id/extract", h.extract)
	sessions.GET("/:id/commenters", h.list)
	commenters.GET("/:id", h.get)
}

// extract pulls the post's commenters from the LinkedIn API, caches their
// profiles and upserts them into the session.
//
//	@Summary	Extract commenters for a session's post
//	@Tags		commenters
//	@Produce	json
//	@Success	200	{object}	ExtractResponse
//	@Failure	404	{object}	HTTPError
//	@Failure	429	{object}	HTTPError
//	@Failure	502	{object}	HTTPError
//	@Router		/api/sessions/{id}/extract [post]
func (h *CommentersHandler) extract(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	sess, ok, err := h.Store.GetSessionByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	comments, err := h.LinkedIn.PostComments(ctx, sess.PostURL)
	linkedinCalls.WithLabelValues("post_comments", callStatus(err)).Inc()
	if err != nil {
		return upstreamErr(err)
	}

	resp := ExtractResponse{SessionID: sess.ID}
	for _, cm := range comments {
		rec, err := h.ingest(c, sess.ID, cm)
		if err != nil {
			h.logger().Printf("ingest commenter %q: %v", cm.AuthorName, err)
			continue
		}
		resp.Commenters = append(resp.Commenters, rec)
	}
	resp.Extracted = len(resp.Commenters)
	return c.JSON(http.StatusOK, resp)
}

// ingest stores one comment author: profile from cache or upstream, comment
// enrichment, row upsert, search indexing. Profile fetch failures degrade to
// a comment-only record.
func (h *CommentersHandler) ingest(c echo.Context, sessionID string, cm linkedin.Comment) (store.CommenterRecord, error) {
	ctx := c.Request().Context()

	var prof linkedin.Profile
	if cm.AuthorProfileURL != "" {
		var err error
		prof, err = h.Profiles.Get(ctx, cm.AuthorProfileURL)
		if err != nil {
			prof, err = h.LinkedIn.Profile(ctx, cm.AuthorProfileURL)
			linkedinCalls.WithLabelValues("profile", callStatus(err)).Inc()
			if err != nil {
				h.logger().Printf("profile fetch %s: %v", cm.AuthorProfileURL, err)
				prof = linkedin.Profile{ProfileURL: cm.AuthorProfileURL}
			} else if err := h.Profiles.Set(ctx, prof); err != nil {
				h.logger().Printf("profile cache set: %v", err)
			}
		}
	}

	blob := profileBlob{
		Followers:   prof.Followers,
		Connections: prof.Connections,
		RecentPosts: prof.RecentPosts,
		Extracts:    h.Enricher.FromComment(ctx, cm.Text),
	}
	blobJSON, err := json.Marshal(blob)
	if err != nil {
		return store.CommenterRecord{}, err
	}

	headline := cm.AuthorHeadline
	if headline == "" {
		headline = prof.Headline
	}
	rec, err := h.Store.UpsertCommenter(ctx, store.CommenterRecord{
		SessionID:   sessionID,
		Name:        cm.AuthorName,
		Headline:    headline,
		Company:     prof.Company,
		Location:    prof.Location,
		CommentText: cm.Text,
		ProfileURL:  cm.AuthorProfileURL,
		Profile:     blobJSON,
	})
	if err != nil {
		return store.CommenterRecord{}, err
	}

	if err := h.Index.IndexCommenter(rec.ID, search.CommenterDoc{
		SessionID:   rec.SessionID,
		Name:        rec.Name,
		Headline:    rec.Headline,
		Company:     rec.Company,
		CommentText: rec.CommentText,
	}); err != nil {
		h.logger().Printf("index commenter %s: %v", rec.ID, err)
	}
	return rec, nil
}

func (h *CommentersHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	ctx := c.Request().Context()
	sess, ok, err := h.Store.GetSessionByID(ctx, c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	items, err := h.Store.ListCommenters(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.CommenterRecord{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CommentersHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	rec, ok, err := h.Store.GetCommenterByID(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "commenter not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *CommentersHandler) logger() *log.Logger {
	if h.Logger == nil {
		h.Logger = log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)
	}
	return h.Logger
}

func callStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
