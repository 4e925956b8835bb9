package server

import (
	"github.com/leadscope/leadscope/internal/enrich"
	"github.com/leadscope/leadscope/internal/linkedin"
	"github.com/leadscope/leadscope/internal/scoring"
	"github.com/leadscope/leadscope/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// CreateSessionRequest starts a research session over one LinkedIn post.
type CreateSessionRequest struct {
	Title      string   `json:"title"`
	PostURL    string   `json:"post_url"`
	BoostTerms []string `json:"boost_terms"`
	DownTerms  []string `json:"down_terms"`
}

// UpdateTermsRequest replaces a session's boost/down term lists.
type UpdateTermsRequest struct {
	BoostTerms []string `json:"boost_terms"`
	DownTerms  []string `json:"down_terms"`
}

// UpdateStatusRequest moves a session between active/completed/paused.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ExtractResponse reports the outcome of a commenter extraction run.
type ExtractResponse struct {
	SessionID  string                  `json:"session_id"`
	Extracted  int                     `json:"extracted"`
	Commenters []store.CommenterRecord `json:"commenters"`
}

// ScoreResponse carries persisted scoring results for a batch.
type ScoreResponse struct {
	SessionID string             `json:"session_id"`
	Scored    int                `json:"scored"`
	Results   []CommenterScore   `json:"results"`
	Analytics *ScoreBatchSummary `json:"summary,omitempty"`
}

// CommenterScore pairs a commenter with its fresh scoring result.
type CommenterScore struct {
	CommenterID string         `json:"commenter_id"`
	Name        string         `json:"name"`
	Result      scoring.Result `json:"result"`
}

// ScoreBatchSummary is a quick aggregate over one scoring run.
type ScoreBatchSummary struct {
	AvgScore float64 `json:"avg_score"`
	MaxScore float64 `json:"max_score"`
	MinScore float64 `json:"min_score"`
}

// CreateFeedbackRequest appends one feedback event.
type CreateFeedbackRequest struct {
	SessionID    string                 `json:"session_id"`
	CommenterID  string                 `json:"commenter_id,omitempty"`
	FeedbackType string                 `json:"feedback_type"`
	Payload      map[string]interface{} `json:"payload"`
}

// ApprovePatternRequest toggles human approval on a discovered pattern.
type ApprovePatternRequest struct {
	Approved bool `json:"approved"`
}

// SearchResponse carries ranked commenter search hits.
type SearchResponse struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

// SearchHit joins an index hit with the commenter row.
type SearchHit struct {
	Score     float64               `json:"score"`
	Commenter store.CommenterRecord `json:"commenter"`
}

// profileBlob is the shape of the commenter profile JSONB column: the cached
// upstream profile plus any enrichment extracts.
type profileBlob struct {
	Followers   int              `json:"followers"`
	Connections int              `json:"connections"`
	RecentPosts []linkedin.Post  `json:"recent_posts,omitempty"`
	Extracts    []enrich.Extract `json:"extracts,omitempty"`
}
