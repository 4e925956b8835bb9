package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

type Store struct {
	DB *sql.DB
}

// Research session statuses persisted in research_sessions.status.
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusPaused    = "paused"
)

// Feedback types persisted in feedback_interactions.feedback_type.
const (
	FeedbackTypeBinary   = "binary"
	FeedbackTypeDetailed = "detailed"
	FeedbackTypeOutcome  = "outcome"
	FeedbackTypeVoice    = "voice"
)

// Pattern types persisted in discovered_patterns.pattern_type.
const (
	PatternTypeTerm = "term"
)

// Session is a research task over one LinkedIn post.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	PostURL    string    `json:"post_url"`
	BoostTerms []string  `json:"boost_terms"`
	DownTerms  []string  `json:"down_terms"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CommenterRecord is a commenter row with its cached profile JSON and the
// last persisted score, if any.
type CommenterRecord struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	Name            string          `json:"name"`
	Headline        string          `json:"headline"`
	Company         string          `json:"company"`
	Location        string          `json:"location"`
	CommentText     string          `json:"comment_text"`
	ProfileURL      string          `json:"profile_url"`
	Profile         json.RawMessage `json:"profile"`
	RelevanceScore  *float64        `json:"relevance_score,omitempty"`
	ScoreConfidence *float64        `json:"score_confidence,omitempty"`
	ScoreBreakdown  json.RawMessage `json:"score_breakdown,omitempty"`
	ScoredAt        *time.Time      `json:"scored_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// FeedbackRecord is one append-only feedback event.
type FeedbackRecord struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	SessionID    string          `json:"session_id"`
	CommenterID  string          `json:"commenter_id,omitempty"`
	FeedbackType string          `json:"feedback_type"`
	Payload      json.RawMessage `json:"payload"`
	Processed    bool            `json:"processed"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PatternRecord is a stored heuristic rule with its confidence counters.
type PatternRecord struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Pattern         json.RawMessage `json:"pattern"`
	PatternType     string          `json:"pattern_type"`
	Confidence      float64         `json:"confidence"`
	SupportCount    int             `json:"support_count"`
	HitCount        int             `json:"hit_count"`
	MissCount       int             `json:"miss_count"`
	DiscoveryMethod string          `json:"discovery_method"`
	Approved        bool            `json:"approved"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SessionAnalytics aggregates scoring and feedback activity for one session.
type SessionAnalytics struct {
	CommenterCount int      `json:"commenter_count"`
	ScoredCount    int      `json:"scored_count"`
	FeedbackCount  int      `json:"feedback_count"`
	AvgScore       *float64 `json:"avg_score,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	MaxScore       *float64 `json:"max_score,omitempty"`
}

var (
	metricsOnce    sync.Once
	scoredCounter  otelmetric.Int64Counter
	scoreTotal     otelmetric.Float64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	var err error
	scoredCounter, err = meter.Int64Counter("commenters_scored_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	scoreTotal, err = meter.Float64Counter("relevance_score_total")
	if err != nil {
		metricsInitErr = err
	}
}

// NewWithDSN constructs the Store using an explicit Postgres DSN. DSN
// assembly belongs to the config package; the store never reads the
// environment itself.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Session operations

func (s *Store) CreateSession(ctx context.Context, userID, title, postURL string, boost, down []string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("session title required")
	}
	if strings.TrimSpace(postURL) == "" {
		return "", fmt.Errorf("post_url required")
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO research_sessions (user_id, title, post_url, boost_terms, down_terms)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, userID, title, postURL, pq.Array(boost), pq.Array(down)).Scan(&id)
	return id, err
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, title, post_url, boost_terms, down_terms, status, created_at, updated_at
FROM research_sessions
WHERE user_id=$1
ORDER BY created_at DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var sess Session
		var boost, down pq.StringArray
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.PostURL, &boost, &down, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.BoostTerms = boost
		sess.DownTerms = down
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSessionByID fetches one session owned by userID. Bool reports existence.
func (s *Store) GetSessionByID(ctx context.Context, id, userID string) (Session, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, title, post_url, boost_terms, down_terms, status, created_at, updated_at
FROM research_sessions
WHERE id=$1 AND user_id=$2
`, id, userID)
	var sess Session
	var boost, down pq.StringArray
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.PostURL, &boost, &down, &sess.Status, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	sess.BoostTerms = boost
	sess.DownTerms = down
	return sess, true, nil
}

func (s *Store) UpdateSessionTerms(ctx context.Context, id, userID string, boost, down []string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE research_sessions SET boost_terms=$3, down_terms=$4 WHERE id=$1 AND user_id=$2
`, id, userID, pq.Array(boost), pq.Array(down))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id, userID, status string) error {
	switch status {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusPaused:
	default:
		return fmt.Errorf("invalid session status: %s", status)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE research_sessions SET status=$3 WHERE id=$1 AND user_id=$2
`, id, userID, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteSession removes the session; commenters and feedback cascade.
func (s *Store) DeleteSession(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM research_sessions WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Commenter operations

// UpsertCommenter inserts a commenter, or refreshes the comment text and
// cached profile when the same profile shows up again in a session.
func (s *Store) UpsertCommenter(ctx context.Context, rec CommenterRecord) (CommenterRecord, error) {
	if strings.TrimSpace(rec.SessionID) == "" {
		return CommenterRecord{}, fmt.Errorf("session_id required")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return CommenterRecord{}, fmt.Errorf("commenter name required")
	}
	if rec.Profile == nil {
		rec.Profile = json.RawMessage(`{}`)
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO commenters (session_id, name, headline, company, location, comment_text, profile_url, profile)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (session_id, profile_url) WHERE profile_url <> '' DO UPDATE SET
  name = EXCLUDED.name,
  headline = EXCLUDED.headline,
  company = EXCLUDED.company,
  location = EXCLUDED.location,
  comment_text = EXCLUDED.comment_text,
  profile = EXCLUDED.profile,
  updated_at = NOW()
RETURNING id, created_at, updated_at
`, rec.SessionID, rec.Name, rec.Headline, rec.Company, rec.Location, rec.CommentText, rec.ProfileURL, []byte(rec.Profile))
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return CommenterRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListCommenters(ctx context.Context, sessionID string) ([]CommenterRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, session_id, name, headline, company, location, comment_text, profile_url, profile,
       relevance_score, score_confidence, score_breakdown, scored_at, created_at, updated_at
FROM commenters
WHERE session_id=$1
ORDER BY relevance_score DESC NULLS LAST, created_at
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommenterRecord
	for rows.Next() {
		rec, err := scanCommenter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetCommenterByID fetches one commenter, checking session ownership through
// the joined research_sessions row. Bool reports existence.
func (s *Store) GetCommenterByID(ctx context.Context, id, userID string) (CommenterRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT c.id, c.session_id, c.name, c.headline, c.company, c.location, c.comment_text, c.profile_url, c.profile,
       c.relevance_score, c.score_confidence, c.score_breakdown, c.scored_at, c.created_at, c.updated_at
FROM commenters c
JOIN research_sessions rs ON rs.id = c.session_id
WHERE c.id=$1 AND rs.user_id=$2
`, id, userID)
	rec, err := scanCommenter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CommenterRecord{}, false, nil
		}
		return CommenterRecord{}, false, err
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommenter(row rowScanner) (CommenterRecord, error) {
	var rec CommenterRecord
	var score, conf sql.NullFloat64
	var breakdown []byte
	var profile []byte
	var scoredAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Name, &rec.Headline, &rec.Company, &rec.Location,
		&rec.CommentText, &rec.ProfileURL, &profile, &score, &conf, &breakdown, &scoredAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return CommenterRecord{}, err
	}
	rec.Profile = profile
	if score.Valid {
		v := score.Float64
		rec.RelevanceScore = &v
	}
	if conf.Valid {
		v := conf.Float64
		rec.ScoreConfidence = &v
	}
	if len(breakdown) > 0 {
		rec.ScoreBreakdown = breakdown
	}
	if scoredAt.Valid {
		v := scoredAt.Time
		rec.ScoredAt = &v
	}
	return rec, nil
}

// UpdateCommenterScore persists a scoring result and bumps the store meters.
func (s *Store) UpdateCommenterScore(ctx context.Context, id string, score, confidence float64, breakdown []byte) error {
	if score < 0 || score > 10 {
		return fmt.Errorf("relevance score %f out of [0,10]", score)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("score confidence %f out of [0,1]", confidence)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE commenters SET relevance_score=$2, score_confidence=$3, score_breakdown=$4, scored_at=NOW()
WHERE id=$1
`, id, score, confidence, breakdown)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	metricsOnce.Do(initStoreMetrics)
	if metricsInitErr == nil {
		scoredCounter.Add(ctx, 1)
		scoreTotal.Add(ctx, score, otelmetric.WithAttributes(attribute.String("kind", "relevance")))
	}
	return nil
}

func (s *Store) CountCommenters(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM commenters WHERE session_id=$1`, sessionID).Scan(&n)
	return n, err
}

// Feedback operations

// CreateFeedback appends one feedback event. Feedback is append-only; rows
// are only ever flipped to processed by the learning job.
func (s *Store) CreateFeedback(ctx context.Context, rec FeedbackRecord) (string, error) {
	switch rec.FeedbackType {
	case FeedbackTypeBinary, FeedbackTypeDetailed, FeedbackTypeOutcome, FeedbackTypeVoice:
	default:
		return "", fmt.Errorf("invalid feedback type: %s", rec.FeedbackType)
	}
	if rec.Payload == nil {
		rec.Payload = json.RawMessage(`{}`)
	}
	var commenterID sql.NullString
	if strings.TrimSpace(rec.CommenterID) != "" {
		commenterID = sql.NullString{String: rec.CommenterID, Valid: true}
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO feedback_interactions (user_id, session_id, commenter_id, feedback_type, payload)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, rec.UserID, rec.SessionID, commenterID, rec.FeedbackType, []byte(rec.Payload)).Scan(&id)
	return id, err
}

func (s *Store) ListFeedbackBySession(ctx context.Context, sessionID string) ([]FeedbackRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, session_id, commenter_id, feedback_type, payload, processed, created_at
FROM feedback_interactions
WHERE session_id=$1
ORDER BY created_at DESC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeedback(rows)
}

// ListUnprocessedFeedback returns the oldest unprocessed feedback, capped at
// limit, for the learning batch.
func (s *Store) ListUnprocessedFeedback(ctx context.Context, limit int) ([]FeedbackRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, session_id, commenter_id, feedback_type, payload, processed, created_at
FROM feedback_interactions
WHERE NOT processed
ORDER BY created_at
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFeedback(rows)
}

func collectFeedback(rows *sql.Rows) ([]FeedbackRecord, error) {
	var out []FeedbackRecord
	for rows.Next() {
		var rec FeedbackRecord
		var commenterID sql.NullString
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &commenterID, &rec.FeedbackType, &payload, &rec.Processed, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if commenterID.Valid {
			rec.CommenterID = commenterID.String
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApplyLearningBatch merges aggregated pattern counters and marks the source
// feedback processed in one transaction. A failed upsert leaves the whole
// batch unprocessed, so the next run re-reads the same feedback instead of
// double-counting tallies that were already merged.
func (s *Store) ApplyLearningBatch(ctx context.Context, patterns []PatternRecord, feedbackIDs []string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, rec := range patterns {
		if _, err := upsertPattern(ctx, tx, rec); err != nil {
			return err
		}
	}
	if len(feedbackIDs) > 0 {
		if _, err := tx.ExecContext(ctx, `
UPDATE feedback_interactions SET processed=TRUE WHERE id = ANY($1)
`, pq.Array(feedbackIDs)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Pattern operations

// UpsertPattern merges hit/miss counters into the user's pattern row and
// recomputes confidence as hits/(hits+misses).
func (s *Store) UpsertPattern(ctx context.Context, rec PatternRecord) (PatternRecord, error) {
	return upsertPattern(ctx, s.DB, rec)
}

// rowQuerier lets the pattern upsert run against the pool or a transaction.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertPattern(ctx context.Context, q rowQuerier, rec PatternRecord) (PatternRecord, error) {
	if strings.TrimSpace(rec.UserID) == "" {
		return PatternRecord{}, fmt.Errorf("user_id required")
	}
	if len(rec.Pattern) == 0 {
		return PatternRecord{}, fmt.Errorf("pattern body required")
	}
	if rec.PatternType == "" {
		rec.PatternType = PatternTypeTerm
	}
	if rec.DiscoveryMethod == "" {
		rec.DiscoveryMethod = "feedback_aggregation"
	}
	row := q.QueryRowContext(ctx, `
INSERT INTO discovered_patterns (user_id, pattern, pattern_type, confidence, support_count, hit_count, miss_count, discovery_method)
VALUES ($1,$2,$3,
        CASE WHEN $5 + $6 > 0 THEN $5::float / ($5 + $6) ELSE 0 END,
        $4,$5,$6,$7)
ON CONFLICT (user_id, pattern_type, (pattern->>'term')) DO UPDATE SET
  support_count = discovered_patterns.support_count + EXCLUDED.support_count,
  hit_count = discovered_patterns.hit_count + EXCLUDED.hit_count,
  miss_count = discovered_patterns.miss_count + EXCLUDED.miss_count,
  confidence = CASE
    WHEN discovered_patterns.hit_count + EXCLUDED.hit_count + discovered_patterns.miss_count + EXCLUDED.miss_count > 0
    THEN (discovered_patterns.hit_count + EXCLUDED.hit_count)::float
         / (discovered_patterns.hit_count + EXCLUDED.hit_count + discovered_patterns.miss_count + EXCLUDED.miss_count)
    ELSE 0 END,
  updated_at = NOW()
RETURNING id, confidence, support_count, hit_count, miss_count, approved, created_at, updated_at
`, rec.UserID, []byte(rec.Pattern), rec.PatternType, rec.SupportCount, rec.HitCount, rec.MissCount, rec.DiscoveryMethod)
	if err := row.Scan(&rec.ID, &rec.Confidence, &rec.SupportCount, &rec.HitCount, &rec.MissCount, &rec.Approved, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return PatternRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListPatterns(ctx context.Context, userID string, approvedOnly bool) ([]PatternRecord, error) {
	query := `
SELECT id, user_id, pattern, pattern_type, confidence, support_count, hit_count, miss_count, discovery_method, approved, created_at, updated_at
FROM discovered_patterns
WHERE user_id=$1`
	if approvedOnly {
		query += ` AND approved`
	}
	query += `
ORDER BY confidence DESC, updated_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PatternRecord
	for rows.Next() {
		var rec PatternRecord
		var pattern []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &pattern, &rec.PatternType, &rec.Confidence, &rec.SupportCount,
			&rec.HitCount, &rec.MissCount, &rec.DiscoveryMethod, &rec.Approved, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Pattern = pattern
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetPatternApproval flips the human-approval toggle that gates a pattern's
// use in scoring.
func (s *Store) SetPatternApproval(ctx context.Context, id, userID string, approved bool) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE discovered_patterns SET approved=$3 WHERE id=$1 AND user_id=$2
`, id, userID, approved)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) DeletePattern(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM discovered_patterns WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Analytics

func (s *Store) SessionAnalytics(ctx context.Context, sessionID string) (SessionAnalytics, error) {
	var out SessionAnalytics
	row := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*),
       COUNT(relevance_score),
       AVG(relevance_score),
       MIN(relevance_score),
       MAX(relevance_score)
FROM commenters
WHERE session_id=$1
`, sessionID)
	var avg, min, max sql.NullFloat64
	if err := row.Scan(&out.CommenterCount, &out.ScoredCount, &avg, &min, &max); err != nil {
		return SessionAnalytics{}, err
	}
	if avg.Valid {
		v := avg.Float64
		out.AvgScore = &v
	}
	if min.Valid {
		v := min.Float64
		out.MinScore = &v
	}
	if max.Valid {
		v := max.Float64
		out.MaxScore = &v
	}
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback_interactions WHERE session_id=$1`, sessionID).Scan(&out.FeedbackCount); err != nil {
		return SessionAnalytics{}, err
	}
	return out, nil
}

var ErrNotFound = errors.New("not found")

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
