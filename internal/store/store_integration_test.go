package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/leadscope/leadscope/internal/learning"
	"github.com/leadscope/leadscope/internal/store"
)

func TestStoreLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("leadscope"),
		tcPostgres.WithUsername("leadscope"),
		tcPostgres.WithPassword("leadscope"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://leadscope:leadscope@%s:%s/leadscope?sslmode=disable", host, port.Port())
	if err := applyMigrations(ctx, dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	// users
	if err := st.CreateUser(ctx, "ada@example.com", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	userID, hash, err := st.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if hash != "hash" {
		t.Fatalf("unexpected hash: %q", hash)
	}
	if err := st.CreateUser(ctx, "ada@example.com", "hash"); err == nil {
		t.Fatalf("expected duplicate email to fail")
	}

	// sessions
	sessID, err := st.CreateSession(ctx, userID, "SaaS founders", "https://www.linkedin.com/posts/abc",
		[]string{"founder", "saas"}, []string{"student"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess, ok, err := st.GetSessionByID(ctx, sessID, userID)
	if err != nil || !ok {
		t.Fatalf("get session: ok=%v err=%v", ok, err)
	}
	if sess.Status != store.SessionStatusActive {
		t.Fatalf("expected active, got %s", sess.Status)
	}
	if len(sess.BoostTerms) != 2 || sess.BoostTerms[0] != "founder" {
		t.Fatalf("unexpected boost terms: %v", sess.BoostTerms)
	}
	if _, ok, _ := st.GetSessionByID(ctx, sessID, "00000000-0000-0000-0000-000000000000"); ok {
		t.Fatalf("foreign user must not see the session")
	}

	// commenter upsert: same profile_url in the same session refreshes the row
	rec1, err := st.UpsertCommenter(ctx, store.CommenterRecord{
		SessionID: sessID, Name: "Ada", Headline: "Founder", CommentText: "first comment",
		ProfileURL: "https://linkedin.com/in/ada", Profile: json.RawMessage(`{"followers":10}`),
	})
	if err != nil {
		t.Fatalf("upsert commenter: %v", err)
	}
	rec2, err := st.UpsertCommenter(ctx, store.CommenterRecord{
		SessionID: sessID, Name: "Ada L.", Headline: "Founder & CEO", CommentText: "second comment",
		ProfileURL: "https://linkedin.com/in/ada", Profile: json.RawMessage(`{"followers":12}`),
	})
	if err != nil {
		t.Fatalf("upsert commenter again: %v", err)
	}
	if rec1.ID != rec2.ID {
		t.Fatalf("expected same row on conflict, got %s vs %s", rec1.ID, rec2.ID)
	}
	// blank profile URLs never collide
	anon1, err := st.UpsertCommenter(ctx, store.CommenterRecord{SessionID: sessID, Name: "Anon A"})
	if err != nil {
		t.Fatalf("upsert anon: %v", err)
	}
	anon2, err := st.UpsertCommenter(ctx, store.CommenterRecord{SessionID: sessID, Name: "Anon B"})
	if err != nil {
		t.Fatalf("upsert anon: %v", err)
	}
	if anon1.ID == anon2.ID {
		t.Fatalf("blank profile urls must not conflict")
	}
	n, err := st.CountCommenters(ctx, sessID)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 commenters, got %d (%v)", n, err)
	}

	// scoring persistence and ordering
	if err := st.UpdateCommenterScore(ctx, rec1.ID, 8.5, 0.7, []byte(`{"score":8.5}`)); err != nil {
		t.Fatalf("update score: %v", err)
	}
	if err := st.UpdateCommenterScore(ctx, anon1.ID, 3.0, 0.3, []byte(`{"score":3.0}`)); err != nil {
		t.Fatalf("update score: %v", err)
	}
	if err := st.UpdateCommenterScore(ctx, rec1.ID, 11, 0.5, nil); err == nil {
		t.Fatalf("expected out-of-range score to be rejected")
	}
	listed, err := st.ListCommenters(ctx, sessID)
	if err != nil {
		t.Fatalf("list commenters: %v", err)
	}
	if listed[0].ID != rec1.ID || listed[0].RelevanceScore == nil || *listed[0].RelevanceScore != 8.5 {
		t.Fatalf("expected highest score first, got %+v", listed[0])
	}
	if listed[len(listed)-1].RelevanceScore != nil {
		t.Fatalf("unscored rows sort last")
	}

	// feedback and learning
	for i := 0; i < 3; i++ {
		if _, err := st.CreateFeedback(ctx, store.FeedbackRecord{
			UserID: userID, SessionID: sessID, CommenterID: rec1.ID,
			FeedbackType: store.FeedbackTypeBinary, Payload: json.RawMessage(`{"positive":true,"terms":["founder"]}`),
		}); err != nil {
			t.Fatalf("create feedback: %v", err)
		}
	}
	if _, err := st.CreateFeedback(ctx, store.FeedbackRecord{
		UserID: userID, SessionID: sessID, FeedbackType: "thumbs",
	}); err == nil {
		t.Fatalf("expected invalid feedback type to be rejected")
	}

	proc := &learning.Processor{Store: st, BatchSize: 10, MinSupport: 3}
	processed, err := proc.Run(ctx)
	if err != nil {
		t.Fatalf("learning run: %v", err)
	}
	if processed != 3 {
		t.Fatalf("expected 3 processed rows, got %d", processed)
	}
	remaining, err := st.ListUnprocessedFeedback(ctx, 10)
	if err != nil {
		t.Fatalf("list unprocessed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected all feedback processed, %d left", len(remaining))
	}

	patterns, err := st.ListPatterns(ctx, userID, false)
	if err != nil {
		t.Fatalf("list patterns: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 discovered pattern, got %d", len(patterns))
	}
	pat := patterns[0]
	if pat.Confidence != 1.0 || pat.SupportCount != 3 || pat.HitCount != 3 {
		t.Fatalf("unexpected pattern counters: %+v", pat)
	}
	var body map[string]string
	if err := json.Unmarshal(pat.Pattern, &body); err != nil || body["term"] != "founder" {
		t.Fatalf("unexpected pattern body: %s", pat.Pattern)
	}

	// upserting the same term merges counters and recomputes confidence
	merged, err := st.UpsertPattern(ctx, store.PatternRecord{
		UserID: userID, Pattern: json.RawMessage(`{"term":"founder"}`),
		SupportCount: 1, HitCount: 0, MissCount: 1,
	})
	if err != nil {
		t.Fatalf("upsert pattern: %v", err)
	}
	if merged.ID != pat.ID {
		t.Fatalf("expected merge into existing pattern row")
	}
	if merged.HitCount != 3 || merged.MissCount != 1 || merged.SupportCount != 4 {
		t.Fatalf("unexpected merged counters: %+v", merged)
	}
	if merged.Confidence != 0.75 {
		t.Fatalf("expected confidence 0.75, got %f", merged.Confidence)
	}

	// approval gates the approved-only listing
	approved, err := st.ListPatterns(ctx, userID, true)
	if err != nil || len(approved) != 0 {
		t.Fatalf("expected no approved patterns yet, got %d (%v)", len(approved), err)
	}
	if err := st.SetPatternApproval(ctx, pat.ID, userID, true); err != nil {
		t.Fatalf("approve pattern: %v", err)
	}
	approved, err = st.ListPatterns(ctx, userID, true)
	if err != nil || len(approved) != 1 {
		t.Fatalf("expected 1 approved pattern, got %d (%v)", len(approved), err)
	}

	// analytics
	stats, err := st.SessionAnalytics(ctx, sessID)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if stats.CommenterCount != 3 || stats.ScoredCount != 2 || stats.FeedbackCount != 3 {
		t.Fatalf("unexpected analytics: %+v", stats)
	}
	if stats.AvgScore == nil || *stats.AvgScore != 5.75 {
		t.Fatalf("unexpected avg score: %+v", stats.AvgScore)
	}

	// cascade delete
	if err := st.DeleteSession(ctx, sessID, userID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	n, err = st.CountCommenters(ctx, sessID)
	if err != nil || n != 0 {
		t.Fatalf("expected commenters cascade-deleted, got %d (%v)", n, err)
	}
	if err := st.DeleteSession(ctx, sessID, userID); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

// applyMigrations runs the repo's up migrations in order against dsn.
func applyMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	dir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)
	for _, name := range ups {
		sqlBytes, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
