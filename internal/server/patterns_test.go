package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/leadscope/leadscope/internal/store"
)

var patternCols = []string{
	"id", "user_id", "pattern", "pattern_type", "confidence", "support_count",
	"hit_count", "miss_count", "discovery_method", "approved", "created_at", "updated_at",
}

func TestListPatternsApprovedOnly(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &PatternsHandler{Store: &store.Store{DB: db}}

	mock.ExpectQuery(`FROM discovered_patterns\s+WHERE user_id=\$1 AND approved`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(patternCols).
			AddRow("pat-1", "user-1", []byte(`{"term":"founder"}`), "term", 0.8, 5, 4, 1, "feedback_aggregation", true, time.Now(), time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/patterns?approved=true", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := handler.list(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	var items []store.PatternRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].Confidence != 0.8 || !items[0].Approved {
		t.Fatalf("unexpected patterns: %+v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApprovePattern(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &PatternsHandler{Store: &store.Store{DB: db}}

	mock.ExpectExec(`UPDATE discovered_patterns SET approved=\$3`).
		WithArgs("pat-1", "user-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/patterns/pat-1/approve", strings.NewReader(`{"approved":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("pat-1")

	if err := handler.approve(ctx); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeletePatternNotFound(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &PatternsHandler{Store: &store.Store{DB: db}}

	mock.ExpectExec(`DELETE FROM discovered_patterns`).
		WithArgs("pat-404", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := httptest.NewRequest(http.MethodDelete, "/api/patterns/pat-404", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("pat-404")

	err = handler.delete(ctx)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %#v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
