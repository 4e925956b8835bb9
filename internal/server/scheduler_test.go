package server

import (
	"testing"
	"time"
)

func TestIsDueNeverRan(t *testing.T) {
	if !isDue("@hourly", nil) {
		t.Fatalf("job that never ran should be due")
	}
	if !isDue("*/5 * * * *", nil) {
		t.Fatalf("cron job that never ran should be due")
	}
}

func TestIsDueHourly(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute)
	if isDue("@hourly", &recent) {
		t.Fatalf("ran 10m ago, not due yet")
	}
	old := time.Now().Add(-2 * time.Hour)
	if !isDue("@hourly", &old) {
		t.Fatalf("ran 2h ago, should be due")
	}
}

func TestIsDueDaily(t *testing.T) {
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("@daily", &old) {
		t.Fatalf("ran 25h ago, should be due")
	}
	recent := time.Now().Add(-1 * time.Hour)
	if isDue("@daily", &recent) {
		t.Fatalf("ran 1h ago, not due yet")
	}
}

func TestIsDueCronExpr(t *testing.T) {
	old := time.Now().Add(-10 * time.Minute)
	if !isDue("*/5 * * * *", &old) {
		t.Fatalf("5-minute cron with 10m-old last run should be due")
	}
}

func TestIsDueInvalidSpecFallsBackToDaily(t *testing.T) {
	recent := time.Now().Add(-1 * time.Hour)
	if isDue("not-a-cron", &recent) {
		t.Fatalf("invalid spec falls back to daily, 1h-old run is not due")
	}
	old := time.Now().Add(-25 * time.Hour)
	if !isDue("not-a-cron", &old) {
		t.Fatalf("invalid spec falls back to daily, 25h-old run is due")
	}
}
