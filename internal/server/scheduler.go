package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/leadscope/leadscope/internal/cache"
	"github.com/leadscope/leadscope/internal/learning"
)

// Scheduler periodically drains unprocessed feedback through the learning
// processor. A redis lock keeps concurrent replicas from double-processing.
type Scheduler struct {
	Processor *learning.Processor
	Rdb       *redis.Client
	Cron      string
	Logger    *log.Logger
	Stop      chan struct{}

	lastRun *time.Time
}

func (s *Scheduler) Start() {
	if s.Stop == nil {
		s.Stop = make(chan struct{})
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	if !isDue(s.Cron, s.lastRun) {
		return
	}
	ctx := context.Background()

	// distributed lock to avoid duplicate runs
	ok, err := cache.AcquireLock(ctx, s.Rdb, "learn:lock", 2*time.Minute)
	if err != nil || !ok {
		return
	}
	defer cache.ReleaseLock(ctx, s.Rdb, "learn:lock")

	now := time.Now()
	s.lastRun = &now
	processed, err := s.Processor.Run(ctx)
	if err != nil {
		learningRuns.WithLabelValues("failed").Inc()
		s.logger().Printf("learning run failed: %v", err)
		return
	}
	learningRuns.WithLabelValues("succeeded").Inc()
	if processed > 0 {
		s.logger().Printf("learning run processed %d feedback rows", processed)
	}
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[LEARN] ", log.LstdFlags)
	}
	return s.Logger
}

// isDue determines if a job with cronSpec should run now based on its last
// run time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
