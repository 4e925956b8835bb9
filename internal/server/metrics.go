package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scoringRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscope_scoring_runs_total",
		Help: "Number of scoring runs executed.",
	})
	commentersScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadscope_commenters_scored_total",
		Help: "Number of commenters scored.",
	})
	linkedinCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscope_linkedin_calls_total",
		Help: "Upstream LinkedIn API calls by operation and status.",
	}, []string{"op", "status"})
	learningRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadscope_learning_runs_total",
		Help: "Learning batch runs by status.",
	}, []string{"status"})
)
