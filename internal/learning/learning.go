package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/leadscope/leadscope/internal/scoring"
	"github.com/leadscope/leadscope/internal/store"
)

// feedbackSignal is the part of a feedback payload the aggregator understands.
// Anything else in the JSONB blob is preserved in the database but ignored here.
type feedbackSignal struct {
	Terms     []string `json:"terms"`
	Positive  *bool    `json:"positive"`
	Rating    *int     `json:"rating"`
	Converted *bool    `json:"converted"`
}

// Processor turns unprocessed feedback rows into per-term pattern counters.
// This is descriptive aggregation over stored rows: counts and ratios, no
// model training.
type Processor struct {
	Store      *store.Store
	Logger     *log.Logger
	BatchSize  int
	MinSupport int
}

// Run consumes one batch of unprocessed feedback and returns how many rows
// were processed.
func (p *Processor) Run(ctx context.Context) (int, error) {
	if p.Logger == nil {
		p.Logger = log.New(log.Writer(), "[LEARN] ", log.LstdFlags)
	}
	batch, err := p.Store.ListUnprocessedFeedback(ctx, p.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed feedback: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	type key struct {
		userID string
		term   string
	}
	type tally struct{ hits, misses, support int }
	tallies := make(map[key]*tally)
	processed := make([]string, 0, len(batch))

	for _, fb := range batch {
		processed = append(processed, fb.ID)
		positive, terms, ok := interpret(fb)
		if !ok {
			continue
		}
		for _, term := range terms {
			k := key{userID: fb.UserID, term: term}
			t := tallies[k]
			if t == nil {
				t = &tally{}
				tallies[k] = t
			}
			t.support++
			if positive {
				t.hits++
			} else {
				t.misses++
			}
		}
	}

	records := make([]store.PatternRecord, 0, len(tallies))
	for k, t := range tallies {
		pattern, err := json.Marshal(map[string]string{"term": k.term})
		if err != nil {
			return 0, err
		}
		records = append(records, store.PatternRecord{
			UserID:       k.userID,
			Pattern:      pattern,
			PatternType:  store.PatternTypeTerm,
			SupportCount: t.support,
			HitCount:     t.hits,
			MissCount:    t.misses,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UserID != records[j].UserID {
			return records[i].UserID < records[j].UserID
		}
		return string(records[i].Pattern) < string(records[j].Pattern)
	})

	// one transaction: either all tallies merge and the feedback is marked
	// processed, or the batch is retried whole on the next run
	if err := p.Store.ApplyLearningBatch(ctx, records, processed); err != nil {
		return 0, fmt.Errorf("apply learning batch: %w", err)
	}
	p.Logger.Printf("processed %d feedback rows into %d patterns", len(processed), len(tallies))
	return len(processed), nil
}

// interpret maps one feedback row to a positive/negative signal plus the
// terms it is about. Voice feedback is stored but carries no signal here
// (transcription is out of scope).
func interpret(fb store.FeedbackRecord) (positive bool, terms []string, ok bool) {
	if fb.FeedbackType == store.FeedbackTypeVoice {
		return false, nil, false
	}
	var sig feedbackSignal
	if err := json.Unmarshal(fb.Payload, &sig); err != nil {
		return false, nil, false
	}
	terms = normalizeTerms(sig.Terms)
	if len(terms) == 0 {
		return false, nil, false
	}
	switch fb.FeedbackType {
	case store.FeedbackTypeBinary:
		if sig.Positive == nil {
			return false, nil, false
		}
		return *sig.Positive, terms, true
	case store.FeedbackTypeDetailed:
		if sig.Rating == nil {
			return false, nil, false
		}
		switch {
		case *sig.Rating >= 4:
			return true, terms, true
		case *sig.Rating <= 2:
			return false, terms, true
		default:
			return false, nil, false
		}
	case store.FeedbackTypeOutcome:
		if sig.Converted == nil {
			return false, nil, false
		}
		return *sig.Converted, terms, true
	}
	return false, nil, false
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	var out []string
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// AdjustmentsFromPatterns converts approved patterns with enough support
// into bounded scoring adjustments. Confidence 0.5 is neutral; deviation
// from it scales the delta.
func AdjustmentsFromPatterns(patterns []store.PatternRecord, minSupport int) []scoring.Adjustment {
	var out []scoring.Adjustment
	for _, p := range patterns {
		if !p.Approved || p.SupportCount < minSupport {
			continue
		}
		var body struct {
			Term string `json:"term"`
		}
		if err := json.Unmarshal(p.Pattern, &body); err != nil || body.Term == "" {
			continue
		}
		delta := (p.Confidence - 0.5) * 2 // [-1, 1]
		if delta == 0 {
			continue
		}
		out = append(out, scoring.Adjustment{Term: body.Term, Delta: delta})
	}
	return out
}
