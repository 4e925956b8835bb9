package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Commenter is the snapshot of a LinkedIn commenter that scoring consumes.
// Missing fields are fine; absent evidence contributes nothing.
type Commenter struct {
	Name        string
	Headline    string
	Company     string
	Location    string
	CommentText string
	ProfileURL  string
	Followers   int
	Connections int
	RecentPosts []RecentPost
}

// RecentPost is a cached post with its engagement counters.
type RecentPost struct {
	Text     string
	Likes    int
	Comments int
	Reposts  int
}

// TermContribution records one matched term and what it added to the score.
type TermContribution struct {
	Term   string  `json:"term"`
	Field  string  `json:"field"`
	Weight float64 `json:"weight"`
}

// Signals carries the non-term components of the score.
type Signals struct {
	ContentClass      string  `json:"content_class"`
	ContentDelta      float64 `json:"content_delta"`
	EngagementBonus   float64 `json:"engagement_bonus"`
	CompletenessBonus float64 `json:"completeness_bonus"`
	PatternAdjustment float64 `json:"pattern_adjustment"`
}

// Result is the full scoring output.
type Result struct {
	Score           float64            `json:"score"`
	Confidence      float64            `json:"confidence"`
	Breakdown       []TermContribution `json:"breakdown"`
	Signals         Signals            `json:"signals"`
	Recommendations []string           `json:"recommendations"`
}

// Adjustment is a learned per-term delta sourced from an approved pattern.
type Adjustment struct {
	Term  string
	Delta float64
}

// Weights are the rubric constants. Zero values fall back to the documented
// defaults via Normalize.
type Weights struct {
	Boost              float64
	Down               float64
	EngagementCap      float64
	CompletenessCap    float64
	PatternAdjustLimit float64
}

// DefaultWeights returns the documented rubric: +3.0 per boost term,
// -2.0 per down term.
func DefaultWeights() Weights {
	return Weights{Boost: 3.0, Down: 2.0, EngagementCap: 1.5, CompletenessCap: 1.0, PatternAdjustLimit: 1.0}
}

// Normalize fills unset weights with the defaults.
func (w Weights) Normalize() Weights {
	d := DefaultWeights()
	if w.Boost <= 0 {
		w.Boost = d.Boost
	}
	if w.Down <= 0 {
		w.Down = d.Down
	}
	if w.EngagementCap <= 0 {
		w.EngagementCap = d.EngagementCap
	}
	if w.CompletenessCap <= 0 {
		w.CompletenessCap = d.CompletenessCap
	}
	if w.PatternAdjustLimit <= 0 {
		w.PatternAdjustLimit = d.PatternAdjustLimit
	}
	return w
}

const baseScore = 5.0

// Content classification keyword lists. These are the heuristic classifiers:
// the class with the most hits wins, ties stay neutral.
var (
	businessKeywords = []string{
		"strategy", "growth", "revenue", "hiring", "b2b", "saas", "pipeline",
		"partnership", "enterprise", "operations", "roi", "customer",
	}
	promotionalKeywords = []string{
		"buy now", "discount", "limited time", "dm me", "link in bio",
		"sign up", "free trial", "promo", "webinar",
	}
	personalKeywords = []string{
		"congrats", "congratulations", "happy birthday", "anniversary",
		"vacation", "proud of", "blessed",
	}
)

// Score maps a commenter snapshot plus boost/down term lists to a relevance
// score in [0,10], a confidence in [0,1], a per-term breakdown and free-text
// recommendations. Pure and deterministic: same input, same output. It never
// fails; missing fields simply contribute nothing.
func Score(c Commenter, boostTerms, downTerms []string, adjustments []Adjustment, w Weights) Result {
	w = w.Normalize()

	fields := matchFields(c)
	var breakdown []TermContribution
	raw := 0.0

	for _, term := range normalizeTerms(boostTerms) {
		for _, f := range fields {
			if strings.Contains(f.text, term) {
				breakdown = append(breakdown, TermContribution{Term: term, Field: f.name, Weight: w.Boost})
				raw += w.Boost
			}
		}
	}
	for _, term := range normalizeTerms(downTerms) {
		for _, f := range fields {
			if strings.Contains(f.text, term) {
				breakdown = append(breakdown, TermContribution{Term: term, Field: f.name, Weight: -w.Down})
				raw -= w.Down
			}
		}
	}

	sig := Signals{}
	sig.ContentClass, sig.ContentDelta = classifyContent(c)
	sig.EngagementBonus = engagementBonus(c.RecentPosts, w.EngagementCap)
	sig.CompletenessBonus = completenessBonus(c, w.CompletenessCap)
	sig.PatternAdjustment = patternAdjustment(fields, adjustments, w.PatternAdjustLimit)
	raw += sig.ContentDelta + sig.EngagementBonus + sig.CompletenessBonus + sig.PatternAdjustment

	score := clamp(baseScore+raw, 0, 10)
	conf := confidence(c, boostTerms, downTerms)

	return Result{
		Score:           score,
		Confidence:      conf,
		Breakdown:       breakdown,
		Signals:         sig,
		Recommendations: recommend(score, sig, breakdown),
	}
}

type field struct {
	name string
	text string
}

func matchFields(c Commenter) []field {
	fields := []field{
		{"headline", strings.ToLower(c.Headline)},
		{"company", strings.ToLower(c.Company)},
		{"comment", strings.ToLower(c.CommentText)},
	}
	var posts strings.Builder
	for _, p := range c.RecentPosts {
		posts.WriteString(strings.ToLower(p.Text))
		posts.WriteByte('\n')
	}
	fields = append(fields, field{"posts", posts.String()})
	return fields
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// classifyContent picks the dominant content class by keyword hit count.
func classifyContent(c Commenter) (string, float64) {
	corpus := strings.ToLower(c.CommentText)
	for _, p := range c.RecentPosts {
		corpus += "\n" + strings.ToLower(p.Text)
	}
	counts := map[string]int{
		"business":    countHits(corpus, businessKeywords),
		"promotional": countHits(corpus, promotionalKeywords),
		"personal":    countHits(corpus, personalKeywords),
	}
	best, bestCount, tied := "", 0, false
	for _, class := range []string{"business", "promotional", "personal"} {
		n := counts[class]
		if n > bestCount {
			best, bestCount, tied = class, n, false
		} else if n == bestCount && n > 0 {
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return "neutral", 0
	}
	switch best {
	case "business":
		return best, 1.0
	case "promotional":
		return best, -1.5
	default:
		return best, -0.5
	}
}

func countHits(corpus string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(corpus, k) {
			n++
		}
	}
	return n
}

// engagementBonus grows with total post engagement but is capped; log scale
// keeps viral outliers from dominating the rubric.
func engagementBonus(posts []RecentPost, limit float64) float64 {
	total := 0
	for _, p := range posts {
		total += p.Likes + p.Comments + p.Reposts
	}
	if total <= 0 {
		return 0
	}
	return math.Min(limit, 0.5*math.Log10(1+float64(total)))
}

func completenessBonus(c Commenter, limit float64) float64 {
	bonus := 0.0
	for _, v := range []string{c.Headline, c.Company, c.Location, c.ProfileURL} {
		if strings.TrimSpace(v) != "" {
			bonus += 0.25
		}
	}
	return math.Min(limit, bonus)
}

// patternAdjustment applies learned term deltas, bounded so learned signals
// never outweigh the explicit term lists.
func patternAdjustment(fields []field, adjustments []Adjustment, limit float64) float64 {
	total := 0.0
	for _, adj := range adjustments {
		term := strings.ToLower(strings.TrimSpace(adj.Term))
		if term == "" {
			continue
		}
		for _, f := range fields {
			if strings.Contains(f.text, term) {
				total += adj.Delta
				break
			}
		}
	}
	return clamp(total, -limit, limit)
}

// confidence is the fraction of evidence sources actually present.
func confidence(c Commenter, boostTerms, downTerms []string) float64 {
	present, total := 0, 7
	for _, v := range []string{c.Headline, c.Company, c.Location, c.CommentText} {
		if strings.TrimSpace(v) != "" {
			present++
		}
	}
	if len(c.RecentPosts) > 0 {
		present++
	}
	if c.Followers > 0 || c.Connections > 0 {
		present++
	}
	if len(boostTerms)+len(downTerms) > 0 {
		present++
	}
	return float64(present) / float64(total)
}

func recommend(score float64, sig Signals, breakdown []TermContribution) []string {
	var recs []string
	switch {
	case score >= 7.5:
		recs = append(recs, "high relevance: prioritize for outreach")
	case score >= 5.0:
		recs = append(recs, "moderate relevance: review profile before outreach")
	default:
		recs = append(recs, "low relevance: deprioritize")
	}
	if sig.ContentClass == "promotional" {
		recs = append(recs, "recent activity looks promotional; verify intent before contacting")
	}
	if sig.EngagementBonus > 0.75 {
		recs = append(recs, "active poster with engaged audience")
	}
	if len(breakdown) > 0 {
		terms := map[string]struct{}{}
		for _, b := range breakdown {
			if b.Weight > 0 {
				terms[b.Term] = struct{}{}
			}
		}
		if len(terms) > 0 {
			list := make([]string, 0, len(terms))
			for t := range terms {
				list = append(list, t)
			}
			sort.Strings(list)
			recs = append(recs, fmt.Sprintf("matched boost terms: %s", strings.Join(list, ", ")))
		}
	}
	return recs
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
