package scoring

import (
	"reflect"
	"strings"
	"testing"
)

func sampleCommenter() Commenter {
	return Commenter{
		Name:        "Dana Whitfield",
		Headline:    "VP of Growth at Meridian SaaS",
		Company:     "Meridian",
		Location:    "Austin, TX",
		CommentText: "Great point about pipeline strategy, we ran into the same thing scaling B2B sales.",
		ProfileURL:  "https://www.linkedin.com/in/dana-whitfield",
		Followers:   2400,
		Connections: 500,
		RecentPosts: []RecentPost{
			{Text: "How we grew enterprise revenue 3x", Likes: 120, Comments: 30, Reposts: 12},
		},
	}
}

func TestScoreWithinRange(t *testing.T) {
	cases := []struct {
		name  string
		c     Commenter
		boost []string
		down  []string
	}{
		{"rich profile", sampleCommenter(), []string{"saas", "growth", "pipeline"}, nil},
		{"empty commenter", Commenter{}, nil, nil},
		{"all down terms", sampleCommenter(), nil, []string{"growth", "saas", "pipeline", "b2b", "meridian", "revenue"}},
		{"many boost terms", sampleCommenter(), []string{"growth", "saas", "pipeline", "b2b", "meridian", "revenue", "enterprise", "sales"}, nil},
	}
	for _, tc := range cases {
		res := Score(tc.c, tc.boost, tc.down, nil, Weights{})
		if res.Score < 0 || res.Score > 10 {
			t.Fatalf("%s: score %f out of [0,10]", tc.name, res.Score)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			t.Fatalf("%s: confidence %f out of [0,1]", tc.name, res.Confidence)
		}
	}
}

func TestScoreIsPure(t *testing.T) {
	c := sampleCommenter()
	boost := []string{"saas", "growth"}
	down := []string{"promo"}
	a := Score(c, boost, down, nil, Weights{})
	b := Score(c, boost, down, nil, Weights{})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input produced different output:\n%+v\n%+v", a, b)
	}
}

func TestBoostTermMonotonic(t *testing.T) {
	c := sampleCommenter()
	without := Score(c, []string{"saas"}, nil, nil, Weights{})
	with := Score(c, []string{"saas", "pipeline"}, nil, nil, Weights{})
	if with.Score < without.Score {
		t.Fatalf("adding matching boost term decreased score: %f -> %f", without.Score, with.Score)
	}
}

func TestDownTermMonotonic(t *testing.T) {
	c := sampleCommenter()
	without := Score(c, []string{"saas"}, nil, nil, Weights{})
	with := Score(c, []string{"saas"}, []string{"pipeline"}, nil, Weights{})
	if with.Score > without.Score {
		t.Fatalf("adding matching down term increased score: %f -> %f", without.Score, with.Score)
	}
}

func TestMissingFieldsDoNotPanic(t *testing.T) {
	res := Score(Commenter{Name: "Ghost"}, []string{"saas"}, []string{"spam"}, nil, Weights{})
	if res.Score < 0 || res.Score > 10 {
		t.Fatalf("score %f out of range for sparse commenter", res.Score)
	}
	if len(res.Breakdown) != 0 {
		t.Fatalf("expected no term matches, got %+v", res.Breakdown)
	}
	if len(res.Recommendations) == 0 {
		t.Fatalf("expected recommendations even for sparse input")
	}
}

func TestBreakdownRecordsMatches(t *testing.T) {
	c := sampleCommenter()
	res := Score(c, []string{"SaaS"}, nil, nil, Weights{})
	found := false
	for _, b := range res.Breakdown {
		if b.Term == "saas" && b.Weight == 3.0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected case-insensitive saas match in breakdown: %+v", res.Breakdown)
	}
}

func TestTermMatchCountedOncePerField(t *testing.T) {
	c := Commenter{CommentText: "growth growth growth"}
	res := Score(c, []string{"growth"}, nil, nil, Weights{})
	n := 0
	for _, b := range res.Breakdown {
		if b.Term == "growth" && b.Field == "comment" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected one contribution per (term, field), got %d", n)
	}
}

func TestPromotionalContentPenalized(t *testing.T) {
	promo := Commenter{CommentText: "Sign up for my free trial, limited time discount, link in bio!"}
	neutral := Commenter{CommentText: "Interesting perspective on the market."}
	p := Score(promo, nil, nil, nil, Weights{})
	q := Score(neutral, nil, nil, nil, Weights{})
	if p.Signals.ContentClass != "promotional" {
		t.Fatalf("expected promotional class, got %q", p.Signals.ContentClass)
	}
	if p.Score >= q.Score {
		t.Fatalf("promotional content should score below neutral: %f vs %f", p.Score, q.Score)
	}
}

func TestPatternAdjustmentBounded(t *testing.T) {
	c := sampleCommenter()
	adjs := []Adjustment{
		{Term: "growth", Delta: 5},
		{Term: "saas", Delta: 5},
	}
	res := Score(c, nil, nil, adjs, Weights{})
	if res.Signals.PatternAdjustment > 1.0 {
		t.Fatalf("pattern adjustment exceeded limit: %f", res.Signals.PatternAdjustment)
	}
}

func TestRecommendationsMentionMatchedTerms(t *testing.T) {
	res := Score(sampleCommenter(), []string{"saas", "growth"}, nil, nil, Weights{})
	joined := strings.Join(res.Recommendations, " ")
	if !strings.Contains(joined, "saas") || !strings.Contains(joined, "growth") {
		t.Fatalf("recommendations should name matched boost terms: %v", res.Recommendations)
	}
}

func TestConfidenceGrowsWithEvidence(t *testing.T) {
	sparse := Score(Commenter{}, nil, nil, nil, Weights{})
	rich := Score(sampleCommenter(), []string{"saas"}, nil, nil, Weights{})
	if rich.Confidence <= sparse.Confidence {
		t.Fatalf("richer evidence should raise confidence: %f vs %f", rich.Confidence, sparse.Confidence)
	}
}
