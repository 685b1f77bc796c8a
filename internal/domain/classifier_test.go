package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Domain
	}{
		{"I have a meeting tomorrow", Work},
		{"I enjoy categorizing my books", Entertainment},
		{"", General},
		{"hello there", General},
		{"My DOCTOR says I should exercise", Health},
		{"open a bank account for my savings", Finance},
		{"how to open a bank account", Learning},
		{"Planning my daughter's birthday party", Family},
		{"I want to learn a new skill", Learning},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.msg))
		})
	}
}

func TestClassify_TieGoesToEarlierDomain(t *testing.T) {
	// "job" (work) and "movie" (entertainment) each add 1.0.
	assert.Equal(t, Work, Classify("movie job"))
	// "dinner" (family) and "diet" (health) each add 1.0.
	assert.Equal(t, Family, Classify("dinner diet"))
}

func TestScores_WholeWordBeatsSubstring(t *testing.T) {
	scores := Scores("homework")
	require.Len(t, scores, 6)

	byDomain := map[Domain]float64{}
	for _, s := range scores {
		byDomain[s.Domain] = s.Score
	}
	// "work" and "home" both occur only inside "homework".
	assert.InDelta(t, 0.7, byDomain[Work], 1e-9)
	assert.InDelta(t, 0.7, byDomain[Family], 1e-9)
	assert.Equal(t, Work, Classify("homework"))

	scores = Scores("work")
	assert.InDelta(t, 1.0, scores[0].Score, 1e-9)
}

func TestScores_MultiWordKeyword(t *testing.T) {
	scores := Scores("show me how to cook")
	var learning float64
	for _, s := range scores {
		if s.Domain == Learning {
			learning = s.Score
		}
	}
	assert.InDelta(t, 1.0, learning, 1e-9)
}

func TestScores_EmptyMessage(t *testing.T) {
	for _, s := range Scores("") {
		assert.Zero(t, s.Score, "domain %s", s.Domain)
	}
}

func TestDomains(t *testing.T) {
	assert.Equal(t, []Domain{Work, Family, Entertainment, Health, Learning, Finance, General}, Domains())
}
