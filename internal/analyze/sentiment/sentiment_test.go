package sentiment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounts struct {
	counts map[string]int
}

func (f *fakeCounts) KeywordCounts(ctx context.Context, from, to time.Time) (map[string]int, error) {
	return f.counts, nil
}

func TestScore_WeightsEachKeywordIndependently(t *testing.T) {
	a := New(&fakeCounts{counts: map[string]int{
		"New Release": 10,
		"Price Drop":  5,
		"Issues":      2,
	}}, 7)
	score, err := a.Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*3.0+5*2.0+2*1.0, score)
}

func TestScore_LeakUsesDefaultWeightNotNewReleaseWeight(t *testing.T) {
	a := New(&fakeCounts{counts: map[string]int{"Leak": 4}}, 7)
	score, err := a.Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, score, "Leak must score at the default weight, not the New Release weight")
}

func TestScore_UnknownKeywordFallsBackToDefaultWeight(t *testing.T) {
	a := New(&fakeCounts{counts: map[string]int{"Something Else": 3}}, 7)
	score, err := a.Score(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, score)
}

func TestScore_IsIdempotentOnIdenticalData(t *testing.T) {
	a := New(&fakeCounts{counts: map[string]int{"New Release": 2, "Leak": 3}}, 7)
	s1, err1 := a.Score(context.Background())
	s2, err2 := a.Score(context.Background())
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, s1, s2)
}

func TestNewReleaseMentions_CombinesNewReleaseLeakAnd5070(t *testing.T) {
	a := New(&fakeCounts{counts: map[string]int{
		"New Release":       4,
		"Leak":              2,
		"5070 release date": 1,
		"Price Drop":        9,
	}}, 7)
	total, err := a.NewReleaseMentions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, total)
}
