package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lvdashuaibi/votecore/internal/model"
)

func TestCountsAreClampedToInt32(t *testing.T) {
	assert.Equal(t, int32(7), clampInt32(7))
	assert.Equal(t, int32(math.MaxInt32), clampInt32(math.MaxInt32))
	assert.Equal(t, int32(math.MaxInt32), clampInt32(math.MaxInt32+1))
	assert.Equal(t, int32(math.MaxInt32), clampInt32(1<<40))
	assert.Equal(t, int32(math.MinInt32), clampInt32(-1<<40))

	big := int64(1<<32 + 5)
	results := &ResultsResolver{r: &model.ElectionResults{TotalBallots: big}}
	assert.Equal(t, int32(math.MaxInt32), results.TotalBallots(), "no wrap-around to a small count")

	pair := &PairResultResolver{p: model.PairResult{MayorVotes: big, DeputyMayorVotes: 3}}
	assert.Equal(t, int32(math.MaxInt32), pair.MayorVotes())
	assert.Equal(t, int32(3), pair.DeputyMayorVotes())

	total := &CandidateTotalResolver{t: model.CandidateTotal{Votes: big}}
	assert.Equal(t, int32(math.MaxInt32), total.Votes())
}
