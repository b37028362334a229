package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BallotCast("E1", 20*time.Millisecond)
	m.BallotCast("E1", 30*time.Millisecond)
	m.BallotRejected("DUPLICATE_VOTE")
	m.CacheResult("hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ballotsCast.WithLabelValues("E1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ballotsRejected.WithLabelValues("DUPLICATE_VOTE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resultsCache.WithLabelValues("hit")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.castDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BallotCast("E1", time.Second)
		m.BallotRejected("VOTING_CLOSED")
		m.CacheResult("miss")
	})
}
