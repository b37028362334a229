// Package metrics 暴露投票核心的Prometheus指标。所有方法对 nil 接收者安全
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "votecore"

type Metrics struct {
	ballotsCast     *prometheus.CounterVec
	ballotsRejected *prometheus.CounterVec
	resultsCache    *prometheus.CounterVec
	castDuration    prometheus.Histogram
}

// New 创建并注册指标
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ballotsCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ballots_cast_total",
			Help:      "已记录的选票数量",
		}, []string{"election"}),
		ballotsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ballots_rejected_total",
			Help:      "被拒绝的投票请求数量，按错误码区分",
		}, []string{"reason"}),
		resultsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_cache_total",
			Help:      "结果缓存访问次数",
		}, []string{"result"}),
		castDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cast_duration_seconds",
			Help:      "投票请求处理耗时",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ballotsCast, m.ballotsRejected, m.resultsCache, m.castDuration)
	return m
}

func (m *Metrics) BallotCast(electionID string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ballotsCast.WithLabelValues(electionID).Inc()
	m.castDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) BallotRejected(reason string) {
	if m == nil {
		return
	}
	m.ballotsRejected.WithLabelValues(reason).Inc()
}

// CacheResult result 取值 hit / miss / error
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.resultsCache.WithLabelValues(result).Inc()
}
