package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/codec"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/metrics"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/repository"
)

// ResultsCache 结果缓存，实现见 repository.ResultCache
type ResultsCache interface {
	Get(ctx context.Context, electionID string) (*model.ElectionResults, int64, error)
	SetIfGeneration(ctx context.Context, electionID string, gen int64, results *model.ElectionResults) (bool, error)
	Invalidate(ctx context.Context, electionID string) error
}

// Archiver 最终结果归档
type Archiver interface {
	ArchiveResults(ctx context.Context, results *model.ElectionResults) (string, error)
}

// ResultsService 计票汇总。计票数据只在这里解码
type ResultsService struct {
	elections repository.ElectionStore
	ballots   repository.BallotStore
	codec     codec.BallotCodec
	cache     ResultsCache
	archiver  Archiver
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewResultsService cache 与 archiver 均可为 nil
func NewResultsService(
	elections repository.ElectionStore,
	ballots repository.BallotStore,
	ballotCodec codec.BallotCodec,
	cache ResultsCache,
	archiver Archiver,
	m *metrics.Metrics,
) *ResultsService {
	return &ResultsService{
		elections: elections,
		ballots:   ballots,
		codec:     ballotCodec,
		cache:     cache,
		archiver:  archiver,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock 替换时钟，供测试使用
func (s *ResultsService) WithClock(now func() time.Time) *ResultsService {
	s.now = now
	return s
}

// GetResults 返回解码后的计票结果，优先读缓存
func (s *ResultsService) GetResults(ctx context.Context, electionID string) (*model.ElectionResults, error) {
	if _, err := s.elections.GetElection(ctx, electionID); err != nil {
		return nil, err
	}

	cacheUsable := false
	var gen int64
	if s.cache != nil {
		cached, g, err := s.cache.Get(ctx, electionID)
		switch {
		case err != nil:
			s.metrics.CacheResult("error")
			logging.Log.WithField("electionId", electionID).Warnf("读取结果缓存失败: %v", err)
		case cached != nil:
			s.metrics.CacheResult("hit")
			return cached, nil
		default:
			s.metrics.CacheResult("miss")
			cacheUsable = true
			gen = g
		}
	}

	results, err := s.compute(ctx, electionID)
	if err != nil {
		return nil, err
	}

	if cacheUsable {
		if _, err := s.cache.SetIfGeneration(ctx, electionID, gen, results); err != nil {
			logging.Log.WithField("electionId", electionID).Warnf("写入结果缓存失败: %v", err)
		}
	}
	return results, nil
}

// Invalidate 清除结果缓存，失败只记录日志
func (s *ResultsService) Invalidate(ctx context.Context, electionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, electionID); err != nil {
		logging.Log.WithField("electionId", electionID).Warnf("清除结果缓存失败: %v", err)
	}
}

// HandleBallotCast Kafka消费者的处理函数
func (s *ResultsService) HandleBallotCast(ctx context.Context, event *model.BallotCastEvent) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, event.ElectionID)
}

// ArchiveResults 选举结束后上传最终结果
func (s *ResultsService) ArchiveResults(ctx context.Context, electionID string) (string, error) {
	if s.archiver == nil {
		return "", apperr.Validation("结果归档未启用")
	}

	e, err := s.elections.GetElection(ctx, electionID)
	if err != nil {
		return "", err
	}
	switch e.StatusAt(s.now()) {
	case model.StatusScheduled, model.StatusActive:
		return "", apperr.Conflict("选举 %s 尚未结束，不能归档", electionID)
	}

	results, err := s.compute(ctx, electionID)
	if err != nil {
		return "", err
	}
	key, err := s.archiver.ArchiveResults(ctx, results)
	if err != nil {
		return "", err
	}

	logging.Log.WithFields(logrus.Fields{
		"electionId": electionID,
		"key":        key,
		"ballots":    results.TotalBallots,
	}).Info("选举结果已归档")
	return key, nil
}

func (s *ResultsService) compute(ctx context.Context, electionID string) (*model.ElectionResults, error) {
	tallies, err := s.ballots.ListTallies(ctx, electionID)
	if err != nil {
		return nil, err
	}

	results := &model.ElectionResults{
		ElectionID:        electionID,
		Pairs:             make([]model.PairResult, 0, len(tallies)),
		MayorTotals:       []model.CandidateTotal{},
		DeputyMayorTotals: []model.CandidateTotal{},
		GeneratedAt:       s.now().UTC(),
	}
	mayorTotals := make(map[string]int64)
	deputyTotals := make(map[string]int64)

	for _, tc := range tallies {
		mayorID, err := s.codec.Decode(tc.EncodedMayorID)
		if err != nil {
			return nil, fmt.Errorf("解码市长选票令牌 %s 失败: %w", tc.EncodedMayorID, err)
		}
		deputyID, err := s.codec.Decode(tc.EncodedDeputyMayorID)
		if err != nil {
			return nil, fmt.Errorf("解码副市长选票令牌 %s 失败: %w", tc.EncodedDeputyMayorID, err)
		}

		results.Pairs = append(results.Pairs, model.PairResult{
			MayorID:          mayorID,
			MayorVotes:       tc.MayorVotes,
			DeputyMayorID:    deputyID,
			DeputyMayorVotes: tc.DeputyMayorVotes,
		})
		mayorTotals[mayorID] += tc.MayorVotes
		deputyTotals[deputyID] += tc.DeputyMayorVotes
		// 每张选票恰好累加一个组合计数器
		results.TotalBallots += tc.MayorVotes
	}

	sort.Slice(results.Pairs, func(i, j int) bool {
		a, b := results.Pairs[i], results.Pairs[j]
		if a.MayorVotes != b.MayorVotes {
			return a.MayorVotes > b.MayorVotes
		}
		if a.MayorID != b.MayorID {
			return a.MayorID < b.MayorID
		}
		return a.DeputyMayorID < b.DeputyMayorID
	})
	results.MayorTotals = sortedTotals(mayorTotals)
	results.DeputyMayorTotals = sortedTotals(deputyTotals)
	return results, nil
}

func sortedTotals(totals map[string]int64) []model.CandidateTotal {
	out := make([]model.CandidateTotal, 0, len(totals))
	for id, votes := range totals {
		out = append(out, model.CandidateTotal{CandidateID: id, Votes: votes})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out
}
