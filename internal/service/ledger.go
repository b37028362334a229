package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/codec"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/metrics"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/repository"
)

// EventPublisher 投票事件发布
type EventPublisher interface {
	PublishBallotCast(ctx context.Context, event *model.BallotCastEvent) error
}

// VoteLedger 记录选票。每位选民在每场选举中最多一张选票，由存储层唯一约束保证，
// 写入前的查询只用于让重复投票优先于其他校验错误返回
type VoteLedger struct {
	elections  repository.ElectionStore
	candidates repository.CandidateStore
	ballots    repository.BallotStore
	codec      codec.BallotCodec
	events     EventPublisher
	results    *ResultsService
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewVoteLedger events 可为 nil，结果缓存总是在选票写入后同步清除
func NewVoteLedger(
	elections repository.ElectionStore,
	candidates repository.CandidateStore,
	ballots repository.BallotStore,
	ballotCodec codec.BallotCodec,
	events EventPublisher,
	results *ResultsService,
	m *metrics.Metrics,
) *VoteLedger {
	return &VoteLedger{
		elections:  elections,
		candidates: candidates,
		ballots:    ballots,
		codec:      ballotCodec,
		events:     events,
		results:    results,
		metrics:    m,
		now:        time.Now,
	}
}

// WithClock 替换时钟，供测试使用
func (l *VoteLedger) WithClock(now func() time.Time) *VoteLedger {
	l.now = now
	return l
}

// CastVote 投票。成功时不回显任何选票内容
func (l *VoteLedger) CastVote(ctx context.Context, req model.CastVoteRequest) error {
	start := time.Now()
	if err := l.castVote(ctx, req); err != nil {
		l.metrics.BallotRejected(string(apperr.CodeOf(err)))
		return err
	}
	l.metrics.BallotCast(req.ElectionID, time.Since(start))
	return nil
}

func (l *VoteLedger) castVote(ctx context.Context, req model.CastVoteRequest) error {
	if err := validateCastVote(&req); err != nil {
		return err
	}

	election, err := l.elections.GetElection(ctx, req.ElectionID)
	if err != nil {
		return err
	}
	now := l.now()
	if !election.ActiveAt(now) {
		return apperr.VotingClosed("选举 %s 当前不在投票时间内", req.ElectionID)
	}
	if election.IsMunicipalityDisabled(req.Municipality) {
		return apperr.VotingClosed("%s 的投票已被关闭", req.Municipality)
	}
	if !election.Covers(req.District, req.Municipality) {
		return apperr.VotingClosed("选举 %s 不包含 %s/%s", req.ElectionID, req.District, req.Municipality)
	}

	voted, err := l.ballots.HasVoted(ctx, req.ElectionID, req.VoterID)
	if err != nil {
		return err
	}
	if voted {
		return apperr.DuplicateVote("选民 %s 已在选举 %s 中投票", req.VoterID, req.ElectionID)
	}

	if err := l.checkChoice(ctx, req, req.MayorID, model.RoleMayor, req.MayorParty); err != nil {
		return err
	}
	if err := l.checkChoice(ctx, req, req.DeputyMayorID, model.RoleDeputyMayor, req.DeputyMayorParty); err != nil {
		return err
	}

	encodedMayor, err := l.codec.Encode(req.MayorID)
	if err != nil {
		return fmt.Errorf("编码市长候选人失败: %w", err)
	}
	encodedDeputy, err := l.codec.Encode(req.DeputyMayorID)
	if err != nil {
		return fmt.Errorf("编码副市长候选人失败: %w", err)
	}

	ballot := &model.Ballot{
		BallotID:             uuid.NewString(),
		VoterID:              req.VoterID,
		ElectionID:           req.ElectionID,
		District:             req.District,
		Municipality:         req.Municipality,
		EncodedMayorID:       encodedMayor,
		EncodedDeputyMayorID: encodedDeputy,
		MayorParty:           req.MayorParty,
		DeputyMayorParty:     req.DeputyMayorParty,
		Timestamp:            now.UTC(),
	}
	if err := l.ballots.RecordBallot(ctx, ballot); err != nil {
		return err
	}

	logging.Log.WithFields(logrus.Fields{
		"electionId":   req.ElectionID,
		"municipality": req.Municipality,
	}).Debug("选票已记录")

	l.notify(ctx, &model.BallotCastEvent{
		ElectionID:   req.ElectionID,
		Municipality: req.Municipality,
		CastAt:       ballot.Timestamp,
	})
	return nil
}

// checkChoice 所选候选人须属于选民所在市的名单、职位正确且党派一致
func (l *VoteLedger) checkChoice(ctx context.Context, req model.CastVoteRequest, candidateID string, role model.Role, party string) error {
	c, err := l.candidates.GetCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("候选人 %s 不存在", candidateID)
		}
		return err
	}
	if c.ElectionID != req.ElectionID || c.District != req.District || c.Municipality != req.Municipality {
		return apperr.Validation("候选人 %s 不在 %s/%s 的名单中", candidateID, req.District, req.Municipality)
	}
	if c.Role != role {
		return apperr.Validation("候选人 %s 不是 %s 候选人", candidateID, role)
	}
	if c.Party != party {
		return apperr.Validation("候选人 %s 的党派与所选党派不一致", candidateID)
	}
	return nil
}

// notify 同步清除本实例可见的结果缓存，再发布投票事件供其他实例的消费者处理
func (l *VoteLedger) notify(ctx context.Context, event *model.BallotCastEvent) {
	if l.results != nil {
		l.results.Invalidate(ctx, event.ElectionID)
	}
	if l.events == nil {
		return
	}
	if err := l.events.PublishBallotCast(ctx, event); err != nil {
		logging.Log.WithField("electionId", event.ElectionID).Warnf("发送投票事件到Kafka失败: %v", err)
	}
}

func validateCastVote(req *model.CastVoteRequest) error {
	fields := []*string{
		&req.VoterID, &req.ElectionID, &req.District, &req.Municipality,
		&req.MayorID, &req.DeputyMayorID, &req.MayorParty, &req.DeputyMayorParty,
	}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
		if *f == "" {
			return apperr.Validation("投票请求缺少必填字段")
		}
	}
	return nil
}
