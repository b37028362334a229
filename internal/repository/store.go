package repository

import (
	"context"
	"time"

	"github.com/lvdashuaibi/votecore/internal/model"
)

// ScheduleTx 排期事务内可用的操作，所有读写在同一事务中完成
type ScheduleTx interface {
	GetElection(ctx context.Context, electionID string) (*model.Election, error)
	// FindOverlapping 返回与 [start, end) 相交的任一选举，没有时返回 nil
	FindOverlapping(ctx context.Context, start, end time.Time, excludeID string) (*model.Election, error)
	InsertElection(ctx context.Context, e *model.Election) error
	UpdateElection(ctx context.Context, e *model.Election) error
	DeleteElection(ctx context.Context, electionID string) error
	HasBallots(ctx context.Context, electionID string) (bool, error)
}

// ElectionStore 选举存储。WithSchedule 保证排期检查与写入在存储层串行化
type ElectionStore interface {
	WithSchedule(ctx context.Context, fn func(tx ScheduleTx) error) error
	GetElection(ctx context.Context, electionID string) (*model.Election, error)
	ListElections(ctx context.Context) ([]*model.Election, error)
	AddDisabledMunicipality(ctx context.Context, electionID, municipality string) error
}

// CandidateTx 候选人事务内可用的操作
type CandidateTx interface {
	// FindSet 返回名单编号，不存在时返回空串
	FindSet(ctx context.Context, electionID, district, municipality string) (string, error)
	CreateSet(ctx context.Context, electionID, district, municipality string) (string, error)
	GetCandidate(ctx context.Context, candidateID string) (*StoredCandidate, error)
	PartyTaken(ctx context.Context, setID string, role model.Role, party, excludeID string) (bool, error)
	InsertCandidates(ctx context.Context, setID string, role model.Role, candidates []model.Candidate) error
	UpdateCandidate(ctx context.Context, oldID string, c model.Candidate) error
	DeleteCandidate(ctx context.Context, candidateID string) error
	HasBallots(ctx context.Context, electionID string) (bool, error)
}

// StoredCandidate 候选人及其所属名单
type StoredCandidate struct {
	model.CandidateRecord
	SetID string
}

// CandidateStore 候选人存储
type CandidateStore interface {
	WithCandidates(ctx context.Context, fn func(tx CandidateTx) error) error
	GetCandidate(ctx context.Context, candidateID string) (*model.CandidateRecord, error)
	ListCandidateSets(ctx context.Context, electionID string) ([]*model.CandidateSet, error)
}

// BallotStore 选票与计票存储
type BallotStore interface {
	// RecordBallot 在同一事务中写入选票并累加组合计票，重复投票返回 DuplicateVote
	RecordBallot(ctx context.Context, b *model.Ballot) error
	// HasVoted 预检查，最终以 RecordBallot 的唯一约束为准
	HasVoted(ctx context.Context, electionID, voterID string) (bool, error)
	ListTallies(ctx context.Context, electionID string) ([]model.TallyCounter, error)
}

var (
	_ ElectionStore  = (*SQLRepository)(nil)
	_ CandidateStore = (*SQLRepository)(nil)
	_ BallotStore    = (*SQLRepository)(nil)
)
