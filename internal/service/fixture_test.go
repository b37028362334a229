package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/codec"
	"github.com/lvdashuaibi/votecore/internal/metrics"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/repository"
	"github.com/lvdashuaibi/votecore/internal/testutil"
)

var t0 = time.Date(2026, 5, 13, 7, 0, 0, 0, time.UTC)

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*model.ElectionResults
}

func (a *fakeArchiver) ArchiveResults(_ context.Context, results *model.ElectionResults) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, results)
	return "results/" + results.ElectionID + ".json", nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.BallotCastEvent
	err    error
}

func (p *fakePublisher) PublishBallotCast(_ context.Context, event *model.BallotCastEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	repo      *repository.SQLRepository
	cache     *repository.ResultCache
	redis     *miniredis.Miniredis
	clock     *testutil.Clock
	codec     *codec.Feistel
	archiver  *fakeArchiver
	publisher *fakePublisher
	metrics   *metrics.Metrics

	pooledConns int

	scheduler *ElectionScheduler
	registry  *CandidateRegistry
	results   *ResultsService
	ledger    *VoteLedger
}

type fixtureOption func(f *fixture)

// withPublisher 投票事件改为发往 fakePublisher
func withPublisher(p *fakePublisher) fixtureOption {
	return func(f *fixture) { f.publisher = p }
}

// withPooledStore 使用多连接的SQLite，并发用例在真实的连接池上运行
func withPooledStore(conns int) fixtureOption {
	return func(f *fixture) { f.pooledConns = conns }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		clock:    testutil.NewClock(t0),
		archiver: &fakeArchiver{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.cache, f.redis = testutil.NewResultCache(t)
	for _, opt := range opts {
		opt(f)
	}
	if f.pooledConns > 0 {
		f.repo = testutil.NewPooledSQLiteRepository(t, f.pooledConns)
	} else {
		f.repo = testutil.NewSQLiteRepository(t)
	}

	var err error
	f.codec, err = codec.NewFeistel(5, 4)
	require.NoError(t, err)

	f.scheduler = NewElectionScheduler(f.repo, nil, config.LockConfig{}).WithClock(f.clock.Now)
	f.registry = NewCandidateRegistry(f.repo, f.repo)
	f.results = NewResultsService(f.repo, f.repo, f.codec, f.cache, f.archiver, f.metrics).WithClock(f.clock.Now)

	var publisher EventPublisher
	if f.publisher != nil {
		publisher = f.publisher
	}
	f.ledger = NewVoteLedger(f.repo, f.repo, f.repo, f.codec, publisher, f.results, f.metrics).WithClock(f.clock.Now)
	return f
}

func (f *fixture) createElection(t *testing.T, id string, start, end time.Time) *model.Election {
	t.Helper()
	e, err := f.scheduler.Create(context.Background(), ScheduleRequest{
		ElectionID: id,
		Name:       "选举 " + id,
		StartTime:  start,
		EndTime:    end,
	})
	require.NoError(t, err)
	return e
}

// kathmandu 登记加德满都的候选人名单：市长 101/102，副市长 201/202
func (f *fixture) kathmandu(t *testing.T, electionID string) {
	t.Helper()
	_, err := f.registry.RegisterCandidateSet(context.Background(), RegisterSetRequest{
		ElectionID:   electionID,
		District:     "Bagmati",
		Municipality: "Kathmandu",
		MayorCandidates: []model.Candidate{
			{CandidateID: "101", Name: "Balen Shah", Party: "Independent"},
			{CandidateID: "102", Name: "Keshav Sthapit", Party: "UML"},
		},
		DeputyMayorCandidates: []model.Candidate{
			{CandidateID: "201", Name: "Sunita Dangol", Party: "UML"},
			{CandidateID: "202", Name: "Rameshwor Shrestha", Party: "Independent"},
		},
	})
	require.NoError(t, err)
}

func vote(voter, electionID string) model.CastVoteRequest {
	return model.CastVoteRequest{
		VoterID:          voter,
		ElectionID:       electionID,
		District:         "Bagmati",
		Municipality:     "Kathmandu",
		MayorID:          "101",
		DeputyMayorID:    "201",
		MayorParty:       "Independent",
		DeputyMayorParty: "UML",
	}
}
