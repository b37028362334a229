package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/model"
)

func candidateIDs(list []model.Candidate) []string {
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.CandidateID)
	}
	return ids
}

func TestRegisterCandidateSet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createElection(t, "E1", t0.Add(time.Hour), t0.Add(2*time.Hour))
	f.kathmandu(t, "E1")

	sets, err := f.registry.ListCandidateSets(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"101", "102"}, candidateIDs(sets[0].MayorCandidates))
	assert.Equal(t, []string{"201", "202"}, candidateIDs(sets[0].DeputyMayorCandidates))

	t.Run("append keeps order", func(t *testing.T) {
		set, err := f.registry.RegisterCandidateSet(ctx, RegisterSetRequest{
			ElectionID:      "E1",
			District:        "Bagmati",
			Municipality:    "Kathmandu",
			MayorCandidates: []model.Candidate{{CandidateID: "103", Name: "Gagan Thapa", Party: "Congress"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"101", "102", "103"}, candidateIDs(set.MayorCandidates))
		assert.Equal(t, []string{"201", "202"}, candidateIDs(set.DeputyMayorCandidates))
	})

	t.Run("same party in both roles", func(t *testing.T) {
		c, err := f.registry.GetCandidate(ctx, "201")
		require.NoError(t, err)
		assert.Equal(t, model.RoleDeputyMayor, c.Role)
		assert.Equal(t, "UML", c.Party)
		assert.Equal(t, "Kathmandu", c.Municipality)
	})

	cases := []struct {
		name    string
		req     RegisterSetRequest
		wantErr error
	}{
		{
			name: "party already on role",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Kathmandu",
				MayorCandidates: []model.Candidate{{CandidateID: "104", Name: "A", Party: "UML"}},
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "party repeated in request",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates: []model.Candidate{
					{CandidateID: "301", Name: "A", Party: "RSP"},
					{CandidateID: "302", Name: "B", Party: "RSP"},
				},
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "id used in another municipality",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates: []model.Candidate{{CandidateID: "101", Name: "A", Party: "RSP"}},
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "id repeated across roles",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates:       []model.Candidate{{CandidateID: "301", Name: "A", Party: "RSP"}},
				DeputyMayorCandidates: []model.Candidate{{CandidateID: "301", Name: "B", Party: "UML"}},
			},
			wantErr: apperr.ErrConflict,
		},
		{
			name: "leading zero",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates: []model.Candidate{{CandidateID: "0301", Name: "A", Party: "RSP"}},
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "non numeric id",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates: []model.Candidate{{CandidateID: "M-1", Name: "A", Party: "RSP"}},
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "missing party",
			req: RegisterSetRequest{
				ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates: []model.Candidate{{CandidateID: "301", Name: "A"}},
			},
			wantErr: apperr.ErrValidation,
		},
		{
			name:    "empty lists",
			req:     RegisterSetRequest{ElectionID: "E1", District: "Bagmati", Municipality: "Lalitpur"},
			wantErr: apperr.ErrValidation,
		},
		{
			name: "unknown election",
			req: RegisterSetRequest{
				ElectionID: "nope", District: "Bagmati", Municipality: "Lalitpur",
				MayorCandidates: []model.Candidate{{CandidateID: "301", Name: "A", Party: "RSP"}},
			},
			wantErr: apperr.ErrNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.registry.RegisterCandidateSet(ctx, tc.req)
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}

	// 失败的登记不能留下部分数据
	sets, err = f.registry.ListCandidateSets(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestUpdateCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createElection(t, "E1", t0.Add(time.Hour), t0.Add(2*time.Hour))
	f.kathmandu(t, "E1")

	rec, err := f.registry.UpdateCandidate(ctx, "101", UpdateCandidateRequest{Name: "Balendra Shah", NewCandidateID: "105", Party: "Independent"})
	require.NoError(t, err)
	assert.Equal(t, "105", rec.CandidateID)
	assert.Equal(t, model.RoleMayor, rec.Role)

	sets, err := f.registry.ListCandidateSets(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"105", "102"}, candidateIDs(sets[0].MayorCandidates), "position is preserved")
	assert.Equal(t, "Balendra Shah", sets[0].MayorCandidates[0].Name)

	_, err = f.registry.GetCandidate(ctx, "101")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.registry.UpdateCandidate(ctx, "102", UpdateCandidateRequest{Name: "Keshav Sthapit", Party: "Independent"})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "party taken by 105")

	_, err = f.registry.UpdateCandidate(ctx, "102", UpdateCandidateRequest{Name: "Keshav Sthapit", NewCandidateID: "201", Party: "UML"})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "id belongs to a deputy mayor")

	_, err = f.registry.UpdateCandidate(ctx, "999", UpdateCandidateRequest{Name: "X", Party: "Y"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	rec, err = f.registry.UpdateCandidate(ctx, "102", UpdateCandidateRequest{Name: "Keshav Sthapit", Party: "Congress"})
	require.NoError(t, err)
	assert.Equal(t, "102", rec.CandidateID)
	assert.Equal(t, "Congress", rec.Party)
}

func TestRemoveCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createElection(t, "E1", t0.Add(time.Hour), t0.Add(2*time.Hour))
	f.kathmandu(t, "E1")

	require.NoError(t, f.registry.RemoveCandidate(ctx, "101"))
	assert.True(t, errors.Is(f.registry.RemoveCandidate(ctx, "101"), apperr.ErrNotFound))

	sets, err := f.registry.ListCandidateSets(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"102"}, candidateIDs(sets[0].MayorCandidates))

	// 删除后党派空出，可重新登记
	_, err = f.registry.RegisterCandidateSet(ctx, RegisterSetRequest{
		ElectionID: "E1", District: "Bagmati", Municipality: "Kathmandu",
		MayorCandidates: []model.Candidate{{CandidateID: "101", Name: "Balen Shah", Party: "Independent"}},
	})
	require.NoError(t, err)
}

func TestCandidateIDsAreFrozenOnceVotingStarts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createElection(t, "E1", t0, t0.Add(time.Hour))
	f.kathmandu(t, "E1")
	require.NoError(t, f.ledger.CastVote(ctx, vote("voter-1", "E1")))

	_, err := f.registry.UpdateCandidate(ctx, "101", UpdateCandidateRequest{Name: "Balen Shah", NewCandidateID: "105", Party: "Independent"})
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)

	err = f.registry.RemoveCandidate(ctx, "101")
	assert.True(t, errors.Is(err, apperr.ErrConflict), "got %v", err)
	err = f.registry.RemoveCandidate(ctx, "102")
	assert.True(t, errors.Is(err, apperr.ErrConflict), "candidates without votes are frozen too")

	// 不涉及编号的修改仍然允许
	rec, err := f.registry.UpdateCandidate(ctx, "101", UpdateCandidateRequest{Name: "Balendra Shah", Party: "Independent"})
	require.NoError(t, err)
	assert.Equal(t, "101", rec.CandidateID)

	_, err = f.registry.RegisterCandidateSet(ctx, RegisterSetRequest{
		ElectionID: "E1", District: "Bagmati", Municipality: "Kathmandu",
		MayorCandidates: []model.Candidate{{CandidateID: "106", Name: "Sirjana Singh", Party: "Congress"}},
	})
	require.NoError(t, err)

	results, err := f.results.GetResults(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, results.Pairs, 1)
	assert.Equal(t, "101", results.Pairs[0].MayorID)
	assert.Equal(t, int64(1), results.Pairs[0].MayorVotes)
}
