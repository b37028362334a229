package graph

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/codec"
	"github.com/lvdashuaibi/votecore/internal/service"
	"github.com/lvdashuaibi/votecore/internal/testutil"
)

const adminToken = "secret"

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type opResult struct {
	Success bool    `json:"success"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
	ID      *string `json:"id"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo := testutil.NewSQLiteRepository(t)
	cache, _ := testutil.NewResultCache(t)
	ballotCodec, err := codec.NewFeistel(5, 4)
	require.NoError(t, err)

	results := service.NewResultsService(repo, repo, ballotCodec, cache, nil, nil)
	return NewServer(Services{
		Scheduler: service.NewElectionScheduler(repo, nil, config.LockConfig{}),
		Registry:  service.NewCandidateRegistry(repo, repo),
		Ledger:    service.NewVoteLedger(repo, repo, repo, ballotCodec, nil, results, nil),
		Results:   results,
	}, config.GraphQLConfig{Path: "/graphql"}, adminToken)
}

func do(t *testing.T, s *Server, query string, vars map[string]any, headers map[string]string) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	s.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var out gqlResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out
}

func op(t *testing.T, resp gqlResponse, field string) opResult {
	t.Helper()
	require.Empty(t, resp.Errors)
	var r opResult
	require.NoError(t, json.Unmarshal(resp.Data[field], &r))
	return r
}

const createElection = `mutation($input: ElectionInput!) {
  createElection(input: $input) { success code message id }
}`

const registerSet = `mutation($input: CandidateSetInput!) {
  registerCandidateSet(input: $input) { success code message }
}`

const castVote = `mutation($input: CastVoteInput!) {
  castVote(input: $input) { success code message }
}`

func TestElectionDayOverGraphQL(t *testing.T) {
	s := newTestServer(t)
	admin := map[string]string{HeaderAdminToken: adminToken}
	now := time.Now().UTC()

	electionInput := map[string]any{
		"electionId": "E1",
		"name":       "地方选举",
		"startTime":  now.Add(-time.Hour).Format(time.RFC3339),
		"endTime":    now.Add(time.Hour).Format(time.RFC3339),
	}

	res := op(t, do(t, s, createElection, map[string]any{"input": electionInput}, nil), "createElection")
	assert.False(t, res.Success)
	assert.Equal(t, codeUnauthorized, res.Code)

	res = op(t, do(t, s, createElection, map[string]any{"input": electionInput}, admin), "createElection")
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.ID)
	assert.Equal(t, "E1", *res.ID)

	res = op(t, do(t, s, registerSet, map[string]any{"input": map[string]any{
		"electionId":   "E1",
		"district":     "Bagmati",
		"municipality": "Kathmandu",
		"mayorCandidates": []map[string]string{
			{"candidateId": "101", "name": "Balen Shah", "party": "Independent"},
		},
		"deputyMayorCandidates": []map[string]string{
			{"candidateId": "201", "name": "Sunita Dangol", "party": "UML"},
		},
	}}, admin), "registerCandidateSet")
	require.True(t, res.Success, res.Message)

	voter := map[string]string{
		HeaderVoterID:           "voter-1",
		HeaderVoterDistrict:     "Bagmati",
		HeaderVoterMunicipality: "Kathmandu",
	}
	ballot := map[string]any{"input": map[string]any{
		"electionId":       "E1",
		"mayorId":          "101",
		"mayorParty":       "Independent",
		"deputyMayorId":    "201",
		"deputyMayorParty": "UML",
	}}

	res = op(t, do(t, s, castVote, ballot, voter), "castVote")
	require.True(t, res.Success, res.Message)

	res = op(t, do(t, s, castVote, ballot, voter), "castVote")
	assert.False(t, res.Success)
	assert.Equal(t, "DUPLICATE_VOTE", res.Code)

	res = op(t, do(t, s, castVote, ballot, nil), "castVote")
	assert.Equal(t, "VALIDATION_ERROR", res.Code, "missing voter identity")

	resp := do(t, s, `query { results(electionId: "E1") { totalBallots pairs { mayorId mayorVotes deputyMayorId deputyMayorVotes } } }`, nil, nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"totalBallots":1,"pairs":[{"mayorId":"101","mayorVotes":1,"deputyMayorId":"201","deputyMayorVotes":1}]}`, string(resp.Data["results"]))

	resp = do(t, s, `query { election(id: "E1") { name status disabledMunicipalities } missing: election(id: "E404") { name } }`, nil, nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"name":"地方选举","status":"ACTIVE","disabledMunicipalities":[]}`, string(resp.Data["election"]))
	assert.JSONEq(t, `null`, string(resp.Data["missing"]))

	res = op(t, do(t, s, `mutation { disableMunicipality(electionId: "E1", municipality: "Kathmandu") { success code message } }`, nil, admin), "disableMunicipality")
	require.True(t, res.Success, res.Message)

	voter[HeaderVoterID] = "voter-2"
	res = op(t, do(t, s, castVote, ballot, voter), "castVote")
	assert.Equal(t, "VOTING_CLOSED", res.Code)
}

func TestInvalidTimeIsValidationError(t *testing.T) {
	s := newTestServer(t)
	res := op(t, do(t, s, createElection, map[string]any{"input": map[string]any{
		"name":      "x",
		"startTime": "yesterday",
		"endTime":   "tomorrow",
	}}, map[string]string{HeaderAdminToken: adminToken}), "createElection")
	assert.False(t, res.Success)
	assert.Equal(t, "VALIDATION_ERROR", res.Code)
	assert.Nil(t, res.ID)
}

func TestAdminTokenMustMatchExactly(t *testing.T) {
	s := newTestServer(t)
	input := map[string]any{"input": map[string]any{
		"electionId": "E1",
		"name":       "地方选举",
		"startTime":  "2026-05-13T07:00:00Z",
		"endTime":    "2026-05-13T17:00:00Z",
	}}

	for _, token := range []string{"secre", "secret ", "SECRET", "secretsecret"} {
		res := op(t, do(t, s, createElection, input, map[string]string{HeaderAdminToken: token}), "createElection")
		assert.False(t, res.Success, token)
		assert.Equal(t, codeUnauthorized, res.Code, token)
	}

	res := op(t, do(t, s, createElection, input, map[string]string{HeaderAdminToken: adminToken}), "createElection")
	assert.True(t, res.Success, res.Message)
}
