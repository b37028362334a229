package graph

import (
	"context"
	"net/http"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/service"
)

// 会话层在转发请求时写入的选民身份头
const (
	HeaderVoterID           = "X-Voter-Id"
	HeaderVoterDistrict     = "X-Voter-District"
	HeaderVoterMunicipality = "X-Voter-Municipality"
	HeaderAdminToken        = "X-Admin-Token"
)

const schemaString = `
schema {
  query: Query
  mutation: Mutation
}

type Election {
  electionId: ID!
  name: String!
  startTime: String!
  endTime: String!
  district: String
  municipality: String
  disabledMunicipalities: [String!]!
  status: String!
}

type Candidate {
  candidateId: ID!
  name: String!
  party: String!
  role: String!
  electionId: ID!
  district: String!
  municipality: String!
}

type CandidateEntry {
  candidateId: ID!
  name: String!
  party: String!
}

type CandidateSet {
  electionId: ID!
  district: String!
  municipality: String!
  mayorCandidates: [CandidateEntry!]!
  deputyMayorCandidates: [CandidateEntry!]!
}

type PairResult {
  mayorId: ID!
  mayorVotes: Int!
  deputyMayorId: ID!
  deputyMayorVotes: Int!
}

type CandidateTotal {
  candidateId: ID!
  votes: Int!
}

type Results {
  electionId: ID!
  totalBallots: Int!
  pairs: [PairResult!]!
  mayorTotals: [CandidateTotal!]!
  deputyMayorTotals: [CandidateTotal!]!
  generatedAt: String!
}

type OperationResult {
  success: Boolean!
  code: String!
  message: String!
  # 创建类操作返回新实体的编号
  id: String
}

input CastVoteInput {
  electionId: ID!
  mayorId: ID!
  mayorParty: String!
  deputyMayorId: ID!
  deputyMayorParty: String!
}

input ElectionInput {
  electionId: String
  name: String!
  startTime: String!
  endTime: String!
  district: String
  municipality: String
}

input CandidateInput {
  candidateId: ID!
  name: String!
  party: String!
}

input CandidateSetInput {
  electionId: ID!
  district: String!
  municipality: String!
  mayorCandidates: [CandidateInput!]!
  deputyMayorCandidates: [CandidateInput!]!
}

input UpdateCandidateInput {
  name: String!
  party: String!
  newCandidateId: String
}

type Query {
  elections: [Election!]!
  election(id: ID!): Election
  votingAllowed(electionId: ID!, municipality: String!): Boolean!
  candidate(id: ID!): Candidate
  candidateSets(electionId: ID!): [CandidateSet!]!
  results(electionId: ID!): Results!
}

type Mutation {
  # 选民身份取自请求头
  castVote(input: CastVoteInput!): OperationResult!

  # 以下操作需要 X-Admin-Token
  createElection(input: ElectionInput!): OperationResult!
  editElection(id: ID!, input: ElectionInput!): OperationResult!
  terminateElection(id: ID!): OperationResult!
  deleteElection(id: ID!): OperationResult!
  disableMunicipality(electionId: ID!, municipality: String!): OperationResult!
  registerCandidateSet(input: CandidateSetInput!): OperationResult!
  updateCandidate(id: ID!, input: UpdateCandidateInput!): OperationResult!
  removeCandidate(id: ID!): OperationResult!
  archiveResults(electionId: ID!): OperationResult!
}
`

// Services GraphQL解析器依赖的服务
type Services struct {
	Scheduler *service.ElectionScheduler
	Registry  *service.CandidateRegistry
	Ledger    *service.VoteLedger
	Results   *service.ResultsService
}

// Server GraphQL服务
type Server struct {
	schema   *graphql.Schema
	handler  *relay.Handler
	resolver *Resolver
	path     string
}

// NewServer 解析Schema并创建GraphQL服务
func NewServer(svc Services, cfg config.GraphQLConfig, adminToken string) *Server {
	resolver := &Resolver{svc: svc, adminToken: adminToken}
	schema := graphql.MustParseSchema(schemaString, resolver)

	return &Server{
		schema:   schema,
		handler:  &relay.Handler{Schema: schema},
		resolver: resolver,
		path:     cfg.Path,
	}
}

// Path GraphQL端点路径
func (s *Server) Path() string {
	return s.path
}

// Handler 读取身份头后交给relay处理
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), r.Header)))
	})
}

// Playground GraphQL Playground页面
func (s *Server) Playground() http.Handler {
	page := strings.Replace(playgroundHTML, "{{endpoint}}", s.path, 1)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	})
}

type identityKey struct{}

// identity 单次请求的调用方身份
type identity struct {
	voterID      string
	district     string
	municipality string
	adminToken   string
}

func withIdentity(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{
		voterID:      h.Get(HeaderVoterID),
		district:     h.Get(HeaderVoterDistrict),
		municipality: h.Get(HeaderVoterMunicipality),
		adminToken:   h.Get(HeaderAdminToken),
	})
}

func identityFrom(ctx context.Context) identity {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Vote Core GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root"></div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '{{endpoint}}'
      })
    })</script>
</body>
</html>
`
