package graph

import (
	"math"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/model"
)

// ElectionResolver 选举解析器
type ElectionResolver struct {
	e      *model.Election
	status model.ElectionStatus
}

func (r *ElectionResolver) ElectionID() graphql.ID {
	return graphql.ID(r.e.ElectionID)
}

func (r *ElectionResolver) Name() string {
	return r.e.Name
}

func (r *ElectionResolver) StartTime() string {
	return r.e.StartTime.Format(time.RFC3339)
}

func (r *ElectionResolver) EndTime() string {
	return r.e.EndTime.Format(time.RFC3339)
}

func (r *ElectionResolver) District() *string {
	return optional(r.e.District)
}

func (r *ElectionResolver) Municipality() *string {
	return optional(r.e.Municipality)
}

func (r *ElectionResolver) DisabledMunicipalities() []string {
	return r.e.DisabledMunicipalities
}

func (r *ElectionResolver) Status() string {
	return string(r.status)
}

// CandidateResolver 候选人解析器
type CandidateResolver struct {
	c *model.CandidateRecord
}

func (r *CandidateResolver) CandidateID() graphql.ID {
	return graphql.ID(r.c.CandidateID)
}

func (r *CandidateResolver) Name() string {
	return r.c.Name
}

func (r *CandidateResolver) Party() string {
	return r.c.Party
}

func (r *CandidateResolver) Role() string {
	return string(r.c.Role)
}

func (r *CandidateResolver) ElectionID() graphql.ID {
	return graphql.ID(r.c.ElectionID)
}

func (r *CandidateResolver) District() string {
	return r.c.District
}

func (r *CandidateResolver) Municipality() string {
	return r.c.Municipality
}

// CandidateEntryResolver 名单中的候选人条目
type CandidateEntryResolver struct {
	c model.Candidate
}

func (r *CandidateEntryResolver) CandidateID() graphql.ID {
	return graphql.ID(r.c.CandidateID)
}

func (r *CandidateEntryResolver) Name() string {
	return r.c.Name
}

func (r *CandidateEntryResolver) Party() string {
	return r.c.Party
}

// CandidateSetResolver 候选人名单解析器
type CandidateSetResolver struct {
	s *model.CandidateSet
}

func (r *CandidateSetResolver) ElectionID() graphql.ID {
	return graphql.ID(r.s.ElectionID)
}

func (r *CandidateSetResolver) District() string {
	return r.s.District
}

func (r *CandidateSetResolver) Municipality() string {
	return r.s.Municipality
}

func (r *CandidateSetResolver) MayorCandidates() []*CandidateEntryResolver {
	return entries(r.s.MayorCandidates)
}

func (r *CandidateSetResolver) DeputyMayorCandidates() []*CandidateEntryResolver {
	return entries(r.s.DeputyMayorCandidates)
}

func entries(list []model.Candidate) []*CandidateEntryResolver {
	out := make([]*CandidateEntryResolver, len(list))
	for i, c := range list {
		out[i] = &CandidateEntryResolver{c: c}
	}
	return out
}

// ResultsResolver 计票结果解析器
type ResultsResolver struct {
	r *model.ElectionResults
}

func (r *ResultsResolver) ElectionID() graphql.ID {
	return graphql.ID(r.r.ElectionID)
}

func (r *ResultsResolver) TotalBallots() int32 {
	return clampInt32(r.r.TotalBallots)
}

func (r *ResultsResolver) Pairs() []*PairResultResolver {
	out := make([]*PairResultResolver, len(r.r.Pairs))
	for i, p := range r.r.Pairs {
		out[i] = &PairResultResolver{p: p}
	}
	return out
}

func (r *ResultsResolver) MayorTotals() []*CandidateTotalResolver {
	return totals(r.r.MayorTotals)
}

func (r *ResultsResolver) DeputyMayorTotals() []*CandidateTotalResolver {
	return totals(r.r.DeputyMayorTotals)
}

func (r *ResultsResolver) GeneratedAt() string {
	return r.r.GeneratedAt.Format(time.RFC3339)
}

type PairResultResolver struct {
	p model.PairResult
}

func (r *PairResultResolver) MayorID() graphql.ID {
	return graphql.ID(r.p.MayorID)
}

func (r *PairResultResolver) MayorVotes() int32 {
	return clampInt32(r.p.MayorVotes)
}

func (r *PairResultResolver) DeputyMayorID() graphql.ID {
	return graphql.ID(r.p.DeputyMayorID)
}

func (r *PairResultResolver) DeputyMayorVotes() int32 {
	return clampInt32(r.p.DeputyMayorVotes)
}

type CandidateTotalResolver struct {
	t model.CandidateTotal
}

func (r *CandidateTotalResolver) CandidateID() graphql.ID {
	return graphql.ID(r.t.CandidateID)
}

func (r *CandidateTotalResolver) Votes() int32 {
	return clampInt32(r.t.Votes)
}

func totals(list []model.CandidateTotal) []*CandidateTotalResolver {
	out := make([]*CandidateTotalResolver, len(list))
	for i, t := range list {
		out[i] = &CandidateTotalResolver{t: t}
	}
	return out
}

// OperationResultResolver 变更操作的结构化结果
type OperationResultResolver struct {
	success bool
	code    string
	message string
	id      string
}

func operationResult(err error, id string) *OperationResultResolver {
	return &OperationResultResolver{
		success: err == nil,
		code:    string(apperr.CodeOf(err)),
		message: apperr.Message(err),
		id:      id,
	}
}

func (r *OperationResultResolver) Success() bool {
	return r.success
}

func (r *OperationResultResolver) Code() string {
	return r.code
}

func (r *OperationResultResolver) Message() string {
	return r.message
}

func (r *OperationResultResolver) ID() *string {
	if !r.success {
		return nil
	}
	return optional(r.id)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// clampInt32 GraphQL 的 Int 只有32位，超出时取边界值
func clampInt32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}
