package graph

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/sirupsen/logrus"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/service"
)

const codeUnauthorized = "UNAUTHORIZED"

// Resolver GraphQL根解析器
type Resolver struct {
	svc        Services
	adminToken string
}

// 输入类型

type CastVoteInput struct {
	ElectionID       graphql.ID
	MayorID          graphql.ID
	MayorParty       string
	DeputyMayorID    graphql.ID
	DeputyMayorParty string
}

type ElectionInput struct {
	ElectionID   *string
	Name         string
	StartTime    string
	EndTime      string
	District     *string
	Municipality *string
}

type CandidateInput struct {
	CandidateID graphql.ID
	Name        string
	Party       string
}

type CandidateSetInput struct {
	ElectionID            graphql.ID
	District              string
	Municipality          string
	MayorCandidates       []CandidateInput
	DeputyMayorCandidates []CandidateInput
}

type UpdateCandidateInput struct {
	Name           string
	Party          string
	NewCandidateID *string
}

// 查询

func (r *Resolver) Elections(ctx context.Context) ([]*ElectionResolver, error) {
	elections, err := r.svc.Scheduler.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ElectionResolver, len(elections))
	for i, e := range elections {
		out[i] = &ElectionResolver{e: e, status: r.svc.Scheduler.Status(e)}
	}
	return out, nil
}

func (r *Resolver) Election(ctx context.Context, args struct{ ID graphql.ID }) (*ElectionResolver, error) {
	e, err := r.svc.Scheduler.Get(ctx, string(args.ID))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ElectionResolver{e: e, status: r.svc.Scheduler.Status(e)}, nil
}

func (r *Resolver) VotingAllowed(ctx context.Context, args struct {
	ElectionID   graphql.ID
	Municipality string
}) (bool, error) {
	return r.svc.Scheduler.IsVotingAllowed(ctx, string(args.ElectionID), args.Municipality, time.Now())
}

func (r *Resolver) Candidate(ctx context.Context, args struct{ ID graphql.ID }) (*CandidateResolver, error) {
	c, err := r.svc.Registry.GetCandidate(ctx, string(args.ID))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &CandidateResolver{c: c}, nil
}

func (r *Resolver) CandidateSets(ctx context.Context, args struct{ ElectionID graphql.ID }) ([]*CandidateSetResolver, error) {
	sets, err := r.svc.Registry.ListCandidateSets(ctx, string(args.ElectionID))
	if err != nil {
		return nil, err
	}
	out := make([]*CandidateSetResolver, len(sets))
	for i, s := range sets {
		out[i] = &CandidateSetResolver{s: s}
	}
	return out, nil
}

func (r *Resolver) Results(ctx context.Context, args struct{ ElectionID graphql.ID }) (*ResultsResolver, error) {
	results, err := r.svc.Results.GetResults(ctx, string(args.ElectionID))
	if err != nil {
		return nil, err
	}
	return &ResultsResolver{r: results}, nil
}

// 变更

// CastVote 投票，成功时不回显选票内容
func (r *Resolver) CastVote(ctx context.Context, args struct{ Input CastVoteInput }) *OperationResultResolver {
	voter := identityFrom(ctx)
	err := r.svc.Ledger.CastVote(ctx, model.CastVoteRequest{
		VoterID:          voter.voterID,
		ElectionID:       string(args.Input.ElectionID),
		District:         voter.district,
		Municipality:     voter.municipality,
		MayorID:          string(args.Input.MayorID),
		DeputyMayorID:    string(args.Input.DeputyMayorID),
		MayorParty:       args.Input.MayorParty,
		DeputyMayorParty: args.Input.DeputyMayorParty,
	})
	if err != nil {
		logging.Log.WithFields(logrus.Fields{
			"electionId": args.Input.ElectionID,
			"code":       apperr.CodeOf(err),
		}).Info("投票被拒绝")
	}
	return operationResult(err, "")
}

func (r *Resolver) CreateElection(ctx context.Context, args struct{ Input ElectionInput }) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	req, err := args.Input.toRequest()
	if err != nil {
		return operationResult(err, "")
	}
	e, err := r.svc.Scheduler.Create(ctx, req)
	if err != nil {
		return operationResult(err, "")
	}
	return operationResult(nil, e.ElectionID)
}

func (r *Resolver) EditElection(ctx context.Context, args struct {
	ID    graphql.ID
	Input ElectionInput
}) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	req, err := args.Input.toRequest()
	if err != nil {
		return operationResult(err, "")
	}
	req.ElectionID = string(args.ID)
	_, err = r.svc.Scheduler.Edit(ctx, req)
	return operationResult(err, req.ElectionID)
}

func (r *Resolver) TerminateElection(ctx context.Context, args struct{ ID graphql.ID }) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	_, err := r.svc.Scheduler.Terminate(ctx, string(args.ID))
	return operationResult(err, string(args.ID))
}

func (r *Resolver) DeleteElection(ctx context.Context, args struct{ ID graphql.ID }) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	return operationResult(r.svc.Scheduler.Delete(ctx, string(args.ID)), string(args.ID))
}

func (r *Resolver) DisableMunicipality(ctx context.Context, args struct {
	ElectionID   graphql.ID
	Municipality string
}) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	err := r.svc.Scheduler.DisableMunicipality(ctx, string(args.ElectionID), args.Municipality)
	return operationResult(err, string(args.ElectionID))
}

func (r *Resolver) RegisterCandidateSet(ctx context.Context, args struct{ Input CandidateSetInput }) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	_, err := r.svc.Registry.RegisterCandidateSet(ctx, service.RegisterSetRequest{
		ElectionID:            string(args.Input.ElectionID),
		District:              args.Input.District,
		Municipality:          args.Input.Municipality,
		MayorCandidates:       toCandidates(args.Input.MayorCandidates),
		DeputyMayorCandidates: toCandidates(args.Input.DeputyMayorCandidates),
	})
	return operationResult(err, "")
}

func (r *Resolver) UpdateCandidate(ctx context.Context, args struct {
	ID    graphql.ID
	Input UpdateCandidateInput
}) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	req := service.UpdateCandidateRequest{Name: args.Input.Name, Party: args.Input.Party}
	if args.Input.NewCandidateID != nil {
		req.NewCandidateID = *args.Input.NewCandidateID
	}
	rec, err := r.svc.Registry.UpdateCandidate(ctx, string(args.ID), req)
	if err != nil {
		return operationResult(err, "")
	}
	return operationResult(nil, rec.CandidateID)
}

func (r *Resolver) RemoveCandidate(ctx context.Context, args struct{ ID graphql.ID }) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	return operationResult(r.svc.Registry.RemoveCandidate(ctx, string(args.ID)), string(args.ID))
}

func (r *Resolver) ArchiveResults(ctx context.Context, args struct{ ElectionID graphql.ID }) *OperationResultResolver {
	if res := r.requireAdmin(ctx); res != nil {
		return res
	}
	key, err := r.svc.Results.ArchiveResults(ctx, string(args.ElectionID))
	return operationResult(err, key)
}

// requireAdmin 未配置管理令牌时拒绝所有管理操作
func (r *Resolver) requireAdmin(ctx context.Context) *OperationResultResolver {
	token := identityFrom(ctx).adminToken
	if r.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(r.adminToken)) == 1 {
		return nil
	}
	logging.Log.Warn("GraphQL管理操作鉴权失败")
	return &OperationResultResolver{code: codeUnauthorized, message: "需要管理员权限"}
}

func (in ElectionInput) toRequest() (service.ScheduleRequest, error) {
	start, err := time.Parse(time.RFC3339, in.StartTime)
	if err != nil {
		return service.ScheduleRequest{}, apperr.Validation("开始时间格式错误: %s", in.StartTime)
	}
	end, err := time.Parse(time.RFC3339, in.EndTime)
	if err != nil {
		return service.ScheduleRequest{}, apperr.Validation("结束时间格式错误: %s", in.EndTime)
	}
	return service.ScheduleRequest{
		ElectionID:   deref(in.ElectionID),
		Name:         in.Name,
		StartTime:    start,
		EndTime:      end,
		District:     deref(in.District),
		Municipality: deref(in.Municipality),
	}, nil
}

func toCandidates(in []CandidateInput) []model.Candidate {
	out := make([]model.Candidate, len(in))
	for i, c := range in {
		out[i] = model.Candidate{CandidateID: string(c.CandidateID), Name: c.Name, Party: c.Party}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
