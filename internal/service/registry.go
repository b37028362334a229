package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/repository"
)

// RegisterSetRequest 登记某市的候选人名单，名单已存在时追加
type RegisterSetRequest struct {
	ElectionID            string            `json:"electionId"`
	District              string            `json:"district"`
	Municipality          string            `json:"municipality"`
	MayorCandidates       []model.Candidate `json:"mayorCandidates"`
	DeputyMayorCandidates []model.Candidate `json:"deputyMayorCandidates"`
}

// UpdateCandidateRequest NewCandidateID 为空时保留原编号
type UpdateCandidateRequest struct {
	Name           string `json:"name"`
	NewCandidateID string `json:"newCandidateId"`
	Party          string `json:"party"`
}

// CandidateRegistry 候选人登记。
// 候选人编号全局唯一；同一名单同一职位内党派唯一。
type CandidateRegistry struct {
	store     repository.CandidateStore
	elections repository.ElectionStore
}

func NewCandidateRegistry(store repository.CandidateStore, elections repository.ElectionStore) *CandidateRegistry {
	return &CandidateRegistry{store: store, elections: elections}
}

// RegisterCandidateSet 登记候选人名单
func (r *CandidateRegistry) RegisterCandidateSet(ctx context.Context, req RegisterSetRequest) (*model.CandidateSet, error) {
	req.ElectionID = strings.TrimSpace(req.ElectionID)
	req.District = strings.TrimSpace(req.District)
	req.Municipality = strings.TrimSpace(req.Municipality)
	if req.ElectionID == "" || req.District == "" || req.Municipality == "" {
		return nil, apperr.Validation("选举编号、区和市均不能为空")
	}
	if len(req.MayorCandidates)+len(req.DeputyMayorCandidates) == 0 {
		return nil, apperr.Validation("候选人名单不能为空")
	}

	seenIDs := make(map[string]bool)
	for _, list := range []struct {
		role       model.Role
		candidates []model.Candidate
	}{
		{model.RoleMayor, req.MayorCandidates},
		{model.RoleDeputyMayor, req.DeputyMayorCandidates},
	} {
		seenParties := make(map[string]bool)
		for i := range list.candidates {
			c := &list.candidates[i]
			if err := normalizeCandidate(c); err != nil {
				return nil, err
			}
			if seenIDs[c.CandidateID] {
				return nil, apperr.Conflict("候选人编号 %s 在请求中重复", c.CandidateID)
			}
			seenIDs[c.CandidateID] = true
			if seenParties[c.Party] {
				return nil, apperr.Conflict("%s 名单中党派 %s 重复", list.role, c.Party)
			}
			seenParties[c.Party] = true
		}
	}

	if _, err := r.elections.GetElection(ctx, req.ElectionID); err != nil {
		return nil, err
	}

	err := r.store.WithCandidates(ctx, func(tx repository.CandidateTx) error {
		for id := range seenIDs {
			if _, err := tx.GetCandidate(ctx, id); err == nil {
				return apperr.Conflict("候选人编号 %s 已存在", id)
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
		}

		setID, err := tx.FindSet(ctx, req.ElectionID, req.District, req.Municipality)
		if err != nil {
			return err
		}
		if setID == "" {
			if setID, err = tx.CreateSet(ctx, req.ElectionID, req.District, req.Municipality); err != nil {
				return err
			}
		}

		if err := insertRole(ctx, tx, setID, model.RoleMayor, req.MayorCandidates); err != nil {
			return err
		}
		return insertRole(ctx, tx, setID, model.RoleDeputyMayor, req.DeputyMayorCandidates)
	})
	if err != nil {
		return nil, err
	}

	logging.Log.WithFields(logrus.Fields{
		"electionId":   req.ElectionID,
		"district":     req.District,
		"municipality": req.Municipality,
		"mayors":       len(req.MayorCandidates),
		"deputies":     len(req.DeputyMayorCandidates),
	}).Info("候选人名单已登记")

	return r.findSet(ctx, req.ElectionID, req.District, req.Municipality)
}

// UpdateCandidate 原位修改候选人，保持名单顺序与另一职位不变。选举已有选票时不允许改编号
func (r *CandidateRegistry) UpdateCandidate(ctx context.Context, candidateID string, req UpdateCandidateRequest) (*model.CandidateRecord, error) {
	updated := model.Candidate{
		CandidateID: strings.TrimSpace(req.NewCandidateID),
		Name:        req.Name,
		Party:       req.Party,
	}
	if updated.CandidateID == "" {
		updated.CandidateID = candidateID
	}
	if err := normalizeCandidate(&updated); err != nil {
		return nil, err
	}

	var record *model.CandidateRecord
	err := r.store.WithCandidates(ctx, func(tx repository.CandidateTx) error {
		current, err := tx.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}

		if updated.CandidateID != candidateID {
			if err := refuseAfterVoting(ctx, tx, current.ElectionID, "修改候选人编号"); err != nil {
				return err
			}
			if _, err := tx.GetCandidate(ctx, updated.CandidateID); err == nil {
				return apperr.Conflict("候选人编号 %s 已属于其他候选人", updated.CandidateID)
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
		}

		taken, err := tx.PartyTaken(ctx, current.SetID, current.Role, updated.Party, candidateID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("%s 名单中已有党派 %s 的候选人", current.Role, updated.Party)
		}

		if err := tx.UpdateCandidate(ctx, candidateID, updated); err != nil {
			return err
		}
		current.Candidate = updated
		record = &current.CandidateRecord
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Log.WithFields(logrus.Fields{
		"candidateId":    candidateID,
		"newCandidateId": updated.CandidateID,
	}).Info("候选人已更新")
	return record, nil
}

// RemoveCandidate 删除候选人，选举已有选票时拒绝
func (r *CandidateRegistry) RemoveCandidate(ctx context.Context, candidateID string) error {
	err := r.store.WithCandidates(ctx, func(tx repository.CandidateTx) error {
		current, err := tx.GetCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		if err := refuseAfterVoting(ctx, tx, current.ElectionID, "删除候选人"); err != nil {
			return err
		}
		return tx.DeleteCandidate(ctx, candidateID)
	})
	if err != nil {
		return err
	}
	logging.Log.WithField("candidateId", candidateID).Info("候选人已删除")
	return nil
}

// refuseAfterVoting 已有选票的选举不再释放候选人编号，否则旧票会记到复用该编号的候选人名下
func refuseAfterVoting(ctx context.Context, tx repository.CandidateTx, electionID, action string) error {
	voted, err := tx.HasBallots(ctx, electionID)
	if err != nil {
		return err
	}
	if voted {
		return apperr.Conflict("选举 %s 已有选票，不能%s", electionID, action)
	}
	return nil
}

func (r *CandidateRegistry) GetCandidate(ctx context.Context, candidateID string) (*model.CandidateRecord, error) {
	return r.store.GetCandidate(ctx, candidateID)
}

func (r *CandidateRegistry) ListCandidateSets(ctx context.Context, electionID string) ([]*model.CandidateSet, error) {
	return r.store.ListCandidateSets(ctx, electionID)
}

func (r *CandidateRegistry) findSet(ctx context.Context, electionID, district, municipality string) (*model.CandidateSet, error) {
	sets, err := r.store.ListCandidateSets(ctx, electionID)
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		if set.District == district && set.Municipality == municipality {
			return set, nil
		}
	}
	return nil, apperr.NotFound("%s/%s 的候选人名单不存在", district, municipality)
}

func insertRole(ctx context.Context, tx repository.CandidateTx, setID string, role model.Role, candidates []model.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	for _, c := range candidates {
		taken, err := tx.PartyTaken(ctx, setID, role, c.Party, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.Conflict("%s 名单中已有党派 %s 的候选人", role, c.Party)
		}
	}
	return tx.InsertCandidates(ctx, setID, role, candidates)
}

func normalizeCandidate(c *model.Candidate) error {
	c.CandidateID = strings.TrimSpace(c.CandidateID)
	c.Name = strings.TrimSpace(c.Name)
	c.Party = strings.TrimSpace(c.Party)

	if c.CandidateID == "" || c.Name == "" || c.Party == "" {
		return apperr.Validation("候选人编号、姓名和党派均不能为空")
	}
	if !isCanonicalID(c.CandidateID) {
		return apperr.Validation("候选人编号 %q 必须是不带前导零的十进制数字", c.CandidateID)
	}
	return nil
}

// isCanonicalID 不带前导零的十进制数字，最多36位
func isCanonicalID(id string) bool {
	if id == "" || len(id) > 36 {
		return false
	}
	if len(id) > 1 && id[0] == '0' {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < '0' || id[i] > '9' {
			return false
		}
	}
	return true
}
