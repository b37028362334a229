package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/lvdashuaibi/votecore/config"
	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/lock"
	"github.com/lvdashuaibi/votecore/internal/logging"
	"github.com/lvdashuaibi/votecore/internal/model"
	"github.com/lvdashuaibi/votecore/internal/repository"
)

const (
	ScheduleLockName = "votecore:election:schedule:lock"

	electionIDLength = 10
)

// ScheduleRequest 创建或编辑选举的参数，ElectionID 为空时创建操作自动生成
type ScheduleRequest struct {
	ElectionID   string    `json:"electionId"`
	Name         string    `json:"name"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	District     string    `json:"district"`
	Municipality string    `json:"municipality"`
}

// ElectionScheduler 选举排期。任意两场选举的 [start, end) 不得相交，与作用域无关
type ElectionScheduler struct {
	store   repository.ElectionStore
	lock    lock.Lock
	lockCfg config.LockConfig
	now     func() time.Time
}

// NewElectionScheduler l 可为 nil，此时仅依赖存储层的守卫事务串行化
func NewElectionScheduler(store repository.ElectionStore, l lock.Lock, lockCfg config.LockConfig) *ElectionScheduler {
	return &ElectionScheduler{
		store:   store,
		lock:    l,
		lockCfg: lockCfg,
		now:     time.Now,
	}
}

// WithClock 替换时钟，供测试使用
func (s *ElectionScheduler) WithClock(now func() time.Time) *ElectionScheduler {
	s.now = now
	return s
}

// Create 创建选举
func (s *ElectionScheduler) Create(ctx context.Context, req ScheduleRequest) (*model.Election, error) {
	if err := validateSchedule(&req); err != nil {
		return nil, err
	}
	if req.ElectionID == "" {
		id, err := gonanoid.New(electionIDLength)
		if err != nil {
			return nil, fmt.Errorf("生成选举编号失败: %w", err)
		}
		req.ElectionID = id
	}

	election := &model.Election{
		ElectionID:             req.ElectionID,
		Name:                   req.Name,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		District:               req.District,
		Municipality:           req.Municipality,
		DisabledMunicipalities: []string{},
	}

	err := s.withScheduleLock(ctx, func() error {
		return s.store.WithSchedule(ctx, func(tx repository.ScheduleTx) error {
			if _, err := tx.GetElection(ctx, req.ElectionID); err == nil {
				return apperr.Validation("选举编号 %s 已被使用", req.ElectionID)
			} else if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}

			if err := checkOverlap(ctx, tx, req.StartTime, req.EndTime, ""); err != nil {
				return err
			}
			return tx.InsertElection(ctx, election)
		})
	})
	if err != nil {
		return nil, err
	}

	logging.Log.WithFields(logrus.Fields{
		"electionId": election.ElectionID,
		"start":      election.StartTime,
		"end":        election.EndTime,
	}).Info("选举已创建")
	return election, nil
}

// Edit 编辑未在进行中的选举，时间窗口检查排除自身
func (s *ElectionScheduler) Edit(ctx context.Context, req ScheduleRequest) (*model.Election, error) {
	if req.ElectionID == "" {
		return nil, apperr.Validation("选举编号不能为空")
	}
	if err := validateSchedule(&req); err != nil {
		return nil, err
	}

	var updated *model.Election
	err := s.withScheduleLock(ctx, func() error {
		return s.store.WithSchedule(ctx, func(tx repository.ScheduleTx) error {
			current, err := tx.GetElection(ctx, req.ElectionID)
			if err != nil {
				return err
			}
			if current.ActiveAt(s.now()) {
				return apperr.Conflict("选举 %s 正在进行中，不能编辑", req.ElectionID)
			}
			if err := checkOverlap(ctx, tx, req.StartTime, req.EndTime, req.ElectionID); err != nil {
				return err
			}

			current.Name = req.Name
			current.StartTime = req.StartTime
			current.EndTime = req.EndTime
			current.District = req.District
			current.Municipality = req.Municipality
			// 新窗口重新开始计时，之前的终止标记不再适用
			current.Terminated = false
			updated = current
			return tx.UpdateElection(ctx, current)
		})
	})
	if err != nil {
		return nil, err
	}

	logging.Log.WithField("electionId", updated.ElectionID).Info("选举已更新")
	return updated, nil
}

// Terminate 立即结束进行中的选举。已结束的选举重复终止无副作用
func (s *ElectionScheduler) Terminate(ctx context.Context, electionID string) (*model.Election, error) {
	var result *model.Election
	err := s.store.WithSchedule(ctx, func(tx repository.ScheduleTx) error {
		e, err := tx.GetElection(ctx, electionID)
		if err != nil {
			return err
		}
		result = e

		now := s.now().UTC().Truncate(time.Microsecond)
		switch e.StatusAt(now) {
		case model.StatusScheduled:
			return apperr.Conflict("选举 %s 尚未开始，不能终止", electionID)
		case model.StatusExpired, model.StatusTerminated:
			return nil
		}

		e.EndTime = now
		e.Terminated = true
		return tx.UpdateElection(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	logging.Log.WithField("electionId", electionID).Info("选举已终止")
	return result, nil
}

// DisableMunicipality 禁用某市在本次选举中的投票，可在任意时刻调用
func (s *ElectionScheduler) DisableMunicipality(ctx context.Context, electionID, municipality string) error {
	municipality = strings.TrimSpace(municipality)
	if municipality == "" {
		return apperr.Validation("市名称不能为空")
	}
	if err := s.store.AddDisabledMunicipality(ctx, electionID, municipality); err != nil {
		return err
	}

	logging.Log.WithFields(logrus.Fields{
		"electionId":   electionID,
		"municipality": municipality,
	}).Info("已禁用市的投票")
	return nil
}

// IsVotingAllowed now 落在选举窗口内且该市未被禁用
func (s *ElectionScheduler) IsVotingAllowed(ctx context.Context, electionID, municipality string, now time.Time) (bool, error) {
	e, err := s.store.GetElection(ctx, electionID)
	if err != nil {
		return false, err
	}
	return e.ActiveAt(now) && !e.IsMunicipalityDisabled(municipality), nil
}

// Status 选举在当前时刻的状态
func (s *ElectionScheduler) Status(e *model.Election) model.ElectionStatus {
	return e.StatusAt(s.now())
}

func (s *ElectionScheduler) Get(ctx context.Context, electionID string) (*model.Election, error) {
	return s.store.GetElection(ctx, electionID)
}

func (s *ElectionScheduler) List(ctx context.Context) ([]*model.Election, error) {
	return s.store.ListElections(ctx)
}

// Delete 删除未在进行中且没有选票的选举
func (s *ElectionScheduler) Delete(ctx context.Context, electionID string) error {
	err := s.store.WithSchedule(ctx, func(tx repository.ScheduleTx) error {
		e, err := tx.GetElection(ctx, electionID)
		if err != nil {
			return err
		}
		if e.ActiveAt(s.now()) {
			return apperr.Conflict("选举 %s 正在进行中，不能删除", electionID)
		}
		hasBallots, err := tx.HasBallots(ctx, electionID)
		if err != nil {
			return err
		}
		if hasBallots {
			return apperr.Conflict("选举 %s 已有选票，不能删除", electionID)
		}
		return tx.DeleteElection(ctx, electionID)
	})
	if err != nil {
		return err
	}

	logging.Log.WithField("electionId", electionID).Info("选举已删除")
	return nil
}

func (s *ElectionScheduler) withScheduleLock(ctx context.Context, fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	release, err := lock.Hold(ctx, s.lock, ScheduleLockName, s.lockCfg.Timeout, s.lockCfg.RetryCount)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func checkOverlap(ctx context.Context, tx repository.ScheduleTx, start, end time.Time, excludeID string) error {
	other, err := tx.FindOverlapping(ctx, start, end, excludeID)
	if err != nil {
		return err
	}
	if other != nil {
		return apperr.Conflict("时间窗口与选举 %s (%s) 冲突", other.ElectionID, other.Name)
	}
	return nil
}

func validateSchedule(req *ScheduleRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.ElectionID = strings.TrimSpace(req.ElectionID)
	req.District = strings.TrimSpace(req.District)
	req.Municipality = strings.TrimSpace(req.Municipality)

	if req.Name == "" {
		return apperr.Validation("选举名称不能为空")
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return apperr.Validation("开始时间和结束时间不能为空")
	}
	// 存储精度为微秒
	req.StartTime = req.StartTime.UTC().Truncate(time.Microsecond)
	req.EndTime = req.EndTime.UTC().Truncate(time.Microsecond)
	if !req.EndTime.After(req.StartTime) {
		return apperr.Validation("结束时间必须晚于开始时间")
	}
	if req.Municipality != "" && req.District == "" {
		return apperr.Validation("指定市时必须同时指定区")
	}
	return nil
}
