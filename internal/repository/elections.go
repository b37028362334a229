package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/model"
)

const electionColumns = "election_id, name, start_us, end_us, district, municipality, is_terminated"

type scheduleTx struct {
	q querier
	d *Dialect
}

// WithSchedule 开启排期事务。事务的第一条语句更新守卫行，
// 并发的排期事务会在此处排队，之后的冲突查询能看到先提交者的写入。
func (r *SQLRepository) WithSchedule(ctx context.Context, fn func(tx ScheduleTx) error) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE schedule_guard SET version = version + 1 WHERE id = 1")
		if err != nil {
			return fmt.Errorf("获取排期守卫失败: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("排期守卫行不存在，请先初始化数据表")
		}
		return fn(&scheduleTx{q: tx, d: r.dialect})
	})
}

// GetElection 查询选举
func (r *SQLRepository) GetElection(ctx context.Context, electionID string) (*model.Election, error) {
	return getElection(ctx, r.db, r.dialect, electionID)
}

// ListElections 按开始时间列出所有选举
func (r *SQLRepository) ListElections(ctx context.Context) ([]*model.Election, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+electionColumns+" FROM elections ORDER BY start_us, election_id")
	if err != nil {
		return nil, fmt.Errorf("查询选举列表失败: %w", err)
	}
	defer rows.Close()

	var elections []*model.Election
	byID := make(map[string]*model.Election)
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, err
		}
		elections = append(elections, e)
		byID[e.ElectionID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代选举列表失败: %w", err)
	}

	disabled, err := r.db.QueryContext(ctx, "SELECT election_id, municipality FROM election_disabled_municipalities ORDER BY municipality")
	if err != nil {
		return nil, fmt.Errorf("查询禁用市列表失败: %w", err)
	}
	defer disabled.Close()
	for disabled.Next() {
		var id, municipality string
		if err := disabled.Scan(&id, &municipality); err != nil {
			return nil, fmt.Errorf("扫描禁用市失败: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.DisabledMunicipalities = append(e.DisabledMunicipalities, municipality)
		}
	}
	if err := disabled.Err(); err != nil {
		return nil, fmt.Errorf("迭代禁用市失败: %w", err)
	}

	return elections, nil
}

// AddDisabledMunicipality 禁用某市，重复禁用无副作用
func (r *SQLRepository) AddDisabledMunicipality(ctx context.Context, electionID, municipality string) error {
	if _, err := getElection(ctx, r.db, r.dialect, electionID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.Rebind(r.dialect.insertDisabledMun), electionID, municipality); err != nil {
		return fmt.Errorf("禁用市 %s 失败: %w", municipality, err)
	}
	return nil
}

func (t *scheduleTx) GetElection(ctx context.Context, electionID string) (*model.Election, error) {
	return getElection(ctx, t.q, t.d, electionID)
}

func (t *scheduleTx) FindOverlapping(ctx context.Context, start, end time.Time, excludeID string) (*model.Election, error) {
	query := t.d.Rebind("SELECT " + electionColumns + ` FROM elections
		WHERE start_us < ? AND end_us > ? AND election_id <> ?
		ORDER BY start_us LIMIT 1`)
	row := t.q.QueryRowContext(ctx, query, toMicros(end), toMicros(start), excludeID)
	e, err := scanElection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (t *scheduleTx) InsertElection(ctx context.Context, e *model.Election) error {
	query := t.d.Rebind(`INSERT INTO elections (` + electionColumns + `) VALUES (?, ?, ?, ?, ?, ?, FALSE)`)
	_, err := t.q.ExecContext(ctx, query,
		e.ElectionID, e.Name, toMicros(e.StartTime), toMicros(e.EndTime), e.District, e.Municipality)
	if err != nil {
		if t.d.IsUniqueViolation(err) {
			return apperr.Validation("选举编号 %s 已被使用", e.ElectionID)
		}
		return fmt.Errorf("创建选举失败: %w", err)
	}
	return nil
}

func (t *scheduleTx) UpdateElection(ctx context.Context, e *model.Election) error {
	terminated := "FALSE"
	if e.Terminated {
		terminated = "TRUE"
	}
	query := t.d.Rebind(`UPDATE elections
		SET name = ?, start_us = ?, end_us = ?, district = ?, municipality = ?, is_terminated = ` + terminated + `
		WHERE election_id = ?`)
	// MySQL 默认返回实际变更的行数，值未变化时为0，因此不据此判断存在性
	if _, err := t.q.ExecContext(ctx, query,
		e.Name, toMicros(e.StartTime), toMicros(e.EndTime), e.District, e.Municipality, e.ElectionID); err != nil {
		return fmt.Errorf("更新选举失败: %w", err)
	}
	return nil
}

func (t *scheduleTx) DeleteElection(ctx context.Context, electionID string) error {
	if _, err := t.q.ExecContext(ctx, t.d.Rebind("DELETE FROM election_disabled_municipalities WHERE election_id = ?"), electionID); err != nil {
		return fmt.Errorf("删除禁用市记录失败: %w", err)
	}
	res, err := t.q.ExecContext(ctx, t.d.Rebind("DELETE FROM elections WHERE election_id = ?"), electionID)
	if err != nil {
		return fmt.Errorf("删除选举失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("选举 %s 不存在", electionID)
	}
	return nil
}

func (t *scheduleTx) HasBallots(ctx context.Context, electionID string) (bool, error) {
	return hasBallots(ctx, t.q, t.d, electionID)
}

func hasBallots(ctx context.Context, q querier, d *Dialect, electionID string) (bool, error) {
	var n int64
	err := q.QueryRowContext(ctx, d.Rebind("SELECT COUNT(*) FROM ballots WHERE election_id = ?"), electionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询选票数量失败: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (*model.Election, error) {
	var (
		e              model.Election
		startUs, endUs int64
	)
	err := row.Scan(&e.ElectionID, &e.Name, &startUs, &endUs, &e.District, &e.Municipality, &e.Terminated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("扫描选举失败: %w", err)
	}
	e.StartTime = fromMicros(startUs)
	e.EndTime = fromMicros(endUs)
	e.DisabledMunicipalities = []string{}
	return &e, nil
}

func getElection(ctx context.Context, q querier, d *Dialect, electionID string) (*model.Election, error) {
	row := q.QueryRowContext(ctx, d.Rebind("SELECT "+electionColumns+" FROM elections WHERE election_id = ?"), electionID)
	e, err := scanElection(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("选举 %s 不存在", electionID)
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		d.Rebind("SELECT municipality FROM election_disabled_municipalities WHERE election_id = ? ORDER BY municipality"), electionID)
	if err != nil {
		return nil, fmt.Errorf("查询禁用市失败: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("扫描禁用市失败: %w", err)
		}
		e.DisabledMunicipalities = append(e.DisabledMunicipalities, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代禁用市失败: %w", err)
	}
	return e, nil
}
