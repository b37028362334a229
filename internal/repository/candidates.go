package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/model"
)

const candidateSelect = `SELECT c.candidate_id, c.name, c.party, c.candidate_role, c.set_id,
	s.election_id, s.district, s.municipality
	FROM candidates c JOIN candidate_sets s ON s.set_id = c.set_id`

type candidateTx struct {
	q querier
	d *Dialect
}

// WithCandidates 在事务中执行候选人写操作，唯一约束兜底并发写入
func (r *SQLRepository) WithCandidates(ctx context.Context, fn func(tx CandidateTx) error) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&candidateTx{q: tx, d: r.dialect})
	})
}

// GetCandidate 查询候选人及其归属
func (r *SQLRepository) GetCandidate(ctx context.Context, candidateID string) (*model.CandidateRecord, error) {
	c, err := getCandidate(ctx, r.db, r.dialect, candidateID)
	if err != nil {
		return nil, err
	}
	return &c.CandidateRecord, nil
}

// ListCandidateSets 列出选举下所有市的候选人名单，按登记顺序返回
func (r *SQLRepository) ListCandidateSets(ctx context.Context, electionID string) ([]*model.CandidateSet, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT s.set_id, s.district, s.municipality,
		c.candidate_id, c.name, c.party, c.candidate_role
		FROM candidate_sets s LEFT JOIN candidates c ON c.set_id = s.set_id
		WHERE s.election_id = ?
		ORDER BY s.district, s.municipality, c.candidate_role, c.seq`), electionID)
	if err != nil {
		return nil, fmt.Errorf("查询候选人名单失败: %w", err)
	}
	defer rows.Close()

	var sets []*model.CandidateSet
	bySetID := make(map[string]*model.CandidateSet)
	for rows.Next() {
		var (
			setID, district, municipality string
			id, name, party, role         sql.NullString
		)
		if err := rows.Scan(&setID, &district, &municipality, &id, &name, &party, &role); err != nil {
			return nil, fmt.Errorf("扫描候选人名单失败: %w", err)
		}

		set, ok := bySetID[setID]
		if !ok {
			set = &model.CandidateSet{
				ElectionID:            electionID,
				District:              district,
				Municipality:          municipality,
				MayorCandidates:       []model.Candidate{},
				DeputyMayorCandidates: []model.Candidate{},
			}
			bySetID[setID] = set
			sets = append(sets, set)
		}
		if !id.Valid {
			continue
		}

		c := model.Candidate{CandidateID: id.String, Name: name.String, Party: party.String}
		switch model.Role(role.String) {
		case model.RoleMayor:
			set.MayorCandidates = append(set.MayorCandidates, c)
		case model.RoleDeputyMayor:
			set.DeputyMayorCandidates = append(set.DeputyMayorCandidates, c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代候选人名单失败: %w", err)
	}
	return sets, nil
}

func (t *candidateTx) FindSet(ctx context.Context, electionID, district, municipality string) (string, error) {
	var setID string
	err := t.q.QueryRowContext(ctx,
		t.d.Rebind("SELECT set_id FROM candidate_sets WHERE election_id = ? AND district = ? AND municipality = ?"),
		electionID, district, municipality).Scan(&setID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("查询候选人名单失败: %w", err)
	}
	return setID, nil
}

func (t *candidateTx) CreateSet(ctx context.Context, electionID, district, municipality string) (string, error) {
	setID := uuid.NewString()
	_, err := t.q.ExecContext(ctx,
		t.d.Rebind("INSERT INTO candidate_sets (set_id, election_id, district, municipality) VALUES (?, ?, ?, ?)"),
		setID, electionID, district, municipality)
	if err != nil {
		if t.d.IsUniqueViolation(err) {
			return "", apperr.Conflict("%s/%s 的候选人名单正在被并发创建", district, municipality)
		}
		return "", fmt.Errorf("创建候选人名单失败: %w", err)
	}
	return setID, nil
}

func (t *candidateTx) GetCandidate(ctx context.Context, candidateID string) (*StoredCandidate, error) {
	return getCandidate(ctx, t.q, t.d, candidateID)
}

func (t *candidateTx) PartyTaken(ctx context.Context, setID string, role model.Role, party, excludeID string) (bool, error) {
	var n int64
	err := t.q.QueryRowContext(ctx,
		t.d.Rebind("SELECT COUNT(*) FROM candidates WHERE set_id = ? AND candidate_role = ? AND party = ? AND candidate_id <> ?"),
		setID, string(role), party, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询党派占用失败: %w", err)
	}
	return n > 0, nil
}

func (t *candidateTx) InsertCandidates(ctx context.Context, setID string, role model.Role, candidates []model.Candidate) error {
	var next int
	err := t.q.QueryRowContext(ctx,
		t.d.Rebind("SELECT COALESCE(MAX(seq) + 1, 0) FROM candidates WHERE set_id = ? AND candidate_role = ?"),
		setID, string(role)).Scan(&next)
	if err != nil {
		return fmt.Errorf("查询候选人序号失败: %w", err)
	}

	query := t.d.Rebind(`INSERT INTO candidates (candidate_id, set_id, candidate_role, seq, name, party)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, c := range candidates {
		if _, err := t.q.ExecContext(ctx, query, c.CandidateID, setID, string(role), next+i, c.Name, c.Party); err != nil {
			if t.d.IsUniqueViolation(err) {
				return apperr.Conflict("候选人 %s 与已有候选人编号或党派冲突", c.CandidateID)
			}
			return fmt.Errorf("写入候选人 %s 失败: %w", c.CandidateID, err)
		}
	}
	return nil
}

func (t *candidateTx) UpdateCandidate(ctx context.Context, oldID string, c model.Candidate) error {
	_, err := t.q.ExecContext(ctx,
		t.d.Rebind("UPDATE candidates SET candidate_id = ?, name = ?, party = ? WHERE candidate_id = ?"),
		c.CandidateID, c.Name, c.Party, oldID)
	if err != nil {
		if t.d.IsUniqueViolation(err) {
			return apperr.Conflict("候选人 %s 与已有候选人编号或党派冲突", c.CandidateID)
		}
		return fmt.Errorf("更新候选人 %s 失败: %w", oldID, err)
	}
	return nil
}

func (t *candidateTx) DeleteCandidate(ctx context.Context, candidateID string) error {
	res, err := t.q.ExecContext(ctx, t.d.Rebind("DELETE FROM candidates WHERE candidate_id = ?"), candidateID)
	if err != nil {
		return fmt.Errorf("删除候选人 %s 失败: %w", candidateID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("候选人 %s 不存在", candidateID)
	}
	return nil
}

func (t *candidateTx) HasBallots(ctx context.Context, electionID string) (bool, error) {
	return hasBallots(ctx, t.q, t.d, electionID)
}

func getCandidate(ctx context.Context, q querier, d *Dialect, candidateID string) (*StoredCandidate, error) {
	var (
		c    StoredCandidate
		role string
	)
	err := q.QueryRowContext(ctx, d.Rebind(candidateSelect+" WHERE c.candidate_id = ?"), candidateID).Scan(
		&c.CandidateID, &c.Name, &c.Party, &role, &c.SetID, &c.ElectionID, &c.District, &c.Municipality)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("候选人 %s 不存在", candidateID)
		}
		return nil, fmt.Errorf("查询候选人 %s 失败: %w", candidateID, err)
	}
	c.Role = model.Role(role)
	return &c, nil
}
