package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lvdashuaibi/votecore/internal/apperr"
	"github.com/lvdashuaibi/votecore/internal/model"
)

// RecordBallot 写入选票并累加组合计票，二者同时成功或同时失败
func (r *SQLRepository) RecordBallot(ctx context.Context, b *model.Ballot) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO ballots
			(ballot_id, voter_id, election_id, district, municipality,
			 encoded_mayor_id, encoded_deputy_mayor_id, mayor_party, deputy_mayor_party, cast_us)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			b.BallotID, b.VoterID, b.ElectionID, b.District, b.Municipality,
			b.EncodedMayorID, b.EncodedDeputyMayorID, b.MayorParty, b.DeputyMayorParty, toMicros(b.Timestamp))
		if err != nil {
			if r.dialect.IsUniqueViolation(err) {
				return apperr.DuplicateVote("选民 %s 已在选举 %s 中投票", b.VoterID, b.ElectionID)
			}
			return fmt.Errorf("写入选票失败: %w", err)
		}

		if _, err := tx.ExecContext(ctx, r.dialect.Rebind(r.dialect.upsertTally),
			b.ElectionID, b.EncodedMayorID, b.EncodedDeputyMayorID); err != nil {
			return fmt.Errorf("累加计票失败: %w", err)
		}
		return nil
	})
}

func (r *SQLRepository) HasVoted(ctx context.Context, electionID, voterID string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind("SELECT COUNT(*) FROM ballots WHERE election_id = ? AND voter_id = ?"),
		electionID, voterID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询选民投票记录失败: %w", err)
	}
	return n > 0, nil
}

// ListTallies 列出选举的所有组合计票
func (r *SQLRepository) ListTallies(ctx context.Context, electionID string) ([]model.TallyCounter, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT encoded_mayor_id, encoded_deputy_mayor_id, mayor_votes, deputy_mayor_votes
		FROM tally_counters WHERE election_id = ?
		ORDER BY encoded_mayor_id, encoded_deputy_mayor_id`), electionID)
	if err != nil {
		return nil, fmt.Errorf("查询计票失败: %w", err)
	}
	defer rows.Close()

	var tallies []model.TallyCounter
	for rows.Next() {
		tc := model.TallyCounter{ElectionID: electionID}
		if err := rows.Scan(&tc.EncodedMayorID, &tc.EncodedDeputyMayorID, &tc.MayorVotes, &tc.DeputyMayorVotes); err != nil {
			return nil, fmt.Errorf("扫描计票失败: %w", err)
		}
		tallies = append(tallies, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代计票失败: %w", err)
	}
	return tallies, nil
}
