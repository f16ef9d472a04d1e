package repo

import (
	"context"
	"database/sql"

	"talentline/internal/domain"
)

// CloseOpenEntry stamps exited_at on the currently-open history entry
// for the pairing, if any.
func (r Repo) CloseOpenEntry(ctx context.Context, tx *sql.Tx, jobCandidateID, at string) error {
	_, err := tx.ExecContext(ctx, `UPDATE stage_history SET exited_at=? WHERE job_candidate_id=? AND exited_at IS NULL`,
		at, jobCandidateID)
	return err
}

func (r Repo) OpenEntry(ctx context.Context, tx *sql.Tx, jobCandidateID, stageID, at string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_history(job_candidate_id,stage_id,entered_at,exited_at) VALUES (?,?,?,NULL)`,
		jobCandidateID, stageID, at)
	return err
}

// GetOpenEntry returns the single open ledger row for the pairing.
func (r Repo) GetOpenEntry(ctx context.Context, jobCandidateID string) (domain.StageHistoryEntry, error) {
	var e domain.StageHistoryEntry
	var exited sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,job_candidate_id,stage_id,entered_at,exited_at FROM stage_history
WHERE job_candidate_id=? AND exited_at IS NULL ORDER BY id DESC LIMIT 1`, jobCandidateID).
		Scan(&e.ID, &e.JobCandidateID, &e.StageID, &e.EnteredAt, &exited)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if exited.Valid {
		e.ExitedAt = &exited.String
	}
	return e, nil
}

func (r Repo) ListHistory(ctx context.Context, jobCandidateID string) ([]domain.StageHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,job_candidate_id,stage_id,entered_at,exited_at FROM stage_history
WHERE job_candidate_id=? ORDER BY id ASC`, jobCandidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageHistoryEntry
	for rows.Next() {
		var e domain.StageHistoryEntry
		var exited sql.NullString
		if err := rows.Scan(&e.ID, &e.JobCandidateID, &e.StageID, &e.EnteredAt, &exited); err != nil {
			return nil, err
		}
		if exited.Valid {
			e.ExitedAt = &exited.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountOpenEntries(ctx context.Context, jobCandidateID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM stage_history WHERE job_candidate_id=? AND exited_at IS NULL`, jobCandidateID).Scan(&n)
	return n, err
}
