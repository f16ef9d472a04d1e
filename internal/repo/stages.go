package repo

import (
	"context"
	"database/sql"

	"talentline/internal/domain"
)

const stageColumns = `id,job_id,parent_id,name,position,is_mandatory,is_default,created_at`

func scanStage(scan func(dest ...any) error) (domain.StageDefinition, error) {
	var s domain.StageDefinition
	var parent sql.NullString
	var mandatory, deflt int
	err := scan(&s.ID, &s.JobID, &parent, &s.Name, &s.Position, &mandatory, &deflt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if parent.Valid {
		s.ParentID = &parent.String
	}
	s.IsMandatory = mandatory != 0
	s.IsDefault = deflt != 0
	return s, nil
}

func (r Repo) InsertStage(ctx context.Context, tx *sql.Tx, s domain.StageDefinition) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO job_stages(`+stageColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		s.ID, s.JobID, nullableStringPtr(s.ParentID), s.Name, s.Position, boolInt(s.IsMandatory), boolInt(s.IsDefault), s.CreatedAt)
	return err
}

func (r Repo) GetStage(ctx context.Context, id string) (domain.StageDefinition, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM job_stages WHERE id=?`, id)
	return scanStage(row.Scan)
}

// ListStages returns all stage rows of a job, top-level first in
// position order, then sub-stages grouped under their parents.
func (r Repo) ListStages(ctx context.Context, jobID string) ([]domain.StageDefinition, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageColumns+` FROM job_stages WHERE job_id=?
ORDER BY parent_id IS NOT NULL, COALESCE(parent_id,''), position`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StageDefinition
	for rows.Next() {
		s, err := scanStage(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// FindStageByName resolves a job's top-level stage by name,
// case-insensitively.
func (r Repo) FindStageByName(ctx context.Context, jobID, name string) (domain.StageDefinition, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM job_stages
WHERE job_id=? AND parent_id IS NULL AND lower(name)=lower(?) LIMIT 1`, jobID, name)
	return scanStage(row.Scan)
}

func (r Repo) FindStageByNameTx(ctx context.Context, tx *sql.Tx, jobID, name string) (domain.StageDefinition, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM job_stages
WHERE job_id=? AND parent_id IS NULL AND lower(name)=lower(?) LIMIT 1`, jobID, name)
	return scanStage(row.Scan)
}

func (r Repo) DeleteStages(ctx context.Context, tx *sql.Tx, jobID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM job_stages WHERE job_id=?`, jobID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
