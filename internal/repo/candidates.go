package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"talentline/internal/domain"
)

// InsertCandidate runs inside the application transaction so a failed
// application never leaves an orphan profile behind.
func (r Repo) InsertCandidate(ctx context.Context, tx *sql.Tx, c domain.Candidate) error {
	skills, err := json.Marshal(c.Skills)
	if err != nil {
		return err
	}
	education, err := json.Marshal(c.Education)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO candidates(id,company_id,name,email,experience_years,location,skills_json,education_json,salary_expectation,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.CompanyID, c.Name, nullable(c.Email), c.ExperienceYears, nullable(c.Location),
		string(skills), string(education), nullableFloatPtr(c.SalaryExpectation), c.CreatedAt)
	return err
}

func (r Repo) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	var c domain.Candidate
	var email, location, skills, education sql.NullString
	var salary sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, `SELECT id,company_id,name,email,experience_years,location,skills_json,education_json,salary_expectation,created_at
FROM candidates WHERE id=?`, id).
		Scan(&c.ID, &c.CompanyID, &c.Name, &email, &c.ExperienceYears, &location, &skills, &education, &salary, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if email.Valid {
		c.Email = email.String
	}
	if location.Valid {
		c.Location = location.String
	}
	if skills.Valid && skills.String != "" {
		_ = json.Unmarshal([]byte(skills.String), &c.Skills)
	}
	if education.Valid && education.String != "" {
		_ = json.Unmarshal([]byte(education.String), &c.Education)
	}
	if salary.Valid {
		c.SalaryExpectation = &salary.Float64
	}
	return c, nil
}

func (r Repo) InsertLink(ctx context.Context, tx *sql.Tx, l domain.CandidateJobLink) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO job_candidates(id,job_id,candidate_id,current_stage_id,applied_at) VALUES (?,?,?,?,?)`,
		l.ID, l.JobID, l.CandidateID, l.CurrentStageID, l.AppliedAt)
	return err
}

func scanLink(scan func(dest ...any) error) (domain.CandidateJobLink, error) {
	var l domain.CandidateJobLink
	err := scan(&l.ID, &l.JobID, &l.CandidateID, &l.CurrentStageID, &l.AppliedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) GetLink(ctx context.Context, id string) (domain.CandidateJobLink, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,job_id,candidate_id,current_stage_id,applied_at FROM job_candidates WHERE id=?`, id)
	return scanLink(row.Scan)
}

func (r Repo) GetLinkTx(ctx context.Context, tx *sql.Tx, id string) (domain.CandidateJobLink, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,job_id,candidate_id,current_stage_id,applied_at FROM job_candidates WHERE id=?`, id)
	return scanLink(row.Scan)
}

func (r Repo) ListLinksByJob(ctx context.Context, jobID string) ([]domain.CandidateJobLink, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,job_id,candidate_id,current_stage_id,applied_at FROM job_candidates WHERE job_id=? ORDER BY applied_at ASC, id ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CandidateJobLink
	for rows.Next() {
		l, err := scanLink(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// CountLinksByJob reports how many candidates are linked to the job;
// the stage set freezes as soon as this is non-zero.
func (r Repo) CountLinksByJob(ctx context.Context, jobID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM job_candidates WHERE job_id=?`, jobID).Scan(&n)
	return n, err
}

func (r Repo) CountLinksByJobTx(ctx context.Context, tx *sql.Tx, jobID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM job_candidates WHERE job_id=?`, jobID).Scan(&n)
	return n, err
}

// SwapLinkStage performs the compare-and-swap on the link's current
// stage. A zero row count means a concurrent mover won.
func (r Repo) SwapLinkStage(ctx context.Context, tx *sql.Tx, linkID, fromStageID, toStageID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE job_candidates SET current_stage_id=? WHERE id=? AND current_stage_id=?`,
		toStageID, linkID, fromStageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
