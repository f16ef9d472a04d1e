package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"talentline/internal/domain"
)

const jobColumns = `id,company_id,title,status,assigned_recruiter_id,rules_json,created_at,updated_at`

func scanJob(scan func(dest ...any) error) (domain.Job, error) {
	var j domain.Job
	var recruiter, rules sql.NullString
	err := scan(&j.ID, &j.CompanyID, &j.Title, &j.Status, &recruiter, &rules, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	if err != nil {
		return j, err
	}
	if recruiter.Valid {
		j.AssignedRecruiterID = &recruiter.String
	}
	if rules.Valid {
		j.RulesJSON = &rules.String
	}
	return j, nil
}

func (r Repo) InsertJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO jobs(`+jobColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		j.ID, j.CompanyID, j.Title, j.Status, nullableStringPtr(j.AssignedRecruiterID), nullableStringPtr(j.RulesJSON), j.CreatedAt, j.UpdatedAt)
	return err
}

func (r Repo) UpdateJob(ctx context.Context, tx *sql.Tx, j domain.Job) error {
	res, err := tx.ExecContext(ctx, `UPDATE jobs SET title=?, status=?, assigned_recruiter_id=?, rules_json=?, updated_at=? WHERE id=?`,
		j.Title, j.Status, nullableStringPtr(j.AssignedRecruiterID), nullableStringPtr(j.RulesJSON), j.UpdatedAt, j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

func (r Repo) GetJobTx(ctx context.Context, tx *sql.Tx, id string) (domain.Job, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id=?`, id)
	return scanJob(row.Scan)
}

func (r Repo) DeleteJob(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type JobFilters struct {
	CompanyID           string
	Status              string
	AssignedRecruiterID string
	Limit               int
}

func (r Repo) ListJobs(ctx context.Context, f JobFilters) ([]domain.Job, error) {
	var clauses []string
	var args []any
	if f.CompanyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AssignedRecruiterID != "" {
		clauses = append(clauses, "assigned_recruiter_id=?")
		args = append(args, f.AssignedRecruiterID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := fmt.Sprintf(`SELECT `+jobColumns+` FROM jobs %s ORDER BY created_at DESC, id DESC`, where)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}
