package repo

import (
	"context"
	"database/sql"
	"strings"

	"talentline/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO notifications(id,user_id,type,title,message,entity_type,entity_id,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.EntityType, n.EntityID, n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT id,user_id,type,title,message,entity_type,entity_id,created_at FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.EntityType, &n.EntityID, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

type ActivityFilters struct {
	CompanyID      string
	JobID          string
	JobCandidateID string
	ActivityType   string
	Limit          int
	Cursor         int64
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.CompanyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.JobID != "" {
		clauses = append(clauses, "job_id=?")
		args = append(args, f.JobID)
	}
	if f.JobCandidateID != "" {
		clauses = append(clauses, "job_candidate_id=?")
		args = append(args, f.JobCandidateID)
	}
	if f.ActivityType != "" {
		clauses = append(clauses, "activity_type=?")
		args = append(args, f.ActivityType)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,ts,activity_type,description,metadata_json,company_id,job_id,job_candidate_id,actor_id FROM activities WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var metadata, companyID, jobID, linkID sql.NullString
		if err := rows.Scan(&a.ID, &a.TS, &a.ActivityType, &a.Description, &metadata, &companyID, &jobID, &linkID, &a.ActorID); err != nil {
			return nil, err
		}
		if metadata.Valid {
			a.MetadataJSON = metadata.String
		}
		if companyID.Valid {
			a.CompanyID = companyID.String
		}
		if jobID.Valid {
			a.JobID = jobID.String
		}
		if linkID.Valid {
			a.JobCandidateID = linkID.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
