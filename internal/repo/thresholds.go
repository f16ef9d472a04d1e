package repo

import (
	"context"
	"database/sql"
	"strings"

	"talentline/internal/domain"
)

// UpsertThreshold writes a company-scoped SLA override. StageKey is
// stored lower-cased so lookups are case-insensitive.
func (r Repo) UpsertThreshold(ctx context.Context, tx *sql.Tx, t domain.SLAThreshold) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO sla_thresholds(company_id,stage_key,threshold_days,updated_at) VALUES (?,?,?,?)
ON CONFLICT(company_id,stage_key) DO UPDATE SET threshold_days=excluded.threshold_days, updated_at=excluded.updated_at`,
		t.CompanyID, strings.ToLower(t.StageKey), t.ThresholdDays, t.UpdatedAt)
	return err
}

// DeleteThreshold removes a company's override for the stage. A miss is
// ErrNotFound so callers can tell a no-op from a clear.
func (r Repo) DeleteThreshold(ctx context.Context, tx *sql.Tx, companyID, stageKey string) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	res, err := exec(ctx, `DELETE FROM sla_thresholds WHERE company_id=? AND stage_key=?`,
		companyID, strings.ToLower(stageKey))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetThreshold looks up a company's threshold by stage name. Absence
// means no SLA is configured for that stage.
func (r Repo) GetThreshold(ctx context.Context, companyID, stageName string) (domain.SLAThreshold, error) {
	var t domain.SLAThreshold
	err := r.DB.QueryRowContext(ctx, `SELECT company_id,stage_key,threshold_days,updated_at FROM sla_thresholds
WHERE company_id=? AND stage_key=?`, companyID, strings.ToLower(stageName)).
		Scan(&t.CompanyID, &t.StageKey, &t.ThresholdDays, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListThresholds(ctx context.Context, companyID string) ([]domain.SLAThreshold, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT company_id,stage_key,threshold_days,updated_at FROM sla_thresholds
WHERE company_id=? ORDER BY stage_key ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SLAThreshold
	for rows.Next() {
		var t domain.SLAThreshold
		if err := rows.Scan(&t.CompanyID, &t.StageKey, &t.ThresholdDays, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
