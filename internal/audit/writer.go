package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends activity records inside the caller's transaction. The
// activity table is append-only; rejection descriptions carry the
// "Auto-rejected" prefix consumers match on.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Metadata map[string]any

// Entry describes one activity record. TS, when set, is the record
// timestamp; callers pass their operation clock so the activity and the
// rows it describes carry the same instant.
type Entry struct {
	TS             string
	ActivityType   string
	Description    string
	Metadata       Metadata
	CompanyID      string
	JobID          string
	JobCandidateID string
	ActorID        string
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	ts := e.TS
	if ts == "" {
		now := w.Now
		if now == nil {
			now = time.Now
		}
		ts = now().UTC().Format(time.RFC3339)
	}
	if e.Metadata == nil {
		e.Metadata = Metadata{}
	}
	data, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activities(ts,activity_type,description,metadata_json,company_id,job_id,job_candidate_id,actor_id) VALUES (?,?,?,?,?,?,?,?)`,
		ts, e.ActivityType, e.Description, string(data), nullable(e.CompanyID), nullable(e.JobID), nullable(e.JobCandidateID), e.ActorID)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
