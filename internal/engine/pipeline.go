package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentline/internal/audit"
	"talentline/internal/domain"
	"talentline/internal/engine/rules"
	"talentline/internal/repo"
)

// ConflictError reports a lost compare-and-swap: another mover changed
// the candidate's stage between read and write.
type ConflictError struct {
	JobCandidateID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("candidate %s was moved concurrently", e.JobCandidateID)
}

// ApplyOptions are parameters for entering a candidate into a job's
// pipeline. CandidateID reuses an existing profile; otherwise one is
// created from the inline fields.
type ApplyOptions struct {
	JobID             string
	CandidateID       string
	Name              string
	Email             string
	ExperienceYears   float64
	Location          string
	Skills            []string
	Education         []string
	SalaryExpectation *float64
	ActorID           string
}

// ApplyResult is the outcome of an application. AutoRejected is set
// when the job's rule set rejected the candidate on entry; the link
// then already sits in the rejected stage.
type ApplyResult struct {
	Candidate    domain.Candidate
	Link         domain.CandidateJobLink
	AutoRejected bool
	Reason       string
}

func (e Engine) ApplyCandidate(ctx context.Context, opts ApplyOptions) (ApplyResult, error) {
	job, err := e.Repo.GetJob(ctx, opts.JobID)
	if err != nil {
		return ApplyResult{}, err
	}
	if job.Status != "active" {
		return ApplyResult{}, ValidationError{Field: "job_id", Message: fmt.Sprintf("job is %s, applications are closed", job.Status)}
	}
	now := e.now().UTC().Format(time.RFC3339)
	var c domain.Candidate
	newProfile := false
	if opts.CandidateID != "" {
		c, err = e.Repo.GetCandidate(ctx, opts.CandidateID)
		if err != nil {
			return ApplyResult{}, err
		}
		if c.CompanyID != job.CompanyID {
			return ApplyResult{}, ValidationError{Field: "candidate_id", Message: "candidate belongs to another company"}
		}
	} else {
		if strings.TrimSpace(opts.Name) == "" {
			return ApplyResult{}, ValidationError{Field: "name", Message: "is required"}
		}
		c = domain.Candidate{
			ID:                uuid.NewString(),
			CompanyID:         job.CompanyID,
			Name:              opts.Name,
			Email:             opts.Email,
			ExperienceYears:   opts.ExperienceYears,
			Location:          opts.Location,
			Skills:            opts.Skills,
			Education:         opts.Education,
			SalaryExpectation: opts.SalaryExpectation,
			CreatedAt:         now,
		}
		newProfile = true
	}

	var set *rules.RuleSet
	if job.RulesJSON != nil {
		set, err = rules.Parse([]byte(*job.RulesJSON))
		if err != nil {
			return ApplyResult{}, fmt.Errorf("stored rules for job %s: %w", job.ID, err)
		}
	}
	decision := rules.Evaluate(c, set)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ApplyResult{}, err
	}
	defer tx.Rollback()

	// The profile insert shares the transaction with the link and the
	// ledger: a failure past this point rolls all three back together.
	if newProfile {
		if err := e.Repo.InsertCandidate(ctx, tx, c); err != nil {
			return ApplyResult{}, fmt.Errorf("insert candidate: %w", err)
		}
	}

	entry, err := e.Repo.FindStageByNameTx(ctx, tx, job.ID, e.Config.Pipeline.ApplicationStage)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("application stage: %w", err)
	}
	link := domain.CandidateJobLink{
		ID:             uuid.NewString(),
		JobID:          job.ID,
		CandidateID:    c.ID,
		CurrentStageID: entry.ID,
		AppliedAt:      now,
	}
	if err := e.Repo.InsertLink(ctx, tx, link); err != nil {
		return ApplyResult{}, fmt.Errorf("insert application: %w", err)
	}
	if err := e.Repo.OpenEntry(ctx, tx, link.ID, entry.ID, now); err != nil {
		return ApplyResult{}, err
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:             now,
		ActivityType:   "candidate.applied",
		Description:    fmt.Sprintf("%s applied to %q", c.Name, job.Title),
		Metadata:       audit.Metadata{"stage": entry.Name},
		CompanyID:      job.CompanyID,
		JobID:          job.ID,
		JobCandidateID: link.ID,
		ActorID:        opts.ActorID,
	}); err != nil {
		return ApplyResult{}, err
	}
	if decision.ShouldReject {
		rejected, err := e.Repo.FindStageByNameTx(ctx, tx, job.ID, e.Config.Pipeline.RejectedStage)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("rejected stage: %w", err)
		}
		if err := e.moveWithinTx(ctx, tx, link, rejected, now); err != nil {
			return ApplyResult{}, err
		}
		link.CurrentStageID = rejected.ID
		if err := e.Audit.Append(ctx, tx, audit.Entry{
			TS:             now,
			ActivityType:   "candidate.auto_rejected",
			Description:    "Auto-rejected: " + decision.Reason,
			Metadata:       audit.Metadata{"reason": decision.Reason},
			CompanyID:      job.CompanyID,
			JobID:          job.ID,
			JobCandidateID: link.ID,
			ActorID:        opts.ActorID,
		}); err != nil {
			return ApplyResult{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return ApplyResult{}, err
	}
	return ApplyResult{Candidate: c, Link: link, AutoRejected: decision.ShouldReject, Reason: decision.Reason}, nil
}

// moveWithinTx closes the open ledger entry, opens the next one and
// swaps the link's current stage in one step. The swap is a CAS on the
// stage the ledger says the candidate is in.
func (e Engine) moveWithinTx(ctx context.Context, tx *sql.Tx, link domain.CandidateJobLink, to domain.StageDefinition, now string) error {
	if err := e.Repo.CloseOpenEntry(ctx, tx, link.ID, now); err != nil {
		return err
	}
	if err := e.Repo.OpenEntry(ctx, tx, link.ID, to.ID, now); err != nil {
		return err
	}
	ok, err := e.Repo.SwapLinkStage(ctx, tx, link.ID, link.CurrentStageID, to.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ConflictError{JobCandidateID: link.ID}
	}
	return nil
}

// MoveOptions identify a transition. ToStageID wins when set; ToStage
// resolves a top-level stage by name.
type MoveOptions struct {
	JobCandidateID string
	ToStageID      string
	ToStage        string
	ActorID        string
}

func (e Engine) MoveCandidate(ctx context.Context, opts MoveOptions) (domain.CandidateJobLink, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CandidateJobLink{}, err
	}
	defer tx.Rollback()

	link, err := e.Repo.GetLinkTx(ctx, tx, opts.JobCandidateID)
	if err != nil {
		return domain.CandidateJobLink{}, err
	}
	job, err := e.Repo.GetJobTx(ctx, tx, link.JobID)
	if err != nil {
		return domain.CandidateJobLink{}, err
	}
	var to domain.StageDefinition
	switch {
	case opts.ToStageID != "":
		to, err = e.Repo.GetStage(ctx, opts.ToStageID)
		if err != nil {
			return domain.CandidateJobLink{}, err
		}
		if to.JobID != link.JobID {
			return domain.CandidateJobLink{}, ValidationError{Field: "to_stage_id", Message: "stage belongs to another job"}
		}
	case opts.ToStage != "":
		to, err = e.Repo.FindStageByNameTx(ctx, tx, link.JobID, opts.ToStage)
		if err != nil {
			return domain.CandidateJobLink{}, err
		}
	default:
		return domain.CandidateJobLink{}, ValidationError{Field: "to_stage", Message: "target stage is required"}
	}
	if to.ID == link.CurrentStageID {
		return domain.CandidateJobLink{}, ValidationError{Field: "to_stage", Message: "candidate is already in that stage"}
	}
	from, err := e.Repo.GetStage(ctx, link.CurrentStageID)
	if err != nil {
		return domain.CandidateJobLink{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.moveWithinTx(ctx, tx, link, to, now); err != nil {
		return domain.CandidateJobLink{}, err
	}
	link.CurrentStageID = to.ID
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:             now,
		ActivityType:   "candidate.moved",
		Description:    fmt.Sprintf("Moved from %s to %s", from.Name, to.Name),
		Metadata:       audit.Metadata{"from_stage": from.Name, "to_stage": to.Name},
		CompanyID:      job.CompanyID,
		JobID:          job.ID,
		JobCandidateID: link.ID,
		ActorID:        opts.ActorID,
	}); err != nil {
		return domain.CandidateJobLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CandidateJobLink{}, err
	}
	return link, nil
}

// CurrentDwell returns when the candidate entered their current stage.
// The open ledger entry is authoritative; applied_at covers rows
// predating the ledger.
func (e Engine) CurrentDwell(ctx context.Context, link domain.CandidateJobLink) (time.Time, error) {
	entry, err := e.Repo.GetOpenEntry(ctx, link.ID)
	if err == repo.ErrNotFound {
		return time.Parse(time.RFC3339, link.AppliedAt)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, entry.EnteredAt)
}

// History returns the full transition ledger for an application.
func (e Engine) History(ctx context.Context, jobCandidateID string) ([]domain.StageHistoryEntry, error) {
	if _, err := e.Repo.GetLink(ctx, jobCandidateID); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, jobCandidateID)
}
