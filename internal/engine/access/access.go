package access

import (
	"context"
	"database/sql"
	"fmt"

	"talentline/internal/domain"
	"talentline/internal/repo"
)

// Role values recognized by the gate. Anything else is denied.
const (
	RoleAdmin         = "admin"
	RoleHiringManager = "hiring_manager"
	RoleRecruiter     = "recruiter"
)

// DeniedError indicates the caller may not act on the job.
type DeniedError struct {
	UserID string
	JobID  string
	Reason string
}

func (e DeniedError) Error() string {
	return fmt.Sprintf("access denied for user %s on job %s: %s", e.UserID, e.JobID, e.Reason)
}

// Gate answers per-request visibility questions against live rows.
// Results are never cached: a reassignment is effective on the very
// next call.
type Gate struct {
	DB   *sql.DB
	Repo repo.Repo
}

func New(db *sql.DB) Gate {
	return Gate{DB: db, Repo: repo.Repo{DB: db}}
}

// ValidateAccess reports whether the user may view and act on the job.
// Admins and hiring managers see every job in their company; recruiters
// only jobs currently assigned to them. Cross-company access is always
// denied, and so is any role the gate does not recognize.
func (g Gate) ValidateAccess(ctx context.Context, jobID, userID, role string) error {
	user, err := g.Repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	job, err := g.Repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.CompanyID != user.CompanyID {
		return DeniedError{UserID: userID, JobID: jobID, Reason: "job belongs to another company"}
	}
	switch role {
	case RoleAdmin, RoleHiringManager:
		return nil
	case RoleRecruiter:
		if job.AssignedRecruiterID != nil && *job.AssignedRecruiterID == userID {
			return nil
		}
		return DeniedError{UserID: userID, JobID: jobID, Reason: "job not assigned to recruiter"}
	default:
		return DeniedError{UserID: userID, JobID: jobID, Reason: fmt.Sprintf("unknown role %q", role)}
	}
}

// AccessibleJobs lists the jobs visible to the user under the given
// role, scoped to their company.
func (g Gate) AccessibleJobs(ctx context.Context, userID, role, companyID string) ([]domain.Job, error) {
	filters := repo.JobFilters{CompanyID: companyID}
	switch role {
	case RoleAdmin, RoleHiringManager:
	case RoleRecruiter:
		filters.AssignedRecruiterID = userID
	default:
		return nil, DeniedError{UserID: userID, Reason: fmt.Sprintf("unknown role %q", role)}
	}
	return g.Repo.ListJobs(ctx, filters)
}
