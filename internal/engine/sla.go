package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentline/internal/audit"
	"talentline/internal/domain"
	"talentline/internal/repo"
)

// Stage whose occupants accumulate feedback alerts once the grace
// period lapses; its sub-stages count as well.
const feedbackStageName = "Interview"

// FeedbackAlert flags an interviewed candidate still waiting on
// feedback past the configured grace period.
type FeedbackAlert struct {
	JobCandidateID string `json:"job_candidate_id"`
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	StageName      string `json:"stage_name"`
	DaysWaiting    int    `json:"days_waiting"`
	EnteredAt      string `json:"entered_at" format:"date-time"`
}

// SetThreshold upserts one per-company dwell limit.
func (e Engine) SetThreshold(ctx context.Context, companyID, stageKey string, days int, actorID string) (domain.SLAThreshold, error) {
	if strings.TrimSpace(stageKey) == "" {
		return domain.SLAThreshold{}, ValidationError{Field: "stage_key", Message: "is required"}
	}
	if days <= 0 {
		return domain.SLAThreshold{}, ValidationError{Field: "threshold_days", Message: "must be a positive day count"}
	}
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return domain.SLAThreshold{}, err
	}
	t := domain.SLAThreshold{
		CompanyID:     companyID,
		StageKey:      strings.ToLower(strings.TrimSpace(stageKey)),
		ThresholdDays: days,
		UpdatedAt:     e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SLAThreshold{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertThreshold(ctx, tx, t); err != nil {
		return domain.SLAThreshold{}, err
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:           t.UpdatedAt,
		ActivityType: "sla.threshold_set",
		Description:  fmt.Sprintf("SLA for stage %s set to %d day(s)", t.StageKey, days),
		CompanyID:    companyID,
		ActorID:      actorID,
	}); err != nil {
		return domain.SLAThreshold{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SLAThreshold{}, err
	}
	return t, nil
}

// RemoveThreshold clears a stage's dwell limit so the stage is no
// longer scanned. Clearing a stage without an override returns
// repo.ErrNotFound.
func (e Engine) RemoveThreshold(ctx context.Context, companyID, stageKey, actorID string) error {
	if strings.TrimSpace(stageKey) == "" {
		return ValidationError{Field: "stage_key", Message: "is required"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteThreshold(ctx, tx, companyID, stageKey); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:           now,
		ActivityType: "sla.threshold_cleared",
		Description:  fmt.Sprintf("SLA for stage %s cleared", strings.ToLower(strings.TrimSpace(stageKey))),
		CompanyID:    companyID,
		ActorID:      actorID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ApplyDefaultThresholds writes the configured default limits for every
// stage key absent or present, overwriting existing overrides.
func (e Engine) ApplyDefaultThresholds(ctx context.Context, companyID, actorID string) ([]domain.SLAThreshold, error) {
	if _, err := e.Repo.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	keys := make([]string, 0, len(e.Config.SLA.Defaults))
	for key := range e.Config.SLA.Defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	applied := make([]domain.SLAThreshold, 0, len(keys))
	for _, key := range keys {
		t := domain.SLAThreshold{
			CompanyID:     companyID,
			StageKey:      key,
			ThresholdDays: e.Config.SLA.Defaults[key],
			UpdatedAt:     now,
		}
		if err := e.Repo.UpsertThreshold(ctx, tx, t); err != nil {
			return nil, err
		}
		applied = append(applied, t)
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:           now,
		ActivityType: "sla.defaults_applied",
		Description:  fmt.Sprintf("Applied %d default SLA threshold(s)", len(applied)),
		CompanyID:    companyID,
		ActorID:      actorID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

// CheckBreach evaluates one application against the company's
// thresholds. The boolean is false when the stage carries no SLA or the
// dwell is within it. The predicate compares the raw dwell duration
// against the limit; day counts in the breach record are floored for
// reporting only.
func (e Engine) CheckBreach(ctx context.Context, link domain.CandidateJobLink) (domain.Breach, bool, error) {
	stage, err := e.Repo.GetStage(ctx, link.CurrentStageID)
	if err != nil {
		return domain.Breach{}, false, err
	}
	job, err := e.Repo.GetJob(ctx, link.JobID)
	if err != nil {
		return domain.Breach{}, false, err
	}
	t, err := e.Repo.GetThreshold(ctx, job.CompanyID, stage.Name)
	if err == repo.ErrNotFound {
		return domain.Breach{}, false, nil
	}
	if err != nil {
		return domain.Breach{}, false, err
	}
	entered, err := e.CurrentDwell(ctx, link)
	if err != nil {
		return domain.Breach{}, false, err
	}
	if !dwellExceeds(entered, e.now(), t.ThresholdDays) {
		return domain.Breach{}, false, nil
	}
	days := wholeDays(entered, e.now())
	return domain.Breach{
		JobCandidateID: link.ID,
		CandidateID:    link.CandidateID,
		JobID:          link.JobID,
		StageName:      stage.Name,
		DaysInStage:    days,
		ThresholdDays:  t.ThresholdDays,
		DaysOverdue:    days - t.ThresholdDays,
		EnteredAt:      entered.UTC().Format(time.RFC3339),
	}, true, nil
}

// ScanCompany walks every active job of the company and reports all
// current breaches, most overdue first.
func (e Engine) ScanCompany(ctx context.Context, companyID string) ([]domain.Breach, error) {
	thresholds, err := e.Repo.ListThresholds(ctx, companyID)
	if err != nil {
		return nil, err
	}
	limits := make(map[string]int, len(thresholds))
	for _, t := range thresholds {
		limits[t.StageKey] = t.ThresholdDays
	}
	jobs, err := e.Repo.ListJobs(ctx, repo.JobFilters{CompanyID: companyID, Status: "active"})
	if err != nil {
		return nil, err
	}
	now := e.now()
	var breaches []domain.Breach
	for _, job := range jobs {
		stages, err := e.Repo.ListStages(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		names := make(map[string]string, len(stages))
		for _, s := range stages {
			names[s.ID] = s.Name
		}
		links, err := e.Repo.ListLinksByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			stageName := names[link.CurrentStageID]
			limit, ok := limits[strings.ToLower(stageName)]
			if !ok {
				continue
			}
			entered, err := e.CurrentDwell(ctx, link)
			if err != nil {
				return nil, err
			}
			if !dwellExceeds(entered, now, limit) {
				continue
			}
			days := wholeDays(entered, now)
			breaches = append(breaches, domain.Breach{
				JobCandidateID: link.ID,
				CandidateID:    link.CandidateID,
				JobID:          job.ID,
				StageName:      stageName,
				DaysInStage:    days,
				ThresholdDays:  limit,
				DaysOverdue:    days - limit,
				EnteredAt:      entered.UTC().Format(time.RFC3339),
			})
		}
	}
	sort.SliceStable(breaches, func(i, j int) bool {
		return breaches[i].DaysOverdue > breaches[j].DaysOverdue
	})
	return breaches, nil
}

// NotifyBreaches fans each breach out to the job's assigned recruiter
// plus every active admin and hiring manager of the company, once per
// user. It returns the number of notifications written.
func (e Engine) NotifyBreaches(ctx context.Context, companyID string, breaches []domain.Breach, actorID string) (int, error) {
	if len(breaches) == 0 {
		return 0, nil
	}
	managers, err := e.Repo.ActiveUsersByRole(ctx, companyID, []string{"admin", "hiring_manager"})
	if err != nil {
		return 0, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	written := 0
	for _, b := range breaches {
		job, err := e.Repo.GetJob(ctx, b.JobID)
		if err != nil {
			return 0, err
		}
		c, err := e.Repo.GetCandidate(ctx, b.CandidateID)
		if err != nil {
			return 0, err
		}
		recipients := map[string]bool{}
		if job.AssignedRecruiterID != nil {
			recipients[*job.AssignedRecruiterID] = true
		}
		for _, m := range managers {
			recipients[m.ID] = true
		}
		ids := make([]string, 0, len(recipients))
		for id := range recipients {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, userID := range ids {
			n := domain.Notification{
				ID:         uuid.NewString(),
				UserID:     userID,
				Type:       "sla_breach",
				Title:      fmt.Sprintf("SLA breach in %s", b.StageName),
				Message:    fmt.Sprintf("%s has been in %s for %d day(s), %d over the %d-day limit", c.Name, b.StageName, b.DaysInStage, b.DaysOverdue, b.ThresholdDays),
				EntityType: "job_candidate",
				EntityID:   b.JobCandidateID,
				CreatedAt:  now,
			}
			if err := e.Repo.InsertNotification(ctx, tx, n); err != nil {
				return 0, err
			}
			written++
		}
		if err := e.Audit.Append(ctx, tx, audit.Entry{
			TS:             now,
			ActivityType:   "sla.breach_notified",
			Description:    fmt.Sprintf("SLA breach in %s: %d day(s) over", b.StageName, b.DaysOverdue),
			Metadata:       audit.Metadata{"days_overdue": b.DaysOverdue, "recipients": len(ids)},
			CompanyID:      companyID,
			JobID:          b.JobID,
			JobCandidateID: b.JobCandidateID,
			ActorID:        actorID,
		}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// FeedbackAlerts lists candidates sitting in the interview stage, or
// one of its sub-stages, longer than the feedback grace period.
func (e Engine) FeedbackAlerts(ctx context.Context, companyID string) ([]FeedbackAlert, error) {
	jobs, err := e.Repo.ListJobs(ctx, repo.JobFilters{CompanyID: companyID, Status: "active"})
	if err != nil {
		return nil, err
	}
	grace := e.Config.SLA.FeedbackGraceDays
	now := e.now()
	var alerts []FeedbackAlert
	for _, job := range jobs {
		stages, err := e.Repo.ListStages(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]domain.StageDefinition, len(stages))
		for _, s := range stages {
			byID[s.ID] = s
		}
		inFeedback := func(id string) (string, bool) {
			s, ok := byID[id]
			if !ok {
				return "", false
			}
			if strings.EqualFold(s.Name, feedbackStageName) {
				return s.Name, true
			}
			if s.ParentID != nil {
				if p, ok := byID[*s.ParentID]; ok && strings.EqualFold(p.Name, feedbackStageName) {
					return p.Name + " / " + s.Name, true
				}
			}
			return "", false
		}
		links, err := e.Repo.ListLinksByJob(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			stageName, ok := inFeedback(link.CurrentStageID)
			if !ok {
				continue
			}
			entered, err := e.CurrentDwell(ctx, link)
			if err != nil {
				return nil, err
			}
			if !dwellExceeds(entered, now, grace) {
				continue
			}
			days := wholeDays(entered, now)
			alerts = append(alerts, FeedbackAlert{
				JobCandidateID: link.ID,
				CandidateID:    link.CandidateID,
				JobID:          job.ID,
				StageName:      stageName,
				DaysWaiting:    days,
				EnteredAt:      entered.UTC().Format(time.RFC3339),
			})
		}
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].DaysWaiting > alerts[j].DaysWaiting
	})
	return alerts, nil
}

// dwellExceeds reports whether the dwell since entered is strictly
// longer than the whole-day limit. Dwell exactly at the limit is
// compliant.
func dwellExceeds(entered, now time.Time, limitDays int) bool {
	return now.Sub(entered) > time.Duration(limitDays)*24*time.Hour
}

func wholeDays(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
