package server

import (
	"encoding/json"

	"talentline/internal/domain"
	"talentline/internal/engine"
)

// Request payloads

type StageRequest struct {
	Name      string   `json:"name"`
	Position  *int     `json:"position,omitempty"`
	Substages []string `json:"substages,omitempty"`
}

type CreateJobRequest struct {
	ID                  *string         `json:"id,omitempty"`
	Title               string          `json:"title"`
	AssignedRecruiterID *string         `json:"assigned_recruiter_id,omitempty"`
	Rules               json.RawMessage `json:"rules,omitempty"`
	Stages              []StageRequest  `json:"stages,omitempty"`
}

type UpdateJobRequest struct {
	Title               *string          `json:"title,omitempty"`
	Status              *string          `json:"status,omitempty" enum:"active,paused,closed"`
	AssignedRecruiterID *string          `json:"assigned_recruiter_id,omitempty"`
	Rules               *json.RawMessage `json:"rules,omitempty"`
	Stages              []StageRequest   `json:"stages,omitempty"`
}

type ApplyCandidateRequest struct {
	CandidateID       *string  `json:"candidate_id,omitempty"`
	Name              string   `json:"name,omitempty"`
	Email             string   `json:"email,omitempty"`
	ExperienceYears   float64  `json:"experience_years,omitempty"`
	Location          string   `json:"location,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	Education         []string `json:"education,omitempty"`
	SalaryExpectation *float64 `json:"salary_expectation,omitempty"`
}

type MoveCandidateRequest struct {
	ToStageID string `json:"to_stage_id,omitempty"`
	ToStage   string `json:"to_stage,omitempty"`
}

type ThresholdRequest struct {
	StageKey      string `json:"stage_key"`
	ThresholdDays int    `json:"threshold_days"`
}

type PutThresholdsRequest struct {
	Thresholds []ThresholdRequest `json:"thresholds"`
}

// Response payloads

type JobResponse struct {
	ID                  string          `json:"id"`
	CompanyID           string          `json:"company_id"`
	Title               string          `json:"title"`
	Status              string          `json:"status" enum:"active,paused,closed"`
	AssignedRecruiterID *string         `json:"assigned_recruiter_id,omitempty"`
	Rules               json.RawMessage `json:"rules,omitempty"`
	CreatedAt           string          `json:"created_at" format:"date-time"`
	UpdatedAt           string          `json:"updated_at" format:"date-time"`
}

type UpdateJobResponse struct {
	JobResponse
	StagesSkipped bool `json:"stages_skipped,omitempty"`
}

type StageResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Position    int             `json:"position"`
	IsMandatory bool            `json:"is_mandatory"`
	IsDefault   bool            `json:"is_default"`
	Substages   []StageResponse `json:"substages,omitempty"`
}

type CandidateResponse struct {
	ID                string   `json:"id"`
	CompanyID         string   `json:"company_id"`
	Name              string   `json:"name"`
	Email             string   `json:"email,omitempty"`
	ExperienceYears   float64  `json:"experience_years"`
	Location          string   `json:"location,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	Education         []string `json:"education,omitempty"`
	SalaryExpectation *float64 `json:"salary_expectation,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

type ApplicationResponse struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	CandidateID    string `json:"candidate_id"`
	CurrentStageID string `json:"current_stage_id"`
	AppliedAt      string `json:"applied_at" format:"date-time"`
}

type ApplyResultResponse struct {
	Candidate    CandidateResponse   `json:"candidate"`
	Application  ApplicationResponse `json:"application"`
	AutoRejected bool                `json:"auto_rejected"`
	Reason       string              `json:"reason,omitempty"`
}

type HistoryEntryResponse struct {
	ID        int64   `json:"id"`
	StageID   string  `json:"stage_id"`
	EnteredAt string  `json:"entered_at" format:"date-time"`
	ExitedAt  *string `json:"exited_at,omitempty" format:"date-time"`
}

type ThresholdResponse struct {
	StageKey      string `json:"stage_key"`
	ThresholdDays int    `json:"threshold_days"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type AlertsResponse struct {
	SLA      []domain.Breach        `json:"sla,omitempty"`
	Feedback []engine.FeedbackAlert `json:"feedback,omitempty"`
}

type NotificationResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ActivityResponse struct {
	ID             int64          `json:"id"`
	TS             string         `json:"ts" format:"date-time"`
	ActivityType   string         `json:"activity_type"`
	Description    string         `json:"description"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	JobID          string         `json:"job_id,omitempty"`
	JobCandidateID string         `json:"job_candidate_id,omitempty"`
	ActorID        string         `json:"actor_id"`
}

// Mapping helpers

func jobResponse(j domain.Job) JobResponse {
	out := JobResponse{
		ID:                  j.ID,
		CompanyID:           j.CompanyID,
		Title:               j.Title,
		Status:              j.Status,
		AssignedRecruiterID: j.AssignedRecruiterID,
		CreatedAt:           j.CreatedAt,
		UpdatedAt:           j.UpdatedAt,
	}
	if j.RulesJSON != nil {
		out.Rules = json.RawMessage(*j.RulesJSON)
	}
	return out
}

func mapJobs(items []domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(items))
	for _, j := range items {
		out = append(out, jobResponse(j))
	}
	return out
}

func stageResponse(s domain.StageDefinition) StageResponse {
	return StageResponse{
		ID:          s.ID,
		Name:        s.Name,
		Position:    s.Position,
		IsMandatory: s.IsMandatory,
		IsDefault:   s.IsDefault,
	}
}

func mapStageTrees(trees []engine.StageTree) []StageResponse {
	out := make([]StageResponse, 0, len(trees))
	for _, t := range trees {
		r := stageResponse(t.StageDefinition)
		for _, sub := range t.Substages {
			r.Substages = append(r.Substages, stageResponse(sub))
		}
		out = append(out, r)
	}
	return out
}

func candidateResponse(c domain.Candidate) CandidateResponse {
	return CandidateResponse{
		ID:                c.ID,
		CompanyID:         c.CompanyID,
		Name:              c.Name,
		Email:             c.Email,
		ExperienceYears:   c.ExperienceYears,
		Location:          c.Location,
		Skills:            c.Skills,
		Education:         c.Education,
		SalaryExpectation: c.SalaryExpectation,
		CreatedAt:         c.CreatedAt,
	}
}

func applicationResponse(l domain.CandidateJobLink) ApplicationResponse {
	return ApplicationResponse{
		ID:             l.ID,
		JobID:          l.JobID,
		CandidateID:    l.CandidateID,
		CurrentStageID: l.CurrentStageID,
		AppliedAt:      l.AppliedAt,
	}
}

func thresholdResponse(t domain.SLAThreshold) ThresholdResponse {
	return ThresholdResponse{StageKey: t.StageKey, ThresholdDays: t.ThresholdDays, UpdatedAt: t.UpdatedAt}
}

func mapThresholds(items []domain.SLAThreshold) []ThresholdResponse {
	out := make([]ThresholdResponse, 0, len(items))
	for _, t := range items {
		out = append(out, thresholdResponse(t))
	}
	return out
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		EntityType: n.EntityType,
		EntityID:   n.EntityID,
		CreatedAt:  n.CreatedAt,
	}
}

func activityResponse(a domain.Activity) ActivityResponse {
	out := ActivityResponse{
		ID:             a.ID,
		TS:             a.TS,
		ActivityType:   a.ActivityType,
		Description:    a.Description,
		JobID:          a.JobID,
		JobCandidateID: a.JobCandidateID,
		ActorID:        a.ActorID,
	}
	if a.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(a.MetadataJSON), &out.Metadata)
	}
	return out
}

func stageInputs(reqs []StageRequest) []engine.StageInput {
	if reqs == nil {
		return nil
	}
	out := make([]engine.StageInput, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, engine.StageInput{Name: r.Name, Position: r.Position, Substages: r.Substages})
	}
	return out
}
