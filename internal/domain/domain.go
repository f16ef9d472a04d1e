package domain

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role" enum:"admin,hiring_manager,recruiter"`
	Status    string `json:"status" enum:"active,inactive"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Job struct {
	ID                  string  `json:"id"`
	CompanyID           string  `json:"company_id"`
	Title               string  `json:"title"`
	Status              string  `json:"status" enum:"active,paused,closed"`
	AssignedRecruiterID *string `json:"assigned_recruiter_id,omitempty"`
	RulesJSON           *string `json:"rules_json,omitempty"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	UpdatedAt           string  `json:"updated_at" format:"date-time"`
}

// StageDefinition is one step of a job's pipeline. ParentID is set for
// sub-stages; nesting is exactly one level deep. Position is unique
// within its sibling scope (job_id, parent_id).
type StageDefinition struct {
	ID          string  `json:"id"`
	JobID       string  `json:"job_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	Name        string  `json:"name"`
	Position    int     `json:"position"`
	IsMandatory bool    `json:"is_mandatory"`
	IsDefault   bool    `json:"is_default"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Candidate struct {
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

// CandidateJobLink pairs a candidate with a job. CurrentStageID mirrors
// the single open stage_history row for the pairing.
type CandidateJobLink struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	CandidateID    string `json:"candidate_id"`
	CurrentStageID string `json:"current_stage_id"`
	AppliedAt      string `json:"applied_at" format:"date-time"`
}

// StageHistoryEntry is one occupancy interval in the transition ledger.
// ExitedAt nil means the candidate is currently in this stage.
type StageHistoryEntry struct {
	ID             int64   `json:"id"`
	JobCandidateID string  `json:"job_candidate_id"`
	StageID        string  `json:"stage_id"`
	EnteredAt      string  `json:"entered_at" format:"date-time"`
	ExitedAt       *string `json:"exited_at,omitempty" format:"date-time"`
}

// SLAThreshold is a per-company dwell limit keyed by lower-cased stage
// name. Absence of a row means no SLA for that stage.
type SLAThreshold struct {
	CompanyID     string `json:"company_id"`
	StageKey      string `json:"stage_key"`
	ThresholdDays int    `json:"threshold_days"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type Notification struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Activity is one audit record. Description embeds human-readable
// context (auto-rejection reasons keep the "Auto-rejected" prefix that
// downstream consumers match on).
type Activity struct {
	ID             int64  `json:"id"`
	TS             string `json:"ts" format:"date-time"`
	ActivityType   string `json:"activity_type"`
	Description    string `json:"description"`
	MetadataJSON   string `json:"metadata_json,omitempty"`
	CompanyID      string `json:"company_id,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	JobCandidateID string `json:"job_candidate_id,omitempty"`
	ActorID        string `json:"actor_id"`
}

// Breach is a derived SLA violation; DaysInStage and DaysOverdue are
// floored whole days.
type Breach struct {
	JobCandidateID string `json:"job_candidate_id"`
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	StageName      string `json:"stage_name"`
	DaysInStage    int    `json:"days_in_stage"`
	ThresholdDays  int    `json:"threshold_days"`
	DaysOverdue    int    `json:"days_overdue"`
	EnteredAt      string `json:"entered_at" format:"date-time"`
}
