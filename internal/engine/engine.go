package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentline/internal/audit"
	"talentline/internal/config"
	"talentline/internal/domain"
	"talentline/internal/engine/rules"
	"talentline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// ValidationError reports rejected input with a field-level message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StageInput is one requested pipeline stage. Position is advisory: it
// only orders the request, the stored positions are always reassigned
// to a dense 0..n-1 sequence.
type StageInput struct {
	Name      string   `json:"name"`
	Position  *int     `json:"position,omitempty"`
	Substages []string `json:"substages,omitempty"`
}

// NormalizedStage is a topology row ready to materialize: dense
// position, mandatory and default flags resolved against the template.
type NormalizedStage struct {
	Name        string
	Position    int
	IsMandatory bool
	IsDefault   bool
	Substages   []string
}

// DefaultStageInputs converts the configured template into stage
// inputs, used when a job is created without an explicit pipeline.
func DefaultStageInputs(cfg *config.Config) []StageInput {
	inputs := make([]StageInput, 0, len(cfg.Pipeline.Stages))
	for _, st := range cfg.Pipeline.Stages {
		inputs = append(inputs, StageInput{Name: st.Name, Substages: st.Substages})
	}
	return inputs
}

// NormalizeStages validates and canonicalizes a requested topology.
// Mandatory stages missing from the request are appended in template
// order, advisory positions decide ordering among the requested stages,
// and final positions are reassigned densely. The stage configured as
// the application entry point carries the default flag.
func (e Engine) NormalizeStages(inputs []StageInput) ([]NormalizedStage, error) {
	if len(inputs) == 0 {
		inputs = DefaultStageInputs(e.Config)
	}
	seen := map[string]bool{}
	type keyed struct {
		stage NormalizedStage
		key   int
	}
	ordered := make([]keyed, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, ValidationError{Field: fmt.Sprintf("stages[%d].name", i), Message: "must not be blank"}
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			return nil, ValidationError{Field: fmt.Sprintf("stages[%d].name", i), Message: fmt.Sprintf("stage %s repeated", name)}
		}
		seen[lower] = true
		key := len(inputs) + i
		if in.Position != nil {
			if *in.Position < 0 {
				return nil, ValidationError{Field: fmt.Sprintf("stages[%d].position", i), Message: "must not be negative"}
			}
			key = *in.Position - len(inputs)
		}
		subSeen := map[string]bool{}
		subs := make([]string, 0, len(in.Substages))
		for j, sub := range in.Substages {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				return nil, ValidationError{Field: fmt.Sprintf("stages[%d].substages[%d]", i, j), Message: "must not be blank"}
			}
			if subSeen[strings.ToLower(sub)] {
				return nil, ValidationError{Field: fmt.Sprintf("stages[%d].substages[%d]", i, j), Message: fmt.Sprintf("substage %s repeated", sub)}
			}
			subSeen[strings.ToLower(sub)] = true
			subs = append(subs, sub)
		}
		ordered = append(ordered, keyed{stage: NormalizedStage{Name: name, Substages: subs}, key: key})
	}
	// Stable insertion sort keeps request order among equal keys.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].key < ordered[j-1].key; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	result := make([]NormalizedStage, 0, len(ordered)+len(e.Config.Pipeline.Mandatory))
	for _, k := range ordered {
		result = append(result, k.stage)
	}
	for _, name := range e.Config.Pipeline.Mandatory {
		if !seen[strings.ToLower(name)] {
			result = append(result, NormalizedStage{Name: name})
			seen[strings.ToLower(name)] = true
		}
	}
	defaultName := e.Config.Pipeline.ApplicationStage
	foundDefault := false
	for i := range result {
		result[i].Position = i
		result[i].IsMandatory = e.Config.HasMandatory(result[i].Name)
		result[i].IsDefault = strings.EqualFold(result[i].Name, defaultName)
		foundDefault = foundDefault || result[i].IsDefault
	}
	if !foundDefault {
		result[0].IsDefault = true
	}
	return result, nil
}

func (e Engine) insertStages(ctx context.Context, tx *sql.Tx, jobID string, stages []NormalizedStage, now string) error {
	for _, st := range stages {
		parent := domain.StageDefinition{
			ID:          uuid.NewString(),
			JobID:       jobID,
			Name:        st.Name,
			Position:    st.Position,
			IsMandatory: st.IsMandatory,
			IsDefault:   st.IsDefault,
			CreatedAt:   now,
		}
		if err := e.Repo.InsertStage(ctx, tx, parent); err != nil {
			return fmt.Errorf("insert stage %s: %w", st.Name, err)
		}
		for pos, sub := range st.Substages {
			parentID := parent.ID
			child := domain.StageDefinition{
				ID:        uuid.NewString(),
				JobID:     jobID,
				ParentID:  &parentID,
				Name:      sub,
				Position:  pos,
				CreatedAt: now,
			}
			if err := e.Repo.InsertStage(ctx, tx, child); err != nil {
				return fmt.Errorf("insert substage %s: %w", sub, err)
			}
		}
	}
	return nil
}

// canonicalRules validates a raw rule payload and returns its tagged
// canonical encoding for storage.
func canonicalRules(raw string) (*string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	set, err := rules.Parse([]byte(raw))
	if err != nil {
		return nil, err
	}
	data, err := set.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out := string(data)
	return &out, nil
}

// JobCreateOptions are parameters for creating a job.
type JobCreateOptions struct {
	ID                  string
	CompanyID           string
	Title               string
	AssignedRecruiterID string
	Rules               string
	Stages              []StageInput
	ActorID             string
}

func (e Engine) CreateJob(ctx context.Context, opts JobCreateOptions) (domain.Job, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Job{}, ValidationError{Field: "title", Message: "is required"}
	}
	if _, err := e.Repo.GetCompany(ctx, opts.CompanyID); err != nil {
		return domain.Job{}, err
	}
	if opts.AssignedRecruiterID != "" {
		u, err := e.Repo.GetUser(ctx, opts.AssignedRecruiterID)
		if err != nil {
			return domain.Job{}, err
		}
		if u.CompanyID != opts.CompanyID {
			return domain.Job{}, ValidationError{Field: "assigned_recruiter_id", Message: "recruiter belongs to another company"}
		}
	}
	rulesJSON, err := canonicalRules(opts.Rules)
	if err != nil {
		return domain.Job{}, err
	}
	stages, err := e.NormalizeStages(opts.Stages)
	if err != nil {
		return domain.Job{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now().UTC().Format(time.RFC3339)
	j := domain.Job{
		ID:        id,
		CompanyID: opts.CompanyID,
		Title:     opts.Title,
		Status:    "active",
		RulesJSON: rulesJSON,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.AssignedRecruiterID != "" {
		j.AssignedRecruiterID = &opts.AssignedRecruiterID
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Job{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertJob(ctx, tx, j); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	if err := e.insertStages(ctx, tx, j.ID, stages, now); err != nil {
		return domain.Job{}, err
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:           now,
		ActivityType: "job.created",
		Description:  fmt.Sprintf("Job %q created", j.Title),
		Metadata:     audit.Metadata{"stage_count": len(stages)},
		CompanyID:    j.CompanyID,
		JobID:        j.ID,
		ActorID:      opts.ActorID,
	}); err != nil {
		return domain.Job{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Job{}, err
	}
	return j, nil
}

// JobUpdateOptions are parameters for updating a job. Nil pointers
// leave the field untouched; a non-nil Stages slice requests a stage
// replacement.
type JobUpdateOptions struct {
	ID                  string
	Title               *string
	Status              *string
	AssignedRecruiterID *string
	Rules               *string
	Stages              []StageInput
	ActorID             string
}

// JobUpdateResult reports the applied update. StagesSkipped is set when
// a requested stage replacement was refused because candidates are
// already linked; the rest of the update still lands.
type JobUpdateResult struct {
	Job           domain.Job
	StagesSkipped bool
}

var jobStatuses = map[string]bool{"active": true, "paused": true, "closed": true}

func (e Engine) UpdateJob(ctx context.Context, opts JobUpdateOptions) (JobUpdateResult, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return JobUpdateResult{}, err
	}
	defer tx.Rollback()

	j, err := e.Repo.GetJobTx(ctx, tx, opts.ID)
	if err != nil {
		return JobUpdateResult{}, err
	}
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return JobUpdateResult{}, ValidationError{Field: "title", Message: "must not be blank"}
		}
		j.Title = *opts.Title
	}
	if opts.Status != nil {
		if !jobStatuses[*opts.Status] {
			return JobUpdateResult{}, ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *opts.Status)}
		}
		j.Status = *opts.Status
	}
	if opts.AssignedRecruiterID != nil {
		if *opts.AssignedRecruiterID == "" {
			j.AssignedRecruiterID = nil
		} else {
			u, err := e.Repo.GetUser(ctx, *opts.AssignedRecruiterID)
			if err != nil {
				return JobUpdateResult{}, err
			}
			if u.CompanyID != j.CompanyID {
				return JobUpdateResult{}, ValidationError{Field: "assigned_recruiter_id", Message: "recruiter belongs to another company"}
			}
			j.AssignedRecruiterID = opts.AssignedRecruiterID
		}
	}
	if opts.Rules != nil {
		rulesJSON, err := canonicalRules(*opts.Rules)
		if err != nil {
			return JobUpdateResult{}, err
		}
		j.RulesJSON = rulesJSON
	}
	now := e.now().UTC().Format(time.RFC3339)
	skipped := false
	if opts.Stages != nil {
		count, err := e.Repo.CountLinksByJobTx(ctx, tx, j.ID)
		if err != nil {
			return JobUpdateResult{}, err
		}
		if count > 0 {
			// The topology freezes once candidates are in flight; the
			// refusal is recorded rather than silent.
			skipped = true
			if err := e.Audit.Append(ctx, tx, audit.Entry{
				TS:           now,
				ActivityType: "job.stages_skipped",
				Description:  fmt.Sprintf("Stage replacement skipped: %d candidate(s) already in pipeline", count),
				Metadata:     audit.Metadata{"linked_candidates": count},
				CompanyID:    j.CompanyID,
				JobID:        j.ID,
				ActorID:      opts.ActorID,
			}); err != nil {
				return JobUpdateResult{}, err
			}
		} else {
			stages, err := e.NormalizeStages(opts.Stages)
			if err != nil {
				return JobUpdateResult{}, err
			}
			if err := e.Repo.DeleteStages(ctx, tx, j.ID); err != nil {
				return JobUpdateResult{}, err
			}
			if err := e.insertStages(ctx, tx, j.ID, stages, now); err != nil {
				return JobUpdateResult{}, err
			}
		}
	}
	j.UpdatedAt = now
	if err := e.Repo.UpdateJob(ctx, tx, j); err != nil {
		return JobUpdateResult{}, err
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:           now,
		ActivityType: "job.updated",
		Description:  fmt.Sprintf("Job %q updated", j.Title),
		Metadata:     audit.Metadata{"stages_skipped": skipped},
		CompanyID:    j.CompanyID,
		JobID:        j.ID,
		ActorID:      opts.ActorID,
	}); err != nil {
		return JobUpdateResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return JobUpdateResult{}, err
	}
	return JobUpdateResult{Job: j, StagesSkipped: skipped}, nil
}

func (e Engine) DeleteJob(ctx context.Context, jobID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	j, err := e.Repo.GetJobTx(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, audit.Entry{
		TS:           e.now().UTC().Format(time.RFC3339),
		ActivityType: "job.deleted",
		Description:  fmt.Sprintf("Job %q deleted", j.Title),
		CompanyID:    j.CompanyID,
		ActorID:      actorID,
	}); err != nil {
		return err
	}
	if err := e.Repo.DeleteJob(ctx, tx, jobID); err != nil {
		return err
	}
	return tx.Commit()
}

// StageTree is a top-level stage with its sub-stages attached, the
// shape the API returns.
type StageTree struct {
	domain.StageDefinition
	Substages []domain.StageDefinition `json:"substages,omitempty"`
}

// JobStages returns the job's topology grouped as trees.
func (e Engine) JobStages(ctx context.Context, jobID string) ([]StageTree, error) {
	if _, err := e.Repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	flat, err := e.Repo.ListStages(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var trees []StageTree
	index := map[string]int{}
	for _, s := range flat {
		if s.ParentID == nil {
			index[s.ID] = len(trees)
			trees = append(trees, StageTree{StageDefinition: s})
		}
	}
	for _, s := range flat {
		if s.ParentID != nil {
			if i, ok := index[*s.ParentID]; ok {
				trees[i].Substages = append(trees[i].Substages, s)
			}
		}
	}
	return trees, nil
}
