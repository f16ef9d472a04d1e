package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/engine"
	"talentline/internal/migrate"
	"talentline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

const (
	companyID   = "co-1"
	adminID     = "admin-1"
	managerID   = "hm-1"
	recruiterID = "rec-1"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	now := eng.Now().UTC().Format(time.RFC3339)
	if err := eng.Repo.InsertCompany(ctx, domain.Company{ID: companyID, Name: "Acme", CreatedAt: now}); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	users := []domain.User{
		{ID: adminID, CompanyID: companyID, Name: "Ada", Role: "admin", Status: "active", CreatedAt: now},
		{ID: managerID, CompanyID: companyID, Name: "Hal", Role: "hiring_manager", Status: "active", CreatedAt: now},
		{ID: recruiterID, CompanyID: companyID, Name: "Rae", Role: "recruiter", Status: "active", CreatedAt: now},
	}
	for _, u := range users {
		if err := eng.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return &testEnv{Engine: eng, Ctx: ctx}
}

func (env *testEnv) createJob(t *testing.T, opts engine.JobCreateOptions) domain.Job {
	t.Helper()
	if opts.CompanyID == "" {
		opts.CompanyID = companyID
	}
	if opts.Title == "" {
		opts.Title = "Backend Engineer"
	}
	if opts.ActorID == "" {
		opts.ActorID = adminID
	}
	j, err := env.Engine.CreateJob(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func topLevel(stages []domain.StageDefinition) []domain.StageDefinition {
	var out []domain.StageDefinition
	for _, s := range stages {
		if s.ParentID == nil {
			out = append(out, s)
		}
	}
	return out
}

func TestCreateJobDefaultPipeline(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})

	stages, err := env.Engine.Repo.ListStages(env.Ctx, j.ID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	top := topLevel(stages)
	// 8 template stages plus the injected Rejected stage.
	if len(top) != 9 {
		t.Fatalf("top-level stages = %d, want 9", len(top))
	}
	defaults := 0
	for i, s := range top {
		if s.Position != i {
			t.Fatalf("stage %s position = %d, want %d", s.Name, s.Position, i)
		}
		if s.IsDefault {
			defaults++
			if s.Name != "Applied" {
				t.Fatalf("default stage = %s, want Applied", s.Name)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("default stage count = %d, want 1", defaults)
	}
	last := top[len(top)-1]
	if last.Name != "Rejected" || !last.IsMandatory {
		t.Fatalf("last stage = %+v, want mandatory Rejected", last)
	}
	interview, err := env.Engine.Repo.FindStageByName(env.Ctx, j.ID, "Interview")
	if err != nil {
		t.Fatalf("find interview: %v", err)
	}
	subs := 0
	for _, s := range stages {
		if s.ParentID != nil && *s.ParentID == interview.ID {
			if s.Position != subs {
				t.Fatalf("substage %s position = %d, want %d", s.Name, s.Position, subs)
			}
			subs++
		}
	}
	if subs != 3 {
		t.Fatalf("interview substages = %d, want 3", subs)
	}
}

func TestNormalizeAdvisoryPositions(t *testing.T) {
	env := newTestEnv(t)
	five, one := 5, 1
	j := env.createJob(t, engine.JobCreateOptions{Stages: []engine.StageInput{
		{Name: "Offer", Position: &five},
		{Name: "Screen", Position: &one},
	}})
	top := topLevel(mustStages(t, env, j.ID))
	want := []string{"Screen", "Offer", "Applied", "Rejected"}
	if len(top) != len(want) {
		t.Fatalf("top-level stages = %d, want %d", len(top), len(want))
	}
	for i, s := range top {
		if s.Name != want[i] || s.Position != i {
			t.Fatalf("stage[%d] = %s@%d, want %s@%d", i, s.Name, s.Position, want[i], i)
		}
	}
	applied := top[2]
	if !applied.IsDefault || !applied.IsMandatory {
		t.Fatalf("injected Applied flags wrong: %+v", applied)
	}
}

func mustStages(t *testing.T, env *testEnv, jobID string) []domain.StageDefinition {
	t.Helper()
	stages, err := env.Engine.Repo.ListStages(env.Ctx, jobID)
	if err != nil {
		t.Fatalf("list stages: %v", err)
	}
	return stages
}

func TestStageValidation(t *testing.T) {
	env := newTestEnv(t)
	neg := -1
	cases := []struct {
		name   string
		stages []engine.StageInput
	}{
		{"blank name", []engine.StageInput{{Name: "  "}}},
		{"negative position", []engine.StageInput{{Name: "Screen", Position: &neg}}},
		{"duplicate name", []engine.StageInput{{Name: "Screen"}, {Name: "screen"}}},
		{"blank substage", []engine.StageInput{{Name: "Interview", Substages: []string{""}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
				CompanyID: companyID, Title: "x", Stages: tc.stages, ActorID: adminID,
			})
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ve engine.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T, want ValidationError: %v", err, err)
			}
		})
	}
}

func TestStageReplaceOnFreshJob(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})
	res, err := env.Engine.UpdateJob(env.Ctx, engine.JobUpdateOptions{
		ID:      j.ID,
		Stages:  []engine.StageInput{{Name: "Screen"}, {Name: "Offer"}},
		ActorID: adminID,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.StagesSkipped {
		t.Fatal("replacement skipped with no candidates")
	}
	top := topLevel(mustStages(t, env, j.ID))
	if len(top) != 4 {
		t.Fatalf("top-level stages = %d, want 4", len(top))
	}
}

func TestStageReplaceSkippedWhenCandidatesLinked(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})
	if _, err := env.Engine.ApplyCandidate(env.Ctx, engine.ApplyOptions{
		JobID: j.ID, Name: "Cam", ExperienceYears: 4, ActorID: recruiterID,
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before := mustStages(t, env, j.ID)

	title := "Senior Backend Engineer"
	res, err := env.Engine.UpdateJob(env.Ctx, engine.JobUpdateOptions{
		ID:      j.ID,
		Title:   &title,
		Stages:  []engine.StageInput{{Name: "Only"}},
		ActorID: adminID,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.StagesSkipped {
		t.Fatal("expected stage replacement to be skipped")
	}
	if res.Job.Title != title {
		t.Fatalf("title not updated: %q", res.Job.Title)
	}
	after := mustStages(t, env, j.ID)
	if len(after) != len(before) {
		t.Fatalf("stage rows changed: %d -> %d", len(before), len(after))
	}
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{JobID: j.ID, ActivityType: "job.stages_skipped"})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("stages_skipped activities = %d, want 1", len(acts))
	}
}

func TestActivityTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{JobID: j.ID, ActivityType: "job.created"})
	if err != nil {
		t.Fatalf("list activities: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("activities = %d, want 1", len(acts))
	}
	if want := "2024-01-01T00:00:00Z"; acts[0].TS != want {
		t.Fatalf("activity ts = %q, want %q", acts[0].TS, want)
	}
}

func TestApplyAutoRejects(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{
		Rules: `{"enabled":true,"rules":{"min_experience":5}}`,
	})
	res, err := env.Engine.ApplyCandidate(env.Ctx, engine.ApplyOptions{
		JobID: j.ID, Name: "Cam", ExperienceYears: 3, ActorID: recruiterID,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.AutoRejected {
		t.Fatal("expected auto-rejection")
	}
	if !strings.Contains(res.Reason, "minimum experience") {
		t.Fatalf("reason = %q", res.Reason)
	}
	rejected, err := env.Engine.Repo.FindStageByName(env.Ctx, j.ID, "Rejected")
	if err != nil {
		t.Fatalf("find rejected: %v", err)
	}
	if res.Link.CurrentStageID != rejected.ID {
		t.Fatalf("link stage = %s, want Rejected %s", res.Link.CurrentStageID, rejected.ID)
	}
	history, err := env.Engine.Repo.ListHistory(env.Ctx, res.Link.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}
	if history[0].ExitedAt == nil {
		t.Fatal("entry ledger row not closed on auto-reject")
	}
	open, err := env.Engine.Repo.CountOpenEntries(env.Ctx, res.Link.ID)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if open != 1 {
		t.Fatalf("open entries = %d, want 1", open)
	}
	acts, err := env.Engine.Repo.ListActivities(env.Ctx, repo.ActivityFilters{JobCandidateID: res.Link.ID, ActivityType: "candidate.auto_rejected"})
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(acts) != 1 || !strings.HasPrefix(acts[0].Description, "Auto-rejected") {
		t.Fatalf("auto-reject activity missing or malformed: %+v", acts)
	}
}

func TestApplyPassesRules(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{
		Rules: `{"enabled":true,"rules":{"min_experience":5}}`,
	})
	res, err := env.Engine.ApplyCandidate(env.Ctx, engine.ApplyOptions{
		JobID: j.ID, Name: "Quin", ExperienceYears: 5, ActorID: recruiterID,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.AutoRejected {
		t.Fatalf("equal-to-minimum candidate rejected: %q", res.Reason)
	}
	applied, _ := env.Engine.Repo.FindStageByName(env.Ctx, j.ID, "Applied")
	if res.Link.CurrentStageID != applied.ID {
		t.Fatalf("link stage = %s, want Applied", res.Link.CurrentStageID)
	}
}

func TestApplyFailureLeavesNoProfile(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})
	// Corrupt the stored rule set behind the engine's back so the
	// application fails after the candidate payload is accepted.
	if _, err := env.Engine.DB.ExecContext(env.Ctx, `UPDATE jobs SET rules_json='{broken' WHERE id=?`, j.ID); err != nil {
		t.Fatalf("corrupt rules: %v", err)
	}
	if _, err := env.Engine.ApplyCandidate(env.Ctx, engine.ApplyOptions{
		JobID: j.ID, Name: "Cam", ExperienceYears: 4, ActorID: recruiterID,
	}); err == nil {
		t.Fatal("application with unparseable stored rules accepted")
	}
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM candidates`).Scan(&n); err != nil {
		t.Fatalf("count candidates: %v", err)
	}
	if n != 0 {
		t.Fatalf("candidate rows after failed application = %d, want 0", n)
	}
}

func TestCreateJobRejectsInvalidRules(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		CompanyID: companyID,
		Title:     "x",
		Rules:     `{"enabled":true,"rules":{}}`,
		ActorID:   adminID,
	})
	if err == nil {
		t.Fatal("enabled empty rule set accepted")
	}
}

func TestMoveCandidateLedger(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})
	res, err := env.Engine.ApplyCandidate(env.Ctx, engine.ApplyOptions{
		JobID: j.ID, Name: "Cam", ExperienceYears: 4, ActorID: recruiterID,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	moved, err := env.Engine.MoveCandidate(env.Ctx, engine.MoveOptions{
		JobCandidateID: res.Link.ID, ToStage: "Screening", ActorID: recruiterID,
	})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	screening, _ := env.Engine.Repo.FindStageByName(env.Ctx, j.ID, "Screening")
	if moved.CurrentStageID != screening.ID {
		t.Fatalf("current stage = %s, want Screening", moved.CurrentStageID)
	}
	open, err := env.Engine.Repo.CountOpenEntries(env.Ctx, res.Link.ID)
	if err != nil {
		t.Fatalf("count open: %v", err)
	}
	if open != 1 {
		t.Fatalf("open entries = %d, want exactly 1", open)
	}
	history, _ := env.Engine.Repo.ListHistory(env.Ctx, res.Link.ID)
	if len(history) != 2 {
		t.Fatalf("history entries = %d, want 2", len(history))
	}

	// Moving into the occupied stage is refused.
	if _, err := env.Engine.MoveCandidate(env.Ctx, engine.MoveOptions{
		JobCandidateID: res.Link.ID, ToStage: "Screening", ActorID: recruiterID,
	}); err == nil {
		t.Fatal("same-stage move accepted")
	}

	// Unknown stage name is not found.
	if _, err := env.Engine.MoveCandidate(env.Ctx, engine.MoveOptions{
		JobCandidateID: res.Link.ID, ToStage: "Limbo", ActorID: recruiterID,
	}); err == nil {
		t.Fatal("unknown stage move accepted")
	}
}

func TestApplyToNonActiveJob(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, engine.JobCreateOptions{})
	status := "paused"
	if _, err := env.Engine.UpdateJob(env.Ctx, engine.JobUpdateOptions{ID: j.ID, Status: &status, ActorID: adminID}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.Engine.ApplyCandidate(env.Ctx, engine.ApplyOptions{
		JobID: j.ID, Name: "Cam", ActorID: recruiterID,
	}); err == nil {
		t.Fatal("application to paused job accepted")
	}
}
