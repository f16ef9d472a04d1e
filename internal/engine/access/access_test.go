package access_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/engine"
	"talentline/internal/engine/access"
	"talentline/internal/migrate"
)

type gateEnv struct {
	Gate   access.Gate
	Engine engine.Engine
	Ctx    context.Context
}

const (
	companyID   = "co-1"
	otherCoID   = "co-2"
	adminID     = "admin-1"
	managerID   = "hm-1"
	recruiterID = "rec-1"
	otherRecID  = "rec-2"
	outsiderID  = "out-1"
)

func newGateEnv(t *testing.T) *gateEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
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
	for _, c := range []domain.Company{
		{ID: companyID, Name: "Acme", CreatedAt: now},
		{ID: otherCoID, Name: "Globex", CreatedAt: now},
	} {
		if err := eng.Repo.InsertCompany(ctx, c); err != nil {
			t.Fatalf("seed company: %v", err)
		}
	}
	for _, u := range []domain.User{
		{ID: adminID, CompanyID: companyID, Name: "Ada", Role: "admin", Status: "active", CreatedAt: now},
		{ID: managerID, CompanyID: companyID, Name: "Hal", Role: "hiring_manager", Status: "active", CreatedAt: now},
		{ID: recruiterID, CompanyID: companyID, Name: "Rae", Role: "recruiter", Status: "active", CreatedAt: now},
		{ID: otherRecID, CompanyID: companyID, Name: "Rob", Role: "recruiter", Status: "active", CreatedAt: now},
		{ID: outsiderID, CompanyID: otherCoID, Name: "Oda", Role: "admin", Status: "active", CreatedAt: now},
	} {
		if err := eng.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	return &gateEnv{Gate: access.New(conn), Engine: eng, Ctx: ctx}
}

func (env *gateEnv) createJob(t *testing.T, title, recruiter string) domain.Job {
	t.Helper()
	j, err := env.Engine.CreateJob(env.Ctx, engine.JobCreateOptions{
		CompanyID:           companyID,
		Title:               title,
		AssignedRecruiterID: recruiter,
		ActorID:             adminID,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestRecruiterOnlyAssignedJobs(t *testing.T) {
	env := newGateEnv(t)
	mine := env.createJob(t, "Mine", recruiterID)
	other := env.createJob(t, "Other", otherRecID)
	unassigned := env.createJob(t, "Unassigned", "")

	if err := env.Gate.ValidateAccess(env.Ctx, mine.ID, recruiterID, access.RoleRecruiter); err != nil {
		t.Fatalf("assigned job denied: %v", err)
	}
	for _, j := range []domain.Job{other, unassigned} {
		err := env.Gate.ValidateAccess(env.Ctx, j.ID, recruiterID, access.RoleRecruiter)
		var denied access.DeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("job %s: error %T, want DeniedError: %v", j.Title, err, err)
		}
	}
}

func TestAdminAndManagerSeeEverything(t *testing.T) {
	env := newGateEnv(t)
	j := env.createJob(t, "Backend", recruiterID)
	if err := env.Gate.ValidateAccess(env.Ctx, j.ID, adminID, access.RoleAdmin); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
	if err := env.Gate.ValidateAccess(env.Ctx, j.ID, managerID, access.RoleHiringManager); err != nil {
		t.Fatalf("hiring manager denied: %v", err)
	}
}

func TestCrossCompanyAlwaysDenied(t *testing.T) {
	env := newGateEnv(t)
	j := env.createJob(t, "Backend", "")
	err := env.Gate.ValidateAccess(env.Ctx, j.ID, outsiderID, access.RoleAdmin)
	var denied access.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error %T, want DeniedError: %v", err, err)
	}
}

func TestUnknownRoleDenied(t *testing.T) {
	env := newGateEnv(t)
	j := env.createJob(t, "Backend", "")
	err := env.Gate.ValidateAccess(env.Ctx, j.ID, adminID, "superuser")
	var denied access.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("error %T, want DeniedError: %v", err, err)
	}
	if _, err := env.Gate.AccessibleJobs(env.Ctx, adminID, "superuser", companyID); err == nil {
		t.Fatal("unknown role listed jobs")
	}
}

func TestReassignmentTakesEffectImmediately(t *testing.T) {
	env := newGateEnv(t)
	j := env.createJob(t, "Backend", recruiterID)
	if err := env.Gate.ValidateAccess(env.Ctx, j.ID, recruiterID, access.RoleRecruiter); err != nil {
		t.Fatalf("assigned job denied: %v", err)
	}
	next := otherRecID
	if _, err := env.Engine.UpdateJob(env.Ctx, engine.JobUpdateOptions{
		ID: j.ID, AssignedRecruiterID: &next, ActorID: adminID,
	}); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if err := env.Gate.ValidateAccess(env.Ctx, j.ID, recruiterID, access.RoleRecruiter); err == nil {
		t.Fatal("former recruiter still allowed after reassignment")
	}
	if err := env.Gate.ValidateAccess(env.Ctx, j.ID, otherRecID, access.RoleRecruiter); err != nil {
		t.Fatalf("new recruiter denied: %v", err)
	}
}

func TestAccessibleJobsFilters(t *testing.T) {
	env := newGateEnv(t)
	env.createJob(t, "Mine", recruiterID)
	env.createJob(t, "Other", otherRecID)
	env.createJob(t, "Unassigned", "")

	all, err := env.Gate.AccessibleJobs(env.Ctx, adminID, access.RoleAdmin, companyID)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("admin sees %d jobs, want 3", len(all))
	}
	mine, err := env.Gate.AccessibleJobs(env.Ctx, recruiterID, access.RoleRecruiter, companyID)
	if err != nil {
		t.Fatalf("recruiter list: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "Mine" {
		t.Fatalf("recruiter sees %+v", mine)
	}
}
