package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/engine"
	"talentline/internal/engine/access"
	"talentline/internal/migrate"
)

const (
	cliCompanyID   = "co-1"
	cliAdminID     = "admin-1"
	cliRecruiterID = "rec-1"
	cliOutsiderID  = "rec-2"
)

type cliEnv struct {
	JobID      string
	SpareJobID string
	LinkID     string
}

// newCLIEnv seeds a workspace with one job assigned to cliRecruiterID
// and one application, then points the command helpers at it. The
// second recruiter has no assignment anywhere.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	ws := t.TempDir()
	viper.Set("workspace", ws)
	t.Cleanup(func() {
		viper.Set("workspace", ".")
		viper.Set("user-id", "")
	})

	conn, err := db.Open(db.Config{Workspace: ws})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := eng.Repo.InsertCompany(ctx, domain.Company{ID: cliCompanyID, Name: "Acme", CreatedAt: now}); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	users := []domain.User{
		{ID: cliAdminID, CompanyID: cliCompanyID, Name: "Ada", Role: "admin", Status: "active", CreatedAt: now},
		{ID: cliRecruiterID, CompanyID: cliCompanyID, Name: "Rae", Role: "recruiter", Status: "active", CreatedAt: now},
		{ID: cliOutsiderID, CompanyID: cliCompanyID, Name: "Rex", Role: "recruiter", Status: "active", CreatedAt: now},
	}
	for _, u := range users {
		if err := eng.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	j, err := eng.CreateJob(ctx, engine.JobCreateOptions{
		CompanyID:           cliCompanyID,
		Title:               "Backend Engineer",
		AssignedRecruiterID: cliRecruiterID,
		ActorID:             cliAdminID,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	res, err := eng.ApplyCandidate(ctx, engine.ApplyOptions{JobID: j.ID, Name: "Cam", ActorID: cliRecruiterID})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	spare, err := eng.CreateJob(ctx, engine.JobCreateOptions{
		CompanyID: cliCompanyID,
		Title:     "Data Engineer",
		ActorID:   cliAdminID,
	})
	if err != nil {
		t.Fatalf("create spare job: %v", err)
	}
	return &cliEnv{JobID: j.ID, SpareJobID: spare.ID, LinkID: res.Link.ID}
}

func runCmd(t *testing.T, cmd *cobra.Command, userID string, flags map[string]string, args []string) error {
	t.Helper()
	viper.Set("user-id", userID)
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("set --%s: %v", name, err)
		}
	}
	cmd.SetContext(context.Background())
	return cmd.RunE(cmd, args)
}

func wantDenied(t *testing.T, err error) {
	t.Helper()
	var de access.DeniedError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want access denial", err)
	}
}

func TestCLIJobUpdateGatedByAssignment(t *testing.T) {
	env := newCLIEnv(t)
	err := runCmd(t, jobUpdateCmd(), cliOutsiderID, map[string]string{"title": "Staff Engineer"}, []string{env.JobID})
	wantDenied(t, err)

	if err := runCmd(t, jobUpdateCmd(), cliRecruiterID, map[string]string{"title": "Staff Engineer"}, []string{env.JobID}); err != nil {
		t.Fatalf("assigned recruiter update: %v", err)
	}
}

func TestCLICandidateMoveGatedByAssignment(t *testing.T) {
	env := newCLIEnv(t)
	err := runCmd(t, candidateMoveCmd(), cliOutsiderID, map[string]string{"to": "Screening"}, []string{env.LinkID})
	wantDenied(t, err)

	if err := runCmd(t, candidateMoveCmd(), cliRecruiterID, map[string]string{"to": "Screening"}, []string{env.LinkID}); err != nil {
		t.Fatalf("assigned recruiter move: %v", err)
	}
}

func TestCLICandidateApplyGatedByAssignment(t *testing.T) {
	env := newCLIEnv(t)
	err := runCmd(t, candidateApplyCmd(), cliOutsiderID, map[string]string{"job": env.JobID, "name": "Zed"}, nil)
	wantDenied(t, err)
}

func TestCLIJobCreateRequiresManagerRole(t *testing.T) {
	newCLIEnv(t)
	err := runCmd(t, jobCreateCmd(), cliRecruiterID, map[string]string{"title": "Designer"}, nil)
	if err == nil {
		t.Fatal("recruiter created a job")
	}
	if err := runCmd(t, jobCreateCmd(), cliAdminID, map[string]string{"title": "Designer"}, nil); err != nil {
		t.Fatalf("admin create: %v", err)
	}
}

func TestCLIJobDeleteAdminOnly(t *testing.T) {
	env := newCLIEnv(t)
	if err := runCmd(t, jobDeleteCmd(), cliRecruiterID, nil, []string{env.SpareJobID}); err == nil {
		t.Fatal("recruiter deleted a job")
	}
	if err := runCmd(t, jobDeleteCmd(), cliAdminID, nil, []string{env.SpareJobID}); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}
