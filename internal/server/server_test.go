package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"talentline/internal/config"
	"talentline/internal/db"
	"talentline/internal/domain"
	"talentline/internal/engine"
	"talentline/internal/migrate"
)

const (
	testCompanyID   = "co-1"
	testAdminID     = "admin-1"
	testManagerID   = "hm-1"
	testRecruiterID = "rec-1"
	testJWTSecret   = "test-secret"
)

type testServer struct {
	BaseURL string
	Engine  engine.Engine
	Ctx     context.Context

	// clock backs Engine.Now for the server's handlers; tests advance
	// it to simulate dwell time.
	clock time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ts := &testServer{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return ts.clock }
	ctx := context.Background()
	now := eng.Now().UTC().Format(time.RFC3339)
	if err := eng.Repo.InsertCompany(ctx, domain.Company{ID: testCompanyID, Name: "Acme", CreatedAt: now}); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	for _, u := range []domain.User{
		{ID: testAdminID, CompanyID: testCompanyID, Name: "Ada", Role: "admin", Status: "active", CreatedAt: now},
		{ID: testManagerID, CompanyID: testCompanyID, Name: "Hal", Role: "hiring_manager", Status: "active", CreatedAt: now},
		{ID: testRecruiterID, CompanyID: testCompanyID, Name: "Rae", Role: "recruiter", Status: "active", CreatedAt: now},
	} {
		if err := eng.Repo.InsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	handler, err := New(Config{
		Engine: eng,
		Auth: AuthConfig{
			JWTSecret:             testJWTSecret,
			AllowLegacyUserHeader: true,
			Logger:                log.New(io.Discard, "", 0),
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	ts.BaseURL = "http://" + ln.Addr().String()
	ts.Engine = eng
	ts.Ctx = ctx
	return ts
}

// doJSON issues a request with the legacy user header and decodes the
// response body into out when it is non-nil.
func (ts *testServer) doJSON(t *testing.T, method, path, userID string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.BaseURL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func TestHealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)
	if status := ts.doJSON(t, http.MethodGet, "/v0/health", "", nil, nil); status != http.StatusOK {
		t.Fatalf("health status = %d", status)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	ts := newTestServer(t)
	var env errorEnvelope
	status := ts.doJSON(t, http.MethodGet, "/v0/jobs", "", nil, &env)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q", env.Error.Code)
	}
}

func TestCreateJobRoleGating(t *testing.T) {
	ts := newTestServer(t)
	var job JobResponse
	status := ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID, map[string]any{"title": "Backend Engineer"}, &job)
	if status != http.StatusCreated {
		t.Fatalf("admin create status = %d", status)
	}
	if job.ID == "" || job.Status != "active" || job.CompanyID != testCompanyID {
		t.Fatalf("job = %+v", job)
	}

	var env errorEnvelope
	status = ts.doJSON(t, http.MethodPost, "/v0/jobs", testRecruiterID, map[string]any{"title": "Nope"}, &env)
	if status != http.StatusForbidden {
		t.Fatalf("recruiter create status = %d, want 403", status)
	}
	if env.Error.Code != "forbidden" {
		t.Fatalf("error code = %q", env.Error.Code)
	}
}

func TestRecruiterVisibility(t *testing.T) {
	ts := newTestServer(t)
	var mine, other JobResponse
	if status := ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID,
		map[string]any{"title": "Mine", "assigned_recruiter_id": testRecruiterID}, &mine); status != http.StatusCreated {
		t.Fatalf("create: %d", status)
	}
	if status := ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID,
		map[string]any{"title": "Other"}, &other); status != http.StatusCreated {
		t.Fatalf("create: %d", status)
	}

	var listed []JobResponse
	if status := ts.doJSON(t, http.MethodGet, "/v0/jobs", testRecruiterID, nil, &listed); status != http.StatusOK {
		t.Fatalf("list: %d", status)
	}
	if len(listed) != 1 || listed[0].ID != mine.ID {
		t.Fatalf("recruiter sees %+v", listed)
	}

	if status := ts.doJSON(t, http.MethodGet, "/v0/jobs/"+mine.ID, testRecruiterID, nil, nil); status != http.StatusOK {
		t.Fatalf("assigned job status = %d", status)
	}
	var env errorEnvelope
	if status := ts.doJSON(t, http.MethodGet, "/v0/jobs/"+other.ID, testRecruiterID, nil, &env); status != http.StatusForbidden {
		t.Fatalf("unassigned job status = %d, want 403", status)
	}
	if env.Error.Code != "forbidden" {
		t.Fatalf("error code = %q", env.Error.Code)
	}
}

func TestApplyAndAutoReject(t *testing.T) {
	ts := newTestServer(t)
	var job JobResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID, map[string]any{
		"title": "Backend Engineer",
		"rules": map[string]any{"enabled": true, "rules": map[string]any{"min_experience": 5}},
	}, &job)

	var res ApplyResultResponse
	status := ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/candidates", testAdminID, map[string]any{
		"name": "Cam", "experience_years": 3,
	}, &res)
	if status != http.StatusCreated {
		t.Fatalf("apply status = %d", status)
	}
	if !res.AutoRejected || !strings.Contains(res.Reason, "minimum experience") {
		t.Fatalf("result = %+v", res)
	}

	var history []HistoryEntryResponse
	if status := ts.doJSON(t, http.MethodGet, "/v0/applications/"+res.Application.ID+"/history", testAdminID, nil, &history); status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	if len(history) != 2 {
		t.Fatalf("history = %+v", history)
	}
}

func TestMoveCandidate(t *testing.T) {
	ts := newTestServer(t)
	var job JobResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID, map[string]any{"title": "Backend Engineer"}, &job)
	var res ApplyResultResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/candidates", testAdminID, map[string]any{"name": "Cam"}, &res)

	var moved ApplicationResponse
	status := ts.doJSON(t, http.MethodPost, "/v0/applications/"+res.Application.ID+"/move", testAdminID,
		map[string]any{"to_stage": "Screening"}, &moved)
	if status != http.StatusOK {
		t.Fatalf("move status = %d", status)
	}
	if moved.CurrentStageID == res.Application.CurrentStageID {
		t.Fatal("stage did not change")
	}

	var env errorEnvelope
	status = ts.doJSON(t, http.MethodPost, "/v0/applications/"+res.Application.ID+"/move", testAdminID,
		map[string]any{"to_stage": "Screening"}, &env)
	if status != http.StatusBadRequest {
		t.Fatalf("same-stage move status = %d, want 400", status)
	}
}

func TestPatchStagesSkippedOnLiveJob(t *testing.T) {
	ts := newTestServer(t)
	var job JobResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID, map[string]any{"title": "Backend Engineer"}, &job)
	var res ApplyResultResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/candidates", testAdminID, map[string]any{"name": "Cam"}, &res)

	var updated UpdateJobResponse
	status := ts.doJSON(t, http.MethodPatch, "/v0/jobs/"+job.ID, testAdminID, map[string]any{
		"title":  "Renamed",
		"stages": []map[string]any{{"name": "Only"}},
	}, &updated)
	if status != http.StatusOK {
		t.Fatalf("patch status = %d", status)
	}
	if !updated.StagesSkipped {
		t.Fatal("stages_skipped not reported")
	}
	if updated.Title != "Renamed" {
		t.Fatalf("title = %q", updated.Title)
	}
}

func TestDeleteJobAdminOnly(t *testing.T) {
	ts := newTestServer(t)
	var job JobResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID, map[string]any{"title": "Short-lived"}, &job)

	if status := ts.doJSON(t, http.MethodDelete, "/v0/jobs/"+job.ID, testManagerID, nil, nil); status != http.StatusForbidden {
		t.Fatalf("manager delete status = %d, want 403", status)
	}
	if status := ts.doJSON(t, http.MethodDelete, "/v0/jobs/"+job.ID, testAdminID, nil, nil); status >= 300 {
		t.Fatalf("admin delete status = %d", status)
	}
	if status := ts.doJSON(t, http.MethodGet, "/v0/jobs/"+job.ID, testAdminID, nil, nil); status != http.StatusNotFound {
		t.Fatalf("deleted job status = %d, want 404", status)
	}
}

func TestSLASettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	var env errorEnvelope
	status := ts.doJSON(t, http.MethodPut, "/v0/sla/settings", testRecruiterID,
		map[string]any{"thresholds": []map[string]any{{"stage_key": "applied", "threshold_days": 3}}}, &env)
	if status != http.StatusForbidden {
		t.Fatalf("recruiter put status = %d, want 403", status)
	}

	var stored []ThresholdResponse
	status = ts.doJSON(t, http.MethodPut, "/v0/sla/settings", testAdminID,
		map[string]any{"thresholds": []map[string]any{{"stage_key": "Applied", "threshold_days": 3}}}, &stored)
	if status != http.StatusOK {
		t.Fatalf("admin put status = %d", status)
	}
	if len(stored) != 1 || stored[0].StageKey != "applied" || stored[0].ThresholdDays != 3 {
		t.Fatalf("thresholds = %+v", stored)
	}

	var defaults map[string]int
	if status := ts.doJSON(t, http.MethodGet, "/v0/sla/defaults", testRecruiterID, nil, &defaults); status != http.StatusOK {
		t.Fatalf("defaults status = %d", status)
	}
	if defaults["interview"] != 10 {
		t.Fatalf("defaults = %+v", defaults)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var job JobResponse
	ts.doJSON(t, http.MethodPost, "/v0/jobs", testAdminID, map[string]any{"title": "Backend Engineer"}, &job)
	ts.doJSON(t, http.MethodPost, "/v0/jobs/"+job.ID+"/candidates", testAdminID, map[string]any{"name": "Cam"}, nil)
	ts.doJSON(t, http.MethodPut, "/v0/sla/settings", testAdminID,
		map[string]any{"thresholds": []map[string]any{{"stage_key": "applied", "threshold_days": 1}}}, nil)

	ts.clock = ts.clock.Add(72 * time.Hour)

	var alerts AlertsResponse
	if status := ts.doJSON(t, http.MethodGet, "/v0/alerts", testAdminID, nil, &alerts); status != http.StatusOK {
		t.Fatalf("alerts status = %d", status)
	}
	if len(alerts.SLA) != 1 || alerts.SLA[0].StageName != "Applied" {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestJWTAuthentication(t *testing.T) {
	ts := newTestServer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": testAdminID,
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.BaseURL+"/v0/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	// Role and company are backfilled from the users table.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("jwt status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.BaseURL+"/v0/jobs", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestInactiveUserRejected(t *testing.T) {
	ts := newTestServer(t)
	if err := ts.Engine.Repo.SetUserStatus(ts.Ctx, testRecruiterID, "inactive"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	var env errorEnvelope
	status := ts.doJSON(t, http.MethodGet, "/v0/jobs", testRecruiterID, nil, &env)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}
