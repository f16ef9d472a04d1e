package talentlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Talentline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	UserID      string // legacy X-User-Id auth, used when BearerToken is empty
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Job represents the API job model.
type Job struct {
	ID                  string          `json:"id"`
	CompanyID           string          `json:"company_id"`
	Title               string          `json:"title"`
	Status              string          `json:"status"`
	AssignedRecruiterID *string         `json:"assigned_recruiter_id,omitempty"`
	Rules               json.RawMessage `json:"rules,omitempty"`
}

// Stage is one pipeline step of a job.
type Stage struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Position    int     `json:"position"`
	IsMandatory bool    `json:"is_mandatory"`
	IsDefault   bool    `json:"is_default"`
	Substages   []Stage `json:"substages,omitempty"`
}

// Application pairs a candidate with a job.
type Application struct {
	ID             string `json:"id"`
	JobID          string `json:"job_id"`
	CandidateID    string `json:"candidate_id"`
	CurrentStageID string `json:"current_stage_id"`
	AppliedAt      string `json:"applied_at"`
}

// ApplyResult is the outcome of an application, including any
// auto-rejection decision.
type ApplyResult struct {
	Application  Application `json:"application"`
	AutoRejected bool        `json:"auto_rejected"`
	Reason       string      `json:"reason,omitempty"`
}

// Breach is a reported SLA violation.
type Breach struct {
	JobCandidateID string `json:"job_candidate_id"`
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	StageName      string `json:"stage_name"`
	DaysInStage    int    `json:"days_in_stage"`
	ThresholdDays  int    `json:"threshold_days"`
	DaysOverdue    int    `json:"days_overdue"`
}

// FeedbackAlert flags a candidate waiting on interview feedback.
type FeedbackAlert struct {
	JobCandidateID string `json:"job_candidate_id"`
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	StageName      string `json:"stage_name"`
	DaysWaiting    int    `json:"days_waiting"`
}

// Alerts bundles the alert feeds.
type Alerts struct {
	SLA      []Breach        `json:"sla,omitempty"`
	Feedback []FeedbackAlert `json:"feedback,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateJob creates a job with the default pipeline.
func (c *Client) CreateJob(ctx context.Context, title string, rules json.RawMessage) (Job, error) {
	body := map[string]any{"title": title}
	if len(rules) > 0 {
		body["rules"] = rules
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, "v0/jobs", body, &resp)
	return resp, err
}

// ListJobs returns the jobs visible to the authenticated user.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var resp []Job
	err := c.do(ctx, http.MethodGet, "v0/jobs", nil, &resp)
	return resp, err
}

// JobStages returns a job's pipeline.
func (c *Client) JobStages(ctx context.Context, jobID string) ([]Stage, error) {
	var resp []Stage
	endpoint := fmt.Sprintf("v0/jobs/%s/stages", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Apply enters a candidate into a job's pipeline.
func (c *Client) Apply(ctx context.Context, jobID, name string, experienceYears float64, skills []string) (ApplyResult, error) {
	body := map[string]any{
		"name":             name,
		"experience_years": experienceYears,
		"skills":           skills,
	}
	var resp ApplyResult
	endpoint := fmt.Sprintf("v0/jobs/%s/candidates", url.PathEscape(jobID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Move transitions an application to another stage by name.
func (c *Client) Move(ctx context.Context, applicationID, toStage string) (Application, error) {
	body := map[string]any{"to_stage": toStage}
	var resp Application
	endpoint := fmt.Sprintf("v0/applications/%s/move", url.PathEscape(applicationID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Alerts returns the current SLA and feedback alerts.
func (c *Client) Alerts(ctx context.Context, kind string) (Alerts, error) {
	endpoint := "v0/alerts"
	if kind != "" {
		endpoint += "?type=" + url.QueryEscape(kind)
	}
	var resp Alerts
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
