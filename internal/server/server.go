package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"talentline/internal/engine"
	"talentline/internal/engine/access"
	"talentline/internal/engine/rules"
	"talentline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"access denied"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Talentline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	gate := access.New(cfg.Engine.DB)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Talentline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerJobs(group, cfg.Engine, gate)
	registerPipeline(group, cfg.Engine, gate)
	registerSLA(group, cfg.Engine)
	registerAlerts(group, cfg.Engine)
	registerNotifications(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var de access.DeniedError
	if errors.As(err, &de) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"job_id": de.JobID})
	}
	var rve rules.ValidationError
	if errors.As(err, &rve) {
		return newAPIError(http.StatusBadRequest, "invalid_rules", err.Error(), map[string]any{"field": rve.Field})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"job_candidate_id": ce.JobCandidateID})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Talentline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func canManageJobs(role string) bool {
	return role == access.RoleAdmin || role == access.RoleHiringManager
}

func registerJobs(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Create job",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateJobRequest `json:"body"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !canManageJobs(principal.Role) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins and hiring managers can create jobs", nil)
		}
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		opts := engine.JobCreateOptions{
			CompanyID: principal.CompanyID,
			Title:     input.Body.Title,
			Rules:     string(input.Body.Rules),
			Stages:    stageInputs(input.Body.Stages),
			ActorID:   principal.UserID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.AssignedRecruiterID != nil {
			opts.AssignedRecruiterID = *input.Body.AssignedRecruiterID
		}
		j, err := e.CreateJob(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List accessible jobs",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,paused,closed,"`
	}) (*struct {
		Body []JobResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := gate.AccessibleJobs(ctx, principal.UserID, principal.Role, principal.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Status != "" {
			filtered := items[:0]
			for _, j := range items {
				if j.Status == input.Status {
					filtered = append(filtered, j)
				}
			}
			items = filtered
		}
		return &struct {
			Body []JobResponse `json:"body"`
		}{Body: mapJobs(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body JobResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := gate.ValidateAccess(ctx, input.ID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		j, err := e.Repo.GetJob(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobResponse `json:"body"`
		}{Body: jobResponse(j)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-job",
		Method:      http.MethodPatch,
		Path:        "/jobs/{id}",
		Summary:     "Update job",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body UpdateJobRequest `json:"body"`
	}) (*struct {
		Body UpdateJobResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := gate.ValidateAccess(ctx, input.ID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		opts := engine.JobUpdateOptions{
			ID:                  input.ID,
			Title:               input.Body.Title,
			Status:              input.Body.Status,
			AssignedRecruiterID: input.Body.AssignedRecruiterID,
			Stages:              stageInputs(input.Body.Stages),
			ActorID:             principal.UserID,
		}
		if input.Body.Rules != nil {
			raw := string(*input.Body.Rules)
			opts.Rules = &raw
		}
		res, err := e.UpdateJob(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UpdateJobResponse `json:"body"`
		}{Body: UpdateJobResponse{JobResponse: jobResponse(res.Job), StagesSkipped: res.StagesSkipped}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/jobs/{id}",
		Summary:     "Delete job",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != access.RoleAdmin {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins can delete jobs", nil)
		}
		if err := gate.ValidateAccess(ctx, input.ID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteJob(ctx, input.ID, principal.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "job-stages",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/stages",
		Summary:     "Job pipeline stages",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []StageResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := gate.ValidateAccess(ctx, input.ID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		trees, err := e.JobStages(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []StageResponse `json:"body"`
		}{Body: mapStageTrees(trees)}, nil
	})
}

func registerPipeline(api huma.API, e engine.Engine, gate access.Gate) {
	huma.Register(api, huma.Operation{
		OperationID:   "apply-candidate",
		Method:        http.MethodPost,
		Path:          "/jobs/{id}/candidates",
		Summary:       "Apply a candidate to a job",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body ApplyCandidateRequest `json:"body"`
	}) (*struct {
		Body ApplyResultResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := gate.ValidateAccess(ctx, input.ID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		opts := engine.ApplyOptions{
			JobID:             input.ID,
			Name:              input.Body.Name,
			Email:             input.Body.Email,
			ExperienceYears:   input.Body.ExperienceYears,
			Location:          input.Body.Location,
			Skills:            input.Body.Skills,
			Education:         input.Body.Education,
			SalaryExpectation: input.Body.SalaryExpectation,
			ActorID:           principal.UserID,
		}
		if input.Body.CandidateID != nil {
			opts.CandidateID = *input.Body.CandidateID
		}
		res, err := e.ApplyCandidate(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplyResultResponse `json:"body"`
		}{Body: ApplyResultResponse{
			Candidate:    candidateResponse(res.Candidate),
			Application:  applicationResponse(res.Link),
			AutoRejected: res.AutoRejected,
			Reason:       res.Reason,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/candidates",
		Summary:     "List a job's applications",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []ApplicationResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := gate.ValidateAccess(ctx, input.ID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		links, err := e.Repo.ListLinksByJob(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ApplicationResponse, 0, len(links))
		for _, l := range links {
			out = append(out, applicationResponse(l))
		}
		return &struct {
			Body []ApplicationResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-candidate",
		Method:      http.MethodPost,
		Path:        "/applications/{id}/move",
		Summary:     "Move a candidate to another stage",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body MoveCandidateRequest `json:"body"`
	}) (*struct {
		Body ApplicationResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		link, err := e.Repo.GetLink(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := gate.ValidateAccess(ctx, link.JobID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		moved, err := e.MoveCandidate(ctx, engine.MoveOptions{
			JobCandidateID: input.ID,
			ToStageID:      input.Body.ToStageID,
			ToStage:        input.Body.ToStage,
			ActorID:        principal.UserID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApplicationResponse `json:"body"`
		}{Body: applicationResponse(moved)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "application-history",
		Method:      http.MethodGet,
		Path:        "/applications/{id}/history",
		Summary:     "Stage transition history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []HistoryEntryResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		link, err := e.Repo.GetLink(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := gate.ValidateAccess(ctx, link.JobID, principal.UserID, principal.Role); err != nil {
			return nil, handleError(err)
		}
		history, err := e.History(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]HistoryEntryResponse, 0, len(history))
		for _, h := range history {
			out = append(out, HistoryEntryResponse{ID: h.ID, StageID: h.StageID, EnteredAt: h.EnteredAt, ExitedAt: h.ExitedAt})
		}
		return &struct {
			Body []HistoryEntryResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerSLA(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-sla-settings",
		Method:      http.MethodGet,
		Path:        "/sla/settings",
		Summary:     "Company SLA thresholds",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ThresholdResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListThresholds(ctx, principal.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ThresholdResponse `json:"body"`
		}{Body: mapThresholds(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-sla-settings",
		Method:      http.MethodPut,
		Path:        "/sla/settings",
		Summary:     "Replace company SLA thresholds",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body PutThresholdsRequest `json:"body"`
	}) (*struct {
		Body []ThresholdResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !canManageJobs(principal.Role) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins and hiring managers can change SLA settings", nil)
		}
		for _, t := range input.Body.Thresholds {
			if _, err := e.SetThreshold(ctx, principal.CompanyID, t.StageKey, t.ThresholdDays, principal.UserID); err != nil {
				return nil, handleError(err)
			}
		}
		items, err := e.Repo.ListThresholds(ctx, principal.CompanyID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ThresholdResponse `json:"body"`
		}{Body: mapThresholds(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sla-defaults",
		Method:      http.MethodGet,
		Path:        "/sla/defaults",
		Summary:     "Configured default SLA thresholds",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: e.Config.SLA.Defaults}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-sla-defaults",
		Method:      http.MethodPost,
		Path:        "/sla/apply-defaults",
		Summary:     "Apply default SLA thresholds",
		Errors:      []int{http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ThresholdResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !canManageJobs(principal.Role) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only admins and hiring managers can change SLA settings", nil)
		}
		applied, err := e.ApplyDefaultThresholds(ctx, principal.CompanyID, principal.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ThresholdResponse `json:"body"`
		}{Body: mapThresholds(applied)}, nil
	})
}

func registerAlerts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "Current SLA and feedback alerts",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Type string `query:"type" enum:"sla,feedback,all," default:"all"`
	}) (*struct {
		Body AlertsResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		kind := input.Type
		if kind == "" {
			kind = "all"
		}
		var out AlertsResponse
		if kind == "sla" || kind == "all" {
			breaches, err := e.ScanCompany(ctx, principal.CompanyID)
			if err != nil {
				return nil, handleError(err)
			}
			out.SLA = breaches
		}
		if kind == "feedback" || kind == "all" {
			alerts, err := e.FeedbackAlerts(ctx, principal.CompanyID)
			if err != nil {
				return nil, handleError(err)
			}
			out.Feedback = alerts
		}
		return &struct {
			Body AlertsResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Caller's notifications",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []NotificationResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListNotifications(ctx, principal.UserID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]NotificationResponse, 0, len(items))
		for _, n := range items {
			out = append(out, notificationResponse(n))
		}
		return &struct {
			Body []NotificationResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "Audit activity log",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		JobID          string `query:"job_id"`
		JobCandidateID string `query:"job_candidate_id"`
		ActivityType   string `query:"activity_type"`
		Limit          int    `query:"limit" default:"100"`
		Cursor         int64  `query:"cursor"`
	}) (*struct {
		Body []ActivityResponse `json:"body"`
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListActivities(ctx, repo.ActivityFilters{
			CompanyID:      principal.CompanyID,
			JobID:          input.JobID,
			JobCandidateID: input.JobCandidateID,
			ActivityType:   input.ActivityType,
			Limit:          input.Limit,
			Cursor:         input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]ActivityResponse, 0, len(items))
		for _, a := range items {
			out = append(out, activityResponse(a))
		}
		return &struct {
			Body []ActivityResponse `json:"body"`
		}{Body: out}, nil
	})
}
