package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/server/api"
	"github.com/scanmux/scanmux/pkg/server/jobs"
)

// DTO Evolution Policy
// The request/response payloads handled in this file are part of the public API
// contract. To evolve them safely without breaking existing clients:
//
// 1) Additive-only changes
//    - You MAY add new optional fields
//    - You MAY NOT remove or rename existing fields
//    - Breaking changes require a new API version (v2)
//
// 2) Zero-value semantics
//    - New fields MUST have safe zero-value behavior
//    - Prefer `omitempty` for optional JSON fields to preserve old behavior

// StartScanRequest is the body of POST /api/v1/scans.
type StartScanRequest struct {
	Target  string `json:"target"`
	Profile string `json:"profile,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// StartScanHandler handles POST /api/v1/scans
//
// The submission is validated synchronously, so malformed targets fail here
// with 400 rather than surfacing later as a failed job. Valid submissions are
// queued for background execution; poll GET /api/v1/scans/{id} for progress.
//
// Response format (202 Accepted):
//
//	{"scan_id": "3b241101-e2bb-4255-8caf-4136c566a962", "status": "pending"}
func StartScanHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.Config.MaxBodyBytes)

		var req StartScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_BODY", "request body must be a JSON object")
			return
		}

		profile, err := validateSubmission(deps.Config, req)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		job, err := deps.Jobs.Submit(req.Target, string(profile), req.Timeout)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusAccepted, api.ScanAccepted{
			ScanID: job.ID,
			Status: job.State,
		})
	}
}

// GetScanHandler handles GET /api/v1/scans/{id}
//
// Returns the job's current state, plus findings and provider outcomes once
// the run settles.
//
// Path parameter:
//   - id: Scan identifier returned by POST /api/v1/scans
//
// Returns 404 for unknown IDs, including settled jobs already evicted from
// the bounded registry.
func GetScanHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "SCAN_ID_REQUIRED", "scan id is required")
			return
		}

		job, err := deps.Jobs.Get(id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusOK, scanDetail(job))
	}
}

// ListScansHandler handles GET /api/v1/scans
//
// Returns tracked scan jobs, newest first. The registry is bounded, so this
// is recent history rather than an archive.
//
// Query parameters:
//   - status: Filter by state (pending, running, completed, failed)
//   - limit: Number of results (1-100, default 50)
//
// Response format:
//
//	{
//	  "scans": [
//	    {"scan_id": "scan-1", "target": "example.com", "profile": "full", "status": "completed", ...}
//	  ],
//	  "total": 1
//	}
//
// total counts all matches; scans holds at most limit of them.
func ListScansHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, qerr := ParseListScansQuery(r)
		if qerr != nil {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_QUERY", qerr.Error())
			return
		}

		all := deps.Jobs.List()
		scans := make([]api.ScanSummary, 0, min(len(all), query.Limit))
		matched := 0
		for _, job := range all {
			if query.Status != "" && job.State != query.Status {
				continue
			}
			matched++
			if len(scans) < query.Limit {
				scans = append(scans, scanSummary(job))
			}
		}

		response := map[string]any{
			"scans": scans,
			"total": matched,
		}
		api.WriteJSON(w, http.StatusOK, response)
	}
}

// ListScansQuery carries the validated query parameters for ListScansHandler.
type ListScansQuery struct {
	Status string
	Limit  int
}

// ParseListScansQuery validates the status and limit query parameters.
// Out-of-range limits are rejected rather than clamped.
func ParseListScansQuery(r *http.Request) (ListScansQuery, error) {
	query := ListScansQuery{Limit: 50}

	if status := r.URL.Query().Get("status"); status != "" {
		switch status {
		case jobs.StatePending, jobs.StateRunning, jobs.StateCompleted, jobs.StateFailed:
			query.Status = status
		default:
			return query, fmt.Errorf("unknown status %q", status)
		}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			return query, fmt.Errorf("limit must be an integer between 1 and 100")
		}
		query.Limit = limit
	}

	return query, nil
}

// validateSubmission runs the same input checks the scan service would, so
// bad submissions fail the HTTP request instead of producing a failed job.
func validateSubmission(cfg api.Config, req StartScanRequest) (engine.Profile, error) {
	if len(req.Target) > cfg.MaxTargetLen {
		return "", fmt.Errorf("%w: target exceeds %d characters", engine.ErrInvalidInput, cfg.MaxTargetLen)
	}
	if _, err := engine.NormalizeTarget(req.Target); err != nil {
		return "", err
	}
	profile, err := engine.ParseProfile(req.Profile)
	if err != nil {
		return "", err
	}
	if req.Timeout != "" {
		d, derr := time.ParseDuration(req.Timeout)
		if derr != nil || d <= 0 {
			return "", fmt.Errorf("%w: invalid timeout %q", engine.ErrInvalidInput, req.Timeout)
		}
	}
	return profile, nil
}

func scanSummary(job *jobs.Job) api.ScanSummary {
	summary := api.ScanSummary{
		ScanID:    job.ID,
		Target:    job.Target,
		Profile:   job.Profile,
		Status:    job.State,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.Result != nil {
		summary.Findings = len(job.Result.Findings)
	}
	return summary
}

func scanDetail(job *jobs.Job) *api.ScanDetail {
	detail := &api.ScanDetail{
		ScanID:    job.ID,
		Target:    job.Target,
		Profile:   job.Profile,
		Status:    job.State,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
		Error:     job.Error,
		Findings:  []engine.Finding{},
	}
	if !job.StartedAt.IsZero() {
		detail.StartedAt = job.StartedAt.UTC().Format(time.RFC3339)
	}
	if !job.EndedAt.IsZero() {
		detail.CompletedAt = job.EndedAt.UTC().Format(time.RFC3339)
	}
	if job.Result != nil {
		detail.Findings = job.Result.Findings
		detail.Providers = make([]api.ProviderOutcome, 0, len(job.Result.Providers))
		for _, outcome := range job.Result.Providers {
			detail.Providers = append(detail.Providers, api.ProviderOutcome{
				Provider:  outcome.Provider,
				Status:    outcome.Status,
				Reason:    string(outcome.Reason),
				Detail:    outcome.Detail,
				Findings:  outcome.Findings,
				ElapsedMs: outcome.Elapsed.Milliseconds(),
			})
		}
	}
	return detail
}
