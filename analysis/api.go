package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/uam-labs/uam-go/internal/domain"
	"github.com/uam-labs/uam-go/internal/pipeline"
	"github.com/uam-labs/uam-go/internal/platform/httpserver"
	"github.com/uam-labs/uam-go/internal/progress"
	"github.com/uam-labs/uam-go/internal/repo"
	"github.com/uam-labs/uam-go/internal/service/runs"
	"github.com/uam-labs/uam-go/internal/storage/objectstore"
)

type analysisAPI struct {
	logger      *slog.Logger
	service     *runs.Service
	store       objectstore.Store
	buckets     pipeline.Buckets
	hub         *progress.Hub
	downloadTTL time.Duration
}

func newAnalysisAPI(
	logger *slog.Logger,
	service *runs.Service,
	store objectstore.Store,
	buckets pipeline.Buckets,
	hub *progress.Hub,
	downloadTTL time.Duration,
) *analysisAPI {
	return &analysisAPI{
		logger:      logger,
		service:     service,
		store:       store,
		buckets:     buckets,
		hub:         hub,
		downloadTTL: downloadTTL,
	}
}

func (api *analysisAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /projects/{project_id}/runs", api.handleSubmitRun)
	mux.HandleFunc("GET /projects/{project_id}/runs", api.handleListRuns)
	mux.HandleFunc("GET /projects/{project_id}/runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("GET /projects/{project_id}/runs/{run_id}/candidates", api.handleListCandidates)
	mux.HandleFunc("GET /projects/{project_id}/runs/{run_id}/artifacts", api.handleListArtifacts)
	mux.HandleFunc("GET /projects/{project_id}/ml/train-progress", api.handleTrainProgress)
}

type runResponse struct {
	RunID        string          `json:"run_id"`
	ProjectID    string          `json:"project_id"`
	DatasetID    string          `json:"dataset_id"`
	Status       string          `json:"status"`
	CurrentTask  string          `json:"current_task,omitempty"`
	Progress     float64         `json:"progress"`
	Params       domain.Metadata `json:"params"`
	ScoreSummary domain.Metadata `json:"score_summary,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type logResponse struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type runDetailResponse struct {
	runResponse
	Logs []logResponse `json:"logs"`
}

type candidateResponse struct {
	CandidateID string          `json:"candidate_id"`
	RunID       string          `json:"run_id"`
	Name        string          `json:"name"`
	Params      domain.Metadata `json:"params"`
	Metrics     domain.Metadata `json:"metrics"`
	Score       float64         `json:"score"`
	Selected    bool            `json:"selected"`
	CreatedAt   time.Time       `json:"created_at"`
}

type artifactResponse struct {
	ArtifactID  string          `json:"artifact_id"`
	RunID       string          `json:"run_id"`
	Kind        string          `json:"kind"`
	Filename    string          `json:"filename,omitempty"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type submitRunRequest struct {
	DatasetID string         `json:"dataset_id"`
	Params    map[string]any `json:"params,omitempty"`
}

func (api *analysisAPI) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req submitRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	run, err := api.service.Submit(r.Context(), runs.SubmitInput{
		ProjectID: r.PathValue("project_id"),
		DatasetID: req.DatasetID,
		Params:    domain.Metadata(req.Params),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, toRunResponse(run))
}

func (api *analysisAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{ProjectID: r.PathValue("project_id")}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		filter.Status = domain.RunStatus(strings.ToUpper(raw))
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = limit
	}

	items, err := api.service.List(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]runResponse, 0, len(items))
	for _, run := range items {
		out = append(out, toRunResponse(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (api *analysisAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, err := api.service.Get(r.Context(), r.PathValue("project_id"), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	resp := runDetailResponse{
		runResponse: toRunResponse(detail.Run),
		Logs:        make([]logResponse, 0, len(detail.Logs)),
	}
	for _, entry := range detail.Logs {
		resp.Logs = append(resp.Logs, logResponse{
			Level:     entry.Level,
			Message:   entry.Message,
			CreatedAt: entry.CreatedAt,
		})
	}
	api.writeJSON(w, http.StatusOK, resp)
}

func (api *analysisAPI) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	items, err := api.service.Candidates(r.Context(), r.PathValue("project_id"), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]candidateResponse, 0, len(items))
	for _, c := range items {
		out = append(out, candidateResponse{
			CandidateID: c.ID,
			RunID:       c.RunID,
			Name:        c.Name,
			Params:      c.Params,
			Metrics:     c.Metrics,
			Score:       c.Score,
			Selected:    c.Selected,
			CreatedAt:   c.CreatedAt,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"candidates": out})
}

func (api *analysisAPI) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	kind := domain.ArtifactKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	items, err := api.service.Artifacts(r.Context(), r.PathValue("project_id"), r.PathValue("run_id"), kind)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]artifactResponse, 0, len(items))
	for _, a := range items {
		out = append(out, artifactResponse{
			ArtifactID:  a.ID,
			RunID:       a.RunID,
			Kind:        string(a.Kind),
			Filename:    a.Filename,
			Metadata:    a.Metadata,
			DownloadURL: api.downloadURL(r, a),
			CreatedAt:   a.CreatedAt,
		})
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"artifacts": out})
}

// downloadURL presigns a GET against the bucket that holds the artifact's
// blob. A presign failure degrades the listing, it does not fail it.
func (api *analysisAPI) downloadURL(r *http.Request, a domain.Artifact) string {
	bucket := api.buckets.Artifacts
	if a.Kind == domain.ArtifactModel {
		bucket = api.buckets.Models
	}
	url, err := api.store.PresignGet(r.Context(), bucket, a.StorageKey, api.downloadTTL)
	if err != nil {
		api.logger.Warn("presign failed", "run_id", a.RunID, "artifact_id", a.ID, "error", err)
		return ""
	}
	return url
}

func toRunResponse(run domain.Run) runResponse {
	return runResponse{
		RunID:        run.ID,
		ProjectID:    run.ProjectID,
		DatasetID:    run.DatasetID,
		Status:       string(run.Status),
		CurrentTask:  run.CurrentTask,
		Progress:     run.Progress,
		Params:       run.Params,
		ScoreSummary: run.ScoreSummary,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		CreatedAt:    run.CreatedAt,
	}
}

func (api *analysisAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, runs.ErrInvalidInput):
		api.writeError(w, r, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	default:
		api.logger.Error("request failed", "path", r.URL.Path, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *analysisAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *analysisAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	requestID, _ := httpserver.RequestIDFromContext(r.Context())
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": requestID,
	})
}
