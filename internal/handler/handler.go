package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/dataset"
	"hydrovalley/internal/layout"
	"hydrovalley/internal/logging"
	"hydrovalley/internal/service"
	"hydrovalley/internal/session"
	"hydrovalley/internal/simulation"
)

// maxBodyBytes bounds model text and JSON request bodies
const maxBodyBytes = 16 << 20

// ValleyHandler handles the valley API
type ValleyHandler struct {
	svc *service.ValleyService
}

// NewValleyHandler creates a new valley handler
func NewValleyHandler(svc *service.ValleyService) *ValleyHandler {
	return &ValleyHandler{svc: svc}
}

// Register adds the API routes to mux
func (h *ValleyHandler) Register(mux *http.ServeMux) {
	// Sessions
	mux.HandleFunc("POST /api/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("PUT /api/sessions/{id}/model", h.EditModel)
	mux.HandleFunc("POST /api/sessions/{id}/reset", h.ResetSession)
	mux.HandleFunc("PUT /api/sessions/{id}/selection", h.Select)
	mux.HandleFunc("GET /api/sessions/{id}/entities/{name}", h.GetEntity)
	mux.HandleFunc("DELETE /api/sessions/{id}/notices", h.DismissNotices)

	// Layout
	mux.HandleFunc("GET /api/sessions/{id}/graph", h.GetGraph)
	mux.HandleFunc("GET /api/sessions/{id}/layout", h.GetLayout)

	// Simulation
	mux.HandleFunc("POST /api/sessions/{id}/simulation", h.LaunchSimulation)
	mux.HandleFunc("GET /api/sessions/{id}/results", h.GetResults)
	mux.HandleFunc("DELETE /api/sessions/{id}/results", h.ClearResults)
	mux.HandleFunc("GET /api/sessions/{id}/results.csv", h.ExportResultsCSV)

	// Export
	mux.HandleFunc("GET /api/sessions/{id}/export.yaml", h.ExportYAML)

	// Datasets
	mux.HandleFunc("GET /api/datasets", h.ListDatasets)
	mux.HandleFunc("GET /api/datasets/{name}", h.GetDataset)
	mux.HandleFunc("GET /api/datasets/{name}/series", h.GetSeries)
	mux.HandleFunc("POST /api/datasets/direct", h.SaveDirect)
	mux.HandleFunc("POST /api/upload", h.Upload)

	// Run history
	mux.HandleFunc("GET /api/runs", h.ListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.GetRun)

	mux.HandleFunc("GET /healthz", h.Health)
}

// Error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type datasetRequest struct {
	Dataset string `json:"dataset"`
}

type selectionRequest struct {
	Name string `json:"name"`
}

// SimulationResponse is returned when a run is requested
type SimulationResponse struct {
	RunID   string `json:"run_id"`
	Started bool   `json:"started"`
}

// CreateSession opens a session loaded with a dataset
func (h *ValleyHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.svc.CreateSession(r.Context(), req.Dataset)
	if err != nil {
		h.fail(w, r, "Failed to create session", err)
		return
	}
	writeJSON(w, view, http.StatusCreated)
}

// GetSession returns the session view
func (h *ValleyHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetSession(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to get session", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// DeleteSession closes a session
func (h *ValleyHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSession(r.PathValue("id")); err != nil {
		h.fail(w, r, "Failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EditModel replaces the model text with the raw request body. Text that
// does not parse is accepted and reported in the view.
func (h *ValleyHandler) EditModel(w http.ResponseWriter, r *http.Request) {
	text, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "Failed to read body", err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.svc.EditModel(r.PathValue("id"), string(text))
	if err != nil {
		h.fail(w, r, "Failed to edit model", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// ResetSession reloads a dataset into the session
func (h *ValleyHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.svc.ResetSession(r.Context(), r.PathValue("id"), req.Dataset)
	if err != nil {
		h.fail(w, r, "Failed to reset session", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// Select sets the selected entity; an unknown or empty name clears it
func (h *ValleyHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.svc.Select(r.PathValue("id"), req.Name)
	if err != nil {
		h.fail(w, r, "Failed to select entity", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// GetEntity returns one entity's details
func (h *ValleyHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Entity(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, "Failed to get entity", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// DismissNotices drops the notice named by ?id=, or all notices
func (h *ValleyHandler) DismissNotices(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.DismissNotices(r.PathValue("id"), r.URL.Query().Get("id"))
	if err != nil {
		h.fail(w, r, "Failed to dismiss notices", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// GetGraph returns the positioned graph of the current model
func (h *ValleyHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := h.svc.RefreshLayout(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to get layout", err)
		return
	}
	writeJSON(w, graph, http.StatusOK)
}

// GetLayout returns the raw DOT layout of the current model
func (h *ValleyHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	dot, err := h.svc.LayoutDOT(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to get layout", err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	io.WriteString(w, dot)
}

// LaunchSimulation starts a run; while one is pending it reports that run
func (h *ValleyHandler) LaunchSimulation(w http.ResponseWriter, r *http.Request) {
	runID, started, err := h.svc.LaunchSimulation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Cannot run simulation", err)
		return
	}
	writeJSON(w, SimulationResponse{RunID: runID, Started: started}, http.StatusAccepted)
}

// GetResults returns the simulation results
func (h *ValleyHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Results(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to get results", err)
		return
	}
	writeJSON(w, results, http.StatusOK)
}

// ClearResults drops the simulation results
func (h *ValleyHandler) ClearResults(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ClearResults(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to clear results", err)
		return
	}
	writeJSON(w, view, http.StatusOK)
}

// ExportResultsCSV writes the volume results as CSV
func (h *ValleyHandler) ExportResultsCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.svc.Results(id); err != nil {
		h.fail(w, r, "Failed to export results", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=results.csv")
	if err := h.svc.ResultsCSV(id, w); err != nil {
		// Can't write error response as we already set headers
		logging.FromContext(r.Context()).Error("failed to export results", "error", err)
	}
}

// ExportYAML writes the current model as YAML
func (h *ValleyHandler) ExportYAML(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.svc.GetSession(id); err != nil {
		h.fail(w, r, "Failed to export model", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", "attachment; filename=valley.yaml")
	if err := h.svc.ExportYAML(id, w); err != nil {
		logging.FromContext(r.Context()).Error("failed to export model", "error", err)
	}
}

// ListDatasets returns the dataset listing
func (h *ValleyHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListDatasets()
	if err != nil {
		h.fail(w, r, "Failed to list datasets", err)
		return
	}
	writeJSON(w, infos, http.StatusOK)
}

// GetDataset returns a dataset file as stored
func (h *ValleyHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, err := h.svc.ReadDataset(name)
	if err != nil {
		h.fail(w, r, "Failed to read dataset", err)
		return
	}

	switch dataset.KindOf(name) {
	case dataset.KindSeries:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(data)
}

// GetSeries returns the parsed values of a .csv dataset
func (h *ValleyHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.svc.DatasetSeries(r.PathValue("name"))
	if err != nil {
		h.fail(w, r, "Failed to load series", err)
		return
	}
	writeJSON(w, series, http.StatusOK)
}

// Upload stores a multipart "file" field as a dataset
func (h *ValleyHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes+1<<20)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, "Invalid upload", err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file part", err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	info, err := h.svc.UploadDataset(header.Filename, file)
	if err != nil {
		h.fail(w, r, "Failed to upload dataset", err)
		return
	}
	writeJSON(w, info, http.StatusCreated)
}

// SaveDirect stores the raw request body as a new model dataset
func (h *ValleyHandler) SaveDirect(w http.ResponseWriter, r *http.Request) {
	text, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "Failed to read body", err.Error(), http.StatusBadRequest)
		return
	}

	info, err := h.svc.SaveDirect(string(text))
	if err != nil {
		h.fail(w, r, "Failed to save model", err)
		return
	}
	writeJSON(w, info, http.StatusCreated)
}

// ListRuns returns recorded runs, filtered by ?session= and ?limit=
func (h *ValleyHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "Invalid limit", fmt.Sprintf("limit must be a non-negative integer, got %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.svc.ListRuns(r.Context(), r.URL.Query().Get("session"), limit)
	if err != nil {
		h.fail(w, r, "Failed to list runs", err)
		return
	}
	writeJSON(w, runs, http.StatusOK)
}

// GetRun returns one recorded run
func (h *ValleyHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to get run", err)
		return
	}
	writeJSON(w, run, http.StatusOK)
}

// Health reports liveness
func (h *ValleyHandler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.svc.Health(r.Context())
	if err != nil {
		h.fail(w, r, "Health check failed", err)
		return
	}
	writeJSON(w, health, http.StatusOK)
}

// fail writes err with the status its kind maps to
func (h *ValleyHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error(msg, "error", err, "path", r.URL.Path)
	} else {
		logging.FromContext(r.Context()).Debug(msg, "error", err, "status", status)
	}
	writeError(w, msg, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, dataset.ErrNotFound),
		errors.Is(err, service.ErrEntityNotFound),
		errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrNoResults),
		errors.Is(err, service.ErrNoLayout):
		return http.StatusNotFound

	case errors.Is(err, dataset.ErrInvalidName),
		errors.Is(err, dataset.ErrUnsupportedType),
		errors.Is(err, dataset.ErrWrongKind),
		errors.Is(err, codec.ErrSyntax),
		errors.Is(err, codec.ErrSchema),
		errors.Is(err, session.ErrInvalidText),
		errors.Is(err, session.ErrNoModel),
		errors.Is(err, layout.ErrInvalidModel):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrHistoryDisabled):
		return http.StatusNotImplemented

	case errors.Is(err, layout.ErrUnreachable),
		errors.Is(err, layout.ErrServiceRejected),
		errors.Is(err, layout.ErrUnparseable),
		errors.Is(err, simulation.ErrUnreachable),
		errors.Is(err, simulation.ErrServiceRejected),
		errors.Is(err, simulation.ErrInvalidResponse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeOptional decodes a JSON body; an empty body leaves v unchanged
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}
