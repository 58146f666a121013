package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"imoveis-importer/jobs"
	"imoveis-importer/utils"
)

// JobQueue is what the HTTP layer needs from the job queue.
type JobQueue interface {
	Enqueue(kind jobs.Kind) (jobs.Job, error)
	Get(id string) (jobs.Job, bool)
	List() []jobs.Job
}

type Handler struct {
	queue  JobQueue
	logger *utils.Logger
}

func NewHandler(queue JobQueue, logger *utils.Logger) *Handler {
	return &Handler{queue: queue, logger: logger}
}

// Router wires every route.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	imports := r.PathPrefix("/api/imports").Subrouter()
	imports.HandleFunc("", h.HandleEnqueue).Methods(http.MethodPost)
	imports.HandleFunc("", h.HandleList).Methods(http.MethodGet)
	imports.HandleFunc("/{id}", h.HandleGet).Methods(http.MethodGet)
	return r
}

type enqueueRequest struct {
	Kind jobs.Kind `json:"kind"`
}

// HandleEnqueue starts an import job and returns its id without waiting for it.
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	req := enqueueRequest{Kind: jobs.KindCrawl}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Kind == "" {
		req.Kind = jobs.KindCrawl
	}

	job, err := h.queue.Enqueue(req.Kind)
	switch {
	case errors.Is(err, jobs.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, jobs.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.logger.Error("[api] Enqueue failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not enqueue job")
		return
	}

	w.Header().Set("Location", "/api/imports/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.queue.List()})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := h.queue.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
