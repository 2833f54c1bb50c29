package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mlenz-dev/aibroker/internal/broker"
	"github.com/mlenz-dev/aibroker/internal/metrics"
	"github.com/mlenz-dev/aibroker/internal/provider"
)

type handlers struct {
	dispatcher *broker.Dispatcher
	poller     *broker.Poller
	registry   *provider.Registry
	stats      *metrics.Collector
	logger     *slog.Logger
}

// completionRequest is the HTTP body for chat completion dispatch. The
// provider field pins a specific backend and disables failover.
type completionRequest struct {
	provider.Request
	Provider string `json:"provider,omitempty"`
}

// completionResponse answers an inline completion.
type completionResponse struct {
	Content  string `json:"content,omitempty"`
	Error    string `json:"error,omitempty"`
	Provider string `json:"provider_name,omitempty"`
	Model    string `json:"model_used,omitempty"`
}

// deferredResponse answers a deferred dispatch with the id to poll.
type deferredResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	disp, err := h.dispatcher.Dispatch(r.Context(), req.Request, req.Provider)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if disp.Deferred() {
		writeJSON(w, http.StatusAccepted, deferredResponse{
			TaskID: disp.JobID,
			Status: string(broker.StatusPending),
		})
		return
	}

	res := disp.Result
	status := http.StatusOK
	if !res.OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, completionResponse{
		Content:  res.Content,
		Error:    res.Err,
		Provider: res.Provider,
		Model:    res.Model,
	})
}

func (h *handlers) taskStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "missing task id")
		return
	}

	poll, err := h.poller.Poll(r.Context(), jobID)
	if err != nil {
		h.logger.Error("status poll failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	status := http.StatusOK
	if poll.Status == broker.StatusNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, poll)
}

type healthResponse struct {
	Status    string   `json:"status"`
	Providers []string `json:"providers"`
}

// health reports readiness. No usable providers means the broker cannot do
// its job, so that case is reported as unavailable.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	if len(names) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "unavailable",
			Providers: []string{},
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Providers: names})
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
