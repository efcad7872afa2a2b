// Package health serves liveness and readiness probes for the optional
// observability listener.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs
// every registered [Checker] and answers 200 only when all of them pass, so
// a supervisor can tell a started process from one whose speech providers
// are usable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// readyTimeout bounds one whole /readyz evaluation. Slow checks count
// against the shared deadline, not each against their own.
const readyTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when the dependency is
// usable; the error text is reported verbatim in the response body.
type Checker struct {
	// Name keys the check result in the JSON response ("llm", "stt", ...).
	Name string

	// Check must honour ctx cancellation.
	Check func(ctx context.Context) error
}

// report is the response body of both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the two probe endpoints. The checker list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] evaluating checkers in the given order on every
// /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always reports "ok": a process that got this far is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs every checker under one shared deadline. Any failure turns
// the response into a 503 with per-check detail.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	res := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := c.Check(ctx); err != nil {
			res.Checks[c.Name] = "error: " + err.Error()
			res.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, res)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
