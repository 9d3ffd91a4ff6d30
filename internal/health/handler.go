package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"trafficwatch/pkg/platform/httputil"
)

// Handler serves the health endpoint.
type Handler struct {
	reporter *Reporter
}

func NewHandler(reporter *Reporter) *Handler {
	return &Handler{reporter: reporter}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
}

// handleHealth answers 200 while the store is up and 503 otherwise. Degraded
// dependencies do not change the status code.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.reporter.Check(r.Context())
	status := http.StatusOK
	if !report.StoreUp() {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, report)
}
