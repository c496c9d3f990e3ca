package health

import (
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/companion_chatbot/pkg/logger"
)

// Status values reported in HealthResponse.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthResponse is the JSON body of the health endpoints.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Checks  map[string]CheckStatus `json:"checks,omitempty"`
	Message string                 `json:"message,omitempty"`
}

// CheckStatus represents the status of an individual check in the HTTP response.
type CheckStatus struct {
	Status   string `json:"status"` // "ok" | "error"
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// LivenessHandler answers 200 while the process is alive and 503 when it should be restarted.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckLiveness(r.Context())
		h.writeHealthResponse(w, status, err)
	}
}

// ReadinessHandler answers 200 while the service can take traffic, degraded or
// not, and 503 when a critical dependency is down.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckReadiness(r.Context())
		h.writeHealthResponse(w, status, err)
	}
}

func (h *HealthChecker) writeHealthResponse(w http.ResponseWriter, status *HealthStatus, err error) {
	response := HealthResponse{
		Checks: make(map[string]CheckStatus, len(status.Checks)),
	}

	code := http.StatusOK
	switch {
	case !status.Healthy:
		response.Status = StatusUnhealthy
		code = http.StatusServiceUnavailable
		if err != nil {
			response.Message = err.Error()
		}
	case status.Degraded:
		response.Status = StatusDegraded
	default:
		response.Status = StatusHealthy
	}

	for _, result := range status.Checks {
		checkStatus := CheckStatus{
			Status:   "ok",
			Critical: result.Critical,
			Latency:  result.Latency.String(),
		}
		if !result.Healthy {
			checkStatus.Status = "error"
			checkStatus.Error = result.Error
		}
		response.Checks[result.Name] = checkStatus
	}

	body, encErr := json.Marshal(response)
	if encErr != nil {
		if h.logger != nil {
			h.logger.Error("Failed to encode health response", logger.ErrorField(encErr))
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
