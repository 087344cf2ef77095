package web

import (
	"net/http"
	"time"

	"github.com/makt28/downwatch/internal/monitor"
)

var startTime = time.Now()

// HealthHandler serves the /healthz endpoint.
type HealthHandler struct {
	svc MonitorService
}

func NewHealthHandler(svc MonitorService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":         "ok",
		"version":        monitor.Version,
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	}

	monitors, err := h.svc.List(r.Context())
	if err != nil {
		resp["status"] = "degraded"
		resp["storage_error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	running := 0
	for _, m := range monitors {
		if st, ok := h.svc.Status(m.ID); ok && st.Running {
			running++
		}
	}
	resp["monitor_count"] = len(monitors)
	resp["running_count"] = running

	writeJSON(w, http.StatusOK, resp)
}
