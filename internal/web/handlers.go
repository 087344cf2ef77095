package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/makt28/downwatch/internal/model"
	"github.com/makt28/downwatch/internal/storage"
)

// Handlers serves the registration API, the log pages and their JSON twins.
type Handlers struct {
	svc  MonitorService
	tmpl *TemplateRenderer
	loc  *time.Location
}

func NewHandlers(svc MonitorService, tmpl *TemplateRenderer, loc *time.Location) *Handlers {
	return &Handlers{svc: svc, tmpl: tmpl, loc: loc}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "message": msg})
}

// isForm reports whether the request body is an HTML form post.
func isForm(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}

// Register creates a monitor and starts probing it.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			respondError(w, "Invalid form body.", http.StatusBadRequest)
			return
		}
		reg = model.Registration{
			URL:         r.FormValue("url"),
			Name:        r.FormValue("name"),
			Email:       r.FormValue("email"),
			Phone:       r.FormValue("phone"),
			CountryCode: r.FormValue("countryCode"),
			Interval:    r.FormValue("interval"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		respondError(w, "Invalid JSON body.", http.StatusBadRequest)
		return
	}

	m, err := h.svc.Register(r.Context(), reg)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			msg := strings.Join(ve.Problems, "; ")
			if errors.Is(err, model.ErrUnsupportedInterval) {
				msg = "Invalid interval. " + msg
			}
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok":       false,
				"message":  msg,
				"problems": ve.Problems,
			})
			return
		}
		slog.Error("failed to register monitor", "url", reg.URL, "error", err)
		respondError(w, "Failed to register monitor.", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"id":      m.ID,
		"message": "Registered successfully!",
	})
}

// monitorID reads an optional id from ?id=, a form field or a JSON body.
func monitorID(r *http.Request) string {
	if id := r.URL.Query().Get("id"); id != "" {
		return id
	}
	if isForm(r) {
		return r.FormValue("id")
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("ignoring unreadable body", "path", r.URL.Path, "error", err)
	}
	return strings.TrimSpace(body.ID)
}

// StopMonitoring stops one monitor when an id is given, otherwise all of them.
func (h *Handlers) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	id := monitorID(r)
	if id == "" {
		if err := h.svc.StopAll(r.Context()); err != nil {
			slog.Error("failed to stop all monitors", "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "All monitoring stopped."})
		return
	}

	if err := h.svc.Stop(r.Context(), id); err != nil {
		slog.Error("failed to stop monitor", "id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Monitoring stopped.", "id": id})
}

// StartMonitoring resumes a stopped monitor.
func (h *Handlers) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	id := monitorID(r)
	if id == "" {
		respondError(w, "Missing monitor ID.", http.StatusBadRequest)
		return
	}

	m, err := h.svc.Start(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, "Monitor not found.", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to start monitor", "id", id, "error", err)
		respondError(w, "Failed to start monitor.", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Monitoring started.", "id": m.ID})
}

// DeleteMonitor stops and removes a monitor with its log. Unknown ids succeed.
func (h *Handlers) DeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		slog.Error("failed to delete monitor", "id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "message": "Deleted.", "id": id})
}

// statusLabel is the live UP/DOWN state, or the stored state when not running.
func (h *Handlers) statusLabel(m model.Monitor) string {
	st, ok := h.svc.Status(m.ID)
	switch {
	case !ok || !st.Running:
		return "STOPPED"
	case st.Down:
		return "DOWN"
	default:
		return "UP"
	}
}

type logRow struct {
	model.Monitor
	Status string
}

// LogsPage renders the overview of all monitors.
func (h *Handlers) LogsPage(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("failed to list monitors", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	rows := make([]logRow, 0, len(monitors))
	for _, m := range monitors {
		rows = append(rows, logRow{Monitor: m, Status: h.statusLabel(m)})
	}
	h.tmpl.Render(w, http.StatusOK, "logs.html", map[string]interface{}{
		"Title":    "Monitors",
		"Monitors": rows,
	})
}

type intervalRow struct {
	Date     string
	Duration string
	Start    string
	End      string
	Minutes  int
}

// formatDuration renders d as whole minutes and seconds.
func formatDuration(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

func (h *Handlers) intervalRows(logs []model.DowntimeInterval) []intervalRow {
	rows := make([]intervalRow, 0, len(logs))
	for _, iv := range logs {
		start := iv.Start.In(h.loc)
		rows = append(rows, intervalRow{
			Date:     start.Format("2006-01-02"),
			Duration: formatDuration(iv.Duration()),
			Start:    start.Format("15:04:05"),
			End:      iv.End.In(h.loc).Format("15:04:05"),
			Minutes:  iv.DurationMinutes,
		})
	}
	return rows
}

// LogDetailPage renders one monitor's downtime log.
func (h *Handlers) LogDetailPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.tmpl.Render(w, http.StatusNotFound, "notfound.html", map[string]interface{}{
			"Title": "Not found",
			"ID":    id,
		})
		return
	}
	if err != nil {
		slog.Error("failed to load monitor", "id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.tmpl.Render(w, http.StatusOK, "detail.html", map[string]interface{}{
		"Title":    detail.URL,
		"Monitor":  detail.Monitor,
		"Status":   h.statusLabel(detail.Monitor),
		"Rows":     h.intervalRows(detail.Logs),
		"Timezone": h.loc.String(),
	})
}

// apiMonitorView is the JSON representation of a monitor for the API.
type apiMonitorView struct {
	model.Monitor
	Status    string     `json:"status"`
	DownSince *time.Time `json:"downSince,omitempty"`
}

func (h *Handlers) view(m model.Monitor) apiMonitorView {
	v := apiMonitorView{Monitor: m, Status: h.statusLabel(m)}
	if st, ok := h.svc.Status(m.ID); ok && st.Down {
		since := st.DownSince
		v.DownSince = &since
	}
	return v
}

// APIMonitors returns JSON data for all monitors.
func (h *Handlers) APIMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.svc.List(r.Context())
	if err != nil {
		slog.Error("failed to list monitors", "error", err)
		respondError(w, "failed to list monitors", http.StatusInternalServerError)
		return
	}

	views := make([]apiMonitorView, 0, len(monitors))
	for _, m := range monitors {
		views = append(views, h.view(m))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"monitors": views,
		"total":    len(views),
	})
}

// APIMonitorDetail returns one monitor with its downtime log.
func (h *Handlers) APIMonitorDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		slog.Error("failed to load monitor", "id", id, "error", err)
		respondError(w, "failed to load monitor", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		apiMonitorView
		Logs []model.DowntimeInterval `json:"logs"`
	}{h.view(detail.Monitor), detail.Logs})
}
