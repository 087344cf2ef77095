package web

import (
	"context"
	"encoding/json"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/makt28/downwatch/internal/config"
	"github.com/makt28/downwatch/internal/model"
	"github.com/makt28/downwatch/internal/monitor"
	webassets "github.com/makt28/downwatch/web"
)

// MonitorService is the monitor lifecycle the handlers drive.
type MonitorService interface {
	Register(ctx context.Context, reg model.Registration) (model.Monitor, error)
	Start(ctx context.Context, id string) (model.Monitor, error)
	Stop(ctx context.Context, id string) error
	StopAll(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Monitor, error)
	Get(ctx context.Context, id string) (model.MonitorDetail, error)
	Status(id string) (monitor.MonitorStatus, bool)
}

// TemplateRenderer parses each page template paired with layout.html.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

func NewTemplateRenderer() *TemplateRenderer {
	tmplFS, err := fs.Sub(webassets.TemplatesFS, "templates")
	if err != nil {
		slog.Error("failed to access templates", "error", err)
		panic(err)
	}

	funcMap := template.FuncMap{
		"toJSON": func(v interface{}) template.JS {
			b, _ := json.Marshal(v)
			return template.JS(b)
		},
	}

	pages := []string{"logs.html", "detail.html", "notfound.html"}
	templates := make(map[string]*template.Template)

	for _, page := range pages {
		tmpl := template.Must(template.New("").Funcs(funcMap).ParseFS(tmplFS, "layout.html", page))
		templates[page] = tmpl
	}

	return &TemplateRenderer{templates: templates}
}

func (tr *TemplateRenderer) Render(w http.ResponseWriter, status int, name string, data interface{}) {
	tmpl, ok := tr.templates[name]
	if !ok {
		slog.Error("template not found", "template", name)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("template render error", "template", name, "error", err)
	}
}

// Hub is the live-event endpoint mounted at /ws.
type Hub interface {
	HandleConnect(w http.ResponseWriter, r *http.Request)
}

// NewRouter sets up all routes and returns the http.Handler.
func NewRouter(cfg config.Config, svc MonitorService, ws Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := cfg.System.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	loc, err := time.LoadLocation(cfg.System.Timezone)
	if err != nil {
		loc = time.UTC
	}

	handlers := NewHandlers(svc, NewTemplateRenderer(), loc)
	health := NewHealthHandler(svc)

	staticSub, err := fs.Sub(webassets.StaticFS, "static")
	if err != nil {
		panic(err)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/logs", http.StatusSeeOther)
	})
	r.Get("/healthz", health.ServeHTTP)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Post("/register", handlers.Register)
	r.Post("/stop-monitoring", handlers.StopMonitoring)
	r.Post("/start-monitoring", handlers.StartMonitoring)
	r.Get("/logs", handlers.LogsPage)
	r.Get("/logs/{id}", handlers.LogDetailPage)
	r.Delete("/delete/{id}", handlers.DeleteMonitor)
	r.Post("/delete/{id}", handlers.DeleteMonitor)

	// JSON API endpoints
	r.Get("/api/monitors", handlers.APIMonitors)
	r.Get("/api/monitors/{id}", handlers.APIMonitorDetail)

	if ws != nil {
		r.Get("/ws", ws.HandleConnect)
	}

	return r
}
