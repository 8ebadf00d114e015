package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vbonduro/cardledger/internal/imagestore"
	"github.com/vbonduro/cardledger/internal/service"
)

// imagePrefetcher schedules background image downloads.
type imagePrefetcher interface {
	Enqueue(key, url string) bool
}

type Server struct {
	service   *service.InventoryService
	templates embed.FS
	images    imagestore.Store
	prefetch  imagePrefetcher
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewServer(svc *service.InventoryService, tmpl embed.FS, images imagestore.Store, prefetch imagePrefetcher, logger *slog.Logger) *Server {
	s := &Server{
		service:   svc,
		templates: tmpl,
		images:    images,
		prefetch:  prefetch,
		mux:       http.NewServeMux(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"percent": percent,
		},
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/collectors", http.StatusSeeOther)
	})
	s.mux.HandleFunc("GET /collectors", s.handleListCollectors)
	s.mux.HandleFunc("POST /collectors", s.handleCreateCollector)
	s.mux.HandleFunc("DELETE /collectors/{id}", s.handleDeleteCollector)
	s.mux.HandleFunc("GET /collectors/{id}/inventory", s.handleGetInventory)
	s.mux.HandleFunc("POST /collectors/{id}/inventory", s.handleAddCard)
	s.mux.HandleFunc("POST /collectors/{id}/inventory/{entryID}/decrement", s.handleDecrement)
	s.mux.HandleFunc("GET /collectors/{id}/search", s.handleSearch)
	s.mux.HandleFunc("GET /cards/{cardID}/image", s.handleCardImage)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tmpl.ExecuteTemplate(w, "base", data)
}

// renderPartial parses and executes a single named partial template.
// The file must contain exactly one {{define "name"}}...{{end}} block.
func (s *Server) renderPartial(w http.ResponseWriter, file string, data any) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, file)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	basename := file
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		basename = file[idx+1:]
	}
	for _, t := range tmpl.Templates() {
		if n := t.Name(); n != "" && n != basename {
			return t.Execute(w, data)
		}
	}
	return tmpl.ExecuteTemplate(w, basename, data)
}

// percent returns part as a whole-number percentage of total, capped at 100.
func percent(part, total int) int {
	if total <= 0 {
		return 0
	}
	p := part * 100 / total
	if p > 100 {
		return 100
	}
	return p
}
