package policyhost

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AdminRoutes builds the HTTP router used to inspect a running policy host.
func AdminRoutes(svc *Service, registry *Registry, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/modules", func(w http.ResponseWriter, _ *http.Request) {
			type module struct {
				Name      string   `json:"name"`
				Factories []string `json:"factories"`
				Imported  bool     `json:"imported"`
			}
			imported := make(map[string]bool)
			for _, name := range svc.Imported() {
				imported[name] = true
			}
			out := make([]module, 0)
			for _, name := range registry.Modules() {
				factories, _ := registry.Factories(name)
				out = append(out, module{Name: name, Factories: factories, Imported: imported[name]})
			}
			writeJSON(w, http.StatusOK, out)
		})
		r.Get("/delegates", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, svc.Delegates())
		})
		r.Get("/delegates/{delegateID}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "delegateID")
			for _, d := range svc.Delegates() {
				if d.ID == id {
					writeJSON(w, http.StatusOK, d)
					return
				}
			}
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "delegate not found"})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// RequestLogger creates a zerolog-based request logger middleware.
func RequestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&requestLogFormatter{logger})
}

type requestLogFormatter struct {
	logger zerolog.Logger
}

func (f *requestLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = uuid.New().String()
		r.Header.Set("X-Correlation-ID", correlationID)
	}
	return &requestLogEntry{
		logger: f.logger.With().
			Str("correlation_id", correlationID).
			Str("method", r.Method).
			Str("url", r.URL.Path).
			Logger(),
	}
}

type requestLogEntry struct {
	logger zerolog.Logger
}

func (e *requestLogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	level := zerolog.DebugLevel
	if status >= 500 {
		level = zerolog.ErrorLevel
	} else if status >= 400 {
		level = zerolog.WarnLevel
	}
	e.logger.WithLevel(level).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("Request completed")
}

func (e *requestLogEntry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("Request panicked")
}
