package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"neighborsos/internal/gate"
	"neighborsos/internal/util"
)

const comingSoonPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>NeighborSOS — Coming Soon</title></head>
<body>
<h1>NeighborSOS is almost here</h1>
<p>A marketplace connecting local charities with neighbors who want to help.</p>
<form id="notify" method="post" action="/api/v1/signup">
  <input type="email" name="email" placeholder="you@example.com" required>
  <button type="submit">Notify me at launch</button>
</form>
</body>
</html>`

const landingPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>NeighborSOS</title></head>
<body>
<h1>NeighborSOS</h1>
<p>Browse urgent needs from verified local charities, or sponsor a family this season.</p>
<nav><a href="/api/v1/urgent-needs">Urgent needs</a> · <a href="/api/v1/families">Families</a> · <a href="/api/v1/stories">Success stories</a></nav>
</body>
</html>`

// NewRouter assembles the middleware stack and mounts every surface.
// The access gate wraps the whole tree; its exempt prefixes keep the
// holding page, auth pages, API, and probes reachable.
func NewRouter(
	accessGate *gate.Gate,
	marketplaceHandler *MarketplaceHandler,
	emailHandler *EmailHandler,
	adminHandler *AdminHandler,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Api-Secret"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(accessGate.Middleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"neighborsos"}`))
	})

	router.Get(gate.HoldingPage, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(comingSoonPage))
	})

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingPage))
	})

	router.Route("/api/v1", func(r chi.Router) {
		marketplaceHandler.RegisterRoutes(r)
		emailHandler.RegisterRoutes(r)
	})

	router.Route("/admin/api", func(r chi.Router) {
		adminHandler.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
