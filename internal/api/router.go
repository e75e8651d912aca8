package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig tunes the middleware chain.
type RouterConfig struct {
	RateLimit float64 // requests per second per client; 0 disables limiting
	RateBurst int
	// TrustProxy takes the client IP from X-Forwarded-For/X-Real-IP. Only set
	// it behind a proxy that overwrites those headers; otherwise clients pick
	// their own rate-limit bucket.
	TrustProxy bool
}

// Routes returns the API handler. ctx bounds the rate limiter's cleanup
// goroutine.
func (s *Service) Routes(ctx context.Context, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	if cfg.RateLimit > 0 {
		r.Use(newRateLimiter(ctx, cfg.RateLimit, cfg.RateBurst).middleware)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.HandleHealth)
		api.Get("/version", s.HandleVersion)
		api.Get("/log", s.HandleLog)

		api.Get("/books/{id}", s.HandleBook)
		api.Get("/books/{id}/earnings", s.HandleEarnings)
		api.Get("/books/{id}/purchasers/{address}", s.HandlePurchaser)
		api.Get("/balances/{address}", s.HandleBalance)
		api.Get("/accounts/{address}", s.HandleAccount)
		api.Get("/authorized/{address}", s.HandleAuthorized)
		api.Get("/registry", s.HandleRegistry)
		api.Post("/tx", s.HandleSubmitTx)

		api.Get("/events", s.HandleEvents)

		api.Post("/backup", s.HandleBackup)
		api.Get("/backup/download", s.HandleBackupDownload)

		api.Get("/docs", s.HandleDocsList)
		api.Get("/docs/{name}", s.HandleDoc)
	})
	return r
}

// NewHTTPServer wraps handler with the node's timeouts. Writes are not
// bounded so websocket streams stay open.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
