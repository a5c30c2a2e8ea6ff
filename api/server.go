/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for the front-end
  5. Rate limit:  Per-IP token bucket (golang.org/x/time/rate)

AUTH:
  No auth middleware; each handler extracts and verifies its own bearer
  token through the gate, because user-facing and admin-gated routes
  need different checks.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(rateLimit(10, 20))

	r.Route("/api", func(r chi.Router) {
		r.Post("/accounts", h.CreateAccount)
		r.Get("/wallet", h.GetWallet)

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", h.CreateMatch)
			r.Get("/{id}", h.GetMatch)
			r.Post("/{id}/join", h.JoinMatch)
			r.Post("/{id}/result", h.SubmitResult)
			r.Post("/{id}/cancel", h.CancelMatch)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Route("/deposits", func(r chi.Router) {
				r.Post("/", h.SubmitDeposit)
				r.Get("/pending", h.ListPendingDeposits)
				r.Post("/{id}/resolve", h.ResolveDeposit)
			})
			r.Route("/withdrawals", func(r chi.Router) {
				r.Post("/", h.SubmitWithdrawal)
				r.Get("/pending", h.ListPendingWithdrawals)
				r.Post("/{id}/resolve", h.ResolveWithdrawal)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/float", h.GetAdminFloat)
			r.Post("/float/topup", h.TopUpFloat)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimit applies a per-IP token bucket.
const (
	// limiterIdleTTL is how long an IP's bucket survives without traffic
	// before a sweep may reclaim it.
	limiterIdleTTL = 3 * time.Minute

	// limiterSweepAt triggers a sweep once the pool tracks this many IPs,
	// so the map cannot grow without bound.
	limiterSweepAt = 1024
)

// limiterPool hands out one token bucket per client IP and reclaims
// buckets idle past limiterIdleTTL.
type limiterPool struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(rps rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		rps:     rps,
		burst:   burst,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	e, ok := p.entries[ip]
	if !ok {
		if len(p.entries) >= limiterSweepAt {
			p.sweepLocked(now)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (p *limiterPool) sweepLocked(now time.Time) {
	for ip, e := range p.entries {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(p.entries, ip)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func rateLimit(rps rate.Limit, burst int) func(http.Handler) http.Handler {
	pool := newLimiterPool(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !pool.get(ip).Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"status":  "error",
					"kind":    "rate_limited",
					"message": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
