package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vedran77/textswap/internal/auth"
	"github.com/vedran77/textswap/internal/service"
	"github.com/vedran77/textswap/internal/transport/http/middleware"
	"github.com/vedran77/textswap/pkg/logger"
)

type RouterConfig struct {
	Verifier      auth.Verifier
	Users         *service.UserService
	Directory     *service.DirectoryService
	Messages      *service.MessageService
	Ratings       *service.RatingService
	HealthChecks  map[string]HealthCheck
	WebSocket     http.Handler
	RateLimit     int
	RateLimitSpan time.Duration
}

func NewRouter(cfg RouterConfig, log *logger.Logger) http.Handler {
	users := NewUserHandler(cfg.Users, log)
	conversations := NewConversationHandler(cfg.Directory, cfg.Messages, log)
	reviews := NewReviewHandler(cfg.Ratings, log)
	health := NewHealthHandler(cfg.HealthChecks)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", health.Health)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Verifier))
		if cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateLimitSpan))
		}

		r.Get("/me", users.Me)
		r.Put("/me", users.UpdateProfile)
		r.Get("/users/{id}/rating", reviews.Summary)
		r.Get("/users/{id}/reviews", reviews.ListForUser)
		r.Get("/books/{id}/reviews", reviews.ListForBook)

		r.Get("/inbox/unread", conversations.Unread)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversations.GetOrCreate)
			r.Get("/", conversations.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversations.Get)
				r.Get("/messages", conversations.ListMessages)
				r.Post("/messages", conversations.SendMessage)
				r.Post("/read", conversations.MarkRead)
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Post("/", reviews.Submit)
			r.Get("/eligibility", reviews.Eligibility)
			r.Patch("/{id}", reviews.Update)
			r.Post("/{id}/helpful", reviews.MarkHelpful)
			r.Post("/{id}/report", reviews.Report)
		})
	})

	return r
}
