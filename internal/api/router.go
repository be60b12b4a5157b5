package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/audiopress/audiopress/internal/api/handlers"
	"github.com/audiopress/audiopress/internal/api/middleware"
	"github.com/audiopress/audiopress/internal/auth"
	"github.com/audiopress/audiopress/internal/config"
	"github.com/audiopress/audiopress/internal/service"
)

type Router struct {
	mux *chi.Mux
	db  *pgxpool.Pool
	rdb *redis.Client
	cfg *config.Config
	jwt *auth.JWTMiddleware
	svc *service.Services
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux: chi.NewRouter(),
		db:  db,
		rdb: rdb,
		cfg: cfg,
		jwt: auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		svc: service.Build(db, rdb, cfg),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.rdb)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	audioH := handlers.NewAudioHandler(rt.svc.Pipeline, rt.svc.Content, rt.svc.Scheduler)
	adminH := handlers.NewAdminHandler(rt.svc.Scheduler, rt.svc.Purger)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Post("/events/published", audioH.Published)
		r.Post("/audio/generate", audioH.Generate)

		r.Route("/admin", func(r chi.Router) {
			r.Use(rt.jwt.RequireAdmin)

			r.Post("/bulk/start", adminH.BulkStart)
			r.Post("/bulk/pause", adminH.BulkPause)
			r.Post("/bulk/resume", adminH.BulkResume)
			r.Post("/bulk/stop", adminH.BulkStop)
			r.Get("/stats", adminH.Stats)
			r.Post("/purge", adminH.Purge)
		})
	})

	return r
}
