package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/arjun/haultrack/config"
	"github.com/arjun/haultrack/internal/handler"
	"github.com/arjun/haultrack/internal/middleware"
	"github.com/arjun/haultrack/internal/repository"
	"github.com/arjun/haultrack/internal/service"
	"github.com/arjun/haultrack/pkg/auth"
	"github.com/arjun/haultrack/pkg/cache"
	"github.com/arjun/haultrack/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Initialize layers ───────────────────────────────
	tripRepo := repository.NewTripRepository(pgPool)
	trackRepo := repository.NewTrackRepository(pgPool)
	statsRepo := repository.NewStatsRepository(pgPool, redisClient)

	engine := service.NewEfficiencyEngine(cfg.Engine, statsRepo)
	tripSvc := service.NewTripService(tripRepo, trackRepo, engine)

	authSvc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	tripHandler := handler.NewTripHandler(tripSvc)
	statsHandler := handler.NewStatsHandler(engine)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint stays outside the auth guard.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(authSvc))
	// Trip lifecycle
	api.HandleFunc("/trips", tripHandler.CreateTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}", tripHandler.GetTrip).Methods(http.MethodGet)
	api.HandleFunc("/trips/{id}", tripHandler.UpdateTrip).Methods(http.MethodPatch)
	api.HandleFunc("/trips/{id}/start", tripHandler.StartTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}/end", tripHandler.EndTrip).Methods(http.MethodPost)
	api.HandleFunc("/trips/{id}/cancel", tripHandler.CancelTrip).Methods(http.MethodPost)
	// GPS ingestion
	api.HandleFunc("/trips/{id}/locations", tripHandler.RecordLocation).Methods(http.MethodPost)
	// Fleet analytics
	api.HandleFunc("/fleet/statistics", statsHandler.FleetStatistics).Methods(http.MethodGet)

	// Wrap the full router with the ambient middleware chain.
	root := middleware.CORS(middleware.RequestLogger(middleware.Recoverer(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
