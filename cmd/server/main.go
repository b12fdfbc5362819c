package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-imageset/internal/api"
	"github.com/tendant/simple-imageset/pkg/simpleimageset"
	"github.com/tendant/simple-imageset/pkg/simpleimageset/config"
)

// ServerEnv holds process-level settings; service wiring comes from
// config.WithEnv.
type ServerEnv struct {
	ShutdownTimeout  int    `env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"10"`
	RequestTimeout   int    `env:"REQUEST_TIMEOUT_SECONDS" env-default:"60"`
	DefaultLifecycle string `env:"DEFAULT_OWNER_LIFECYCLE" env-default:"new"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var env ServerEnv
	if err := cleanenv.ReadEnv(&env); err != nil {
		logger.Error("failed to read environment", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		logger.Error("failed to load server configuration", "err", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService(logger)
	if err != nil {
		logger.Error("failed to build service", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: routes(svc, serverConfig, env),
	}

	go func() {
		logger.Info("simple-imageset server starting",
			"port", serverConfig.Port,
			"environment", serverConfig.Environment,
			"storage", serverConfig.StorageType,
			"database", serverConfig.DatabaseType,
			"token_store", serverConfig.TokenStoreType)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(env.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("server exiting")
}

func routes(svc simpleimageset.Service, serverConfig *config.ServerConfig, env ServerEnv) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(time.Duration(env.RequestTimeout) * time.Second))

	// CORS for development
	if serverConfig.Environment == "development" {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-Owner-Lifecycle")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "environment": "%s"}`, serverConfig.Environment)
	})

	handler := api.NewImageSetHandler(svc, headerResolver(env.DefaultLifecycle))
	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/imagesets", handler.Routes())
	})

	return r
}

// headerResolver builds owners from request headers. The entity service that
// knows real lifecycle state lives outside this process; callers relay the
// state via X-Owner-Lifecycle.
func headerResolver(defaultLifecycle string) api.Resolver {
	return func(r *http.Request, id uuid.UUID) (simpleimageset.SequencedContentOwner, error) {
		lifecycle := defaultLifecycle
		if v := r.Header.Get("X-Owner-Lifecycle"); v != "" {
			lifecycle = v
		}
		return simpleimageset.StaticOwner{
			ID:     id,
			Ref:    "imageset/" + id.String(),
			Status: simpleimageset.LifecycleStatus(lifecycle),
		}, nil
	}
}
