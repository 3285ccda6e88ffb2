package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/eve-market-prices/pkg/catalog"
	"github.com/Sternrassler/eve-market-prices/pkg/client"
	"github.com/Sternrassler/eve-market-prices/pkg/logging"
	"github.com/Sternrassler/eve-market-prices/pkg/metrics"
	"github.com/Sternrassler/eve-market-prices/pkg/names"
	"github.com/Sternrassler/eve-market-prices/pkg/view"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type config struct {
	Port        string
	BaseURL     string
	UserAgent   string
	RedisURL    string
	PageSize    int
	Concurrency int
	NameRate    float64
	LogLevel    string
	LogPretty   bool
}

func loadConfig() config {
	return config{
		Port:        getEnv("PORT", "8080"),
		BaseURL:     getEnv("ESI_BASE_URL", client.DefaultBaseURL),
		UserAgent:   getEnv("USER_AGENT", "eve-market-prices/0.1.0"),
		RedisURL:    os.Getenv("REDIS_URL"),
		PageSize:    getEnvInt("PAGE_SIZE", view.DefaultConfig().PageSize),
		Concurrency: getEnvInt("NAME_FETCH_CONCURRENCY", names.DefaultConfig().Concurrency),
		NameRate:    getEnvFloat("NAME_FETCH_RATE", 0),
		LogLevel:    getEnv("LOG_LEVEL", string(logging.LevelInfo)),
		LogPretty:   getEnv("LOG_PRETTY", "false") == "true",
	}
}

func main() {
	cfg := loadConfig()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg config, logger zerolog.Logger) error {
	clientCfg := client.DefaultConfig(cfg.UserAgent)
	clientCfg.BaseURL = cfg.BaseURL

	if cfg.RedisURL != "" {
		redisClient, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		clientCfg.Redis = redisClient
		logger.Info().Str("redis", redisClient.Options().Addr).Msg("Connected to Redis")
	}

	esiClient, err := client.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create ESI client: %w", err)
	}
	defer esiClient.Close()

	nameCache := newNameCache(esiClient, cfg, logger)
	defer nameCache.Close()

	model := view.New(catalog.NewLoader(esiClient, logger), nameCache, view.Config{PageSize: cfg.PageSize}, logger)
	go model.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(model),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("esi", cfg.BaseURL).
			Str("user_agent", cfg.UserAgent).
			Msg("Starting market price server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newNameCache wires the resolver and cache. Each adds its own component field.
func newNameCache(fetcher names.Fetcher, cfg config, logger zerolog.Logger) *names.Cache {
	resolver := names.NewResolver(fetcher, names.Config{
		Concurrency: cfg.Concurrency,
		RateLimit:   cfg.NameRate,
		Burst:       cfg.Concurrency,
	}, logger)
	return names.NewCache(resolver, logger)
}

// connectRedis accepts either a redis:// URL or a bare host:port.
func connectRedis(ctx context.Context, raw string) (*redis.Client, error) {
	opts := &redis.Options{Addr: raw}
	if strings.Contains(raw, "://") {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to Redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func newRouter(model *view.Model) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(model))
	mux.HandleFunc("GET /api/prices", pricesHandler(model))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// readyHandler reports ready once the catalog is loaded.
func readyHandler(model *view.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := model.LoadState()
		if state.Phase != catalog.Loaded {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "catalog %s", state.Phase)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}
}

// pricesHandler applies ?page=N or ?nav=next|prev, then returns the snapshot.
func pricesHandler(model *view.Model) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if raw := q.Get("page"); raw != "" {
			page, err := strconv.Atoi(raw)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid page %q", raw), http.StatusBadRequest)
				return
			}
			model.GoToPage(page)
		}

		switch q.Get("nav") {
		case "":
		case "next":
			model.Next()
		case "prev":
			model.Prev()
		default:
			http.Error(w, fmt.Sprintf("invalid nav %q", q.Get("nav")), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(model.Snapshot()); err != nil {
			log.Warn().Err(err).Msg("Failed to write snapshot")
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return defaultValue
	}
	return f
}
