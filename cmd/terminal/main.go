package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"retailpos/terminal/internal/backend"
	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/checkout"
	"retailpos/terminal/internal/config"
	"retailpos/terminal/internal/httpapi"
	"retailpos/terminal/internal/logging"
	"retailpos/terminal/internal/metrics"
	"retailpos/terminal/internal/service"
	"retailpos/terminal/internal/session"
)

func main() {
	cfg := config.Load()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("session store unavailable", zap.Error(err))
	}

	sessions := session.NewManager(store)
	if err := sessions.Load(ctx); err != nil {
		logger.Warn("discarding unreadable session", zap.Error(err))
		if err := sessions.Clear(ctx); err != nil {
			logger.Fatal("clear session", zap.Error(err))
		}
	}

	m := metrics.New()
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	client := backend.New(backend.Options{
		BaseURL:         cfg.BackendURL,
		Timeout:         timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerOpenFor:  time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		Tokens:          sessions,
		Logger:          logger,
		Metrics:         m,
	})

	c := cart.New()
	flow := checkout.NewFlow(client, c, logger, m)
	svc := service.New(client, sessions, c, flow, logger)
	api := httpapi.New(svc, m.Handler(), logger, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// A checkout makes two sequential backend calls.
		WriteTimeout: 2*timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("POS terminal listening",
			zap.String("addr", cfg.Address()),
			zap.String("backend", cfg.BackendURL),
			zap.String("terminal", cfg.TerminalID),
			zap.String("sessionBackend", cfg.SessionBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Warn("close session store", zap.Error(err))
	}

	logger.Info("terminal stopped")
}

// openSessionStore builds the configured store. An unreachable redis falls
// back to the file store so the till keeps working.
func openSessionStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		logger.Info("session store: memory")
		return session.NewMemoryStore(), nil
	case config.SessionBackendRedis:
		ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
		redisStore := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TerminalID, ttl)
		err := redisStore.Ping(ctx)
		if err == nil {
			logger.Info("session store: redis", zap.String("addr", cfg.RedisAddr))
			return redisStore, nil
		}
		logger.Warn("redis unavailable, using file session store", zap.Error(err))
		_ = redisStore.Close()
	}

	fileStore, err := session.NewFileStore(cfg.SessionPath, cfg.SessionKey)
	if err != nil {
		return nil, err
	}
	logger.Info("session store: file", zap.String("path", cfg.SessionPath), zap.Bool("sealed", cfg.SessionKey != ""))
	return fileStore, nil
}

func validateConfig(cfg config.Config) error {
	backendURL, err := url.Parse(cfg.BackendURL)
	if err != nil || (backendURL.Scheme != "http" && backendURL.Scheme != "https") || backendURL.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an http(s) URL, got %q", cfg.BackendURL)
	}
	switch cfg.SessionBackend {
	case config.SessionBackendMemory, config.SessionBackendFile:
	case config.SessionBackendRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be memory, file or redis, got %q", cfg.SessionBackend)
	}
	if cfg.SessionKey != "" && len(cfg.SessionKey) < 16 {
		return fmt.Errorf("SESSION_KEY must be at least 16 characters when set")
	}
	if cfg.TerminalID == "" {
		return fmt.Errorf("TERMINAL_ID must not be empty")
	}
	return nil
}
