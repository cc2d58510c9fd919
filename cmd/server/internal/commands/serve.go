package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgclaim/internal/auth"
	"github.com/wolfeidau/orgclaim/internal/identity"
	"github.com/wolfeidau/orgclaim/internal/logger"
	"github.com/wolfeidau/orgclaim/internal/registry"
	"github.com/wolfeidau/orgclaim/internal/server"
	"github.com/wolfeidau/orgclaim/internal/store"
	memorystore "github.com/wolfeidau/orgclaim/internal/store/memory"
	postgresstore "github.com/wolfeidau/orgclaim/internal/store/postgres"
	"github.com/wolfeidau/orgclaim/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" env:"ORGCLAIM_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"ORGCLAIM_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"ORGCLAIM_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" env:"ORGCLAIM_CORS_ORIGINS"`

	// Session configuration
	SessionSecret string        `help:"secret for HMAC signing of session tokens (min 32 bytes)" env:"ORGCLAIM_SESSION_SECRET"`
	SessionTTL    time.Duration `help:"session TTL" env:"ORGCLAIM_SESSION_TTL"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"ORGCLAIM_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"ORGCLAIM_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`

	// Optional YAML config file; flags and environment win over it.
	Config string `help:"path to YAML config file" default:"" env:"ORGCLAIM_CONFIG"`
}

type PostgresStoreFlags struct {
	ConnString  string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`
	AutoMigrate bool   `help:"run database migrations on startup" default:"false" env:"ORGCLAIM_POSTGRES_AUTO_MIGRATE"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" env:"ORGCLAIM_POSTGRES_MAX_CONNS"`
	MinConns        int32 `help:"minimum number of connections in pool" env:"ORGCLAIM_POSTGRES_MIN_CONNS"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	if s.Config != "" {
		cfg, err := loadConfigFile(s.Config)
		if err != nil {
			return err
		}
		s.apply(cfg)
	}

	if s.Listen == "" {
		s.Listen = "localhost:8080"
	}
	if s.SessionTTL == 0 {
		s.SessionTTL = 168 * time.Hour
	}
	if len(s.SessionSecret) < 32 {
		return errors.New("session secret is required and must be at least 32 bytes (--session-secret or ORGCLAIM_SESSION_SECRET)")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "orgclaim", globals.Version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Telemetry shutdown failed")
			}
		}()
	}

	st, closeStore, err := s.buildStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := auth.NewSessions([]byte(s.SessionSecret), s.SessionTTL)
	if err != nil {
		return err
	}

	api := server.New(
		identity.NewResolver(st),
		registry.New(st),
		registry.NewRegistrations(st),
		sessions,
	)

	httpServer := configureHTTPServer(s.Listen, api.Handler(log.Logger, s.CORSOrigins))

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("version", globals.Version).
			Str("listen", s.Listen).
			Str("store", s.StoreType).
			Msg("Starting API server")

		if s.Cert != "" && s.Key != "" {
			errCh <- httpServer.ListenAndServeTLS(s.Cert, s.Key)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}

	return nil
}

// buildStore creates the configured store backend.
func (s *ServeCmd) buildStore(ctx context.Context) (store.Store, func(), error) {
	switch s.StoreType {
	case "postgres":
		st, err := postgresstore.New(ctx, &postgresstore.Config{
			Pool: postgresstore.PoolConfig{
				ConnString:      s.PostgresStore.ConnString,
				MaxConns:        s.PostgresStore.MaxConns,
				MinConns:        s.PostgresStore.MinConns,
				MaxConnLifetime: s.PostgresStore.MaxConnLifetime,
				MaxConnIdleTime: s.PostgresStore.MaxConnIdleTime,
			},
			AutoMigrate: s.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		return st, st.Close, nil
	default:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return memorystore.New(), func() {}, nil
	}
}
