// Package server parses server command flags and starts the game API.
package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/undertone/internal/game/adapter"
	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/session"
	"github.com/louisbranch/undertone/internal/game/storage"
	"github.com/louisbranch/undertone/internal/game/storage/memory"
	"github.com/louisbranch/undertone/internal/game/storage/sqlite"
	entrypoint "github.com/louisbranch/undertone/internal/platform/cmd"
	"github.com/louisbranch/undertone/internal/telemetry"
	"github.com/louisbranch/undertone/internal/transport/httpapi"
)

const shutdownTimeout = 10 * time.Second

// Config holds server command configuration.
type Config struct {
	Port        int    `env:"UNDERTONE_PORT" envDefault:"8080"`
	Addr        string `env:"UNDERTONE_ADDR"`
	DBPath      string `env:"UNDERTONE_DB_PATH"`
	GuessBudget int    `env:"UNDERTONE_GUESS_BUDGET"`

	OpenAIAPIKey    string `env:"UNDERTONE_OPENAI_API_KEY"`
	OpenAIModel     string `env:"UNDERTONE_OPENAI_MODEL"`
	AnthropicAPIKey string `env:"UNDERTONE_ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"UNDERTONE_ANTHROPIC_MODEL"`
	GoogleAPIKey    string `env:"UNDERTONE_GOOGLE_API_KEY"`
	GoogleModel     string `env:"UNDERTONE_GOOGLE_MODEL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (empty runs in memory)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the game API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceServer, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	store, events, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	caller := adapter.New(telemetry.NewEmitter(events))
	registerProviders(caller, cfg)

	svc := session.New(store, caller, session.Options{GuessBudget: cfg.GuessBudget})
	api := httpapi.New(svc)

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening addr=%s db=%q", listener.Addr(), cfg.DBPath)
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// openStore builds the durable store. An empty path runs fully in memory,
// which is meant for local experiments only.
func openStore(cfg Config) (storage.SessionStore, telemetry.EventStore, func() error, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		store := memory.New()
		return store, store, func() error { return nil }, nil
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	return store, store, store.Close, nil
}

// registerProviders installs an invoker factory for every provider with a
// configured key. Sessions naming an unconfigured provider fail at start.
func registerProviders(caller *adapter.Adapter, cfg Config) {
	if cfg.OpenAIAPIKey != "" {
		caller.RegisterProvider("openai", func(domain.Participant) (adapter.Invoker, error) {
			return adapter.NewOpenAIInvoker(adapter.OpenAIConfig{
				APIKey: cfg.OpenAIAPIKey,
				Model:  cfg.OpenAIModel,
			}), nil
		})
	}
	if cfg.AnthropicAPIKey != "" {
		caller.RegisterProvider("anthropic", func(domain.Participant) (adapter.Invoker, error) {
			return adapter.NewAnthropicInvoker(adapter.AnthropicConfig{
				APIKey: cfg.AnthropicAPIKey,
				Model:  cfg.AnthropicModel,
			}), nil
		})
	}
	if cfg.GoogleAPIKey != "" {
		caller.RegisterProvider("google", func(domain.Participant) (adapter.Invoker, error) {
			return adapter.NewGoogleInvoker(adapter.GoogleConfig{
				APIKey: cfg.GoogleAPIKey,
				Model:  cfg.GoogleModel,
			}), nil
		})
	}
}
