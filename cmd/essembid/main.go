package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	apiPkg "github.com/essembi/essembi-chat/internal/api"
	"github.com/essembi/essembi-chat/internal/bot"
	"github.com/essembi/essembi-chat/internal/card"
	"github.com/essembi/essembi-chat/internal/config"
	"github.com/essembi/essembi-chat/internal/connector"
	slackconn "github.com/essembi/essembi-chat/internal/connector/slack"
	"github.com/essembi/essembi-chat/internal/connector/teams"
	"github.com/essembi/essembi-chat/internal/essembi"
	"github.com/essembi/essembi-chat/internal/logbuf"
	"github.com/essembi/essembi-chat/internal/scheduler"
	"github.com/essembi/essembi-chat/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before reading the environment")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf, logLevel))
	slog.SetDefault(logger)

	// Load config (file, or environment after .env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		if err = config.LoadDotEnv(*envFile); err == nil {
			cfg, err = config.LoadFromEnv()
		}
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, logBuf); err != nil {
		logger.Error("essembid failed", "error", err)
		os.Exit(1)
	}
	logger.Info("essembid stopped")
}

func run(parent context.Context, cfg *config.Config, logger *slog.Logger, logBuf *logbuf.Buffer) error {
	logger.Info("essembid starting",
		"service", cfg.Integration.ServiceBaseURL,
		"sessions", cfg.Sessions.Backend,
	)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// 1. Session store
	store, err := openStore(ctx, cfg.Sessions)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. Backend gateway + bot
	backend := essembi.NewClient(cfg.Integration.Key,
		essembi.WithBaseURL(cfg.Integration.ServiceBaseURL),
		essembi.WithPath(cfg.Integration.Path),
		essembi.WithLogger(logger.With("component", "essembi")),
	)
	renderer := card.NewRenderer(card.Links{
		SupportURL: cfg.Links.SupportURL,
		DocsURL:    cfg.Links.DocsURL,
	})
	b := bot.New(backend, store, renderer, logger.With("component", "bot"))
	turns := connector.Turns(b.Handle, logger.With("component", "turns"))

	// 3. Teams connector
	httpClient := http.DefaultClient
	if cfg.Teams.AppID != "" {
		httpClient = teams.CredentialsClient(ctx, cfg.Teams.AppID, cfg.Teams.AppPassword, cfg.Teams.TenantID)
	} else {
		logger.Warn("teams app credentials not set, outbound replies are unauthenticated")
	}
	teamsClient := teams.NewClient(
		teams.WithHTTPClient(httpClient),
		teams.WithServiceHosts(cfg.Teams.ServiceHosts...),
		teams.WithLogger(logger.With("connector", "teams")),
	)
	teamsHandler, err := teams.NewHandler(teamsClient, turns, cfg.Teams.SigningKey, logger.With("connector", "teams"))
	if err != nil {
		return err
	}
	connectors := []string{"teams"}

	errCh := make(chan error, 3)
	var wg sync.WaitGroup
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			safeGo(logger, name, errCh, func() error {
				// Errors caused by shutdown are not failures.
				if err := fn(); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			})
		}()
	}

	// 4. Slack connector
	if cfg.Slack != nil {
		slackConn, err := slackconn.New(slackconn.Config{
			BotToken: cfg.Slack.BotToken,
			AppToken: cfg.Slack.AppToken,
			Channels: cfg.Slack.Channels,
		}, turns, logger.With("connector", "slack"))
		if err != nil {
			return err
		}
		connectors = append(connectors, slackConn.Name())
		spawn("slack", func() error { return slackConn.Start(ctx) })
	}

	// 5. Session sweep
	sched := scheduler.New(logger.With("component", "scheduler"))
	if ttl := cfg.Sessions.TTL(); ttl > 0 {
		sweep := scheduler.SessionSweep(store, ttl, logger.With("component", "sweep"))
		if err := sched.AddJob("session-sweep", cfg.Sessions.SweepSchedule, sweep); err != nil {
			return err
		}
	}
	spawn("scheduler", func() error { return sched.Start(ctx) })

	// 6. API server
	apiSrv := apiPkg.NewServer(apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"),
		apiPkg.WithMessages(teamsHandler),
		apiPkg.WithLogs(logBuf),
		apiPkg.WithStatus(connectors, cfg.Sessions.Backend),
	)
	spawn("api-server", func() error { return apiSrv.Start(ctx) })

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		cancel()
	}
	wg.Wait()
	return runErr
}

func openStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := session.NewSQLiteStore(cfg.Path, cfg.TTL())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendRedis:
		s, err := session.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TTL())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMemory, "":
		return session.NewMemoryStore(cfg.TTL()), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// safeGo runs fn with panic recovery and reports its error.
func safeGo(logger *slog.Logger, name string, errCh chan<- error, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
			errCh <- fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		errCh <- fmt.Errorf("%s: %w", name, err)
	}
}
