package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tesseramedia/clipguard/internal/backend"
	"github.com/tesseramedia/clipguard/internal/config"
	"github.com/tesseramedia/clipguard/internal/orchestrator"
	"github.com/tesseramedia/clipguard/internal/policy"
	"github.com/tesseramedia/clipguard/internal/poll"
	"github.com/tesseramedia/clipguard/internal/server"
	"github.com/tesseramedia/clipguard/internal/session"
)

const (
	envAPIBase       = "CLIPGUARD_API_BASE"
	envListenAddr    = "CLIPGUARD_LISTEN_ADDR"
	envSessionDBPath = "CLIPGUARD_SESSION_DB"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "clipguard-api: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("clipguard-api", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "path to the YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath, getenv)
	if err != nil {
		return err
	}

	logger := log.New()
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger.SetOutput(stderr)
	entry := logger.WithField("service", "clipguard-api")

	handler, cleanup, err := buildHandler(cfg, entry)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		entry.WithField("listen_addr", cfg.ListenAddr).Info("serving")
		fmt.Fprintf(stdout, "listening on %s\n", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	entry.Info("stopped")
	return nil
}

func loadConfig(path string, getenv func(string) string) (config.Config, error) {
	cfg := config.Defaults()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if base := strings.TrimSpace(getenv(envAPIBase)); base != "" {
		cfg.APIBase = base
	}
	if addr := strings.TrimSpace(getenv(envListenAddr)); addr != "" {
		cfg.ListenAddr = addr
	}
	if db := strings.TrimSpace(getenv(envSessionDBPath)); db != "" {
		cfg.SessionDBPath = db
	}
	if err := cfg.Verify(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// buildHandler wires the full stack from configuration. The returned cleanup
// closes the session store.
func buildHandler(cfg config.Config, entry *log.Entry) (http.Handler, func(), error) {
	client, err := backend.NewClient(backend.Config{
		APIBase: cfg.APIBase,
		Logger:  entry.WithField("component", "backend-client"),
	})
	if err != nil {
		return nil, nil, err
	}

	resolver := policy.NewResolver()
	if cfg.PolicyRulesPath != "" {
		rules, err := policy.LoadRuleSet(cfg.PolicyRulesPath)
		if err != nil {
			return nil, nil, err
		}
		resolver = policy.NewResolverWithRules(rules)
	}

	var store session.Store
	cleanup := func() {}
	if cfg.SessionDBPath != "" {
		sqlStore, err := session.OpenSQLiteStore(cfg.SessionDBPath)
		if err != nil {
			return nil, nil, err
		}
		store = sqlStore
		cleanup = func() {
			if err := sqlStore.Close(); err != nil {
				entry.WithError(err).Warn("session store close failed")
			}
		}
	} else {
		store = session.NewMemoryStore()
	}
	reconciler := session.NewReconciler(store, session.NewMemoryMarker(), client, entry.WithField("component", "session-reconciler"))

	orch, err := orchestrator.New(orchestrator.Config{
		Status:   client,
		Analyzer: client,
		Executor: backendExecutor{client: client},
		Resolver: resolver,
		Clock:    poll.SystemClock{},
		Readiness: poll.Policy{
			MaxAttempts: cfg.Readiness.MaxAttempts,
			Interval:    cfg.Readiness.Interval,
		},
		Analysis: orchestrator.RetryPolicy{
			MaxAttempts: cfg.Analysis.MaxAttempts,
			Backoff:     cfg.Analysis.Interval,
		},
		Persist: reconciler.Persist,
		Logger:  entry.WithField("component", "orchestrator"),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	srv := server.New(client, orch, resolver, reconciler, entry.WithField("component", "server"))
	return srv.Router(), cleanup, nil
}

// backendExecutor renders remediations through the processing backend.
type backendExecutor struct {
	client *backend.Client
}

func (e backendExecutor) Apply(ctx context.Context, req orchestrator.ApplyRequest) (orchestrator.ApplyResult, error) {
	findingIDs := make([]string, 0, len(req.Findings))
	for _, finding := range req.Findings {
		findingIDs = append(findingIDs, finding.ID)
	}
	editedURL, err := e.client.ApplyAction(ctx, req.JobID, string(req.Action), findingIDs)
	if err != nil {
		return orchestrator.ApplyResult{}, err
	}
	return orchestrator.ApplyResult{MediaURL: editedURL}, nil
}
