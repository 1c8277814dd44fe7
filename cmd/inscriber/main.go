package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mattsse/inscribememaybe/internal/alert"
	"github.com/mattsse/inscribememaybe/internal/chain/evmrpc"
	"github.com/mattsse/inscribememaybe/internal/config"
	"github.com/mattsse/inscribememaybe/internal/domain/event"
	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/engine"
	"github.com/mattsse/inscribememaybe/internal/retry"
	"github.com/mattsse/inscribememaybe/internal/store"
	"github.com/mattsse/inscribememaybe/internal/store/postgres"
	redispkg "github.com/mattsse/inscribememaybe/internal/store/redis"
	"github.com/mattsse/inscribememaybe/internal/store/sqlite"
	"github.com/mattsse/inscribememaybe/internal/tracing"
	"github.com/mattsse/inscribememaybe/internal/wallet"
)

// maxAlertDetail caps how many flagged iterations a degraded-run alert
// names individually.
const maxAlertDetail = 5

func main() {
	// Setup logger
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	message, count, err := cfg.BuildMessage()
	if err != nil {
		logger.Error("failed to build inscription message", "error", err)
		os.Exit(1)
	}

	logger.Info("starting inscriber",
		"rpc", cfg.RPC.URL,
		"store_backend", cfg.Store.Backend,
		"op", message.Op(),
		"inscriptions", count,
		"allow_mainnet", cfg.Wallet.AllowMainnet,
		"health_port", cfg.Server.HealthPort,
	)

	// Initialize OpenTelemetry tracing
	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), "inscriber", tracingEndpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	// Open the store
	repo, closeStore, err := openStore(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "error", err, "backend", cfg.Store.Backend)
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("store opened", "backend", cfg.Store.Backend)

	// Chain client and signing key
	client, err := evmrpc.New(evmrpc.Config{
		URL:                     cfg.RPC.URL,
		SubmitTimeout:           cfg.RPC.SubmitTimeout,
		QueryTimeout:            cfg.RPC.QueryTimeout,
		RateLimitRPS:            cfg.RPC.RateLimitRPS,
		RateLimitBurst:          cfg.RPC.RateLimitBurst,
		BreakerFailureThreshold: cfg.RPC.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.RPC.BreakerOpenTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to build rpc client", "error", err, "rpc", cfg.RPC.URL)
		os.Exit(1)
	}

	signer, err := wallet.NewSigner(cfg.Wallet.PrivateKey)
	if err != nil {
		logger.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}
	sender := strings.ToLower(signer.Address().Hex())

	// Per-sender run lock. Two concurrent runs for one sender would race
	// on the nonce sequence, so the lock fails fast when one is held.
	var lease *redispkg.Lease
	releaseLease := func() {
		if lease == nil {
			return
		}
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("run lock release error", "error", err)
		}
		lease = nil
	}
	if cfg.Redis.URL != "" {
		lock, err := redispkg.NewRunLock(cfg.Redis.URL, cfg.Redis.RunLockTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err, "redis_url", cfg.Redis.URL)
			os.Exit(1)
		}
		defer lock.Close()

		lease, err = lock.Acquire(context.Background(), sender)
		if err != nil {
			logger.Error("failed to acquire run lock", "error", err, "sender", sender)
			os.Exit(1)
		}
		defer releaseLease()
		logger.Info("run lock acquired", "sender", sender)
	}

	eng := engine.New(engine.Config{
		Count:        count,
		Message:      message,
		AllowMainnet: cfg.Wallet.AllowMainnet,
		Policy: retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BackoffInitial: cfg.Retry.BackoffInitial,
			BackoffMax:     cfg.Retry.BackoffMax,
		},
	}, client, signer, repo, logger)

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// Health check server
	if cfg.Server.HealthPort > 0 {
		g.Go(func() error {
			return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
		})
	}

	// Event stream
	var flagged []event.TxEvent
	g.Go(func() error {
		flagged = collectTxEvents(eng.Events(), logger)
		return nil
	})

	// The run. Its outcome is judged from the report after g.Wait, not
	// fed into the group, so an aborted run still gets its summary,
	// audit, and alerts.
	var report *event.RunReport
	var runErr error
	g.Go(func() error {
		report, runErr = eng.Run(gCtx)
		cancel()
		return nil
	})

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("inscriber exited with error", "error", err)
		releaseLease()
		os.Exit(1)
	}

	summarizeRun(report, logger)
	auditStore(context.Background(), repo, report, logger)
	dispatchAlerts(context.Background(), buildAlerter(cfg.Alert, logger), report, flagged, logger)
	releaseLease()

	if runErr != nil {
		logger.Error("inscription run failed", "error", runErr)
		os.Exit(1)
	}

	logger.Info("inscriber shut down gracefully")
}

// openStore builds the configured repository backend. The returned close
// function releases the underlying handle.
func openStore(cfg config.StoreConfig) (store.InscriptionRepository, func(), error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return sqlite.NewInscriptionRepo(db), func() { _ = db.Close() }, nil

	case "postgres":
		db, err := postgres.New(postgres.Config{
			URL:             cfg.DBURL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.MigrationsDir != "" {
			if err := db.RunMigrations(cfg.MigrationsDir); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		return postgres.NewInscriptionRepo(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// collectTxEvents drains the engine's event stream until it closes and
// returns the iterations a degraded-run alert should name: skips, and
// accepted submissions whose record write failed.
func collectTxEvents(events <-chan event.TxEvent, logger *slog.Logger) []event.TxEvent {
	var flagged []event.TxEvent
	for ev := range events {
		logger.Debug("inscription event",
			"index", ev.Index,
			"outcome", string(ev.Outcome),
			"nonce", ev.Nonce,
			"tx_hash", ev.TxHash,
			"attempts", ev.Attempts,
			"err_kind", ev.ErrKind,
			"recorded", ev.Recorded,
		)
		if ev.Outcome == event.OutcomeSkipped || !ev.Recorded {
			flagged = append(flagged, ev)
		}
	}
	return flagged
}

// summarizeRun writes the one-line outcome every run ends with.
func summarizeRun(report *event.RunReport, logger *slog.Logger) {
	if report == nil {
		return
	}

	args := []any{
		"run_id", report.RunID.String(),
		"network", report.ChainID.NetworkName(),
		"sender", report.Sender,
		"state", report.State.String(),
		"requested", report.Requested,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
	}
	if report.Unrecorded > 0 {
		args = append(args, "unrecorded", report.Unrecorded)
	}
	if report.Err != nil {
		args = append(args, "error", report.Err)
		logger.Error("run summary", args...)
		return
	}
	logger.Info("run summary", args...)
}

// auditStore reports the sender's recorded total after the run. The count
// spans every run the sender has made on that chain, so it only grows.
func auditStore(ctx context.Context, repo store.InscriptionRepository, report *event.RunReport, logger *slog.Logger) {
	if report == nil || report.ChainID == 0 {
		return // aborted before the chain was resolved
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	total, err := repo.Count(ctx, report.Sender, int64(report.ChainID))
	if err != nil {
		logger.Warn("store audit failed", "error", err)
		return
	}
	logger.Info("store audit",
		"sender", report.Sender,
		"network", report.ChainID.NetworkName(),
		"recorded_total", total,
		"recorded_this_run", report.Succeeded-report.Unrecorded,
	)
}

// buildAlerter wires the configured alert channels. With none configured
// alerts are dropped.
func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...)
}

// dispatchAlerts raises RUN_ABORTED when the run stopped early and
// RUN_DEGRADED when it completed with skipped or unrecorded inscriptions.
// Clean completions stay quiet.
func dispatchAlerts(ctx context.Context, notifier alert.Alerter, report *event.RunReport, flagged []event.TxEvent, logger *slog.Logger) {
	if report == nil {
		return
	}

	network := "unknown"
	if report.ChainID != 0 {
		network = report.ChainID.NetworkName()
	}

	var a alert.Alert
	switch {
	case report.State == model.RunStateAborted:
		a = alert.Alert{
			Type:    alert.AlertTypeRunAborted,
			Network: network,
			Sender:  report.Sender,
			Title:   "Inscription run aborted",
			Message: fmt.Sprintf("run %s stopped after %d of %d inscriptions", report.RunID, report.Succeeded, report.Requested),
			Fields: map[string]string{
				"succeeded": strconv.Itoa(report.Succeeded),
				"skipped":   strconv.Itoa(report.Skipped),
			},
		}
		if report.Err != nil {
			a.Fields["cause"] = report.Err.Error()
		}

	case report.Skipped > 0 || report.Unrecorded > 0:
		a = alert.Alert{
			Type:    alert.AlertTypeRunDegraded,
			Network: network,
			Sender:  report.Sender,
			Title:   "Inscription run degraded",
			Message: fmt.Sprintf("run %s completed with %d skipped and %d unrecorded of %d requested",
				report.RunID, report.Skipped, report.Unrecorded, report.Requested),
			Fields: flaggedFields(flagged),
		}

	default:
		return
	}

	if err := notifier.Send(ctx, a); err != nil {
		logger.Warn("alert dispatch failed", "type", string(a.Type), "error", err)
	}
}

// flaggedFields renders flagged iterations for an alert body, capped at
// maxAlertDetail entries.
func flaggedFields(flagged []event.TxEvent) map[string]string {
	fields := make(map[string]string, len(flagged))
	for i, ev := range flagged {
		if i == maxAlertDetail {
			fields["more"] = strconv.Itoa(len(flagged) - maxAlertDetail)
			break
		}
		key := fmt.Sprintf("index_%d", ev.Index)
		if ev.Outcome == event.OutcomeSkipped {
			fields[key] = "skipped: " + ev.ErrKind
		} else {
			fields[key] = "submitted but not recorded: " + ev.TxHash
		}
	}
	return fields
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
