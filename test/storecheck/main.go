// Package main implements a store audit tool for recorded inscriptions. It
// walks a sender's rows back out of the store, re-decodes every calldata
// payload through the same message codec the engine encodes with, and
// reports rows whose canonical re-encoding, hash, or sender normalization
// drifts from what the persistence layer guarantees.
//
// Usage:
//
//	go run ./test/storecheck \
//	  -backend sqlite -sqlite-path inscribememaybe.sqlite \
//	  -sender 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266 \
//	  -chain-id 11155111
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/store"
	"github.com/mattsse/inscribememaybe/internal/store/postgres"
	"github.com/mattsse/inscribememaybe/internal/store/sqlite"
)

const (
	exitClean      = 0
	exitViolations = 1
	exitFatal      = 2
)

func main() {
	var (
		backend    = flag.String("backend", "sqlite", "Store backend (sqlite / postgres)")
		sqlitePath = flag.String("sqlite-path", "inscribememaybe.sqlite", "SQLite database path")
		dbURL      = flag.String("db-url", "", "PostgreSQL connection string")
		sender     = flag.String("sender", "", "Sender address to audit")
		chainID    = flag.Int64("chain-id", int64(model.ChainSepolia), "Chain id to audit")
		limit      = flag.Int("limit", 0, "Max rows to audit, newest first (0 = all)")
		output     = flag.String("output", "text", "Output format (text / json)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Validate required flags.
	var missing []string
	if *sender == "" {
		missing = append(missing, "-sender")
	}
	if *backend == "postgres" && *dbURL == "" {
		missing = append(missing, "-db-url")
	}
	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "missing required flags: %s\n", strings.Join(missing, ", "))
		flag.Usage()
		os.Exit(exitFatal)
	}
	if !common.IsHexAddress(*sender) {
		fmt.Fprintf(os.Stderr, "-sender %q is not an address\n", *sender)
		os.Exit(exitFatal)
	}

	repo, closeStore, err := openRepo(*backend, *sqlitePath, *dbURL)
	if err != nil {
		logger.Error("failed to open store", "error", err, "backend", *backend)
		os.Exit(exitFatal)
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	records, err := repo.ListBySender(ctx, *sender, *chainID, *limit)
	if err != nil {
		logger.Error("failed to list records", "error", err)
		os.Exit(exitFatal)
	}
	logger.Info("auditing records",
		"rows", len(records),
		"sender", strings.ToLower(*sender),
		"chain_id", *chainID,
	)

	result := auditRecords(records)

	switch *output {
	case "json":
		if err := printJSONReport(os.Stdout, *backend, strings.ToLower(*sender), *chainID, result); err != nil {
			logger.Error("failed to write report", "error", err)
			os.Exit(exitFatal)
		}
	default:
		printTextReport(os.Stdout, *backend, strings.ToLower(*sender), *chainID, result)
	}

	if result.HasViolations() {
		os.Exit(exitViolations)
	}
	os.Exit(exitClean)
}

func openRepo(backend, sqlitePath, dbURL string) (store.InscriptionRepository, func(), error) {
	switch backend {
	case "sqlite":
		db, err := sqlite.Open(sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return sqlite.NewInscriptionRepo(db), func() { _ = db.Close() }, nil

	case "postgres":
		db, err := postgres.New(postgres.Config{
			URL:             dbURL,
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return postgres.NewInscriptionRepo(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", backend)
	}
}
