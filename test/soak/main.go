// Package main implements a soak harness for the inscription engine. It
// drives complete engine runs against an in-process JSON-RPC endpoint with
// configurable rejection and transient fault rates, records into a
// throwaway SQLite store, and reports throughput, per-iteration latency,
// and retry counts. With -verify it cross-checks the store against what
// the endpoint actually accepted.
//
// Usage:
//
//	go run ./test/soak \
//	  -runs 3 \
//	  -inscriptions 50 \
//	  -reject-rate 0.05 \
//	  -transient-rate 0.10 \
//	  -verify
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mattsse/inscribememaybe/internal/chain/evmrpc"
	"github.com/mattsse/inscribememaybe/internal/domain/event"
	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/engine"
	"github.com/mattsse/inscribememaybe/internal/retry"
	"github.com/mattsse/inscribememaybe/internal/store"
	"github.com/mattsse/inscribememaybe/internal/store/sqlite"
	"github.com/mattsse/inscribememaybe/internal/wallet"
)

// Hardhat development account #0. Nothing signed with it ever leaves the
// process.
const defaultKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func main() {
	var (
		runs          = flag.Int("runs", 3, "Number of back-to-back engine runs")
		inscriptions  = flag.Int("inscriptions", 50, "Inscriptions per run")
		protocolFlag  = flag.String("protocol", "bsc-20", "Inscription protocol tag")
		tick          = flag.String("tick", "soak", "Inscription tick")
		amt           = flag.Uint64("amt", 1000, "Inscription mint amount")
		chainID       = flag.Int64("chain-id", int64(model.ChainSepolia), "Chain id the mock endpoint reports")
		keyHex        = flag.String("key", defaultKey, "Signing key (hex, no 0x)")
		rejectRate    = flag.Float64("reject-rate", 0, "Fraction of submissions rejected by the endpoint")
		transientRate = flag.Float64("transient-rate", 0, "Fraction of submissions answered with HTTP 503")
		retryAttempts = flag.Int("retry-attempts", 4, "Retry budget per stage")
		legacyFees    = flag.Bool("legacy-fees", false, "Endpoint without eth_maxPriorityFeePerGas")
		estimateErrs  = flag.Bool("estimate-errors", false, "Endpoint without eth_estimateGas (intrinsic gas fallback)")
		storePath     = flag.String("store", "", "SQLite store path (default: a temp file)")
		keepStore     = flag.Bool("keep-store", false, "Keep the store file after the soak")
		seed          = flag.Int64("seed", 0, "Fault injection seed (default: current time)")
		verify        = flag.Bool("verify", false, "Run post-soak store integrity verification")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	protocol := model.ParseProtocol(*protocolFlag)
	message := model.Mint{Protocol: protocol, Tick: *tick, Amt: *amt}
	if err := message.Validate(); err != nil {
		logger.Error("invalid message", "error", err)
		os.Exit(1)
	}
	wantCalldata, err := model.Calldata(message)
	if err != nil {
		logger.Error("encode message", "error", err)
		os.Exit(1)
	}

	logger.Info("soak configuration",
		"runs", *runs,
		"inscriptions_per_run", *inscriptions,
		"protocol", protocol,
		"tick", *tick,
		"chain_id", *chainID,
		"reject_rate", *rejectRate,
		"transient_rate", *transientRate,
		"retry_attempts", *retryAttempts,
		"legacy_fees", *legacyFees,
		"estimate_errors", *estimateErrs,
		"seed", *seed,
	)

	// Throwaway store unless a path was given.
	tempStore := *storePath == ""
	if tempStore {
		f, err := os.CreateTemp("", "soak-*.sqlite")
		if err != nil {
			logger.Error("create temp store", "error", err)
			os.Exit(1)
		}
		*storePath = f.Name()
		_ = f.Close()
	}

	db, err := sqlite.Open(*storePath)
	if err != nil {
		logger.Error("open store", "error", err, "path", *storePath)
		os.Exit(1)
	}
	repo := sqlite.NewInscriptionRepo(db)
	logger.Info("store opened", "path", *storePath)

	// In-process endpoint on an ephemeral port.
	mock := &mockEndpoint{
		chainID:       *chainID,
		legacyFees:    *legacyFees,
		estimateErrs:  *estimateErrs,
		rejectRate:    *rejectRate,
		transientRate: *transientRate,
		rng:           rand.New(rand.NewSource(*seed)),
		calls:         make(map[string]int64),
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
	server := &http.Server{Handler: mock}
	go func() { _ = server.Serve(ln) }()
	rpcURL := "http://" + ln.Addr().String()
	logger.Info("mock endpoint listening", "url", rpcURL)

	// A short breaker cooldown keeps an unlucky 503 streak from stalling
	// the whole soak.
	client, err := evmrpc.New(evmrpc.Config{URL: rpcURL, BreakerOpenTimeout: 2 * time.Second}, logger)
	if err != nil {
		logger.Error("build rpc client", "error", err)
		os.Exit(1)
	}
	signer, err := wallet.NewSigner(*keyHex)
	if err != nil {
		logger.Error("load signing key", "error", err)
		os.Exit(1)
	}

	// Context with signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Stats collection. Runs are sequential and each collector goroutine is
	// joined before the next run starts, so plain variables are safe.
	var (
		submitted   int64
		skipped     int64
		unrecorded  int64
		retries     int64
		abortedRuns int
		latenciesNs []int64
	)

	logger.Info("starting soak", "runs", *runs)
	soakStart := time.Now()

	for runIdx := 1; runIdx <= *runs; runIdx++ {
		if ctx.Err() != nil {
			break
		}

		eng := engine.New(engine.Config{
			Count:   *inscriptions,
			Message: message,
			// The endpoint is in-process; the mainnet guard has its own
			// unit coverage.
			AllowMainnet: true,
			Policy: retry.Policy{
				MaxAttempts:    *retryAttempts,
				BackoffInitial: 20 * time.Millisecond,
				BackoffMax:     200 * time.Millisecond,
			},
		}, client, signer, repo, logger.With("soak_run", runIdx))

		collectorDone := make(chan struct{})
		go func() {
			last := time.Now()
			for ev := range eng.Events() {
				now := time.Now()
				latenciesNs = append(latenciesNs, now.Sub(last).Nanoseconds())
				last = now

				switch ev.Outcome {
				case event.OutcomeSubmitted:
					submitted++
					if !ev.Recorded {
						unrecorded++
					}
				case event.OutcomeSkipped:
					skipped++
				}
				retries += int64(ev.Attempts - 1)
			}
			close(collectorDone)
		}()

		report, runErr := eng.Run(ctx)
		<-collectorDone

		if runErr != nil {
			abortedRuns++
			logger.Error("soak run aborted", "run", runIdx, "error", runErr)
			break
		}
		logger.Info("soak run completed",
			"run", runIdx,
			"succeeded", report.Succeeded,
			"skipped", report.Skipped,
		)
	}

	soakDuration := time.Since(soakStart)
	_ = server.Shutdown(context.Background())

	// Compute statistics.
	sort.Slice(latenciesNs, func(i, j int) bool { return latenciesNs[i] < latenciesNs[j] })
	p50 := percentile(latenciesNs, 50)
	p95 := percentile(latenciesNs, 95)
	p99 := percentile(latenciesNs, 99)

	iterations := submitted + skipped
	iterationsPerSec := float64(iterations) / soakDuration.Seconds()

	mock.mu.Lock()
	accepted := len(mock.accepted)
	injectedRejections := mock.rejections
	injectedTransients := mock.transients
	gapAccepts := mock.gapAccepts
	sendCalls := mock.calls["eth_sendRawTransaction"]
	mock.mu.Unlock()

	// Print report.
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("        SOAK TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Duration:        %s\n", soakDuration.Round(time.Millisecond))
	fmt.Printf("Runs:            %d (%d aborted)\n", *runs, abortedRuns)
	fmt.Printf("Inscriptions:    %d per run\n", *inscriptions)
	fmt.Println("----------------------------------------")
	fmt.Println("Throughput:")
	fmt.Printf("  Iterations:    %d\n", iterations)
	fmt.Printf("  Accepted:      %d\n", submitted)
	fmt.Printf("  Skipped:       %d\n", skipped)
	fmt.Printf("  Unrecorded:    %d\n", unrecorded)
	fmt.Printf("  Iter/sec:      %.2f\n", iterationsPerSec)
	fmt.Println("----------------------------------------")
	fmt.Println("Submissions:")
	fmt.Printf("  Broadcasts:    %d\n", sendCalls)
	fmt.Printf("  Retries:       %d\n", retries)
	fmt.Printf("  Rejected:      %d (injected)\n", injectedRejections)
	fmt.Printf("  Transient:     %d (injected)\n", injectedTransients)
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per iteration):")
	fmt.Printf("  p50:           %s\n", formatNanos(p50))
	fmt.Printf("  p95:           %s\n", formatNanos(p95))
	fmt.Printf("  p99:           %s\n", formatNanos(p99))
	fmt.Println("========================================")

	verifyFailed := false
	if *verify {
		sender := signer.Address().Hex()
		verifyFailed = verifyStoreIntegrity(repo, mock, sender, *chainID, hexutil.Encode(wantCalldata), int64(accepted), gapAccepts)
	}

	if err := db.Close(); err != nil {
		logger.Warn("store close error", "error", err)
	}
	if tempStore && !*keepStore {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(*storePath + suffix)
		}
	}

	if abortedRuns > 0 || verifyFailed {
		os.Exit(1)
	}
}

// checkResult holds the outcome of a single verification check.
type checkResult struct {
	Name   string
	Passed bool
	Detail string
}

// verifyStoreIntegrity cross-checks the store against the endpoint's
// accepted transactions. It returns true if any check failed.
func verifyStoreIntegrity(
	repo store.InscriptionRepository,
	mock *mockEndpoint,
	sender string,
	chainID int64,
	wantCalldata string,
	accepted int64,
	gapAccepts int64,
) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var results []checkResult

	// Check 1: every accepted submission has exactly one store row.
	results = append(results, verifyStoreCount(ctx, repo, sender, chainID, accepted))

	// Check 2: the endpoint saw a gapless nonce sequence.
	results = append(results, verifyNonceContiguity(mock, gapAccepts))

	// Checks 3..5 walk the recorded rows once.
	results = append(results, verifyRecordedRows(ctx, repo, mock, sender, chainID, wantCalldata)...)

	// Print verification report.
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("    STORE INTEGRITY VERIFICATION")
	fmt.Println("========================================")

	anyFailed := false
	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			anyFailed = true
		}
		fmt.Printf("  [%s] %s\n", status, r.Name)
		if r.Detail != "" {
			fmt.Printf("         %s\n", r.Detail)
		}
	}

	fmt.Println("----------------------------------------")
	if anyFailed {
		fmt.Println("  Result: SOME CHECKS FAILED")
	} else {
		fmt.Println("  Result: ALL CHECKS PASSED")
	}
	fmt.Println("========================================")

	return anyFailed
}

func verifyStoreCount(ctx context.Context, repo store.InscriptionRepository, sender string, chainID, accepted int64) checkResult {
	name := "store count matches accepted submissions"

	count, err := repo.Count(ctx, sender, chainID)
	if err != nil {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("query error: %v", err)}
	}
	if count != accepted {
		return checkResult{
			Name:   name,
			Passed: false,
			Detail: fmt.Sprintf("endpoint accepted %d, store holds %d", accepted, count),
		}
	}
	return checkResult{Name: name, Passed: true, Detail: fmt.Sprintf("%d rows", count)}
}

func verifyNonceContiguity(mock *mockEndpoint, gapAccepts int64) checkResult {
	name := "accepted nonces are contiguous"

	mock.mu.Lock()
	defer mock.mu.Unlock()

	if gapAccepts > 0 {
		return checkResult{Name: name, Passed: false, Detail: fmt.Sprintf("%d submissions skipped ahead of the pending nonce", gapAccepts)}
	}
	for i := 1; i < len(mock.accepted); i++ {
		prev, cur := mock.accepted[i-1].nonce, mock.accepted[i].nonce
		if cur != prev+1 {
			return checkResult{
				Name:   name,
				Passed: false,
				Detail: fmt.Sprintf("nonce %d followed %d at accept #%d", cur, prev, i),
			}
		}
	}
	return checkResult{Name: name, Passed: true, Detail: fmt.Sprintf("%d accepts in sequence", len(mock.accepted))}
}

// verifyRecordedRows checks stored rows for duplicate hashes, hashes the
// endpoint never accepted, and calldata drifting from the configured
// message.
func verifyRecordedRows(
	ctx context.Context,
	repo store.InscriptionRepository,
	mock *mockEndpoint,
	sender string,
	chainID int64,
	wantCalldata string,
) []checkResult {
	dupName := "no duplicate tx hashes recorded"
	knownName := "recorded hashes were accepted by the endpoint"
	calldataName := "recorded calldata matches the configured message"

	records, err := repo.ListBySender(ctx, sender, chainID, 0)
	if err != nil {
		detail := fmt.Sprintf("query error: %v", err)
		return []checkResult{
			{Name: dupName, Passed: false, Detail: detail},
			{Name: knownName, Passed: false, Detail: detail},
			{Name: calldataName, Passed: false, Detail: detail},
		}
	}

	mock.mu.Lock()
	acceptedHashes := make(map[string]bool, len(mock.accepted))
	for _, tx := range mock.accepted {
		acceptedHashes[tx.hash] = true
	}
	mock.mu.Unlock()

	seen := make(map[string]bool, len(records))
	var dups, unknown, drifted int
	for _, rec := range records {
		if seen[rec.TxHash] {
			dups++
		}
		seen[rec.TxHash] = true
		if !acceptedHashes[rec.TxHash] {
			unknown++
		}
		if rec.Calldata != wantCalldata {
			drifted++
		}
	}

	results := make([]checkResult, 0, 3)
	if dups > 0 {
		results = append(results, checkResult{Name: dupName, Passed: false, Detail: fmt.Sprintf("%d duplicate hash(es)", dups)})
	} else {
		results = append(results, checkResult{Name: dupName, Passed: true, Detail: fmt.Sprintf("%d distinct hashes", len(seen))})
	}
	if unknown > 0 {
		results = append(results, checkResult{Name: knownName, Passed: false, Detail: fmt.Sprintf("%d recorded hash(es) the endpoint never returned", unknown)})
	} else {
		results = append(results, checkResult{Name: knownName, Passed: true, Detail: "all recorded hashes were broadcast"})
	}
	if drifted > 0 {
		results = append(results, checkResult{Name: calldataName, Passed: false, Detail: fmt.Sprintf("%d row(s) with unexpected calldata", drifted)})
	} else {
		results = append(results, checkResult{Name: calldataName, Passed: true, Detail: fmt.Sprintf("all rows carry %d calldata bytes", (len(wantCalldata)-2)/2)})
	}
	return results
}

// percentile returns the value at the given percentile from a sorted slice.
func percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// formatNanos formats nanoseconds as a human-readable duration string.
func formatNanos(ns int64) string {
	d := time.Duration(ns)
	if d < time.Millisecond {
		return fmt.Sprintf("%.1fus", float64(d.Microseconds()))
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// acceptedTx is one transaction the mock endpoint accepted, in arrival
// order.
type acceptedTx struct {
	nonce uint64
	hash  string
}

// mockEndpoint speaks just enough of the eth namespace for the engine:
// chain id, pending nonce, fee quotes, gas estimation, and raw submission.
// Faults are injected before a transaction is processed, so a failed
// attempt never consumes a nonce.
type mockEndpoint struct {
	chainID       int64
	legacyFees    bool
	estimateErrs  bool
	rejectRate    float64
	transientRate float64

	mu           sync.Mutex
	rng          *rand.Rand
	pendingNonce uint64
	accepted     []acceptedTx
	rejections   int64
	transients   int64
	gapAccepts   int64
	calls        map[string]int64
}

func (m *mockEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.calls[req.Method]++
	m.mu.Unlock()

	switch req.Method {
	case "eth_chainId":
		writeResult(w, req.ID, hexutil.EncodeUint64(uint64(m.chainID)))
	case "eth_getTransactionCount":
		m.mu.Lock()
		nonce := m.pendingNonce
		m.mu.Unlock()
		writeResult(w, req.ID, hexutil.EncodeUint64(nonce))
	case "eth_gasPrice":
		writeResult(w, req.ID, hexutil.EncodeUint64(2_000_000_000))
	case "eth_maxPriorityFeePerGas":
		if m.legacyFees {
			writeError(w, req.ID, -32601, "the method eth_maxPriorityFeePerGas does not exist/is not available")
			return
		}
		writeResult(w, req.ID, hexutil.EncodeUint64(1_000_000_000))
	case "eth_estimateGas":
		if m.estimateErrs {
			writeError(w, req.ID, -32601, "the method eth_estimateGas does not exist/is not available")
			return
		}
		writeResult(w, req.ID, hexutil.EncodeUint64(30000))
	case "eth_sendRawTransaction":
		m.handleSend(w, req)
	default:
		writeError(w, req.ID, -32601, fmt.Sprintf("the method %s does not exist/is not available", req.Method))
	}
}

func (m *mockEndpoint) handleSend(w http.ResponseWriter, req rpcRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rng.Float64() < m.transientRate {
		m.transients++
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream overloaded"))
		return
	}
	if m.rng.Float64() < m.rejectRate {
		m.rejections++
		writeError(w, req.ID, -32000, "insufficient funds for gas * price + value")
		return
	}

	if len(req.Params) != 1 {
		writeError(w, req.ID, -32602, "expected one raw transaction param")
		return
	}
	var rawHex string
	if err := json.Unmarshal(req.Params[0], &rawHex); err != nil {
		writeError(w, req.ID, -32602, "raw transaction param is not a string")
		return
	}
	raw, err := hexutil.Decode(rawHex)
	if err != nil {
		writeError(w, req.ID, -32602, "malformed raw transaction hex")
		return
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		writeError(w, req.ID, -32602, "could not decode transaction")
		return
	}

	switch {
	case tx.Nonce() < m.pendingNonce:
		writeError(w, req.ID, -32000, "nonce too low")
		return
	case tx.Nonce() > m.pendingNonce:
		// The engine must never leave a gap; remember it for the verdict.
		m.gapAccepts++
	}
	m.pendingNonce = tx.Nonce() + 1
	m.accepted = append(m.accepted, acceptedTx{nonce: tx.Nonce(), hash: tx.Hash().Hex()})
	writeResult(w, req.ID, tx.Hash().Hex())
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}
