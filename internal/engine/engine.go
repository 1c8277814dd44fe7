package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/mattsse/inscribememaybe/internal/chain"
	"github.com/mattsse/inscribememaybe/internal/domain/event"
	"github.com/mattsse/inscribememaybe/internal/domain/model"
	"github.com/mattsse/inscribememaybe/internal/metrics"
	"github.com/mattsse/inscribememaybe/internal/retry"
	"github.com/mattsse/inscribememaybe/internal/store"
	"github.com/mattsse/inscribememaybe/internal/tracing"
	"github.com/mattsse/inscribememaybe/internal/wallet"
)

// DefaultRecordTimeout bounds each store write after an accepted
// submission. Records are written even when the run context is cancelled,
// so the write carries its own deadline.
const DefaultRecordTimeout = 10 * time.Second

// Config describes one inscription run.
type Config struct {
	// Count is the number of inscription transactions to submit.
	Count int
	// Message is the inscription carried by every transaction in the run.
	Message model.Inscription
	// AllowMainnet permits runs against production networks. Without it a
	// mainnet chain id aborts the run during preflight.
	AllowMainnet bool
	// Policy bounds retries for chain queries and submissions.
	Policy retry.Policy
	// RecordTimeout bounds each store write. Zero means
	// DefaultRecordTimeout.
	RecordTimeout time.Duration
}

// Engine drives a single inscription run: preflight the chain parameters
// once, then sign and submit Count self-send transactions in nonce order,
// recording each accepted one. An Engine is single-use; construct a new
// one per run.
type Engine struct {
	cfg    Config
	client chain.Client
	signer *wallet.Signer
	repo   store.InscriptionRepository
	logger *slog.Logger

	runID  uuid.UUID
	events chan event.TxEvent

	mu      sync.Mutex
	started bool
	state   model.RunState
}

func New(cfg Config, client chain.Client, signer *wallet.Signer, repo store.InscriptionRepository, logger *slog.Logger) *Engine {
	runID := uuid.New()
	buf := cfg.Count + 1
	if buf < 1 {
		buf = 1
	}
	return &Engine{
		cfg:    cfg,
		client: client,
		signer: signer,
		repo:   repo,
		logger: logger.With("component", "engine", "run_id", runID.String()),
		runID:  runID,
		events: make(chan event.TxEvent, buf),
		state:  model.RunStateInit,
	}
}

// RunID identifies this run in logs, traces, and the report.
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

// Events returns the per-transaction event stream. The channel is buffered
// for the whole run and closed when Run returns.
func (e *Engine) Events() <-chan event.TxEvent {
	return e.events
}

// State returns the current lifecycle state.
func (e *Engine) State() model.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s model.RunState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// preflightResult carries the chain parameters resolved once before the
// submission loop. Fees and the gas limit are reused for every transaction
// in the run.
type preflightResult struct {
	chainID  model.ChainID
	fees     *chain.FeeQuote
	gasLimit uint64
	calldata []byte
	seq      *Sequencer
}

// Run executes the inscription loop and returns the run report. The report
// is returned for aborted runs too, alongside the abort cause. Cancelling
// ctx stops the run between iterations; an in-flight broadcast attempt is
// never severed.
func (e *Engine) Run(ctx context.Context) (*event.RunReport, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, errors.New("engine run already started")
	}
	e.started = true
	e.mu.Unlock()

	defer close(e.events)

	ctx, span := tracing.Tracer("engine").Start(ctx, "engine.run",
		otelTrace.WithAttributes(
			attribute.String("run_id", e.runID.String()),
			attribute.Int("requested", e.cfg.Count),
		))

	report := &event.RunReport{
		RunID:     e.runID,
		Sender:    strings.ToLower(e.signer.Address().Hex()),
		Requested: e.cfg.Count,
		State:     model.RunStateInit,
	}

	pf, err := e.preflight(ctx)
	if err != nil {
		return e.abort(span, report, err)
	}
	report.ChainID = pf.chainID

	e.setState(model.RunStateLooping)
	for i := 0; i < e.cfg.Count; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.abort(span, report,
				fmt.Errorf("run cancelled after %d of %d inscriptions: %w", i, e.cfg.Count, ctxErr))
		}

		ev, err := e.submitOne(ctx, pf, i)
		if err != nil {
			return e.abort(span, report, err)
		}
		switch ev.Outcome {
		case event.OutcomeSubmitted:
			report.Succeeded++
			if !ev.Recorded {
				report.Unrecorded++
			}
		case event.OutcomeSkipped:
			report.Skipped++
		}
	}

	e.setState(model.RunStateCompleted)
	report.State = model.RunStateCompleted
	metrics.RunsTotal.WithLabelValues(pf.chainID.NetworkName(), model.RunStateCompleted.String()).Inc()
	e.logger.Info("run completed",
		"network", pf.chainID.NetworkName(),
		"requested", report.Requested,
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"unrecorded", report.Unrecorded,
	)
	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("skipped", report.Skipped),
	)
	span.End()
	return report, nil
}

// preflight validates the run configuration and resolves everything the
// loop needs from the endpoint: chain id, fee quote, gas limit, and the
// nonce seed. Every query runs under the retry policy. A failed gas
// estimate falls back to the intrinsic cost instead of failing the run.
func (e *Engine) preflight(ctx context.Context) (*preflightResult, error) {
	if e.cfg.Count < 1 {
		return nil, fmt.Errorf("at least one inscription is required (count=%d)", e.cfg.Count)
	}
	if e.cfg.Message == nil {
		return nil, errors.New("no inscription message configured")
	}
	if err := e.cfg.Message.Validate(); err != nil {
		return nil, fmt.Errorf("validate inscription: %w", err)
	}

	e.setState(model.RunStateEncoding)
	calldata, err := model.Calldata(e.cfg.Message)
	if err != nil {
		return nil, fmt.Errorf("encode inscription: %w", err)
	}

	var chainID model.ChainID
	err = e.cfg.Policy.Do(ctx, e.logger, "chain_id", func(ctx context.Context) error {
		id, err := e.client.ChainID(ctx)
		if err != nil {
			return err
		}
		if !id.IsInt64() || id.Int64() <= 0 {
			return fmt.Errorf("endpoint returned unusable chain id %s", id)
		}
		chainID = model.ChainID(id.Int64())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve chain id: %w", err)
	}

	if chainID.IsMainnet() && !e.cfg.AllowMainnet {
		return nil, fmt.Errorf("refusing to inscribe on %s (chain id %d) without mainnet opt-in",
			chainID.NetworkName(), int64(chainID))
	}

	var fees *chain.FeeQuote
	err = e.cfg.Policy.Do(ctx, e.logger, "fee_quote", func(ctx context.Context) error {
		quote, err := e.client.SuggestFees(ctx)
		if err != nil {
			return err
		}
		fees = quote
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("quote fees: %w", err)
	}

	sender := e.signer.Address()
	var gasLimit uint64
	err = e.cfg.Policy.Do(ctx, e.logger, "estimate_gas", func(ctx context.Context) error {
		gas, err := e.client.EstimateGas(ctx, chain.CallMsg{From: sender, To: &sender, Data: calldata})
		if err != nil {
			return err
		}
		gasLimit = gas
		return nil
	})
	if err != nil {
		gasLimit = wallet.IntrinsicGas(calldata)
		e.logger.Warn("gas estimation failed; using intrinsic cost",
			"gas_limit", gasLimit,
			"error", err,
		)
	}

	seq := NewSequencer(e.client, sender, e.cfg.Policy, e.logger)
	if err := seq.Seed(ctx); err != nil {
		return nil, err
	}

	e.logger.Info("preflight complete",
		"network", chainID.NetworkName(),
		"chain_id", int64(chainID),
		"calldata_bytes", len(calldata),
		"gas_limit", gasLimit,
		"dynamic_fees", fees.Dynamic,
	)
	return &preflightResult{
		chainID:  chainID,
		fees:     fees,
		gasLimit: gasLimit,
		calldata: calldata,
		seq:      seq,
	}, nil
}

// submitOne runs one loop iteration: issue a nonce, sign, broadcast under
// the retry policy, and record the acceptance. A nil error means the
// iteration reached a terminal outcome (submitted or skipped) and the run
// continues; a non-nil error aborts the run.
func (e *Engine) submitOne(ctx context.Context, pf *preflightResult, index int) (event.TxEvent, error) {
	ctx, span := tracing.Tracer("engine").Start(ctx, "engine.submit",
		otelTrace.WithAttributes(
			attribute.String("run_id", e.runID.String()),
			attribute.Int("index", index),
		))

	started := time.Now()
	network := pf.chainID.NetworkName()
	ev := event.TxEvent{Index: index, ChainID: pf.chainID}

	nonce, err := pf.seq.Next(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return ev, err
	}
	ev.Nonce = nonce

	signed, err := e.signer.SignedTx(wallet.TxParams{
		ChainID: big.NewInt(int64(pf.chainID)),
		Nonce:   nonce,
		Gas:     pf.gasLimit,
		Fees:    pf.fees,
		Data:    pf.calldata,
	})
	if err != nil {
		err = fmt.Errorf("sign inscription %d: %w", index, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return ev, err
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		err = fmt.Errorf("encode signed transaction nonce=%d: %w", nonce, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return ev, err
	}

	// The same encoded bytes are re-broadcast on every retry attempt.
	// Attempts run detached from run cancellation so an in-flight
	// broadcast is never severed; the policy still sees the run context
	// between attempts.
	attempts := 0
	var txHash string
	submitErr := e.cfg.Policy.Do(ctx, e.logger, "submit", func(ctx context.Context) error {
		attempts++
		hash, err := e.client.SendRawTransaction(context.WithoutCancel(ctx), raw)
		if err != nil {
			return err
		}
		txHash = hash.Hex()
		return nil
	})
	ev.Attempts = attempts
	if attempts > 1 {
		metrics.SubmissionRetries.WithLabelValues(network).Add(float64(attempts - 1))
	}

	if submitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(submitErr, ctxErr) {
			err := fmt.Errorf("run cancelled during submission of inscription %d: %w", index, submitErr)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ev, err
		}

		var rejected *chain.RejectedError
		if errors.As(submitErr, &rejected) {
			ev.Outcome = event.OutcomeSkipped
			ev.ErrKind = "rejected"
			released := false
			if !rejected.NonceConsumed {
				released = pf.seq.Release(nonce)
				if released {
					metrics.NonceReleases.WithLabelValues(network).Inc()
				}
			}
			e.logger.Warn("submission rejected; skipping",
				"index", index,
				"nonce", nonce,
				"code", rejected.Code,
				"nonce_released", released,
				"error", rejected.Message,
			)
			metrics.SubmissionsTotal.WithLabelValues(network, string(event.OutcomeSkipped)).Inc()
			e.emit(ev)
			span.SetAttributes(attribute.String("outcome", string(event.OutcomeSkipped)))
			span.End()
			return ev, nil
		}

		if retry.IsExhausted(submitErr) {
			// An attempt may have reached the network, so the nonce stays
			// consumed and the next transaction uses the following one.
			ev.Outcome = event.OutcomeSkipped
			ev.ErrKind = "transient_exhausted"
			e.logger.Warn("submission attempts exhausted; skipping",
				"index", index,
				"nonce", nonce,
				"attempts", attempts,
				"error", submitErr,
			)
			metrics.SubmissionsTotal.WithLabelValues(network, string(event.OutcomeSkipped)).Inc()
			e.emit(ev)
			span.SetAttributes(attribute.String("outcome", string(event.OutcomeSkipped)))
			span.End()
			return ev, nil
		}

		err := fmt.Errorf("submit inscription %d (nonce=%d): %w", index, nonce, submitErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return ev, err
	}

	ev.Outcome = event.OutcomeSubmitted
	ev.TxHash = txHash
	ev.Recorded = e.record(ctx, pf, txHash, network)

	metrics.SubmissionsTotal.WithLabelValues(network, string(event.OutcomeSubmitted)).Inc()
	metrics.SubmissionLatency.WithLabelValues(network).Observe(time.Since(started).Seconds())

	args := []any{
		"index", index,
		"nonce", nonce,
		"tx_hash", txHash,
		"attempts", attempts,
		"recorded", ev.Recorded,
	}
	if url := pf.chainID.ExplorerTxURL(txHash); url != "" {
		args = append(args, "explorer_url", url)
	}
	e.logger.Info("inscription submitted", args...)

	e.emit(ev)
	span.SetAttributes(attribute.String("outcome", string(event.OutcomeSubmitted)))
	span.End()
	return ev, nil
}

// record appends the accepted submission to the store. The write is
// detached from run cancellation and carries its own deadline; a failure
// degrades the run (the report counts it) but never stops it.
func (e *Engine) record(ctx context.Context, pf *preflightResult, txHash, network string) bool {
	timeout := e.cfg.RecordTimeout
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	rec := &model.InscriptionRecord{
		Sender:   strings.ToLower(e.signer.Address().Hex()),
		ChainID:  int64(pf.chainID),
		TxHash:   txHash,
		Calldata: hexutil.Encode(pf.calldata),
	}
	if _, err := e.repo.Insert(recordCtx, rec); err != nil {
		metrics.RecordWriteFailures.WithLabelValues(network).Inc()
		e.logger.Error("store write failed for accepted submission",
			"tx_hash", txHash,
			"error", err,
		)
		return false
	}
	metrics.RecordsWritten.WithLabelValues(network).Inc()
	return true
}

func (e *Engine) emit(ev event.TxEvent) {
	select {
	case e.events <- ev:
	default:
		e.logger.Warn("event channel full; dropping event",
			"index", ev.Index,
			"outcome", ev.Outcome,
		)
	}
}

func (e *Engine) abort(span otelTrace.Span, report *event.RunReport, err error) (*event.RunReport, error) {
	e.setState(model.RunStateAborted)
	report.State = model.RunStateAborted
	report.Err = err

	network := "unknown"
	if report.ChainID != 0 {
		network = report.ChainID.NetworkName()
	}
	metrics.RunsTotal.WithLabelValues(network, model.RunStateAborted.String()).Inc()
	e.logger.Error("run aborted",
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"error", err,
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	return report, err
}
