package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsse/inscribememaybe/internal/chain"
	"github.com/mattsse/inscribememaybe/internal/chain/evmrpc"
	"github.com/mattsse/inscribememaybe/internal/circuitbreaker"
)

type fakeNetError struct {
	msg     string
	timeout bool
}

func (e *fakeNetError) Error() string   { return e.msg }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantClass  Class
		wantReason string
	}{
		{
			name:       "nil error",
			err:        nil,
			wantClass:  ClassTerminal,
			wantReason: "nil_error",
		},
		{
			name:       "explicit transient marker",
			err:        Transient(errors.New("flaky")),
			wantClass:  ClassTransient,
			wantReason: "explicit_transient",
		},
		{
			name:       "explicit terminal marker",
			err:        Terminal(errors.New("bad input")),
			wantClass:  ClassTerminal,
			wantReason: "explicit_terminal",
		},
		{
			name:       "marker survives wrapping",
			err:        fmt.Errorf("stage failed: %w", Transient(errors.New("flaky"))),
			wantClass:  ClassTransient,
			wantReason: "explicit_transient",
		},
		{
			name:       "context canceled",
			err:        fmt.Errorf("submit: %w", context.Canceled),
			wantClass:  ClassTerminal,
			wantReason: "context_canceled",
		},
		{
			name:       "context deadline",
			err:        context.DeadlineExceeded,
			wantClass:  ClassTransient,
			wantReason: "context_deadline_exceeded",
		},
		{
			name:       "node rejection",
			err:        fmt.Errorf("eth_sendRawTransaction: %w", &chain.RejectedError{Code: -32000, Message: "insufficient funds"}),
			wantClass:  ClassTerminal,
			wantReason: "tx_rejected",
		},
		{
			name: "rejection beats message heuristics",
			// The message alone would read transient; the type wins.
			err:        &chain.RejectedError{Code: -32000, Message: "rejected after timeout"},
			wantClass:  ClassTerminal,
			wantReason: "tx_rejected",
		},
		{
			name:       "endpoint fatal",
			err:        &chain.FatalError{Code: 401, Message: "endpoint rejected credentials"},
			wantClass:  ClassTerminal,
			wantReason: "endpoint_fatal",
		},
		{
			name:       "open circuit",
			err:        fmt.Errorf("eth_chainId: %w", circuitbreaker.ErrCircuitOpen),
			wantClass:  ClassTransient,
			wantReason: "circuit_open",
		},
		{
			name:       "net timeout",
			err:        &fakeNetError{msg: "dial tcp: i/o timeout", timeout: true},
			wantClass:  ClassTransient,
			wantReason: "net_timeout",
		},
		{
			name:       "non-timeout net error falls through to message tokens",
			err:        &fakeNetError{msg: "dial tcp: connection refused"},
			wantClass:  ClassTransient,
			wantReason: "message_transient",
		},
		{
			name:       "jsonrpc internal error",
			err:        &evmrpc.RPCError{Code: -32603, Message: "internal error"},
			wantClass:  ClassTransient,
			wantReason: "jsonrpc_server_transient",
		},
		{
			name:       "jsonrpc limit exceeded",
			err:        &evmrpc.RPCError{Code: -32005, Message: "limit exceeded"},
			wantClass:  ClassTransient,
			wantReason: "jsonrpc_server_transient",
		},
		{
			name:       "jsonrpc server range",
			err:        &evmrpc.RPCError{Code: -32010, Message: "txpool is full"},
			wantClass:  ClassTransient,
			wantReason: "jsonrpc_server_range",
		},
		{
			name:       "jsonrpc method not found",
			err:        &evmrpc.RPCError{Code: -32601, Message: "method not found"},
			wantClass:  ClassTerminal,
			wantReason: "jsonrpc_terminal",
		},
		{
			name:       "http 503 message",
			err:        errors.New("http status 503: upstream connect error"),
			wantClass:  ClassTransient,
			wantReason: "message_transient",
		},
		{
			name:       "rate limit message",
			err:        errors.New("429 too many requests"),
			wantClass:  ClassTransient,
			wantReason: "message_transient",
		},
		{
			name:       "revert message",
			err:        errors.New("execution reverted"),
			wantClass:  ClassTerminal,
			wantReason: "message_terminal",
		},
		{
			name:       "unknown defaults to terminal",
			err:        errors.New("some bizarre failure"),
			wantClass:  ClassTerminal,
			wantReason: "unknown_terminal_default",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decision := Classify(tt.err)
			assert.Equal(t, tt.wantClass, decision.Class)
			assert.Equal(t, tt.wantReason, decision.Reason)
		})
	}
}

func TestMarkersPreserveNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Transient(nil))
	assert.NoError(t, Terminal(nil))
}

func TestMarkersPreserveMessageAndUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("upstream unavailable")
	marked := Terminal(base)

	assert.Equal(t, base.Error(), marked.Error())
	require.ErrorIs(t, marked, base)
}

func TestDecisionIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, Decision{Class: ClassTransient}.IsTransient())
	assert.False(t, Decision{Class: ClassTerminal}.IsTransient())
}
