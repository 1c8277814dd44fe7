package event

import "github.com/mattsse/inscribememaybe/internal/domain/model"

// Outcome classifies the terminal result of one loop iteration.
type Outcome string

const (
	// OutcomeSubmitted means the endpoint accepted the transaction and
	// returned a hash.
	OutcomeSubmitted Outcome = "submitted"
	// OutcomeSkipped means the iteration ended without an accepted
	// transaction but the run moved on.
	OutcomeSkipped Outcome = "skipped"
)

// TxEvent reports the terminal outcome of a single loop iteration. Exactly
// one event is emitted per iteration that reaches a terminal outcome; the
// iteration whose failure aborts the run emits none.
type TxEvent struct {
	Index    int // zero-based iteration index
	Outcome  Outcome
	ChainID  model.ChainID
	TxHash   string // set when Outcome is OutcomeSubmitted
	Nonce    uint64
	Attempts int    // submission attempts, including the final one
	ErrKind  string // failure classification when Outcome is OutcomeSkipped
	Recorded bool   // false when the store write failed after acceptance
}
