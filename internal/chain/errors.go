package chain

import "fmt"

// RejectedError reports that the node refused a submitted transaction. The
// transaction is not retried; the run skips it and moves on.
type RejectedError struct {
	Code    int
	Message string
	// NonceConsumed is true when the node has already seen the nonce slot
	// (the transaction is known to the pool, or the slot is below the
	// account nonce) and reusing it cannot succeed. Rejections the node
	// raises before broadcast leave the slot free.
	NonceConsumed bool
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction rejected (code=%d): %s", e.Code, e.Message)
}

// FatalError reports that the endpoint itself is unusable: bad credentials,
// protocol violations, or a misconfigured URL. No further submission can
// succeed against it, so the run aborts.
type FatalError struct {
	Code    int
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal rpc error (code=%d): %s", e.Code, e.Message)
}
