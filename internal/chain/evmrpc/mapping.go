package evmrpc

import (
	"strings"

	"github.com/mattsse/inscribememaybe/internal/chain"
)

// JSON-RPC error codes with fixed meanings.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// nonceConsumedTokens mark rejections where the node has already seen the
// nonce slot; resubmitting with the same nonce cannot succeed. Checked
// before the generic rejection tokens because "replacement transaction
// underpriced" contains "transaction underpriced".
var nonceConsumedTokens = []string{
	"nonce too low",
	"already known",
	"known transaction",
	"replacement transaction underpriced",
}

// rejectionTokens mark node-side refusals of a single transaction. Geth
// reports most of these under code -32000, so the message is the only
// reliable signal.
var rejectionTokens = []string{
	"insufficient funds",
	"intrinsic gas too low",
	"exceeds block gas limit",
	"oversized data",
	"invalid sender",
	"execution reverted",
	"max fee per gas less than block base fee",
	"transaction underpriced",
	"gas limit reached",
	"exceeds the configured cap",
	"negative value",
}

// mapSubmitError converts a JSON-RPC error from eth_sendRawTransaction into
// the submission taxonomy. Unmatched errors pass through untouched for the
// generic transient/terminal classifier.
func mapSubmitError(rpcErr *RPCError) error {
	lower := strings.ToLower(rpcErr.Message)

	for _, token := range nonceConsumedTokens {
		if strings.Contains(lower, token) {
			return &chain.RejectedError{Code: rpcErr.Code, Message: rpcErr.Message, NonceConsumed: true}
		}
	}
	for _, token := range rejectionTokens {
		if strings.Contains(lower, token) {
			return &chain.RejectedError{Code: rpcErr.Code, Message: rpcErr.Message}
		}
	}

	switch rpcErr.Code {
	case codeParseError, codeInvalidRequest, codeMethodNotFound, codeInvalidParams:
		return &chain.FatalError{Code: rpcErr.Code, Message: rpcErr.Message}
	}

	return rpcErr
}
