package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeQuote is a gas price quote taken once per run and reused for every
// transaction in it. Dynamic quotes carry EIP-1559 fields; legacy quotes
// only a gas price.
type FeeQuote struct {
	Dynamic  bool
	GasPrice *big.Int // legacy gas price, always set
	TipCap   *big.Int // max priority fee per gas, dynamic only
	FeeCap   *big.Int // max fee per gas, dynamic only
}

// CallMsg is the parameter object for gas estimation.
type CallMsg struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
}

// Client is the submission-side view of an EVM JSON-RPC endpoint.
type Client interface {
	// ChainID returns the chain id the endpoint reports.
	ChainID(ctx context.Context) (*big.Int, error)
	// PendingNonce returns the account's next nonce including pending
	// transactions.
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	// SuggestFees quotes gas pricing for new transactions.
	SuggestFees(ctx context.Context) (*FeeQuote, error)
	// EstimateGas estimates the gas limit for a call.
	EstimateGas(ctx context.Context, call CallMsg) (uint64, error)
	// SendRawTransaction submits an RLP-encoded signed transaction and
	// returns its hash. Node-side refusals come back as *RejectedError,
	// unusable endpoints as *FatalError; anything else is left for the
	// generic classifier.
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
}
