package evmrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mattsse/inscribememaybe/internal/chain"
)

// ChainID calls eth_chainId.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	result, err := c.call(ctx, "eth_chainId", []interface{}{}, c.queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("eth_chainId: %w", err)
	}
	return decodeBigResult(result, "chain id")
}

// PendingNonce calls eth_getTransactionCount with the "pending" tag so
// transactions already in the pool are counted.
func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	result, err := c.call(ctx, "eth_getTransactionCount", []interface{}{addr.Hex(), "pending"}, c.queryTimeout)
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount: %w", err)
	}
	return decodeUint64Result(result, "nonce")
}

// SuggestFees quotes gas pricing. Endpoints that expose
// eth_maxPriorityFeePerGas get a dynamic-fee quote; endpoints that answer it
// with method-not-found fall back to legacy pricing from eth_gasPrice.
func (c *Client) SuggestFees(ctx context.Context) (*chain.FeeQuote, error) {
	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	tip, err := c.maxPriorityFeePerGas(ctx)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == codeMethodNotFound {
			return &chain.FeeQuote{GasPrice: gasPrice}, nil
		}
		return nil, err
	}

	// Doubling the quoted price before adding the tip leaves headroom for
	// base fee drift over a long run.
	feeCap := new(big.Int).Add(new(big.Int).Mul(gasPrice, big.NewInt(2)), tip)
	return &chain.FeeQuote{
		Dynamic:  true,
		GasPrice: gasPrice,
		TipCap:   tip,
		FeeCap:   feeCap,
	}, nil
}

func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	result, err := c.call(ctx, "eth_gasPrice", []interface{}{}, c.queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	return decodeBigResult(result, "gas price")
}

func (c *Client) maxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	result, err := c.call(ctx, "eth_maxPriorityFeePerGas", []interface{}{}, c.queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("eth_maxPriorityFeePerGas: %w", err)
	}
	return decodeBigResult(result, "priority fee")
}

// EstimateGas calls eth_estimateGas for the given message.
func (c *Client) EstimateGas(ctx context.Context, call chain.CallMsg) (uint64, error) {
	msg := callMsg{From: call.From.Hex()}
	if call.To != nil {
		msg.To = call.To.Hex()
	}
	if call.Value != nil && call.Value.Sign() > 0 {
		msg.Value = hexutil.EncodeBig(call.Value)
	}
	if len(call.Data) > 0 {
		msg.Data = hexutil.Encode(call.Data)
	}

	result, err := c.call(ctx, "eth_estimateGas", []interface{}{msg}, c.queryTimeout)
	if err != nil {
		return 0, fmt.Errorf("eth_estimateGas: %w", err)
	}
	return decodeUint64Result(result, "gas estimate")
}

// SendRawTransaction submits an RLP-encoded signed transaction. JSON-RPC
// errors are mapped onto the submission taxonomy before they surface.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	result, err := c.call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Encode(raw)}, c.submitTimeout)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: %w", mapSubmitError(rpcErr))
		}
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: %w", err)
	}

	var hexHash string
	if err := json.Unmarshal(result, &hexHash); err != nil {
		return common.Hash{}, fmt.Errorf("unmarshal tx hash: %w", err)
	}
	return common.HexToHash(hexHash), nil
}

func decodeBigResult(result json.RawMessage, what string) (*big.Int, error) {
	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	val, err := hexutil.DecodeBig(hexVal)
	if err != nil {
		return nil, fmt.Errorf("parse %s %q: %w", what, hexVal, err)
	}
	return val, nil
}

func decodeUint64Result(result json.RawMessage, what string) (uint64, error) {
	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return 0, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	val, err := hexutil.DecodeUint64(hexVal)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", what, hexVal, err)
	}
	return val, nil
}
