package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mattsse/inscribememaybe/internal/chain"
)

// Signer holds the sender key and produces signed zero-value self-send
// transactions whose calldata carries the inscription payload.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded secp256k1 private key. A 0x prefix and
// surrounding whitespace are tolerated.
func NewSigner(hexKey string) (*Signer, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the sender address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// TxParams describes one inscription transaction. The recipient is always
// the signer itself and the value is always zero.
type TxParams struct {
	ChainID *big.Int
	Nonce   uint64
	Gas     uint64
	Fees    *chain.FeeQuote
	Data    []byte
}

// SignedTx builds and signs one self-send transaction. A dynamic fee quote
// produces an EIP-1559 transaction, a legacy quote a legacy one.
func (s *Signer) SignedTx(params TxParams) (*types.Transaction, error) {
	if params.ChainID == nil || params.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}
	if params.Fees == nil {
		return nil, fmt.Errorf("fee quote is required")
	}
	if params.Gas == 0 {
		return nil, fmt.Errorf("gas limit must be set")
	}

	var tx *types.Transaction
	if params.Fees.Dynamic {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   params.ChainID,
			Nonce:     params.Nonce,
			GasTipCap: params.Fees.TipCap,
			GasFeeCap: params.Fees.FeeCap,
			Gas:       params.Gas,
			To:        &s.address,
			Value:     big.NewInt(0),
			Data:      params.Data,
		})
	} else {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    params.Nonce,
			GasPrice: params.Fees.GasPrice,
			Gas:      params.Gas,
			To:       &s.address,
			Value:    big.NewInt(0),
			Data:     params.Data,
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(params.ChainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction nonce=%d: %w", params.Nonce, err)
	}
	return signed, nil
}

// IntrinsicGas is the minimum gas a calldata-carrying transfer costs: the
// 21000 base charge plus 16 per nonzero byte and 4 per zero byte. Used when
// the endpoint cannot estimate.
func IntrinsicGas(data []byte) uint64 {
	gas := uint64(21000)
	for _, b := range data {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}
