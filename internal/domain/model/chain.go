package model

import "fmt"

// ChainID is an EVM chain identifier as reported by eth_chainId.
type ChainID int64

const (
	ChainEthereum ChainID = 1
	ChainOptimism ChainID = 10
	ChainBSC      ChainID = 56
	ChainPolygon  ChainID = 137
	ChainBase     ChainID = 8453
	ChainArbitrum ChainID = 42161
	ChainSepolia  ChainID = 11155111
	ChainHolesky  ChainID = 17000
)

type networkInfo struct {
	name     string
	explorer string // base URL without trailing slash
	mainnet  bool
}

var knownNetworks = map[ChainID]networkInfo{
	ChainEthereum: {name: "ethereum", explorer: "https://etherscan.io", mainnet: true},
	ChainOptimism: {name: "optimism", explorer: "https://optimistic.etherscan.io", mainnet: true},
	ChainBSC:      {name: "bsc", explorer: "https://bscscan.com", mainnet: true},
	ChainPolygon:  {name: "polygon", explorer: "https://polygonscan.com", mainnet: true},
	ChainBase:     {name: "base", explorer: "https://basescan.org", mainnet: true},
	ChainArbitrum: {name: "arbitrum", explorer: "https://arbiscan.io", mainnet: true},
	ChainSepolia:  {name: "sepolia", explorer: "https://sepolia.etherscan.io"},
	ChainHolesky:  {name: "holesky", explorer: "https://holesky.etherscan.io"},
}

// NetworkName returns a human-readable name for the chain, or "chain-<id>"
// for networks this package does not know.
func (c ChainID) NetworkName() string {
	if info, ok := knownNetworks[c]; ok {
		return info.name
	}
	return fmt.Sprintf("chain-%d", int64(c))
}

// IsMainnet reports whether the chain is a production network where real
// funds are at stake. Unknown chains are assumed not to be.
func (c ChainID) IsMainnet() bool {
	return knownNetworks[c].mainnet
}

// ExplorerTxURL returns the block explorer link for a transaction hash, or
// "" when no explorer is known for the chain.
func (c ChainID) ExplorerTxURL(txHash string) string {
	info, ok := knownNetworks[c]
	if !ok || info.explorer == "" {
		return ""
	}
	return info.explorer + "/tx/" + txHash
}
