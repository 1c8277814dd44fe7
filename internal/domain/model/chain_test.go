package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainID_NetworkName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ethereum", ChainEthereum.NetworkName())
	assert.Equal(t, "base", ChainBase.NetworkName())
	assert.Equal(t, "sepolia", ChainSepolia.NetworkName())
	assert.Equal(t, "chain-31337", ChainID(31337).NetworkName())
}

func TestChainID_IsMainnet(t *testing.T) {
	t.Parallel()

	assert.True(t, ChainEthereum.IsMainnet())
	assert.True(t, ChainBSC.IsMainnet())
	assert.True(t, ChainArbitrum.IsMainnet())
	assert.False(t, ChainSepolia.IsMainnet())
	assert.False(t, ChainHolesky.IsMainnet())
	assert.False(t, ChainID(31337).IsMainnet(), "unknown chains are not assumed to be mainnets")
}

func TestChainID_ExplorerTxURL(t *testing.T) {
	t.Parallel()

	hash := "0x60e21cda14e28713ce3dcd3b20b8e28e1dc31af23b2a7a7be669ee67e2679f58"

	assert.Equal(t, "https://etherscan.io/tx/"+hash, ChainEthereum.ExplorerTxURL(hash))
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+hash, ChainSepolia.ExplorerTxURL(hash))
	assert.Equal(t, "", ChainID(31337).ExplorerTxURL(hash))
}

func TestRunState_Terminal(t *testing.T) {
	t.Parallel()

	assert.False(t, RunStateInit.Terminal())
	assert.False(t, RunStateEncoding.Terminal())
	assert.False(t, RunStateLooping.Terminal())
	assert.True(t, RunStateCompleted.Terminal())
	assert.True(t, RunStateAborted.Terminal())
}
