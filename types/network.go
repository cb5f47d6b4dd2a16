package types

// Network represents supported blockchain networks
type Network string

const (
	NetworkEthereum    Network = "ethereum"
	NetworkSepolia     Network = "sepolia" // testnet
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet
)

var evmChainIDs = map[Network]int64{
	NetworkEthereum:    1,
	NetworkSepolia:     11155111,
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkPolygon:     137,
	NetworkPolygonAmoy: 80002,
}

// EtherscanV2URL is the multichain Etherscan API; the chain is selected with
// the chainid query parameter.
const EtherscanV2URL = "https://api.etherscan.io/v2/api"

// IsEVM reports whether the network is a known EVM chain.
func (n Network) IsEVM() bool {
	_, ok := evmChainIDs[n]
	return ok
}

func (n Network) IsTestnet() bool {
	return n == NetworkSepolia || n == NetworkBaseSepolia || n == NetworkPolygonAmoy
}

// ChainID returns the EIP-155 chain id, or 0 for unknown networks.
func (n Network) ChainID() int64 {
	return evmChainIDs[n]
}

// DefaultExplorerURL returns the explorer API endpoint for the network, or
// "" for unknown networks.
func (n Network) DefaultExplorerURL() string {
	if !n.IsEVM() {
		return ""
	}
	return EtherscanV2URL
}

func (n Network) String() string {
	return string(n)
}
