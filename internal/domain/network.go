package domain

// Network identifies the ledger network the engine operates against.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkPreprod Network = "preprod"
	NetworkPreview Network = "preview"
)

// Mainnet reports whether this is the production network.
func (n Network) Mainnet() bool {
	return n == NetworkMainnet
}

// Valid reports whether the network name is known.
func (n Network) Valid() bool {
	switch n {
	case NetworkMainnet, NetworkPreprod, NetworkPreview:
		return true
	}
	return false
}
