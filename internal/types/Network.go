package types

import "strconv"

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Network carries what a wallet needs to add and switch to a chain.
type Network struct {
	ChainID           uint64         `json:"chain_id"`
	Name              string         `json:"chain_name"`
	RPCURLs           []string       `json:"rpc_urls"`
	BlockExplorerURLs []string       `json:"block_explorer_urls"`
	NativeCurrency    NativeCurrency `json:"native_currency"`
}

// ChainIDHex renders the chain id the way wallets report it, e.g. 0xaa36a7.
func (n Network) ChainIDHex() string {
	return "0x" + strconv.FormatUint(n.ChainID, 16)
}
