package present

import "strconv"

type ChainInfo struct {
	ID          int64
	Name        string
	ExplorerURL string
}

var chains = map[int64]ChainInfo{
	1:        {ID: 1, Name: "Ethereum", ExplorerURL: "https://etherscan.io"},
	10:       {ID: 10, Name: "OP Mainnet", ExplorerURL: "https://optimistic.etherscan.io"},
	56:       {ID: 56, Name: "BNB Smart Chain", ExplorerURL: "https://bscscan.com"},
	100:      {ID: 100, Name: "Gnosis", ExplorerURL: "https://gnosisscan.io"},
	137:      {ID: 137, Name: "Polygon", ExplorerURL: "https://polygonscan.com"},
	324:      {ID: 324, Name: "zkSync Era", ExplorerURL: "https://explorer.zksync.io"},
	8453:     {ID: 8453, Name: "Base", ExplorerURL: "https://basescan.org"},
	42161:    {ID: 42161, Name: "Arbitrum One", ExplorerURL: "https://arbiscan.io"},
	43114:    {ID: 43114, Name: "Avalanche", ExplorerURL: "https://snowtrace.io"},
	59144:    {ID: 59144, Name: "Linea", ExplorerURL: "https://lineascan.build"},
	534352:   {ID: 534352, Name: "Scroll", ExplorerURL: "https://scrollscan.com"},
	11155111: {ID: 11155111, Name: "Sepolia", ExplorerURL: "https://sepolia.etherscan.io"},
}

// Chain returns the registry entry for id. Unknown chains get a generic name
// and no explorer.
func Chain(id int64) ChainInfo {
	if info, ok := chains[id]; ok {
		return info
	}
	return ChainInfo{ID: id, Name: "Chain " + strconv.FormatInt(id, 10)}
}

// TxURL links to the transaction on the chain's explorer, or "" when the
// chain has none.
func (c ChainInfo) TxURL(txHash string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + "/tx/" + txHash
}

func (c ChainInfo) AddressURL(address string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return c.ExplorerURL + "/address/" + address
}
