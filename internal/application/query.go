package application

const (
	SortByTimestamp = "blockTimestamp"
	SortByAmount    = "amountUSD"
)

// DefaultTokenSymbols are the settlement tokens counted as fiat volume.
var DefaultTokenSymbols = []string{"USDC", "USDT", "USDGLO", "DAI", "USDM", "FRAX", "USDC.E", "USDT.E", "DAI.E"}

type PaymentQuery struct {
	Receiver     string
	Page         int
	PerPage      int
	SortBy       string
	TokenSymbols []string
}
