package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SenderAggregate is the per-sender rollup of a set of payments.
type SenderAggregate struct {
	SenderAddress    string
	DisplayNames     []string
	TransactionCount int
	TotalAmount      decimal.Decimal
	Rank             int
	LatestTimestamp  time.Time
}

// PrimaryName returns the first display name observed for the sender.
func (a SenderAggregate) PrimaryName() string {
	if len(a.DisplayNames) == 0 {
		return ""
	}
	return a.DisplayNames[0]
}

// Summary holds the headline numbers shown above a leaderboard.
type Summary struct {
	Count           int
	TotalVolume     decimal.Decimal
	TopSenderAmount decimal.Decimal
}
