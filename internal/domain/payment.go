package domain

import "time"

// Display layouts for payment dates, always rendered in UTC.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// PaymentRecord is one settled payment as reported by the indexer.
type PaymentRecord struct {
	ChainID             int64
	TxHash              string
	PaymentIndex        int
	BlockTimestamp      time.Time
	SenderAddress       string
	SenderDisplayName   string
	ReceiverAddress     string
	ReceiverDisplayName string
	// GrossAmount is the exact decimal string reported upstream.
	GrossAmount  string
	TokenSymbol  string
	TokenAddress string
}

// PaymentPage is one page of payments for a receiver.
type PaymentPage struct {
	Page     int
	PerPage  int
	Total    int
	Payments []PaymentRecord
}

// HasMore reports whether payments exist beyond this page.
func (p PaymentPage) HasMore() bool {
	return p.Total > (p.Page-1)*p.PerPage+len(p.Payments)
}

// DatedPayment tags a payment with its UTC display date and whether it is
// the first row of that day in the current render.
type DatedPayment struct {
	PaymentRecord
	Date       string
	Time       string
	FirstOfDay bool
}
