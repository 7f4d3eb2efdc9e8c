package application

import "payboard/internal/domain"

// MarkFirstOfDay tags payments, already sorted newest first, with their UTC
// date and time and flags the first row of each calendar day. Every call
// starts a fresh pass.
func MarkFirstOfDay(records []domain.PaymentRecord) []domain.DatedPayment {
	dated := make([]domain.DatedPayment, 0, len(records))
	previous := ""
	for _, record := range records {
		ts := record.BlockTimestamp.UTC()
		day := ts.Format(domain.DateLayout)
		dated = append(dated, domain.DatedPayment{
			PaymentRecord: record,
			Date:          day,
			Time:          ts.Format(domain.TimeLayout),
			FirstOfDay:    day != previous,
		})
		previous = day
	}
	return dated
}
