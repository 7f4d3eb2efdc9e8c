package application

import (
	"fmt"
	"slices"

	"payboard/internal/domain"

	"github.com/shopspring/decimal"
)

type senderGroup struct {
	aggregate domain.SenderAggregate
	seen      map[string]struct{}
}

// AggregateBySender groups payments by sender address and ranks the groups by
// total amount, highest first. Groups with equal totals keep the order in
// which their first payment appeared and share a competition rank.
//
// A payment with a malformed amount fails the whole call.
func AggregateBySender(records []domain.PaymentRecord) ([]domain.SenderAggregate, error) {
	index := make(map[string]int, len(records))
	groups := make([]*senderGroup, 0, len(records))

	for _, record := range records {
		amount, err := ParseAmount(record)
		if err != nil {
			return nil, err
		}

		i, ok := index[record.SenderAddress]
		if !ok {
			i = len(groups)
			index[record.SenderAddress] = i
			groups = append(groups, &senderGroup{
				aggregate: domain.SenderAggregate{
					SenderAddress: record.SenderAddress,
					TotalAmount:   decimal.Zero,
				},
				seen: make(map[string]struct{}),
			})
		}

		group := groups[i]
		group.aggregate.TransactionCount++
		group.aggregate.TotalAmount = group.aggregate.TotalAmount.Add(amount)
		if record.BlockTimestamp.After(group.aggregate.LatestTimestamp) {
			group.aggregate.LatestTimestamp = record.BlockTimestamp
		}
		if name := record.SenderDisplayName; name != "" {
			if _, dup := group.seen[name]; !dup {
				group.seen[name] = struct{}{}
				group.aggregate.DisplayNames = append(group.aggregate.DisplayNames, name)
			}
		}
	}

	aggregates := make([]domain.SenderAggregate, 0, len(groups))
	for _, group := range groups {
		aggregates = append(aggregates, group.aggregate)
	}
	RankAggregates(aggregates)
	return aggregates, nil
}

// RankAggregates sorts aggregates by total amount descending, keeping the
// existing order among equal totals, and assigns competition ranks
// (100, 100, 80 -> 1, 1, 3).
func RankAggregates(aggregates []domain.SenderAggregate) {
	slices.SortStableFunc(aggregates, func(a, b domain.SenderAggregate) int {
		return b.TotalAmount.Cmp(a.TotalAmount)
	})
	for i := range aggregates {
		if i > 0 && aggregates[i].TotalAmount.Equal(aggregates[i-1].TotalAmount) {
			aggregates[i].Rank = aggregates[i-1].Rank
			continue
		}
		aggregates[i].Rank = i + 1
	}
}

// Summarize returns the payment count, the exact total volume and the total
// of the top ranked sender. Empty input yields zero values.
func Summarize(records []domain.PaymentRecord) (domain.Summary, error) {
	summary := domain.Summary{
		Count:           len(records),
		TotalVolume:     decimal.Zero,
		TopSenderAmount: decimal.Zero,
	}
	if len(records) == 0 {
		return summary, nil
	}

	aggregates, err := AggregateBySender(records)
	if err != nil {
		return domain.Summary{}, err
	}
	for _, aggregate := range aggregates {
		summary.TotalVolume = summary.TotalVolume.Add(aggregate.TotalAmount)
	}
	summary.TopSenderAmount = aggregates[0].TotalAmount
	return summary, nil
}

// TopSenders returns at most n leading aggregates.
func TopSenders(aggregates []domain.SenderAggregate, n int) []domain.SenderAggregate {
	if n < 0 || n >= len(aggregates) {
		return aggregates
	}
	return aggregates[:n]
}

// ParseAmount parses the gross amount of a payment.
func ParseAmount(record domain.PaymentRecord) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(record.GrossAmount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: tx %s: %q", ErrInvalidAmount, record.TxHash, record.GrossAmount)
	}
	return amount, nil
}
