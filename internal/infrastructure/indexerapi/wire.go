package indexerapi

import (
	"fmt"
	"strings"
	"time"

	"payboard/internal/domain"

	"github.com/shopspring/decimal"
)

// Wire shapes of the indexer API. Pointer fields are required and checked in
// toDomain; plain fields are optional.

type paymentsResponse struct {
	Page     int           `json:"page"`
	PerPage  int           `json:"perPage"`
	Total    *int          `json:"total"`
	Payments []paymentWire `json:"payments"`
}

type paymentResponse struct {
	Payment *paymentWire `json:"payment"`
}

type statsResponse struct {
	Stats []statWire `json:"stats"`
}

type paymentWire struct {
	ChainID                *int64  `json:"chainId"`
	TxHash                 *string `json:"txHash"`
	PaymentIndex           int     `json:"paymentIndex"`
	BlockTimestamp         *string `json:"blockTimestamp"`
	SenderAddress          *string `json:"senderAddress"`
	SenderEnsPrimaryName   string  `json:"senderEnsPrimaryName"`
	ReceiverAddress        string  `json:"receiverAddress"`
	ReceiverEnsPrimaryName string  `json:"receiverEnsPrimaryName"`
	TokenOutAmountGross    *string `json:"tokenOutAmountGross"`
	TokenOutSymbol         string  `json:"tokenOutSymbol"`
	TokenOutAddress        string  `json:"tokenOutAddress"`
}

type statWire struct {
	Address          *string          `json:"address"`
	TxCount          *int             `json:"txCount"`
	TotalAmountInUSD *decimal.Decimal `json:"totalAmountInUSD"`
	Rank             int              `json:"rank"`
	LatestTimestamp  string           `json:"latestTimestamp"`
}

func (r paymentsResponse) toDomain() (domain.PaymentPage, error) {
	if r.Total == nil {
		return domain.PaymentPage{}, fmt.Errorf("%w: total is missing", ErrMalformedResponse)
	}
	if r.Page < 0 || r.PerPage < 0 || *r.Total < 0 {
		return domain.PaymentPage{}, fmt.Errorf("%w: negative paging values", ErrMalformedResponse)
	}
	payments := make([]domain.PaymentRecord, 0, len(r.Payments))
	for i, wire := range r.Payments {
		record, err := wire.toDomain()
		if err != nil {
			return domain.PaymentPage{}, fmt.Errorf("payments[%d]: %w", i, err)
		}
		payments = append(payments, record)
	}
	return domain.PaymentPage{
		Page:     r.Page,
		PerPage:  r.PerPage,
		Total:    *r.Total,
		Payments: payments,
	}, nil
}

func (w paymentWire) toDomain() (domain.PaymentRecord, error) {
	switch {
	case w.ChainID == nil:
		return domain.PaymentRecord{}, fmt.Errorf("%w: chainId is missing", ErrMalformedResponse)
	case w.TxHash == nil || *w.TxHash == "":
		return domain.PaymentRecord{}, fmt.Errorf("%w: txHash is missing", ErrMalformedResponse)
	case w.BlockTimestamp == nil:
		return domain.PaymentRecord{}, fmt.Errorf("%w: blockTimestamp is missing", ErrMalformedResponse)
	case w.SenderAddress == nil || *w.SenderAddress == "":
		return domain.PaymentRecord{}, fmt.Errorf("%w: senderAddress is missing", ErrMalformedResponse)
	case w.TokenOutAmountGross == nil:
		return domain.PaymentRecord{}, fmt.Errorf("%w: tokenOutAmountGross is missing", ErrMalformedResponse)
	}

	timestamp, err := parseTimestamp(*w.BlockTimestamp)
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: blockTimestamp %q", ErrMalformedResponse, *w.BlockTimestamp)
	}
	if _, err := decimal.NewFromString(*w.TokenOutAmountGross); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("%w: tokenOutAmountGross %q", ErrMalformedResponse, *w.TokenOutAmountGross)
	}

	return domain.PaymentRecord{
		ChainID:             *w.ChainID,
		TxHash:              strings.ToLower(*w.TxHash),
		PaymentIndex:        w.PaymentIndex,
		BlockTimestamp:      timestamp,
		SenderAddress:       strings.ToLower(*w.SenderAddress),
		SenderDisplayName:   w.SenderEnsPrimaryName,
		ReceiverAddress:     strings.ToLower(w.ReceiverAddress),
		ReceiverDisplayName: w.ReceiverEnsPrimaryName,
		GrossAmount:         *w.TokenOutAmountGross,
		TokenSymbol:         w.TokenOutSymbol,
		TokenAddress:        strings.ToLower(w.TokenOutAddress),
	}, nil
}

func (r statsResponse) toDomain() ([]domain.SenderAggregate, error) {
	aggregates := make([]domain.SenderAggregate, 0, len(r.Stats))
	for i, wire := range r.Stats {
		switch {
		case wire.Address == nil || *wire.Address == "":
			return nil, fmt.Errorf("stats[%d]: %w: address is missing", i, ErrMalformedResponse)
		case wire.TxCount == nil:
			return nil, fmt.Errorf("stats[%d]: %w: txCount is missing", i, ErrMalformedResponse)
		case wire.TotalAmountInUSD == nil:
			return nil, fmt.Errorf("stats[%d]: %w: totalAmountInUSD is missing", i, ErrMalformedResponse)
		}
		aggregate := domain.SenderAggregate{
			SenderAddress:    strings.ToLower(*wire.Address),
			TransactionCount: *wire.TxCount,
			TotalAmount:      *wire.TotalAmountInUSD,
			Rank:             wire.Rank,
		}
		if wire.LatestTimestamp != "" {
			latest, err := parseTimestamp(wire.LatestTimestamp)
			if err != nil {
				return nil, fmt.Errorf("stats[%d]: %w: latestTimestamp %q", i, ErrMalformedResponse, wire.LatestTimestamp)
			}
			aggregate.LatestTimestamp = latest
		}
		aggregates = append(aggregates, aggregate)
	}
	return aggregates, nil
}

func parseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
