package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"payboard/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	LeaderboardLocal   = "local"
	LeaderboardIndexer = "indexer"
)

type PaymentSource interface {
	ListPayments(ctx context.Context, query PaymentQuery) (domain.PaymentPage, error)
	GetPayment(ctx context.Context, txHash string) (domain.PaymentRecord, error)
	SenderStats(ctx context.Context, receiver string) ([]domain.SenderAggregate, error)
}

// ReceiptArchive keeps a durable copy of receipts. Settled payments never
// change, so an archived receipt can be served without asking the indexer.
type ReceiptArchive interface {
	LoadReceipt(ctx context.Context, txHash string) (domain.PaymentRecord, bool, error)
	StoreReceipt(ctx context.Context, record domain.PaymentRecord) error
}

type FinalizeNotifier interface {
	PublishFinalized(ctx context.Context, handle string, record domain.PaymentRecord) error
}

type PagesConfig struct {
	PerPage           int
	TokenSymbols      []string
	LeaderboardSource string
	RecentLimit       int
	LargestLimit      int
	PreviewLimit      int
}

type Pages struct {
	source   PaymentSource
	archive  ReceiptArchive
	notifier FinalizeNotifier
	cfg      PagesConfig
}

type DashboardView struct {
	Handle      string
	Summary     domain.Summary
	Leaderboard []domain.SenderAggregate
	Recent      []domain.DatedPayment
	Largest     []domain.PaymentRecord
}

type PaymentListView struct {
	Handle   string
	Page     int
	PerPage  int
	Total    int
	HasMore  bool
	Payments []domain.DatedPayment
}

func (v PaymentListView) PrevPage() int {
	return max(1, v.Page-1)
}

func (v PaymentListView) NextPage() int {
	return v.Page + 1
}

type PreviewView struct {
	Handle  string
	Summary domain.Summary
	Top     []domain.SenderAggregate
}

func NewPages(source PaymentSource, archive ReceiptArchive, notifier FinalizeNotifier, cfg PagesConfig) (*Pages, error) {
	if source == nil {
		return nil, errors.New("payment source is required")
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if len(cfg.TokenSymbols) == 0 {
		cfg.TokenSymbols = DefaultTokenSymbols
	}
	switch cfg.LeaderboardSource {
	case "":
		cfg.LeaderboardSource = LeaderboardLocal
	case LeaderboardLocal, LeaderboardIndexer:
	default:
		return nil, fmt.Errorf("unknown leaderboard source %q", cfg.LeaderboardSource)
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	if cfg.LargestLimit <= 0 {
		cfg.LargestLimit = 10
	}
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 5
	}
	return &Pages{source: source, archive: archive, notifier: notifier, cfg: cfg}, nil
}

func (p *Pages) paymentsQuery(handle string, page int) PaymentQuery {
	return PaymentQuery{
		Receiver:     handle,
		Page:         page,
		PerPage:      p.cfg.PerPage,
		SortBy:       SortByTimestamp,
		TokenSymbols: p.cfg.TokenSymbols,
	}
}

// Dashboard loads the leaderboard, summary, most recent and largest payments
// for a receiver. Independent indexer reads run concurrently.
func (p *Pages) Dashboard(ctx context.Context, rawHandle string) (DashboardView, error) {
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		return DashboardView{}, err
	}

	var (
		page    domain.PaymentPage
		largest domain.PaymentPage
		stats   []domain.SenderAggregate
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		page, err = p.source.ListPayments(groupCtx, p.paymentsQuery(handle, 1))
		return err
	})
	group.Go(func() error {
		var err error
		largest, err = p.source.ListPayments(groupCtx, PaymentQuery{
			Receiver: handle,
			Page:     1,
			PerPage:  p.cfg.LargestLimit,
			SortBy:   SortByAmount,
		})
		return err
	})
	if p.cfg.LeaderboardSource == LeaderboardIndexer {
		group.Go(func() error {
			var err error
			stats, err = p.source.SenderStats(groupCtx, handle)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return DashboardView{}, err
	}

	summary, err := Summarize(page.Payments)
	if err != nil {
		return DashboardView{}, err
	}

	var leaderboard []domain.SenderAggregate
	if p.cfg.LeaderboardSource == LeaderboardIndexer {
		leaderboard = stats
		RankAggregates(leaderboard)
		if len(leaderboard) > 0 {
			summary.TopSenderAmount = leaderboard[0].TotalAmount
		}
	} else {
		leaderboard, err = AggregateBySender(page.Payments)
		if err != nil {
			return DashboardView{}, err
		}
	}

	recent := page.Payments
	if len(recent) > p.cfg.RecentLimit {
		recent = recent[:p.cfg.RecentLimit]
	}

	return DashboardView{
		Handle:      handle,
		Summary:     summary,
		Leaderboard: leaderboard,
		Recent:      MarkFirstOfDay(recent),
		Largest:     largest.Payments,
	}, nil
}

// AllPayments loads one page of the full payment list.
func (p *Pages) AllPayments(ctx context.Context, rawHandle, rawPage string) (PaymentListView, error) {
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		return PaymentListView{}, err
	}
	pageNumber, err := ParsePage(rawPage)
	if err != nil {
		return PaymentListView{}, err
	}

	page, err := p.source.ListPayments(ctx, p.paymentsQuery(handle, pageNumber))
	if err != nil {
		return PaymentListView{}, err
	}
	// The indexer echoes the paging it applied; fall back to what we asked for.
	if page.Page <= 0 {
		page.Page = pageNumber
	}
	if page.PerPage <= 0 {
		page.PerPage = p.cfg.PerPage
	}

	return PaymentListView{
		Handle:   handle,
		Page:     page.Page,
		PerPage:  page.PerPage,
		Total:    page.Total,
		HasMore:  page.HasMore(),
		Payments: MarkFirstOfDay(page.Payments),
	}, nil
}

// Receipt returns a single payment, preferring the archive.
func (p *Pages) Receipt(ctx context.Context, rawTxHash string) (domain.PaymentRecord, error) {
	txHash, err := NormalizeTxHash(rawTxHash)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	if p.archive != nil {
		record, ok, err := p.archive.LoadReceipt(ctx, txHash)
		if err != nil {
			slog.Warn("receipt archive read failed", "tx_hash", txHash, "err", err)
		} else if ok {
			return record, nil
		}
	}

	record, err := p.source.GetPayment(ctx, txHash)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	if p.archive != nil {
		if err := p.archive.StoreReceipt(ctx, record); err != nil {
			slog.Warn("receipt archive write failed", "tx_hash", txHash, "err", err)
		}
	}
	return record, nil
}

// Finalize loads the receipt shown after checkout and announces it so caches
// for the receiver can be refreshed.
func (p *Pages) Finalize(ctx context.Context, rawHandle, rawTxHash string) (domain.PaymentRecord, error) {
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	record, err := p.Receipt(ctx, rawTxHash)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if p.notifier != nil {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := p.notifier.PublishFinalized(publishCtx, handle, record); err != nil {
			slog.Warn("finalize publish failed", "handle", handle, "tx_hash", record.TxHash, "err", err)
		}
	}
	return record, nil
}

// Preview loads the numbers rendered on the social preview image.
func (p *Pages) Preview(ctx context.Context, rawHandle string) (PreviewView, error) {
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		return PreviewView{}, err
	}
	page, err := p.source.ListPayments(ctx, p.paymentsQuery(handle, 1))
	if err != nil {
		return PreviewView{}, err
	}
	summary, err := Summarize(page.Payments)
	if err != nil {
		return PreviewView{}, err
	}
	aggregates, err := AggregateBySender(page.Payments)
	if err != nil {
		return PreviewView{}, err
	}
	return PreviewView{
		Handle:  handle,
		Summary: summary,
		Top:     TopSenders(aggregates, p.cfg.PreviewLimit),
	}, nil
}

// FinalizeRedirect builds the canonical finalize path for a checkout
// callback carrying the tx hash in its query string.
func FinalizeRedirect(rawHandle, rawTxHash string) (string, error) {
	handle, err := NormalizeHandle(rawHandle)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(rawTxHash) == "" {
		return "", fmt.Errorf("%w: txHash is required", ErrInvalidInput)
	}
	txHash, err := NormalizeTxHash(rawTxHash)
	if err != nil {
		return "", err
	}
	return "/address/" + url.PathEscape(handle) + "/finalize/" + txHash, nil
}
