package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"payboard/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	pages    map[string]domain.PaymentPage
	payments map[string]domain.PaymentRecord
	stats    []domain.SenderAggregate
	listErr  error
	getErr   error
	queries  []PaymentQuery
	gets     []string
}

func (f *fakeSource) ListPayments(ctx context.Context, query PaymentQuery) (domain.PaymentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return domain.PaymentPage{}, f.listErr
	}
	return f.pages[query.SortBy], nil
}

func (f *fakeSource) GetPayment(ctx context.Context, txHash string) (domain.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, txHash)
	if f.getErr != nil {
		return domain.PaymentRecord{}, f.getErr
	}
	record, ok := f.payments[txHash]
	if !ok {
		return domain.PaymentRecord{}, ErrNotFound
	}
	return record, nil
}

func (f *fakeSource) SenderStats(ctx context.Context, receiver string) ([]domain.SenderAggregate, error) {
	return f.stats, nil
}

type fakeArchive struct {
	records map[string]domain.PaymentRecord
	loadErr error
	stored  []domain.PaymentRecord
}

func (f *fakeArchive) LoadReceipt(ctx context.Context, txHash string) (domain.PaymentRecord, bool, error) {
	if f.loadErr != nil {
		return domain.PaymentRecord{}, false, f.loadErr
	}
	record, ok := f.records[txHash]
	return record, ok, nil
}

func (f *fakeArchive) StoreReceipt(ctx context.Context, record domain.PaymentRecord) error {
	f.stored = append(f.stored, record)
	return nil
}

type fakeNotifier struct {
	handles []string
	err     error
}

func (f *fakeNotifier) PublishFinalized(ctx context.Context, handle string, record domain.PaymentRecord) error {
	f.handles = append(f.handles, handle)
	return f.err
}

var testHash = "0x" + strings.Repeat("ab", 32)

func dashboardFixture() *fakeSource {
	day := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	var recent []domain.PaymentRecord
	for i, sender := range []string{"0xa", "0xb", "0xa", "0xc", "0xb", "0xd", "0xa"} {
		record := payment(sender, "", "10")
		record.BlockTimestamp = day.Add(-time.Duration(i) * time.Hour)
		recent = append(recent, record)
	}
	return &fakeSource{
		pages: map[string]domain.PaymentPage{
			SortByTimestamp: {Page: 1, PerPage: 50, Total: len(recent), Payments: recent},
			SortByAmount:    {Page: 1, PerPage: 10, Total: 1, Payments: []domain.PaymentRecord{payment("0xz", "", "999")}},
		},
		stats: []domain.SenderAggregate{
			{SenderAddress: "0xb", TotalAmount: decimal.RequireFromString("20")},
			{SenderAddress: "0xa", TotalAmount: decimal.RequireFromString("30")},
		},
	}
}

func TestPages_DashboardLocalLeaderboard(t *testing.T) {
	source := dashboardFixture()
	pages, err := NewPages(source, nil, nil, PagesConfig{})
	require.NoError(t, err)

	view, err := pages.Dashboard(context.Background(), "Alice.eth")
	require.NoError(t, err)

	assert.Equal(t, "alice.eth", view.Handle)
	assert.Equal(t, 7, view.Summary.Count)
	assert.Equal(t, "70.00", view.Summary.TotalVolume.StringFixed(2))
	assert.Equal(t, "30.00", view.Summary.TopSenderAmount.StringFixed(2))
	require.Len(t, view.Leaderboard, 4)
	assert.Equal(t, "0xa", view.Leaderboard[0].SenderAddress)
	assert.Len(t, view.Recent, 5)
	assert.True(t, view.Recent[0].FirstOfDay)
	assert.False(t, view.Recent[1].FirstOfDay)
	assert.Len(t, view.Largest, 1)

	require.Len(t, source.queries, 2)
	for _, query := range source.queries {
		assert.Equal(t, "alice.eth", query.Receiver)
		if query.SortBy == SortByTimestamp {
			assert.Equal(t, DefaultTokenSymbols, query.TokenSymbols)
			assert.Equal(t, 50, query.PerPage)
		} else {
			assert.Equal(t, 10, query.PerPage)
		}
	}
}

func TestPages_DashboardIndexerLeaderboard(t *testing.T) {
	source := dashboardFixture()
	pages, err := NewPages(source, nil, nil, PagesConfig{LeaderboardSource: LeaderboardIndexer})
	require.NoError(t, err)

	view, err := pages.Dashboard(context.Background(), "alice.eth")
	require.NoError(t, err)

	require.Len(t, view.Leaderboard, 2)
	assert.Equal(t, "0xa", view.Leaderboard[0].SenderAddress)
	assert.Equal(t, 1, view.Leaderboard[0].Rank)
	assert.Equal(t, 2, view.Leaderboard[1].Rank)
	assert.Equal(t, "30.00", view.Summary.TopSenderAmount.StringFixed(2))
}

func TestPages_DashboardEmpty(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.PaymentPage{}}
	pages, err := NewPages(source, nil, nil, PagesConfig{})
	require.NoError(t, err)

	view, err := pages.Dashboard(context.Background(), "nobody.eth")
	require.NoError(t, err)
	assert.Empty(t, view.Leaderboard)
	assert.Empty(t, view.Recent)
	assert.True(t, view.Summary.TopSenderAmount.IsZero())
}

func TestPages_DashboardRejectsBadHandleBeforeFetching(t *testing.T) {
	source := dashboardFixture()
	pages, err := NewPages(source, nil, nil, PagesConfig{})
	require.NoError(t, err)

	_, err = pages.Dashboard(context.Background(), "bad handle")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, source.queries)
}

func TestPages_DashboardPropagatesUpstreamError(t *testing.T) {
	upstream := errors.New("indexer down")
	source := &fakeSource{listErr: upstream}
	pages, err := NewPages(source, nil, nil, PagesConfig{})
	require.NoError(t, err)

	_, err = pages.Dashboard(context.Background(), "alice.eth")
	assert.ErrorIs(t, err, upstream)
}

func TestPages_AllPayments(t *testing.T) {
	source := dashboardFixture()
	page := source.pages[SortByTimestamp]
	page.Page = 2
	page.PerPage = 5
	page.Total = 12
	source.pages[SortByTimestamp] = page

	pages, err := NewPages(source, nil, nil, PagesConfig{PerPage: 5})
	require.NoError(t, err)

	view, err := pages.AllPayments(context.Background(), "alice.eth", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Page)
	assert.Equal(t, 1, view.PrevPage())
	assert.Equal(t, 3, view.NextPage())
	assert.False(t, view.HasMore)
	assert.Len(t, view.Payments, 7)
	assert.Equal(t, 2, source.queries[0].Page)

	_, err = pages.AllPayments(context.Background(), "alice.eth", "zero")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, source.queries, 1)
}

func TestPages_AllPaymentsDefaultsPaging(t *testing.T) {
	source := &fakeSource{pages: map[string]domain.PaymentPage{
		SortByTimestamp: {Total: 120, Payments: make([]domain.PaymentRecord, 50)},
	}}
	pages, err := NewPages(source, nil, nil, PagesConfig{})
	require.NoError(t, err)

	view, err := pages.AllPayments(context.Background(), "alice.eth", "")
	require.NoError(t, err)
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 50, view.PerPage)
	assert.True(t, view.HasMore)
}

func TestPages_ReceiptPrefersArchive(t *testing.T) {
	archived := domain.PaymentRecord{TxHash: testHash, GrossAmount: "5"}
	source := &fakeSource{}
	archive := &fakeArchive{records: map[string]domain.PaymentRecord{testHash: archived}}
	pages, err := NewPages(source, archive, nil, PagesConfig{})
	require.NoError(t, err)

	record, err := pages.Receipt(context.Background(), "0x"+strings.ToUpper(testHash[2:]))
	require.NoError(t, err)
	assert.Equal(t, archived, record)
	assert.Empty(t, source.gets)
}

func TestPages_ReceiptArchivesIndexerResult(t *testing.T) {
	fetched := domain.PaymentRecord{TxHash: testHash, GrossAmount: "5"}
	source := &fakeSource{payments: map[string]domain.PaymentRecord{testHash: fetched}}
	archive := &fakeArchive{loadErr: errors.New("disk gone")}
	pages, err := NewPages(source, archive, nil, PagesConfig{})
	require.NoError(t, err)

	record, err := pages.Receipt(context.Background(), testHash)
	require.NoError(t, err)
	assert.Equal(t, fetched, record)
	assert.Equal(t, []domain.PaymentRecord{fetched}, archive.stored)
}

func TestPages_ReceiptNotFoundAndInvalid(t *testing.T) {
	source := &fakeSource{}
	pages, err := NewPages(source, &fakeArchive{}, nil, PagesConfig{})
	require.NoError(t, err)

	_, err = pages.Receipt(context.Background(), testHash)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = pages.Receipt(context.Background(), "0xnothex")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, source.gets, 1)
}

func TestPages_FinalizePublishes(t *testing.T) {
	fetched := domain.PaymentRecord{TxHash: testHash, GrossAmount: "5"}
	source := &fakeSource{payments: map[string]domain.PaymentRecord{testHash: fetched}}
	notifier := &fakeNotifier{err: errors.New("broker down")}
	pages, err := NewPages(source, nil, notifier, PagesConfig{})
	require.NoError(t, err)

	record, err := pages.Finalize(context.Background(), "Alice.eth", testHash)
	require.NoError(t, err)
	assert.Equal(t, fetched, record)
	assert.Equal(t, []string{"alice.eth"}, notifier.handles)
}

func TestPages_FinalizeDoesNotPublishUnknownPayments(t *testing.T) {
	notifier := &fakeNotifier{}
	pages, err := NewPages(&fakeSource{}, nil, notifier, PagesConfig{})
	require.NoError(t, err)

	_, err = pages.Finalize(context.Background(), "alice.eth", testHash)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, notifier.handles)
}

func TestPages_Preview(t *testing.T) {
	pages, err := NewPages(dashboardFixture(), nil, nil, PagesConfig{PreviewLimit: 2})
	require.NoError(t, err)

	view, err := pages.Preview(context.Background(), "alice.eth")
	require.NoError(t, err)
	assert.Equal(t, 7, view.Summary.Count)
	require.Len(t, view.Top, 2)
	assert.Equal(t, "0xa", view.Top[0].SenderAddress)
}

func TestNewPages_Validation(t *testing.T) {
	_, err := NewPages(nil, nil, nil, PagesConfig{})
	assert.Error(t, err)

	_, err = NewPages(&fakeSource{}, nil, nil, PagesConfig{LeaderboardSource: "bogus"})
	assert.Error(t, err)
}

func TestFinalizeRedirect(t *testing.T) {
	path, err := FinalizeRedirect("Alice.eth", testHash)
	require.NoError(t, err)
	assert.Equal(t, "/address/alice.eth/finalize/"+testHash, path)

	_, err = FinalizeRedirect("alice.eth", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = FinalizeRedirect("alice.eth", "0x12")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
