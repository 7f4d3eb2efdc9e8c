package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"payboard/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receiptColumns = []string{
	"tx_hash", "chain_id", "payment_index", "block_time_ms", "sender_address", "sender_name",
	"receiver_address", "receiver_name", "gross_amount", "token_symbol", "token_address",
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Repository{db: db}, mock
}

func TestRepository_LoadReceipt(t *testing.T) {
	repo, mock := newMockRepository(t)
	blockTime := time.Date(2024, 5, 2, 10, 11, 12, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM receipts WHERE tx_hash = ?")).
		WithArgs("0xabc").
		WillReturnRows(sqlmock.NewRows(receiptColumns).AddRow(
			"0xabc", int64(8453), 0, blockTime.UnixMilli(), "0xa", "alice.eth",
			"0xb", "shop.eth", "12.50", "USDC", "0xtoken",
		))

	record, ok, err := repo.LoadReceipt(context.Background(), "0xabc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "12.50", record.GrossAmount)
	assert.Equal(t, int64(8453), record.ChainID)
	assert.Equal(t, "shop.eth", record.ReceiverDisplayName)
	assert.True(t, blockTime.Equal(record.BlockTimestamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LoadReceiptMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM receipts WHERE tx_hash = ?")).
		WithArgs("0xabc").
		WillReturnRows(sqlmock.NewRows(receiptColumns))

	_, ok, err := repo.LoadReceipt(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_LoadReceiptError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM receipts WHERE tx_hash = ?")).
		WillReturnError(errors.New("connection reset"))

	_, ok, err := repo.LoadReceipt(context.Background(), "0xabc")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRepository_StoreReceipt(t *testing.T) {
	repo, mock := newMockRepository(t)
	record := domain.PaymentRecord{
		ChainID:        10,
		TxHash:         "0xabc",
		PaymentIndex:   1,
		BlockTimestamp: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		SenderAddress:  "0xa",
		GrossAmount:    "0.10",
		TokenSymbol:    "DAI",
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO receipts")).
		WithArgs("0xabc", int64(10), 1, record.BlockTimestamp.UnixMilli(), "0xa", "", "", "", "0.10", "DAI", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.StoreReceipt(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}
