package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"payboard/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository archives receipts in a local SQLite file.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS receipts (
			tx_hash TEXT PRIMARY KEY,
			chain_id INTEGER NOT NULL,
			payment_index INTEGER NOT NULL DEFAULT 0,
			block_time_ms INTEGER NOT NULL,
			sender_address TEXT NOT NULL,
			sender_name TEXT NOT NULL DEFAULT '',
			receiver_address TEXT NOT NULL DEFAULT '',
			receiver_name TEXT NOT NULL DEFAULT '',
			gross_amount TEXT NOT NULL,
			token_symbol TEXT NOT NULL DEFAULT '',
			token_address TEXT NOT NULL DEFAULT '',
			archived_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS receipts_receiver_idx ON receipts (receiver_name)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) LoadReceipt(ctx context.Context, txHash string) (domain.PaymentRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var (
		record      domain.PaymentRecord
		blockTimeMs int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT tx_hash, chain_id, payment_index, block_time_ms, sender_address, sender_name,
			receiver_address, receiver_name, gross_amount, token_symbol, token_address
		FROM receipts WHERE tx_hash = ?`, txHash).Scan(
		&record.TxHash,
		&record.ChainID,
		&record.PaymentIndex,
		&blockTimeMs,
		&record.SenderAddress,
		&record.SenderDisplayName,
		&record.ReceiverAddress,
		&record.ReceiverDisplayName,
		&record.GrossAmount,
		&record.TokenSymbol,
		&record.TokenAddress,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PaymentRecord{}, false, nil
		}
		return domain.PaymentRecord{}, false, err
	}
	record.BlockTimestamp = time.UnixMilli(blockTimeMs).UTC()
	return record, true, nil
}

func (r *Repository) StoreReceipt(ctx context.Context, record domain.PaymentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO receipts (tx_hash, chain_id, payment_index, block_time_ms, sender_address, sender_name,
			receiver_address, receiver_name, gross_amount, token_symbol, token_address, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO NOTHING`,
		record.TxHash,
		record.ChainID,
		record.PaymentIndex,
		record.BlockTimestamp.UnixMilli(),
		record.SenderAddress,
		record.SenderDisplayName,
		record.ReceiverAddress,
		record.ReceiverDisplayName,
		record.GrossAmount,
		record.TokenSymbol,
		record.TokenAddress,
		time.Now().UnixMilli(),
	)
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
