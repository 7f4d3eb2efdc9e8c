package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"payboard/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository archives receipts in MySQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS receipts (
		tx_hash VARCHAR(66) NOT NULL,
		chain_id BIGINT NOT NULL,
		payment_index INT NOT NULL DEFAULT 0,
		block_time_ms BIGINT NOT NULL,
		sender_address VARCHAR(42) NOT NULL,
		sender_name VARCHAR(255) NOT NULL DEFAULT '',
		receiver_address VARCHAR(42) NOT NULL DEFAULT '',
		receiver_name VARCHAR(255) NOT NULL DEFAULT '',
		gross_amount VARCHAR(80) NOT NULL,
		token_symbol VARCHAR(32) NOT NULL DEFAULT '',
		token_address VARCHAR(42) NOT NULL DEFAULT '',
		archived_at BIGINT NOT NULL,
		PRIMARY KEY (tx_hash),
		KEY receipts_receiver_idx (receiver_name)
	)`)
	return err
}

func (r *Repository) LoadReceipt(ctx context.Context, txHash string) (domain.PaymentRecord, bool, error) {
	ctx, span := startDBSpan(ctx, "mysql.LoadReceipt", attribute.String("tx.hash", txHash))
	defer span.End()
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
			span.SetAttributes(attribute.Bool("receipt.found", false))
			return domain.PaymentRecord{}, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.PaymentRecord{}, false, err
	}
	span.SetAttributes(attribute.Bool("receipt.found", true))
	record.BlockTimestamp = time.UnixMilli(blockTimeMs).UTC()
	return record, true, nil
}

// StoreReceipt inserts a receipt once; later writes for the same hash are
// ignored.
func (r *Repository) StoreReceipt(ctx context.Context, record domain.PaymentRecord) error {
	ctx, span := startDBSpan(ctx, "mysql.StoreReceipt", attribute.String("tx.hash", record.TxHash))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO receipts (tx_hash, chain_id, payment_index, block_time_ms, sender_address, sender_name,
			receiver_address, receiver_name, gross_amount, token_symbol, token_address, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
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

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("payboard/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
