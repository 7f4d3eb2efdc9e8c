package storage

import (
	"context"
	"fmt"
	"strings"

	"payboard/internal/domain"
	"payboard/internal/infrastructure/mysql"
	"payboard/internal/infrastructure/sqlite"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Archive is a receipt archive backend.
type Archive interface {
	LoadReceipt(ctx context.Context, txHash string) (domain.PaymentRecord, bool, error)
	StoreReceipt(ctx context.Context, record domain.PaymentRecord) error
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the archive for driver. An empty driver disables archiving and
// returns a nil Archive.
func Open(driver, dsn string) (Archive, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		return nil, nil
	case DriverSQLite:
		repo, err := sqlite.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive: %w", err)
		}
		return repo, nil
	case DriverMySQL:
		repo, err := mysql.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql archive: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", driver)
	}
}
