package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/log"
	"gorm.io/gorm"
)

// DefaultTxTimeout is the transaction timeout budget for Store.WithTx.
const DefaultTxTimeout = 30 * time.Second

// Store wraps *gorm.DB with the bounded-transaction contract a
// SQL-compatible engine needs for this domain: transactions with a timeout
// budget, create_many skipping duplicate primary keys, indexed range
// queries on expire_at, and cascade delete on foreign key (all satisfied by
// the GORM models in models.go plus the helpers below).
type Store struct {
	DB        *gorm.DB
	TxTimeout time.Duration
}

// New wraps an already-opened *gorm.DB. Callers are responsible for opening
// the connection (gorm.Open(postgres.Open(dsn), ...)) — Store is concerned
// with transaction discipline, not connection management.
func New(db *gorm.DB) *Store {
	return &Store{DB: db, TxTimeout: DefaultTxTimeout}
}

// WithTx runs fn inside a transaction bounded by Store.TxTimeout. Any error
// returned by fn rolls the transaction back; a timeout also rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	timeout := s.TxTimeout
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			log.Error("store: transaction exceeded timeout budget, rolled back", "timeout", timeout)
			return errors.Wrap(ctx.Err(), "store: transaction timeout")
		}
		return err
	}
	return nil
}
