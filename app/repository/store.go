package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
)

// InvoiceStore, PaymentTransactionStore, PayoutTransactionStore and
// OutboxEventStore are the per-aggregate views of the ledger. The SQL
// repositories implement them; service tests substitute in-memory fakes.
type InvoiceStore interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	Update(ctx context.Context, invoice *entity.Invoice) error
	FindByID(ctx context.Context, id uint64) (*entity.Invoice, error)
	FindByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.Invoice, error)
}

type PaymentTransactionStore interface {
	Create(ctx context.Context, txn *entity.PaymentTransaction) error
	Update(ctx context.Context, txn *entity.PaymentTransaction) error
	FindByID(ctx context.Context, id uint64) (*entity.PaymentTransaction, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.PaymentTransaction, error)
}

type PayoutTransactionStore interface {
	Create(ctx context.Context, payout *entity.PayoutTransaction) error
	Update(ctx context.Context, payout *entity.PayoutTransaction) error
	FindByID(ctx context.Context, id uint64) (*entity.PayoutTransaction, error)
	FindByGatewayPayoutID(ctx context.Context, gatewayPayoutID string) (*entity.PayoutTransaction, error)
	FindByPaymentTransactionID(ctx context.Context, paymentTransactionID uint64) (*entity.PayoutTransaction, error)
	ListStaleInit(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PayoutTransaction, error)
}

type OutboxEventStore interface {
	Create(ctx context.Context, event *entity.OutboxEvent) error
	ListUnprocessed(ctx context.Context, limit int32) ([]*entity.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uint64, at time.Time) error
}

// Tx bundles the aggregate stores bound to one database handle. Inside
// WithinTx that handle is a single sql.Tx, so a domain-row update and its
// OutboxEvent insert commit or roll back together.
type Tx struct {
	Invoices InvoiceStore
	Payments PaymentTransactionStore
	Payouts  PayoutTransactionStore
	Outbox   OutboxEventStore
}

// Store is the ledger: the single source of truth for settlement state.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// View returns stores bound to the connection pool for plain reads.
func (s *Store) View() *Tx {
	return bindTx(s.db)
}

// WithinTx runs fn inside one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(bindTx(sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func bindTx(db DBTX) *Tx {
	return &Tx{
		Invoices: NewInvoiceRepository(db),
		Payments: NewPaymentTransactionRepository(db),
		Payouts:  NewPayoutTransactionRepository(db),
		Outbox:   NewOutboxEventRepository(db),
	}
}
