package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
)

var (
	ErrPayoutTransactionNotFound      = errors.New("payout transaction not found")
	ErrPayoutTransactionAlreadyExists = errors.New("payout transaction already exists")
)

type PayoutTransactionRepository struct {
	db DBTX
}

func NewPayoutTransactionRepository(db DBTX) *PayoutTransactionRepository {
	return &PayoutTransactionRepository{db: db}
}

const payoutTransactionColumns = `id, payment_transaction_id, vendor_id,
		gross_amount, commission_amount, net_amount, commission_rate_percent, currency,
		fund_account_id, reference_id, status,
		gateway_payout_id, utr, error_code, error_message,
		version, created_at, updated_at`

func (r *PayoutTransactionRepository) Create(ctx context.Context, payout *entity.PayoutTransaction) error {
	query := `
		INSERT INTO payout_transactions (
			payment_transaction_id, vendor_id,
			gross_amount, commission_amount, net_amount, commission_rate_percent, currency,
			fund_account_id, reference_id, status,
			gateway_payout_id, utr, error_code, error_message,
			version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payout.PaymentTransactionID,
		payout.VendorID,
		payout.GrossAmount,
		payout.CommissionAmount,
		payout.NetAmount,
		payout.CommissionRatePercent,
		payout.Currency,
		payout.FundAccountID,
		payout.ReferenceID,
		string(payout.Status),
		nullableStringValue(payout.GatewayPayoutID),
		nullableStringValue(payout.UTR),
		nullableStringValue(payout.ErrorCode),
		nullableStringValue(payout.ErrorMessage),
		payout.Version,
		payout.CreatedAt,
		payout.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPayoutTransactionAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payout.ID = uint64(id)
	return nil
}

func (r *PayoutTransactionRepository) Update(ctx context.Context, payout *entity.PayoutTransaction) error {
	query := `
		UPDATE payout_transactions SET
			status = ?,
			gateway_payout_id = ?,
			utr = ?,
			error_code = ?,
			error_message = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(payout.Status),
		nullableStringValue(payout.GatewayPayoutID),
		nullableStringValue(payout.UTR),
		nullableStringValue(payout.ErrorCode),
		nullableStringValue(payout.ErrorMessage),
		payout.UpdatedAt,
		payout.ID,
		payout.Version,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleEntity
	}

	payout.Version++
	return nil
}

func (r *PayoutTransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.PayoutTransaction, error) {
	query := `SELECT ` + payoutTransactionColumns + ` FROM payout_transactions WHERE id = ?`

	payout := &entity.PayoutTransaction{}
	if err := scanPayoutTransaction(r.db.QueryRowContext(ctx, query, id), payout); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payout, nil
}

func (r *PayoutTransactionRepository) FindByGatewayPayoutID(ctx context.Context, gatewayPayoutID string) (*entity.PayoutTransaction, error) {
	query := `SELECT ` + payoutTransactionColumns + ` FROM payout_transactions WHERE gateway_payout_id = ? LIMIT 1`

	payout := &entity.PayoutTransaction{}
	if err := scanPayoutTransaction(r.db.QueryRowContext(ctx, query, gatewayPayoutID), payout); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payout, nil
}

func (r *PayoutTransactionRepository) FindByPaymentTransactionID(ctx context.Context, paymentTransactionID uint64) (*entity.PayoutTransaction, error) {
	query := `SELECT ` + payoutTransactionColumns + ` FROM payout_transactions WHERE payment_transaction_id = ? LIMIT 1`

	payout := &entity.PayoutTransaction{}
	if err := scanPayoutTransaction(r.db.QueryRowContext(ctx, query, paymentTransactionID), payout); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payout, nil
}

// ListStaleInit returns INIT payouts whose async gateway dispatch never
// recorded an outcome, e.g. after a crash between persist and enqueue.
func (r *PayoutTransactionRepository) ListStaleInit(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PayoutTransaction, error) {
	query := `
		SELECT ` + payoutTransactionColumns + `
		FROM payout_transactions
		WHERE status = ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, string(entity.PayoutTransactionStatusInit), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]*entity.PayoutTransaction, 0)
	for rows.Next() {
		item := &entity.PayoutTransaction{}
		if err := scanPayoutTransaction(rows, item); err != nil {
			return nil, err
		}
		payouts = append(payouts, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payouts, nil
}

func scanPayoutTransaction(scan rowScanner, payout *entity.PayoutTransaction) error {
	var status string
	var gatewayPayoutID sql.NullString
	var utr sql.NullString
	var errorCode sql.NullString
	var errorMessage sql.NullString

	err := scan.Scan(
		&payout.ID,
		&payout.PaymentTransactionID,
		&payout.VendorID,
		&payout.GrossAmount,
		&payout.CommissionAmount,
		&payout.NetAmount,
		&payout.CommissionRatePercent,
		&payout.Currency,
		&payout.FundAccountID,
		&payout.ReferenceID,
		&status,
		&gatewayPayoutID,
		&utr,
		&errorCode,
		&errorMessage,
		&payout.Version,
		&payout.CreatedAt,
		&payout.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payout.Status = entity.PayoutTransactionStatus(status)
	payout.GatewayPayoutID = stringPtrFromNull(gatewayPayoutID)
	payout.UTR = stringPtrFromNull(utr)
	payout.ErrorCode = stringPtrFromNull(errorCode)
	payout.ErrorMessage = stringPtrFromNull(errorMessage)
	return nil
}
