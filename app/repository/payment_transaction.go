package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
)

var ErrPaymentTransactionNotFound = errors.New("payment transaction not found")

type PaymentTransactionRepository struct {
	db DBTX
}

func NewPaymentTransactionRepository(db DBTX) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: db}
}

const paymentTransactionColumns = `id, invoice_id, amount, currency, status,
		gateway_order_id, gateway_payment_id, payment_method, error_message,
		version, created_at, updated_at`

func (r *PaymentTransactionRepository) Create(ctx context.Context, txn *entity.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			invoice_id, amount, currency, status,
			gateway_order_id, gateway_payment_id, payment_method, error_message,
			version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		txn.InvoiceID,
		txn.Amount,
		txn.Currency,
		string(txn.Status),
		nullableStringValue(txn.GatewayOrderID),
		nullableStringValue(txn.GatewayPaymentID),
		nullableStringValue(txn.PaymentMethod),
		nullableStringValue(txn.ErrorMessage),
		txn.Version,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	txn.ID = uint64(id)
	return nil
}

func (r *PaymentTransactionRepository) Update(ctx context.Context, txn *entity.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions SET
			status = ?,
			gateway_order_id = ?,
			gateway_payment_id = ?,
			payment_method = ?,
			error_message = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(txn.Status),
		nullableStringValue(txn.GatewayOrderID),
		nullableStringValue(txn.GatewayPaymentID),
		nullableStringValue(txn.PaymentMethod),
		nullableStringValue(txn.ErrorMessage),
		txn.UpdatedAt,
		txn.ID,
		txn.Version,
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

	txn.Version++
	return nil
}

func (r *PaymentTransactionRepository) FindByID(ctx context.Context, id uint64) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + paymentTransactionColumns + ` FROM payment_transactions WHERE id = ?`

	txn := &entity.PaymentTransaction{}
	if err := scanPaymentTransaction(r.db.QueryRowContext(ctx, query, id), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return txn, nil
}

func (r *PaymentTransactionRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.PaymentTransaction, error) {
	query := `SELECT ` + paymentTransactionColumns + ` FROM payment_transactions WHERE gateway_order_id = ? LIMIT 1`

	txn := &entity.PaymentTransaction{}
	if err := scanPaymentTransaction(r.db.QueryRowContext(ctx, query, gatewayOrderID), txn); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return txn, nil
}

func scanPaymentTransaction(scan rowScanner, txn *entity.PaymentTransaction) error {
	var status string
	var gatewayOrderID sql.NullString
	var gatewayPaymentID sql.NullString
	var paymentMethod sql.NullString
	var errorMessage sql.NullString

	err := scan.Scan(
		&txn.ID,
		&txn.InvoiceID,
		&txn.Amount,
		&txn.Currency,
		&status,
		&gatewayOrderID,
		&gatewayPaymentID,
		&paymentMethod,
		&errorMessage,
		&txn.Version,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return err
	}

	txn.Status = entity.PaymentTransactionStatus(status)
	txn.GatewayOrderID = stringPtrFromNull(gatewayOrderID)
	txn.GatewayPaymentID = stringPtrFromNull(gatewayPaymentID)
	txn.PaymentMethod = stringPtrFromNull(paymentMethod)
	txn.ErrorMessage = stringPtrFromNull(errorMessage)
	return nil
}
