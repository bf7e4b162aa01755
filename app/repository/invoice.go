package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceAlreadyExists = errors.New("invoice already exists")
)

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, invoice_number, enrollment_id, user_id, plan_id,
		base_amount, discount_amount, tax_amount, fee_amount, total_amount, currency,
		status, payment_transaction_id, gateway_order_id, gateway_payment_id,
		vendor_id, commission_rate_percent,
		billing_name, billing_email, billing_phone, billing_address,
		version, created_at, updated_at`

func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			invoice_number, enrollment_id, user_id, plan_id,
			base_amount, discount_amount, tax_amount, fee_amount, total_amount, currency,
			status, payment_transaction_id, gateway_order_id, gateway_payment_id,
			vendor_id, commission_rate_percent,
			billing_name, billing_email, billing_phone, billing_address,
			version, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		invoice.InvoiceNumber,
		invoice.EnrollmentID,
		invoice.UserID,
		invoice.PlanID,
		invoice.BaseAmount,
		invoice.DiscountAmount,
		invoice.TaxAmount,
		invoice.FeeAmount,
		invoice.TotalAmount,
		invoice.Currency,
		string(invoice.Status),
		nullableUint64Value(invoice.PaymentTransactionID),
		nullableStringValue(invoice.GatewayOrderID),
		nullableStringValue(invoice.GatewayPaymentID),
		nullableStringValue(invoice.VendorID),
		nullableDecimalValue(invoice.CommissionRatePercent),
		invoice.BillingName,
		invoice.BillingEmail,
		invoice.BillingPhone,
		invoice.BillingAddress,
		invoice.Version,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrInvoiceAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	invoice.ID = uint64(id)
	return nil
}

// Update writes the row under the version it was read at and bumps the
// version. A concurrent writer makes this return ErrStaleEntity.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		UPDATE invoices SET
			status = ?,
			payment_transaction_id = ?,
			gateway_order_id = ?,
			gateway_payment_id = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(invoice.Status),
		nullableUint64Value(invoice.PaymentTransactionID),
		nullableStringValue(invoice.GatewayOrderID),
		nullableStringValue(invoice.GatewayPaymentID),
		invoice.UpdatedAt,
		invoice.ID,
		invoice.Version,
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

	invoice.Version++
	return nil
}

func (r *InvoiceRepository) FindByID(ctx context.Context, id uint64) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	invoice := &entity.Invoice{}
	if err := scanInvoice(r.db.QueryRowContext(ctx, query, id), invoice); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *InvoiceRepository) FindByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_number = ? LIMIT 1`

	invoice := &entity.Invoice{}
	if err := scanInvoice(r.db.QueryRowContext(ctx, query, invoiceNumber), invoice); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *InvoiceRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE gateway_order_id = ? LIMIT 1`

	invoice := &entity.Invoice{}
	if err := scanInvoice(r.db.QueryRowContext(ctx, query, gatewayOrderID), invoice); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return invoice, nil
}

func scanInvoice(scan rowScanner, invoice *entity.Invoice) error {
	var status string
	var paymentTransactionID sql.NullInt64
	var gatewayOrderID sql.NullString
	var gatewayPaymentID sql.NullString
	var vendorID sql.NullString
	var commissionRate decimal.NullDecimal

	err := scan.Scan(
		&invoice.ID,
		&invoice.InvoiceNumber,
		&invoice.EnrollmentID,
		&invoice.UserID,
		&invoice.PlanID,
		&invoice.BaseAmount,
		&invoice.DiscountAmount,
		&invoice.TaxAmount,
		&invoice.FeeAmount,
		&invoice.TotalAmount,
		&invoice.Currency,
		&status,
		&paymentTransactionID,
		&gatewayOrderID,
		&gatewayPaymentID,
		&vendorID,
		&commissionRate,
		&invoice.BillingName,
		&invoice.BillingEmail,
		&invoice.BillingPhone,
		&invoice.BillingAddress,
		&invoice.Version,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if err != nil {
		return err
	}

	invoice.Status = entity.InvoiceStatus(status)
	invoice.PaymentTransactionID = uint64PtrFromNull(paymentTransactionID)
	invoice.GatewayOrderID = stringPtrFromNull(gatewayOrderID)
	invoice.GatewayPaymentID = stringPtrFromNull(gatewayPaymentID)
	invoice.VendorID = stringPtrFromNull(vendorID)
	invoice.CommissionRatePercent = decimalPtrFromNull(commissionRate)
	return nil
}
