package mapper

import (
	"time"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/app/types"
)

func InvoiceToResponse(invoice *entity.Invoice) *types.InvoiceResponse {
	if invoice == nil {
		return nil
	}

	resp := &types.InvoiceResponse{
		ID:             invoice.ID,
		InvoiceNumber:  invoice.InvoiceNumber,
		EnrollmentID:   invoice.EnrollmentID,
		UserID:         invoice.UserID,
		PlanID:         invoice.PlanID,
		BaseAmount:     invoice.BaseAmount.StringFixed(2),
		DiscountAmount: invoice.DiscountAmount.StringFixed(2),
		TaxAmount:      invoice.TaxAmount.StringFixed(2),
		FeeAmount:      invoice.FeeAmount.StringFixed(2),
		TotalAmount:    invoice.TotalAmount.StringFixed(2),
		Currency:       invoice.Currency,
		Status:         string(invoice.Status),
		CreatedAt:      invoice.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      invoice.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if invoice.PaymentTransactionID != nil {
		resp.PaymentTransactionID = *invoice.PaymentTransactionID
	}
	if invoice.GatewayOrderID != nil {
		resp.GatewayOrderID = *invoice.GatewayOrderID
	}
	if invoice.GatewayPaymentID != nil {
		resp.GatewayPaymentID = *invoice.GatewayPaymentID
	}
	if invoice.VendorID != nil {
		resp.VendorID = *invoice.VendorID
	}
	if invoice.CommissionRatePercent != nil {
		resp.CommissionRatePercent = invoice.CommissionRatePercent.String()
	}
	return resp
}

func PaymentTransactionToResponse(txn *entity.PaymentTransaction) *types.PaymentTransactionResponse {
	if txn == nil {
		return nil
	}

	resp := &types.PaymentTransactionResponse{
		ID:        txn.ID,
		InvoiceID: txn.InvoiceID,
		Amount:    txn.Amount.StringFixed(2),
		Currency:  txn.Currency,
		Status:    string(txn.Status),
	}
	if txn.GatewayOrderID != nil {
		resp.GatewayOrderID = *txn.GatewayOrderID
	}
	if txn.GatewayPaymentID != nil {
		resp.GatewayPaymentID = *txn.GatewayPaymentID
	}
	if txn.PaymentMethod != nil {
		resp.PaymentMethod = *txn.PaymentMethod
	}
	if txn.ErrorMessage != nil {
		resp.ErrorMessage = *txn.ErrorMessage
	}
	return resp
}

func PayoutToResponse(payout *entity.PayoutTransaction) *types.PayoutResponse {
	if payout == nil {
		return nil
	}

	resp := &types.PayoutResponse{
		ID:                    payout.ID,
		PaymentTransactionID:  payout.PaymentTransactionID,
		VendorID:              payout.VendorID,
		GrossAmount:           payout.GrossAmount.StringFixed(2),
		CommissionAmount:      payout.CommissionAmount.StringFixed(2),
		NetAmount:             payout.NetAmount.StringFixed(2),
		CommissionRatePercent: payout.CommissionRatePercent.String(),
		Currency:              payout.Currency,
		FundAccountID:         payout.FundAccountID,
		ReferenceID:           payout.ReferenceID,
		Status:                string(payout.Status),
		CreatedAt:             payout.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             payout.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if payout.GatewayPayoutID != nil {
		resp.GatewayPayoutID = *payout.GatewayPayoutID
	}
	if payout.UTR != nil {
		resp.UTR = *payout.UTR
	}
	if payout.ErrorCode != nil {
		resp.ErrorCode = *payout.ErrorCode
	}
	if payout.ErrorMessage != nil {
		resp.ErrorMessage = *payout.ErrorMessage
	}
	return resp
}
