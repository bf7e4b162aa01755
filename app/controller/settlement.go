package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/Saaiiikrishna/msd-th-sub005/app/factory"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
	"github.com/Saaiiikrishna/msd-th-sub005/app/mapper"
	"github.com/Saaiiikrishna/msd-th-sub005/app/service"
	"github.com/Saaiiikrishna/msd-th-sub005/app/types"
)

type SettlementController struct {
	orchestrator *service.PaymentOrchestrator
	engine       *service.VendorPayoutEngine
	reconciler   *service.WebhookReconciler
	logger       logrus.FieldLogger
}

func NewSettlementController(
	orchestrator *service.PaymentOrchestrator,
	engine *service.VendorPayoutEngine,
	reconciler *service.WebhookReconciler,
) *SettlementController {
	return &SettlementController{
		orchestrator: orchestrator,
		engine:       engine,
		reconciler:   reconciler,
		logger:       factory.NewModuleLogger("settlement-controller"),
	}
}

func (c *SettlementController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *SettlementController) CreateEnrollmentPayment(ctx echo.Context) error {
	req, err := types.NewCreateEnrollmentPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.orchestrator.ProcessEnrollmentPayment(ctx.Request().Context(), &service.EnrollmentPayment{
		EnrollmentID:          req.EnrollmentID,
		UserID:                req.UserID,
		PlanID:                req.PlanID,
		BaseAmount:            req.BaseAmount,
		DiscountAmount:        req.DiscountAmount,
		TaxAmount:             req.TaxAmount,
		FeeAmount:             req.FeeAmount,
		TotalAmount:           req.TotalAmount,
		Currency:              req.Currency,
		VendorID:              req.VendorID,
		CommissionRatePercent: req.CommissionRatePercent,
		BillingName:           req.BillingName,
		BillingEmail:          req.BillingEmail,
		BillingPhone:          req.BillingPhone,
		BillingAddress:        req.BillingAddress,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Enrollment payment failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	statusCode := http.StatusCreated
	if !result.Success {
		statusCode = http.StatusBadGateway
	}
	return ctx.JSON(statusCode, &types.EnrollmentPaymentResponse{
		Success:        result.Success,
		GatewayOrderID: result.GatewayOrderID,
		ErrorMessage:   result.ErrorMessage,
		Invoice:        mapper.InvoiceToResponse(result.Invoice),
		Transaction:    mapper.PaymentTransactionToResponse(result.Transaction),
	})
}

func (c *SettlementController) GetInvoice(ctx echo.Context) error {
	req, err := types.NewGetInvoiceRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	invoice, err := c.orchestrator.GetInvoiceByNumber(ctx.Request().Context(), req.InvoiceNumber)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvoiceNotFound):
			return c.writeError(ctx, http.StatusNotFound, "invoice not found")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get invoice failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.InvoiceEnvelopeResponse{Invoice: mapper.InvoiceToResponse(invoice)})
}

func (c *SettlementController) GetPayout(ctx echo.Context) error {
	req, err := types.NewGetPayoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	payout, err := c.engine.GetPayout(ctx.Request().Context(), req.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			return c.writeError(ctx, http.StatusNotFound, "payout not found")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get payout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.PayoutEnvelopeResponse{Payout: mapper.PayoutToResponse(payout)})
}

// CancelPayout withdraws a payout the gateway has not started processing.
func (c *SettlementController) CancelPayout(ctx echo.Context) error {
	req, err := types.NewCancelPayoutRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	payout, err := c.engine.CancelPayout(ctx.Request().Context(), req.ID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			return c.writeError(ctx, http.StatusNotFound, "payout not found")
		case errors.Is(err, service.ErrStateConflict):
			return c.writeError(ctx, http.StatusConflict, "payout can no longer be cancelled")
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Cancel payout failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.PayoutEnvelopeResponse{Payout: mapper.PayoutToResponse(payout)})
}

func (c *SettlementController) HandleGatewayWebhook(ctx echo.Context) error {
	req, err := types.NewGatewayWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	err = c.reconciler.HandleWebhook(ctx.Request().Context(), req.RawBody, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			return c.writeError(ctx, http.StatusUnauthorized, "invalid webhook signature")
		case errors.Is(err, service.ErrTransactionNotFound), errors.Is(err, service.ErrPayoutNotFound):
			return c.writeError(ctx, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrPayoutNotDispatched):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Gateway webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Webhook processed"})
}

func (c *SettlementController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
