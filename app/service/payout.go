package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
	"github.com/Saaiiikrishna/msd-th-sub005/app/repository"
	"github.com/Saaiiikrishna/msd-th-sub005/config"
)

type vendorDirectory interface {
	GetProfile(ctx context.Context, vendorID string) (*entity.VendorProfile, error)
}

type InitiatePayoutInput struct {
	PaymentTransactionID uint64
	VendorID             string
	GrossAmount          decimal.Decimal
	Currency             string

	// RateOverride takes precedence over the profile rate when the upstream
	// enrollment event carried an agreed commission rate.
	RateOverride *decimal.Decimal
}

// PayoutConfirmation mirrors PaymentConfirmation for the payout handlers.
type PayoutConfirmation struct {
	Applied bool
	Payout  *entity.PayoutTransaction
}

// VendorPayoutEngine drives INIT -> PENDING -> PROCESSING -> SUCCESS|FAILED.
// The gateway payout call runs off the initiating path: InitiatePayout only
// persists the INIT row and hands the id to the dispatch workers.
type VendorPayoutEngine struct {
	ledger     ledgerStore
	gateway    gateway.Client
	vendors    vendorDirectory
	payoutsCfg config.PayoutsConfig
	logger     logrus.FieldLogger

	queue chan uint64
}

func NewVendorPayoutEngine(
	ledger ledgerStore,
	gatewayClient gateway.Client,
	vendors vendorDirectory,
	payoutsCfg config.PayoutsConfig,
	logger logrus.FieldLogger,
) *VendorPayoutEngine {
	queueSize := payoutsCfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &VendorPayoutEngine{
		ledger:     ledger,
		gateway:    gatewayClient,
		vendors:    vendors,
		payoutsCfg: payoutsCfg,
		logger:     logger,
		queue:      make(chan uint64, queueSize),
	}
}

// StartDispatchers launches the background workers that perform the gateway
// payout calls. It returns after the workers have been started; they stop
// when ctx is cancelled.
func (e *VendorPayoutEngine) StartDispatchers(ctx context.Context) *sync.WaitGroup {
	workers := e.payoutsCfg.DispatchWorkers
	if workers <= 0 {
		workers = 2
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case payoutID := <-e.queue:
					if err := e.ProcessGatewayPayout(ctx, payoutID); err != nil {
						e.logger.WithError(err).WithField("payout_id", payoutID).Error("Payout dispatch failed")
					}
				}
			}
		}()
	}
	return &wg
}

// InitiatePayout computes the commission split, persists the payout in INIT
// together with its outbox event, and enqueues the gateway call. The payment
// transaction must be CAPTURED; nothing is persisted otherwise.
func (e *VendorPayoutEngine) InitiatePayout(ctx context.Context, in *InitiatePayoutInput) (*entity.PayoutTransaction, error) {
	vendorID := strings.TrimSpace(in.VendorID)
	if vendorID == "" || in.PaymentTransactionID == 0 {
		return nil, ErrInvalidRequest
	}
	if !in.GrossAmount.IsPositive() {
		return nil, ErrInvalidRequest
	}

	view := e.ledger.View()
	txn, err := view.Payments.FindByID(ctx, in.PaymentTransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	if txn.Status != entity.PaymentTransactionStatusCaptured {
		return nil, ErrPaymentNotCaptured
	}

	existing, err := view.Payouts.FindByPaymentTransactionID(ctx, in.PaymentTransactionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	profile, err := e.vendors.GetProfile(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if !profile.Active {
		return nil, ErrVendorInactive
	}

	rate := profile.CommissionRatePercent
	if in.RateOverride != nil {
		rate = *in.RateOverride
	}
	commission, net := ComputeCommission(in.GrossAmount, rate)

	if profile.PayoutLimitAmount.IsPositive() && net.GreaterThan(profile.PayoutLimitAmount) {
		return nil, ErrPayoutLimitExceeded
	}

	now := time.Now().UTC()
	payout := &entity.PayoutTransaction{
		PaymentTransactionID:  in.PaymentTransactionID,
		VendorID:              vendorID,
		GrossAmount:           in.GrossAmount,
		CommissionAmount:      commission,
		NetAmount:             net,
		CommissionRatePercent: rate,
		Currency:              in.Currency,
		FundAccountID:         profile.FundAccountID,
		ReferenceID:           "po-" + uuid.NewString(),
		Status:                entity.PayoutTransactionStatusInit,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = e.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
		if err := tx.Payouts.Create(ctx, payout); err != nil {
			return err
		}
		event, err := newPayoutOutboxEvent(payout, entity.EventTypeVendorPayoutInitiated, now)
		if err != nil {
			return err
		}
		return tx.Outbox.Create(ctx, event)
	})
	if errors.Is(err, repository.ErrPayoutTransactionAlreadyExists) {
		return view.Payouts.FindByPaymentTransactionID(ctx, in.PaymentTransactionID)
	}
	if err != nil {
		return nil, err
	}

	// Non-blocking: a full queue is fine, the sweep job re-dispatches INIT
	// rows it finds.
	select {
	case e.queue <- payout.ID:
	default:
		e.logger.WithField("payout_id", payout.ID).Warn("Payout dispatch queue full, deferring to sweep")
	}

	return payout, nil
}

// ProcessGatewayPayout performs the external payout call for an INIT row.
// Not retried here on failure; a failed payout stays FAILED and any retry is
// a fresh initiation by an external scheduler.
func (e *VendorPayoutEngine) ProcessGatewayPayout(ctx context.Context, payoutID uint64) error {
	payout, err := e.ledger.View().Payouts.FindByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout == nil {
		return ErrPayoutNotFound
	}
	if payout.Status != entity.PayoutTransactionStatusInit {
		return nil
	}

	timeout := e.payoutsCfg.DispatchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := e.gateway.CreatePayout(callCtx, &gateway.CreatePayoutInput{
		FundAccountID: payout.FundAccountID,
		AmountMinor:   MinorUnits(payout.NetAmount),
		Currency:      payout.Currency,
		Mode:          e.payoutsCfg.Mode,
		Purpose:       e.payoutsCfg.Purpose,
		ReferenceID:   payout.ReferenceID,
		Narration:     "vendor settlement " + payout.ReferenceID,
	})
	if err != nil {
		return e.recordDispatchFailure(ctx, payout, err)
	}

	gatewayPayoutID := output.PayoutID
	return e.updateWithRetry(ctx, payout.ID, func(tx *repository.Tx, current *entity.PayoutTransaction) error {
		if current.Status != entity.PayoutTransactionStatusInit {
			return nil
		}
		current.Status = entity.PayoutTransactionStatusPending
		current.GatewayPayoutID = &gatewayPayoutID
		current.UpdatedAt = time.Now().UTC()
		return tx.Payouts.Update(ctx, current)
	})
}

// RunSweepBatch re-dispatches INIT payouts whose enqueued job was lost, e.g.
// across a restart between the ledger write and the queue send.
func (e *VendorPayoutEngine) RunSweepBatch(ctx context.Context) error {
	staleAfter := e.payoutsCfg.SweepStaleAfter
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	batch := e.payoutsCfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}

	cutoff := time.Now().UTC().Add(-staleAfter)
	items, err := e.ledger.View().Payouts.ListStaleInit(ctx, cutoff, batch)
	if err != nil {
		return err
	}

	var firstErr error
	for _, payout := range items {
		if payout == nil {
			continue
		}
		if err := e.ProcessGatewayPayout(ctx, payout.ID); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}

// HandlePayoutProcessing records the gateway's in-flight notification.
// Terminal rows are left untouched; status never regresses.
func (e *VendorPayoutEngine) HandlePayoutProcessing(ctx context.Context, gatewayPayoutID string) (*PayoutConfirmation, error) {
	return e.transition(ctx, gatewayPayoutID, func(current *entity.PayoutTransaction, now time.Time) (bool, error) {
		if current.Terminal() || current.Status == entity.PayoutTransactionStatusProcessing {
			return false, nil
		}
		current.Status = entity.PayoutTransactionStatusProcessing
		current.UpdatedAt = now
		return true, nil
	}, "")
}

func (e *VendorPayoutEngine) HandlePayoutSuccess(ctx context.Context, gatewayPayoutID, utr string, processedAt time.Time) (*PayoutConfirmation, error) {
	return e.transition(ctx, gatewayPayoutID, func(current *entity.PayoutTransaction, now time.Time) (bool, error) {
		switch current.Status {
		case entity.PayoutTransactionStatusSuccess:
			return false, nil
		case entity.PayoutTransactionStatusFailed, entity.PayoutTransactionStatusCancelled:
			e.logPayoutConflict(gatewayPayoutID, current.Status, "success")
			return false, ErrStateConflict
		}
		current.Status = entity.PayoutTransactionStatusSuccess
		current.UTR = normalizeOptionalString(utr)
		current.UpdatedAt = eventTime(processedAt, now)
		return true, nil
	}, entity.EventTypeVendorPayoutSucceeded)
}

func (e *VendorPayoutEngine) HandlePayoutFailed(ctx context.Context, gatewayPayoutID, code, message string, at time.Time) (*PayoutConfirmation, error) {
	return e.transition(ctx, gatewayPayoutID, func(current *entity.PayoutTransaction, now time.Time) (bool, error) {
		switch current.Status {
		case entity.PayoutTransactionStatusFailed:
			return false, nil
		case entity.PayoutTransactionStatusSuccess, entity.PayoutTransactionStatusCancelled:
			e.logPayoutConflict(gatewayPayoutID, current.Status, "failure")
			return false, ErrStateConflict
		}
		current.Status = entity.PayoutTransactionStatusFailed
		current.ErrorCode = normalizeOptionalString(code)
		current.ErrorMessage = normalizeOptionalString(truncate(message, 1024))
		current.UpdatedAt = eventTime(at, now)
		return true, nil
	}, entity.EventTypeVendorPayoutFailed)
}

// GetPayout reads one payout for the query surface.
func (e *VendorPayoutEngine) GetPayout(ctx context.Context, payoutID uint64) (*entity.PayoutTransaction, error) {
	if payoutID == 0 {
		return nil, ErrInvalidRequest
	}

	payout, err := e.ledger.View().Payouts.FindByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

// CancelPayout withdraws a payout that has not reached PROCESSING.
func (e *VendorPayoutEngine) CancelPayout(ctx context.Context, payoutID uint64, reason string) (*entity.PayoutTransaction, error) {
	var result *entity.PayoutTransaction
	err := e.updateWithRetry(ctx, payoutID, func(tx *repository.Tx, current *entity.PayoutTransaction) error {
		switch current.Status {
		case entity.PayoutTransactionStatusCancelled:
			result = current
			return nil
		case entity.PayoutTransactionStatusInit, entity.PayoutTransactionStatusPending:
		default:
			return ErrStateConflict
		}
		current.Status = entity.PayoutTransactionStatusCancelled
		current.ErrorMessage = normalizeOptionalString(truncate(reason, 1024))
		current.UpdatedAt = time.Now().UTC()
		if err := tx.Payouts.Update(ctx, current); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// transition is the shared webhook-handler skeleton: look up by gateway
// payout id, reject INIT rows (dispatch has not recorded PENDING yet, the
// gateway will redeliver), apply mutate, write the outbox event for applied
// transitions, retry on version conflicts.
func (e *VendorPayoutEngine) transition(
	ctx context.Context,
	gatewayPayoutID string,
	mutate func(current *entity.PayoutTransaction, now time.Time) (bool, error),
	eventType string,
) (*PayoutConfirmation, error) {
	gatewayPayoutID = strings.TrimSpace(gatewayPayoutID)
	if gatewayPayoutID == "" {
		return nil, ErrInvalidRequest
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		confirmation := &PayoutConfirmation{}
		err := e.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
			payout, err := tx.Payouts.FindByGatewayPayoutID(ctx, gatewayPayoutID)
			if err != nil {
				return err
			}
			if payout == nil {
				return ErrPayoutNotFound
			}
			if payout.Status == entity.PayoutTransactionStatusInit {
				return ErrPayoutNotDispatched
			}
			confirmation.Payout = payout

			now := time.Now().UTC()
			applied, err := mutate(payout, now)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}

			if err := tx.Payouts.Update(ctx, payout); err != nil {
				return err
			}
			if eventType != "" {
				event, err := newPayoutOutboxEvent(payout, eventType, payout.UpdatedAt)
				if err != nil {
					return err
				}
				if err := tx.Outbox.Create(ctx, event); err != nil {
					return err
				}
			}
			confirmation.Applied = true
			return nil
		})
		if errors.Is(err, repository.ErrStaleEntity) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return confirmation, nil
	}

	return nil, ErrTooManyWriteConflicts
}

func (e *VendorPayoutEngine) recordDispatchFailure(ctx context.Context, payout *entity.PayoutTransaction, cause error) error {
	code := "gateway_error"
	var apiErr *gateway.APIError
	if errors.As(cause, &apiErr) && strings.TrimSpace(apiErr.Code) != "" {
		code = apiErr.Code
	}
	message := truncate(cause.Error(), 1024)

	updateErr := e.updateWithRetry(ctx, payout.ID, func(tx *repository.Tx, current *entity.PayoutTransaction) error {
		if current.Status != entity.PayoutTransactionStatusInit {
			return nil
		}
		now := time.Now().UTC()
		current.Status = entity.PayoutTransactionStatusFailed
		current.ErrorCode = &code
		current.ErrorMessage = &message
		current.UpdatedAt = now
		if err := tx.Payouts.Update(ctx, current); err != nil {
			return err
		}
		event, err := newPayoutOutboxEvent(current, entity.EventTypeVendorPayoutFailed, now)
		if err != nil {
			return err
		}
		return tx.Outbox.Create(ctx, event)
	})
	if updateErr != nil {
		return updateErr
	}
	return cause
}

func (e *VendorPayoutEngine) updateWithRetry(ctx context.Context, payoutID uint64, apply func(tx *repository.Tx, current *entity.PayoutTransaction) error) error {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		err := e.ledger.WithinTx(ctx, func(tx *repository.Tx) error {
			current, err := tx.Payouts.FindByID(ctx, payoutID)
			if err != nil {
				return err
			}
			if current == nil {
				return ErrPayoutNotFound
			}
			return apply(tx, current)
		})
		if errors.Is(err, repository.ErrStaleEntity) {
			continue
		}
		return err
	}
	return ErrTooManyWriteConflicts
}

func (e *VendorPayoutEngine) logPayoutConflict(gatewayPayoutID string, current entity.PayoutTransactionStatus, claimed string) {
	e.logger.WithFields(logrus.Fields{
		"gateway_payout_id": gatewayPayoutID,
		"current_status":    string(current),
		"claimed_outcome":   claimed,
	}).Warn("webhook_state_conflict")
}

func eventTime(preferred, fallback time.Time) time.Time {
	if preferred.IsZero() {
		return fallback
	}
	return preferred.UTC()
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
