package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
	"github.com/Saaiiikrishna/msd-th-sub005/config"
)

func testPayoutsConfig() config.PayoutsConfig {
	return config.PayoutsConfig{
		Mode:            "IMPS",
		Purpose:         "payout",
		DispatchWorkers: 1,
		QueueSize:       8,
		DispatchTimeout: 5 * time.Second,
		SweepStaleAfter: time.Minute,
		SweepBatchSize:  10,
	}
}

func testVendorDirectory() *fakeVendorDirectory {
	return &fakeVendorDirectory{profiles: map[string]*entity.VendorProfile{
		"vnd-7": {
			VendorID:              "vnd-7",
			CommissionRatePercent: decimal.RequireFromString("10"),
			FundAccountID:         "fa_00123",
			PayoutLimitAmount:     decimal.RequireFromString("100000.00"),
			Active:                true,
		},
	}}
}

func seedPaymentTransaction(t *testing.T, ledger *fakeLedger, status entity.PaymentTransactionStatus) *entity.PaymentTransaction {
	t.Helper()
	orderID := "order_seed"
	txn := &entity.PaymentTransaction{
		InvoiceID:      1,
		Amount:         decimal.RequireFromString("1150.00"),
		Currency:       "INR",
		Status:         status,
		GatewayOrderID: &orderID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if err := ledger.View().Payments.Create(context.Background(), txn); err != nil {
		t.Fatalf("seed payment transaction: %v", err)
	}
	return txn
}

func initiateInput(paymentTransactionID uint64) *InitiatePayoutInput {
	return &InitiatePayoutInput{
		PaymentTransactionID: paymentTransactionID,
		VendorID:             "vnd-7",
		GrossAmount:          decimal.RequireFromString("1150.00"),
		Currency:             "INR",
	}
}

func TestInitiatePayoutCreatesInitRow(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_1"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	rate := decimal.RequireFromString("5")
	in := initiateInput(txn.ID)
	in.RateOverride = &rate

	payout, err := engine.InitiatePayout(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payout.Status != entity.PayoutTransactionStatusInit {
		t.Errorf("status: got %s, want INIT", payout.Status)
	}
	if payout.CommissionAmount.StringFixed(2) != "57.50" {
		t.Errorf("commission: got %s, want 57.50", payout.CommissionAmount.StringFixed(2))
	}
	if payout.NetAmount.StringFixed(2) != "1092.50" {
		t.Errorf("net: got %s, want 1092.50", payout.NetAmount.StringFixed(2))
	}
	if !payout.CommissionRatePercent.Equal(rate) {
		t.Errorf("rate override not snapshotted: got %s", payout.CommissionRatePercent)
	}
	if payout.FundAccountID != "fa_00123" {
		t.Errorf("fund account not snapshotted: got %s", payout.FundAccountID)
	}
	if payout.ReferenceID == "" {
		t.Error("reference id must be assigned at initiation")
	}

	events := ledger.outboxEvents()
	if len(events) != 1 || events[0].EventType != entity.EventTypeVendorPayoutInitiated {
		t.Fatalf("expected one vendor.payout.initiated event, got %+v", events)
	}
	if events[0].AggregateID != payout.ReferenceID {
		t.Errorf("aggregate id: got %s, want %s", events[0].AggregateID, payout.ReferenceID)
	}
}

func TestInitiatePayoutRequiresCapturedPayment(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusPending)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	_, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if !errors.Is(err, ErrPaymentNotCaptured) {
		t.Fatalf("expected ErrPaymentNotCaptured, got %v", err)
	}
	if len(ledger.outboxEvents()) != 0 {
		t.Error("failed precondition must persist nothing")
	}
}

func TestInitiatePayoutIsIdempotentPerPayment(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_1"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	first, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("first initiation failed: %v", err)
	}
	second, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("second initiation failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected existing payout %d, got %d", first.ID, second.ID)
	}
	if len(ledger.outboxEvents()) != 1 {
		t.Errorf("expected one initiated event, got %d", len(ledger.outboxEvents()))
	}
}

func TestInitiatePayoutEnforcesVendorChecks(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)

	vendors := testVendorDirectory()
	vendors.profiles["vnd-7"].PayoutLimitAmount = decimal.RequireFromString("500.00")
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{}, vendors, testPayoutsConfig(), newTestLogger())

	_, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if !errors.Is(err, ErrPayoutLimitExceeded) {
		t.Fatalf("expected ErrPayoutLimitExceeded, got %v", err)
	}

	vendors.profiles["vnd-7"].PayoutLimitAmount = decimal.RequireFromString("100000.00")
	vendors.profiles["vnd-7"].Active = false
	_, err = engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if !errors.Is(err, ErrVendorInactive) {
		t.Fatalf("expected ErrVendorInactive, got %v", err)
	}
}

func TestProcessGatewayPayoutDispatches(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	gw := &fakeGatewayClient{payoutID: "pout_abc"}
	engine := NewVendorPayoutEngine(ledger, gw, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("initiation failed: %v", err)
	}

	if err := engine.ProcessGatewayPayout(context.Background(), payout.ID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if gw.payoutCalls != 1 {
		t.Fatalf("expected one gateway payout call, got %d", gw.payoutCalls)
	}
	if gw.lastPayout.AmountMinor != 103500 {
		t.Errorf("payout amount: got %d paise, want 103500", gw.lastPayout.AmountMinor)
	}
	if gw.lastPayout.FundAccountID != "fa_00123" {
		t.Errorf("fund account: got %s", gw.lastPayout.FundAccountID)
	}

	stored, _ := ledger.View().Payouts.FindByID(context.Background(), payout.ID)
	if stored.Status != entity.PayoutTransactionStatusPending {
		t.Errorf("status after dispatch: got %s, want PENDING", stored.Status)
	}
	if stored.GatewayPayoutID == nil || *stored.GatewayPayoutID != "pout_abc" {
		t.Errorf("gateway payout id not stored: %v", stored.GatewayPayoutID)
	}

	// Re-dispatch of a non-INIT row is a no-op.
	if err := engine.ProcessGatewayPayout(context.Background(), payout.ID); err != nil {
		t.Fatalf("re-dispatch errored: %v", err)
	}
	if gw.payoutCalls != 1 {
		t.Errorf("re-dispatch must not call the gateway again, got %d calls", gw.payoutCalls)
	}
}

func TestProcessGatewayPayoutFailureMarksFailed(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	gw := &fakeGatewayClient{payoutErr: &gateway.APIError{StatusCode: 400, Code: "NOT_ENOUGH_BALANCE", Description: "insufficient balance"}}
	engine := NewVendorPayoutEngine(ledger, gw, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("initiation failed: %v", err)
	}

	err = engine.ProcessGatewayPayout(context.Background(), payout.ID)
	if err == nil {
		t.Fatal("expected dispatch error")
	}

	stored, _ := ledger.View().Payouts.FindByID(context.Background(), payout.ID)
	if stored.Status != entity.PayoutTransactionStatusFailed {
		t.Errorf("status: got %s, want FAILED", stored.Status)
	}
	if stored.ErrorCode == nil || *stored.ErrorCode != "NOT_ENOUGH_BALANCE" {
		t.Errorf("error code: got %v", stored.ErrorCode)
	}

	events := ledger.outboxEvents()
	if len(events) != 2 || events[1].EventType != entity.EventTypeVendorPayoutFailed {
		t.Fatalf("expected initiated + failed events, got %+v", events)
	}
}

func TestHandlePayoutSuccessIsIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_abc"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("initiation failed: %v", err)
	}
	if err := engine.ProcessGatewayPayout(context.Background(), payout.ID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	first, err := engine.HandlePayoutSuccess(context.Background(), "pout_abc", "UTR0042", time.Now().UTC())
	if err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if !first.Applied {
		t.Fatal("first delivery must apply")
	}
	if first.Payout.UTR == nil || *first.Payout.UTR != "UTR0042" {
		t.Errorf("utr not recorded: %v", first.Payout.UTR)
	}

	second, err := engine.HandlePayoutSuccess(context.Background(), "pout_abc", "UTR0042", time.Now().UTC())
	if err != nil {
		t.Fatalf("duplicate delivery failed: %v", err)
	}
	if second.Applied {
		t.Fatal("duplicate delivery must not re-apply")
	}

	var succeeded int
	for _, event := range ledger.outboxEvents() {
		if event.EventType == entity.EventTypeVendorPayoutSucceeded {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("expected one vendor.payout.succeeded event, got %d", succeeded)
	}
}

func TestHandlePayoutFailedAfterSuccessConflicts(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_abc"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, _ := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	_ = engine.ProcessGatewayPayout(context.Background(), payout.ID)
	if _, err := engine.HandlePayoutSuccess(context.Background(), "pout_abc", "UTR1", time.Now().UTC()); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	_, err := engine.HandlePayoutFailed(context.Background(), "pout_abc", "failed", "bank rejected", time.Now().UTC())
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	stored, _ := ledger.View().Payouts.FindByGatewayPayoutID(context.Background(), "pout_abc")
	if stored.Status != entity.PayoutTransactionStatusSuccess {
		t.Errorf("conflicting webhook must not change state, got %s", stored.Status)
	}
}

func TestHandlePayoutWebhookBeforeDispatchRecorded(t *testing.T) {
	ledger := newFakeLedger()
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	// Row still INIT but already known to the gateway: the dispatch call
	// returned on the gateway side while our PENDING write has not landed.
	gatewayPayoutID := "pout_early"
	payout := &entity.PayoutTransaction{
		PaymentTransactionID:  1,
		VendorID:              "vnd-7",
		GrossAmount:           decimal.RequireFromString("100.00"),
		CommissionAmount:      decimal.RequireFromString("10.00"),
		NetAmount:             decimal.RequireFromString("90.00"),
		CommissionRatePercent: decimal.RequireFromString("10"),
		Currency:              "INR",
		FundAccountID:         "fa_00123",
		ReferenceID:           "po-early",
		Status:                entity.PayoutTransactionStatusInit,
		GatewayPayoutID:       &gatewayPayoutID,
		CreatedAt:             time.Now().UTC(),
		UpdatedAt:             time.Now().UTC(),
	}
	if err := ledger.View().Payouts.Create(context.Background(), payout); err != nil {
		t.Fatalf("seed payout: %v", err)
	}

	_, err := engine.HandlePayoutSuccess(context.Background(), "pout_early", "UTR1", time.Now().UTC())
	if !errors.Is(err, ErrPayoutNotDispatched) {
		t.Fatalf("expected ErrPayoutNotDispatched, got %v", err)
	}

	_, err = engine.HandlePayoutSuccess(context.Background(), "pout_unknown", "UTR1", time.Now().UTC())
	if !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}
}

func TestRunSweepBatchRedispatchesStaleInit(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	gw := &fakeGatewayClient{payoutID: "pout_swept"}
	engine := NewVendorPayoutEngine(ledger, gw, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("initiation failed: %v", err)
	}

	// Age the row past the stale cutoff.
	stored, _ := ledger.View().Payouts.FindByID(context.Background(), payout.ID)
	stored.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	if err := ledger.View().Payouts.Update(context.Background(), stored); err != nil {
		t.Fatalf("age payout: %v", err)
	}

	if err := engine.RunSweepBatch(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if gw.payoutCalls != 1 {
		t.Fatalf("expected sweep to dispatch once, got %d calls", gw.payoutCalls)
	}

	after, _ := ledger.View().Payouts.FindByID(context.Background(), payout.ID)
	if after.Status != entity.PayoutTransactionStatusPending {
		t.Errorf("status after sweep: got %s, want PENDING", after.Status)
	}
}

func TestHandlePayoutSuccessRetriesAfterVersionConflict(t *testing.T) {
	ledger := &conflictLedger{fakeLedger: newFakeLedger()}
	txn := seedPaymentTransaction(t, ledger.fakeLedger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_vc"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("initiation failed: %v", err)
	}
	if err := engine.ProcessGatewayPayout(context.Background(), payout.ID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	// A concurrent writer bumps the version once; the webhook handler must
	// re-read and settle on the second attempt.
	ledger.payoutConflicts = 1

	confirmation, err := engine.HandlePayoutSuccess(context.Background(), "pout_vc", "UTRVC1", time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !confirmation.Applied {
		t.Fatal("retried delivery must apply")
	}
	if ledger.payoutConflicts != 0 {
		t.Fatal("injected conflict was not consumed")
	}

	stored, _ := ledger.View().Payouts.FindByID(context.Background(), payout.ID)
	if stored.Status != entity.PayoutTransactionStatusSuccess {
		t.Errorf("status: got %s, want SUCCESS", stored.Status)
	}

	var succeeded int
	for _, event := range ledger.outboxEvents() {
		if event.EventType == entity.EventTypeVendorPayoutSucceeded {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one vendor.payout.succeeded event, got %d", succeeded)
	}
}

func TestHandlePayoutSuccessGivesUpAfterPersistentConflicts(t *testing.T) {
	ledger := &conflictLedger{fakeLedger: newFakeLedger()}
	txn := seedPaymentTransaction(t, ledger.fakeLedger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_vc"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, _ := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err := engine.ProcessGatewayPayout(context.Background(), payout.ID); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	ledger.payoutConflicts = -1

	_, err := engine.HandlePayoutSuccess(context.Background(), "pout_vc", "UTRVC1", time.Now().UTC())
	if !errors.Is(err, ErrTooManyWriteConflicts) {
		t.Fatalf("expected ErrTooManyWriteConflicts, got %v", err)
	}

	ledger.payoutConflicts = 0
	stored, _ := ledger.View().Payouts.FindByID(context.Background(), payout.ID)
	if stored.Status != entity.PayoutTransactionStatusPending {
		t.Errorf("exhausted retries must leave state untouched, got %s", stored.Status)
	}
	for _, event := range ledger.outboxEvents() {
		if event.EventType == entity.EventTypeVendorPayoutSucceeded {
			t.Fatal("no success event may be written when retries are exhausted")
		}
	}
}

func TestCancelPayoutBeforeProcessing(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	gw := &fakeGatewayClient{payoutID: "pout_cancel"}
	engine := NewVendorPayoutEngine(ledger, gw, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, err := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	if err != nil {
		t.Fatalf("initiation failed: %v", err)
	}

	cancelled, err := engine.CancelPayout(context.Background(), payout.ID, "vendor offboarded")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != entity.PayoutTransactionStatusCancelled {
		t.Errorf("status: got %s, want CANCELLED", cancelled.Status)
	}
	if cancelled.ErrorMessage == nil || *cancelled.ErrorMessage != "vendor offboarded" {
		t.Errorf("reason not recorded: %v", cancelled.ErrorMessage)
	}

	// A late dispatch of the cancelled row must not reach the gateway.
	if err := engine.ProcessGatewayPayout(context.Background(), payout.ID); err != nil {
		t.Fatalf("dispatch after cancel errored: %v", err)
	}
	if gw.payoutCalls != 0 {
		t.Errorf("cancelled payout must not be dispatched, got %d calls", gw.payoutCalls)
	}

	// Cancelling again is a no-op.
	again, err := engine.CancelPayout(context.Background(), payout.ID, "duplicate request")
	if err != nil {
		t.Fatalf("repeat cancel errored: %v", err)
	}
	if again.Status != entity.PayoutTransactionStatusCancelled {
		t.Errorf("repeat cancel status: got %s", again.Status)
	}
}

func TestCancelPayoutAfterSuccessConflicts(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_done"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, _ := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	_ = engine.ProcessGatewayPayout(context.Background(), payout.ID)
	if _, err := engine.HandlePayoutSuccess(context.Background(), "pout_done", "UTR77", time.Now().UTC()); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	_, err := engine.CancelPayout(context.Background(), payout.ID, "too late")
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	_, err = engine.CancelPayout(context.Background(), 9999, "missing")
	if !errors.Is(err, ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}
}

func TestHandlePayoutReversedMarksFailed(t *testing.T) {
	ledger := newFakeLedger()
	txn := seedPaymentTransaction(t, ledger, entity.PaymentTransactionStatusCaptured)
	engine := NewVendorPayoutEngine(ledger, &fakeGatewayClient{payoutID: "pout_rev"}, testVendorDirectory(), testPayoutsConfig(), newTestLogger())

	payout, _ := engine.InitiatePayout(context.Background(), initiateInput(txn.ID))
	_ = engine.ProcessGatewayPayout(context.Background(), payout.ID)

	confirmation, err := engine.HandlePayoutFailed(context.Background(), "pout_rev", "reversed", "beneficiary account closed", time.Now().UTC())
	if err != nil {
		t.Fatalf("reversal handling failed: %v", err)
	}
	if !confirmation.Applied {
		t.Fatal("reversal must apply")
	}
	if confirmation.Payout.Status != entity.PayoutTransactionStatusFailed {
		t.Errorf("status: got %s, want FAILED", confirmation.Payout.Status)
	}
	if confirmation.Payout.ErrorCode == nil || *confirmation.Payout.ErrorCode != "reversed" {
		t.Errorf("error code: got %v", confirmation.Payout.ErrorCode)
	}
}
