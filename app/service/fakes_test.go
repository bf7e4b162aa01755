package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Saaiiikrishna/msd-th-sub005/app/entity"
	"github.com/Saaiiikrishna/msd-th-sub005/app/gateway"
	"github.com/Saaiiikrishna/msd-th-sub005/app/repository"
)

func newTestLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeLedger is an in-memory stand-in for repository.Store with the same
// optimistic-version semantics: Update fails with ErrStaleEntity unless the
// caller's version matches the stored one.
type fakeLedger struct {
	mu sync.Mutex

	invoices   map[uint64]*entity.Invoice
	invoiceSeq uint64

	payments   map[uint64]*entity.PaymentTransaction
	paymentSeq uint64

	payouts   map[uint64]*entity.PayoutTransaction
	payoutSeq uint64

	outbox    []*entity.OutboxEvent
	outboxSeq uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		invoices: make(map[uint64]*entity.Invoice),
		payments: make(map[uint64]*entity.PaymentTransaction),
		payouts:  make(map[uint64]*entity.PayoutTransaction),
	}
}

func (l *fakeLedger) View() *repository.Tx {
	return &repository.Tx{
		Invoices: &fakeInvoiceStore{l: l},
		Payments: &fakePaymentStore{l: l},
		Payouts:  &fakePayoutStore{l: l},
		Outbox:   &fakeOutboxStore{l: l},
	}
}

func (l *fakeLedger) WithinTx(ctx context.Context, fn func(tx *repository.Tx) error) error {
	return fn(l.View())
}

func (l *fakeLedger) outboxEvents() []*entity.OutboxEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*entity.OutboxEvent, len(l.outbox))
	copy(out, l.outbox)
	return out
}

type fakeInvoiceStore struct{ l *fakeLedger }

func (s *fakeInvoiceStore) Create(ctx context.Context, invoice *entity.Invoice) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, existing := range s.l.invoices {
		if existing.InvoiceNumber == invoice.InvoiceNumber {
			return repository.ErrInvoiceAlreadyExists
		}
	}
	s.l.invoiceSeq++
	invoice.ID = s.l.invoiceSeq
	s.l.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (s *fakeInvoiceStore) Update(ctx context.Context, invoice *entity.Invoice) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	stored, ok := s.l.invoices[invoice.ID]
	if !ok || stored.Version != invoice.Version {
		return repository.ErrStaleEntity
	}
	invoice.Version++
	s.l.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (s *fakeInvoiceStore) FindByID(ctx context.Context, id uint64) (*entity.Invoice, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if stored, ok := s.l.invoices[id]; ok {
		return cloneInvoice(stored), nil
	}
	return nil, nil
}

func (s *fakeInvoiceStore) FindByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, stored := range s.l.invoices {
		if stored.InvoiceNumber == invoiceNumber {
			return cloneInvoice(stored), nil
		}
	}
	return nil, nil
}

func (s *fakeInvoiceStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.Invoice, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, stored := range s.l.invoices {
		if stored.GatewayOrderID != nil && *stored.GatewayOrderID == gatewayOrderID {
			return cloneInvoice(stored), nil
		}
	}
	return nil, nil
}

type fakePaymentStore struct{ l *fakeLedger }

func (s *fakePaymentStore) Create(ctx context.Context, txn *entity.PaymentTransaction) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.paymentSeq++
	txn.ID = s.l.paymentSeq
	s.l.payments[txn.ID] = clonePayment(txn)
	return nil
}

func (s *fakePaymentStore) Update(ctx context.Context, txn *entity.PaymentTransaction) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	stored, ok := s.l.payments[txn.ID]
	if !ok || stored.Version != txn.Version {
		return repository.ErrStaleEntity
	}
	txn.Version++
	s.l.payments[txn.ID] = clonePayment(txn)
	return nil
}

func (s *fakePaymentStore) FindByID(ctx context.Context, id uint64) (*entity.PaymentTransaction, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if stored, ok := s.l.payments[id]; ok {
		return clonePayment(stored), nil
	}
	return nil, nil
}

func (s *fakePaymentStore) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*entity.PaymentTransaction, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, stored := range s.l.payments {
		if stored.GatewayOrderID != nil && *stored.GatewayOrderID == gatewayOrderID {
			return clonePayment(stored), nil
		}
	}
	return nil, nil
}

type fakePayoutStore struct{ l *fakeLedger }

func (s *fakePayoutStore) Create(ctx context.Context, payout *entity.PayoutTransaction) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, existing := range s.l.payouts {
		if existing.PaymentTransactionID == payout.PaymentTransactionID {
			return repository.ErrPayoutTransactionAlreadyExists
		}
	}
	s.l.payoutSeq++
	payout.ID = s.l.payoutSeq
	s.l.payouts[payout.ID] = clonePayout(payout)
	return nil
}

func (s *fakePayoutStore) Update(ctx context.Context, payout *entity.PayoutTransaction) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	stored, ok := s.l.payouts[payout.ID]
	if !ok || stored.Version != payout.Version {
		return repository.ErrStaleEntity
	}
	payout.Version++
	s.l.payouts[payout.ID] = clonePayout(payout)
	return nil
}

func (s *fakePayoutStore) FindByID(ctx context.Context, id uint64) (*entity.PayoutTransaction, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	if stored, ok := s.l.payouts[id]; ok {
		return clonePayout(stored), nil
	}
	return nil, nil
}

func (s *fakePayoutStore) FindByGatewayPayoutID(ctx context.Context, gatewayPayoutID string) (*entity.PayoutTransaction, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, stored := range s.l.payouts {
		if stored.GatewayPayoutID != nil && *stored.GatewayPayoutID == gatewayPayoutID {
			return clonePayout(stored), nil
		}
	}
	return nil, nil
}

func (s *fakePayoutStore) FindByPaymentTransactionID(ctx context.Context, paymentTransactionID uint64) (*entity.PayoutTransaction, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, stored := range s.l.payouts {
		if stored.PaymentTransactionID == paymentTransactionID {
			return clonePayout(stored), nil
		}
	}
	return nil, nil
}

func (s *fakePayoutStore) ListStaleInit(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.PayoutTransaction, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	var out []*entity.PayoutTransaction
	for _, stored := range s.l.payouts {
		if stored.Status == entity.PayoutTransactionStatusInit && stored.UpdatedAt.Before(cutoff) {
			out = append(out, clonePayout(stored))
		}
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

// conflictLedger simulates a concurrent writer: payment or payout updates
// fail with ErrStaleEntity while the matching counter is non-zero. Positive
// counters fail that many updates; -1 fails every update.
type conflictLedger struct {
	*fakeLedger
	paymentConflicts int
	payoutConflicts  int
}

func (l *conflictLedger) View() *repository.Tx {
	tx := l.fakeLedger.View()
	tx.Payments = &conflictPaymentStore{PaymentTransactionStore: tx.Payments, l: l}
	tx.Payouts = &conflictPayoutStore{PayoutTransactionStore: tx.Payouts, l: l}
	return tx
}

func (l *conflictLedger) WithinTx(ctx context.Context, fn func(tx *repository.Tx) error) error {
	return fn(l.View())
}

func takeConflict(counter *int) bool {
	if *counter == 0 {
		return false
	}
	if *counter > 0 {
		*counter--
	}
	return true
}

type conflictPaymentStore struct {
	repository.PaymentTransactionStore
	l *conflictLedger
}

func (s *conflictPaymentStore) Update(ctx context.Context, txn *entity.PaymentTransaction) error {
	if takeConflict(&s.l.paymentConflicts) {
		return repository.ErrStaleEntity
	}
	return s.PaymentTransactionStore.Update(ctx, txn)
}

type conflictPayoutStore struct {
	repository.PayoutTransactionStore
	l *conflictLedger
}

func (s *conflictPayoutStore) Update(ctx context.Context, payout *entity.PayoutTransaction) error {
	if takeConflict(&s.l.payoutConflicts) {
		return repository.ErrStaleEntity
	}
	return s.PayoutTransactionStore.Update(ctx, payout)
}

type fakeOutboxStore struct{ l *fakeLedger }

func (s *fakeOutboxStore) Create(ctx context.Context, event *entity.OutboxEvent) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.outboxSeq++
	event.ID = s.l.outboxSeq
	stored := *event
	s.l.outbox = append(s.l.outbox, &stored)
	return nil
}

func (s *fakeOutboxStore) ListUnprocessed(ctx context.Context, limit int32) ([]*entity.OutboxEvent, error) {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	var out []*entity.OutboxEvent
	for _, stored := range s.l.outbox {
		if stored.Processed {
			continue
		}
		event := *stored
		out = append(out, &event)
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeOutboxStore) MarkProcessed(ctx context.Context, id uint64, at time.Time) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, stored := range s.l.outbox {
		if stored.ID == id {
			stored.Processed = true
			processedAt := at
			stored.ProcessedAt = &processedAt
			return nil
		}
	}
	return nil
}

func cloneInvoice(in *entity.Invoice) *entity.Invoice {
	out := *in
	out.PaymentTransactionID = cloneUint64Ptr(in.PaymentTransactionID)
	out.GatewayOrderID = cloneStringPtr(in.GatewayOrderID)
	out.GatewayPaymentID = cloneStringPtr(in.GatewayPaymentID)
	out.VendorID = cloneStringPtr(in.VendorID)
	out.CommissionRatePercent = cloneDecimalPtr(in.CommissionRatePercent)
	return &out
}

func clonePayment(in *entity.PaymentTransaction) *entity.PaymentTransaction {
	out := *in
	out.GatewayOrderID = cloneStringPtr(in.GatewayOrderID)
	out.GatewayPaymentID = cloneStringPtr(in.GatewayPaymentID)
	out.PaymentMethod = cloneStringPtr(in.PaymentMethod)
	out.ErrorMessage = cloneStringPtr(in.ErrorMessage)
	return &out
}

func clonePayout(in *entity.PayoutTransaction) *entity.PayoutTransaction {
	out := *in
	out.GatewayPayoutID = cloneStringPtr(in.GatewayPayoutID)
	out.UTR = cloneStringPtr(in.UTR)
	out.ErrorCode = cloneStringPtr(in.ErrorCode)
	out.ErrorMessage = cloneStringPtr(in.ErrorMessage)
	return &out
}

func cloneStringPtr(in *string) *string {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneUint64Ptr(in *uint64) *uint64 {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneDecimalPtr(in *decimal.Decimal) *decimal.Decimal {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

// fakeGatewayClient records calls and returns canned responses.
type fakeGatewayClient struct {
	orderID    string
	orderErr   error
	orderCalls int
	lastOrder  *gateway.CreateOrderInput

	payoutID    string
	payoutErr   error
	payoutCalls int
	lastPayout  *gateway.CreatePayoutInput

	parseEvent *gateway.WebhookEvent
	parseErr   error
}

func (c *fakeGatewayClient) CreateOrder(ctx context.Context, input *gateway.CreateOrderInput) (*gateway.CreateOrderOutput, error) {
	c.orderCalls++
	c.lastOrder = input
	if c.orderErr != nil {
		return nil, c.orderErr
	}
	return &gateway.CreateOrderOutput{OrderID: c.orderID}, nil
}

func (c *fakeGatewayClient) CreatePayout(ctx context.Context, input *gateway.CreatePayoutInput) (*gateway.CreatePayoutOutput, error) {
	c.payoutCalls++
	c.lastPayout = input
	if c.payoutErr != nil {
		return nil, c.payoutErr
	}
	return &gateway.CreatePayoutOutput{PayoutID: c.payoutID, Status: "queued"}, nil
}

func (c *fakeGatewayClient) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if c.parseErr != nil {
		return nil, c.parseErr
	}
	return c.parseEvent, nil
}

// fakeVendorDirectory serves profiles from a map keyed by vendor id.
type fakeVendorDirectory struct {
	profiles map[string]*entity.VendorProfile
	err      error
}

func (d *fakeVendorDirectory) GetProfile(ctx context.Context, vendorID string) (*entity.VendorProfile, error) {
	if d.err != nil {
		return nil, d.err
	}
	profile, ok := d.profiles[vendorID]
	if !ok {
		return nil, ErrVendorInactive
	}
	return profile, nil
}

// fakeBusPublisher records published messages, optionally failing specific
// event types.
type fakeBusPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	failTopic string
	err       error
}

type publishedMessage struct {
	MessageID string
	Topic     string
	Key       string
	Payload   string
}

func (p *fakeBusPublisher) Publish(ctx context.Context, messageID, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.failTopic != "" && topic == p.failTopic {
		return context.DeadlineExceeded
	}
	p.published = append(p.published, publishedMessage{
		MessageID: messageID,
		Topic:     topic,
		Key:       key,
		Payload:   string(payload),
	})
	return nil
}

func (p *fakeBusPublisher) messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.published))
	copy(out, p.published)
	return out
}
