package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/core/services"
	"github.com/afyapay/payments_engine/internal/dto"
)

// fakeIdemStore is an in-memory idempotency repository with the same
// atomicity guarantees as the postgres implementation.
type fakeIdemStore struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{records: make(map[string]domain.IdempotencyRecord)}
}

func (s *fakeIdemStore) Claim(ctx context.Context, fingerprint string, ttl time.Duration) (bool, *domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.records[fingerprint]; ok && !existing.Expired(now) {
		rec := existing
		return false, &rec, nil
	}
	s.records[fingerprint] = domain.IdempotencyRecord{
		Fingerprint: fingerprint,
		Status:      domain.ClaimInProgress,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	return true, nil, nil
}

func (s *fakeIdemStore) Find(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok || rec.Expired(time.Now().UTC()) {
		return nil, apperrors.ErrNotFound
	}
	out := rec
	return &out, nil
}

func (s *fakeIdemStore) Finalize(ctx context.Context, fingerprint string, result domain.PaymentResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return apperrors.ErrNotFound
	}
	rec.Status = domain.ClaimCompleted
	rec.Result = &result
	rec.ExpiresAt = time.Now().UTC().Add(ttl)
	s.records[fingerprint] = rec
	return nil
}

func (s *fakeIdemStore) Release(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fingerprint)
	return nil
}

func (s *fakeIdemStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeGateway counts charges and lets tests script the outcome.
type fakeGateway struct {
	mu          sync.Mutex
	chargeCalls int
	refundCalls int
	outcome     portssvc.GatewayStatus
	blockCharge bool // block until the context deadline to simulate a timeout
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Charge(ctx context.Context, req portssvc.GatewayChargeRequest) (*portssvc.GatewayChargeResult, error) {
	g.mu.Lock()
	g.chargeCalls++
	n := g.chargeCalls
	blocked := g.blockCharge
	outcome := g.outcome
	g.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	switch outcome {
	case portssvc.GatewayStatusDeclined:
		return &portssvc.GatewayChargeResult{Status: portssvc.GatewayStatusDeclined, FailureReason: "insufficient funds"}, nil
	default:
		return &portssvc.GatewayChargeResult{
			ExternalReference: fmt.Sprintf("gw_ref_%d", n),
			Status:            portssvc.GatewayStatusSucceeded,
		}, nil
	}
}

func (g *fakeGateway) Refund(ctx context.Context, externalReference string, amount domain.Money) (*portssvc.GatewayRefundResult, error) {
	g.mu.Lock()
	g.refundCalls++
	n := g.refundCalls
	g.mu.Unlock()
	return &portssvc.GatewayRefundResult{
		RefundReference: fmt.Sprintf("rf_ref_%d", n),
		Status:          portssvc.GatewayStatusSucceeded,
	}, nil
}

func (g *fakeGateway) charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.chargeCalls
}

// fakeLedger is an in-memory ledger facade, idempotent on the external
// reference like the real one.
type fakeLedger struct {
	mu      sync.Mutex
	byRef   map[string]*domain.LedgerTransaction
	refunds map[string]*domain.LedgerTransaction // original reference -> refund
	failAll bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		byRef:   make(map[string]*domain.LedgerTransaction),
		refunds: make(map[string]*domain.LedgerTransaction),
	}
}

var _ portssvc.LedgerSvcFacade = (*fakeLedger)(nil)

func (l *fakeLedger) RecordPaymentCaptured(ctx context.Context, externalReference string, net domain.Money, feeRate decimal.Decimal, description, createdBy string) (*domain.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll {
		return nil, fmt.Errorf("%w: storage offline", apperrors.ErrLedgerWrite)
	}
	if existing, ok := l.byRef[externalReference]; ok {
		return existing, nil
	}
	txn := &domain.LedgerTransaction{
		TransactionID:     fmt.Sprintf("txn-%d", len(l.byRef)+1),
		Type:              domain.PaymentReceived,
		ExternalReference: externalReference,
		CurrencyCode:      net.Currency,
		CreatedAt:         time.Now().UTC(),
		CreatedBy:         createdBy,
	}
	l.byRef[externalReference] = txn
	return txn, nil
}

func (l *fakeLedger) RecordRefund(ctx context.Context, originalReference, refundReference string, amount domain.Money, description, createdBy string) (*domain.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.refunds[originalReference]; ok {
		return nil, fmt.Errorf("%w: payment %s", apperrors.ErrDuplicateRefund, originalReference)
	}
	if _, ok := l.byRef[originalReference]; !ok {
		return nil, apperrors.ErrNotFound
	}
	txn := &domain.LedgerTransaction{
		TransactionID:     fmt.Sprintf("txn-refund-%d", len(l.refunds)+1),
		Type:              domain.RefundIssued,
		ExternalReference: refundReference,
		OriginalReference: &originalReference,
		CurrencyCode:      amount.Currency,
	}
	l.refunds[originalReference] = txn
	return txn, nil
}

func (l *fakeLedger) GetTransactionByExternalReference(ctx context.Context, externalReference string) (*domain.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if txn, ok := l.byRef[externalReference]; ok {
		return txn, nil
	}
	return nil, apperrors.ErrNotFound
}

func (l *fakeLedger) FindRefundForPayment(ctx context.Context, originalReference string) (*domain.LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if txn, ok := l.refunds[originalReference]; ok {
		return txn, nil
	}
	return nil, apperrors.ErrNotFound
}

func (l *fakeLedger) RecordTransaction(ctx context.Context, req dto.RecordTransactionRequest) (*domain.LedgerTransaction, error) {
	return nil, fmt.Errorf("not used in payment tests")
}

func (l *fakeLedger) GetTransaction(ctx context.Context, transactionID string) (*domain.LedgerTransaction, error) {
	return nil, apperrors.ErrNotFound
}

func (l *fakeLedger) GetAccountBalance(ctx context.Context, accountID string) (domain.Money, error) {
	return domain.Money{}, apperrors.ErrNotFound
}

func (l *fakeLedger) RecomputeAccountBalance(ctx context.Context, accountID string) (domain.Money, error) {
	return domain.Money{}, apperrors.ErrNotFound
}

func (l *fakeLedger) ListTransactions(ctx context.Context, params dto.ListTransactionsParams) (*dto.ListTransactionsResponse, error) {
	return &dto.ListTransactionsResponse{}, nil
}

func (l *fakeLedger) transactionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byRef)
}

// --- Helpers ---

func testPaymentConfig() services.PaymentConfig {
	return services.PaymentConfig{
		ClaimTTL:          time.Minute,
		ResultTTL:         24 * time.Hour,
		FingerprintWindow: 5 * time.Minute,
		GatewayTimeout:    time.Second,
	}
}

func paymentRequest() domain.PaymentRequest {
	amount, _ := domain.NewMoney(decimal.NewFromInt(100000), "UGX")
	return domain.PaymentRequest{
		UserID:          "user-1",
		ResourceID:      "booking-9",
		Amount:          amount,
		PlatformFeeRate: decimal.RequireFromString("0.10"),
		Method:          "mobile_money",
		Description:     "Consultation booking fee",
	}
}

// --- Tests ---

func TestProcessPayment_Success(t *testing.T) {
	gw := &fakeGateway{}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	result, err := svc.ProcessPayment(context.Background(), paymentRequest())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.PaymentSucceeded, result.Status)
	assert.NotEmpty(t, result.ExternalReference)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, 1, gw.charges())
	assert.Equal(t, 1, ledger.transactionCount())

	// The outcome is cached for retries.
	rec, err := idem.Find(context.Background(), result.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimCompleted, rec.Status)
}

func TestProcessPayment_DuplicateReturnsCachedResult(t *testing.T) {
	gw := &fakeGateway{}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	first, err := svc.ProcessPayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	second, err := svc.ProcessPayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.ExternalReference, second.ExternalReference)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, 1, gw.charges(), "retry must not reach the gateway")
	assert.Equal(t, 1, ledger.transactionCount(), "retry must not create a second transaction")
}

func TestProcessPayment_ConcurrentDuplicatesChargeOnce(t *testing.T) {
	gw := &fakeGateway{}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	const n = 20
	results := make([]*domain.PaymentResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ProcessPayment(context.Background(), paymentRequest())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, gw.charges(), "exactly one gateway charge across all duplicates")
	assert.Equal(t, 1, ledger.transactionCount(), "exactly one ledger transaction across all duplicates")

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		// Every caller sees the same fingerprint; those that lost the race to
		// the winner see either the cached outcome or PENDING, never an error
		// and never a second charge.
		assert.Equal(t, results[0].Fingerprint, results[i].Fingerprint)
		if results[i].Status == domain.PaymentSucceeded {
			assert.Equal(t, results[0].Amount, results[i].Amount)
		} else {
			assert.Equal(t, domain.PaymentPending, results[i].Status)
		}
	}
}

func TestProcessPayment_DeclineReleasesClaim(t *testing.T) {
	gw := &fakeGateway{outcome: portssvc.GatewayStatusDeclined}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	result, err := svc.ProcessPayment(context.Background(), paymentRequest())

	require.NoError(t, err, "a decline is a business outcome, not an error")
	assert.False(t, result.Success)
	assert.Equal(t, domain.PaymentFailed, result.Status)
	assert.Equal(t, "insufficient funds", result.FailureReason)
	assert.Equal(t, 0, ledger.transactionCount(), "a declined payment writes nothing to the ledger")
	assert.Equal(t, 0, idem.len(), "the claim must be released so a later attempt can retry")
}

func TestProcessPayment_TimeoutKeepsClaimAndReturnsPending(t *testing.T) {
	gw := &fakeGateway{blockCharge: true}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	cfg := testPaymentConfig()
	cfg.GatewayTimeout = 20 * time.Millisecond
	svc := services.NewPaymentService(ledger, idem, gw, cfg)

	result, err := svc.ProcessPayment(context.Background(), paymentRequest())

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, result.Status)
	assert.Equal(t, 0, ledger.transactionCount())

	// The claim stays so duplicate retries cannot double-charge while the
	// outcome is unknown; the webhook reconciler will settle it.
	rec, err := idem.Find(context.Background(), result.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimInProgress, rec.Status)
}

func TestProcessPayment_LedgerFailureKeepsClaim(t *testing.T) {
	gw := &fakeGateway{}
	ledger := newFakeLedger()
	ledger.failAll = true
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	_, err := svc.ProcessPayment(context.Background(), paymentRequest())

	require.ErrorIs(t, err, apperrors.ErrLedgerWrite)
	assert.Equal(t, 1, idem.len(), "claim must survive so the retry converges instead of re-charging")
}

func TestProcessPayment_ValidationErrors(t *testing.T) {
	svc := services.NewPaymentService(newFakeLedger(), newFakeIdemStore(), &fakeGateway{}, testPaymentConfig())

	req := paymentRequest()
	req.UserID = ""
	_, err := svc.ProcessPayment(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	req = paymentRequest()
	req.Amount.Amount = decimal.NewFromInt(-5)
	_, err = svc.ProcessPayment(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	req = paymentRequest()
	req.PlatformFeeRate = decimal.RequireFromString("-0.1")
	_, err = svc.ProcessPayment(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRefundPayment_Success(t *testing.T) {
	gw := &fakeGateway{}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	payment, err := svc.ProcessPayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	txn, err := svc.RefundPayment(context.Background(), dto.RefundRequest{
		ExternalReference: payment.ExternalReference,
		Amount:            decimal.NewFromInt(110000),
		Currency:          "UGX",
		Reason:            "Appointment cancelled",
	}, "admin-1")

	require.NoError(t, err)
	assert.Equal(t, domain.RefundIssued, txn.Type)
	require.NotNil(t, txn.OriginalReference)
	assert.Equal(t, payment.ExternalReference, *txn.OriginalReference)
}

func TestRefundPayment_DuplicateRejected(t *testing.T) {
	gw := &fakeGateway{}
	ledger := newFakeLedger()
	idem := newFakeIdemStore()
	svc := services.NewPaymentService(ledger, idem, gw, testPaymentConfig())

	payment, err := svc.ProcessPayment(context.Background(), paymentRequest())
	require.NoError(t, err)

	refundReq := dto.RefundRequest{
		ExternalReference: payment.ExternalReference,
		Amount:            decimal.NewFromInt(110000),
		Currency:          "UGX",
	}

	_, err = svc.RefundPayment(context.Background(), refundReq, "admin-1")
	require.NoError(t, err)

	_, err = svc.RefundPayment(context.Background(), refundReq, "admin-1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRefund)
}

func TestRefundPayment_UnknownPaymentRejected(t *testing.T) {
	svc := services.NewPaymentService(newFakeLedger(), newFakeIdemStore(), &fakeGateway{}, testPaymentConfig())

	_, err := svc.RefundPayment(context.Background(), dto.RefundRequest{
		ExternalReference: "gw_ref_missing",
		Amount:            decimal.NewFromInt(100),
		Currency:          "UGX",
	}, "admin-1")

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
