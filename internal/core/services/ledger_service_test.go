package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/afyapay/payments_engine/internal/apperrors"
	"github.com/afyapay/payments_engine/internal/core/domain"
	portsrepo "github.com/afyapay/payments_engine/internal/core/ports/repositories"
	portssvc "github.com/afyapay/payments_engine/internal/core/ports/services"
	"github.com/afyapay/payments_engine/internal/core/services"
	"github.com/afyapay/payments_engine/internal/dto"
	"github.com/afyapay/payments_engine/internal/events/kafka"
)

// --- Mock LedgerRepository ---
type MockLedgerRepository struct {
	mock.Mock
}

var _ portsrepo.LedgerRepository = (*MockLedgerRepository)(nil)

func (m *MockLedgerRepository) SaveTransaction(ctx context.Context, txn domain.LedgerTransaction, balanceChanges map[string]decimal.Decimal) error {
	args := m.Called(ctx, txn, balanceChanges)
	return args.Error(0)
}

func (m *MockLedgerRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.LedgerTransaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerTransaction), args.Error(1)
}

func (m *MockLedgerRepository) FindTransactionByExternalReference(ctx context.Context, externalReference string) (*domain.LedgerTransaction, error) {
	args := m.Called(ctx, externalReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerTransaction), args.Error(1)
}

func (m *MockLedgerRepository) FindRefundByOriginalReference(ctx context.Context, originalReference string) (*domain.LedgerTransaction, error) {
	args := m.Called(ctx, originalReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerTransaction), args.Error(1)
}

func (m *MockLedgerRepository) FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.LedgerEntry, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LedgerEntry), args.Error(1)
}

func (m *MockLedgerRepository) ListTransactions(ctx context.Context, txnType *domain.TransactionType, limit int, nextToken *string) ([]domain.LedgerTransaction, *string, error) {
	args := m.Called(ctx, txnType, limit, nextToken)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var returnedNextToken *string
	if args.Get(1) != nil {
		tokenVal := args.Get(1).(string)
		returnedNextToken = &tokenVal
	}
	return args.Get(0).([]domain.LedgerTransaction), returnedNextToken, args.Error(2)
}

func (m *MockLedgerRepository) SumEntriesForAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// --- Mock AccountRepository ---
type MockAccountRepository struct {
	mock.Mock
}

var _ portsrepo.AccountRepository = (*MockAccountRepository)(nil)

func (m *MockAccountRepository) SaveAccount(ctx context.Context, account domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Account), args.Error(1)
}

func (m *MockAccountRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

// --- Test Suite Setup ---
type LedgerServiceTestSuite struct {
	suite.Suite
	mockLedgerRepo  *MockLedgerRepository
	mockAccountRepo *MockAccountRepository
	service         portssvc.LedgerSvcFacade
	bankAccount     domain.Account
	salesAccount    domain.Account
	feeAccount      domain.Account
}

func (suite *LedgerServiceTestSuite) SetupTest() {
	suite.mockLedgerRepo = new(MockLedgerRepository)
	suite.mockAccountRepo = new(MockAccountRepository)
	suite.service = services.NewLedgerService(suite.mockLedgerRepo, suite.mockAccountRepo, kafka.NoopPublisher{})

	suite.bankAccount = domain.Account{
		AccountID:    domain.AccountBankCash,
		AccountType:  domain.Asset,
		CurrencyCode: "UGX",
		IsActive:     true,
	}
	suite.salesAccount = domain.Account{
		AccountID:    domain.AccountSalesRevenue,
		AccountType:  domain.Revenue,
		CurrencyCode: "UGX",
		IsActive:     true,
	}
	suite.feeAccount = domain.Account{
		AccountID:    domain.AccountPlatformFeeRevenue,
		AccountType:  domain.Revenue,
		CurrencyCode: "UGX",
		IsActive:     true,
	}
}

func (suite *LedgerServiceTestSuite) allAccounts() map[string]domain.Account {
	return map[string]domain.Account{
		suite.bankAccount.AccountID:  suite.bankAccount,
		suite.salesAccount.AccountID: suite.salesAccount,
		suite.feeAccount.AccountID:   suite.feeAccount,
	}
}

func (suite *LedgerServiceTestSuite) expectNoExistingTransaction(reference string) {
	suite.mockLedgerRepo.On("FindTransactionByExternalReference", mock.Anything, reference).
		Return(nil, apperrors.ErrNotFound).Once()
}

// --- Test Cases ---

func (suite *LedgerServiceTestSuite) TestRecordTransaction_Success() {
	ctx := context.Background()
	req := dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_001",
		Description:       "Test payment",
		CurrencyCode:      "UGX",
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: decimal.NewFromInt(110000)},
			{AccountID: domain.AccountPlatformFeeRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(10000)},
			{AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(100000)},
		},
		CreatedBy: "user-1",
	}

	suite.expectNoExistingTransaction("gw_ref_001")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(suite.allAccounts(), nil).Once()

	var savedChanges map[string]decimal.Decimal
	suite.mockLedgerRepo.On("SaveTransaction", ctx, mock.AnythingOfType("domain.LedgerTransaction"), mock.AnythingOfType("map[string]decimal.Decimal")).
		Run(func(args mock.Arguments) {
			savedChanges = args.Get(2).(map[string]decimal.Decimal)
		}).
		Return(nil).Once()

	txn, err := suite.service.RecordTransaction(ctx, req)

	suite.Require().NoError(err)
	suite.Require().NotNil(txn)
	suite.NotEmpty(txn.TransactionID)
	suite.Equal("gw_ref_001", txn.ExternalReference)
	suite.Len(txn.Entries, 3)

	// Balance changes follow the normal-balance convention: asset debit and
	// revenue credits are all positive.
	suite.True(savedChanges[domain.AccountBankCash].Equal(decimal.NewFromInt(110000)))
	suite.True(savedChanges[domain.AccountPlatformFeeRevenue].Equal(decimal.NewFromInt(10000)))
	suite.True(savedChanges[domain.AccountSalesRevenue].Equal(decimal.NewFromInt(100000)))

	suite.mockLedgerRepo.AssertExpectations(suite.T())
	suite.mockAccountRepo.AssertExpectations(suite.T())
}

func (suite *LedgerServiceTestSuite) TestRecordTransaction_UnbalancedRejectedWithTotals() {
	ctx := context.Background()
	req := dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_002",
		Description:       "Unbalanced",
		CurrencyCode:      "UGX",
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: decimal.NewFromInt(110000)},
			{AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(100000)},
		},
	}

	suite.expectNoExistingTransaction("gw_ref_002")

	_, err := suite.service.RecordTransaction(ctx, req)

	suite.Require().ErrorIs(err, apperrors.ErrUnbalancedTransaction)
	suite.Contains(err.Error(), "110000")
	suite.Contains(err.Error(), "100000")
	suite.mockLedgerRepo.AssertNotCalled(suite.T(), "SaveTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *LedgerServiceTestSuite) TestRecordTransaction_DuplicateReferenceReturnsOriginal() {
	ctx := context.Background()
	original := &domain.LedgerTransaction{
		TransactionID:     "txn-original",
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_003",
	}
	suite.mockLedgerRepo.On("FindTransactionByExternalReference", ctx, "gw_ref_003").
		Return(original, nil).Once()

	txn, err := suite.service.RecordTransaction(ctx, dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_003",
		Description:       "Retry of committed transaction",
		CurrencyCode:      "UGX",
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: decimal.NewFromInt(100)},
			{AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(100)},
		},
	})

	suite.Require().NoError(err)
	suite.Equal("txn-original", txn.TransactionID)
	suite.mockLedgerRepo.AssertNotCalled(suite.T(), "SaveTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *LedgerServiceTestSuite) TestRecordTransaction_LostRaceReturnsWinner() {
	ctx := context.Background()
	winner := &domain.LedgerTransaction{TransactionID: "txn-winner", ExternalReference: "gw_ref_004"}

	suite.expectNoExistingTransaction("gw_ref_004")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(suite.allAccounts(), nil).Once()
	suite.mockLedgerRepo.On("SaveTransaction", ctx, mock.Anything, mock.Anything).
		Return(apperrors.ErrDuplicate).Once()
	suite.mockLedgerRepo.On("FindTransactionByExternalReference", ctx, "gw_ref_004").
		Return(winner, nil).Once()

	txn, err := suite.service.RecordTransaction(ctx, dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_004",
		Description:       "Concurrent commit",
		CurrencyCode:      "UGX",
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: decimal.NewFromInt(100)},
			{AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(100)},
		},
	})

	suite.Require().NoError(err)
	suite.Equal("txn-winner", txn.TransactionID)
}

func (suite *LedgerServiceTestSuite) TestRecordTransaction_InactiveAccountRejected() {
	ctx := context.Background()
	inactive := suite.salesAccount
	inactive.IsActive = false
	accounts := suite.allAccounts()
	accounts[inactive.AccountID] = inactive

	suite.expectNoExistingTransaction("gw_ref_005")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(accounts, nil).Once()

	_, err := suite.service.RecordTransaction(ctx, dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_005",
		Description:       "Inactive account",
		CurrencyCode:      "UGX",
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: decimal.NewFromInt(100)},
			{AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(100)},
		},
	})

	suite.Require().ErrorIs(err, apperrors.ErrValidation)
}

func (suite *LedgerServiceTestSuite) TestRecordTransaction_AccountCurrencyMismatchRejected() {
	ctx := context.Background()
	kesAccount := suite.salesAccount
	kesAccount.CurrencyCode = "KES"
	accounts := suite.allAccounts()
	accounts[kesAccount.AccountID] = kesAccount

	suite.expectNoExistingTransaction("gw_ref_006")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(accounts, nil).Once()

	_, err := suite.service.RecordTransaction(ctx, dto.RecordTransactionRequest{
		Type:              domain.PaymentReceived,
		ExternalReference: "gw_ref_006",
		Description:       "Currency mismatch",
		CurrencyCode:      "UGX",
		Entries: []dto.EntryInput{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: decimal.NewFromInt(100)},
			{AccountID: domain.AccountSalesRevenue, Side: domain.Credit, Amount: decimal.NewFromInt(100)},
		},
	})

	suite.Require().ErrorIs(err, apperrors.ErrCurrencyMismatch)
}

func (suite *LedgerServiceTestSuite) TestRecordPaymentCaptured_AppliesFeeSplitRecipe() {
	ctx := context.Background()
	net, _ := domain.NewMoney(decimal.NewFromInt(100000), "UGX")

	suite.expectNoExistingTransaction("gw_ref_100")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(suite.allAccounts(), nil).Once()

	var saved domain.LedgerTransaction
	suite.mockLedgerRepo.On("SaveTransaction", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(domain.LedgerTransaction)
		}).
		Return(nil).Once()

	txn, err := suite.service.RecordPaymentCaptured(ctx, "gw_ref_100", net, decimal.RequireFromString("0.10"), "Consultation payment", "user-1")

	suite.Require().NoError(err)
	suite.Equal(domain.PaymentReceived, txn.Type)
	suite.Require().Len(saved.Entries, 3)

	byAccount := map[string]domain.LedgerEntry{}
	for _, e := range saved.Entries {
		byAccount[e.AccountID] = e
	}
	suite.Equal(domain.Debit, byAccount[domain.AccountBankCash].Side)
	suite.True(byAccount[domain.AccountBankCash].Amount.Amount.Equal(decimal.NewFromInt(110000)))
	suite.Equal(domain.Credit, byAccount[domain.AccountPlatformFeeRevenue].Side)
	suite.True(byAccount[domain.AccountPlatformFeeRevenue].Amount.Amount.Equal(decimal.NewFromInt(10000)))
	suite.Equal(domain.Credit, byAccount[domain.AccountSalesRevenue].Side)
	suite.True(byAccount[domain.AccountSalesRevenue].Amount.Amount.Equal(decimal.NewFromInt(100000)))
}

func (suite *LedgerServiceTestSuite) TestRecordPaymentCaptured_ZeroFeeOmitsFeeEntry() {
	ctx := context.Background()
	net, _ := domain.NewMoney(decimal.NewFromInt(5000), "UGX")

	suite.expectNoExistingTransaction("gw_ref_101")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(suite.allAccounts(), nil).Once()

	var saved domain.LedgerTransaction
	suite.mockLedgerRepo.On("SaveTransaction", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(domain.LedgerTransaction)
		}).
		Return(nil).Once()

	_, err := suite.service.RecordPaymentCaptured(ctx, "gw_ref_101", net, decimal.Zero, "No-fee payment", "user-1")

	suite.Require().NoError(err)
	suite.Len(saved.Entries, 2)
}

func (suite *LedgerServiceTestSuite) refundOriginal(reference string) *domain.LedgerTransaction {
	gross, _ := domain.NewMoney(decimal.NewFromInt(110000), "UGX")
	return &domain.LedgerTransaction{
		TransactionID:     "txn-pay",
		Type:              domain.PaymentReceived,
		ExternalReference: reference,
		CurrencyCode:      "UGX",
		Entries: []domain.LedgerEntry{
			{AccountID: domain.AccountBankCash, Side: domain.Debit, Amount: gross},
		},
	}
}

func (suite *LedgerServiceTestSuite) TestRecordRefund_MirrorsOriginal() {
	ctx := context.Background()
	amount, _ := domain.NewMoney(decimal.NewFromInt(110000), "UGX")

	suite.mockLedgerRepo.On("FindTransactionByExternalReference", ctx, "gw_ref_200").
		Return(suite.refundOriginal("gw_ref_200"), nil).Once()
	suite.mockLedgerRepo.On("FindRefundByOriginalReference", ctx, "gw_ref_200").
		Return(nil, apperrors.ErrNotFound).Once()
	suite.expectNoExistingTransaction("rf_ref_200")
	suite.mockAccountRepo.On("FindAccountsByIDs", ctx, mock.AnythingOfType("[]string")).
		Return(suite.allAccounts(), nil).Once()

	var saved domain.LedgerTransaction
	var savedChanges map[string]decimal.Decimal
	suite.mockLedgerRepo.On("SaveTransaction", ctx, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			saved = args.Get(1).(domain.LedgerTransaction)
			savedChanges = args.Get(2).(map[string]decimal.Decimal)
		}).
		Return(nil).Once()

	txn, err := suite.service.RecordRefund(ctx, "gw_ref_200", "rf_ref_200", amount, "Customer refund", "admin-1")

	suite.Require().NoError(err)
	suite.Equal(domain.RefundIssued, txn.Type)
	suite.Require().NotNil(txn.OriginalReference)
	suite.Equal("gw_ref_200", *txn.OriginalReference)
	suite.Equal("rf_ref_200", txn.ExternalReference)

	byAccount := map[string]domain.LedgerEntry{}
	for _, e := range saved.Entries {
		byAccount[e.AccountID] = e
	}
	suite.Equal(domain.Debit, byAccount[domain.AccountSalesRevenue].Side)
	suite.Equal(domain.Credit, byAccount[domain.AccountBankCash].Side)

	// The refund reduces both the asset and the revenue balance.
	suite.True(savedChanges[domain.AccountBankCash].Equal(decimal.NewFromInt(-110000)))
	suite.True(savedChanges[domain.AccountSalesRevenue].Equal(decimal.NewFromInt(-110000)))
}

func (suite *LedgerServiceTestSuite) TestRecordRefund_DuplicateRejected() {
	ctx := context.Background()
	amount, _ := domain.NewMoney(decimal.NewFromInt(110000), "UGX")

	suite.mockLedgerRepo.On("FindTransactionByExternalReference", ctx, "gw_ref_201").
		Return(suite.refundOriginal("gw_ref_201"), nil).Once()
	suite.mockLedgerRepo.On("FindRefundByOriginalReference", ctx, "gw_ref_201").
		Return(&domain.LedgerTransaction{TransactionID: "txn-refund"}, nil).Once()

	_, err := suite.service.RecordRefund(ctx, "gw_ref_201", "rf_ref_201", amount, "Second refund", "admin-1")

	suite.Require().ErrorIs(err, apperrors.ErrDuplicateRefund)
	suite.mockLedgerRepo.AssertNotCalled(suite.T(), "SaveTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *LedgerServiceTestSuite) TestRecordRefund_ExceedsOriginalRejected() {
	ctx := context.Background()
	amount, _ := domain.NewMoney(decimal.NewFromInt(200000), "UGX")

	suite.mockLedgerRepo.On("FindTransactionByExternalReference", ctx, "gw_ref_202").
		Return(suite.refundOriginal("gw_ref_202"), nil).Once()
	suite.mockLedgerRepo.On("FindRefundByOriginalReference", ctx, "gw_ref_202").
		Return(nil, apperrors.ErrNotFound).Once()

	_, err := suite.service.RecordRefund(ctx, "gw_ref_202", "rf_ref_202", amount, "Too large", "admin-1")

	suite.Require().ErrorIs(err, services.ErrRefundExceedsGross)
}

func (suite *LedgerServiceTestSuite) TestRecordRefund_UnknownPaymentRejected() {
	ctx := context.Background()
	amount, _ := domain.NewMoney(decimal.NewFromInt(100), "UGX")

	suite.mockLedgerRepo.On("FindTransactionByExternalReference", ctx, "gw_ref_203").
		Return(nil, apperrors.ErrNotFound).Once()

	_, err := suite.service.RecordRefund(ctx, "gw_ref_203", "rf_ref_203", amount, "Unknown", "admin-1")

	suite.Require().ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *LedgerServiceTestSuite) TestRecomputeAccountBalance() {
	ctx := context.Background()
	account := suite.bankAccount
	account.Balance = decimal.NewFromInt(110000)

	suite.mockAccountRepo.On("FindAccountByID", ctx, domain.AccountBankCash).
		Return(&account, nil).Once()
	suite.mockLedgerRepo.On("SumEntriesForAccount", ctx, domain.AccountBankCash).
		Return(decimal.NewFromInt(110000), nil).Once()

	recomputed, err := suite.service.RecomputeAccountBalance(ctx, domain.AccountBankCash)

	suite.Require().NoError(err)
	suite.True(recomputed.Amount.Equal(account.Balance), "recomputed balance must agree with projection")
	suite.Equal("UGX", recomputed.Currency)
}

func (suite *LedgerServiceTestSuite) TestListTransactions_PassesCursorThrough() {
	ctx := context.Background()
	token := "opaque-token"
	returned := []domain.LedgerTransaction{
		{TransactionID: "txn-1", Type: domain.PaymentReceived, CreatedAt: time.Now().UTC()},
	}

	suite.mockLedgerRepo.On("ListTransactions", ctx, (*domain.TransactionType)(nil), 10, &token).
		Return(returned, "next-token", nil).Once()

	resp, err := suite.service.ListTransactions(ctx, dto.ListTransactionsParams{Limit: 10, NextToken: &token})

	suite.Require().NoError(err)
	suite.Len(resp.Transactions, 1)
	suite.Require().NotNil(resp.NextToken)
	suite.Equal("next-token", *resp.NextToken)
}

func TestLedgerServiceTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}
