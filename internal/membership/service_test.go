package membership

import (
	"context"
	"testing"
	"time"

	"classbook/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, ms *Membership) (*Membership, error) {
	args := m.Called(ctx, ms)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Membership), args.Error(1)
}

func (m *MockRepository) FindByID(ctx context.Context, id int) (*Membership, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Membership), args.Error(1)
}

func (m *MockRepository) GetActiveForMember(ctx context.Context, memberID int, at time.Time) (*Membership, error) {
	args := m.Called(ctx, memberID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Membership), args.Error(1)
}

func (m *MockRepository) ListByMember(ctx context.Context, memberID int) ([]Membership, error) {
	args := m.Called(ctx, memberID)
	return args.Get(0).([]Membership), args.Error(1)
}

func (m *MockRepository) DecrementClasses(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) IncrementClasses(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, id int, status Status) error {
	return m.Called(ctx, id, status).Error(0)
}

type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) Debit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*wallet.Transaction, error) {
	args := m.Called(ctx, memberID, amountCents, txType, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func intPtr(v int) *int { return &v }

func TestService_Create_ChargesWallet(t *testing.T) {
	repo := new(MockRepository)
	wallets := new(MockWallet)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	wallets.On("Debit", mock.Anything, 4, int64(30000), wallet.TxMembershipPurchase, "membership:Gold").
		Return(&wallet.Transaction{ID: 1}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(m *Membership) bool {
		return m.MemberID == 4 && m.ValidFrom.Equal(start) && m.ValidUntil.Equal(start.AddDate(0, 0, 30)) && *m.ClassesRemaining == 8
	})).Return(&Membership{ID: 9, MemberID: 4, ClassesRemaining: intPtr(8)}, nil)

	svc := NewService(repo, wallets, inlineTx{})
	m, err := svc.Create(context.Background(), 4, CreateMembershipRequest{
		PlanName:         "Gold",
		ClassesRemaining: intPtr(8),
		ValidFrom:        start.Format(time.RFC3339),
		DurationDays:     30,
		PriceCents:       30000,
		ChargeWallet:     true,
	})

	assert.NoError(t, err)
	assert.Equal(t, 9, m.ID)
	repo.AssertExpectations(t)
	wallets.AssertExpectations(t)
}

func TestService_Create_InsufficientFunds(t *testing.T) {
	repo := new(MockRepository)
	wallets := new(MockWallet)
	wallets.On("Debit", mock.Anything, 4, int64(30000), wallet.TxMembershipPurchase, mock.Anything).
		Return(nil, wallet.ErrInsufficientBalance)

	svc := NewService(repo, wallets, inlineTx{})
	_, err := svc.Create(context.Background(), 4, CreateMembershipRequest{PlanName: "Gold", DurationDays: 30, PriceCents: 30000, ChargeWallet: true})

	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestService_Create_BadValidFrom(t *testing.T) {
	svc := NewService(new(MockRepository), new(MockWallet), inlineTx{})
	_, err := svc.Create(context.Background(), 4, CreateMembershipRequest{PlanName: "Gold", DurationDays: 30, ValidFrom: "tomorrow"})
	assert.ErrorIs(t, err, ErrInvalidValidFrom)
}

func TestService_UseClass(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockWallet), inlineTx{})
	ctx := context.Background()

	assert.NoError(t, svc.UseClass(ctx, &Membership{ID: 1}))
	repo.AssertNotCalled(t, "DecrementClasses", mock.Anything, mock.Anything)

	assert.ErrorIs(t, svc.UseClass(ctx, &Membership{ID: 2, ClassesRemaining: intPtr(0)}), ErrNoClassesRemaining)

	repo.On("DecrementClasses", mock.Anything, 3).Return(nil)
	assert.NoError(t, svc.UseClass(ctx, &Membership{ID: 3, ClassesRemaining: intPtr(2)}))
	repo.AssertExpectations(t)
}

func TestService_Cancel(t *testing.T) {
	repo := new(MockRepository)
	repo.On("FindByID", mock.Anything, 1).Return(&Membership{ID: 1, Status: StatusActive}, nil)
	repo.On("UpdateStatus", mock.Anything, 1, StatusCancelled).Return(nil)
	repo.On("FindByID", mock.Anything, 2).Return(&Membership{ID: 2, Status: StatusCancelled}, nil)

	svc := NewService(repo, new(MockWallet), inlineTx{})

	assert.NoError(t, svc.Cancel(context.Background(), 1))
	assert.ErrorIs(t, svc.Cancel(context.Background(), 2), ErrAlreadyCancelled)
}

func TestMembership_InForce(t *testing.T) {
	now := time.Now()
	m := &Membership{Status: StatusActive, ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour)}

	assert.True(t, m.InForce(now))
	assert.False(t, m.InForce(now.Add(2*time.Hour)))

	m.Status = StatusExpired
	assert.False(t, m.InForce(now))
}
