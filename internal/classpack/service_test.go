package classpack

import (
	"context"
	"testing"
	"time"

	"classbook/internal/gymclass"
	"classbook/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreatePack(ctx context.Context, p *ClassPack) (*ClassPack, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ClassPack), args.Error(1)
}

func (m *MockRepository) CreateAllocation(ctx context.Context, a *Allocation) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockRepository) GetPack(ctx context.Context, id int) (*ClassPack, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ClassPack), args.Error(1)
}

func (m *MockRepository) ListPacks(ctx context.Context, activeOnly bool) ([]ClassPack, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]ClassPack), args.Error(1)
}

func (m *MockRepository) ListAllocations(ctx context.Context, packID int) ([]Allocation, error) {
	args := m.Called(ctx, packID)
	return args.Get(0).([]Allocation), args.Error(1)
}

func (m *MockRepository) UpdatePackStatus(ctx context.Context, id int, status PackStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockRepository) DeletePack(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) CountActiveBalances(ctx context.Context, packID int) (int, error) {
	args := m.Called(ctx, packID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CreateBalance(ctx context.Context, b *Balance) (*Balance, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Balance), args.Error(1)
}

func (m *MockRepository) CreateCategoryBalance(ctx context.Context, c *CategoryBalance) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockRepository) GetBalance(ctx context.Context, id int) (*Balance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Balance), args.Error(1)
}

func (m *MockRepository) LockBalance(ctx context.Context, id int) (*Balance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Balance), args.Error(1)
}

func (m *MockRepository) ListBalancesByMember(ctx context.Context, memberID int) ([]Balance, error) {
	args := m.Called(ctx, memberID)
	return args.Get(0).([]Balance), args.Error(1)
}

func (m *MockRepository) ListUsableBalances(ctx context.Context, memberID int, at time.Time) ([]Balance, error) {
	args := m.Called(ctx, memberID, at)
	return args.Get(0).([]Balance), args.Error(1)
}

func (m *MockRepository) ListCategoryBalances(ctx context.Context, balanceID int) ([]CategoryBalance, error) {
	args := m.Called(ctx, balanceID)
	return args.Get(0).([]CategoryBalance), args.Error(1)
}

func (m *MockRepository) LockCategoryBalance(ctx context.Context, balanceID, categoryID int) (*CategoryBalance, error) {
	args := m.Called(ctx, balanceID, categoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CategoryBalance), args.Error(1)
}

func (m *MockRepository) LockCategoryBalanceByID(ctx context.Context, id int) (*CategoryBalance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CategoryBalance), args.Error(1)
}

func (m *MockRepository) UpdateBalanceUsage(ctx context.Context, b *Balance) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockRepository) UpdateCategoryUsage(ctx context.Context, c *CategoryBalance) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockRepository) ExpireBalances(ctx context.Context, at time.Time) (int64, error) {
	args := m.Called(ctx, at)
	return args.Get(0).(int64), args.Error(1)
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

type MockClasses struct {
	mock.Mock
}

func (m *MockClasses) GetClass(ctx context.Context, id int) (*gymclass.GymClass, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gymclass.GymClass), args.Error(1)
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestService(repo *MockRepository, wallets *MockWallet) *service {
	svc := NewService(repo, new(MockClasses), wallets, inlineTx{}).(*service)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func intPtr(v int) *int { return &v }

func TestService_CreatePack_PerCategoryValidation(t *testing.T) {
	tests := []struct {
		name   string
		allocs []AllocationRequest
	}{
		{"empty", nil},
		{"sum mismatch", []AllocationRequest{{CategoryID: 1, CreditCount: 3}, {CategoryID: 2, CreditCount: 3}}},
		{"duplicate category", []AllocationRequest{{CategoryID: 1, CreditCount: 5}, {CategoryID: 1, CreditCount: 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := newTestService(repo, new(MockWallet))

			_, err := svc.CreatePack(context.Background(), CreatePackRequest{
				Name: "Mixed 10", ClassCount: 10, ValidityDays: 60,
				AllocationMode: AllocationPerCategory, Allocations: tt.allocs,
			})
			assert.ErrorIs(t, err, ErrInvalidAllocations)
			repo.AssertNotCalled(t, "CreatePack", mock.Anything, mock.Anything)
		})
	}
}

func TestService_CreatePack_PerCategory(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("CreatePack", mock.Anything, mock.MatchedBy(func(p *ClassPack) bool {
		return p.AllocationMode == AllocationPerCategory && p.Status == PackActive && p.ValidClassIDs != nil
	})).Return(&ClassPack{ID: 4, AllocationMode: AllocationPerCategory}, nil)
	repo.On("CreateAllocation", mock.Anything, mock.AnythingOfType("*classpack.Allocation")).Return(nil).Twice()

	p, err := svc.CreatePack(context.Background(), CreatePackRequest{
		Name: "Mixed 10", ClassCount: 10, ValidityDays: 60, AllocationMode: AllocationPerCategory,
		Allocations: []AllocationRequest{{CategoryID: 1, CreditCount: 6}, {CategoryID: 2, CreditCount: 4}},
	})
	require.NoError(t, err)
	assert.Len(t, p.Allocations, 2)
	repo.AssertExpectations(t)
}

func TestService_Purchase_DebitsWallet(t *testing.T) {
	repo := new(MockRepository)
	wallets := new(MockWallet)
	svc := newTestService(repo, wallets)

	repo.On("GetPack", mock.Anything, 2).Return(&ClassPack{
		ID: 2, ClassCount: 10, PriceCents: 10000, TaxRateBP: 1500, ValidityDays: 30,
		Status: PackActive, AllocationMode: AllocationFlat,
	}, nil)
	wallets.On("Debit", mock.Anything, 8, int64(11500), wallet.TxClassPackPurchase, "class_pack:2").
		Return(&wallet.Transaction{ID: 1}, nil)
	repo.On("CreateBalance", mock.Anything, mock.MatchedBy(func(b *Balance) bool {
		return b.MemberID == 8 && b.ClassesPurchased == 10 && b.PricePaidCents == 11500 &&
			b.ExpiresAt.Equal(fixedNow.AddDate(0, 0, 30))
	})).Return(&Balance{ID: 20, MemberID: 8, PricePaidCents: 11500}, nil)

	b, err := svc.Purchase(context.Background(), 8, 2)
	require.NoError(t, err)
	assert.Equal(t, 20, b.ID)
	wallets.AssertExpectations(t)
}

func TestService_Purchase_InsufficientFunds(t *testing.T) {
	repo := new(MockRepository)
	wallets := new(MockWallet)
	svc := newTestService(repo, wallets)

	repo.On("GetPack", mock.Anything, 2).Return(&ClassPack{ID: 2, ClassCount: 5, PriceCents: 5000, Status: PackActive}, nil)
	wallets.On("Debit", mock.Anything, 8, int64(5000), mock.Anything, mock.Anything).Return(nil, wallet.ErrInsufficientBalance)

	_, err := svc.Purchase(context.Background(), 8, 2)
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	repo.AssertNotCalled(t, "CreateBalance", mock.Anything, mock.Anything)
}

func TestService_Purchase_InactivePack(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("GetPack", mock.Anything, 2).Return(&ClassPack{ID: 2, Status: PackInactive}, nil)

	_, err := svc.Purchase(context.Background(), 8, 2)
	assert.ErrorIs(t, err, ErrPackInactive)
}

func TestService_Grant_CreatesCategoryBalances(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("GetPack", mock.Anything, 3).Return(&ClassPack{ID: 3, ClassCount: 4, ValidityDays: 10, AllocationMode: AllocationPerCategory}, nil)
	repo.On("ListAllocations", mock.Anything, 3).Return([]Allocation{{CategoryID: 1, CreditCount: 2}, {CategoryID: 2, CreditCount: 2}}, nil)
	repo.On("CreateBalance", mock.Anything, mock.Anything).Return(&Balance{ID: 9}, nil)
	repo.On("CreateCategoryBalance", mock.Anything, mock.MatchedBy(func(c *CategoryBalance) bool {
		return c.BalanceID == 9 && c.CreditsAllocated == 2
	})).Return(nil).Twice()

	b, err := svc.Grant(context.Background(), 8, 3)
	require.NoError(t, err)
	assert.Len(t, b.Categories, 2)
	assert.Equal(t, int64(0), b.PricePaidCents)
}

func TestService_UseCredit_Flat(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("LockBalance", mock.Anything, 5).Return(&Balance{
		ID: 5, MemberID: 8, ClassPackID: 2, ClassesPurchased: 1, Status: BalanceActive, ExpiresAt: fixedNow.Add(time.Hour),
	}, nil)
	repo.On("GetPack", mock.Anything, 2).Return(&ClassPack{ID: 2, AllocationMode: AllocationFlat}, nil)
	repo.On("UpdateBalanceUsage", mock.Anything, mock.MatchedBy(func(b *Balance) bool {
		return b.ClassesUsed == 1 && b.Status == BalanceDepleted
	})).Return(nil)

	use, err := svc.UseCredit(context.Background(), 5, 8, &gymclass.GymClass{ID: 11})
	require.NoError(t, err)
	assert.Equal(t, 5, use.BalanceID)
	assert.Nil(t, use.CategoryBalanceID)
}

func TestService_UseCredit_PerCategory(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("LockBalance", mock.Anything, 5).Return(&Balance{
		ID: 5, MemberID: 8, ClassPackID: 2, ClassesPurchased: 4, Status: BalanceActive, ExpiresAt: fixedNow.Add(time.Hour),
	}, nil)
	repo.On("GetPack", mock.Anything, 2).Return(&ClassPack{ID: 2, AllocationMode: AllocationPerCategory}, nil)
	repo.On("LockCategoryBalance", mock.Anything, 5, 3).Return(&CategoryBalance{ID: 70, BalanceID: 5, CategoryID: 3, CreditsAllocated: 2}, nil)
	repo.On("UpdateCategoryUsage", mock.Anything, mock.MatchedBy(func(c *CategoryBalance) bool { return c.CreditsUsed == 1 })).Return(nil)
	repo.On("UpdateBalanceUsage", mock.Anything, mock.Anything).Return(nil)

	use, err := svc.UseCredit(context.Background(), 5, 8, &gymclass.GymClass{ID: 11, CategoryID: intPtr(3)})
	require.NoError(t, err)
	require.NotNil(t, use.CategoryBalanceID)
	assert.Equal(t, 70, *use.CategoryBalanceID)
}

func TestService_UseCredit_Rejections(t *testing.T) {
	active := func() *Balance {
		return &Balance{ID: 5, MemberID: 8, ClassPackID: 2, ClassesPurchased: 3, Status: BalanceActive, ExpiresAt: fixedNow.Add(time.Hour)}
	}

	tests := []struct {
		name    string
		balance *Balance
		pack    *ClassPack
		wantErr error
	}{
		{"other member", &Balance{ID: 5, MemberID: 99}, nil, ErrBalanceNotFound},
		{"expired", &Balance{ID: 5, MemberID: 8, ClassesPurchased: 3, Status: BalanceActive, ExpiresAt: fixedNow.Add(-time.Hour)}, nil, ErrBalanceNotUsable},
		{"depleted", &Balance{ID: 5, MemberID: 8, ClassesPurchased: 3, ClassesUsed: 3, Status: BalanceDepleted, ExpiresAt: fixedNow.Add(time.Hour)}, nil, ErrBalanceNotUsable},
		{"wrong class", active(), &ClassPack{ID: 2, ValidClassIDs: []int64{12}}, ErrPackNotValidForClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := newTestService(repo, new(MockWallet))

			repo.On("LockBalance", mock.Anything, 5).Return(tt.balance, nil)
			if tt.pack != nil {
				repo.On("GetPack", mock.Anything, 2).Return(tt.pack, nil)
			}

			_, err := svc.UseCredit(context.Background(), 5, 8, &gymclass.GymClass{ID: 11})
			assert.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "UpdateBalanceUsage", mock.Anything, mock.Anything)
		})
	}
}

func TestService_RefundCredit_ReactivatesDepleted(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("LockCategoryBalanceByID", mock.Anything, 70).Return(&CategoryBalance{ID: 70, CreditsAllocated: 2, CreditsUsed: 2}, nil)
	repo.On("UpdateCategoryUsage", mock.Anything, mock.MatchedBy(func(c *CategoryBalance) bool { return c.CreditsUsed == 1 })).Return(nil)
	repo.On("LockBalance", mock.Anything, 5).Return(&Balance{ID: 5, ClassesPurchased: 2, ClassesUsed: 2, Status: BalanceDepleted}, nil)
	repo.On("UpdateBalanceUsage", mock.Anything, mock.MatchedBy(func(b *Balance) bool {
		return b.ClassesUsed == 1 && b.Status == BalanceActive
	})).Return(nil)

	err := svc.RefundCredit(context.Background(), CreditUse{BalanceID: 5, CategoryBalanceID: intPtr(70)})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_CreditLocksBalanceBeforeCategory(t *testing.T) {
	var locks []string
	record := func(name string) func(mock.Arguments) {
		return func(mock.Arguments) { locks = append(locks, name) }
	}

	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))
	categoryID := 3
	class := &gymclass.GymClass{ID: 4, CategoryID: &categoryID}

	repo.On("LockBalance", mock.Anything, 5).Run(record("balance")).Return(&Balance{
		ID: 5, MemberID: 8, ClassPackID: 10, ClassesPurchased: 4, ClassesUsed: 1,
		Status: BalanceActive, ExpiresAt: fixedNow.Add(24 * time.Hour),
	}, nil)
	repo.On("GetPack", mock.Anything, 10).Return(&ClassPack{ID: 10, AllocationMode: AllocationPerCategory}, nil)
	repo.On("LockCategoryBalance", mock.Anything, 5, 3).Run(record("category")).
		Return(&CategoryBalance{ID: 70, BalanceID: 5, CategoryID: 3, CreditsAllocated: 2}, nil)
	repo.On("LockCategoryBalanceByID", mock.Anything, 70).Run(record("category")).
		Return(&CategoryBalance{ID: 70, BalanceID: 5, CategoryID: 3, CreditsAllocated: 2, CreditsUsed: 1}, nil)
	repo.On("UpdateCategoryUsage", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateBalanceUsage", mock.Anything, mock.Anything).Return(nil)

	use, err := svc.UseCredit(context.Background(), 5, 8, class)
	require.NoError(t, err)
	require.NoError(t, svc.RefundCredit(context.Background(), *use))

	assert.Equal(t, []string{"balance", "category", "balance", "category"}, locks)
}

func TestService_ValidBalancesForClass(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("ListUsableBalances", mock.Anything, 8, fixedNow).Return([]Balance{
		{ID: 1, ClassPackID: 10},
		{ID: 2, ClassPackID: 11},
		{ID: 3, ClassPackID: 12},
	}, nil)
	repo.On("GetPack", mock.Anything, 10).Return(&ClassPack{ID: 10, AllocationMode: AllocationFlat}, nil)
	repo.On("GetPack", mock.Anything, 11).Return(&ClassPack{ID: 11, AllocationMode: AllocationFlat, ValidClassIDs: []int64{99}}, nil)
	repo.On("GetPack", mock.Anything, 12).Return(&ClassPack{ID: 12, AllocationMode: AllocationPerCategory}, nil)
	repo.On("ListCategoryBalances", mock.Anything, 3).Return([]CategoryBalance{{CategoryID: 4, CreditsAllocated: 1, CreditsUsed: 1}}, nil)

	list, err := svc.ValidBalancesForClass(context.Background(), 8, &gymclass.GymClass{ID: 11, CategoryID: intPtr(4)})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].ID)
}

func TestService_DeletePack(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("GetPack", mock.Anything, 1).Return(&ClassPack{ID: 1, Status: PackActive}, nil).Once()
	assert.ErrorIs(t, svc.DeletePack(context.Background(), 1), ErrPackNotInactive)

	repo.On("GetPack", mock.Anything, 1).Return(&ClassPack{ID: 1, Status: PackInactive}, nil)
	repo.On("CountActiveBalances", mock.Anything, 1).Return(2, nil).Once()
	assert.ErrorIs(t, svc.DeletePack(context.Background(), 1), ErrPackHasActiveBalances)

	repo.On("CountActiveBalances", mock.Anything, 1).Return(0, nil).Once()
	repo.On("DeletePack", mock.Anything, 1).Return(nil).Once()
	assert.NoError(t, svc.DeletePack(context.Background(), 1))
}

func TestService_ExpireBalances(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockWallet))

	repo.On("ExpireBalances", mock.Anything, fixedNow).Return(int64(3), nil)

	n, err := svc.ExpireBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
