package classpack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/db"
	"classbook/internal/gymclass"
	"classbook/internal/logger"
	"classbook/internal/metrics"
	"classbook/internal/wallet"
)

var (
	ErrPackNotFound          = errors.New("class pack not found")
	ErrPackInactive          = errors.New("class pack is not active")
	ErrPackNotInactive       = errors.New("class pack must be inactive to delete")
	ErrPackHasActiveBalances = errors.New("class pack has active balances")
	ErrInvalidAllocations    = errors.New("category allocations must be distinct and sum to class_count")
	ErrBalanceNotFound       = errors.New("class pack balance not found")
	ErrBalanceNotUsable      = errors.New("class pack balance is not active or has expired")
	ErrPackNotValidForClass  = errors.New("class pack is not valid for this class")
	ErrNoCreditsRemaining    = errors.New("no credits remaining")
	ErrNoCategoryCredits     = errors.New("no credits remaining for the class category")
	ErrBalanceCancelled      = errors.New("class pack balance already cancelled")
)

type WalletDebiter interface {
	Debit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*wallet.Transaction, error)
}

type ClassFinder interface {
	GetClass(ctx context.Context, id int) (*gymclass.GymClass, error)
}

type Service interface {
	CreatePack(ctx context.Context, req CreatePackRequest) (*ClassPack, error)
	GetPack(ctx context.Context, id int) (*ClassPack, error)
	ListPacks(ctx context.Context, activeOnly bool) ([]ClassPack, error)
	Activate(ctx context.Context, id int) (*ClassPack, error)
	Deactivate(ctx context.Context, id int) (*ClassPack, error)
	DeletePack(ctx context.Context, id int) error

	Grant(ctx context.Context, memberID, packID int) (*Balance, error)
	Purchase(ctx context.Context, memberID, packID int) (*Balance, error)
	CancelBalance(ctx context.Context, id int) (*Balance, error)
	ListMemberBalances(ctx context.Context, memberID int) ([]Balance, error)
	ValidBalancesForClass(ctx context.Context, memberID int, class *gymclass.GymClass) ([]Balance, error)
	ValidBalancesForClassID(ctx context.Context, memberID, classID int) ([]Balance, error)
	UseCredit(ctx context.Context, balanceID, memberID int, class *gymclass.GymClass) (*CreditUse, error)
	RefundCredit(ctx context.Context, use CreditUse) error
	ExpireBalances(ctx context.Context) (int64, error)
}

type service struct {
	repo    Repository
	classes ClassFinder
	wallets WalletDebiter
	tx      db.Transactor
	now     func() time.Time
}

func NewService(repo Repository, classes ClassFinder, wallets WalletDebiter, tx db.Transactor) Service {
	return &service{repo: repo, classes: classes, wallets: wallets, tx: tx, now: time.Now}
}

func (s *service) CreatePack(ctx context.Context, req CreatePackRequest) (*ClassPack, error) {
	p := &ClassPack{
		Name:           req.Name,
		Description:    req.Description,
		ClassCount:     req.ClassCount,
		PriceCents:     req.PriceCents,
		TaxRateBP:      req.TaxRateBP,
		ValidityDays:   req.ValidityDays,
		ValidClassIDs:  req.ValidClassIDs,
		AllocationMode: req.AllocationMode,
		Status:         PackActive,
		SortOrder:      req.SortOrder,
	}
	if p.AllocationMode == "" {
		p.AllocationMode = AllocationFlat
	}
	if p.ValidClassIDs == nil {
		p.ValidClassIDs = []int64{}
	}

	if p.AllocationMode == AllocationPerCategory {
		if err := validateAllocations(req.Allocations, req.ClassCount); err != nil {
			return nil, err
		}
	}

	var created *ClassPack
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreatePack(ctx, p)
		if err != nil {
			return fmt.Errorf("create class pack: %w", err)
		}

		if p.AllocationMode != AllocationPerCategory {
			return nil
		}
		for _, a := range req.Allocations {
			alloc := Allocation{ClassPackID: created.ID, CategoryID: a.CategoryID, CreditCount: a.CreditCount}
			if err := s.repo.CreateAllocation(ctx, &alloc); err != nil {
				return fmt.Errorf("create allocation: %w", err)
			}
			created.Allocations = append(created.Allocations, alloc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("class pack created", "class_pack_id", created.ID, "mode", created.AllocationMode)
	return created, nil
}

func validateAllocations(allocs []AllocationRequest, classCount int) error {
	if len(allocs) == 0 {
		return ErrInvalidAllocations
	}
	seen := make(map[int]bool, len(allocs))
	sum := 0
	for _, a := range allocs {
		if seen[a.CategoryID] || a.CreditCount <= 0 {
			return ErrInvalidAllocations
		}
		seen[a.CategoryID] = true
		sum += a.CreditCount
	}
	if sum != classCount {
		return ErrInvalidAllocations
	}
	return nil
}

func (s *service) GetPack(ctx context.Context, id int) (*ClassPack, error) {
	p, err := s.repo.GetPack(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.AllocationMode == AllocationPerCategory {
		p.Allocations, err = s.repo.ListAllocations(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *service) ListPacks(ctx context.Context, activeOnly bool) ([]ClassPack, error) {
	return s.repo.ListPacks(ctx, activeOnly)
}

func (s *service) Activate(ctx context.Context, id int) (*ClassPack, error) {
	return s.setStatus(ctx, id, PackActive)
}

func (s *service) Deactivate(ctx context.Context, id int) (*ClassPack, error) {
	return s.setStatus(ctx, id, PackInactive)
}

func (s *service) setStatus(ctx context.Context, id int, status PackStatus) (*ClassPack, error) {
	if err := s.repo.UpdatePackStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.GetPack(ctx, id)
}

func (s *service) DeletePack(ctx context.Context, id int) error {
	p, err := s.repo.GetPack(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != PackInactive {
		return ErrPackNotInactive
	}

	n, err := s.repo.CountActiveBalances(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrPackHasActiveBalances
	}

	return s.repo.DeletePack(ctx, id)
}

// Grant gives a member the pack's credits without charging them.
func (s *service) Grant(ctx context.Context, memberID, packID int) (*Balance, error) {
	var out *Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.GetPack(ctx, packID)
		if err != nil {
			return err
		}
		out, err = s.createBalance(ctx, memberID, p, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("class pack granted", "member_id", memberID, "class_pack_id", packID, "balance_id", out.ID)
	return out, nil
}

// Purchase charges price plus tax to the member's wallet and creates the
// balance in the same transaction.
func (s *service) Purchase(ctx context.Context, memberID, packID int) (*Balance, error) {
	var out *Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.GetPack(ctx, packID)
		if err != nil {
			return err
		}
		if p.Status != PackActive {
			return ErrPackInactive
		}

		total := p.TotalPrice()
		if total > 0 {
			ref := fmt.Sprintf("class_pack:%d", p.ID)
			if _, err := s.wallets.Debit(ctx, memberID, total, wallet.TxClassPackPurchase, ref); err != nil {
				return err
			}
		}

		out, err = s.createBalance(ctx, memberID, p, total)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("class pack purchased", "member_id", memberID, "class_pack_id", packID, "paid_cents", out.PricePaidCents)
	return out, nil
}

func (s *service) createBalance(ctx context.Context, memberID int, p *ClassPack, paid int64) (*Balance, error) {
	b, err := s.repo.CreateBalance(ctx, &Balance{
		MemberID:         memberID,
		ClassPackID:      p.ID,
		ClassesPurchased: p.ClassCount,
		Status:           BalanceActive,
		PricePaidCents:   paid,
		ExpiresAt:        s.now().AddDate(0, 0, p.ValidityDays),
	})
	if err != nil {
		return nil, fmt.Errorf("create balance: %w", err)
	}

	for _, a := range p.Allocations {
		cb := CategoryBalance{BalanceID: b.ID, CategoryID: a.CategoryID, CreditsAllocated: a.CreditCount}
		if err := s.repo.CreateCategoryBalance(ctx, &cb); err != nil {
			return nil, fmt.Errorf("create category balance: %w", err)
		}
		b.Categories = append(b.Categories, cb)
	}
	return b, nil
}

func (s *service) CancelBalance(ctx context.Context, id int) (*Balance, error) {
	var b *Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.repo.LockBalance(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == BalanceCancelled {
			return ErrBalanceCancelled
		}
		b.Status = BalanceCancelled
		return s.repo.UpdateBalanceUsage(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *service) ListMemberBalances(ctx context.Context, memberID int) ([]Balance, error) {
	list, err := s.repo.ListBalancesByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return list, s.attachCategories(ctx, list)
}

func (s *service) attachCategories(ctx context.Context, list []Balance) error {
	for i := range list {
		cats, err := s.repo.ListCategoryBalances(ctx, list[i].ID)
		if err != nil {
			return err
		}
		if len(cats) > 0 {
			list[i].Categories = cats
		}
	}
	return nil
}

func (s *service) ValidBalancesForClassID(ctx context.Context, memberID, classID int) ([]Balance, error) {
	g, err := s.classes.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	return s.ValidBalancesForClass(ctx, memberID, g)
}

// ValidBalancesForClass returns the member's usable balances whose pack
// covers the class. Per-category packs also need credits left in the class
// category.
func (s *service) ValidBalancesForClass(ctx context.Context, memberID int, class *gymclass.GymClass) ([]Balance, error) {
	candidates, err := s.repo.ListUsableBalances(ctx, memberID, s.now())
	if err != nil {
		return nil, err
	}

	packs := map[int]*ClassPack{}
	out := []Balance{}
	for _, b := range candidates {
		p, ok := packs[b.ClassPackID]
		if !ok {
			p, err = s.repo.GetPack(ctx, b.ClassPackID)
			if err != nil {
				return nil, err
			}
			packs[b.ClassPackID] = p
		}

		if !p.ValidForClass(class.ID) {
			continue
		}

		if p.AllocationMode == AllocationPerCategory {
			if class.CategoryID == nil {
				continue
			}
			cats, err := s.repo.ListCategoryBalances(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			if !hasCategoryCredit(cats, *class.CategoryID) {
				continue
			}
			b.Categories = cats
		}

		out = append(out, b)
	}
	return out, nil
}

func hasCategoryCredit(cats []CategoryBalance, categoryID int) bool {
	for _, c := range cats {
		if c.CategoryID == categoryID && c.Remaining() > 0 {
			return true
		}
	}
	return false
}

// UseCredit takes one credit from the balance for a booking of class.
// It must run inside the booking transaction.
func (s *service) UseCredit(ctx context.Context, balanceID, memberID int, class *gymclass.GymClass) (*CreditUse, error) {
	var use *CreditUse
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBalance(ctx, balanceID)
		if err != nil {
			return err
		}
		if b.MemberID != memberID {
			return ErrBalanceNotFound
		}
		if !b.UsableAt(s.now()) {
			if b.Status == BalanceActive && b.Remaining() <= 0 {
				return ErrNoCreditsRemaining
			}
			return ErrBalanceNotUsable
		}

		p, err := s.repo.GetPack(ctx, b.ClassPackID)
		if err != nil {
			return err
		}
		if !p.ValidForClass(class.ID) {
			return ErrPackNotValidForClass
		}

		use = &CreditUse{BalanceID: b.ID}

		if p.AllocationMode == AllocationPerCategory {
			if class.CategoryID == nil {
				return ErrPackNotValidForClass
			}
			cb, err := s.repo.LockCategoryBalance(ctx, b.ID, *class.CategoryID)
			if err != nil {
				return err
			}
			if cb.Remaining() <= 0 {
				return ErrNoCategoryCredits
			}
			cb.CreditsUsed++
			if err := s.repo.UpdateCategoryUsage(ctx, cb); err != nil {
				return err
			}
			id := cb.ID
			use.CategoryBalanceID = &id
		}

		if err := b.Use(); err != nil {
			return err
		}
		return s.repo.UpdateBalanceUsage(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPackCreditUsed()
	return use, nil
}

// RefundCredit gives back a credit taken by UseCredit. Rows are locked in
// the same order as UseCredit: balance first, then category.
func (s *service) RefundCredit(ctx context.Context, use CreditUse) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBalance(ctx, use.BalanceID)
		if err != nil {
			return err
		}

		if use.CategoryBalanceID != nil {
			cb, err := s.repo.LockCategoryBalanceByID(ctx, *use.CategoryBalanceID)
			if err != nil {
				return err
			}
			if cb.CreditsUsed > 0 {
				cb.CreditsUsed--
			}
			if err := s.repo.UpdateCategoryUsage(ctx, cb); err != nil {
				return err
			}
		}

		b.Refund()
		return s.repo.UpdateBalanceUsage(ctx, b)
	})
	if err != nil {
		return err
	}

	metrics.RecordPackCreditRefunded()
	return nil
}

func (s *service) ExpireBalances(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireBalances(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire balances: %w", err)
	}
	if n > 0 {
		logger.Info("class pack balances expired", "count", n)
	}
	return n, nil
}
