package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"classbook/internal/db"
	"classbook/internal/logger"
	"classbook/internal/metrics"
	"classbook/internal/wallet"
)

var (
	ErrMembershipNotFound = errors.New("membership not found")
	ErrNoActiveMembership = errors.New("no active membership")
	ErrNoClassesRemaining = errors.New("no classes remaining on membership")
	ErrInvalidValidFrom   = errors.New("valid_from must be RFC3339")
	ErrAlreadyCancelled   = errors.New("membership already cancelled")
)

type WalletDebiter interface {
	Debit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*wallet.Transaction, error)
}

type Service interface {
	Create(ctx context.Context, memberID int, req CreateMembershipRequest) (*Membership, error)
	GetActive(ctx context.Context, memberID int) (*Membership, error)
	ListByMember(ctx context.Context, memberID int) ([]Membership, error)
	Cancel(ctx context.Context, id int) error
	UseClass(ctx context.Context, m *Membership) error
	RefundClass(ctx context.Context, membershipID int) error
}

type service struct {
	repo    Repository
	wallets WalletDebiter
	tx      db.Transactor
	now     func() time.Time
}

func NewService(repo Repository, wallets WalletDebiter, tx db.Transactor) Service {
	return &service{repo: repo, wallets: wallets, tx: tx, now: time.Now}
}

func (s *service) Create(ctx context.Context, memberID int, req CreateMembershipRequest) (*Membership, error) {
	validFrom := s.now()
	if req.ValidFrom != "" {
		t, err := time.Parse(time.RFC3339, req.ValidFrom)
		if err != nil {
			return nil, ErrInvalidValidFrom
		}
		validFrom = t
	}

	m := &Membership{
		MemberID:         memberID,
		PlanName:         req.PlanName,
		ClassesRemaining: req.ClassesRemaining,
		ValidFrom:        validFrom,
		ValidUntil:       validFrom.AddDate(0, 0, req.DurationDays),
		PriceCents:       req.PriceCents,
	}

	var created *Membership
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if req.ChargeWallet && req.PriceCents > 0 {
			if _, err := s.wallets.Debit(ctx, memberID, req.PriceCents, wallet.TxMembershipPurchase, "membership:"+req.PlanName); err != nil {
				return err
			}
		}

		var err error
		created, err = s.repo.Create(ctx, m)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create membership: %w", err)
	}

	metrics.RecordMembership(created.IsMetered())
	logger.Info("membership created", "member_id", memberID, "membership_id", created.ID)
	return created, nil
}

func (s *service) GetActive(ctx context.Context, memberID int) (*Membership, error) {
	return s.repo.GetActiveForMember(ctx, memberID, s.now())
}

func (s *service) ListByMember(ctx context.Context, memberID int) ([]Membership, error) {
	return s.repo.ListByMember(ctx, memberID)
}

func (s *service) Cancel(ctx context.Context, id int) error {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	return s.repo.UpdateStatus(ctx, id, StatusCancelled)
}

// UseClass consumes one class of a metered membership.
func (s *service) UseClass(ctx context.Context, m *Membership) error {
	if !m.IsMetered() {
		return nil
	}
	if *m.ClassesRemaining <= 0 {
		return ErrNoClassesRemaining
	}
	return s.repo.DecrementClasses(ctx, m.ID)
}

func (s *service) RefundClass(ctx context.Context, membershipID int) error {
	if err := s.repo.IncrementClasses(ctx, membershipID); err != nil {
		return fmt.Errorf("refund membership class %d: %w", membershipID, err)
	}
	return nil
}
