package booking

import (
	"context"
	"errors"
	"fmt"

	"classbook/internal/classpack"
	"classbook/internal/gymclass"
	"classbook/internal/membership"
	"classbook/internal/wallet"
)

type MembershipSource interface {
	GetActive(ctx context.Context, memberID int) (*membership.Membership, error)
	UseClass(ctx context.Context, m *membership.Membership) error
	RefundClass(ctx context.Context, membershipID int) error
}

type PackSource interface {
	ValidBalancesForClass(ctx context.Context, memberID int, class *gymclass.GymClass) ([]classpack.Balance, error)
	UseCredit(ctx context.Context, balanceID, memberID int, class *gymclass.GymClass) (*classpack.CreditUse, error)
	RefundCredit(ctx context.Context, use classpack.CreditUse) error
}

type WalletSource interface {
	Debit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*wallet.Transaction, error)
	Credit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*wallet.Transaction, error)
}

// Charge is what a debit took, recorded on the booking so it can be
// reversed.
type Charge struct {
	Source             PaymentSource
	MembershipID       *int
	ClassPackBalanceID *int
	CategoryBalanceID  *int
	PaidAmountCents    int64
}

type ChargeRequest struct {
	MemberID           int
	SessionID          int
	Class              *gymclass.GymClass
	Source             PaymentSource
	ClassPackBalanceID *int
	Staff              bool
}

// Resolver validates a payment source for a booking and performs its single
// debit.
type Resolver struct {
	memberships MembershipSource
	packs       PackSource
	wallets     WalletSource
}

func NewResolver(memberships MembershipSource, packs PackSource, wallets WalletSource) *Resolver {
	return &Resolver{memberships: memberships, packs: packs, wallets: wallets}
}

func (r *Resolver) Options(ctx context.Context, memberID int, session *gymclass.Session, class *gymclass.GymClass) (*PaymentOptions, error) {
	opts := &PaymentOptions{
		SessionID:    session.ID,
		PricingModel: string(class.PricingModel),
		ClassPacks:   []classpack.Balance{},
	}

	switch {
	case !class.AcceptsMembership():
		opts.Membership.Reason = "class is not included in memberships"
	default:
		m, err := r.memberships.GetActive(ctx, memberID)
		switch {
		case errors.Is(err, membership.ErrNoActiveMembership):
			opts.Membership.Reason = "no active membership"
		case err != nil:
			return nil, fmt.Errorf("active membership: %w", err)
		case class.DeductsClassFromPlan && m.IsMetered() && *m.ClassesRemaining <= 0:
			opts.Membership.MembershipID = &m.ID
			opts.Membership.PlanName = m.PlanName
			opts.Membership.ClassesRemaining = m.ClassesRemaining
			opts.Membership.Reason = "no classes remaining"
		default:
			opts.Membership.Available = true
			opts.Membership.MembershipID = &m.ID
			opts.Membership.PlanName = m.PlanName
			opts.Membership.ClassesRemaining = m.ClassesRemaining
		}
	}

	if class.AcceptsClassPack() {
		balances, err := r.packs.ValidBalancesForClass(ctx, memberID, class)
		if err != nil {
			return nil, fmt.Errorf("class pack balances: %w", err)
		}
		opts.ClassPacks = balances
	}

	price, tax, total, ok := class.DropInPrice()
	switch {
	case !class.AcceptsPayPerEntry():
		opts.PayPerEntry.Reason = "class does not accept drop-in payment"
	case !ok:
		opts.PayPerEntry.Reason = "no drop-in price configured"
	default:
		opts.PayPerEntry = PayPerEntryOption{Available: true, PriceCents: price, TaxCents: tax, TotalCents: total}
	}

	return opts, nil
}

// Charge performs exactly one debit for req.Source. It must run inside the
// booking transaction so that a later failure rolls the debit back.
func (r *Resolver) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	class := req.Class

	switch req.Source {
	case SourceMembership:
		if !class.AcceptsMembership() {
			return nil, ErrPaymentSourceNotAccepted
		}
		m, err := r.memberships.GetActive(ctx, req.MemberID)
		if err != nil {
			return nil, err
		}
		if class.DeductsClassFromPlan {
			if err := r.memberships.UseClass(ctx, m); err != nil {
				return nil, err
			}
		}
		id := m.ID
		return &Charge{Source: SourceMembership, MembershipID: &id}, nil

	case SourceClassPack:
		if !class.AcceptsClassPack() {
			return nil, ErrPaymentSourceNotAccepted
		}
		if req.ClassPackBalanceID == nil {
			return nil, ErrClassPackBalanceRequired
		}
		use, err := r.packs.UseCredit(ctx, *req.ClassPackBalanceID, req.MemberID, class)
		if err != nil {
			return nil, err
		}
		balanceID := use.BalanceID
		return &Charge{Source: SourceClassPack, ClassPackBalanceID: &balanceID, CategoryBalanceID: use.CategoryBalanceID}, nil

	case SourcePayPerEntry:
		if !class.AcceptsPayPerEntry() {
			return nil, ErrPaymentSourceNotAccepted
		}
		_, _, total, ok := class.DropInPrice()
		if !ok {
			return nil, ErrDropInPriceMissing
		}
		if total > 0 {
			if _, err := r.wallets.Debit(ctx, req.MemberID, total, wallet.TxDropInPayment, dropInRef(req.SessionID, req.MemberID)); err != nil {
				return nil, err
			}
		}
		return &Charge{Source: SourcePayPerEntry, PaidAmountCents: total}, nil

	case SourceComplimentary:
		if !req.Staff {
			return nil, ErrComplimentaryStaffOnly
		}
		return &Charge{Source: SourceComplimentary}, nil
	}

	return nil, ErrInvalidPaymentSource
}

// Refund reverses the debit recorded on b. Membership classes are only
// given back when class deducts them from the plan.
func (r *Resolver) Refund(ctx context.Context, b *Booking, class *gymclass.GymClass) error {
	switch b.PaymentSource {
	case SourceMembership:
		if b.MembershipID == nil || !class.DeductsClassFromPlan {
			return nil
		}
		return r.memberships.RefundClass(ctx, *b.MembershipID)

	case SourceClassPack:
		if b.ClassPackBalanceID == nil {
			return nil
		}
		return r.packs.RefundCredit(ctx, classpack.CreditUse{
			BalanceID:         *b.ClassPackBalanceID,
			CategoryBalanceID: b.CategoryBalanceID,
		})

	case SourcePayPerEntry:
		if b.PaidAmountCents <= 0 {
			return nil
		}
		_, err := r.wallets.Credit(ctx, b.MemberID, b.PaidAmountCents, wallet.TxDropInRefund, dropInRef(b.SessionID, b.MemberID))
		return err
	}

	return nil
}

// dropInRef keys both wallet entries of a drop-in booking. A member holds at
// most one active booking per session, so a payment and its refund share it.
func dropInRef(sessionID, memberID int) string {
	return fmt.Sprintf("drop_in:session:%d:member:%d", sessionID, memberID)
}

func (c *Charge) apply(b *Booking) {
	b.PaymentSource = c.Source
	b.MembershipID = c.MembershipID
	b.ClassPackBalanceID = c.ClassPackBalanceID
	b.CategoryBalanceID = c.CategoryBalanceID
	b.PaidAmountCents = c.PaidAmountCents
}
