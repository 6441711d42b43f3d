package wallet

import (
	"context"
	"errors"

	"classbook/internal/logger"
	"classbook/internal/metrics"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type Service interface {
	Balance(ctx context.Context, memberID int) (*Wallet, error)
	TopUp(ctx context.Context, memberID int, amountCents int64) (*Wallet, error)
	Debit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*Transaction, error)
	Credit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*Transaction, error)
	Transactions(ctx context.Context, memberID int, limit, offset int) ([]Transaction, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Balance(ctx context.Context, memberID int) (*Wallet, error) {
	return s.repo.GetOrCreateWallet(ctx, memberID)
}

func (s *service) TopUp(ctx context.Context, memberID int, amountCents int64) (*Wallet, error) {
	if _, err := s.Credit(ctx, memberID, amountCents, TxTopUp, ""); err != nil {
		return nil, err
	}
	metrics.RecordWalletTopUp()
	return s.repo.GetOrCreateWallet(ctx, memberID)
}

func (s *service) Debit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*Transaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	entry, err := s.repo.AddTransaction(ctx, memberID, -amountCents, txType, reference)
	if err != nil {
		return nil, err
	}

	logger.Debug("wallet debited", "member_id", memberID, "amount_cents", amountCents, "type", txType)
	return entry, nil
}

func (s *service) Credit(ctx context.Context, memberID int, amountCents int64, txType, reference string) (*Transaction, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.AddTransaction(ctx, memberID, amountCents, txType, reference)
}

func (s *service) Transactions(ctx context.Context, memberID int, limit, offset int) ([]Transaction, error) {
	return s.repo.GetTransactions(ctx, memberID, limit, offset)
}
