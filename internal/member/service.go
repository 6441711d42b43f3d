package member

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"classbook/internal/api"
	"classbook/internal/logger"
)

var (
	ErrMemberNotFound          = errors.New("member not found")
	ErrEmailExists             = errors.New("email already exists")
	ErrInvalidStatusTransition = errors.New("invalid member status transition")
)

type Service interface {
	Create(ctx context.Context, req CreateMemberRequest) (*Member, error)
	GetByID(ctx context.Context, id int) (*Member, error)
	GetByUserID(ctx context.Context, userID int) (*Member, error)
	List(ctx context.Context, p api.Pagination) (api.Page[Member], error)
	UpdateStatus(ctx context.Context, id int, status Status) (*Member, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, req CreateMemberRequest) (*Member, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check member email: %w", err)
	}
	if exists {
		return nil, ErrEmailExists
	}

	m, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.Info("member created", "member_id", m.ID)
	return m, nil
}

func (s *service) GetByID(ctx context.Context, id int) (*Member, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) GetByUserID(ctx context.Context, userID int) (*Member, error) {
	return s.repo.FindByUserID(ctx, userID)
}

func (s *service) List(ctx context.Context, p api.Pagination) (api.Page[Member], error) {
	members, total, err := s.repo.List(ctx, p.Limit(), p.Offset())
	if err != nil {
		return api.Page[Member]{}, err
	}
	return api.NewPage(members, p, total), nil
}

// UpdateStatus moves a member between ACTIVE and FROZEN or cancels them.
// Cancelled members stay cancelled.
func (s *service) UpdateStatus(ctx context.Context, id int, status Status) (*Member, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status == status {
		return current, nil
	}
	if current.Status == StatusCancelled {
		return nil, ErrInvalidStatusTransition
	}

	return s.repo.UpdateStatus(ctx, id, status)
}
