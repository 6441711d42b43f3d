package webhook

import (
	"context"
	"errors"

	"classbook/internal/logger"
)

var ErrEndpointNotFound = errors.New("webhook endpoint not found")

type Service interface {
	Create(ctx context.Context, req CreateEndpointRequest) (*Endpoint, error)
	Get(ctx context.Context, id int) (*Endpoint, error)
	List(ctx context.Context) ([]Endpoint, error)
	Update(ctx context.Context, id int, req UpdateEndpointRequest) (*Endpoint, error)
	Delete(ctx context.Context, id int) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Create(ctx context.Context, req CreateEndpointRequest) (*Endpoint, error) {
	e, err := s.repo.Create(ctx, req.URL, req.Secret, req.EventTypes)
	if err != nil {
		return nil, err
	}
	logger.Info("webhook endpoint registered", "endpoint_id", e.ID, "url", e.URL)
	return e, nil
}

func (s *service) Get(ctx context.Context, id int) (*Endpoint, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context) ([]Endpoint, error) {
	return s.repo.List(ctx)
}

func (s *service) Update(ctx context.Context, id int, req UpdateEndpointRequest) (*Endpoint, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Active != nil {
		e.Active = *req.Active
	}
	if req.EventTypes != nil {
		e.EventTypes = req.EventTypes
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *service) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}
