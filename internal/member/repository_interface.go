package member

import "context"

type Repository interface {
	Create(ctx context.Context, req CreateMemberRequest) (*Member, error)
	FindByID(ctx context.Context, id int) (*Member, error)
	FindByUserID(ctx context.Context, userID int) (*Member, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]Member, int, error)
	UpdateStatus(ctx context.Context, id int, status Status) (*Member, error)
}
