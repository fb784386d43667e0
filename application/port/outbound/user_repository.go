package outbound

import (
	"context"
	"errors"

	"github.com/fleetadmin/fleetadmin/domain/entity"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserRepository is the read side of the users table the auth core consumes,
// plus the upsert used by the create_admin command.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindAll(ctx context.Context, offset, limit int) ([]*entity.User, error)
	Upsert(ctx context.Context, user *entity.User) error
}
