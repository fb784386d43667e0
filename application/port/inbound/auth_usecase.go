package inbound

import (
	"context"

	"github.com/fleetadmin/fleetadmin/domain/entity"
	"github.com/fleetadmin/fleetadmin/domain/valueobject"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ClientIP string `json:"-"`
}

// SessionResponse is returned by both login and refresh: the user plus the
// freshly issued token pair the handler turns into cookies.
type SessionResponse struct {
	User   entity.Summary
	Tokens *valueobject.TokenPair
}

type RefreshRequest struct {
	RefreshToken string
}

type AuthUseCase interface {
	Login(ctx context.Context, req LoginRequest) (*SessionResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*SessionResponse, error)
}

type UserDirectoryUseCase interface {
	ListUsers(ctx context.Context, page, perPage int) ([]entity.Summary, error)
}
