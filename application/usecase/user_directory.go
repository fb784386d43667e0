package usecase

import (
	"context"
	"fmt"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/application/port/outbound"
	"github.com/fleetadmin/fleetadmin/domain/entity"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// UserDirectory lists login accounts for the admin screens.
type UserDirectory struct {
	userRepo outbound.UserRepository
}

var _ inbound.UserDirectoryUseCase = (*UserDirectory)(nil)

func NewUserDirectory(userRepo outbound.UserRepository) *UserDirectory {
	return &UserDirectory{userRepo: userRepo}
}

func (uc *UserDirectory) ListUsers(ctx context.Context, page, perPage int) ([]entity.Summary, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	users, err := uc.userRepo.FindAll(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	items := make([]entity.Summary, len(users))
	for i, user := range users {
		items[i] = user.Summary()
	}
	return items, nil
}
