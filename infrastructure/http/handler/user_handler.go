package handler

import (
	"net/http"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/domain/entity"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/response"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/validator"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
)

type UserHandler struct {
	directory inbound.UserDirectoryUseCase
	logger    logger.Logger
}

func NewUserHandler(directory inbound.UserDirectoryUseCase, log logger.Logger) *UserHandler {
	return &UserHandler{
		directory: directory,
		logger:    log,
	}
}

type ListUsersResponse struct {
	Success bool             `json:"success"`
	Users   []entity.Summary `json:"users"`
	Page    int              `json:"page"`
	PerPage int              `json:"perPage"`
}

// ListUsers is mounted under the admin prefix; the auth middleware has
// already enforced the role.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := validator.QueryInt(query, "page", 1)
	perPage := validator.QueryInt(query, "per_page", 20)

	users, err := h.directory.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error(r.Context(), "Failed to list users", err, nil)
		response.InternalServerError(w)
		return
	}

	response.WriteJSON(w, http.StatusOK, ListUsersResponse{
		Success: true,
		Users:   users,
		Page:    page,
		PerPage: perPage,
	})
}
