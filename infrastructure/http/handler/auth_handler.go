package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/domain/entity"
	apperr "github.com/fleetadmin/fleetadmin/domain/error"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/middleware"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/response"
	"github.com/fleetadmin/fleetadmin/infrastructure/http/session"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
)

// maxLoginBody bounds the login request body.
const maxLoginBody = 1 << 16

type AuthHandler struct {
	authUseCase inbound.AuthUseCase
	sessions    *session.Manager
	loginPolicy inbound.RateLimitPolicy
	baseURL     string
	idleTimeout time.Duration
	logger      logger.Logger
}

func NewAuthHandler(
	authUseCase inbound.AuthUseCase,
	sessions *session.Manager,
	loginPolicy inbound.RateLimitPolicy,
	baseURL string,
	idleTimeout time.Duration,
	log logger.Logger,
) *AuthHandler {
	return &AuthHandler{
		authUseCase: authUseCase,
		sessions:    sessions,
		loginPolicy: loginPolicy,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		idleTimeout: idleTimeout,
		logger:      log,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool           `json:"success"`
	User    entity.Summary `json:"user"`
}

type RefreshResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	User    entity.Summary `json:"user"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type MeResponse struct {
	Authenticated      bool            `json:"authenticated"`
	User               *entity.Summary `json:"user"`
	IdleTimeoutSeconds int             `json:"idleTimeoutSeconds,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.authUseCase.Login(r.Context(), inbound.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		ClientIP: middleware.ClientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.sessions.SetSessionCookies(w, r, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	response.WriteJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		User:    res.User,
	})
}

// Logout clears the session. It needs no valid session and always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookies(w, r)
	logger.LogAuthEvent(r.Context(), h.logger, "logout", "", middleware.ClientIP(r), true, nil)

	response.WriteJSON(w, http.StatusOK, LogoutResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// LogoutRedirect serves plain logout links.
func (h *AuthHandler) LogoutRedirect(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearSessionCookies(w, r)
	logger.LogAuthEvent(r.Context(), h.logger, "logout", "", middleware.ClientIP(r), true, nil)

	http.Redirect(w, r, h.baseURL+"/", http.StatusFound)
}

// Me reports the caller established by the auth middleware. It never
// refreshes tokens.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		response.WriteJSON(w, http.StatusUnauthorized, MeResponse{Authenticated: false})
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.WriteJSON(w, http.StatusOK, MeResponse{
		Authenticated: true,
		User: &entity.Summary{
			ID:    id.UserID,
			Email: id.Email,
			Name:  id.Name,
			Role:  id.Role,
		},
		IdleTimeoutSeconds: int(h.idleTimeout.Seconds()),
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.authUseCase.Refresh(r.Context(), inbound.RefreshRequest{
		RefreshToken: h.sessions.RefreshToken(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.sessions.SetSessionCookies(w, r, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	response.WriteJSON(w, http.StatusOK, RefreshResponse{
		Success: true,
		Message: "Tokens refreshed successfully",
		User:    res.User,
	})
}

func (h *AuthHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.AsAppError(err)

	switch appErr.Code {
	case apperr.ErrCodeRateLimited:
		middleware.SetRateLimitHeaders(w, h.loginPolicy, inbound.RateLimitResult{
			Success:    false,
			ResetAt:    appErr.ResetAt,
			RetryAfter: appErr.RetryAfter,
		})
	case apperr.ErrCodeInternal, apperr.ErrCodeRefreshError:
		h.logger.Error(r.Context(), "Auth request failed", err, map[string]interface{}{
			"path": r.URL.Path,
		})
	}

	response.AppError(w, appErr)
}
