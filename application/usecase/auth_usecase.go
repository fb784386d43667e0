package usecase

import (
	"context"
	"errors"

	"github.com/fleetadmin/fleetadmin/application/port/inbound"
	"github.com/fleetadmin/fleetadmin/application/port/outbound"
	"github.com/fleetadmin/fleetadmin/domain/entity"
	apperr "github.com/fleetadmin/fleetadmin/domain/error"
	"github.com/fleetadmin/fleetadmin/domain/valueobject"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/logger"
	"github.com/fleetadmin/fleetadmin/infrastructure/service/metrics"
)

// LoginKeyPrefix namespaces login attempts in the rate limit store.
const LoginKeyPrefix = "login:"

type AuthUseCase struct {
	userRepo        outbound.UserRepository
	tokenService    outbound.TokenService
	passwordService outbound.PasswordService
	limiter         inbound.RateLimiter
	loginPolicy     inbound.RateLimitPolicy
	logger          logger.Logger
	metrics         *metrics.Metrics
}

var _ inbound.AuthUseCase = (*AuthUseCase)(nil)

func NewAuthUseCase(
	userRepo outbound.UserRepository,
	tokenService outbound.TokenService,
	passwordService outbound.PasswordService,
	limiter inbound.RateLimiter,
	loginPolicy inbound.RateLimitPolicy,
	log logger.Logger,
	m *metrics.Metrics,
) *AuthUseCase {
	return &AuthUseCase{
		userRepo:        userRepo,
		tokenService:    tokenService,
		passwordService: passwordService,
		limiter:         limiter,
		loginPolicy:     loginPolicy,
		logger:          log,
		metrics:         m,
	}
}

// Login checks the attempt budget for the client, then the password. Only
// well-formed attempts are counted; a successful login clears the counter.
func (uc *AuthUseCase) Login(ctx context.Context, req inbound.LoginRequest) (*inbound.SessionResponse, error) {
	credentials, err := valueobject.NewCredentials(req.Username, req.Password)
	if err != nil {
		uc.metrics.IncLogin("validation")
		return nil, apperr.ErrValidation("Username and password are required")
	}

	limitKey := LoginKeyPrefix + req.ClientIP
	result, err := uc.limiter.Check(ctx, limitKey, uc.loginPolicy)
	if err != nil {
		// Limiter outage: let the attempt through
		uc.logger.Error(ctx, "Login rate limit check failed", err, map[string]interface{}{
			"ip": req.ClientIP,
		})
	} else if !result.Success {
		uc.metrics.IncLogin("rate_limited")
		logger.LogSecurityEvent(ctx, uc.logger, "login_rate_limited", "HIGH", map[string]interface{}{
			"ip":          req.ClientIP,
			"username":    credentials.Username(),
			"retry_after": result.RetryAfter,
		})
		return nil, apperr.ErrRateLimited(result.RetryAfter, result.ResetAt)
	}

	user, err := uc.userRepo.FindByEmail(ctx, credentials.Username())
	if err != nil {
		if errors.Is(err, outbound.ErrUserNotFound) {
			return nil, uc.loginFailed(ctx, req.ClientIP, credentials.Username(), "unknown_user")
		}
		uc.metrics.IncLogin("error")
		return nil, apperr.ErrInternal("find user", err)
	}

	ok, err := uc.passwordService.VerifyPassword(credentials.Password(), user.Password)
	if err != nil {
		uc.metrics.IncLogin("error")
		return nil, apperr.ErrInternal("verify password", err)
	}
	if !ok {
		return nil, uc.loginFailed(ctx, req.ClientIP, credentials.Username(), "wrong_password")
	}

	if err := uc.limiter.Reset(ctx, limitKey); err != nil {
		uc.logger.Error(ctx, "Failed to reset login rate limit", err, map[string]interface{}{
			"ip": req.ClientIP,
		})
	}

	tokens, err := uc.issuePair(claimsFor(user.Summary()))
	if err != nil {
		uc.metrics.IncLogin("error")
		return nil, apperr.ErrInternal("issue tokens", err)
	}

	uc.metrics.IncLogin("success")
	logger.LogAuthEvent(ctx, uc.logger, "login", user.ID, req.ClientIP, true, map[string]interface{}{
		"role": user.Role,
	})

	return &inbound.SessionResponse{
		User:   user.Summary(),
		Tokens: tokens,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The identity is taken from
// the token; the user table is not consulted.
func (uc *AuthUseCase) Refresh(ctx context.Context, req inbound.RefreshRequest) (*inbound.SessionResponse, error) {
	if req.RefreshToken == "" {
		uc.metrics.IncRefresh("no_token")
		return nil, apperr.ErrNoRefreshToken()
	}

	claims, err := uc.tokenService.Verify(req.RefreshToken)
	if err != nil {
		uc.metrics.IncRefresh("invalid_token")
		logger.LogAuthEvent(ctx, uc.logger, "refresh", "", "", false, map[string]interface{}{
			"reason": err.Error(),
		})
		return nil, apperr.ErrInvalidToken("")
	}
	if claims.Type != outbound.TokenTypeRefresh {
		uc.metrics.IncRefresh("invalid_type")
		logger.LogAuthEvent(ctx, uc.logger, "refresh", claims.UserID, "", false, map[string]interface{}{
			"reason":     "wrong token type",
			"token_type": claims.Type,
		})
		return nil, apperr.ErrInvalidTokenType("")
	}

	summary := entity.Summary{
		ID:    claims.UserID,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
	}
	tokens, err := uc.issuePair(claimsFor(summary))
	if err != nil {
		uc.metrics.IncRefresh("error")
		return nil, apperr.ErrRefresh(err)
	}

	uc.metrics.IncRefresh("success")
	logger.LogAuthEvent(ctx, uc.logger, "refresh", claims.UserID, "", true, nil)

	return &inbound.SessionResponse{
		User:   summary,
		Tokens: tokens,
	}, nil
}

func (uc *AuthUseCase) loginFailed(ctx context.Context, ip, username, reason string) error {
	uc.metrics.IncLogin("invalid_credentials")
	logger.LogAuthEvent(ctx, uc.logger, "login", "", ip, false, map[string]interface{}{
		"username": username,
		"reason":   reason,
	})
	return apperr.ErrInvalidCredentials()
}

func (uc *AuthUseCase) issuePair(claims outbound.TokenClaims) (*valueobject.TokenPair, error) {
	accessToken, err := uc.tokenService.IssueAccessToken(claims)
	if err != nil {
		return nil, err
	}
	refreshToken, err := uc.tokenService.IssueRefreshToken(claims)
	if err != nil {
		return nil, err
	}
	return valueobject.NewTokenPair(accessToken, refreshToken), nil
}

func claimsFor(u entity.Summary) outbound.TokenClaims {
	return outbound.TokenClaims{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}
}
