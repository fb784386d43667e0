package outbound

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the identity carried inside a signed session token.
type TokenClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Type   string `json:"type"`
}

// TokenService issues and verifies signed session tokens. Verify does not
// check Type; callers must.
type TokenService interface {
	IssueAccessToken(claims TokenClaims) (string, error)
	IssueRefreshToken(claims TokenClaims) (string, error)
	Verify(token string) (*TokenClaims, error)
}
