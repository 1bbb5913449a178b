package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var JWTSecret []byte

// SetSecret sets the JWT secret key (e.g., from config)
func SetSecret(secret string) {
	JWTSecret = []byte(secret)
}

const RoleSuperUser = "superuser"

// Claims represents the JWT payload. TenantID is empty for super users that
// operate without a home tenant. The impersonation fields carry the
// session-level targets a super user selected through the admin console;
// they are never honored for ordinary roles.
type Claims struct {
	UserID               string `json:"user_id"`
	TenantID             string `json:"tenant_id,omitempty"`
	Role                 string `json:"role"`
	ImpersonatedTenantID string `json:"impersonated_tenant_id,omitempty"`
	ActingTenantID       string `json:"acting_tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// IsSuperUser reports whether the principal may select cross-tenant scope.
func (c *Claims) IsSuperUser() bool {
	return c.Role == RoleSuperUser
}

// GenerateToken creates a signed JWT for the given principal
func GenerateToken(claims Claims) (string, error) {
	if len(JWTSecret) == 0 {
		return "", errors.New("JWT secret not set")
	}

	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ValidateToken parses and verifies a JWT string
func ValidateToken(tokenStr string) (*Claims, error) {
	if len(JWTSecret) == 0 {
		return nil, errors.New("JWT secret not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
