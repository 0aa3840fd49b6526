package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ExportTokenManager handles issuing and validating the signed tokens
// behind CSV download links. Links land in chat messages, so tokens are
// short-lived and carry only the report period.
type ExportTokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewExportTokenManager builds a new manager.
func NewExportTokenManager(secret string, ttl time.Duration) *ExportTokenManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ExportTokenManager{secret: []byte(secret), ttl: ttl}
}

// ExportClaims describes the token payload.
type ExportClaims struct {
	Period string `json:"period"`
	jwt.RegisteredClaims
}

// Issue builds and signs a download token for the period.
func (tm *ExportTokenManager) Issue(period string) (string, time.Time, error) {
	expiresAt := time.Now().Add(tm.ttl)
	claims := &ExportClaims{
		Period: period,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// Parse validates and returns claims.
func (tm *ExportTokenManager) Parse(tokenStr string) (*ExportClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &ExportClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*ExportClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
