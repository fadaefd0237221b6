package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
)

const issuer = "warbands"

// Claims holds the JWT payload. Seats are bound to UserID.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates player tokens.
type JWTManager struct {
	secret []byte
	expiry time.Duration
}

// NewJWTManager creates a JWTManager issuing tokens valid for 12 hours, long
// enough to outlast a play session.
func NewJWTManager(secret string) *JWTManager {
	return &JWTManager{secret: []byte(secret), expiry: 12 * time.Hour}
}

// WithExpiry returns a copy of m issuing tokens with a different lifetime.
func (m *JWTManager) WithExpiry(d time.Duration) *JWTManager {
	return &JWTManager{secret: m.secret, expiry: d}
}

// Issue creates a signed token for the user.
func (m *JWTManager) Issue(userID, displayName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken parses and validates a JWT string, returning the claims.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMissingToken
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiresIn reports the token lifetime in seconds.
func (m *JWTManager) ExpiresIn() int {
	return int(m.expiry.Seconds())
}
