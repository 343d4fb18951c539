package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("auth: missing bearer token")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the access token payload. Tokens are issued by the identity
// service; this package only verifies them.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 signed access tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled reports whether a signing secret was configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// ParseBearer extracts and verifies the token from an Authorization header value.
func (v *Verifier) ParseBearer(header string) (Principal, error) {
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return Principal{}, ErrMissingToken
	}
	return v.Parse(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
}

// Parse verifies a raw token string.
func (v *Verifier) Parse(raw string) (Principal, error) {
	if !v.Enabled() {
		return Principal{}, ErrInvalidToken
	}
	claims := Claims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return Principal{UserID: userID, Role: strings.ToLower(claims.Role)}, nil
}

// Sign issues a token for p. Used by tests and local tooling.
func (v *Verifier) Sign(p Principal, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
