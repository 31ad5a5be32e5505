package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrorJwtTokenExpired   = errors.New("jwt_token_expired")
	ErrorJwtTokenSignature = errors.New("jwt_token_signature")
	ErrorJwtClaimsInvalid  = errors.New("jwt_claims_invalid")
)

// Claims defines the structure of the JWT payload carried by callers of
// the engine API; token issuance happens elsewhere, the engine only
// validates and extracts the caller identity
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type GenerateJwtOpts struct {
	Audience string
	Id       string
	Issuer   string
	Secret   string
	Subject  string
	Ttl      time.Duration
	UserId   string
	Username string
}

// GenerateJwt creates a signed JWT for a user
func GenerateJwt(opts GenerateJwtOpts) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   opts.UserId,
		Username: opts.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{opts.Audience},
			ID:        opts.Id,
			Issuer:    opts.Issuer,
			Subject:   opts.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(opts.Ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(opts.Secret))
}

// ValidateJwt verifies the token's signature and expiry and returns the
// Claims if valid
func ValidateJwt(jwtSecret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("failed to validate token signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("failed to parse token claims: %w", ErrorJwtTokenExpired)
		}
		return nil, fmt.Errorf("failed to parse token claims: %w: %s", ErrorJwtTokenSignature, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("failed to validate token claims structure: %w", ErrorJwtClaimsInvalid)
	}

	if claims.ExpiresAt == nil || time.Now().After(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("failed to validate token expiry: %w", ErrorJwtTokenExpired)
	}

	return claims, nil
}
