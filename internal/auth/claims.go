package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenGenerator produces the raw strings stored in an Authentication.
type TokenGenerator interface {
	AccessToken(userID UserID, ttl time.Duration, now time.Time) (string, error)
	RefreshToken() (string, error)
}

// OpaqueTokenGenerator issues random UUID tokens.
type OpaqueTokenGenerator struct{}

// AccessToken returns a random UUID.
func (OpaqueTokenGenerator) AccessToken(UserID, time.Duration, time.Time) (string, error) {
	return uuid.NewString(), nil
}

// RefreshToken returns a random UUID.
func (OpaqueTokenGenerator) RefreshToken() (string, error) {
	return uuid.NewString(), nil
}

// AccessClaims are the claims carried by a signed access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"typ"`
}

// JWTTokenGenerator issues HS256-signed access tokens. Signed tokens are
// stored in the Authentication like opaque ones and validated there.
type JWTTokenGenerator struct {
	Secret []byte
	Issuer string
	// Now overrides the time used to check expiry when parsing.
	Now func() time.Time
}

// AccessToken signs a token for userID valid for ttl from now.
func (g JWTTokenGenerator) AccessToken(userID UserID, ttl time.Duration, now time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.Issuer,
			Subject:   string(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TokenType: TokenTypeAccess,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.Secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// RefreshToken returns a random UUID. Refresh tokens are never parsed by
// clients.
func (JWTTokenGenerator) RefreshToken() (string, error) {
	return uuid.NewString(), nil
}

// ParseAccessToken checks the signature, method and expiry of a signed
// access token and returns its claims.
func (g JWTTokenGenerator) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if g.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(g.Now))
	}
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(_ *jwt.Token) (any, error) {
		return g.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenInvalid, claims.TokenType)
	}
	return claims, nil
}
