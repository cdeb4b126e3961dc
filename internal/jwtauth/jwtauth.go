// Package jwtauth resolves HS256 bearer tokens to storefront identities.
package jwtauth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/atelier/internal/domain/auth"
)

// Claims is the token payload issued for storefront users.
type Claims struct {
	Email         string    `json:"email"`
	Role          auth.Role `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	jwt.RegisteredClaims
}

// Verifier implements auth.Verifier for HMAC-SHA256 signed tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

var _ auth.Verifier = (*Verifier)(nil)

// NewVerifier creates a Verifier. When issuer is non-empty the iss claim
// must match it.
func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{secret: secret, parser: jwt.NewParser(opts...)}, nil
}

// Verify parses and validates token. Every failure maps to
// auth.ErrUnauthorized, wrapped with the reason.
func (v *Verifier) Verify(_ context.Context, token string) (*auth.Identity, error) {
	var claims Claims
	if _, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, errors.Wrap(auth.ErrUnauthorized, err.Error())
	}
	if claims.Subject == "" {
		return nil, errors.Wrap(auth.ErrUnauthorized, "token has no subject")
	}

	role := claims.Role
	if role != auth.RoleAdmin {
		role = auth.RoleCustomer
	}
	return &auth.Identity{
		ID:            claims.Subject,
		Email:         claims.Email,
		Role:          role,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// Issuer mints tokens accepted by a Verifier with the same secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer producing tokens valid for ttl.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for id.
func (i *Issuer) Issue(id auth.Identity) (string, error) {
	now := i.now()
	claims := Claims{
		Email:         id.Email,
		Role:          id.Role,
		EmailVerified: id.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
