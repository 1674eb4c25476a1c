// Package auth holds the credential primitives of the API: JWT session tokens,
// AES-GCM sealing of GitHub tokens, the OAuth state envelope, bcrypt hashing
// and the bearer-token middleware.
//
// SESSION MODEL:
//  1. The GitHub callback issues an access token (10 min) and a refresh token
//     (7 days). The access token travels in the redirect URL; the refresh token
//     is only ever set as an HttpOnly cookie.
//  2. API calls send "Authorization: Bearer <access token>".
//  3. When the access token expires, the client calls PATCH /token/refresh; the
//     cookie is verified and BOTH tokens are reissued (rotation).
//
// There is no revocation list. Expiry is the only invalidation mechanism, so a
// captured refresh token stays valid until its own exp.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userID>","aud":["opensource-hub:access"],"typ":"access","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "opensource-hub"

// ErrInvalidToken is returned for every verification failure. Expired,
// tampered, wrong-kind and subject-less tokens are indistinguishable to callers.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenKind separates access tokens from refresh tokens. Both are signed with
// the same secret, so the kind is carried in the claims AND in the audience;
// a refresh token presented as a bearer token is rejected, and vice versa.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

func (k TokenKind) audience() string {
	return issuer + ":" + string(k)
}

// claims is the JWT payload. "sub" holds the internal user ID.
type claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"typ"`
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTTLs overrides the 10 minute / 7 day defaults.
func WithTTLs(access, refresh time.Duration) TokenOption {
	return func(ti *TokenIssuer) {
		ti.accessTTL = access
		ti.refreshTTL = refresh
	}
}

// WithClock replaces time.Now for issuing and verifying. Tests use it to move
// time forward without sleeping.
func WithClock(now func() time.Time) TokenOption {
	return func(ti *TokenIssuer) {
		ti.now = now
	}
}

// NewTokenIssuer creates a TokenIssuer with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	ti := &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  10 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ti)
	}
	return ti, nil
}

// AccessTTL is the lifetime of access tokens.
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// RefreshTTL is the lifetime of refresh tokens, and the refresh cookie Max-Age.
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.refreshTTL }

// IssueAccess signs a short-lived bearer token for userID.
func (ti *TokenIssuer) IssueAccess(userID string) (string, error) {
	return ti.issue(userID, KindAccess, ti.accessTTL)
}

// IssueRefresh signs a long-lived token for the refresh cookie.
func (ti *TokenIssuer) IssueRefresh(userID string) (string, error) {
	return ti.issue(userID, KindRefresh, ti.refreshTTL)
}

func (ti *TokenIssuer) issue(userID string, kind TokenKind, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("auth: cannot issue token without a subject")
	}
	now := ti.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{kind.audience()},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", kind, err)
	}
	return signed, nil
}

// VerifyAccess returns the user ID of a valid access token.
func (ti *TokenIssuer) VerifyAccess(tokenStr string) (string, error) {
	return ti.verify(tokenStr, KindAccess)
}

// VerifyRefresh returns the user ID of a valid refresh token.
func (ti *TokenIssuer) VerifyRefresh(tokenStr string) (string, error) {
	return ti.verify(tokenStr, KindRefresh)
}

// verify checks signature, algorithm, issuer, audience, expiry and kind.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token signed with "none" or with an RSA
// public key used as an HMAC secret could be accepted. WithValidMethods
// prevents this.
func (ti *TokenIssuer) verify(tokenStr string, kind TokenKind) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return ti.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(kind.audience()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: unreadable claims", ErrInvalidToken)
	}
	if c.Kind != kind {
		return "", fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, kind, c.Kind)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c.Subject, nil
}
