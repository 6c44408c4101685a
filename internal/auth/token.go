package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrInvalidToken   = errors.New("invalid or expired token")
)

// Identity is an authenticated caller. A nil *Identity is never handed to
// the share engine; anonymous callers are a nil principal.
type Identity struct {
	Subject string   `json:"sub"`
	Groups  []string `json:"groups,omitempty"`
}

// SubjectID returns the caller's subject and whether one is present
func (i *Identity) SubjectID() (string, bool) {
	if i == nil || i.Subject == "" {
		return "", false
	}
	return i.Subject, true
}

// GroupIDs returns the caller's group claim values
func (i *Identity) GroupIDs() []string {
	if i == nil {
		return nil
	}
	return i.Groups
}

// Claims is the JWT payload accepted by TokenVerifier
type Claims struct {
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier issues and parses HS256 bearer tokens
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier creates a verifier for the given shared secret
func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// Issue signs a token for subject and groups valid for ttl from now
func (v *TokenVerifier) Issue(subject string, groups []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Groups: groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses a token, optionally prefixed with "Bearer ", into an Identity
func (v *TokenVerifier) Verify(tokenStr string) (*Identity, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tokenStr), "Bearer "))
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &Identity{Subject: claims.Subject, Groups: claims.Groups}, nil
}
