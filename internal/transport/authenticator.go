package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("transport: missing token")
	ErrInvalidToken = errors.New("transport: invalid token")
)

// Authenticator: checks the handshake of a new connection
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator: an empty secret turns token checks off
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// AuthResult contains the results of authentication
type AuthResult struct {
	// UserID: token subject when Verified, otherwise the unverified userId query parameter
	UserID   string
	Verified bool
}

func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Authenticate: reads the handshake request. With a secret configured the
// request must carry a valid HS256 token (query "token" or a Bearer header)
// whose subject becomes the channel's user id.
func (a *Authenticator) Authenticate(r *http.Request) (*AuthResult, error) {
	if !a.Enabled() {
		return &AuthResult{UserID: r.URL.Query().Get("userId")}, nil
	}

	raw := bearerToken(r)
	if raw == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return &AuthResult{UserID: claims.Subject, Verified: true}, nil
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
