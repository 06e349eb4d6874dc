// Package auth provides connection-time credential verification.
// It extracts a JWT from the handshake (explicit field or cookie header),
// validates signature and expiry against a shared secret, and decodes the
// claims into an Identity. Verification runs exactly once per connection,
// before any event handler is reachable.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	chaterrors "github.com/real-rm/marketchat/internal/errors"
)

// Sentinel auth errors. Each is a single *ChatError value so callers can
// match with errors.Is and classifiers can read the code with errors.As.
var (
	// ErrMissingCredential is returned when neither the explicit token field
	// nor the cookie header carries a credential
	ErrMissingCredential = chaterrors.NewAuthError(chaterrors.ErrCodeMissingCredential, "missing credential", nil)
	// ErrInvalidCredential is returned when the token is malformed, tampered, or rejected
	ErrInvalidCredential = chaterrors.NewAuthError(chaterrors.ErrCodeInvalidCredential, "invalid credential", nil)
	// ErrExpiredCredential is returned when the token has expired
	ErrExpiredCredential = chaterrors.NewAuthError(chaterrors.ErrCodeExpiredCredential, "credential has expired", nil)
	// ErrInvalidSignature is returned when the token signature is invalid
	ErrInvalidSignature = chaterrors.NewAuthError(chaterrors.ErrCodeInvalidSignature, "invalid credential signature", nil)
	// ErrMissingClaims is returned when required claims are missing
	ErrMissingClaims = chaterrors.NewAuthError(chaterrors.ErrCodeMissingClaims, "missing required claims", nil)
)

// Identity is the authenticated principal decoded from a verified credential.
// It is immutable for the lifetime of a connection. The IsAdmin claim may be
// stale; authorization re-checks it against the user store where it matters.
type Identity struct {
	ID      string
	Email   string
	IsAdmin bool
}

// Handshake carries the credential material available at connection time:
// an optional explicit token and the raw Cookie header text.
type Handshake struct {
	Token  string
	Cookie string
}

// ExtractCredential resolves the credential from a handshake. The explicit
// token wins; otherwise the cookie text is scanned for a token=<value> pair
// terminated by ';' or end-of-string.
func ExtractCredential(h Handshake, cookieName string) (string, error) {
	if h.Token != "" {
		return h.Token, nil
	}

	token := scanCookie(h.Cookie, cookieName)
	// No else needed: early return pattern (guard clause)
	if token == "" {
		return "", ErrMissingCredential
	}

	return token, nil
}

// scanCookie extracts the named cookie value from a raw Cookie header.
// The cookie is HttpOnly on the browser side, so clients cannot always pass
// it explicitly; the raw header is the fallback path.
func scanCookie(cookieHeader, name string) string {
	if cookieHeader == "" {
		return ""
	}

	prefix := name + "="
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, prefix) {
			return part[len(prefix):]
		}
	}
	return ""
}

// Verifier validates handshake credentials against a shared secret.
type Verifier struct {
	secret     []byte
	cookieName string
}

// NewVerifier creates a new credential verifier with the given secret.
// cookieName is the cookie field scanned when no explicit token is supplied.
func NewVerifier(secret, cookieName string) *Verifier {
	return &Verifier{
		secret:     []byte(secret),
		cookieName: cookieName,
	}
}

// Authenticate extracts and verifies the handshake credential and decodes
// its claims into an Identity. On any failure the caller must refuse the
// connection; no partial identity is ever returned.
func (v *Verifier) Authenticate(h Handshake) (Identity, error) {
	token, err := ExtractCredential(h, v.cookieName)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return Identity{}, err
	}

	return v.verify(token)
}

// verify validates a JWT and extracts the identity claims.
// It verifies:
// - Token signature (HMAC with the shared secret)
// - Token expiration
// - Required claims (_id)
func (v *Verifier) verify(tokenString string) (Identity, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		// No else needed: early return pattern (guard clause)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method: %v", ErrInvalidSignature, token.Header["alg"])
		}
		return v.secret, nil
	})

	// No else needed: early return pattern (guard clause)
	if err != nil {
		// Check for specific error types
		// No else needed: early return pattern (guard clause)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %v", ErrExpiredCredential, err)
		}
		// No else needed: early return pattern (guard clause)
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	// No else needed: early return pattern (guard clause)
	if !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: token is not valid", ErrInvalidCredential)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	// No else needed: early return pattern (guard clause)
	if !ok {
		return Identity{}, fmt.Errorf("%w: unable to parse claims", ErrInvalidCredential)
	}

	// The marketplace issuer signs the Mongo user document, so the subject
	// claim is named _id.
	userID, ok := mapClaims["_id"].(string)
	// No else needed: early return pattern (guard clause)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("%w: _id claim missing or invalid", ErrMissingClaims)
	}

	email, _ := mapClaims["email"].(string)
	isAdmin, _ := mapClaims["isAdmin"].(bool)

	return Identity{
		ID:      userID,
		Email:   email,
		IsAdmin: isAdmin,
	}, nil
}
