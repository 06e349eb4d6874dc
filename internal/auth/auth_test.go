package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-0123456789abcdef0123456789abcdef"

// Helper function to create a valid JWT token for testing
func createTestToken(userID, email string, isAdmin bool, expiresIn time.Duration) string {
	claims := jwt.MapClaims{
		"_id":     userID,
		"email":   email,
		"isAdmin": isAdmin,
		"exp":     time.Now().Add(expiresIn).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(testSecret))
	return tokenString
}

// Helper function to create a token signed with the wrong secret
func createTokenWithInvalidSignature(userID string) string {
	claims := jwt.MapClaims{
		"_id": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte("wrong-secret"))
	return tokenString
}

func TestAuthenticate_ValidToken(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	tokenString := createTestToken("user-123", "buyer@example.com", false, time.Hour)

	identity, err := verifier.Authenticate(Handshake{Token: tokenString})

	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.ID)
	assert.Equal(t, "buyer@example.com", identity.Email)
	assert.False(t, identity.IsAdmin)
}

func TestAuthenticate_AdminClaim(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	tokenString := createTestToken("admin-1", "admin@example.com", true, time.Hour)

	identity, err := verifier.Authenticate(Handshake{Token: tokenString})

	require.NoError(t, err)
	assert.True(t, identity.IsAdmin)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	// Token that expired 1 hour ago
	tokenString := createTestToken("user-123", "", false, -time.Hour)

	_, err := verifier.Authenticate(Handshake{Token: tokenString})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpiredCredential))
}

func TestAuthenticate_InvalidSignature(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	tokenString := createTokenWithInvalidSignature("user-123")

	_, err := verifier.Authenticate(Handshake{Token: tokenString})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestAuthenticate_MalformedToken(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	_, err := verifier.Authenticate(Handshake{Token: "not-a-jwt"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredential))
}

func TestAuthenticate_MissingCredential(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	_, err := verifier.Authenticate(Handshake{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestAuthenticate_MissingIDClaim(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	claims := jwt.MapClaims{
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(testSecret))

	_, err := verifier.Authenticate(Handshake{Token: tokenString})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingClaims))
}

func TestAuthenticate_RejectsNoneAlgorithm(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	// Token with alg=none must never validate
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"_id": "user-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = verifier.Authenticate(Handshake{Token: tokenString})

	require.Error(t, err)
}

func TestAuthenticate_TokenFromCookie(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	tokenString := createTestToken("user-456", "", false, time.Hour)

	identity, err := verifier.Authenticate(Handshake{
		Cookie: "session=abc; token=" + tokenString + "; theme=dark",
	})

	require.NoError(t, err)
	assert.Equal(t, "user-456", identity.ID)
}

func TestAuthenticate_ExplicitTokenWinsOverCookie(t *testing.T) {
	verifier := NewVerifier(testSecret, "token")

	explicit := createTestToken("explicit-user", "", false, time.Hour)
	cookie := createTestToken("cookie-user", "", false, time.Hour)

	identity, err := verifier.Authenticate(Handshake{
		Token:  explicit,
		Cookie: "token=" + cookie,
	})

	require.NoError(t, err)
	assert.Equal(t, "explicit-user", identity.ID)
}

func TestExtractCredential_CookieVariants(t *testing.T) {
	tests := []struct {
		name    string
		cookie  string
		want    string
		wantErr bool
	}{
		{"single cookie", "token=abc123", "abc123", false},
		{"cookie among others", "a=1; token=abc123; b=2", "abc123", false},
		{"cookie at end", "a=1; token=abc123", "abc123", false},
		{"leading whitespace", "a=1;  token=abc123", "abc123", false},
		{"no token cookie", "session=xyz; theme=dark", "", true},
		{"empty header", "", "", true},
		{"similar name not matched", "access_token=nope", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCredential(Handshake{Cookie: tt.cookie}, "token")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMissingCredential))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
