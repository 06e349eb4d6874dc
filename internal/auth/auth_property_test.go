package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: Credential round-trip
//
// For any non-empty user id and email, a token signed with the shared secret
// must authenticate and decode back to the same identity.
func TestProperty_CredentialRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	verifier := NewVerifier(testSecret, "token")

	properties.Property("signed identity decodes unchanged", prop.ForAll(
		func(userID, email string, isAdmin bool) bool {
			// Skip invalid inputs
			if userID == "" {
				return true
			}

			claims := jwt.MapClaims{
				"_id":     userID,
				"email":   email,
				"isAdmin": isAdmin,
				"exp":     time.Now().Add(time.Hour).Unix(),
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			tokenString, err := token.SignedString([]byte(testSecret))
			if err != nil {
				return false
			}

			identity, err := verifier.Authenticate(Handshake{Token: tokenString})
			if err != nil {
				return false
			}

			return identity.ID == userID && identity.Email == email && identity.IsAdmin == isAdmin
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: Wrong secret never authenticates
//
// A token signed with any secret other than the shared one must be rejected,
// regardless of its claims.
func TestProperty_WrongSecretRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	verifier := NewVerifier(testSecret, "token")

	properties.Property("foreign signature always rejected", prop.ForAll(
		func(userID, otherSecret string) bool {
			// Skip invalid inputs
			if userID == "" || otherSecret == "" || otherSecret == testSecret {
				return true
			}

			claims := jwt.MapClaims{
				"_id": userID,
				"exp": time.Now().Add(time.Hour).Unix(),
			}
			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			tokenString, err := token.SignedString([]byte(otherSecret))
			if err != nil {
				return false
			}

			_, err = verifier.Authenticate(Handshake{Token: tokenString})
			return err != nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
