package auth

import (
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ChallengeMethodS256 is the only PKCE transform this client uses.
const ChallengeMethodS256 = "S256"

// PKCE is a verifier and its derived challenge.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCE draws a fresh 256-bit verifier (base64url, no padding) and
// derives challenge = base64url(SHA-256(verifier)). Call once per attempt.
func GeneratePKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    ChallengeMethodS256,
	}
}

// NewState returns a random anti-CSRF state token.
func NewState() string {
	return uuid.NewString()
}
