package vauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE code challenge methods (RFC 7636, Section 4.2).
const (
	CodeChallengeMethodPlain = "plain"
	CodeChallengeMethodS256  = "S256"
)

// Code verifier length bounds from RFC 7636, Section 4.1.
const (
	minVerifierLength = 43
	maxVerifierLength = 128
)

// ValidatePKCE verifies a code verifier against a stored code challenge.
// Verifier constraints are enforced before any hashing, so out-of-range input
// fails closed. Unknown methods return false rather than erroring; the caller
// treats every false as a validation failure.
func ValidatePKCE(verifier, challenge, method string) bool {
	if !validCodeVerifier(verifier) {
		return false
	}

	switch method {
	case CodeChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	case CodeChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		// Constant-time comparison to avoid leaking the match prefix length.
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	default:
		return false
	}
}

// ValidCodeChallengeMethod reports whether the method is one the server supports.
func ValidCodeChallengeMethod(method string) bool {
	return method == CodeChallengeMethodPlain || method == CodeChallengeMethodS256
}

// validCodeVerifier checks the RFC 7636 charset and length rules: 43 to 128
// characters from the unreserved URI set.
func validCodeVerifier(v string) bool {
	if len(v) < minVerifierLength || len(v) > maxVerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case 'A' <= c && c <= 'Z':
		case 'a' <= c && c <= 'z':
		case '0' <= c && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
