// Package apppassword parses and formats Materialize app-passwords.
//
// An app-password is an opaque string handed to the user once: the prefix
// "mzp_" followed by a client id and a secret key. Two wire forms exist:
// base64 of the 32 raw bytes (43 or 44 characters after the prefix) and
// plain hex of both UUIDs (64 alphanumeric characters, possibly interspersed
// with separators). Parsing never returns a partial credential.
package apppassword

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix marks a string as an app-password.
const Prefix = "mzp_"

var (
	// ErrInvalidLength is returned when the payload cannot contain two UUIDs.
	ErrInvalidLength = errors.New("invalid app-password length")
	// ErrInvalidAppPassword is returned for any other malformed input.
	ErrInvalidAppPassword = errors.New("invalid app-password")
)

// Credential is the decoded form of an app-password.
type Credential struct {
	ClientID  uuid.UUID
	SecretKey uuid.UUID
}

// String re-encodes the credential as a distributable app-password:
// prefix + both UUIDs with hyphens stripped. The result has a fixed
// length of 68 characters.
func (c Credential) String() string {
	return Prefix + stripHyphens(c.ClientID) + stripHyphens(c.SecretKey)
}

// Parse decodes raw into a Credential.
//
// The prefix is stripped if present. The remainder is classified by length:
// 43 or 44 characters are treated as base64 of 32 raw bytes (client id
// first, secret key second); 64 or more characters are treated as two hex
// UUIDs, ignoring any non-alphanumeric separators. Anything else fails with
// ErrInvalidAppPassword.
func Parse(raw string) (Credential, error) {
	payload := strings.TrimPrefix(strings.TrimSpace(raw), Prefix)

	switch {
	case len(payload) == 43 || len(payload) == 44:
		return parseBase64(payload)
	case len(payload) >= 64:
		return parseHex(payload)
	default:
		return Credential{}, fmt.Errorf("%w: unrecognized payload length %d", ErrInvalidAppPassword, len(payload))
	}
}

// Generate creates a random credential. Used for tests and fixtures.
func Generate() Credential {
	return Credential{ClientID: uuid.New(), SecretKey: uuid.New()}
}

func parseBase64(payload string) (Credential, error) {
	trimmed := strings.TrimRight(payload, "=")

	buf, err := base64.RawURLEncoding.DecodeString(trimmed)
	if err != nil {
		buf, err = base64.RawStdEncoding.DecodeString(trimmed)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidAppPassword, err)
	}
	if len(buf) != 32 {
		return Credential{}, fmt.Errorf("%w: decoded %d bytes, want 32", ErrInvalidLength, len(buf))
	}

	clientID, err := uuid.FromBytes(buf[:16])
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidAppPassword, err)
	}
	secretKey, err := uuid.FromBytes(buf[16:])
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidAppPassword, err)
	}

	return Credential{ClientID: clientID, SecretKey: secretKey}, nil
}

func parseHex(payload string) (Credential, error) {
	var b strings.Builder
	for _, r := range payload {
		if isAlphanumeric(r) {
			b.WriteRune(r)
		}
	}
	filtered := b.String()

	if len(filtered) != 64 {
		return Credential{}, fmt.Errorf("%w: %d alphanumeric characters, want 64", ErrInvalidLength, len(filtered))
	}

	clientID, err := uuid.Parse(hyphenate(filtered[:32]))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidAppPassword, err)
	}
	secretKey, err := uuid.Parse(hyphenate(filtered[32:]))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidAppPassword, err)
	}

	return Credential{ClientID: clientID, SecretKey: secretKey}, nil
}

// hyphenate rebuilds canonical 8-4-4-4-12 UUID text from 32 bare characters.
func hyphenate(s string) string {
	return s[:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:]
}

func stripHyphens(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
