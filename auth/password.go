package auth

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHash verifies candidate passwords against a stored
// credential.
type PasswordHash interface {
	Verify(password string) bool
}

// Password is a PasswordHash decoded from its JSON string form.
type Password struct {
	PasswordHash
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Password) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	p.PasswordHash = ParseHash(s)
	return nil
}

var legacyHashRe = regexp.MustCompile(`^\$2[abxy]\$`)

// ParseHash decides the hash variant by inspecting the stored string:
// "-" bans the user, a bare bcrypt crypt string selects the legacy
// double-hashing scheme, "bcrypt:<hash>" (name case-insensitive) is a
// plain bcrypt hash, and anything else never verifies.
func ParseHash(s string) PasswordHash {
	if s == "-" {
		return Banned{}
	}
	if legacyHashRe.MatchString(s) {
		return DoubleBcrypt{Hash: s}
	}
	if name, hash, ok := strings.Cut(s, ":"); ok && strings.EqualFold(name, "bcrypt") {
		return Bcrypt{Hash: hash}
	}
	return Unknown{Hash: s}
}

// Banned refuses every password.
type Banned struct{}

// Verify implements PasswordHash.
func (Banned) Verify(string) bool { return false }

// Unknown is an unrecognized hash format; it refuses every password.
type Unknown struct {
	Hash string
}

// Verify implements PasswordHash.
func (Unknown) Verify(string) bool { return false }

// Bcrypt is a standard bcrypt crypt string.
type Bcrypt struct {
	Hash string
}

// Verify implements PasswordHash.
func (b Bcrypt) Verify(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(b.Hash), []byte(password)) == nil
}
