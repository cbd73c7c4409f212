package auth

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/blowfish"
)

// DoubleBcrypt is the legacy double-hashing scheme: the stored value
// is bcrypt(bcrypt(password)), where the inner hash is computed with
// the cost and salt extracted from the stored crypt string and its
// full crypt-string form is fed into the outer verification as the
// plaintext.
type DoubleBcrypt struct {
	Hash string
}

// Verify implements PasswordHash.
func (d DoubleBcrypt) Verify(password string) bool {
	inner, err := saltedHash(password, d.Hash)
	if err != nil {
		log.Error().Err(err).Msg("failed to verify password")
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(d.Hash), []byte(inner)) == nil
}

// saltedHash re-hashes the candidate password under the stored hash's
// cost and salt and formats the result with the stored version tag.
func saltedHash(password, hash string) (string, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 4 {
		return "", fmt.Errorf("failed to parse password hash")
	}
	version := parts[1]
	switch version {
	case "2a", "2x", "2y", "2b":
	default:
		return "", fmt.Errorf("unknown bcrypt version: %s", version)
	}
	cost, err := strconv.Atoi(parts[2])
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("invalid bcrypt cost: %s", parts[2])
	}
	if len(parts[3]) < 22 {
		return "", fmt.Errorf("truncated bcrypt salt")
	}
	salt, err := bcryptB64.DecodeString(parts[3][:22])
	if err != nil {
		return "", err
	}
	digest, err := bcryptRaw([]byte(password), uint(cost), salt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("$%s$%02d$%s%s",
		version, cost, bcryptB64.EncodeToString(salt), bcryptB64.EncodeToString(digest)), nil
}

// The crypt(3) bcrypt alphabet, unpadded.
var bcryptB64 = base64.NewEncoding(
	"./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789",
).WithPadding(base64.NoPadding)

// "OrpheanBeholderScryDoubt"
var bcryptMagic = []byte{
	0x4f, 0x72, 0x70, 0x68, 0x65, 0x61, 0x6e, 0x42,
	0x65, 0x68, 0x6f, 0x6c, 0x64, 0x65, 0x72, 0x53,
	0x63, 0x72, 0x79, 0x44, 0x6f, 0x75, 0x62, 0x74,
}

// bcryptRaw computes the 23-byte bcrypt digest of password under the
// given cost and 16-byte salt. golang.org/x/crypto/bcrypt only hashes
// under salts it generates itself, so the eksblowfish construction is
// reproduced here on its blowfish primitive.
func bcryptRaw(password []byte, cost uint, salt []byte) ([]byte, error) {
	if len(password) > 72 {
		return nil, fmt.Errorf("password longer than 72 bytes")
	}
	ckey := append(password[:len(password):len(password)], 0)
	c, err := blowfish.NewSaltedCipher(ckey, salt)
	if err != nil {
		return nil, err
	}
	for i, rounds := uint64(0), uint64(1)<<cost; i < rounds; i++ {
		blowfish.ExpandKey(ckey, c)
		blowfish.ExpandKey(salt, c)
	}
	data := make([]byte, len(bcryptMagic))
	copy(data, bcryptMagic)
	for i := 0; i < len(data); i += 8 {
		for j := 0; j < 64; j++ {
			c.Encrypt(data[i:i+8], data[i:i+8])
		}
	}
	return data[:23], nil
}
