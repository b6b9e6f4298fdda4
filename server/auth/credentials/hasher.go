package credentials

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const legacyDigestLen = sha1.Size * 2

// Hasher hashes new passwords with bcrypt. When AcceptLegacy is set it also
// verifies hex SHA-1 digests written by the previous implementation; those are
// never produced, only compared.
type Hasher struct {
	Cost         int
	AcceptLegacy bool
}

func NewHasher(acceptLegacy bool) Hasher {
	return Hasher{Cost: bcrypt.DefaultCost, AcceptLegacy: acceptLegacy}
}

func (h Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches hash, and whether the hash is a
// legacy digest that should be upgraded.
func (h Hasher) Verify(hash, password string) (ok bool, legacy bool) {
	if isLegacyDigest(hash) {
		if !h.AcceptLegacy {
			return false, false
		}
		sum := sha1.Sum([]byte(password))
		candidate := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(strings.ToLower(hash))) == 1, true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, false
}

func isLegacyDigest(hash string) bool {
	if len(hash) != legacyDigestLen {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}

// LegacyDigest returns the hex SHA-1 digest of password. It exists for
// fixtures that mimic rows written before bcrypt.
func LegacyDigest(password string) string {
	sum := sha1.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}
