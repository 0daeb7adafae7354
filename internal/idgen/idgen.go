// Package idgen generates the short opaque ids used for tasks and oplog
// entries, and the deterministic child ids recurrence spawning relies on.
//
// Grounded on the teacher's internal/storage/sqlite/hash_ids.go (child-id
// derivation) and ids.go (base-N shape validators), generalized from
// hierarchical "parent.N" ids to flat 11-char base62 ids, and on
// collision.go's sha256 content hashing, generalized into a keyed hash for
// deterministic recurrence spawning.
package idgen

import (
	"crypto/hmac"
	"crypto/sha256"
	"math/big"

	"github.com/google/uuid"
)

const (
	idLength = 11
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// spawnNamespace is a fixed domain-separation key so that spawn ids never
// collide with ids derived for an unrelated purpose from the same bytes.
var spawnNamespace = []byte("oru.recurrence.spawn.v1")

// NewID returns a random 11-char base62 string. Collision probability is
// treated as negligible but not relied on for correctness (see spec.md
// section 4.A).
func NewID() string {
	u := uuid.New()
	return encodeBase62(u[:], idLength)
}

// SpawnID returns a deterministic 11-char base62 string derived from
// parentID. The same parent always yields the same child id, so the same
// completion replayed on multiple devices spawns one child, not duplicates.
func SpawnID(parentID string) string {
	mac := hmac.New(sha256.New, spawnNamespace)
	mac.Write([]byte(parentID))
	return encodeBase62(mac.Sum(nil), idLength)
}

// IsValidID reports whether s has the 11-char base62 shape.
func IsValidID(s string) bool {
	if len(s) != idLength {
		return false
	}
	for _, r := range s {
		if !isBase62(r) {
			return false
		}
	}
	return true
}

func isBase62(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	}
	return false
}

// encodeBase62 interprets b as a big-endian unsigned integer and encodes it
// in the base62 alphabet as exactly n characters: a shorter encoding is
// left-padded with '0', and a longer one keeps only its n least-significant
// digits.
func encodeBase62(b []byte, n int) string {
	base := big.NewInt(62)
	zero := big.NewInt(0)
	num := new(big.Int).SetBytes(b)

	out := make([]byte, 0, n)
	mod := new(big.Int)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for len(out) < n {
		out = append(out, alphabet[0])
	}
	if len(out) > n {
		out = out[:n]
	}
	// reverse in place for a stable, human-legible most-significant-first order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
