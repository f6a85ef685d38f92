// Package authn verifies client-supplied passwords against the user
// repository's Argon2 hashes, with a bounded TTL cache over verification
// results so the hot login path does not re-run Argon2 on every retry.
package authn

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters. The client already MD5-hashes the password before
// it ever reaches us (spec §4.6); what we Argon2-hash and store is that
// MD5 hex digest, not the plaintext.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

var ErrMalformedHash = errors.New("authn: malformed argon2 hash")

// HashMD5Password hashes an already-MD5'd password with Argon2id under a
// fresh random salt, returning a self-describing encoded hash string
// suitable for storage in the user repository.
func HashMD5Password(md5Hex string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("authn: generate salt: %w", err)
	}
	sum := argon2.IDKey([]byte(md5Hex), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyMD5Password reports whether md5Hex matches encoded, an Argon2id
// hash minted by HashMD5Password.
func VerifyMD5Password(md5Hex, encoded string) (bool, error) {
	salt, want, time_, memory, threads, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(md5Hex), salt, time_, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decode(encoded string) (salt, hash []byte, time_ uint32, memory uint32, threads uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	var m, t int
	var p int
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, 0, 0, 0, ErrMalformedHash
	}
	return salt, hash, uint32(t), uint32(m), uint8(p), nil
}

// Cache memoizes Argon2 verification results, avoiding repeated Argon2
// work for a client that polls with the same credentials. Entries expire
// on their own TTL; the password-cache reaper additionally calls Sweep
// to proactively drop anything already past it (spec §4.7).
type Cache struct {
	inner *gocache.Cache
}

// NewCache builds a cache whose entries live for ttl (spec's
// password-cache `dead_secs`), swept lazily by go-cache's own internal
// janitor at cleanupInterval and explicitly by Sweep from the reaper.
func NewCache(ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{inner: gocache.New(ttl, cleanupInterval)}
}

func cacheKey(md5Hex, encodedHash string) string { return md5Hex + "|" + encodedHash }

// Verify checks the cache first; on a miss it runs Argon2, caches the
// result, and returns it.
func (c *Cache) Verify(md5Hex, encodedHash string) (bool, error) {
	key := cacheKey(md5Hex, encodedHash)
	if v, ok := c.inner.Get(key); ok {
		return v.(bool), nil
	}
	ok, err := VerifyMD5Password(md5Hex, encodedHash)
	if err != nil {
		return false, err
	}
	c.inner.SetDefault(key, ok)
	return ok, nil
}

// Sweep drops every already-expired entry immediately, rather than
// waiting for go-cache's background janitor tick.
func (c *Cache) Sweep() {
	c.inner.DeleteExpired()
}

// Len reports the number of cached entries, for metrics/testing.
func (c *Cache) Len() int { return c.inner.ItemCount() }
