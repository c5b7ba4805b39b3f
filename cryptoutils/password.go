package cryptoutils

import (
	"context"
	"crypto/md5"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PasswordIterations is the PBKDF2 iteration count for stored password hashes.
	PasswordIterations = 10000

	// PasswordKeyLen is the derived key length in bytes. Hex encoding doubles it.
	PasswordKeyLen = 64
)

var errInvalidHasherParams = errors.New("invalid password hasher parameters")

// PasswordHasher derives a storable, non-reversible hash from a username and password.
type PasswordHasher interface {
	Derive(username, password string) (string, error)
}

// PBKDF2Hasher derives password hashes with PBKDF2-HMAC-SHA512 keyed by a
// deterministic per-username salt: the lowercase hex MD5 digest of the username.
// The salt never has to be stored because it can be recomputed from the username.
type PBKDF2Hasher struct {
	Iterations int
	KeyLen     int
}

// DefaultPasswordHasher uses 10000 iterations and a 64-byte key.
var DefaultPasswordHasher = &PBKDF2Hasher{
	Iterations: PasswordIterations,
	KeyLen:     PasswordKeyLen,
}

// PasswordSalt returns the salt used for username.
func PasswordSalt(username string) string {
	sum := md5.Sum([]byte(username))
	return hex.EncodeToString(sum[:])
}

// Derive returns the hex-encoded derived key for the given credentials.
func (h *PBKDF2Hasher) Derive(username, password string) (string, error) {
	if h.Iterations <= 0 || h.KeyLen <= 0 {
		return "", fmt.Errorf("%w: iterations=%d keylen=%d", errInvalidHasherParams, h.Iterations, h.KeyLen)
	}

	salt := PasswordSalt(username)
	key := pbkdf2.Key([]byte(password), []byte(salt), h.Iterations, h.KeyLen, sha512.New)
	return hex.EncodeToString(key), nil
}

// DerivePassword is the blocking form using DefaultPasswordHasher.
func DerivePassword(username, password string) (string, error) {
	return DefaultPasswordHasher.Derive(username, password)
}

// DeriveResult is delivered by DerivePasswordAsync.
type DeriveResult struct {
	Hash string
	Err  error
}

// DerivePasswordAsync runs the derivation on its own goroutine and delivers the
// result on the returned channel, which receives exactly one value. If ctx is done
// first, the result carries ctx.Err().
func DerivePasswordAsync(ctx context.Context, hasher PasswordHasher, username, password string) <-chan DeriveResult {
	out := make(chan DeriveResult, 1)
	done := make(chan DeriveResult, 1)

	go func() {
		hash, err := hasher.Derive(username, password)
		done <- DeriveResult{Hash: hash, Err: err}
	}()

	go func() {
		select {
		case res := <-done:
			out <- res
		case <-ctx.Done():
			out <- DeriveResult{Err: ctx.Err()}
		}
	}()

	return out
}

// VerifyPassword checks a password against a stored hash in constant time.
func VerifyPassword(hasher PasswordHasher, username, password, storedHash string) (bool, error) {
	candidate, err := hasher.Derive(username, password)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(storedHash)) == 1, nil
}
