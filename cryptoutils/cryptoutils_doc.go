// Package cryptoutils provides the password hashing used for stored credentials.
//
// Passwords are never stored. What is stored is a PBKDF2-HMAC-SHA512 derived
// key, 10000 iterations and 64 bytes long, hex encoded:
//
//	salt = hex(md5(username))
//	hash = hex(pbkdf2(password, salt, 10000, 64, sha512))
//
// The salt is a pure function of the username so it never has to be stored,
// and two users with the same password end up with different hashes.
//
// # Key Functions
//
//   - DerivePassword - Hash a password with the default parameters
//   - DerivePasswordAsync - Hash off the calling goroutine, honoring cancellation
//   - VerifyPassword - Compare a password against a stored hash in constant time
//
// Derivation is deliberately slow; callers on request paths should use
// DerivePasswordAsync so a cancelled request does not wait for it.
package cryptoutils
