// Package main (cmd/credadmin) is the command line client of the credential
// server.
//
// The hash and verify-hash commands work offline and compute the same salted
// PBKDF2 hash the server stores. The add-user, passwd, remove-user and check
// commands talk to a running server; the first three authenticate as an
// administrator with HTTP basic auth.
//
// Passwords not given as flags are read from the terminal without echo.
//
// Example usage:
//
//	credadmin add-user --auth-user=admin -u alice --admin
//	credadmin check -u alice
package main
