// Package interfaces defines core interfaces and types for the credential store,
// separating interface definitions from implementations.
//
// # Store Interfaces
//
// KeyValueClient: get/set/mkdir/delete against a remote hierarchical key-value
// store addressed by slash-delimited paths. Every call returns an HTTP-style
// status (200 existing, 201 created, 404 absent) and an optional body.
//
// KeyValueClientFactory: creates clients from a StoreLocation URI
// (etcd, Vault, S3, IPFS, bbolt, local directory tree, in-memory).
//
// # Credential Interfaces
//
// UserProvisioner and CredentialStore: create, update, verify and remove
// user records. AdminFlag is the tri-state admin marker (unset, false, true).
//
// # Errors
//
// ErrConfigValidation and ErrBootstrap are fatal at startup. ErrInvalidUsername,
// ErrUserNotFound and ErrRemoteStore are returned to the caller of a single
// user operation. RemoteStoreError and BootstrapError carry details and match
// their sentinels with errors.Is.
package interfaces
