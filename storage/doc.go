// Package storage provides clients for hierarchical key-value stores.
//
// Every backend implements interfaces.KeyValueClient with the status contract
// of the etcd v2 keys API: a get answers 200 or 404, a create answers 201, a
// mkdir on an existing node answers 412, and writing a leaf over a directory or
// deleting a directory without recursion answers 403. Transport failures are
// returned as errors wrapping interfaces.ErrBackendUnavailable, never as statuses.
//
// # Backends
//
//   - EtcdBackend - etcd v2 keys API over HTTP, optionally found through DNS SRV records
//   - VaultBackend - Vault KV v2, directories kept as marker secrets
//   - S3Backend - S3 or compatible object storage, directories kept as "<key>/" objects
//   - IPFSBackend - IPFS mutable file system
//   - BoltBackend - local bbolt database, directories are nested buckets
//   - FileBackend - local directory tree
//   - MemoryBackend - process-local store that records calls, for tests and ephemeral runs
//
// # Store URI Format
//
// Backends are selected by ClientFactory from a URI:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// For example:
//
//   - http://127.0.0.1:2379
//   - etcd+srv://example.com?resolver=10.0.0.2:53
//   - vault://vault.example.com:8200/secret/credstore?token=...
//   - s3://KEY:SECRET@bucket/prefix?region=us-west-2
//   - ipfs://127.0.0.1:5001/credstore
//   - bolt:///var/lib/credstore/store.db
//   - file:///var/lib/credstore/tree
//   - memory://
//
// # Wrappers
//
// WithTimeout bounds every call with a deadline. MultiBackend mirrors writes to
// several stores and falls back through them on reads.
package storage
