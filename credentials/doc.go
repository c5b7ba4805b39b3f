/*
Package credentials implements user records on top of a hierarchical key-value
store.

A user is the directory users/<name> holding a passwd leaf with the salted
password hash and an optional admin leaf with "true" or "false".

Store serializes operations per username, so concurrent writes to one user
never interleave while different users proceed in parallel. Every remote call
runs under a per-call deadline. A failed call is reported as a
*interfaces.RemoteStoreError carrying the operation, path and status, and the
operation reports ok=false.

Store also keeps the set of usernames it has seen in this process. Remove only
issues remote calls for tracked users; Exists and Verify add users that were
written by an earlier process.
*/
package credentials
