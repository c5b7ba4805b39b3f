/*
Package httpserver implements the HTTP server of the credential store.

Handler translates the user API onto an interfaces.CredentialStore. Store
errors are mapped onto HTTP statuses:

  - invalid usernames and malformed bodies - 400 Bad Request
  - unknown users - 404 Not Found
  - creating a user that already exists - 409 Conflict
  - remote store failures - 502 Bad Gateway

AdminAuth guards the mutating endpoints with HTTP basic auth, checked against
administrator records in the same store.

Server wires the handler into a chi router with request logging, and adds the
liveness, readiness and drain endpoints. Optional pprof handlers are mounted
under /debug.

The server is created ready. It must only be started once the store has been
bootstrapped.
*/
package httpserver
