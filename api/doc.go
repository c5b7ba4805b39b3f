/*
Package api defines the wire types of the credential server.

The server exposes a small JSON API over a credential store:

  - POST /api/users - Create a user
  - PUT /api/users/{username} - Change a user's password and optionally the admin flag
  - DELETE /api/users/{username} - Remove a user and everything below it
  - POST /api/users/{username}/verify - Check a password
  - GET /livez, /readyz, /drain, /undrain - Health and load balancer control

When HTTPServerConfig.RequireAdminAuth is set, the create, update and delete
endpoints require HTTP basic auth credentials of an administrator. Password
verification is always open.

The clients subpackage implements UsersProvider against a running server.
*/
package api
