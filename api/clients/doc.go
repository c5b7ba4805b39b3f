/*
Package clients provides a client library for the credential server's user API.

UsersClient implements api.UsersProvider. Mutating calls carry administrator
credentials as HTTP basic auth; password verification needs none.

	client := clients.NewUsersClient("http://localhost:8080", "admin", password)
	resp, err := client.VerifyUser("alice", "hunter12")

Unexpected response codes are returned as *StatusError, carrying the status
and the server's error message.
*/
package clients
