package api

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`

	// Admin is optional; omitted means the admin leaf is not written.
	Admin *bool `json:"admin,omitempty"`
}

// UpdateUserRequest is the body of PUT /api/users/{username}.
type UpdateUserRequest struct {
	Password string `json:"password"`
	Admin    *bool  `json:"admin,omitempty"`
}

// VerifyRequest is the body of POST /api/users/{username}/verify.
type VerifyRequest struct {
	Password string `json:"password"`
}

// UserResponse is returned by the create, update and delete endpoints.
type UserResponse struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// VerifyResponse reports the outcome of a password check.
type VerifyResponse struct {
	Username string `json:"username"`
	Valid    bool   `json:"valid"`
	Admin    bool   `json:"admin"`
}

// ErrorResponse carries the message of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UsersProvider manages user records through the HTTP API.
type UsersProvider interface {
	CreateUser(req CreateUserRequest) (*UserResponse, error)
	UpdateUser(username string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(username string) (*UserResponse, error)
	VerifyUser(username, password string) (*VerifyResponse, error)
}
