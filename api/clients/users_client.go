package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/credential-store/api"
)

// StatusError is returned when the server answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// UsersClient implements api.UsersProvider against a running credential server.
type UsersClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// NewUsersClient creates a client for the user API.
//
// Parameters:
//   - baseURL: The base URL of the server (e.g., "http://localhost:8080")
//   - username, password: Administrator credentials sent as basic auth; may be empty
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewUsersClient(baseURL, username, password string, timeout ...time.Duration) *UsersClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = clientTimeout

	return &UsersClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: httpClient,
	}
}

// CreateUser creates a new user record.
func (c *UsersClient) CreateUser(req api.CreateUserRequest) (*api.UserResponse, error) {
	var result api.UserResponse
	if err := c.do(http.MethodPost, "/api/users", req, http.StatusCreated, &result); err != nil {
		return nil, fmt.Errorf("create user request failed: %w", err)
	}
	return &result, nil
}

// UpdateUser rewrites the password and optionally the admin flag of an existing user.
func (c *UsersClient) UpdateUser(username string, req api.UpdateUserRequest) (*api.UserResponse, error) {
	var result api.UserResponse
	if err := c.do(http.MethodPut, "/api/users/"+url.PathEscape(username), req, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("update user request failed: %w", err)
	}
	return &result, nil
}

// DeleteUser removes a user record.
func (c *UsersClient) DeleteUser(username string) (*api.UserResponse, error) {
	var result api.UserResponse
	if err := c.do(http.MethodDelete, "/api/users/"+url.PathEscape(username), nil, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("delete user request failed: %w", err)
	}
	return &result, nil
}

// VerifyUser checks a password. The verify endpoint needs no credentials.
func (c *UsersClient) VerifyUser(username, password string) (*api.VerifyResponse, error) {
	var result api.VerifyResponse
	path := "/api/users/" + url.PathEscape(username) + "/verify"
	if err := c.do(http.MethodPost, path, api.VerifyRequest{Password: password}, http.StatusOK, &result); err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	return &result, nil
}

func (c *UsersClient) do(method, path string, body interface{}, expected int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var errResp api.ErrorResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

var _ api.UsersProvider = (*UsersClient)(nil)
