package storage

import (
	"net/http"
	"strings"

	"github.com/ruteri/credential-store/interfaces"
)

// cleanPath strips leading and trailing separators so "users/" and "/users"
// address the same node.
func cleanPath(p string) string {
	return strings.Trim(p, "/")
}

// splitPath returns the non-empty segments of p.
func splitPath(p string) []string {
	p = cleanPath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// joinPrefix prepends a backend-specific prefix to a store path.
func joinPrefix(prefix, p string) string {
	prefix = cleanPath(prefix)
	p = cleanPath(p)
	switch {
	case prefix == "":
		return p
	case p == "":
		return prefix
	default:
		return prefix + "/" + p
	}
}

func status(code int) *interfaces.Response {
	return &interfaces.Response{Status: code}
}

func leafResponse(value []byte) *interfaces.Response {
	return &interfaces.Response{Status: http.StatusOK, Body: value, Value: string(value)}
}

func dirResponse() *interfaces.Response {
	return &interfaces.Response{Status: http.StatusOK, Dir: true}
}
