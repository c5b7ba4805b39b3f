// Package keylayout maps usernames to the store paths that make up a user record.
//
// A user record is not a single object but a set of keys under the users/ namespace:
//
//	users/                 namespace root
//	users/<name>           user root, a directory node marking existence
//	users/<name>/passwd    leaf holding the hex password hash
//	users/<name>/admin     leaf holding "true" or "false", present only when set
package keylayout

import (
	"fmt"
	"strings"

	"github.com/ruteri/credential-store/interfaces"
)

const (
	namespace  = "users"
	passwdLeaf = "passwd"
	adminLeaf  = "admin"
)

// NamespaceRoot returns the path of the users namespace.
func NamespaceRoot() string {
	return namespace + "/"
}

// ValidateUsername rejects names that cannot be used verbatim as a single path segment.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: empty", interfaces.ErrInvalidUsername)
	case strings.ContainsAny(username, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", interfaces.ErrInvalidUsername, username)
	case username == "." || username == "..":
		return fmt.Errorf("%w: %q is a relative path segment", interfaces.ErrInvalidUsername, username)
	}
	return nil
}

// UserRoot returns users/<username>.
func UserRoot(username string) (string, error) {
	if err := ValidateUsername(username); err != nil {
		return "", err
	}
	return namespace + "/" + username, nil
}

// PasswdLeaf returns users/<username>/passwd.
func PasswdLeaf(username string) (string, error) {
	root, err := UserRoot(username)
	if err != nil {
		return "", err
	}
	return root + "/" + passwdLeaf, nil
}

// AdminLeaf returns users/<username>/admin.
func AdminLeaf(username string) (string, error) {
	root, err := UserRoot(username)
	if err != nil {
		return "", err
	}
	return root + "/" + adminLeaf, nil
}

// Paths holds every key of one user record.
type Paths struct {
	Root   string
	Passwd string
	Admin  string
}

// ForUser validates username once and returns all its paths.
func ForUser(username string) (Paths, error) {
	root, err := UserRoot(username)
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		Root:   root,
		Passwd: root + "/" + passwdLeaf,
		Admin:  root + "/" + adminLeaf,
	}, nil
}
