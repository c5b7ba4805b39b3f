package interfaces

import (
	"context"
	"fmt"
	"strconv"
)

// AdminFlag is the optional admin marker of a user record.
// AdminUnset means the admin leaf is left untouched.
type AdminFlag int

const (
	AdminUnset AdminFlag = iota
	AdminFalse
	AdminTrue
)

// NewAdminFlag converts an optional bool into an AdminFlag.
func NewAdminFlag(admin *bool) AdminFlag {
	switch {
	case admin == nil:
		return AdminUnset
	case *admin:
		return AdminTrue
	default:
		return AdminFalse
	}
}

// IsSet reports whether the flag should be written.
func (f AdminFlag) IsSet() bool {
	return f == AdminTrue || f == AdminFalse
}

// Value returns the stored representation of the flag.
func (f AdminFlag) Value() string {
	return strconv.FormatBool(f == AdminTrue)
}

func (f AdminFlag) String() string {
	switch f {
	case AdminUnset:
		return "unset"
	case AdminFalse:
		return "false"
	case AdminTrue:
		return "true"
	default:
		return fmt.Sprintf("AdminFlag(%d)", int(f))
	}
}

// UserProvisioner creates or updates user records.
type UserProvisioner interface {
	// Update derives the password hash and writes the user record.
	// modify=false creates the user root first; modify=true only rewrites the password.
	Update(ctx context.Context, username, password string, admin AdminFlag, modify bool) (bool, error)
}

// CredentialStore manages user records in the remote store.
type CredentialStore interface {
	UserProvisioner

	// Remove deletes a tracked user record.
	Remove(ctx context.Context, username string) (bool, error)

	// Verify checks a password against the stored hash.
	Verify(ctx context.Context, username, password string) (bool, error)

	// IsAdmin reports whether the user carries the admin flag.
	IsAdmin(ctx context.Context, username string) (bool, error)

	// Exists reports whether the user root is present in the store.
	Exists(ctx context.Context, username string) (bool, error)
}
