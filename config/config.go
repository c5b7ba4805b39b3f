// Package config holds the validated, immutable startup configuration of the
// credential store.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ruteri/credential-store/interfaces"
)

const (
	// MinPasswordLength is the shortest accepted administrator password.
	MinPasswordLength = 6

	// DefaultCallTimeout bounds each call against the store unless overridden.
	DefaultCallTimeout = 10 * time.Second
)

var adminNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Params are the raw configuration inputs, as read from flags or the environment.
type Params struct {
	StoreURI      string
	AdminName     string
	AdminPassword string
	Ephemeral     bool
	CallTimeout   time.Duration

	// MirrorURIs are optional extra stores that receive every write.
	MirrorURIs []string
}

// Config is the validated configuration. It can only be built by New and is
// never modified afterwards, so a *Config may be shared freely.
type Config struct {
	location      interfaces.StoreLocation
	adminName     string
	adminPassword string
	ephemeral     bool
	callTimeout   time.Duration
	mirrors       []interfaces.StoreLocation
}

// New validates p and returns the configuration. The returned error wraps
// ErrConfigValidation and lists every violation found.
func New(p Params) (*Config, error) {
	var problems []error

	location, err := interfaces.NewStoreLocation(p.StoreURI)
	if err != nil {
		problems = append(problems, fmt.Errorf("store uri: %w", err))
	}

	if !adminNamePattern.MatchString(p.AdminName) {
		problems = append(problems, fmt.Errorf("admin name %q must be a non-empty token of letters, digits and underscores", p.AdminName))
	}

	if len(p.AdminPassword) < MinPasswordLength {
		problems = append(problems, fmt.Errorf("admin password must be at least %d characters", MinPasswordLength))
	}

	var mirrors []interfaces.StoreLocation
	for _, uri := range p.MirrorURIs {
		mirror, err := interfaces.NewStoreLocation(uri)
		if err != nil {
			problems = append(problems, fmt.Errorf("mirror uri: %w", err))
			continue
		}
		mirrors = append(mirrors, mirror)
	}

	if p.CallTimeout < 0 {
		problems = append(problems, fmt.Errorf("call timeout must not be negative, got %s", p.CallTimeout))
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	timeout := p.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	return &Config{
		location:      location,
		adminName:     p.AdminName,
		adminPassword: p.AdminPassword,
		ephemeral:     p.Ephemeral,
		callTimeout:   timeout,
		mirrors:       mirrors,
	}, nil
}

// ValidationError lists every problem found in Params.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("%s: %s", interfaces.ErrConfigValidation, strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrConfigValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == interfaces.ErrConfigValidation
}

func (e *ValidationError) Unwrap() error {
	return errors.Join(e.Problems...)
}

// StoreLocation returns the parsed store endpoint.
func (c *Config) StoreLocation() interfaces.StoreLocation {
	return c.location
}

// StoreURI returns the store endpoint as configured.
func (c *Config) StoreURI() string {
	return c.location.String()
}

// AdminName returns the default administrator's username.
func (c *Config) AdminName() string {
	return c.adminName
}

// AdminPassword returns the default administrator's password.
func (c *Config) AdminPassword() string {
	return c.adminPassword
}

// Ephemeral reports whether startup side effects on the store are disabled.
func (c *Config) Ephemeral() bool {
	return c.ephemeral
}

// CallTimeout returns the deadline applied to each store call.
func (c *Config) CallTimeout() time.Duration {
	return c.callTimeout
}

// MirrorLocations returns the parsed mirror endpoints, if any.
func (c *Config) MirrorLocations() []interfaces.StoreLocation {
	return append([]interfaces.StoreLocation(nil), c.mirrors...)
}

// String describes the configuration without the password.
func (c *Config) String() string {
	desc := fmt.Sprintf("store=%s admin=%s ephemeral=%t timeout=%s", c.location.Redacted(), c.adminName, c.ephemeral, c.callTimeout)
	for _, m := range c.mirrors {
		desc += " mirror=" + m.Redacted()
	}
	return desc
}
