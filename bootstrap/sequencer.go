// Package bootstrap prepares the store on process start: it makes sure the
// users/ namespace exists and, only when it had to create it, provisions the
// default administrator.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/credential-store/config"
	"github.com/ruteri/credential-store/interfaces"
	"github.com/ruteri/credential-store/keylayout"
)

// State is a step of the startup sequence.
type State int

const (
	StateUnchecked State = iota
	StateNamespaceChecked
	StateNamespaceExists
	StateNamespaceCreated
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateNamespaceChecked:
		return "namespace-checked"
	case StateNamespaceExists:
		return "namespace-exists"
	case StateNamespaceCreated:
		return "namespace-created"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrAlreadyRun is returned by a second Run on the same Sequencer.
var ErrAlreadyRun = errors.New("bootstrap already ran")

// Sequencer runs the startup sequence once.
type Sequencer struct {
	client interfaces.KeyValueClient
	users  interfaces.UserProvisioner
	cfg    *config.Config
	log    *slog.Logger

	mu    sync.Mutex
	state State
	ran   bool
}

// NewSequencer creates a sequencer. users provisions the default administrator.
func NewSequencer(client interfaces.KeyValueClient, users interfaces.UserProvisioner, cfg *config.Config, log *slog.Logger) *Sequencer {
	return &Sequencer{
		client: client,
		users:  users,
		cfg:    cfg,
		log:    log,
		state:  StateUnchecked,
	}
}

// State returns the current step.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()
	s.log.Debug("bootstrap transition", slog.String("from", from.String()), slog.String("to", to.String()))
}

// Run executes the sequence. An existing namespace is left untouched; a missing
// one is created and followed by the default administrator. Any failure returns
// a *interfaces.BootstrapError and leaves the sequencer in StateFailed.
//
// In ephemeral mode nothing is done and the state stays StateUnchecked.
func (s *Sequencer) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	s.ran = true
	s.mu.Unlock()

	if s.cfg.Ephemeral() {
		s.log.Info("ephemeral mode, skipping bootstrap")
		return nil
	}

	root := keylayout.NamespaceRoot()

	resp, err := s.client.Get(ctx, root)
	if err != nil {
		return s.fail("check namespace", err)
	}
	s.transition(StateNamespaceChecked)

	if resp.OK() {
		s.transition(StateNamespaceExists)
		s.log.Info("namespace exists", slog.String("path", root), slog.String("backend", s.client.Name()))
		s.transition(StateReady)
		return nil
	}
	if !resp.NotFound() {
		return s.fail("check namespace", fmt.Errorf("unexpected status %d", resp.Status))
	}

	resp, err = s.client.Mkdir(ctx, root)
	if err != nil {
		return s.fail("create namespace", err)
	}
	if !resp.Success() {
		return s.fail("create namespace", interfaces.NewRemoteStoreError("mkdir", root, resp, nil))
	}
	s.transition(StateNamespaceCreated)
	s.log.Info("namespace created", slog.String("path", root), slog.String("backend", s.client.Name()))

	ok, err := s.users.Update(ctx, s.cfg.AdminName(), s.cfg.AdminPassword(), interfaces.AdminTrue, false)
	if err != nil {
		return s.fail("create admin", err)
	}
	if !ok {
		return s.fail("create admin", errors.New("administrator was not written"))
	}
	s.log.Info("default administrator created", slog.String("username", s.cfg.AdminName()))

	s.transition(StateReady)
	return nil
}

func (s *Sequencer) fail(stage string, err error) error {
	s.transition(StateFailed)
	s.log.Error("bootstrap failed", slog.String("stage", stage), "err", err)
	return &interfaces.BootstrapError{Stage: stage, Err: err}
}
