package credentials

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocks(t *testing.T) {
	locks := newUserLocks()

	unlockA := locks.lock("alice")
	assert.Equal(t, 1, locks.size())

	acquired := make(chan struct{})
	go func() {
		unlock := locks.lock("alice")
		close(acquired)
		unlock()
	}()

	// a different username is not blocked
	unlockB := locks.lock("bob")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}

	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock was never handed over")
	}

	assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, time.Millisecond)
}
