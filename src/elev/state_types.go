// State types for the per-elevator managers.
package elev

import (
	"errors"
	"sync"
)

// ErrStopped is returned for commands sent to a manager that has been stopped.
var ErrStopped = errors.New("elevator manager stopped")

// ElevStateCmd is a unit of work run by the manager goroutine of one elevator.
type ElevStateCmd struct {
	Exec  func() error
	Reply chan error
}

// ElevStateMgr owns one elevator and serializes every mutation to it.
type ElevStateMgr struct {
	ElevatorID string
	Cmds       chan ElevStateCmd
	done       chan struct{}
	stopOnce   sync.Once
}

// Registry hands out one manager per elevator id, starting managers on first use.
type Registry struct {
	mu     sync.Mutex
	mgrs   map[string]*ElevStateMgr
	closed bool
}
