package elev

import (
	"context"
	"log/slog"
)

// StartStateMgr starts the manager goroutine for one elevator.
func StartStateMgr(elevatorID string) *ElevStateMgr {
	elevMgr := &ElevStateMgr{
		ElevatorID: elevatorID,
		Cmds:       make(chan ElevStateCmd),
		done:       make(chan struct{}),
	}
	go func() {
		for {
			select {
			case cmd := <-elevMgr.Cmds:
				cmd.Reply <- cmd.Exec()
			case <-elevMgr.done:
				return
			}
		}
	}()
	slog.Debug("Elevator manager started", "elevator", elevatorID)
	return elevMgr
}

// Exec runs fn on the manager goroutine and returns its error. Commands run one at a time in
// arrival order. fn must not call Exec for the same elevator.
func (elevMgr *ElevStateMgr) Exec(ctx context.Context, fn func() error) error {
	cmd := ElevStateCmd{Exec: fn, Reply: make(chan error, 1)}
	select {
	case elevMgr.Cmds <- cmd:
	case <-elevMgr.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.Reply
}

// Stop ends the manager goroutine once the running command, if any, has finished.
func (elevMgr *ElevStateMgr) Stop() {
	elevMgr.stopOnce.Do(func() { close(elevMgr.done) })
}

func NewRegistry() *Registry {
	return &Registry{mgrs: make(map[string]*ElevStateMgr)}
}

// Mgr returns the manager for elevatorID, starting it if needed.
func (r *Registry) Mgr(elevatorID string) (*ElevStateMgr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStopped
	}
	elevMgr, ok := r.mgrs[elevatorID]
	if !ok {
		elevMgr = StartStateMgr(elevatorID)
		r.mgrs[elevatorID] = elevMgr
	}
	return elevMgr, nil
}

// Exec serializes fn with every other command for the same elevator.
func (r *Registry) Exec(ctx context.Context, elevatorID string, fn func() error) error {
	elevMgr, err := r.Mgr(elevatorID)
	if err != nil {
		return err
	}
	return elevMgr.Exec(ctx, fn)
}

// Close stops all managers. Later commands fail with ErrStopped.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for _, elevMgr := range r.mgrs {
		elevMgr.Stop()
	}
}
