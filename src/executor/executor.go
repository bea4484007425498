// Package executor moves elevators one floor per step, completes the requests delivered on
// arrival and re-targets elevators once a request stops being active.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"liftsim/src/elev"
	"liftsim/src/types"
)

// Store is the part of the entity store the executor reads and writes.
type Store interface {
	GetBuilding(ctx context.Context, id string) (types.Building, error)
	GetElevator(ctx context.Context, id string) (types.Elevator, error)
	UpdateElevator(ctx context.Context, id string, patch types.ElevatorPatch) (types.Elevator, error)
	GetRequest(ctx context.Context, id string) (types.Request, error)
	UpdateRequest(ctx context.Context, id string, patch types.RequestPatch) (types.Request, error)
	DeleteRequest(ctx context.Context, id string) error
	RestoreRequest(ctx context.Context, req types.Request) error
	FindActiveRequestsForElevator(ctx context.Context, elevatorID string) ([]types.Request, error)
	CompleteRequestsAtFloor(ctx context.Context, elevatorID string, floor int, at time.Time) ([]types.Request, error)
}

// IdleHook is called with the building id after an operation left an elevator idle. It runs
// after the elevator's manager has been released, so it may dispatch onto any elevator.
type IdleHook func(ctx context.Context, buildingID string)

type Executor struct {
	store  Store
	elevs  *elev.Registry
	now    func() time.Time
	onIdle IdleHook
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithIdleHook(hook IdleHook) Option {
	return func(e *Executor) { e.onIdle = hook }
}

func New(store Store, elevs *elev.Registry, opts ...Option) *Executor {
	e := &Executor{store: store, elevs: elevs, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step moves the elevator to targetFloor, completes every assigned or in-progress request of
// the elevator whose destination is targetFloor, and runs the cascade. Reaching a floor with
// nothing to deliver is not an error.
func (e *Executor) Step(ctx context.Context, elevatorID string, targetFloor int) (types.Elevator, error) {
	if _, err := e.store.GetElevator(ctx, elevatorID); err != nil {
		return types.Elevator{}, err
	}
	var result types.Elevator
	err := e.elevs.Exec(ctx, elevatorID, func() error {
		elevator, err := e.store.GetElevator(ctx, elevatorID)
		if err != nil {
			return err
		}
		building, err := e.store.GetBuilding(ctx, elevator.BuildingID)
		if err != nil {
			return err
		}
		if err := building.CheckFloor("targetFloor", targetFloor); err != nil {
			return err
		}
		if elevator.Status == types.Maintenance {
			return fmt.Errorf("elevator %q is in maintenance: %w", elevatorID, types.ErrConflict)
		}
		result, err = e.step(ctx, elevator, targetFloor)
		return err
	})
	if err != nil {
		return types.Elevator{}, err
	}
	e.notifyIdle(ctx, result)
	return result, nil
}

// step applies a validated step. Must run on the elevator's manager.
func (e *Executor) step(ctx context.Context, elevator types.Elevator, targetFloor int) (types.Elevator, error) {
	before, err := e.store.FindActiveRequestsForElevator(ctx, elevator.ID)
	if err != nil {
		return types.Elevator{}, err
	}

	dir := types.GetDirection(elevator.CurrentFloor, targetFloor)
	floor := targetFloor
	patch := types.Motion(dir.Status(), dir)
	patch.CurrentFloor = &floor
	moved, err := e.store.UpdateElevator(ctx, elevator.ID, patch)
	if err != nil {
		return types.Elevator{}, err
	}
	slog.Debug("Elevator stepped",
		"elevator", elevator.ID,
		"from", elevator.CurrentFloor,
		"to", targetFloor,
		"status", moved.Status)

	completed, err := e.store.CompleteRequestsAtFloor(ctx, elevator.ID, targetFloor, e.now())
	if err != nil {
		return types.Elevator{}, e.rollback(ctx, "step", err, elevator, nil)
	}
	for _, req := range completed {
		slog.Info("Request completed", "request", req.ID, "elevator", elevator.ID, "floor", targetFloor)
	}

	final, err := e.cascade(ctx, moved)
	if err != nil {
		return types.Elevator{}, e.rollback(ctx, "step", err, elevator, reopen(before, completed))
	}
	return final, nil
}

// UpdateElevator applies a manual update. Direction follows status when only status is
// given and vice versa. Unless the result is maintenance, the cascade then re-derives
// status and direction from the elevator's active requests.
func (e *Executor) UpdateElevator(ctx context.Context, elevatorID string, patch types.ElevatorPatch) (types.Elevator, error) {
	if _, err := e.store.GetElevator(ctx, elevatorID); err != nil {
		return types.Elevator{}, err
	}
	var result types.Elevator
	err := e.elevs.Exec(ctx, elevatorID, func() error {
		elevator, err := e.store.GetElevator(ctx, elevatorID)
		if err != nil {
			return err
		}
		building, err := e.store.GetBuilding(ctx, elevator.BuildingID)
		if err != nil {
			return err
		}
		normalized, err := normalizePatch(building, elevator, patch)
		if err != nil {
			return err
		}
		updated, err := e.store.UpdateElevator(ctx, elevatorID, normalized)
		if err != nil {
			return err
		}
		slog.Info("Elevator updated", "elevator", elevatorID, "status", updated.Status, "floor", updated.CurrentFloor)
		if updated.Status == types.Maintenance {
			result = updated
			return nil
		}
		result, err = e.cascade(ctx, updated)
		if err != nil {
			return e.rollback(ctx, "update elevator", err, elevator, nil)
		}
		return nil
	})
	if err != nil {
		return types.Elevator{}, err
	}
	e.notifyIdle(ctx, result)
	return result, nil
}

func normalizePatch(building types.Building, elevator types.Elevator, patch types.ElevatorPatch) (types.ElevatorPatch, error) {
	if patch.CurrentFloor != nil {
		if err := building.CheckFloor("currentFloor", *patch.CurrentFloor); err != nil {
			return patch, err
		}
	}
	status, dir := elevator.Status, elevator.Direction
	switch {
	case patch.Status != nil && patch.Direction != nil:
		status, dir = *patch.Status, *patch.Direction
	case patch.Status != nil:
		status = *patch.Status
		dir = types.DirectionOf(status)
	case patch.Direction != nil:
		dir = *patch.Direction
		status = dir.Status()
	}
	if !status.Valid() {
		return patch, fmt.Errorf("status %q: %w", status, types.ErrInvalidInput)
	}
	if !dir.Valid() {
		return patch, fmt.Errorf("direction %q: %w", dir, types.ErrInvalidInput)
	}
	if !types.Consistent(status, dir) {
		return patch, fmt.Errorf("status %q with direction %q: %w", status, dir, types.ErrInvalidInput)
	}
	out := types.Motion(status, dir)
	out.CurrentFloor = patch.CurrentFloor
	return out, nil
}

// Cascade recomputes the elevator's status and direction from its active requests.
func (e *Executor) Cascade(ctx context.Context, elevatorID string) (types.Elevator, error) {
	if _, err := e.store.GetElevator(ctx, elevatorID); err != nil {
		return types.Elevator{}, err
	}
	var result types.Elevator
	err := e.elevs.Exec(ctx, elevatorID, func() error {
		elevator, err := e.store.GetElevator(ctx, elevatorID)
		if err != nil {
			return err
		}
		result, err = e.cascade(ctx, elevator)
		return err
	})
	if err != nil {
		return types.Elevator{}, err
	}
	e.notifyIdle(ctx, result)
	return result, nil
}

func (e *Executor) notifyIdle(ctx context.Context, elevator types.Elevator) {
	if e.onIdle != nil && elevator.Status == types.Idle {
		e.onIdle(ctx, elevator.BuildingID)
	}
}

// reopen pairs each completed request with its state before completion.
func reopen(before, completed []types.Request) []types.Request {
	prior := make(map[string]types.Request, len(before))
	for _, req := range before {
		prior[req.ID] = req
	}
	var out []types.Request
	for _, req := range completed {
		if p, ok := prior[req.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}
