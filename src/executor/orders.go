package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"liftsim/src/types"
)

const maxLockAttempts = 3

// UpdateRequest changes a request's status or elevator. Completing a request stamps its
// completion time; completedAt is only accepted on a completed request. Whenever the change affects which requests an elevator must serve, the
// cascade runs for the old elevator and then for the new one.
func (e *Executor) UpdateRequest(ctx context.Context, requestID string, patch types.RequestPatch) (types.Request, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return types.Request{}, fmt.Errorf("status %q: %w", *patch.Status, types.ErrInvalidInput)
	}
	current, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return types.Request{}, err
	}
	if patch.ElevatorID != nil && *patch.ElevatorID != "" {
		target, err := e.store.GetElevator(ctx, *patch.ElevatorID)
		if err != nil {
			return types.Request{}, err
		}
		if target.BuildingID != current.BuildingID {
			return types.Request{}, fmt.Errorf("elevator %q is not in building %q: %w", target.ID, current.BuildingID, types.ErrInvalidInput)
		}
	}
	final := current.Status
	if patch.Status != nil {
		final = *patch.Status
	}
	if patch.CompletedAt != nil && final != types.Completed {
		return types.Request{}, fmt.Errorf("completedAt on a %s request: %w", final, types.ErrInvalidInput)
	}
	if patch.Status != nil {
		if *patch.Status == types.Completed {
			if patch.CompletedAt == nil {
				now := e.now()
				patch.CompletedAt = &now
			}
		} else {
			patch.ClearCompletedAt = true
		}
	}

	var prev, updated types.Request
	var touched []types.Elevator
	err = e.lockRequest(ctx, requestID, func(locked types.Request) error {
		prev = locked
		var err error
		updated, err = e.store.UpdateRequest(ctx, requestID, patch)
		if err != nil {
			return err
		}
		slog.Info("Request updated", "request", requestID, "status", updated.Status, "elevator", updated.ElevatorID)
		if prev.ElevatorID == "" || !servingChanged(prev, updated) {
			return nil
		}
		after, err := e.cascadeByID(ctx, prev.ElevatorID)
		if err != nil {
			return e.rollback(ctx, "update request", err, types.Elevator{}, []types.Request{prev})
		}
		touched = append(touched, after)
		return nil
	})
	if err != nil {
		return types.Request{}, err
	}

	if updated.ElevatorID != "" && updated.ElevatorID != prev.ElevatorID && updated.Status.Active() {
		after, err := e.cascadeNewElevator(ctx, updated.ElevatorID, prev)
		if err != nil {
			return types.Request{}, err
		}
		touched = append(touched, after)
	}
	for _, elevator := range touched {
		e.notifyIdle(ctx, elevator)
	}
	return updated, nil
}

// cascadeNewElevator runs the cascade for an elevator that just received a request. On
// failure the request goes back to prev and the previous elevator is cascaded again.
func (e *Executor) cascadeNewElevator(ctx context.Context, elevatorID string, prev types.Request) (types.Elevator, error) {
	var after types.Elevator
	err := e.elevs.Exec(ctx, elevatorID, func() error {
		var err error
		after, err = e.cascadeByID(ctx, elevatorID)
		if err != nil {
			return e.rollback(ctx, "assign request", err, types.Elevator{}, []types.Request{prev})
		}
		return nil
	})
	if err == nil {
		return after, nil
	}
	if prev.ElevatorID != "" {
		if _, cerr := e.Cascade(ctx, prev.ElevatorID); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return types.Elevator{}, err
}

// DeleteRequest removes a request. If it was still active on an elevator, the cascade runs
// for that elevator; a failing cascade re-inserts the request.
func (e *Executor) DeleteRequest(ctx context.Context, requestID string) error {
	var idle types.Elevator
	err := e.lockRequest(ctx, requestID, func(prev types.Request) error {
		if err := e.store.DeleteRequest(ctx, requestID); err != nil {
			return err
		}
		slog.Info("Request deleted", "request", requestID, "elevator", prev.ElevatorID)
		if prev.ElevatorID == "" || !prev.Status.Active() {
			return nil
		}
		after, err := e.cascadeByID(ctx, prev.ElevatorID)
		if err != nil {
			return e.rollback(ctx, "delete request", err, types.Elevator{}, []types.Request{prev})
		}
		idle = after
		return nil
	})
	if err != nil {
		return err
	}
	e.notifyIdle(ctx, idle)
	return nil
}

// lockRequest runs fn on the manager of the request's elevator with the request as read
// there. Unassigned requests run fn directly. If the request moves to another elevator
// before the manager picks up the command, the lookup is retried.
func (e *Executor) lockRequest(ctx context.Context, requestID string, fn func(req types.Request) error) error {
	for range maxLockAttempts {
		req, err := e.store.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ElevatorID == "" {
			return fn(req)
		}
		moved := false
		err = e.elevs.Exec(ctx, req.ElevatorID, func() error {
			locked, err := e.store.GetRequest(ctx, requestID)
			if err != nil {
				return err
			}
			if locked.ElevatorID != req.ElevatorID {
				moved = true
				return nil
			}
			return fn(locked)
		})
		if err != nil || !moved {
			return err
		}
	}
	return fmt.Errorf("request %q keeps changing elevator: %w", requestID, types.ErrConflict)
}

// cascadeByID reads the elevator and runs the cascade. Must run on the elevator's manager.
func (e *Executor) cascadeByID(ctx context.Context, elevatorID string) (types.Elevator, error) {
	elevator, err := e.store.GetElevator(ctx, elevatorID)
	if err != nil {
		return types.Elevator{}, err
	}
	return e.cascade(ctx, elevator)
}

// servingChanged reports whether the update changes what the previous elevator has to serve.
func servingChanged(prev, updated types.Request) bool {
	return prev.ElevatorID != updated.ElevatorID || prev.Status.Active() != updated.Status.Active()
}
