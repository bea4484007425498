package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"liftsim/src/types"
)

// cascade aims the elevator at the pickup floor of its most urgent active request, or idles
// it when none is left. Elevators in maintenance are left as they are. Must run on the
// elevator's manager.
func (e *Executor) cascade(ctx context.Context, elevator types.Elevator) (types.Elevator, error) {
	if elevator.Status == types.Maintenance {
		return elevator, nil
	}
	active, err := e.store.FindActiveRequestsForElevator(ctx, elevator.ID)
	if err != nil {
		return types.Elevator{}, fmt.Errorf("cascade elevator %q: %w", elevator.ID, err)
	}

	dir := types.DirNone
	if len(active) > 0 {
		dir = types.HeadingTo(elevator.CurrentFloor, active[0].FromFloor)
	}
	if elevator.Status == dir.Status() && elevator.Direction == dir {
		return elevator, nil
	}

	updated, err := e.store.UpdateElevator(ctx, elevator.ID, types.Motion(dir.Status(), dir))
	if err != nil {
		return types.Elevator{}, fmt.Errorf("cascade elevator %q: %w", elevator.ID, err)
	}
	if len(active) == 0 {
		slog.Info("Elevator idle", "elevator", elevator.ID, "floor", updated.CurrentFloor)
	} else {
		slog.Debug("Elevator re-targeted",
			"elevator", elevator.ID,
			"request", active[0].ID,
			"pickup", active[0].FromFloor,
			"direction", dir)
	}
	return updated, nil
}

// rollback undoes a partly applied operation: the elevator gets its earlier floor, status
// and direction back and each request in requests is returned to its earlier status. The
// original cause is returned joined with any rollback failure.
func (e *Executor) rollback(ctx context.Context, op string, cause error, elevator types.Elevator, requests []types.Request) error {
	errs := []error{cause}
	if elevator.ID != "" {
		floor, status, dir := elevator.CurrentFloor, elevator.Status, elevator.Direction
		patch := types.ElevatorPatch{CurrentFloor: &floor, Status: &status, Direction: &dir}
		if _, err := e.store.UpdateElevator(ctx, elevator.ID, patch); err != nil {
			errs = append(errs, fmt.Errorf("restore elevator %q: %w", elevator.ID, err))
		}
	}
	for _, req := range requests {
		if err := e.restoreRequest(ctx, req); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if len(errs) > 1 {
		slog.Error("Rollback incomplete", "op", op, "elevator", elevator.ID, "error", err)
	} else {
		slog.Warn("Rolled back", "op", op, "elevator", elevator.ID, "cause", cause)
	}
	return err
}

// restoreRequest puts a request back into the state captured in req, re-inserting it if it
// was deleted.
func (e *Executor) restoreRequest(ctx context.Context, req types.Request) error {
	status, elevatorID := req.Status, req.ElevatorID
	patch := types.RequestPatch{Status: &status, ElevatorID: &elevatorID}
	if req.CompletedAt == nil {
		patch.ClearCompletedAt = true
	} else {
		patch.CompletedAt = req.CompletedAt
	}
	_, err := e.store.UpdateRequest(ctx, req.ID, patch)
	if errors.Is(err, types.ErrNotFound) {
		err = e.store.RestoreRequest(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("restore request %q: %w", req.ID, err)
	}
	return nil
}
