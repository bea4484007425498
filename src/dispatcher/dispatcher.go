// Package dispatcher assigns new requests to the nearest elevator that can take them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"liftsim/src/elev"
	"liftsim/src/types"
)

type Store interface {
	GetBuilding(ctx context.Context, id string) (types.Building, error)
	GetElevator(ctx context.Context, id string) (types.Elevator, error)
	ListElevators(ctx context.Context, buildingID string) ([]types.ElevatorView, error)
	UpdateElevator(ctx context.Context, id string, patch types.ElevatorPatch) (types.Elevator, error)
	CreateRequest(ctx context.Context, in types.NewRequest) (types.Request, error)
	GetRequest(ctx context.Context, id string) (types.Request, error)
	UpdateRequest(ctx context.Context, id string, patch types.RequestPatch) (types.Request, error)
	ListPendingRequests(ctx context.Context, buildingID string) ([]types.Request, error)
}

type Dispatcher struct {
	store Store
	elevs *elev.Registry
}

func New(store Store, elevs *elev.Registry) *Dispatcher {
	return &Dispatcher{store: store, elevs: elevs}
}

// CreateRequest validates and stores a new request, then assigns it. A request no elevator
// can take is returned pending without an error. If assignment fails the stored request is
// returned along with the error and stays pending.
func (d *Dispatcher) CreateRequest(ctx context.Context, in types.NewRequest) (types.Request, error) {
	if in.BuildingID == "" {
		return types.Request{}, fmt.Errorf("buildingId is required: %w", types.ErrInvalidInput)
	}
	building, err := d.store.GetBuilding(ctx, in.BuildingID)
	if err != nil {
		return types.Request{}, err
	}
	if err := in.Validate(building); err != nil {
		return types.Request{}, err
	}
	req, err := d.store.CreateRequest(ctx, in)
	if err != nil {
		return types.Request{}, err
	}
	slog.Info("Request created",
		"request", req.ID,
		"from", req.FromFloor,
		"to", req.ToFloor,
		"priority", req.Priority)
	assigned, err := d.Assign(ctx, req.ID)
	if err != nil {
		return req, fmt.Errorf("assign request %q: %w", req.ID, err)
	}
	return assigned, nil
}

// Assign hands a pending, unassigned request to the closest eligible elevator and aims that
// elevator at the pickup floor. Requests that are no longer pending are returned unchanged.
func (d *Dispatcher) Assign(ctx context.Context, requestID string) (types.Request, error) {
	req, err := d.store.GetRequest(ctx, requestID)
	if err != nil {
		return types.Request{}, err
	}
	excluded := make(map[string]bool)
	for {
		views, err := d.store.ListElevators(ctx, req.BuildingID)
		if err != nil {
			return types.Request{}, err
		}
		elevators := make([]types.Elevator, len(views))
		for i, v := range views {
			elevators[i] = v.Elevator
		}
		candidate, ok := closestElevator(elevators, req.FromFloor, excluded)
		if !ok {
			slog.Warn("No elevator available, request stays pending", "request", req.ID)
			return d.store.GetRequest(ctx, requestID)
		}

		var result types.Request
		retry := false
		err = d.elevs.Exec(ctx, candidate.ID, func() error {
			elevator, err := d.store.GetElevator(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !elevator.Status.Eligible() {
				retry = true
				return nil
			}
			result, err = d.assignTo(ctx, requestID, elevator)
			return err
		})
		if err != nil {
			return types.Request{}, err
		}
		if !retry {
			return result, nil
		}
		slog.Debug("Elevator became unavailable, selecting again", "elevator", candidate.ID, "request", requestID)
		excluded[candidate.ID] = true
	}
}

// assignTo must run on the elevator's manager.
func (d *Dispatcher) assignTo(ctx context.Context, requestID string, elevator types.Elevator) (types.Request, error) {
	req, err := d.store.GetRequest(ctx, requestID)
	if err != nil {
		return types.Request{}, err
	}
	if req.Status != types.Pending || req.ElevatorID != "" {
		return req, nil
	}

	assigned, id := types.Assigned, elevator.ID
	updated, err := d.store.UpdateRequest(ctx, requestID, types.RequestPatch{Status: &assigned, ElevatorID: &id})
	if err != nil {
		return types.Request{}, err
	}
	dir := types.HeadingTo(elevator.CurrentFloor, req.FromFloor)
	if _, err := d.store.UpdateElevator(ctx, elevator.ID, types.Motion(dir.Status(), dir)); err != nil {
		pending, none := types.Pending, ""
		if _, rerr := d.store.UpdateRequest(ctx, requestID, types.RequestPatch{Status: &pending, ElevatorID: &none}); rerr != nil {
			err = errors.Join(err, fmt.Errorf("reopen request %q: %w", requestID, rerr))
			slog.Error("Rollback incomplete", "op", "assign", "request", requestID, "error", err)
		}
		return types.Request{}, err
	}
	slog.Info("Request assigned",
		"request", requestID,
		"elevator", elevator.ID,
		"distance", distance(elevator, req.FromFloor),
		"direction", dir)
	return updated, nil
}

// AssignPending retries every pending, unassigned request of the building, most urgent first.
func (d *Dispatcher) AssignPending(ctx context.Context, buildingID string) error {
	pending, err := d.store.ListPendingRequests(ctx, buildingID)
	if err != nil {
		return err
	}
	for _, req := range pending {
		updated, err := d.Assign(ctx, req.ID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if updated.Status == types.Pending {
			// Nothing eligible is left for the rest either.
			return nil
		}
	}
	return nil
}

// OnIdle adapts AssignPending to the executor's idle hook.
func (d *Dispatcher) OnIdle(ctx context.Context, buildingID string) {
	if err := d.AssignPending(ctx, buildingID); err != nil {
		slog.Error("Re-dispatch failed", "building", buildingID, "error", err)
	}
}
