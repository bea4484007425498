// Package driver moves the elevators of a building one floor per tick, first to the pickup
// floor of their most urgent assigned request and then to its destination.
package driver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"liftsim/src/timer"
	"liftsim/src/types"
	"liftsim/src/utils"
)

type Store interface {
	ListElevators(ctx context.Context, buildingID string) ([]types.ElevatorView, error)
	FindActiveRequestsForElevator(ctx context.Context, elevatorID string) ([]types.Request, error)
}

type Stepper interface {
	Step(ctx context.Context, elevatorID string, targetFloor int) (types.Elevator, error)
}

type leg int

const (
	pickup leg = iota
	dropoff
)

type plan struct {
	requestID string
	leg       leg
}

// Driver is not safe for concurrent use; Run owns it once started.
type Driver struct {
	store      Store
	exec       Stepper
	buildingID string
	plans      map[string]plan
	status     io.Writer
}

type Option func(*Driver)

// WithStatus prints a status line to w after every tick.
func WithStatus(w io.Writer) Option {
	return func(d *Driver) { d.status = w }
}

func New(store Store, exec Stepper, buildingID string, opts ...Option) *Driver {
	d := &Driver{store: store, exec: exec, buildingID: buildingID, plans: make(map[string]plan)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run ticks every period until ctx is done.
func (d *Driver) Run(ctx context.Context, period time.Duration) {
	timeout := make(chan struct{}, 1)
	action := make(chan timer.TimerAction)
	go timer.Ticker(ctx, period, timeout, action)
	select {
	case action <- timer.Start:
	case <-ctx.Done():
		return
	}
	slog.Info("Driver started", "building", d.buildingID, "period", period)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Driver stopped", "building", d.buildingID)
			return
		case <-timeout:
			if err := d.Tick(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Driver tick failed", "error", err)
			}
		}
	}
}

// Tick moves every elevator with active requests by one floor. Elevators in maintenance stay
// where they are.
func (d *Driver) Tick(ctx context.Context) error {
	elevators, err := d.store.ListElevators(ctx, d.buildingID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(elevators))
	var errs []error
	for _, e := range elevators {
		seen[e.ID] = true
		if e.Status == types.Maintenance || e.ActiveRequests == 0 {
			delete(d.plans, e.ID)
			continue
		}
		if err := d.advance(ctx, e.Elevator); err != nil {
			errs = append(errs, err)
		}
	}
	for id := range d.plans {
		if !seen[id] {
			delete(d.plans, id)
		}
	}
	if d.status != nil {
		if views, err := d.store.ListElevators(ctx, d.buildingID); err == nil {
			utils.PrintStatus(d.status, views)
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) advance(ctx context.Context, e types.Elevator) error {
	active, err := d.store.FindActiveRequestsForElevator(ctx, e.ID)
	if err != nil {
		return err
	}
	// Pending requests are never completed on arrival, so only deliverable ones are driven.
	i := slices.IndexFunc(active, func(r types.Request) bool { return r.Status.Deliverable() })
	if i < 0 {
		delete(d.plans, e.ID)
		return nil
	}
	head := active[i]
	p, ok := d.plans[e.ID]
	if !ok || p.requestID != head.ID {
		p = plan{requestID: head.ID, leg: pickup}
	}
	if p.leg == pickup && e.CurrentFloor == head.FromFloor {
		p.leg = dropoff
		slog.Debug("Picked up", "elevator", e.ID, "request", head.ID, "floor", e.CurrentFloor)
	}
	d.plans[e.ID] = p

	goal := head.FromFloor
	if p.leg == dropoff {
		goal = head.ToFloor
	}
	next := e.CurrentFloor
	switch {
	case goal > next:
		next++
	case goal < next:
		next--
	}
	_, err = d.exec.Step(ctx, e.ID, next)
	if errors.Is(err, types.ErrConflict) {
		// Put into maintenance since the listing.
		slog.Debug("Skipped step", "elevator", e.ID, "error", err)
		return nil
	}
	return err
}
