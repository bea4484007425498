// Package store is the in-memory entity store for buildings, elevators and requests.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"liftsim/src/types"
)

// Store guards its tables with a single RWMutex, so every operation is atomic on its own.
type Store struct {
	mu  sync.RWMutex
	t   tables
	now func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now as the source of creation and completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{t: newTables(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) stamp() int64 {
	return s.now().UTC().UnixNano()
}

func (s *Store) nextSeq() uint64 {
	s.t.Seq++
	return s.t.Seq
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, types.ErrNotFound)
}

// Buildings

func (s *Store) CreateBuilding(_ context.Context, name string, totalFloors int) (types.Building, error) {
	if totalFloors < 1 {
		return types.Building{}, fmt.Errorf("totalFloors %d: %w", totalFloors, types.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := buildingRow{
		ID:          uuid.NewString(),
		Name:        name,
		TotalFloors: totalFloors,
		CreatedAt:   s.stamp(),
		Seq:         s.nextSeq(),
	}
	s.t.Buildings[row.ID] = row
	return row.building(), nil
}

func (s *Store) GetBuilding(_ context.Context, id string) (types.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.t.Buildings[id]
	if !ok {
		return types.Building{}, notFound("building", id)
	}
	return row.building(), nil
}

// FirstBuilding returns the oldest building.
func (s *Store) FirstBuilding(_ context.Context) (types.Building, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first *buildingRow
	for _, row := range s.t.Buildings {
		if first == nil || row.Seq < first.Seq {
			r := row
			first = &r
		}
	}
	if first == nil {
		return types.Building{}, fmt.Errorf("no building: %w", types.ErrNotFound)
	}
	return first.building(), nil
}

// Elevators

func (s *Store) CreateElevator(_ context.Context, buildingID, name string, floor int) (types.Elevator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	building, ok := s.t.Buildings[buildingID]
	if !ok {
		return types.Elevator{}, notFound("building", buildingID)
	}
	if floor < 0 || floor >= building.TotalFloors {
		return types.Elevator{}, fmt.Errorf("floor %d: %w", floor, types.ErrInvalidInput)
	}
	row := elevatorRow{
		ID:           uuid.NewString(),
		BuildingID:   buildingID,
		Name:         name,
		CurrentFloor: floor,
		Status:       string(types.Idle),
		CreatedAt:    s.stamp(),
		Seq:          s.nextSeq(),
	}
	s.t.Elevators[row.ID] = row
	return row.elevator(), nil
}

func (s *Store) GetElevator(_ context.Context, id string) (types.Elevator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.t.Elevators[id]
	if !ok {
		return types.Elevator{}, notFound("elevator", id)
	}
	return row.elevator(), nil
}

// ListElevators returns the building's elevators in creation order with their active request counts.
func (s *Store) ListElevators(_ context.Context, buildingID string) ([]types.ElevatorView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.t.Buildings[buildingID]; !ok {
		return nil, notFound("building", buildingID)
	}
	var rows []elevatorRow
	for _, row := range s.t.Elevators {
		if row.BuildingID == buildingID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	active := make(map[string]int)
	for _, req := range s.t.Requests {
		if req.ElevatorID != "" && types.RequestStatus(req.Status).Active() {
			active[req.ElevatorID]++
		}
	}
	views := make([]types.ElevatorView, 0, len(rows))
	for _, row := range rows {
		views = append(views, types.ElevatorView{Elevator: row.elevator(), ActiveRequests: active[row.ID]})
	}
	return views, nil
}

func (s *Store) UpdateElevator(_ context.Context, id string, patch types.ElevatorPatch) (types.Elevator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.t.Elevators[id]
	if !ok {
		return types.Elevator{}, notFound("elevator", id)
	}
	if patch.CurrentFloor != nil {
		row.CurrentFloor = *patch.CurrentFloor
	}
	if patch.Status != nil {
		row.Status = string(*patch.Status)
	}
	if patch.Direction != nil {
		row.Direction = string(*patch.Direction)
	}
	s.t.Elevators[id] = row
	return row.elevator(), nil
}

// Requests

func (s *Store) CreateRequest(_ context.Context, in types.NewRequest) (types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.t.Buildings[in.BuildingID]; !ok {
		return types.Request{}, notFound("building", in.BuildingID)
	}
	row := requestRow{
		ID:         uuid.NewString(),
		BuildingID: in.BuildingID,
		FromFloor:  in.FromFloor,
		ToFloor:    in.ToFloor,
		Priority:   in.Priority,
		Notes:      in.Notes,
		Status:     string(types.Pending),
		CreatedAt:  s.stamp(),
		Seq:        s.nextSeq(),
	}
	s.t.Requests[row.ID] = row
	return row.request(), nil
}

func (s *Store) GetRequest(_ context.Context, id string) (types.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.t.Requests[id]
	if !ok {
		return types.Request{}, notFound("request", id)
	}
	return row.request(), nil
}

// ListRequests returns the newest requests of a building first. limit <= 0 returns all.
func (s *Store) ListRequests(_ context.Context, buildingID string, limit int) ([]types.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.filterRequests(func(r requestRow) bool { return r.BuildingID == buildingID })
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt != rows[j].CreatedAt {
			return rows[i].CreatedAt > rows[j].CreatedAt
		}
		return rows[i].Seq > rows[j].Seq
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return toRequests(rows), nil
}

// ListPendingRequests returns the building's unassigned pending requests in service order.
func (s *Store) ListPendingRequests(_ context.Context, buildingID string) ([]types.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.filterRequests(func(r requestRow) bool {
		return r.BuildingID == buildingID && r.ElevatorID == "" && r.Status == string(types.Pending)
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].before(rows[j]) })
	return toRequests(rows), nil
}

// FindActiveRequestsForElevator returns the elevator's active requests, highest priority
// first and oldest first within a priority.
func (s *Store) FindActiveRequestsForElevator(_ context.Context, elevatorID string) ([]types.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.t.Elevators[elevatorID]; !ok {
		return nil, notFound("elevator", elevatorID)
	}
	rows := s.filterRequests(func(r requestRow) bool {
		return r.ElevatorID == elevatorID && types.RequestStatus(r.Status).Active()
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].before(rows[j]) })
	return toRequests(rows), nil
}

func (s *Store) UpdateRequest(_ context.Context, id string, patch types.RequestPatch) (types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.t.Requests[id]
	if !ok {
		return types.Request{}, notFound("request", id)
	}
	if patch.ElevatorID != nil && *patch.ElevatorID != "" {
		if _, ok := s.t.Elevators[*patch.ElevatorID]; !ok {
			return types.Request{}, notFound("elevator", *patch.ElevatorID)
		}
	}
	if patch.Status != nil {
		row.Status = string(*patch.Status)
	}
	if patch.ElevatorID != nil {
		row.ElevatorID = *patch.ElevatorID
	}
	if patch.CompletedAt != nil {
		n := patch.CompletedAt.UTC().UnixNano()
		row.CompletedAt = &n
	}
	if patch.ClearCompletedAt {
		row.CompletedAt = nil
	}
	s.t.Requests[id] = row
	return row.request(), nil
}

// CompleteRequestsAtFloor marks every assigned or in-progress request of the elevator whose
// destination is floor as completed at the given time, and returns them.
func (s *Store) CompleteRequestsAtFloor(_ context.Context, elevatorID string, floor int, at time.Time) ([]types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.t.Elevators[elevatorID]; !ok {
		return nil, notFound("elevator", elevatorID)
	}
	done := at.UTC().UnixNano()
	var completed []requestRow
	for id, row := range s.t.Requests {
		if row.ElevatorID != elevatorID || row.ToFloor != floor || !types.RequestStatus(row.Status).Deliverable() {
			continue
		}
		row.Status = string(types.Completed)
		row.CompletedAt = &done
		s.t.Requests[id] = row
		completed = append(completed, row)
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].before(completed[j]) })
	return toRequests(completed), nil
}

func (s *Store) DeleteRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.t.Requests[id]; !ok {
		return notFound("request", id)
	}
	delete(s.t.Requests, id)
	return nil
}

// RestoreRequest re-inserts a previously read request unchanged. It is used to undo a
// deletion when a later step of the same operation fails.
func (s *Store) RestoreRequest(_ context.Context, req types.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.t.Requests[req.ID]; ok {
		return fmt.Errorf("request %q already exists: %w", req.ID, types.ErrConflict)
	}
	if _, ok := s.t.Buildings[req.BuildingID]; !ok {
		return notFound("building", req.BuildingID)
	}
	s.t.Requests[req.ID] = requestRowOf(req, s.nextSeq())
	return nil
}

func (s *Store) filterRequests(keep func(requestRow) bool) []requestRow {
	var rows []requestRow
	for _, row := range s.t.Requests {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	return rows
}

func toRequests(rows []requestRow) []types.Request {
	reqs := make([]types.Request, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, row.request())
	}
	return reqs
}
