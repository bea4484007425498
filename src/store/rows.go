package store

import (
	"time"

	"liftsim/src/types"
)

// Rows keep timestamps as unix nanoseconds so tables can be deep copied and encoded as plain data.

type buildingRow struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	TotalFloors int    `yaml:"total_floors"`
	CreatedAt   int64  `yaml:"created_at"`
	Seq         uint64 `yaml:"seq"`
}

type elevatorRow struct {
	ID           string `yaml:"id"`
	BuildingID   string `yaml:"building_id"`
	Name         string `yaml:"name"`
	CurrentFloor int    `yaml:"current_floor"`
	Status       string `yaml:"status"`
	Direction    string `yaml:"direction,omitempty"`
	CreatedAt    int64  `yaml:"created_at"`
	Seq          uint64 `yaml:"seq"`
}

type requestRow struct {
	ID          string `yaml:"id"`
	BuildingID  string `yaml:"building_id"`
	ElevatorID  string `yaml:"elevator_id,omitempty"`
	FromFloor   int    `yaml:"from_floor"`
	ToFloor     int    `yaml:"to_floor"`
	Priority    int    `yaml:"priority"`
	Notes       string `yaml:"notes,omitempty"`
	Status      string `yaml:"status"`
	CreatedAt   int64  `yaml:"created_at"`
	CompletedAt *int64 `yaml:"completed_at,omitempty"`
	Seq         uint64 `yaml:"seq"`
}

type tables struct {
	Buildings map[string]buildingRow `yaml:"buildings"`
	Elevators map[string]elevatorRow `yaml:"elevators"`
	Requests  map[string]requestRow  `yaml:"requests"`
	Seq       uint64                 `yaml:"seq"`
}

func newTables() tables {
	return tables{
		Buildings: make(map[string]buildingRow),
		Elevators: make(map[string]elevatorRow),
		Requests:  make(map[string]requestRow),
	}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (r buildingRow) building() types.Building {
	return types.Building{
		ID:          r.ID,
		Name:        r.Name,
		TotalFloors: r.TotalFloors,
		CreatedAt:   fromNanos(r.CreatedAt),
	}
}

func (r elevatorRow) elevator() types.Elevator {
	return types.Elevator{
		ID:           r.ID,
		BuildingID:   r.BuildingID,
		Name:         r.Name,
		CurrentFloor: r.CurrentFloor,
		Status:       types.ElevStatus(r.Status),
		Direction:    types.Direction(r.Direction),
		CreatedAt:    fromNanos(r.CreatedAt),
	}
}

func (r requestRow) request() types.Request {
	req := types.Request{
		ID:         r.ID,
		BuildingID: r.BuildingID,
		ElevatorID: r.ElevatorID,
		FromFloor:  r.FromFloor,
		ToFloor:    r.ToFloor,
		Priority:   r.Priority,
		Notes:      r.Notes,
		Status:     types.RequestStatus(r.Status),
		CreatedAt:  fromNanos(r.CreatedAt),
	}
	if r.CompletedAt != nil {
		t := fromNanos(*r.CompletedAt)
		req.CompletedAt = &t
	}
	return req
}

func requestRowOf(req types.Request, seq uint64) requestRow {
	row := requestRow{
		ID:         req.ID,
		BuildingID: req.BuildingID,
		ElevatorID: req.ElevatorID,
		FromFloor:  req.FromFloor,
		ToFloor:    req.ToFloor,
		Priority:   req.Priority,
		Notes:      req.Notes,
		Status:     string(req.Status),
		CreatedAt:  req.CreatedAt.UnixNano(),
		Seq:        seq,
	}
	if req.CompletedAt != nil {
		n := req.CompletedAt.UnixNano()
		row.CompletedAt = &n
	}
	return row
}

// before orders requests by priority desc, then creation time, then insertion order.
func (r requestRow) before(o requestRow) bool {
	if r.Priority != o.Priority {
		return r.Priority > o.Priority
	}
	if r.CreatedAt != o.CreatedAt {
		return r.CreatedAt < o.CreatedAt
	}
	return r.Seq < o.Seq
}
