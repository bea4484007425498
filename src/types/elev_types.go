package types

import (
	"encoding/json"
	"time"
)

type ElevStatus string

const (
	Idle        ElevStatus = "idle"
	MovingUp    ElevStatus = "moving_up"
	MovingDown  ElevStatus = "moving_down"
	Maintenance ElevStatus = "maintenance"
)

// Valid reports whether s is one of the known elevator statuses.
func (s ElevStatus) Valid() bool {
	switch s {
	case Idle, MovingUp, MovingDown, Maintenance:
		return true
	}
	return false
}

// Eligible reports whether an elevator with status s can take new requests.
func (s ElevStatus) Eligible() bool {
	return s == Idle || s == MovingUp || s == MovingDown
}

// Direction is the travel direction of an elevator. DirNone encodes as JSON null.
type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirNone Direction = ""
)

func (d Direction) MarshalJSON() ([]byte, error) {
	if d == DirNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DirNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*d = Direction(s)
	return nil
}

func (d Direction) Valid() bool {
	return d == DirUp || d == DirDown || d == DirNone
}

// Status returns the moving status matching d, or Idle for DirNone.
func (d Direction) Status() ElevStatus {
	switch d {
	case DirUp:
		return MovingUp
	case DirDown:
		return MovingDown
	}
	return Idle
}

// DirectionOf returns the direction implied by a status.
func DirectionOf(s ElevStatus) Direction {
	switch s {
	case MovingUp:
		return DirUp
	case MovingDown:
		return DirDown
	}
	return DirNone
}

// GetDirection returns the direction of travel from one floor to another, DirNone if equal.
func GetDirection(from, to int) Direction {
	if from < to {
		return DirUp
	}
	if from > to {
		return DirDown
	}
	return DirNone
}

// HeadingTo returns the direction used when aiming an elevator at a pickup floor.
// Equal floors resolve to DirDown, matching how assignments have always behaved.
func HeadingTo(from, to int) Direction {
	if from < to {
		return DirUp
	}
	return DirDown
}

type Elevator struct {
	ID           string     `json:"id"`
	BuildingID   string     `json:"buildingId"`
	Name         string     `json:"name"`
	CurrentFloor int        `json:"currentFloor"`
	Status       ElevStatus `json:"status"`
	Direction    Direction  `json:"direction"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// ElevatorView is an elevator together with its number of active requests.
type ElevatorView struct {
	Elevator
	ActiveRequests int `json:"activeRequests"`
}

// ElevatorPatch holds the optional fields of an elevator update. Nil fields are left unchanged.
type ElevatorPatch struct {
	CurrentFloor *int        `json:"currentFloor,omitempty"`
	Status       *ElevStatus `json:"status,omitempty"`
	Direction    *Direction  `json:"direction,omitempty"`
}

// Motion builds a patch setting status and the matching direction.
func Motion(status ElevStatus, dir Direction) ElevatorPatch {
	return ElevatorPatch{Status: &status, Direction: &dir}
}

// Consistent reports whether status and direction agree.
func Consistent(s ElevStatus, d Direction) bool {
	return DirectionOf(s) == d
}
