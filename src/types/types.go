package types

import (
	"fmt"
	"time"
)

type Building struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TotalFloors int       `json:"totalFloors"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasFloor reports whether floor lies within 0..TotalFloors-1.
func (b Building) HasFloor(floor int) bool {
	return floor >= 0 && floor < b.TotalFloors
}

// CheckFloor returns an ErrInvalidInput error naming field if floor is outside the building.
func (b Building) CheckFloor(field string, floor int) error {
	if !b.HasFloor(floor) {
		return fmt.Errorf("%s %d outside floors 0..%d: %w", field, floor, b.TotalFloors-1, ErrInvalidInput)
	}
	return nil
}

type RequestStatus string

const (
	Pending    RequestStatus = "pending"
	Assigned   RequestStatus = "assigned"
	InProgress RequestStatus = "in_progress"
	Completed  RequestStatus = "completed"
	Cancelled  RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case Pending, Assigned, InProgress, Completed, Cancelled:
		return true
	}
	return false
}

// Active reports whether a request with status s still needs service.
func (s RequestStatus) Active() bool {
	return s == Pending || s == Assigned || s == InProgress
}

// Deliverable reports whether a request with status s completes on arrival at its destination.
func (s RequestStatus) Deliverable() bool {
	return s == Assigned || s == InProgress
}

type Request struct {
	ID          string        `json:"id"`
	BuildingID  string        `json:"buildingId"`
	ElevatorID  string        `json:"elevatorId,omitempty"`
	FromFloor   int           `json:"fromFloor"`
	ToFloor     int           `json:"toFloor"`
	Priority    int           `json:"priority"`
	Notes       string        `json:"notes,omitempty"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// NewRequest carries the caller supplied fields of a ride request.
type NewRequest struct {
	BuildingID string `json:"buildingId"`
	FromFloor  int    `json:"fromFloor"`
	ToFloor    int    `json:"toFloor"`
	Priority   int    `json:"priority"`
	Notes      string `json:"notes,omitempty"`
}

// Validate checks the request against the building it is issued in.
func (n NewRequest) Validate(b Building) error {
	if n.BuildingID == "" {
		return fmt.Errorf("buildingId is required: %w", ErrInvalidInput)
	}
	if err := b.CheckFloor("fromFloor", n.FromFloor); err != nil {
		return err
	}
	if err := b.CheckFloor("toFloor", n.ToFloor); err != nil {
		return err
	}
	if n.FromFloor == n.ToFloor {
		return fmt.Errorf("fromFloor and toFloor are both %d: %w", n.FromFloor, ErrInvalidInput)
	}
	return nil
}

// RequestPatch holds the optional fields of a request update. Nil fields are left unchanged.
// An ElevatorID pointing at "" unassigns the request.
type RequestPatch struct {
	Status      *RequestStatus `json:"status,omitempty"`
	ElevatorID  *string        `json:"elevatorId,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	// ClearCompletedAt removes the completion time. It wins over CompletedAt.
	ClearCompletedAt bool `json:"-"`
}
