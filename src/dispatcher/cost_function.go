package dispatcher

import "liftsim/src/types"

// distance is the cost of sending an elevator to a pickup floor.
func distance(elevator types.Elevator, floor int) int {
	d := elevator.CurrentFloor - floor
	if d < 0 {
		return -d
	}
	return d
}

// closestElevator returns the eligible elevator nearest to floor. Elevators are expected in
// creation order; on equal distance the first one wins. ok is false when no elevator is
// eligible.
func closestElevator(elevators []types.Elevator, floor int, excluded map[string]bool) (best types.Elevator, ok bool) {
	for _, e := range elevators {
		if !e.Status.Eligible() || excluded[e.ID] {
			continue
		}
		if !ok || distance(e, floor) < distance(best, floor) {
			best, ok = e, true
		}
	}
	return best, ok
}
