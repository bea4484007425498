package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"liftsim/src/elev"
	"liftsim/src/store"
	"liftsim/src/types"
)

var errInjected = errors.New("injected store failure")

// flakyStore fails the n-th call of selected operations.
type flakyStore struct {
	*store.Store
	failFindAt     int
	finds          int
	failCompleteAt int
	completes      int
}

func (s *flakyStore) FindActiveRequestsForElevator(ctx context.Context, elevatorID string) ([]types.Request, error) {
	s.finds++
	if s.finds == s.failFindAt {
		return nil, errInjected
	}
	return s.Store.FindActiveRequestsForElevator(ctx, elevatorID)
}

func (s *flakyStore) CompleteRequestsAtFloor(ctx context.Context, elevatorID string, floor int, at time.Time) ([]types.Request, error) {
	s.completes++
	if s.completes == s.failCompleteAt {
		return nil, errInjected
	}
	return s.Store.CompleteRequestsAtFloor(ctx, elevatorID, floor, at)
}

type fixture struct {
	ctx      context.Context
	store    *flakyStore
	exec     *Executor
	building types.Building
	now      time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f := &fixture{
		ctx:   context.Background(),
		store: &flakyStore{Store: store.New(store.WithClock(tick))},
		now:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	reg := elev.NewRegistry()
	t.Cleanup(reg.Close)
	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.exec = New(f.store, reg, opts...)

	b, err := f.store.CreateBuilding(f.ctx, "Test", 10)
	if err != nil {
		t.Fatal(err)
	}
	f.building = b
	return f
}

func (f *fixture) elevator(t *testing.T, floor int, status types.ElevStatus) types.Elevator {
	t.Helper()
	e, err := f.store.CreateElevator(f.ctx, f.building.ID, "E", floor)
	if err != nil {
		t.Fatal(err)
	}
	e, err = f.store.UpdateElevator(f.ctx, e.ID, types.Motion(status, types.DirectionOf(status)))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) request(t *testing.T, from, to, priority int, elevatorID string) types.Request {
	t.Helper()
	r, err := f.store.CreateRequest(f.ctx, types.NewRequest{BuildingID: f.building.ID, FromFloor: from, ToFloor: to, Priority: priority})
	if err != nil {
		t.Fatal(err)
	}
	if elevatorID == "" {
		return r
	}
	status := types.Assigned
	r, err = f.store.UpdateRequest(f.ctx, r.ID, types.RequestPatch{Status: &status, ElevatorID: &elevatorID})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) get(t *testing.T, elevatorID string) types.Elevator {
	t.Helper()
	e, err := f.store.GetElevator(f.ctx, elevatorID)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func (f *fixture) req(t *testing.T, requestID string) types.Request {
	t.Helper()
	r, err := f.store.GetRequest(f.ctx, requestID)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func wantElevator(t *testing.T, e types.Elevator, floor int, status types.ElevStatus, dir types.Direction) {
	t.Helper()
	if e.CurrentFloor != floor || e.Status != status || e.Direction != dir {
		t.Errorf("elevator = {floor:%d status:%s direction:%q}, want {floor:%d status:%s direction:%q}",
			e.CurrentFloor, e.Status, e.Direction, floor, status, dir)
	}
}

func TestStepDeliversAndIdles(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 0, types.MovingUp)
	r := f.request(t, 3, 7, 0, e.ID)

	got, err := f.exec.Step(f.ctx, e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 7, types.Idle, types.DirNone)
	wantElevator(t, f.get(t, e.ID), 7, types.Idle, types.DirNone)

	done := f.req(t, r.ID)
	if done.Status != types.Completed {
		t.Errorf("request status = %s, want completed", done.Status)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(f.now) {
		t.Errorf("completedAt = %v, want %v", done.CompletedAt, f.now)
	}
}

func TestStepToCurrentFloorIdles(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 4, types.MovingDown)

	got, err := f.exec.Step(f.ctx, e.ID, 4)
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 4, types.Idle, types.DirNone)
}

func TestStepWithoutDeliveryKeepsMoving(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 0, types.MovingUp)
	r := f.request(t, 3, 7, 0, e.ID)

	got, err := f.exec.Step(f.ctx, e.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 1, types.MovingUp, types.DirUp)
	if f.req(t, r.ID).Status != types.Assigned {
		t.Error("request completed on the wrong floor")
	}
}

func TestStepCompletesAllRequestsForFloor(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 2, types.MovingUp)
	other := f.elevator(t, 0, types.MovingUp)

	a := f.request(t, 1, 5, 0, e.ID)
	b := f.request(t, 3, 5, 2, e.ID)
	inProgress := types.InProgress
	if _, err := f.store.UpdateRequest(f.ctx, b.ID, types.RequestPatch{Status: &inProgress}); err != nil {
		t.Fatal(err)
	}
	later := f.request(t, 8, 9, 0, e.ID)
	foreign := f.request(t, 0, 5, 0, other.ID)

	got, err := f.exec.Step(f.ctx, e.ID, 5)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{a.ID, b.ID} {
		if r := f.req(t, id); r.Status != types.Completed || r.CompletedAt == nil {
			t.Errorf("request %s = %s, want completed", id, r.Status)
		}
	}
	if f.req(t, later.ID).Status != types.Assigned || f.req(t, foreign.ID).Status != types.Assigned {
		t.Error("requests of other floors or elevators were completed")
	}
	// Remaining request picks up at floor 8.
	wantElevator(t, got, 5, types.MovingUp, types.DirUp)
}

func TestStepValidation(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 3, types.Idle)
	broken := f.elevator(t, 3, types.Maintenance)

	tests := []struct {
		name     string
		elevator string
		floor    int
		want     error
	}{
		{"unknown elevator", "missing", 1, types.ErrNotFound},
		{"below ground", e.ID, -1, types.ErrInvalidInput},
		{"above top floor", e.ID, 10, types.ErrInvalidInput},
		{"maintenance", broken.ID, 4, types.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.exec.Step(f.ctx, tt.elevator, tt.floor); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	wantElevator(t, f.get(t, e.ID), 3, types.Idle, types.DirNone)
	wantElevator(t, f.get(t, broken.ID), 3, types.Maintenance, types.DirNone)
}

func TestCascadePicksHighestPriorityThenOldest(t *testing.T) {
	tests := []struct {
		name    string
		first   [3]int // from, to, priority
		second  [3]int
		wantDir types.Direction
	}{
		{"equal priority prefers older above", [3]int{8, 9, 0}, [3]int{2, 1, 0}, types.DirUp},
		{"equal priority prefers older below", [3]int{2, 1, 0}, [3]int{8, 9, 0}, types.DirDown},
		{"priority beats age", [3]int{2, 1, 0}, [3]int{8, 9, 3}, types.DirUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			e := f.elevator(t, 5, types.Idle)
			f.request(t, tt.first[0], tt.first[1], tt.first[2], e.ID)
			f.request(t, tt.second[0], tt.second[1], tt.second[2], e.ID)

			got, err := f.exec.Cascade(f.ctx, e.ID)
			if err != nil {
				t.Fatal(err)
			}
			wantElevator(t, got, 5, tt.wantDir.Status(), tt.wantDir)
		})
	}
}

func TestCascadeLeavesMaintenanceAlone(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 5, types.Maintenance)
	f.request(t, 8, 9, 0, e.ID)

	got, err := f.exec.Cascade(f.ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 5, types.Maintenance, types.DirNone)
}

func TestDeleteRequestRetargets(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 5, types.MovingUp)
	a := f.request(t, 3, 2, 0, e.ID)
	b := f.request(t, 6, 8, 5, e.ID)
	if _, err := f.exec.Cascade(f.ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	wantElevator(t, f.get(t, e.ID), 5, types.MovingUp, types.DirUp)

	if err := f.exec.DeleteRequest(f.ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	// A picks up at floor 3, below the elevator.
	wantElevator(t, f.get(t, e.ID), 5, types.MovingDown, types.DirDown)

	if err := f.exec.DeleteRequest(f.ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	wantElevator(t, f.get(t, e.ID), 5, types.Idle, types.DirNone)

	if err := f.exec.DeleteRequest(f.ctx, a.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteOtherRequestKeepsStatus(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 5, types.Idle)
	low := f.request(t, 3, 2, 0, e.ID)
	f.request(t, 6, 8, 5, e.ID)
	if _, err := f.exec.Cascade(f.ctx, e.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.exec.DeleteRequest(f.ctx, low.ID); err != nil {
		t.Fatal(err)
	}
	wantElevator(t, f.get(t, e.ID), 5, types.MovingUp, types.DirUp)
}

func TestUpdateRequestEndingCascades(t *testing.T) {
	for _, status := range []types.RequestStatus{types.Completed, types.Cancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			e := f.elevator(t, 1, types.MovingUp)
			r := f.request(t, 4, 6, 0, e.ID)

			got, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{Status: &status})
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != status {
				t.Errorf("status = %s, want %s", got.Status, status)
			}
			if status == types.Completed && (got.CompletedAt == nil || !got.CompletedAt.Equal(f.now)) {
				t.Errorf("completedAt = %v", got.CompletedAt)
			}
			if status == types.Cancelled && got.CompletedAt != nil {
				t.Errorf("cancelled request has completedAt %v", got.CompletedAt)
			}
			wantElevator(t, f.get(t, e.ID), 1, types.Idle, types.DirNone)
		})
	}
}

func TestUpdateRequestValidation(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 1, types.Idle)
	r := f.request(t, 4, 6, 0, e.ID)

	bogus := types.RequestStatus("teleported")
	if _, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{Status: &bogus}); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	at := f.now
	if _, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{CompletedAt: &at}); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("completedAt on active request: err = %v, want ErrInvalidInput", err)
	}
	inProgress := types.InProgress
	if _, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{Status: &inProgress, CompletedAt: &at}); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("completedAt with in_progress: err = %v, want ErrInvalidInput", err)
	}
	if got := f.req(t, r.ID); got.CompletedAt != nil || got.Status != types.Assigned {
		t.Errorf("rejected update was applied: %+v", got)
	}
	missing := "missing"
	if _, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{ElevatorID: &missing}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	otherBuilding, err := f.store.CreateBuilding(f.ctx, "Other", 5)
	if err != nil {
		t.Fatal(err)
	}
	foreign, err := f.store.CreateElevator(f.ctx, otherBuilding.ID, "F", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{ElevatorID: &foreign.ID}); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateRequestMovesBetweenElevators(t *testing.T) {
	f := newFixture(t)
	from := f.elevator(t, 0, types.MovingUp)
	to := f.elevator(t, 9, types.Idle)
	r := f.request(t, 4, 6, 0, from.ID)

	got, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{ElevatorID: &to.ID})
	if err != nil {
		t.Fatal(err)
	}
	if got.ElevatorID != to.ID {
		t.Errorf("elevatorId = %q", got.ElevatorID)
	}
	wantElevator(t, f.get(t, from.ID), 0, types.Idle, types.DirNone)
	wantElevator(t, f.get(t, to.ID), 9, types.MovingDown, types.DirDown)
}

func TestStepRollsBackWhenCascadeFails(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 0, types.MovingUp)
	r := f.request(t, 3, 7, 0, e.ID)
	// First lookup captures the requests, the second is the cascade.
	f.store.failFindAt = 2

	if _, err := f.exec.Step(f.ctx, e.ID, 7); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	wantElevator(t, f.get(t, e.ID), 0, types.MovingUp, types.DirUp)
	back := f.req(t, r.ID)
	if back.Status != types.Assigned || back.CompletedAt != nil {
		t.Errorf("request after rollback = %s completedAt=%v, want assigned without completion", back.Status, back.CompletedAt)
	}

	// The same step succeeds once the store recovers.
	got, err := f.exec.Step(f.ctx, e.ID, 7)
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 7, types.Idle, types.DirNone)
}

func TestStepRollsBackWhenCompletionFails(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 2, types.MovingUp)
	f.request(t, 3, 7, 0, e.ID)
	f.store.failCompleteAt = 1

	if _, err := f.exec.Step(f.ctx, e.ID, 3); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	wantElevator(t, f.get(t, e.ID), 2, types.MovingUp, types.DirUp)
}

func TestDeleteRestoresRequestWhenCascadeFails(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 5, types.MovingUp)
	r := f.request(t, 6, 8, 0, e.ID)
	f.store.failFindAt = 1

	if err := f.exec.DeleteRequest(f.ctx, r.ID); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	back := f.req(t, r.ID)
	if back.Status != types.Assigned || back.ElevatorID != e.ID {
		t.Errorf("restored request = %+v", back)
	}
	wantElevator(t, f.get(t, e.ID), 5, types.MovingUp, types.DirUp)
}

func TestUpdateRequestRestoresWhenCascadeFails(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 5, types.MovingUp)
	r := f.request(t, 6, 8, 0, e.ID)
	f.store.failFindAt = 1

	cancelled := types.Cancelled
	if _, err := f.exec.UpdateRequest(f.ctx, r.ID, types.RequestPatch{Status: &cancelled}); !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	if back := f.req(t, r.ID); back.Status != types.Assigned {
		t.Errorf("request status after rollback = %s", back.Status)
	}
}

func TestUpdateElevator(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 2, types.MovingUp)
	f.request(t, 6, 8, 0, e.ID)

	maintenance := types.Maintenance
	got, err := f.exec.UpdateElevator(f.ctx, e.ID, types.ElevatorPatch{Status: &maintenance})
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 2, types.Maintenance, types.DirNone)

	if _, err := f.exec.Step(f.ctx, e.ID, 3); !errors.Is(err, types.ErrConflict) {
		t.Errorf("step in maintenance err = %v, want ErrConflict", err)
	}

	// Back in service with an active request: the cascade aims it at the pickup floor.
	idle := types.Idle
	floor := 9
	got, err = f.exec.UpdateElevator(f.ctx, e.ID, types.ElevatorPatch{Status: &idle, CurrentFloor: &floor})
	if err != nil {
		t.Fatal(err)
	}
	wantElevator(t, got, 9, types.MovingDown, types.DirDown)
}

func TestUpdateElevatorValidation(t *testing.T) {
	f := newFixture(t)
	e := f.elevator(t, 2, types.Idle)

	up, down := types.MovingUp, types.DirDown
	bogus := types.ElevStatus("flying")
	high := 10
	tests := []struct {
		name  string
		patch types.ElevatorPatch
	}{
		{"status and direction disagree", types.ElevatorPatch{Status: &up, Direction: &down}},
		{"unknown status", types.ElevatorPatch{Status: &bogus}},
		{"floor out of range", types.ElevatorPatch{CurrentFloor: &high}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.exec.UpdateElevator(f.ctx, e.ID, tt.patch); !errors.Is(err, types.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
	wantElevator(t, f.get(t, e.ID), 2, types.Idle, types.DirNone)
}

func TestIdleHookRunsAfterElevatorIdles(t *testing.T) {
	var calls []string
	var f *fixture
	hook := func(ctx context.Context, buildingID string) {
		calls = append(calls, buildingID)
		if len(calls) > 1 {
			return
		}
		// The elevator's manager must be free again, so the hook can use it.
		views, err := f.store.ListElevators(ctx, buildingID)
		if err != nil {
			t.Error(err)
			return
		}
		if _, err := f.exec.Cascade(ctx, views[0].ID); err != nil {
			t.Error(err)
		}
	}
	f = newFixture(t, WithIdleHook(hook))
	e := f.elevator(t, 0, types.MovingUp)
	f.request(t, 0, 2, 0, e.ID)

	if _, err := f.exec.Step(f.ctx, e.ID, 1); err != nil {
		t.Fatal(err)
	}
	if len(calls) != 0 {
		t.Fatalf("hook ran while the elevator still had work: %v", calls)
	}
	if _, err := f.exec.Step(f.ctx, e.ID, 2); err != nil {
		t.Fatal(err)
	}
	// Once for the step, once for the cascade issued from inside the hook.
	if len(calls) != 2 || calls[0] != f.building.ID {
		t.Errorf("hook calls = %v", calls)
	}
}
