package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
	"cafetrack/internal/tracking"
	"cafetrack/internal/upstream"
)

const testInterval = 20 * time.Millisecond

// eventually polls cond until it holds or the timeout expires.
func eventually(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func deliveringOrder(riderID string) *domain.TrackedOrder {
	return &domain.TrackedOrder{
		ID:      "order-1",
		Type:    domain.OrderTypeDelivery,
		Status:  domain.OrderStatusDelivering,
		RiderID: riderID,
	}
}

func TestTracking_StartIsIdempotentPerOrder(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	locks := NewMockLockStore()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Locks:      locks,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	first, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the same session, got %s and %s", first.ID, second.ID)
	}
	if got := locks.AcquireCallCount; got != 1 {
		t.Errorf("expected one lock acquisition, got %d", got)
	}
}

func TestTracking_EmptyOrderID_Rejected(t *testing.T) {
	t.Parallel()

	manager := tracking.NewManager(tracking.Deps{
		Orders:    NewMockOrderFetcher(),
		Locations: NewMockLocationFetcher(),
		Planner:   NewMockPlanner(),
		Publisher: NewMockPublisher(),
		Interval:  testInterval,
	})

	if _, err := manager.Start(context.Background(), "", "", nil); !errors.Is(err, tracking.ErrInvalidOrderID) {
		t.Fatalf("expected ErrInvalidOrderID, got %v", err)
	}
}

func TestTracking_LockHeldElsewhere_Rejected(t *testing.T) {
	t.Parallel()

	locks := NewMockLockStore()
	locks.AcquireResult = false

	manager := tracking.NewManager(tracking.Deps{
		Orders:    NewMockOrderFetcher(),
		Locations: NewMockLocationFetcher(),
		Planner:   NewMockPlanner(),
		Publisher: NewMockPublisher(),
		Locks:     locks,
		Interval:  testInterval,
	})

	if _, err := manager.Start(context.Background(), "order-1", "", nil); !errors.Is(err, tracking.ErrAlreadyTracking) {
		t.Fatalf("expected ErrAlreadyTracking, got %v", err)
	}
}

func TestTracking_TerminalStatusStopsPolling(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	locations := NewMockLocationFetcher()
	locations.SetPoint(geo.Point{Lat: 14.61, Lng: 120.99})
	publisher := NewMockPublisher()
	locks := NewMockLockStore()
	sessions := NewMockSessionRepository()
	snapshots := NewMockSnapshotCache()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  locations,
		Planner:    NewMockPlanner(),
		Publisher:  publisher,
		Locks:      locks,
		Sessions:   sessions,
		Snapshots:  snapshots,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, 2*time.Second, "first poll", func() bool {
		return orders.FetchCalls() >= 1
	})

	completed := deliveringOrder("rider-1")
	completed.Status = domain.OrderStatusCompleted
	orders.SetOrder(completed)

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after terminal status")
	}

	snap := sess.Snapshot()
	if snap.State != tracking.StateIdle {
		t.Errorf("expected IDLE state, got %s", snap.State)
	}
	if snap.Status != domain.OrderStatusCompleted {
		t.Errorf("expected completed status, got %s", snap.Status)
	}

	// Let any in-flight polls drain, then verify no new ones start.
	time.Sleep(3 * testInterval)
	before := orders.FetchCalls()
	time.Sleep(5 * testInterval)
	if after := orders.FetchCalls(); after != before {
		t.Errorf("polling continued after terminal status: %d -> %d calls", before, after)
	}

	eventually(t, 2*time.Second, "stop event", func() bool {
		return publisher.StopEvents() == 1
	})
	if stops := publisher.Stops(); len(stops) != 1 || stops[0] != domain.OrderStatusCompleted {
		t.Errorf("expected stop event with completed status, got %v", stops)
	}

	// The manager releases the lock, closes the audit record and forgets
	// the session.
	eventually(t, 2*time.Second, "cleanup", func() bool {
		_, err := manager.Get("order-1")
		return errors.Is(err, tracking.ErrNotTracking)
	})
	if locks.Held("order-1") {
		t.Error("expected the tracking lock to be released")
	}
	record := sessions.GetRecord(sess.ID)
	if record == nil || record.StoppedAt == nil {
		t.Fatal("expected the audit record to be closed")
	}
	if record.FinalStatus != domain.OrderStatusCompleted {
		t.Errorf("expected completed final status, got %s", record.FinalStatus)
	}
	if !snapshots.Invalidated("order-1") {
		t.Error("expected the cached order snapshot to be dropped")
	}
}

func TestTracking_UnauthorizedEndsSession(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetFetchError(upstream.ErrUnauthorized)
	publisher := NewMockPublisher()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  publisher,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after 401")
	}

	snap := sess.Snapshot()
	if snap.State != tracking.StateIdle {
		t.Errorf("expected IDLE state, got %s", snap.State)
	}
	if snap.Error == "" {
		t.Error("expected the error to be surfaced in the snapshot")
	}
	eventually(t, 2*time.Second, "stop event", func() bool {
		return publisher.StopEvents() == 1
	})
}

func TestTracking_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	publisher := NewMockPublisher()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     NewMockOrderFetcher(),
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  publisher,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess.Stop()
	sess.Stop()

	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}

	eventually(t, 2*time.Second, "stop event", func() bool {
		return publisher.StopEvents() >= 1
	})
	time.Sleep(3 * testInterval)
	if got := publisher.StopEvents(); got != 1 {
		t.Errorf("expected one stop event, got %d", got)
	}
}

func TestTracking_StopDoesNotWaitForBroker(t *testing.T) {
	t.Parallel()

	publisher := NewMockPublisher()
	publisher.StopGate = make(chan struct{})

	manager := tracking.NewManager(tracking.Deps{
		Orders:     NewMockOrderFetcher(),
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  publisher,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess.Stop()

	// The polling loop must exit without waiting on the broker.
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("stop stalled on the event broker")
	}
	if got := publisher.StopEvents(); got != 0 {
		t.Fatalf("stop event recorded before the broker answered: %d", got)
	}

	close(publisher.StopGate)
	eventually(t, 2*time.Second, "stop event", func() bool {
		return publisher.StopEvents() == 1
	})
}

func TestTracking_StatusTransitionPublished(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetOrder(&domain.TrackedOrder{
		ID:     "order-1",
		Status: domain.OrderStatusProcessing,
	})
	publisher := NewMockPublisher()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  publisher,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	if _, err := manager.Start(context.Background(), "order-1", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, 2*time.Second, "status event", func() bool {
		return publisher.StatusChanges() >= 1
	})

	transitions := publisher.Transitions()
	if transitions[0].From != domain.OrderStatusPending || transitions[0].To != domain.OrderStatusProcessing {
		t.Errorf("expected pending -> processing, got %s -> %s", transitions[0].From, transitions[0].To)
	}
}
