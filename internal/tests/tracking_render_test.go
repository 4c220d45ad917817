package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"cafetrack/internal/geo"
	"cafetrack/internal/location"
	"cafetrack/internal/tracking"
)

// ──────────────────────────────────────────────
// RENDERING STATE, ETA AND MARKER BEHAVIOUR
// ──────────────────────────────────────────────

func TestTracking_ReachesRouteDrawn(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	locations := NewMockLocationFetcher()
	locations.SetPoint(geo.Point{Lat: 14.61, Lng: 120.99})
	planner := NewMockPlanner()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  locations,
		Planner:    planner,
		Publisher:  NewMockPublisher(),
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, 2*time.Second, "route drawn", func() bool {
		return sess.Snapshot().State == tracking.StateRouteDrawn
	})

	snap := sess.Snapshot()
	if snap.Route == nil {
		t.Fatal("expected a route in the snapshot")
	}
	if snap.Route.Geometry != planner.Geometry {
		t.Errorf("expected route geometry %q, got %q", planner.Geometry, snap.Route.Geometry)
	}
	if snap.Rider == nil {
		t.Fatal("expected a rider marker")
	}
	if snap.Rider.Position != (geo.Point{Lat: 14.61, Lng: 120.99}) {
		t.Errorf("unexpected rider position %v", snap.Rider.Position)
	}
}

func TestTracking_EtaFetchedOnce(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	orders.EtaMinutes = 17
	locations := NewMockLocationFetcher()
	locations.SetPoint(geo.Point{Lat: 14.61, Lng: 120.99})

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  locations,
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, 2*time.Second, "eta", func() bool {
		return sess.Snapshot().EtaMinutes == 17
	})

	// Later polls must not refresh the ETA.
	time.Sleep(5 * testInterval)
	if got := orders.EstimateCalls(); got != 1 {
		t.Errorf("expected one ETA fetch, got %d", got)
	}
}

func TestTracking_SlowEtaBackendAskedOnce(t *testing.T) {
	t.Parallel()

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	orders.EtaMinutes = 17
	orders.EstimateBlock = make(chan struct{})
	locations := NewMockLocationFetcher()
	locations.SetPoint(geo.Point{Lat: 14.61, Lng: 120.99})

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  locations,
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, 2*time.Second, "first eta request", func() bool {
		return orders.EstimateCalls() == 1
	})

	// Several polls elapse while the request is held open; none of them
	// may ask the backend again.
	time.Sleep(6 * testInterval)
	if got := orders.EstimateCalls(); got != 1 {
		t.Fatalf("backend slower than the poll interval was asked %d times, want 1", got)
	}

	close(orders.EstimateBlock)

	// The late result still lands even though newer ticks applied since.
	eventually(t, 2*time.Second, "eta applied", func() bool {
		return sess.Snapshot().EtaMinutes == 17
	})
	time.Sleep(3 * testInterval)
	if got := orders.EstimateCalls(); got != 1 {
		t.Errorf("backend asked %d times after the result landed, want 1", got)
	}
}

func TestTracking_EtaFallsBackToLocalEstimate(t *testing.T) {
	t.Parallel()

	riderPt := geo.Point{Lat: 14.60, Lng: 120.98}
	pin := geo.Point{Lat: 14.65, Lng: 121.01}

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	orders.SetEstimateError(errors.New("estimate service down"))
	locations := NewMockLocationFetcher()
	locations.SetPoint(riderPt)

	manager := tracking.NewManager(tracking.Deps{
		Orders:      orders,
		Locations:   locations,
		Planner:     NewMockPlanner(),
		Publisher:   NewMockPublisher(),
		Interval:    testInterval,
		AvgSpeedKmh: 25,
		DefaultPin:  geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "", &pin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := geo.EstimateMinutes(geo.DistanceKm(riderPt, pin), 25)
	eventually(t, 2*time.Second, "fallback eta", func() bool {
		return sess.Snapshot().EtaMinutes == want
	})
}

func TestTracking_LocationOutageKeepsLastMarker(t *testing.T) {
	t.Parallel()

	last := geo.Point{Lat: 14.61, Lng: 120.99}

	orders := NewMockOrderFetcher()
	orders.SetOrder(deliveringOrder("rider-1"))
	locations := NewMockLocationFetcher()
	locations.SetPoint(last)

	manager := tracking.NewManager(tracking.Deps{
		Orders:     orders,
		Locations:  locations,
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, 2*time.Second, "rider marker", func() bool {
		snap := sess.Snapshot()
		return snap.Rider != nil && snap.Rider.Position == last
	})

	// Every source goes dark; the marker must keep its last known position.
	locations.SetError(location.ErrUnavailable)

	time.Sleep(5 * testInterval)
	snap := sess.Snapshot()
	if snap.Rider == nil || snap.Rider.Position != last {
		t.Errorf("expected the marker to keep %v, got %+v", last, snap.Rider)
	}
	if snap.State == tracking.StateUninitialized {
		t.Error("expected the session to stay initialized through the outage")
	}
}

func TestTracking_ExplicitPinWinsOverAddress(t *testing.T) {
	t.Parallel()

	pin := geo.Point{Lat: 14.70, Lng: 121.05}
	geocoder := &MockGeocoder{Point: geo.Point{Lat: 10, Lng: 10}}

	manager := tracking.NewManager(tracking.Deps{
		Orders:     NewMockOrderFetcher(),
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Geocoder:   geocoder,
		Interval:   testInterval,
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "12 Some St, Manila", &pin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := sess.Snapshot()
	if snap.Customer == nil || snap.Customer.Position != pin {
		t.Errorf("expected customer marker at %v, got %+v", pin, snap.Customer)
	}
	if geocoder.ResolveCallCount != 0 {
		t.Errorf("expected no geocode call, got %d", geocoder.ResolveCallCount)
	}
}

func TestTracking_GeocodeFailureFallsBackToDefaultPin(t *testing.T) {
	t.Parallel()

	defaultPin := geo.Point{Lat: 14.5995, Lng: 120.9842}
	geocoder := &MockGeocoder{Err: errors.New("geocoder down")}

	manager := tracking.NewManager(tracking.Deps{
		Orders:     NewMockOrderFetcher(),
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Geocoder:   geocoder,
		Interval:   testInterval,
		DefaultPin: defaultPin,
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "nowhere in particular", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := sess.Snapshot()
	if snap.Customer == nil || snap.Customer.Position != defaultPin {
		t.Errorf("expected customer marker at default pin %v, got %+v", defaultPin, snap.Customer)
	}
}

func TestTracking_SubscribePrimesWithCurrentState(t *testing.T) {
	t.Parallel()

	manager := tracking.NewManager(tracking.Deps{
		Orders:     NewMockOrderFetcher(),
		Locations:  NewMockLocationFetcher(),
		Planner:    NewMockPlanner(),
		Publisher:  NewMockPublisher(),
		Interval:   time.Hour, // no further ticks during the test
		DefaultPin: geo.Point{Lat: 14.5995, Lng: 120.9842},
	})
	defer manager.StopAll()

	sess, err := manager.Start(context.Background(), "order-1", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshots, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	select {
	case snap := <-snapshots:
		if snap.OrderID != "order-1" {
			t.Errorf("expected snapshot for order-1, got %s", snap.OrderID)
		}
		if snap.SessionID != sess.ID {
			t.Errorf("expected snapshot for session %s, got %s", sess.ID, snap.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an immediate snapshot after subscribing")
	}
}
