// Package tracking runs live tracking sessions. A session polls the upstream
// order service and the rider's position on a fixed interval, derives marker
// headings and an ETA, keeps the planned route fresh, and fans snapshots out
// to subscribers until the order reaches a terminal status.
package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
	"cafetrack/internal/location"
	"cafetrack/internal/route"
	"cafetrack/internal/upstream"
)

// State is the rendering state of a tracking session.
type State string

const (
	// StateUninitialized means at least one endpoint position is unknown.
	StateUninitialized State = "UNINITIALIZED"
	// StateMapReady means both endpoints are known but no route is drawn.
	StateMapReady State = "MAP_READY"
	// StateRouteDrawn means a route has been planned at least once.
	StateRouteDrawn State = "ROUTE_DRAWN"
	// StateIdle means the session has stopped; no further requests are made.
	StateIdle State = "IDLE"
)

// OrderFetcher polls order snapshots and authoritative ETAs.
type OrderFetcher interface {
	FetchOrder(ctx context.Context, orderID string) (*domain.TrackedOrder, error)
	EstimateDeliveryTime(ctx context.Context, orderID string, customerPin geo.Point) (int, error)
}

// LocationFetcher resolves an entity's current position.
type LocationFetcher interface {
	Fetch(ctx context.Context, entityID string) (geo.Point, error)
}

// EventPublisher emits tracking lifecycle events.
type EventPublisher interface {
	StatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error
	TrackingStopped(ctx context.Context, orderID string, final domain.OrderStatus) error
}

// Marker is the rendered position of one tracked entity.
type Marker struct {
	Position       geo.Point `json:"position"`
	HeadingDegrees float64   `json:"heading_degrees"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot is the full client-facing view of a tracking session.
type Snapshot struct {
	SessionID  string             `json:"session_id"`
	OrderID    string             `json:"order_id"`
	State      State              `json:"state"`
	Status     domain.OrderStatus `json:"status"`
	RiderID    string             `json:"rider_id,omitempty"`
	RiderName  string             `json:"rider_name,omitempty"`
	Rider      *Marker            `json:"rider,omitempty"`
	Customer   *Marker            `json:"customer,omitempty"`
	Route      *route.Route       `json:"route,omitempty"`
	EtaMinutes int                `json:"eta_minutes,omitempty"`
	Error      string             `json:"error,omitempty"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Session tracks one order. Create sessions through a Manager.
type Session struct {
	ID      string
	OrderID string

	orders    OrderFetcher
	locations LocationFetcher
	planner   route.Planner
	publisher EventPublisher

	interval    time.Duration
	avgSpeedKmh float64
	customerPin geo.Point

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	snap        Snapshot
	overlay     *route.Overlay
	nextSeq     uint64
	appliedSeq  uint64
	etaSet      bool
	etaInFlight bool
	stopped     bool

	subMu       sync.Mutex
	subscribers map[uint64]chan Snapshot
	nextSubID   uint64
}

func newSession(id, orderID string, pin geo.Point, deps Deps) *Session {
	interval := deps.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	avgSpeed := deps.AvgSpeedKmh
	if avgSpeed <= 0 {
		avgSpeed = geo.DefaultAvgSpeedKmh
	}

	now := time.Now().UTC()
	return &Session{
		ID:          id,
		OrderID:     orderID,
		orders:      deps.Orders,
		locations:   deps.Locations,
		planner:     deps.Planner,
		publisher:   deps.Publisher,
		interval:    interval,
		avgSpeedKmh: avgSpeed,
		customerPin: pin,
		done:        make(chan struct{}),
		overlay:     route.NewOverlay(),
		snap: Snapshot{
			SessionID: id,
			OrderID:   orderID,
			State:     StateUninitialized,
			Status:    domain.OrderStatusPending,
			Customer:  &Marker{Position: pin, UpdatedAt: now},
			UpdatedAt: now,
		},
		subscribers: make(map[uint64]chan Snapshot),
	}
}

// start launches the polling loop. Each tick runs independently so a slow
// response never delays the next poll; stale responses lose the sequence
// race and are discarded.
func (s *Session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		go s.tick(ctx, s.claimSeq())

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				go s.tick(ctx, s.claimSeq())
			}
		}
	}()
}

// Stop ends the session. Safe to call more than once.
func (s *Session) Stop() {
	s.finish(domain.OrderStatus(""), nil)
}

// Done is closed once the polling loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns a copy of the current tracking state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

// Subscribe registers a snapshot listener. Slow subscribers miss
// intermediate snapshots rather than blocking the session. The returned
// function unsubscribes.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	// Prime with the current state so subscribers render immediately. The
	// send must happen before registration; a concurrent broadcast could
	// otherwise fill the buffer first.
	ch <- s.Snapshot()

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

func (s *Session) claimSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	return s.nextSeq
}

// tick performs one independent poll: refresh the order snapshot, refresh
// the rider marker, fetch the ETA once, and replan the route.
func (s *Session) tick(ctx context.Context, seq uint64) {
	order, err := s.orders.FetchOrder(ctx, s.OrderID)
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			s.finish(domain.OrderStatus(""), err)
			return
		}
		if !errors.Is(err, context.Canceled) {
			log.Printf("track %s: order poll failed: %v", s.OrderID, err)
		}
		order = nil // keep previous order state this tick
	}

	var riderPt *geo.Point
	riderID := s.riderID(order)
	if riderID != "" {
		pt, err := s.locations.Fetch(ctx, riderID)
		switch {
		case err == nil:
			riderPt = &pt
		case errors.Is(err, upstream.ErrUnauthorized):
			s.finish(domain.OrderStatus(""), err)
			return
		case errors.Is(err, location.ErrUnavailable):
			// Temporarily unknown; the marker keeps its last position.
		default:
			log.Printf("track %s: location fetch failed: %v", s.OrderID, err)
		}
	}
	if riderPt == nil && order != nil && order.RiderLocation != nil && order.RiderLocation.Valid() {
		riderPt = order.RiderLocation
	}

	applied, statusChange, terminal := s.apply(seq, order, riderPt)
	if !applied {
		return
	}

	if statusChange != nil {
		if err := s.publisher.StatusChanged(ctx, s.OrderID, statusChange.from, statusChange.to); err != nil {
			log.Printf("track %s: status event publish failed: %v", s.OrderID, err)
		}
	}
	if terminal {
		s.finish(domain.OrderStatus(""), nil)
		return
	}

	s.maybeFetchEta(ctx)
	s.maybePlanRoute(ctx, seq)
	s.broadcast()
}

type statusTransition struct {
	from, to domain.OrderStatus
}

// apply merges one tick's observations into the session under the sequence
// guard. It reports whether this tick won the race, any status transition,
// and whether the new status is terminal.
func (s *Session) apply(seq uint64, order *domain.TrackedOrder, riderPt *geo.Point) (bool, *statusTransition, bool) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || seq <= s.appliedSeq {
		return false, nil, false
	}
	s.appliedSeq = seq

	var change *statusTransition
	if order != nil {
		if order.Status != s.snap.Status {
			change = &statusTransition{from: s.snap.Status, to: order.Status}
		}
		s.snap.Status = order.Status
		if order.RiderID != "" {
			s.snap.RiderID = order.RiderID
		}
		if order.RiderName != "" {
			s.snap.RiderName = order.RiderName
		}
		if order.CustomerPin != nil && order.CustomerPin.Valid() {
			s.customerPin = *order.CustomerPin
			s.snap.Customer = &Marker{Position: s.customerPin, UpdatedAt: now}
		}
	}

	if riderPt != nil {
		heading := 0.0
		if s.snap.Rider != nil {
			heading = geo.Heading(s.snap.Rider.Position, *riderPt)
		}
		s.snap.Rider = &Marker{Position: *riderPt, HeadingDegrees: heading, UpdatedAt: now}
	}

	if s.snap.State == StateUninitialized && s.snap.Rider != nil && s.customerPin.Valid() {
		s.snap.State = StateMapReady
	}
	s.snap.UpdatedAt = now

	return true, change, s.snap.Status.IsTerminal()
}

// maybeFetchEta fetches the authoritative ETA once per order, falling back
// to a haversine estimate when the backend cannot answer. The value may go
// stale afterwards; it is not refreshed on later ticks.
//
// The in-flight flag keeps a backend slower than the poll interval from
// being asked again on every tick. The ETA is tick-independent, so the
// result applies no matter which tick fetched it.
func (s *Session) maybeFetchEta(ctx context.Context) {
	s.mu.Lock()
	if s.etaSet || s.etaInFlight || !s.customerPin.Valid() {
		s.mu.Unlock()
		return
	}
	s.etaInFlight = true
	pin := s.customerPin
	var riderPos *geo.Point
	if s.snap.Rider != nil {
		pos := s.snap.Rider.Position
		riderPos = &pos
	}
	s.mu.Unlock()

	minutes, err := s.orders.EstimateDeliveryTime(ctx, s.OrderID, pin)
	if err != nil && riderPos == nil {
		// No fallback input yet; retry once the rider position is known.
		s.mu.Lock()
		s.etaInFlight = false
		s.mu.Unlock()
		return
	}
	if err != nil {
		minutes = geo.EstimateMinutes(geo.DistanceKm(*riderPos, pin), s.avgSpeedKmh)
	}

	s.mu.Lock()
	s.etaInFlight = false
	if !s.stopped {
		s.snap.EtaMinutes = minutes
		s.etaSet = true
	}
	s.mu.Unlock()
}

// maybePlanRoute replans the rider-to-customer route after a position
// update. A failed plan keeps the previously drawn route.
func (s *Session) maybePlanRoute(ctx context.Context, seq uint64) {
	s.mu.Lock()
	if s.stopped || s.snap.State == StateUninitialized || s.snap.Rider == nil {
		s.mu.Unlock()
		return
	}
	origin := s.snap.Rider.Position
	dest := s.customerPin
	s.mu.Unlock()

	r, err := s.planner.Plan(ctx, origin, dest)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("track %s: route plan failed: %v", s.OrderID, err)
		}
		return
	}

	s.mu.Lock()
	if seq == s.appliedSeq && !s.stopped {
		s.overlay.Replace(r)
		s.snap.Route = s.overlay.Current()
		s.snap.State = StateRouteDrawn
	}
	s.mu.Unlock()
}

// finish transitions the session to Idle, cancels the poll loop and emits
// the stop event. Later calls are no-ops.
func (s *Session) finish(final domain.OrderStatus, cause error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if final != "" {
		s.snap.Status = final
	}
	s.snap.State = StateIdle
	if cause != nil {
		s.snap.Error = cause.Error()
	}
	s.snap.UpdatedAt = time.Now().UTC()
	final = s.snap.Status
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	// The session context is gone, and a slow broker must not stall the
	// stop request or the terminal tick, so the final event goes out on
	// its own goroutine with a short independent context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.publisher.TrackingStopped(ctx, s.OrderID, final); err != nil {
			log.Printf("track %s: stop event publish failed: %v", s.OrderID, err)
		}
	}()

	s.broadcast()
}

func (s *Session) riderID(order *domain.TrackedOrder) string {
	if order != nil && order.RiderID != "" {
		return order.RiderID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.RiderID
}

// broadcast delivers the current snapshot to all subscribers, replacing any
// undelivered previous snapshot.
func (s *Session) broadcast() {
	snap := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func copySnapshot(snap Snapshot) Snapshot {
	out := snap
	if snap.Rider != nil {
		rider := *snap.Rider
		out.Rider = &rider
	}
	if snap.Customer != nil {
		customer := *snap.Customer
		out.Customer = &customer
	}
	if snap.Route != nil {
		r := *snap.Route
		out.Route = &r
	}
	return out
}
