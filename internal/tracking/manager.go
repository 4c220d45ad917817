package tracking

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
	"cafetrack/internal/redis"
	"cafetrack/internal/repository"
	"cafetrack/internal/route"
)

const (
	trackLockTTL     = 30 * time.Second
	trackLockRefresh = 10 * time.Second
)

// AddressResolver turns a customer address into a coordinate.
type AddressResolver interface {
	Resolve(ctx context.Context, address string) (geo.Point, error)
}

// SnapshotCache drops cached order snapshots.
type SnapshotCache interface {
	InvalidateOrderSnapshot(ctx context.Context, orderID string) error
}

// Deps contains everything sessions need.
type Deps struct {
	Orders    OrderFetcher
	Locations LocationFetcher
	Planner   route.Planner
	Publisher EventPublisher
	Geocoder  AddressResolver

	// Sessions persists session audit records; may be nil.
	Sessions repository.SessionRepository
	// Locks prevents two instances from polling the same order; may be nil.
	Locks redis.LockStoreInterface
	// Snapshots, when set, is cleared for an order once its session ends,
	// so a later re-track starts from a fresh upstream fetch.
	Snapshots SnapshotCache

	Interval    time.Duration
	AvgSpeedKmh float64

	// DefaultPin anchors the customer marker when the address cannot be
	// geocoded, so tracking can always start.
	DefaultPin geo.Point
}

// Manager owns all live tracking sessions, one per order.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Start begins tracking an order. An explicit pin wins over the address;
// a failed geocode falls back to the default pin. Starting an order that is
// already tracked returns the existing session.
func (m *Manager) Start(ctx context.Context, orderID, address string, pin *geo.Point) (*Session, error) {
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	customerPin := m.resolvePin(ctx, address, pin)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[orderID]; ok {
		return existing, nil
	}

	if m.deps.Locks != nil {
		locked, err := m.deps.Locks.AcquireTrackLock(ctx, orderID, trackLockTTL)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, ErrAlreadyTracking
		}
	}

	sess := newSession(uuid.NewString(), orderID, customerPin, m.deps)

	if m.deps.Sessions != nil {
		record := &domain.TrackRecord{
			ID:        sess.ID,
			OrderID:   orderID,
			StartedAt: time.Now().UTC(),
		}
		if err := m.deps.Sessions.Create(ctx, record); err != nil {
			log.Printf("track %s: session audit write failed: %v", orderID, err)
		}
	}

	m.sessions[orderID] = sess
	sess.start(context.Background())
	go m.watch(sess)

	return sess, nil
}

// Get returns the live session for an order.
func (m *Manager) Get(orderID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[orderID]
	if !ok {
		return nil, ErrNotTracking
	}
	return sess, nil
}

// Stop ends tracking for an order.
func (m *Manager) Stop(orderID string) error {
	sess, err := m.Get(orderID)
	if err != nil {
		return err
	}
	sess.Stop()
	return nil
}

// StopAll ends every session and waits briefly for the loops to exit.
// Called on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
	for _, sess := range sessions {
		select {
		case <-sess.Done():
		case <-time.After(2 * time.Second):
		}
	}
}

// resolvePin picks the customer coordinate for a session.
func (m *Manager) resolvePin(ctx context.Context, address string, pin *geo.Point) geo.Point {
	if pin != nil && pin.Valid() {
		return *pin
	}
	if address != "" && m.deps.Geocoder != nil {
		pt, err := m.deps.Geocoder.Resolve(ctx, address)
		if err == nil && pt.Valid() {
			return pt
		}
		log.Printf("geocode %q failed, using default pin: %v", address, err)
	}
	return m.deps.DefaultPin
}

// watch keeps the distributed lock alive while the session runs and cleans
// up once it finishes.
func (m *Manager) watch(sess *Session) {
	refresh := time.NewTicker(trackLockRefresh)
	defer refresh.Stop()

	for {
		select {
		case <-refresh.C:
			if m.deps.Locks != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := m.deps.Locks.RefreshTrackLock(ctx, sess.OrderID, trackLockTTL); err != nil {
					log.Printf("track %s: lock refresh failed: %v", sess.OrderID, err)
				}
				cancel()
			}
		case <-sess.Done():
			m.cleanup(sess)
			return
		}
	}
}

func (m *Manager) cleanup(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if m.deps.Locks != nil {
		if err := m.deps.Locks.ReleaseTrackLock(ctx, sess.OrderID); err != nil {
			log.Printf("track %s: lock release failed: %v", sess.OrderID, err)
		}
	}
	if m.deps.Sessions != nil {
		if err := m.deps.Sessions.Close(ctx, sess.ID, sess.Snapshot().Status); err != nil {
			log.Printf("track %s: session audit close failed: %v", sess.OrderID, err)
		}
	}
	if m.deps.Snapshots != nil {
		if err := m.deps.Snapshots.InvalidateOrderSnapshot(ctx, sess.OrderID); err != nil {
			log.Printf("track %s: snapshot invalidate failed: %v", sess.OrderID, err)
		}
	}

	m.mu.Lock()
	if current, ok := m.sessions[sess.OrderID]; ok && current == sess {
		delete(m.sessions, sess.OrderID)
	}
	m.mu.Unlock()
}
