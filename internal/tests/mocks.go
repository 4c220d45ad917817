package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cafetrack/internal/domain"
	"cafetrack/internal/geo"
	"cafetrack/internal/location"
	"cafetrack/internal/repository"
	"cafetrack/internal/route"
)

// ──────────────────────────────────────────────
// MOCK ORDER FETCHER
// ──────────────────────────────────────────────

// MockOrderFetcher is a mock implementation of tracking.OrderFetcher.
type MockOrderFetcher struct {
	mu    sync.RWMutex
	order *domain.TrackedOrder

	// Counters for verification
	FetchCallCount    int32
	EstimateCallCount int32

	// Error injection
	fetchErr    error
	estimateErr error

	// Canned ETA
	EtaMinutes int

	// EstimateBlock, when set before the session starts, holds every
	// EstimateDeliveryTime call open until the channel is closed.
	EstimateBlock chan struct{}
}

// NewMockOrderFetcher creates a new mock order fetcher.
func NewMockOrderFetcher() *MockOrderFetcher {
	return &MockOrderFetcher{EtaMinutes: 15}
}

// SetOrder replaces the order returned by FetchOrder.
func (m *MockOrderFetcher) SetOrder(order *domain.TrackedOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = order
}

// SetFetchError makes FetchOrder fail with err until cleared.
func (m *MockOrderFetcher) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

// SetEstimateError makes EstimateDeliveryTime fail with err until cleared.
func (m *MockOrderFetcher) SetEstimateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimateErr = err
}

func (m *MockOrderFetcher) FetchOrder(ctx context.Context, orderID string) (*domain.TrackedOrder, error) {
	atomic.AddInt32(&m.FetchCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	if m.order == nil {
		return nil, nil
	}
	// Return a copy to avoid mutation issues.
	copy := *m.order
	return &copy, nil
}

func (m *MockOrderFetcher) EstimateDeliveryTime(ctx context.Context, orderID string, customerPin geo.Point) (int, error) {
	atomic.AddInt32(&m.EstimateCallCount, 1)
	m.mu.RLock()
	block := m.EstimateBlock
	err := m.estimateErr
	minutes := m.EtaMinutes
	m.mu.RUnlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if err != nil {
		return 0, err
	}
	return minutes, nil
}

// FetchCalls returns how many times FetchOrder has been called.
func (m *MockOrderFetcher) FetchCalls() int32 {
	return atomic.LoadInt32(&m.FetchCallCount)
}

// EstimateCalls returns how many times EstimateDeliveryTime has been called.
func (m *MockOrderFetcher) EstimateCalls() int32 {
	return atomic.LoadInt32(&m.EstimateCallCount)
}

// ──────────────────────────────────────────────
// MOCK LOCATION FETCHER
// ──────────────────────────────────────────────

// MockLocationFetcher is a mock implementation of tracking.LocationFetcher.
type MockLocationFetcher struct {
	mu  sync.RWMutex
	pt  geo.Point
	ok  bool
	err error

	FetchCallCount int32
}

// NewMockLocationFetcher creates a mock that starts with no known position.
func NewMockLocationFetcher() *MockLocationFetcher {
	return &MockLocationFetcher{}
}

// SetPoint sets the position returned by Fetch and clears any error.
func (m *MockLocationFetcher) SetPoint(pt geo.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pt = pt
	m.ok = true
	m.err = nil
}

// SetError makes Fetch fail with err.
func (m *MockLocationFetcher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockLocationFetcher) Fetch(ctx context.Context, entityID string) (geo.Point, error) {
	atomic.AddInt32(&m.FetchCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return geo.Point{}, m.err
	}
	if !m.ok {
		return geo.Point{}, location.ErrUnavailable
	}
	return m.pt, nil
}

// ──────────────────────────────────────────────
// MOCK ROUTE PLANNER
// ──────────────────────────────────────────────

// MockPlanner is a mock implementation of route.Planner.
type MockPlanner struct {
	mu sync.RWMutex

	PlanCallCount int32
	PlanError     error
	Geometry      string
}

// NewMockPlanner creates a planner that returns a fixed route.
func NewMockPlanner() *MockPlanner {
	return &MockPlanner{Geometry: "encoded-polyline"}
}

func (m *MockPlanner) Plan(ctx context.Context, origin, destination geo.Point) (*route.Route, error) {
	atomic.AddInt32(&m.PlanCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.PlanError != nil {
		return nil, m.PlanError
	}
	return &route.Route{
		Geometry:        m.Geometry,
		DistanceKm:      geo.DistanceKm(origin, destination),
		DurationMinutes: geo.EstimateMinutes(geo.DistanceKm(origin, destination), geo.DefaultAvgSpeedKmh),
		PlannedAt:       time.Now().UTC(),
	}, nil
}

// ──────────────────────────────────────────────
// MOCK EVENT PUBLISHER
// ──────────────────────────────────────────────

// PublishedTransition records one StatusChanged event.
type PublishedTransition struct {
	OrderID  string
	From, To domain.OrderStatus
}

// MockPublisher is a mock implementation of tracking.EventPublisher.
type MockPublisher struct {
	mu          sync.Mutex
	transitions []PublishedTransition
	stops       []domain.OrderStatus

	StatusChangedCallCount   int32
	TrackingStoppedCallCount int32

	// StopGate, when set before the session starts, holds TrackingStopped
	// open until the channel is closed. Simulates a slow broker.
	StopGate chan struct{}
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) StatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	m.transitions = append(m.transitions, PublishedTransition{OrderID: orderID, From: from, To: to})
	m.mu.Unlock()
	atomic.AddInt32(&m.StatusChangedCallCount, 1)
	return nil
}

func (m *MockPublisher) TrackingStopped(ctx context.Context, orderID string, final domain.OrderStatus) error {
	if m.StopGate != nil {
		select {
		case <-m.StopGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.stops = append(m.stops, final)
	m.mu.Unlock()
	atomic.AddInt32(&m.TrackingStoppedCallCount, 1)
	return nil
}

// StatusChanges returns how many StatusChanged events were published.
func (m *MockPublisher) StatusChanges() int32 {
	return atomic.LoadInt32(&m.StatusChangedCallCount)
}

// StopEvents returns how many TrackingStopped events were published.
func (m *MockPublisher) StopEvents() int32 {
	return atomic.LoadInt32(&m.TrackingStoppedCallCount)
}

// Transitions returns all recorded status transitions.
func (m *MockPublisher) Transitions() []PublishedTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedTransition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// Stops returns the final statuses of all recorded stop events.
func (m *MockPublisher) Stops() []domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderStatus, len(m.stops))
	copy(out, m.stops)
	return out
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of redis.LockStoreInterface.
type MockLockStore struct {
	mu   sync.Mutex
	held map[string]bool

	// AcquireResult forces every acquire to fail when false.
	AcquireResult bool

	AcquireCallCount int32
	RefreshCallCount int32
	ReleaseCallCount int32
}

// NewMockLockStore creates a lock store where acquisition succeeds.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{held: make(map[string]bool), AcquireResult: true}
}

func (m *MockLockStore) AcquireTrackLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.AcquireResult || m.held[orderID] {
		return false, nil
	}
	m.held[orderID] = true
	return true, nil
}

func (m *MockLockStore) RefreshTrackLock(ctx context.Context, orderID string, ttl time.Duration) error {
	atomic.AddInt32(&m.RefreshCallCount, 1)
	return nil
}

func (m *MockLockStore) ReleaseTrackLock(ctx context.Context, orderID string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, orderID)
	return nil
}

// Held reports whether the lock for an order is currently held.
func (m *MockLockStore) Held(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[orderID]
}

// ──────────────────────────────────────────────
// MOCK SESSION REPOSITORY
// ──────────────────────────────────────────────

// MockSessionRepository is a mock implementation of repository.SessionRepository.
type MockSessionRepository struct {
	mu      sync.Mutex
	records map[string]*domain.TrackRecord

	CreateCallCount int32
	CloseCallCount  int32
}

// NewMockSessionRepository creates a new mock session repository.
func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{records: make(map[string]*domain.TrackRecord)}
}

func (m *MockSessionRepository) Create(ctx context.Context, record *domain.TrackRecord) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *record
	m.records[record.ID] = &copy
	return nil
}

func (m *MockSessionRepository) Close(ctx context.Context, sessionID string, final domain.OrderStatus) error {
	atomic.AddInt32(&m.CloseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[sessionID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	record.StoppedAt = &now
	record.FinalStatus = final
	return nil
}

func (m *MockSessionRepository) GetByOrder(ctx context.Context, orderID string) (*domain.TrackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.OrderID == orderID {
			copy := *record
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetRecord returns a record for test assertions.
func (m *MockSessionRepository) GetRecord(sessionID string) *domain.TrackRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[sessionID]
}

// ──────────────────────────────────────────────
// MOCK SNAPSHOT CACHE
// ──────────────────────────────────────────────

// MockSnapshotCache is a mock implementation of tracking.SnapshotCache.
type MockSnapshotCache struct {
	mu          sync.Mutex
	invalidated map[string]bool

	InvalidateCallCount int32
}

// NewMockSnapshotCache creates a new mock snapshot cache.
func NewMockSnapshotCache() *MockSnapshotCache {
	return &MockSnapshotCache{invalidated: make(map[string]bool)}
}

func (m *MockSnapshotCache) InvalidateOrderSnapshot(ctx context.Context, orderID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated[orderID] = true
	return nil
}

// Invalidated reports whether the snapshot for an order was dropped.
func (m *MockSnapshotCache) Invalidated(orderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidated[orderID]
}

// ──────────────────────────────────────────────
// MOCK GEOCODER
// ──────────────────────────────────────────────

// MockGeocoder is a mock implementation of tracking.AddressResolver.
type MockGeocoder struct {
	Point geo.Point
	Err   error

	ResolveCallCount int32
}

func (m *MockGeocoder) Resolve(ctx context.Context, address string) (geo.Point, error) {
	atomic.AddInt32(&m.ResolveCallCount, 1)
	if m.Err != nil {
		return geo.Point{}, m.Err
	}
	return m.Point, nil
}
