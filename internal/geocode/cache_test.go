package geocode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"cafetrack/internal/geo"
)

// stubGeocoder counts calls and supports error injection.
type stubGeocoder struct {
	callCount int32
	point     geo.Point
	err       error

	block     chan struct{} // optional: hold requests open until closed
	started   chan struct{} // optional: closed when the first request arrives
	startOnce sync.Once
}

func (s *stubGeocoder) Geocode(ctx context.Context, address string) (geo.Point, error) {
	atomic.AddInt32(&s.callCount, 1)
	if s.started != nil {
		s.startOnce.Do(func() { close(s.started) })
	}
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return geo.Point{}, s.err
	}
	return s.point, nil
}

func (s *stubGeocoder) calls() int32 {
	return atomic.LoadInt32(&s.callCount)
}

func TestCacheResolve_SecondCallHitsCache(t *testing.T) {
	t.Parallel()

	provider := &stubGeocoder{point: geo.Point{Lat: 14.5995, Lng: 120.9842}}
	cache := NewCache(provider)

	first, err := cache.Resolve(context.Background(), "123 Main St")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.Resolve(context.Background(), "123 Main St")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Errorf("cache returned different points: %v vs %v", first, second)
	}
	if got := provider.calls(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

func TestCacheResolve_KeyNormalization(t *testing.T) {
	t.Parallel()

	provider := &stubGeocoder{point: geo.Point{Lat: 1, Lng: 2}}
	cache := NewCache(provider)

	if _, err := cache.Resolve(context.Background(), "  123  Main St "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Resolve(context.Background(), "123 main st"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := provider.calls(); got != 1 {
		t.Errorf("provider called %d times, want 1 (variants should share one key)", got)
	}
	if got := cache.Len(); got != 1 {
		t.Errorf("cache holds %d entries, want 1", got)
	}
}

func TestCacheResolve_ConcurrentCallsShareOneRequest(t *testing.T) {
	t.Parallel()

	provider := &stubGeocoder{
		point:   geo.Point{Lat: 1, Lng: 2},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	cache := NewCache(provider)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]geo.Point, callers)
	errs := make([]error, callers)

	// First caller becomes the leader and blocks inside the provider.
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = cache.Resolve(context.Background(), "coffee lane 7")
	}()

	// Wait until the leader has registered its pending lookup.
	<-provider.started

	for i := 1; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cache.Resolve(context.Background(), "Coffee Lane 7")
		}()
	}

	close(provider.block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != (geo.Point{Lat: 1, Lng: 2}) {
			t.Errorf("caller %d got %v", i, results[i])
		}
	}
	if got := provider.calls(); got != 1 {
		t.Errorf("provider called %d times, want 1", got)
	}
}

func TestCacheResolve_FailureNotCached(t *testing.T) {
	t.Parallel()

	provider := &stubGeocoder{err: ErrNotFound}
	cache := NewCache(provider)

	if _, err := cache.Resolve(context.Background(), "nowhere"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Provider recovers; the retry must reach it.
	provider.err = nil
	provider.point = geo.Point{Lat: 3, Lng: 4}

	pt, err := cache.Resolve(context.Background(), "nowhere")
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if pt != (geo.Point{Lat: 3, Lng: 4}) {
		t.Errorf("retry returned %v, want {3 4}", pt)
	}
	if got := provider.calls(); got != 2 {
		t.Errorf("provider called %d times, want 2 (failure must not be cached)", got)
	}
}

func TestCacheResolve_EmptyAddress(t *testing.T) {
	t.Parallel()

	provider := &stubGeocoder{}
	cache := NewCache(provider)

	if _, err := cache.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank address, got %v", err)
	}
	if got := provider.calls(); got != 0 {
		t.Errorf("provider called %d times for blank address, want 0", got)
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{" 123 Main St ", "123 main st"},
		{"123\tMain   St", "123 main st"},
		{"", ""},
		{"ONE", "one"},
	}

	for _, tc := range testCases {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
