package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"ledger/internal/log"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should be cached", k)
		}
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRU_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUWithClock[string](10, time.Minute, clock.Now)
	c.Set("a", "x")
	c.Set("b", "y")

	clock.Advance(30 * time.Second)
	c.Set("b", "z")
	clock.Advance(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != "z" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}

	clock.Advance(time.Hour)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d after cleanup", c.Size())
	}
}

func TestLRU_SetIfAbsent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUWithClock[int](10, time.Minute, clock.Now)

	if v, fresh := c.SetIfAbsent("k", 1); !fresh || v != 1 {
		t.Fatalf("first SetIfAbsent = %d, %v", v, fresh)
	}
	if v, fresh := c.SetIfAbsent("k", 2); fresh || v != 1 {
		t.Fatalf("second SetIfAbsent = %d, %v", v, fresh)
	}
	clock.Advance(2 * time.Minute)
	if v, fresh := c.SetIfAbsent("k", 3); !fresh || v != 3 {
		t.Fatalf("SetIfAbsent after expiry = %d, %v", v, fresh)
	}
}

func TestIdempotency_Lifecycle(t *testing.T) {
	c := NewIdempotency(100, time.Hour)
	fp := Fingerprint([]byte(`{"amount":"10.00"}`))

	if _, outcome := c.Reserve("u1", "key-1", fp); outcome != Proceed {
		t.Fatalf("first reserve = %v, want Proceed", outcome)
	}
	if _, outcome := c.Reserve("u1", "key-1", fp); outcome != InFlight {
		t.Fatalf("concurrent reserve = %v, want InFlight", outcome)
	}
	if _, outcome := c.Reserve("u1", "key-1", Fingerprint([]byte(`{}`))); outcome != Mismatch {
		t.Fatalf("different body = %v, want Mismatch", outcome)
	}
	// Keys are scoped per owner.
	if _, outcome := c.Reserve("u2", "key-1", fp); outcome != Proceed {
		t.Fatalf("other owner = %v, want Proceed", outcome)
	}

	c.Complete("u1", "key-1", fp, 201, []byte(`{"id":"t1"}`))
	resp, outcome := c.Reserve("u1", "key-1", fp)
	if outcome != Replay || resp.Status != 201 || string(resp.Body) != `{"id":"t1"}` {
		t.Fatalf("replay = %+v, %v", resp, outcome)
	}
}

func TestIdempotency_ReleaseAllowsRetry(t *testing.T) {
	c := NewIdempotency(100, time.Hour)
	fp := Fingerprint([]byte("body"))
	c.Reserve("u1", "k", fp)
	c.Release("u1", "k")
	if _, outcome := c.Reserve("u1", "k", fp); outcome != Proceed {
		t.Fatalf("reserve after release = %v, want Proceed", outcome)
	}
}

func TestIdempotency_ConcurrentReserveHasOneWinner(t *testing.T) {
	c := NewIdempotency(100, time.Hour)
	fp := Fingerprint([]byte("body"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, outcome := c.Reserve("u1", "k", fp); outcome == Proceed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("%d requests reserved the key, want 1", winners)
	}
}

func TestIdempotency_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	c := newIdempotencyWithClock(10, time.Minute, clock.Now)
	fp := Fingerprint([]byte("body"))
	c.Reserve("u1", "k", fp)
	c.Complete("u1", "k", fp, 201, nil)

	clock.Advance(2 * time.Minute)
	if _, outcome := c.Reserve("u1", "k", fp); outcome != Proceed {
		t.Fatalf("reserve after TTL = %v, want Proceed", outcome)
	}
}

func TestManager_CleansRegisteredCaches(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	a := NewLRUWithClock[int](10, time.Second, clock.Now)
	b := NewLRUWithClock[int](10, time.Second, clock.Now)
	for i := range 3 {
		a.Set(fmt.Sprint(i), i)
		b.Set(fmt.Sprint(i), i)
	}
	clock.Advance(time.Minute)

	m := NewManager(log.Discard())
	m.Register(a)
	m.Register(b)
	if n := m.CleanNow(); n != 6 {
		t.Fatalf("CleanNow() = %d, want 6", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	m.Stop()
}
