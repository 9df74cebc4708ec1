package ttl

import (
	"sync"
	"testing"
	"time"
)

func TestMap_Expiry(t *testing.T) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	m := New[string, int](clock.Now)

	m.Set("a", 1, time.Hour)
	m.Set("forever", 2, 0)

	clock.Advance(time.Hour - time.Second)
	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) before expiry = %d, %v; want 1, true", v, ok)
	}
	if ttl, ok := m.TTL("a"); !ok || ttl != time.Second {
		t.Errorf("TTL(a) = %v, %v; want 1s, true", ttl, ok)
	}

	clock.Advance(time.Second)
	if _, ok := m.Get("a"); ok {
		t.Error("Get(a) at expiry ok = true, want false")
	}
	if v, ok := m.Get("forever"); !ok || v != 2 {
		t.Errorf("Get(forever) = %d, %v; want 2, true", v, ok)
	}
	if ttl, ok := m.TTL("forever"); !ok || ttl != 0 {
		t.Errorf("TTL(forever) = %v, %v; want 0, true", ttl, ok)
	}
}

func TestMap_UpdateRefreshesTTL(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := New[string, []string](clock.Now)

	push := func(v string) {
		m.Update("k", 10*time.Second, func(old []string, _ bool) []string {
			return append([]string{v}, old...)
		})
	}

	push("first")
	clock.Advance(8 * time.Second)
	push("second")
	clock.Advance(8 * time.Second)

	got, ok := m.Get("k")
	if !ok {
		t.Fatal("Get(k) ok = false after TTL refresh")
	}
	if len(got) != 2 || got[0] != "second" || got[1] != "first" {
		t.Errorf("Get(k) = %v, want [second first]", got)
	}

	clock.Advance(3 * time.Second)
	if _, ok := m.Get("k"); ok {
		t.Error("Get(k) ok = true after refreshed TTL elapsed")
	}
}

func TestMap_UpdateSeesExpiredAsMissing(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := New[string, int](clock.Now)

	m.Set("n", 41, time.Second)
	clock.Advance(2 * time.Second)

	got := m.Update("n", 0, func(old int, found bool) int {
		if found {
			t.Error("Update saw expired entry as found")
		}
		return old + 1
	})
	if got != 1 {
		t.Errorf("Update() = %d, want 1", got)
	}
}

func TestMap_LenAndSweep(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	m := New[int, int](clock.Now)

	for i := 0; i < 5; i++ {
		m.Set(i, i, time.Duration(i+1)*time.Second)
	}
	clock.Advance(3 * time.Second)

	if n := m.Len(); n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
	if n := m.Stored(); n != 5 {
		t.Errorf("Stored() before sweep = %d, want 5", n)
	}
	if n := m.Sweep(); n != 3 {
		t.Errorf("Sweep() = %d, want 3", n)
	}
	if n := m.Stored(); n != 2 {
		t.Errorf("Stored() after sweep = %d, want 2", n)
	}
	m.Delete(4)
	if n := m.Len(); n != 1 {
		t.Errorf("Len() after Delete = %d, want 1", n)
	}
}

func TestMap_ConcurrentUpdate(t *testing.T) {
	m := New[string, int](nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update("counter", 0, func(old int, _ bool) int { return old + 1 })
		}()
	}
	wg.Wait()

	if v, _ := m.Get("counter"); v != 100 {
		t.Errorf("counter = %d, want 100", v)
	}
}
