package cache

import (
	"errors"
	"sync"
	"testing"
)

func TestGetOrCreate(t *testing.T) {
	c := New[string, int](10, nil)
	calls := 0
	create := func() (int, error) {
		calls++
		return 100, nil
	}

	for range 3 {
		v, err := c.GetOrCreate("key", create)
		if err != nil || v != 100 {
			t.Fatalf("GetOrCreate() = %d, %v, want 100, nil", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	st := c.Stats()
	if st.Hits != 2 || st.Misses != 1 {
		t.Errorf("Stats() = %+v, want 2 hits, 1 miss", st)
	}
}

func TestGetOrCreateError(t *testing.T) {
	c := New[string, int](10, nil)
	boom := errors.New("boom")

	if _, err := c.GetOrCreate("key", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("GetOrCreate() = %v, want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed create", c.Len())
	}
	if _, ok := c.Get("key"); ok {
		t.Error("failed create should not cache a value")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	var evicted []string
	c := New[string, int](2, func(k string, _ int) { evicted = append(evicted, k) })

	set := func(k string, v int) {
		if _, err := c.GetOrCreate(k, func() (int, error) { return v, nil }); err != nil {
			t.Fatal(err)
		}
	}
	set("a", 1)
	set("b", 2)
	c.Get("a") // b is now least recently used
	set("c", 3)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", c.Stats().Evictions)
	}
}

func TestDeleteAndClear(t *testing.T) {
	evicted := map[string]int{}
	c := New[string, int](0, func(k string, v int) { evicted[k] = v })

	for i, k := range []string{"a", "b", "c"} {
		_, _ = c.GetOrCreate(k, func() (int, error) { return i, nil })
	}

	if !c.Delete("b") {
		t.Error("Delete(b) = false, want true")
	}
	if c.Delete("missing") {
		t.Error("Delete(missing) = true, want false")
	}
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
	if len(evicted) != 3 || evicted["a"] != 0 || evicted["b"] != 1 || evicted["c"] != 2 {
		t.Errorf("evicted = %v, want all three entries", evicted)
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	c := New[int, int](4, nil)
	var wg sync.WaitGroup
	for g := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				k := (g + i) % 8
				v, err := c.GetOrCreate(k, func() (int, error) { return k * 10, nil })
				if err != nil || v != k*10 {
					t.Errorf("GetOrCreate(%d) = %d, %v", k, v, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if c.Len() > 4 {
		t.Errorf("Len() = %d, want at most 4", c.Len())
	}
}

func BenchmarkCacheHit(b *testing.B) {
	c := New[int, int](16, nil)
	_, _ = c.GetOrCreate(1, func() (int, error) { return 1, nil })

	b.ReportAllocs()
	for b.Loop() {
		_, _ = c.Get(1)
	}
}
