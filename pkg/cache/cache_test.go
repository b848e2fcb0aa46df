package cache

import (
	"sync"
	"testing"
	"time"
)

func TestPriceCache(t *testing.T) {
	c := NewPriceCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("KRW-BTC", Quote{Price: 100, UpdatedAt: now.Add(-10 * time.Second)})
	c.Set("KRW-ETH", Quote{Price: 5, UpdatedAt: now.Add(-2 * time.Minute)})

	t.Run("stale update is ignored", func(t *testing.T) {
		c.Set("KRW-BTC", Quote{Price: 90, UpdatedAt: now.Add(-time.Minute)})
		q, ok := c.Get("KRW-BTC")
		if !ok || q.Price != 100 {
			t.Errorf("Get = %+v, %v", q, ok)
		}
	})

	t.Run("fresh", func(t *testing.T) {
		if p, ok := c.Fresh("KRW-BTC", 30*time.Second); !ok || p != 100 {
			t.Errorf("Fresh(BTC) = %v, %v", p, ok)
		}
		if _, ok := c.Fresh("KRW-ETH", 30*time.Second); ok {
			t.Error("ETH quote should be stale")
		}
		if _, ok := c.Fresh("KRW-XRP", time.Hour); ok {
			t.Error("missing market reported fresh")
		}
	})

	t.Run("evict", func(t *testing.T) {
		if n := c.Evict(time.Minute); n != 1 {
			t.Errorf("Evict removed %d, want 1", n)
		}
		if c.Len() != 1 {
			t.Errorf("Len = %d, want 1", c.Len())
		}
		if _, ok := c.Snapshot()["KRW-BTC"]; !ok {
			t.Error("snapshot missing KRW-BTC")
		}
	})
}

func TestKeyedMutexSerialisesPerKey(t *testing.T) {
	k := NewKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("KRW-BTC")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}

	// Different keys do not block each other.
	unlock := k.Lock("KRW-BTC")
	done := make(chan struct{})
	go func() {
		k.Lock("KRW-ETH")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on KRW-ETH blocked by KRW-BTC")
	}
	unlock()
}
