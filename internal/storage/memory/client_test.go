package memory

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestHitWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewWithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.Hit(ctx, "u1", 10*time.Second, 3)
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("hit %d should be allowed", i)
		}
	}
	ok, _ := c.Hit(ctx, "u1", 10*time.Second, 3)
	if ok {
		t.Fatal("4th hit inside the window should be rejected")
	}

	// Another identity is unaffected.
	if ok, _ := c.Hit(ctx, "u2", 10*time.Second, 3); !ok {
		t.Fatal("other key should be allowed")
	}

	// After the window passes, the identity recovers.
	now = now.Add(11 * time.Second)
	if ok, _ := c.Hit(ctx, "u1", 10*time.Second, 3); !ok {
		t.Fatal("hit after window expiry should be allowed")
	}
}

func TestHitConcurrent(t *testing.T) {
	c := New()
	ctx := context.Background()
	const attempts = 50
	const max = 10

	var wg sync.WaitGroup
	allowed := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Hit(ctx, "same", time.Minute, max)
			if err != nil {
				t.Errorf("hit: %v", err)
				return
			}
			allowed <- ok
		}()
	}
	wg.Wait()
	close(allowed)

	n := 0
	for ok := range allowed {
		if ok {
			n++
		}
	}
	if n != max {
		t.Fatalf("exactly %d concurrent hits should pass, got %d", max, n)
	}
}
