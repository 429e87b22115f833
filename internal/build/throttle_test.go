package build

import (
	"slices"
	"sync"
	"testing"
	"time"
)

type collector[T any] struct {
	mu     sync.Mutex
	values []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, v)
}

func (c *collector[T]) get() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.values)
}

func TestThrottle(t *testing.T) {
	t.Run("passes the first value and the latest of a burst", func(t *testing.T) {
		c := &collector[int]{}
		th := NewThrottle(50*time.Millisecond, c.add)
		for i := 1; i <= 5; i++ {
			th.Call(i)
		}
		if got := c.get(); !slices.Equal(got, []int{1}) {
			t.Fatalf("got %v, want [1]", got)
		}

		deadline := time.Now().Add(2 * time.Second)
		for len(c.get()) < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		if got := c.get(); !slices.Equal(got, []int{1, 5}) {
			t.Fatalf("got %v, want [1 5]", got)
		}
	})

	t.Run("flushes the pending value", func(t *testing.T) {
		c := &collector[string]{}
		th := NewThrottle(time.Hour, c.add)
		th.Call("a")
		th.Call("b")
		th.Call("c")
		th.Flush()
		if got := c.get(); !slices.Equal(got, []string{"a", "c"}) {
			t.Fatalf("got %v, want [a c]", got)
		}
		th.Flush()
		if got := c.get(); len(got) != 2 {
			t.Fatalf("got %v, want nothing more", got)
		}
		th.Stop()
	})

	t.Run("drops the pending value on stop", func(t *testing.T) {
		c := &collector[int]{}
		th := NewThrottle(10*time.Millisecond, c.add)
		th.Call(1)
		th.Call(2)
		th.Stop()
		th.Call(3)
		time.Sleep(50 * time.Millisecond)
		if got := c.get(); !slices.Equal(got, []int{1}) {
			t.Fatalf("got %v, want [1]", got)
		}
	})
}

func TestThrottledListener(t *testing.T) {
	c := &collector[Event]{}
	l := NewThrottledListener(ListenerFunc(c.add), time.Hour)

	l.OnEvent(Event{Status: "p1"})
	l.OnEvent(Event{Status: "o1", Overwrite: true})
	l.OnEvent(Event{Status: "o2", Overwrite: true})
	l.OnEvent(Event{Status: "o3", Overwrite: true})
	l.OnEvent(Event{Status: "p2"})
	l.OnEvent(Event{Status: "o4", Overwrite: true})
	l.OnEvent(Event{Status: "o5", Overwrite: true})
	l.Close()
	l.OnEvent(Event{Status: "late"})

	var got []string
	for _, e := range c.get() {
		got = append(got, e.Status)
	}
	want := []string{"p1", "o1", "o3", "p2", "o5"}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
