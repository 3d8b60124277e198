package fetchz

import (
	"sync"
	"testing"
)

func TestCache_Miss(t *testing.T) {
	c := NewCache[string]()

	if _, ok := c.Get("activities"); ok {
		t.Error("expected miss on empty cache")
	}
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache[string]()

	c.Put("activities", "payload")

	v, ok := c.Get("activities")
	if !ok {
		t.Fatal("expected hit")
	}
	if v != "payload" {
		t.Errorf("expected 'payload', got %q", v)
	}
}

func TestCache_ExactKeyMatch(t *testing.T) {
	c := NewCache[string]()

	c.Put("activities", "list")

	if _, ok := c.Get("activities/1"); ok {
		t.Error("expected miss for different key")
	}
	if _, ok := c.Get("Activities"); ok {
		t.Error("expected miss for differently cased key")
	}
}

func TestCache_PutOverwrites(t *testing.T) {
	c := NewCache[int]()

	c.Put("k", 1)
	c.Put("k", 2)

	v, _ := c.Get("k")
	if v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}

func TestCache_SharesSliceInstance(t *testing.T) {
	c := NewCache[[]string]()

	original := []string{"a", "b"}
	c.Put("k", original)

	got, _ := c.Get("k")
	if &got[0] != &original[0] {
		t.Error("expected cache to return the stored instance")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache[string]()

	c.Put("activities", "list")

	if !c.Invalidate("activities") {
		t.Error("expected Invalidate to report removal")
	}
	if _, ok := c.Get("activities"); ok {
		t.Error("expected miss after invalidate")
	}
	if c.Invalidate("activities") {
		t.Error("expected second Invalidate to report nothing removed")
	}
}

func TestCache_Clear(t *testing.T) {
	c := NewCache[string]()

	c.Put("a", "1")
	c.Put("b", "2")
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_KeysSorted(t *testing.T) {
	c := NewCache[string]()

	c.Put("b", "")
	c.Put("a", "")
	c.Put("c", "")

	keys := c.Keys()
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("expected [a b c], got %v", keys)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put("k", i)
			c.Get("k")
			c.Len()
		}(i)
	}
	wg.Wait()

	if c.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.Len())
	}
}
