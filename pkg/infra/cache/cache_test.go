package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New()

	c.Set("nas", "Office NAS")
	val, found := c.Get("nas")
	if !found {
		t.Fatal("expected to find nas")
	}
	if val != "Office NAS" {
		t.Errorf("expected Office NAS, got %v", val)
	}

	if _, found := c.Get("missing"); found {
		t.Error("expected not to find missing key")
	}
}

func TestExpiration(t *testing.T) {
	c := New(WithTTL(50 * time.Millisecond))

	c.Set("nas", "Office NAS")
	if _, found := c.Get("nas"); !found {
		t.Fatal("expected to find nas before expiry")
	}

	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get("nas"); found {
		t.Error("expected nas to have expired")
	}
	if got := c.Size(); got != 0 {
		t.Errorf("expected expired entry to be dropped, size %d", got)
	}
}

func TestNoExpiration(t *testing.T) {
	c := New()

	c.Set("nas", "Office NAS")
	time.Sleep(50 * time.Millisecond)

	if _, found := c.Get("nas"); !found {
		t.Error("expected entry without TTL to persist")
	}
}

func TestDeleteAndClear(t *testing.T) {
	c := New()

	c.Set("nas", "Office NAS")
	c.Set("pi", "Hallway Pi")
	if got := c.Size(); got != 2 {
		t.Fatalf("expected size 2, got %d", got)
	}

	c.Delete("nas")
	if _, found := c.Get("nas"); found {
		t.Error("expected nas gone after delete")
	}
	if got := c.Size(); got != 1 {
		t.Errorf("expected size 1 after delete, got %d", got)
	}

	c.Clear()
	if got := c.Size(); got != 0 {
		t.Errorf("expected size 0 after clear, got %d", got)
	}
}

func TestMaxSizeEviction(t *testing.T) {
	c := New(WithTTL(time.Hour), WithMaxSize(3))

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("server-%d", i), i)
	}
	c.Set("server-3", 3)

	if got := c.Size(); got != 3 {
		t.Errorf("expected size capped at 3, got %d", got)
	}
	if _, found := c.Get("server-3"); !found {
		t.Error("expected newest entry to survive eviction")
	}
}

func TestSetExistingKeyDoesNotEvict(t *testing.T) {
	c := New(WithMaxSize(2))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	if got := c.Size(); got != 2 {
		t.Errorf("expected size 2, got %d", got)
	}
	val, found := c.Get("a")
	if !found || val != 3 {
		t.Errorf("expected a updated to 3, got %v found=%v", val, found)
	}
	if _, found := c.Get("b"); !found {
		t.Error("expected b to survive overwrite of a")
	}
}
