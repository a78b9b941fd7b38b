package local

import (
	"testing"
	"time"

	"github.com/mohammed-shakir/nearby-business-search/internal/core/model"
)

func TestCache_AddGetRemove(t *testing.T) {
	c := New(2, time.Minute)
	c.Add("a", []model.BusinessRecord{{Name: "A"}})
	c.Add("b", []model.BusinessRecord{{Name: "B"}})

	if got, ok := c.Get("a"); !ok || got[0].Name != "A" {
		t.Fatalf("Get(a)=%v,%v", got, ok)
	}
	// a was just used, so c evicts b
	c.Add("c", nil)
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if n := c.Remove("a", "missing"); n != 1 {
		t.Fatalf("Remove returned %d want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len=%d want 1", c.Len())
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New(4, 20*time.Millisecond)
	c.Add("a", []model.BusinessRecord{{Name: "A"}})
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestCache_NilIsDisabled(t *testing.T) {
	c := New(0, time.Minute)
	if c != nil {
		t.Fatal("size 0 should disable the cache")
	}
	c.Add("a", nil)
	if _, ok := c.Get("a"); ok {
		t.Fatal("nil cache must always miss")
	}
	if c.Remove("a") != 0 || c.Len() != 0 {
		t.Fatal("nil cache must be empty")
	}
}
