package entitycache

import (
	"testing"
)

func TestAltKeyLookup(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[string]("widget-altkey-lookup")

	if err := c.Set("k1", "v1", "a1", "a2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v, ok, err := c.Get("a1"); err != nil || !ok || v != "v1" {
		t.Fatalf("a1: got %v, %v, %v", v, ok, err)
	}
	if v, ok, err := c.Get("a2"); err != nil || !ok || v != "v1" {
		t.Fatalf("a2: got %v, %v, %v", v, ok, err)
	}
	if _, ok, err := c.Get("a3"); err != nil || ok {
		t.Fatalf("a3: expected absent, got ok=%v err=%v", ok, err)
	}
}

func TestAltKeyConflict(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[string]("widget-altkey-conflict")

	if err := c.Set("k1", "v1", "a1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := c.Set("k2", "v2", "a1")
	if err == nil {
		t.Fatalf("expected AlternateKeyConflictError")
	}
	conflict, ok := err.(*AlternateKeyConflictError)
	if !ok {
		t.Fatalf("expected *AlternateKeyConflictError, got %T", err)
	}
	if conflict.AlternateKey != "a1" || conflict.RequestedOwner != "k2" || conflict.ExistingOwner != "k1" {
		t.Fatalf("bad conflict detail: %+v", conflict)
	}
}

func TestLRUEvictionWithEvent(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[string]("widget-lru-event", WithMaxSize(1), WithDispatchLruRemoves(true))

	var dispatched *ChangeRecord
	RegisterCacheChangedHandler(func(r *ChangeRecord) error {
		dispatched = r
		return nil
	}, "widget-lru-event")

	err := c.SetAll([]SetArg[string]{
		{Key: "k1", Value: "v1", AlternateKeys: []string{"a1"}},
		{Key: "k2", Value: "v2", AlternateKeys: []string{"a2"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dispatched == nil {
		t.Fatalf("expected a dispatch")
	}
	tc := dispatched.Types["widget-lru-event"]
	if tc == nil || len(tc.Inserts) != 2 || len(tc.LruRemoves) != 1 {
		t.Fatalf("bad record: %+v", tc)
	}
	if tc.LruRemoves[0].Key != "k1" || tc.LruRemoves[0].Value != "v1" {
		t.Fatalf("bad lruRemove payload: %+v", tc.LruRemoves[0])
	}

	orders := []int{tc.Inserts[0].Order, tc.Inserts[1].Order, tc.LruRemoves[0].Order}
	for i := 1; i < len(orders); i++ {
		if orders[i] <= orders[i-1] {
			t.Fatalf("orders not strictly increasing: %v", orders)
		}
	}
}

func TestTransactionBatching(t *testing.T) {
	resetRegistryForTest()
	type1 := GetCache[string]("type1-batching", WithMaxSize(2), WithDispatchLruRemoves(true))
	type2 := GetCache[string]("type2-batching", WithDispatchClearRemoves(true))

	var dispatched *ChangeRecord
	dispatchCount := 0
	RegisterCacheChangedHandler(func(r *ChangeRecord) error {
		dispatched = r
		dispatchCount++
		return nil
	})

	err := CacheTransaction(func() error {
		if err := type1.Set("k1", "v1"); err != nil {
			return err
		}
		if err := type1.Set("k2", "v2"); err != nil {
			return err
		}
		if err := type1.Set("k2", "v2-updated"); err != nil {
			return err
		}
		if err := type1.Set("k3", "v3"); err != nil { // evicts k1
			return err
		}
		if err := type2.Set("other", "ov"); err != nil {
			return err
		}
		if _, err := type1.Delete("k2"); err != nil {
			return err
		}
		return type2.Clear()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dispatchCount != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", dispatchCount)
	}

	t1 := dispatched.Types["type1-batching"]
	if len(t1.Inserts) != 4 || len(t1.LruRemoves) != 1 || len(t1.DeleteRemoves) != 1 {
		t.Fatalf("bad type1 record: %+v", t1)
	}

	t2 := dispatched.Types["type2-batching"]
	if len(t2.Inserts) != 1 || len(t2.ClearRemoves) != 1 {
		t.Fatalf("bad type2 record: %+v", t2)
	}

	seen := make(map[int]bool)
	all := append(append(append([]ChangeEntry{}, t1.Inserts...), t1.LruRemoves...), t1.DeleteRemoves...)
	all = append(append(all, t2.Inserts...), t2.ClearRemoves...)
	for _, e := range all {
		if seen[e.Order] {
			t.Fatalf("duplicate order %d", e.Order)
		}
		seen[e.Order] = true
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 unique orders, got %d", len(seen))
	}
}

func TestIdempotentSetTouchOnly(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[string]("widget-idempotent")

	if err := c.Set("k1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Set("k1", "v1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.GetSize() != 1 {
		t.Fatalf("expected size 1, got %d", c.GetSize())
	}
}

func TestForEachOrderAndGetTouchesNewest(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[string]("widget-foreach")

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3")
	c.Get("a")

	var keys []string
	c.ForEach(func(v string, k string) { keys = append(keys, k) })
	if len(keys) != 3 || keys[len(keys)-1] != "a" {
		t.Fatalf("bad order after Get: %v", keys)
	}
}

func TestDeleteAcceptsAlternateKey(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[string]("widget-delete-alt")

	c.Set("k1", "v1", "a1")
	removed, err := c.Delete("a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Fatalf("expected delete via alternate key to succeed")
	}
	if c.Has("k1") {
		t.Fatalf("expected k1 to be gone")
	}
}

func TestPerValueTypeSingleton(t *testing.T) {
	resetRegistryForTest()
	a := GetCache[string]("widget-singleton")
	b := GetCache[string]("widget-singleton")
	if a != b {
		t.Fatalf("expected the same instance")
	}
}

func TestSizeNeverExceedsMaxSize(t *testing.T) {
	resetRegistryForTest()
	c := GetCache[int]("widget-maxsize", WithMaxSize(3))
	for i := 0; i < 100; i++ {
		c.Set(string(rune('a'+i%26)), i)
		if c.GetSize() > c.GetMaxSize() {
			t.Fatalf("size %d exceeded max %d", c.GetSize(), c.GetMaxSize())
		}
	}
}
