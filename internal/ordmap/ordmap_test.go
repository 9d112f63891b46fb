package ordmap

import "testing"

func TestSetGetBasic(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("a: got %v, %v", v, ok)
	}
	if m.GetSize() != 2 {
		t.Fatalf("bad size: %v", m.GetSize())
	}
}

func TestSetExistingTouchesNewestNoEvict(t *testing.T) {
	m := New[string, int](2)
	m.Set("a", 1)
	m.Set("b", 2)

	// re-set "a": should not evict, should become newest
	if _, evicted := m.Set("a", 10); evicted {
		t.Fatalf("update should not evict")
	}

	keys := orderedKeys(m)
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("bad order after touch: %v", keys)
	}
}

func TestEvictOldestOnOverflow(t *testing.T) {
	m := New[string, int](2)
	m.Set("a", 1)
	m.Set("b", 2)
	ev, ok := m.Set("c", 3)
	if !ok || ev.Key != "a" || ev.Value != 1 {
		t.Fatalf("expected eviction of a/1, got %v %v", ev, ok)
	}
	if m.GetSize() != 2 {
		t.Fatalf("bad size: %v", m.GetSize())
	}
	if _, ok := m.Get("a"); ok {
		t.Fatalf("a should have been evicted")
	}
}

func TestUnboundedWhenZero(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 1000; i++ {
		if _, ok := m.Set(i, i); ok {
			t.Fatalf("unbounded map should never evict")
		}
	}
	if m.GetSize() != 1000 {
		t.Fatalf("bad size: %v", m.GetSize())
	}
}

func TestGetTouchesNewest(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	m.Get("a") // touch a to newest

	keys := orderedKeys(m)
	if keys[len(keys)-1] != "a" {
		t.Fatalf("a should be newest after Get, order: %v", keys)
	}
}

func TestGetWithoutLruChangeDoesNotTouch(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)

	m.GetWithoutLruChange("a")

	keys := orderedKeys(m)
	if keys[len(keys)-1] != "b" {
		t.Fatalf("peek must not alter order: %v", keys)
	}
}

func TestDelete(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)

	if !m.Delete("a") {
		t.Fatalf("expected a to be present")
	}
	if m.Delete("a") {
		t.Fatalf("expected a to already be gone")
	}
	if m.GetSize() != 1 {
		t.Fatalf("bad size: %v", m.GetSize())
	}
}

func TestDeleteHeadAndTail(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	m.Delete("a") // head
	m.Delete("c") // tail

	keys := orderedKeys(m)
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("bad order after deleting head/tail: %v", keys)
	}
}

func TestSoleEntryTouchIsNoop(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Get("a")
	keys := orderedKeys(m)
	if len(keys) != 1 || keys[0] != "a" {
		t.Fatalf("bad order: %v", keys)
	}
}

func TestSetMaxSizeShrinkEvictsInOrder(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	evicted := m.SetMaxSize(1)
	if len(evicted) != 2 {
		t.Fatalf("expected 2 evictions, got %v", evicted)
	}
	if evicted[0].Key != "a" || evicted[1].Key != "b" {
		t.Fatalf("evictions out of order: %v", evicted)
	}
	if m.GetSize() != 1 {
		t.Fatalf("bad size: %v", m.GetSize())
	}
}

func TestSetMaxSizeZeroMeansUnbounded(t *testing.T) {
	m := New[string, int](1)
	m.Set("a", 1)
	m.Set("b", 2) // evicts a
	m.SetMaxSize(0)
	for i := 0; i < 100; i++ {
		m.Set(stringKey(i), i)
	}
	if m.GetMaxSize() != 0 {
		t.Fatalf("expected unbounded")
	}
}

func TestClearReturnsOldestToNewest(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	entries := m.Clear()
	if len(entries) != 3 || entries[0].Key != "a" || entries[2].Key != "c" {
		t.Fatalf("bad clear order: %v", entries)
	}
	if m.GetSize() != 0 {
		t.Fatalf("expected empty after clear")
	}
}

func TestForEachOrder(t *testing.T) {
	m := New[string, int](0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	var got []string
	m.ForEach(func(v int, k string) { got = append(got, k) })
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("bad ForEach order: %v", got)
	}
}

func orderedKeys(m *Map[string, int]) []string {
	var keys []string
	m.ForEach(func(v int, k string) { keys = append(keys, k) })
	return keys
}

func stringKey(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "0"
	}
	var buf []byte
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return string(buf)
}
