package archive

import "testing"

func TestOrderedMapPreservesInsertionOrder(t *testing.T) {
	m := NewOrderedMap()
	m.Set("z", 1)
	m.Set("a", 2)
	m.Set("m", 3)

	want := []string{"z", "a", "m"}
	got := m.Keys()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOrderedMapSetReplacesInPlace(t *testing.T) {
	m := NewOrderedMap()
	m.Set("k", 1)
	m.Set("k", 2)

	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	v, ok := m.Get("k")
	if !ok || v != 2 {
		t.Errorf("Get(k) = (%v, %v), want (2, true)", v, ok)
	}
}

func TestOrderedMapGetMissing(t *testing.T) {
	m := NewOrderedMap()
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected Get on a missing key to report false")
	}
}
