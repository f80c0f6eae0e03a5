package tracker

import "testing"

func TestRegistryRoundTrip(t *testing.T) {
	r := &Registry{trackers: make(map[string]Factory)}

	r.Register("fake", func() StateTracker { return nil })
	if !r.IsRegistered("fake") {
		t.Errorf("fake not registered")
	}
	if r.Get("fake") == nil {
		t.Errorf("Get returned nil factory")
	}
	if _, err := r.New("fake"); err != nil {
		t.Errorf("New: %v", err)
	}
}

func TestRegistryUnknownName(t *testing.T) {
	r := &Registry{trackers: make(map[string]Factory)}
	if _, err := r.New("nope"); err == nil {
		t.Errorf("expected error for unknown tracker")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := &Registry{trackers: make(map[string]Factory)}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		r.Register(name, func() StateTracker { return nil })
	}

	names := r.List()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names = %v, want %v", names, want)
			break
		}
	}
}

func TestRegistryClear(t *testing.T) {
	r := &Registry{trackers: make(map[string]Factory)}
	r.Register("fake", func() StateTracker { return nil })
	r.Clear()
	if r.IsRegistered("fake") {
		t.Errorf("Clear left a registration behind")
	}
}
