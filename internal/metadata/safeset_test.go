package metadata

import "testing"

func TestSafeSet_SnapshotIsIndependentCopy(t *testing.T) {
	base := NewSafeSet()
	base.Add("%1")

	snap := base.Snapshot()
	if !snap.Has("%1") {
		t.Fatalf("snapshot missing entry present at snapshot time")
	}

	// Mutating the live set after taking a snapshot must not leak into
	// the already-taken snapshot, and vice versa (the module driver's
	// per-function pattern: the function adds its allocas to a snapshot,
	// leaving the module-level set as it was).
	base.Add("%2")
	snap.Add("%3")

	if snap.Has("%2") {
		t.Fatalf("snapshot observed a mutation made to the base set after Snapshot")
	}
	if base.Has("%3") {
		t.Fatalf("base set observed a mutation made to its snapshot")
	}
}

func TestSafeSet_HasReportsMembership(t *testing.T) {
	tests := []struct {
		name    string
		added   []string
		query   string
		want    bool
	}{
		{name: "present", added: []string{"%a", "%b"}, query: "%a", want: true},
		{name: "absent", added: []string{"%a"}, query: "%z", want: false},
		{name: "empty set", added: nil, query: "%a", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSafeSet()
			for _, name := range tt.added {
				s.Add(name)
			}
			if got := s.Has(tt.query); got != tt.want {
				t.Fatalf("Has(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
