package chunk

import (
	"errors"
	"testing"
)

func TestKeyRoundTrip(t *testing.T) {
	tests := []Coord{{0, 0}, {72, 36}, {143, 71}, {-1, 5}}
	for _, c := range tests {
		got, err := ParseKey(c.Key())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", c.Key(), err)
		}
		if got != c {
			t.Errorf("ParseKey(%q) = %v, want %v", c.Key(), got, c)
		}
	}
	if (Coord{72, 36}).Key() != "72_36" {
		t.Errorf("unexpected key format %q", Coord{72, 36}.Key())
	}
}

func TestParseKeyInvalid(t *testing.T) {
	for _, k := range []Key{"", "72", "a_1", "1_b", "1-2"} {
		if _, err := ParseKey(k); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ParseKey(%q) = %v, want ErrInvalidKey", k, err)
		}
	}
}

func TestGrid(t *testing.T) {
	g := Grid{Width: 144, Height: 72, ChunkSize: 128}

	tests := []struct {
		x, z float64
		want Coord
		in   bool
	}{
		{9216, 4608, Coord{72, 36}, true},
		{0, 0, Coord{0, 0}, true},
		{-0.5, 10, Coord{-1, 0}, false},
		{18431.9, 9215.9, Coord{143, 71}, true},
		{18432, 0, Coord{144, 0}, false},
	}
	for _, tc := range tests {
		c := g.CoordAt(tc.x, tc.z)
		if c != tc.want {
			t.Errorf("CoordAt(%v,%v) = %v, want %v", tc.x, tc.z, c, tc.want)
		}
		if g.Contains(c) != tc.in {
			t.Errorf("Contains(%v) = %v", c, !tc.in)
		}
	}

	x, z := g.Origin(Coord{2, 3})
	if x != 256 || z != 384 {
		t.Errorf("Origin = %v,%v", x, z)
	}
}

func TestChebyshev(t *testing.T) {
	a := Coord{72, 36}
	if d := a.Chebyshev(Coord{74, 35}); d != 2 {
		t.Errorf("Chebyshev = %d, want 2", d)
	}
	if d := a.Chebyshev(a.Add(-3, 3)); d != 3 {
		t.Errorf("Chebyshev = %d, want 3", d)
	}
}

func TestRecordEdits(t *testing.T) {
	r := NewRecord(Coord{1, 2})
	if r.Key != "1_2" || r.State != Unloaded {
		t.Fatalf("unexpected record %+v", r)
	}
	r.AddEdit(4, 0.5)
	r.AddEdit(4, 0.25)
	if !r.HasPendingEdits() {
		t.Fatal("expected pending edits")
	}
	edits := r.TakeEdits()
	if edits[4] != 0.75 {
		t.Errorf("accumulated delta = %v", edits[4])
	}
	if r.HasPendingEdits() {
		t.Error("edits not cleared")
	}
}
