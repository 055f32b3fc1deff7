package terrain

import (
	"errors"
	"testing"
)

func rampHeightmap(size int) *Heightmap {
	h := &Heightmap{Samples: make([]float32, size*size), Size: size}
	for z := range size {
		for x := range size {
			h.Samples[z*size+x] = float32(x) / float32(size-1)
		}
	}
	return h
}

func TestBuildGridMesh_Layout(t *testing.T) {
	m, err := BuildGridMesh(NewFlatHeightmap(5, 0.5), GridParams{Resolution: 5, Size: 128, HeightScale: 10})
	if err != nil {
		t.Fatalf("BuildGridMesh failed: %v", err)
	}
	if len(m.Vertices) != 25 {
		t.Errorf("expected 25 vertices, got %d", len(m.Vertices))
	}
	if len(m.Indices) != 4*4*6 {
		t.Errorf("expected %d indices, got %d", 4*4*6, len(m.Indices))
	}
	if m.Spacing != 32 {
		t.Errorf("expected spacing 32, got %v", m.Spacing)
	}

	// Index z*res + x maps to (x*spacing, z*spacing)
	v := m.Vertices[m.Index(3, 1)]
	if v.Position[0] != 96 || v.Position[2] != 32 {
		t.Errorf("vertex (3,1) at %v", v.Position)
	}
	if v.Position[1] != 5 {
		t.Errorf("expected height 5, got %v", v.Position[1])
	}
}

func TestBuildGridMesh_FlatNormalsPointUp(t *testing.T) {
	m, err := BuildGridMesh(NewFlatHeightmap(4, 0.2), GridParams{Resolution: 4, Size: 30, HeightScale: 50})
	if err != nil {
		t.Fatalf("BuildGridMesh failed: %v", err)
	}
	for i, v := range m.Vertices {
		if v.Normal != [3]float32{0, 1, 0} {
			t.Fatalf("vertex %d normal = %v, want +Y", i, v.Normal)
		}
	}
}

func TestBuildGridMesh_WindingFacesUp(t *testing.T) {
	m, _ := BuildGridMesh(NewFlatHeightmap(3, 0), GridParams{Resolution: 3, Size: 2, HeightScale: 1})
	for i := 0; i < len(m.Indices); i += 3 {
		a := m.Vertices[m.Indices[i]].Position
		b := m.Vertices[m.Indices[i+1]].Position
		c := m.Vertices[m.Indices[i+2]].Position
		e1 := [3]float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
		e2 := [3]float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
		ny := e1[2]*e2[0] - e1[0]*e2[2]
		if ny <= 0 {
			t.Fatalf("triangle %d faces down", i/3)
		}
	}
}

func TestBuildGridMesh_SlopeNormals(t *testing.T) {
	// Height rises along +X so normals lean toward -X.
	m, err := BuildGridMesh(rampHeightmap(5), GridParams{Resolution: 5, Size: 4, HeightScale: 4})
	if err != nil {
		t.Fatalf("BuildGridMesh failed: %v", err)
	}
	n := m.Vertices[m.Index(2, 2)].Normal
	if n[0] >= 0 || n[1] <= 0 {
		t.Errorf("expected normal leaning to -X, got %v", n)
	}
}

func TestBuildGridMesh_JitterInteriorOnly(t *testing.T) {
	jitter := func(x, z int) float32 { return 1 }
	m, err := BuildGridMesh(NewFlatHeightmap(4, 0), GridParams{Resolution: 4, Size: 3, HeightScale: 1, Jitter: jitter})
	if err != nil {
		t.Fatalf("BuildGridMesh failed: %v", err)
	}
	for z := range 4 {
		for x := range 4 {
			y := m.Vertices[m.Index(x, z)].Position[1]
			border := x == 0 || z == 0 || x == 3 || z == 3
			if border && y != 0 {
				t.Errorf("border vertex (%d,%d) jittered to %v", x, z, y)
			}
			if !border && y != 1 {
				t.Errorf("interior vertex (%d,%d) = %v, want 1", x, z, y)
			}
		}
	}
}

func TestBuildGridMesh_InvalidResolution(t *testing.T) {
	_, err := BuildGridMesh(NewFlatHeightmap(2, 0), GridParams{Resolution: 1, Size: 1})
	if !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}
}

func TestResample_PreservesCornersAndRamp(t *testing.T) {
	h := rampHeightmap(3)
	r := h.Resample(5)
	if r.Size != 5 {
		t.Fatalf("expected size 5, got %d", r.Size)
	}
	if r.At(0, 0) != 0 || r.At(4, 4) != 1 {
		t.Errorf("corners not preserved: %v %v", r.At(0, 0), r.At(4, 4))
	}
	if got := r.At(1, 2); got != 0.25 {
		t.Errorf("At(1,2) = %v, want 0.25", got)
	}
}

func TestRecomputeBounds(t *testing.T) {
	m, _ := BuildGridMesh(rampHeightmap(3), GridParams{Resolution: 3, Size: 10, HeightScale: 2})
	if m.Bounds.Min != [3]float32{0, 0, 0} || m.Bounds.Max != [3]float32{10, 2, 10} {
		t.Errorf("bounds = %+v", m.Bounds)
	}
	m.Vertices[4].Position[1] = 7
	RecomputeBounds(m)
	if m.Bounds.Max[1] != 7 {
		t.Errorf("expected max Y 7, got %v", m.Bounds.Max[1])
	}
}

func TestMeshHeightAt(t *testing.T) {
	m, _ := BuildGridMesh(rampHeightmap(3), GridParams{Resolution: 3, Size: 10, HeightScale: 2})
	tests := []struct {
		x, z float32
		want float32
		ok   bool
	}{
		{0, 0, 0, true},
		{10, 3, 2, true},
		{2.5, 9, 0.5, true},
		{-1, 0, 0, false},
		{5, 11, 0, false},
	}
	for _, tc := range tests {
		got, ok := m.HeightAt(tc.x, tc.z)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("HeightAt(%v,%v) = %v,%v want %v,%v", tc.x, tc.z, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMeshClone(t *testing.T) {
	m, _ := BuildGridMesh(NewFlatHeightmap(2, 0), GridParams{Resolution: 2, Size: 1, HeightScale: 1})
	c := m.Clone()
	c.Vertices[0].Position[1] = 9
	if m.Vertices[0].Position[1] != 0 {
		t.Error("clone shares vertex storage")
	}
}
