package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "chunks.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "1_2")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			in := NewChunkState()
			in.AddOverrides(65, map[int]float32{10: -0.5})
			in.ResourceNodes = []ResourceNode{{ID: "a", Type: "mineral", Quantity: 3, Local: [3]float32{1, 2, 3}}}
			if err := s.Put(ctx, "72_36", in); err != nil {
				t.Fatalf("Put: %v", err)
			}
			// Mutating the caller's copy must not leak into the store.
			in.ResourceNodes[0].Quantity = 99

			out, err := s.Get(ctx, "72_36")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(out.VertexOverrides) != 1 || out.VertexOverrides[0].Delta != -0.5 {
				t.Errorf("overrides = %+v", out.VertexOverrides)
			}
			if out.ResourceNodes[0].Quantity != 3 {
				t.Errorf("quantity = %d, want 3", out.ResourceNodes[0].Quantity)
			}
			if out.DefaultVertexProperties.Material != "soil" {
				t.Errorf("material = %q", out.DefaultVertexProperties.Material)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for range 3 {
				err := Update(ctx, s, "0_0", func(st *ChunkState) error {
					st.AddOverrides(5, map[int]float32{6: 1})
					return nil
				})
				if err != nil {
					t.Fatalf("Update: %v", err)
				}
			}
			st, err := s.Get(ctx, "0_0")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if len(st.VertexOverrides) != 1 || st.VertexOverrides[0].Delta != 3 {
				t.Errorf("overrides = %+v", st.VertexOverrides)
			}

			boom := errors.New("boom")
			err = Update(ctx, s, "0_0", func(st *ChunkState) error {
				st.VertexOverrides = nil
				return boom
			})
			if !errors.Is(err, boom) {
				t.Errorf("expected callback error, got %v", err)
			}
			st, _ = s.Get(ctx, "0_0")
			if len(st.VertexOverrides) != 1 {
				t.Error("failed update must not be written")
			}
		})
	}
}

func TestClosedStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s.Close()
			if _, err := s.Get(context.Background(), "0_0"); !errors.Is(err, ErrClosed) {
				t.Errorf("expected ErrClosed, got %v", err)
			}
		})
	}
}

func TestOverridesForRemapsResolution(t *testing.T) {
	st := NewChunkState()
	// Centre vertex of a 5x5 grid (x=2, z=2) and corner (4,4).
	st.AddOverrides(5, map[int]float32{12: 1, 24: 2})
	st.AddOverrides(3, map[int]float32{4: 0.5})

	same := st.OverridesFor(3)
	if same[4] != 1.5 { // 12@5 -> (1,1)@3 plus 4@3
		t.Errorf("centre = %v, want 1.5", same[4])
	}
	if same[8] != 2 {
		t.Errorf("corner = %v, want 2", same[8])
	}

	finer := st.OverridesFor(9)
	if finer[4*9+4] != 1.5 || finer[80] != 2 {
		t.Errorf("finer remap = %v", finer)
	}
}

func TestSQLiteKeys(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "k.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	for _, k := range []string{"2_0", "1_5", "10_1"} {
		if err := s.Put(ctx, k, NewChunkState()); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != "10_1" || keys[2] != "2_0" {
		t.Errorf("keys = %v", keys)
	}
}

func TestSQLiteReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	st := NewChunkState()
	st.ResourceNodes = []ResourceNode{{ID: "x", Mined: true}}
	if err := s.Put(ctx, "3_4", st); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "3_4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n, ok := got.FindResource("x"); !ok || !n.Mined {
		t.Errorf("mined node not persisted: %+v", got.ResourceNodes)
	}
}
