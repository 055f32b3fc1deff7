package debug

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/internal/world/chunk"
)

func TestHeightImage(t *testing.T) {
	hm := &terrain.Heightmap{Size: 2, Samples: []float32{0.2, 0.4, 0.6, 1.0}}
	img := HeightImage(hm)

	tests := []struct {
		x, z int
		want uint8
	}{
		{0, 0, 0},
		{1, 1, 255},
		{1, 0, 63}, // (0.4-0.2)/0.8 = 0.25
	}
	for _, tt := range tests {
		if got := img.GrayAt(tt.x, tt.z).Y; got != tt.want {
			t.Errorf("pixel (%d,%d) = %d, want %d", tt.x, tt.z, got, tt.want)
		}
	}

	flat := HeightImage(terrain.NewFlatHeightmap(3, 0.7))
	if got := flat.GrayAt(1, 1).Y; got != 128 {
		t.Errorf("flat map pixel = %d, want 128", got)
	}
}

func TestChunkMap(t *testing.T) {
	grid := chunk.Grid{Width: 4, Height: 3, ChunkSize: 10}
	loaded := chunk.NewRecord(chunk.Coord{X: 0, Y: 0})
	loaded.State = chunk.Loaded
	loading := chunk.NewRecord(chunk.Coord{X: 1, Y: 0})
	loading.State = chunk.Loading
	failed := chunk.NewRecord(chunk.Coord{X: 2, Y: 0})
	failed.State = chunk.Failed
	outside := chunk.NewRecord(chunk.Coord{X: 9, Y: 9})
	outside.State = chunk.Loaded

	img := ChunkMap(grid, []*chunk.Record{loaded, loading, failed, outside}, chunk.Coord{X: 3, Y: 2}, 2, 2)
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Fatalf("bounds = %v, want 8x6", b)
	}

	tests := []struct {
		name string
		x, y int
		want color.RGBA
	}{
		{"loaded finest", 1, 1, lodColor(0, 2)},
		{"loading", 2, 0, colorLoading},
		{"failed", 5, 1, colorFailed},
		{"player", 7, 5, colorPlayer},
		{"empty", 0, 4, colorEmpty},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y); got != tt.want {
			t.Errorf("%s: pixel (%d,%d) = %v, want %v", tt.name, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestCaptureSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	c := NewCapture(dir, "chunks")
	c.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }

	name, err := c.Save(HeightImage(terrain.NewFlatHeightmap(4, 0)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(dir, "chunks_2024-05-06_07-08-09.png"); name != want {
		t.Errorf("file name = %s, want %s", name, want)
	}

	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding saved PNG: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("width = %d, want 4", img.Bounds().Dx())
	}
}

func TestWritePNGBadPath(t *testing.T) {
	err := WritePNG(filepath.Join(t.TempDir(), "missing", "x.png"), HeightImage(terrain.NewFlatHeightmap(2, 0)))
	if err == nil || !strings.Contains(err.Error(), "creating file") {
		t.Errorf("err = %v, want a create error", err)
	}
}
