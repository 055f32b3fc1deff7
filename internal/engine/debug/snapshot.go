// Package debug provides debug visualization utilities.
package debug

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/Faultbox/terrastream/internal/engine/terrain"
	"github.com/Faultbox/terrastream/internal/world/chunk"
)

// Chunk map colours.
var (
	colorEmpty   = color.RGBA{16, 16, 24, 255}
	colorLoading = color.RGBA{220, 180, 40, 255}
	colorFailed  = color.RGBA{200, 40, 40, 255}
	colorPlayer  = color.RGBA{255, 255, 255, 255}
)

// lodColor fades from green (finest) to blue (coarsest).
func lodColor(lod, levels int) color.RGBA {
	if levels < 2 {
		return color.RGBA{40, 200, 80, 255}
	}
	t := float64(lod) / float64(levels-1)
	return color.RGBA{40, uint8(200 * (1 - t)), uint8(80 + 160*t), 255}
}

// HeightImage renders a heightmap as a grayscale image, stretched over the
// sample range. Row 0 is local Z = 0. A flat map renders mid gray.
func HeightImage(hm *terrain.Heightmap) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, hm.Size, hm.Size))
	lo, hi := hm.Range()
	span := hi - lo
	for z := 0; z < hm.Size; z++ {
		for x := 0; x < hm.Size; x++ {
			v := uint8(128)
			if span > 0 {
				v = uint8((hm.At(x, z) - lo) / span * 255)
			}
			img.SetGray(x, z, color.Gray{Y: v})
		}
	}
	return img
}

// ChunkMap draws the grid with one scale×scale cell per chunk, coloured by
// record state and LOD. The player's chunk is drawn white.
func ChunkMap(grid chunk.Grid, records []*chunk.Record, player chunk.Coord, levels, scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, grid.Width*scale, grid.Height*scale))
	fill := func(c chunk.Coord, col color.RGBA) {
		for y := c.Y * scale; y < (c.Y+1)*scale; y++ {
			for x := c.X * scale; x < (c.X+1)*scale; x++ {
				img.SetRGBA(x, y, col)
			}
		}
	}

	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			fill(chunk.Coord{X: x, Y: y}, colorEmpty)
		}
	}
	for _, rec := range records {
		if !grid.Contains(rec.Coord) {
			continue
		}
		switch rec.State {
		case chunk.Loaded:
			fill(rec.Coord, lodColor(rec.LOD, levels))
		case chunk.Loading:
			fill(rec.Coord, colorLoading)
		case chunk.Failed:
			fill(rec.Coord, colorFailed)
		}
	}
	if grid.Contains(player) {
		fill(player, colorPlayer)
	}
	return img
}

// Capture writes debug images as timestamped PNG files.
type Capture struct {
	outputDir string
	prefix    string
	now       func() time.Time
}

// NewCapture creates a new capture handler.
func NewCapture(outputDir, prefix string) *Capture {
	return &Capture{
		outputDir: outputDir,
		prefix:    prefix,
		now:       time.Now,
	}
}

// Save writes img and returns the file name.
func (c *Capture) Save(img image.Image) (string, error) {
	// Create output directory if needed
	if c.outputDir != "" {
		if err := os.MkdirAll(c.outputDir, 0755); err != nil {
			return "", fmt.Errorf("creating output dir: %w", err)
		}
	}

	filename := c.GenerateFilename()
	if err := WritePNG(filename, img); err != nil {
		return "", err
	}
	return filename, nil
}

// GenerateFilename generates a file name without saving.
func (c *Capture) GenerateFilename() string {
	timestamp := c.now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s.png", c.prefix, timestamp)
	if c.outputDir != "" {
		filename = filepath.Join(c.outputDir, filename)
	}
	return filename
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return file.Close()
}
