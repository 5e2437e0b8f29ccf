package raster

import (
	"fmt"
	"image"
)

// Grid is a zero-initialized row-major int16 raster matching a band's
// pixel dimensions. Concurrent fetch tasks may write to it without
// locking as long as each task owns a disjoint tile region; SetRegion
// checks the block against the tile bounds so a mis-shaped block can
// never spill into a neighbour's region.
type Grid struct {
	Width  int
	Height int
	Pix    []int16
}

// NewGrid allocates a zero-valued grid of the given dimensions.
func NewGrid(height, width int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Pix:    make([]int16, width*height),
	}
}

// At returns the sample at row y, column x.
func (g *Grid) At(y, x int) int16 {
	return g.Pix[y*g.Width+x]
}

// SetRegion copies a tile-shaped row-major block into the tile's
// region of the grid.
func (g *Grid) SetRegion(t Tile, block []int16) error {
	h, w := t.Shape()
	if len(block) != h*w {
		return fmt.Errorf("raster: block has %d samples, %s needs %d", len(block), t, h*w)
	}
	if t.YStart < 0 || t.XStart < 0 || t.YStop > g.Height || t.XStop > g.Width {
		return fmt.Errorf("raster: %s outside %dx%d grid", t, g.Height, g.Width)
	}
	for y := 0; y < h; y++ {
		row := (t.YStart + y) * g.Width
		copy(g.Pix[row+t.XStart:row+t.XStop], block[y*w:(y+1)*w])
	}
	return nil
}

// Image renders the grid as a 16-bit grayscale image, stretching the
// sample range to the full gray scale.
func (g *Grid) Image() *image.Gray16 {
	min, max := g.Pix[0], g.Pix[0]
	for _, v := range g.Pix {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := int(max) - int(min)
	if span == 0 {
		span = 1
	}

	img := image.NewGray16(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := (int(g.At(y, x)) - int(min)) * 0xFFFF / span
			idx := img.PixOffset(x, y)
			img.Pix[idx] = uint8(v >> 8)
			img.Pix[idx+1] = uint8(v)
		}
	}
	return img
}
