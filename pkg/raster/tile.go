package raster

import "fmt"

// Tile is a half-open rectangular pixel region
// [YStart,YStop) x [XStart,XStop) within a band's grid. Tiles are
// created once per download and never mutated; each one is consumed
// by exactly one fetch task.
type Tile struct {
	YStart, YStop int
	XStart, XStop int
	Band          *BandInfo
}

// Shape returns the tile's height and width in pixels.
func (t Tile) Shape() (h, w int) {
	return t.YStop - t.YStart, t.XStop - t.XStart
}

// EstimatedBytes is the expected payload size of the tile. The 1.3
// factor pads the raw pixel count to cover format overhead; it only
// scales progress totals, never buffer sizes.
func (t Tile) EstimatedBytes() int {
	h, w := t.Shape()
	return int(float64(h*w) * 1.3)
}

// BoundingBox returns the two opposite geographic corners of the tile
// under the band's affine transform, top-left first.
func (t Tile) BoundingBox() (topLeft, bottomRight [2]float64) {
	x1, y1 := t.Band.Transform.Apply(float64(t.XStart), float64(t.YStart))
	x2, y2 := t.Band.Transform.Apply(float64(t.XStop), float64(t.YStop))
	return [2]float64{x1, y1}, [2]float64{x2, y2}
}

func (t Tile) String() string {
	return fmt.Sprintf("Tile[%d:%d,%d:%d]", t.YStart, t.YStop, t.XStart, t.XStop)
}
