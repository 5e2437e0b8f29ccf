package raster

import (
	"errors"
	"math"
)

// DefaultBudget caps the estimated payload of a single tile request.
const DefaultBudget = 32 << 20 // 32 MiB

// DefaultExcessFactor biases the band size estimate upward so tiles
// stay conservatively under the request quota.
const DefaultExcessFactor = 2

// ErrNotInitialized is returned when band metadata has not been
// fetched yet.
var ErrNotInitialized = errors.New("raster: band info not initialized")

// EstimateBandSize returns the estimated uncompressed size of the
// full band in bytes. Samples are costed at a fixed 2 bytes
// regardless of the band's derived bit depth: the assembled grid is
// int16, and the fixed width keeps tile sizing stable across bands
// (DataType.BitsPerSample stays available for callers that want the
// exact depth).
func EstimateBandSize(info *BandInfo, excessFactor int) (int64, error) {
	if info == nil {
		return 0, ErrNotInitialized
	}
	if excessFactor <= 0 {
		excessFactor = DefaultExcessFactor
	}
	return int64(info.Width) * int64(info.Height) * 2 * int64(excessFactor), nil
}

// BuildTiles partitions the band's pixel grid into rectangular tiles
// whose estimated payload stays under budget. The sweep is row-major
// and the last tile of each row and column is clipped to the grid
// boundary, so the tiles cover [0,Height) x [0,Width) exactly and
// without overlap for any combination of dimensions and budget.
func BuildTiles(info *BandInfo, budget int64) ([]Tile, error) {
	if info == nil {
		return nil, ErrNotInitialized
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	size, err := EstimateBandSize(info, DefaultExcessFactor)
	if err != nil {
		return nil, err
	}

	// Tiles shrink along both axes, so the linear step is the square
	// root of the byte ratio.
	rescale := math.Sqrt(float64(budget) / float64(size))
	if rescale > 1 {
		return []Tile{{YStop: info.Height, XStop: info.Width, Band: info}}, nil
	}

	stepY := int(rescale * float64(info.Height))
	stepX := int(rescale * float64(info.Width))
	// A budget smaller than a single row or column still has to make
	// progress.
	if stepY < 1 {
		stepY = 1
	}
	if stepX < 1 {
		stepX = 1
	}

	var tiles []Tile
	for y := 0; y < info.Height; y += stepY {
		yStop := y + stepY
		if yStop > info.Height {
			yStop = info.Height
		}
		for x := 0; x < info.Width; x += stepX {
			xStop := x + stepX
			if xStop > info.Width {
				xStop = info.Width
			}
			tiles = append(tiles, Tile{
				YStart: y, YStop: yStop,
				XStart: x, XStop: xStop,
				Band: info,
			})
		}
	}
	return tiles, nil
}
