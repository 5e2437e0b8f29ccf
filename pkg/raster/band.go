package raster

import "math"

// Affine is the 6-coefficient transform from pixel to geographic
// coordinates, in the order (a, b, c, d, e, f):
//
//	X = a*col + b*row + c
//	Y = d*col + e*row + f
type Affine [6]float64

// Apply maps a pixel coordinate to geographic coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t[0]*col + t[1]*row + t[2], t[3]*col + t[4]*row + t[5]
}

// DataType describes the integer sample range of a band.
type DataType struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// BitsPerSample returns the number of bits needed to represent the
// full sample range.
func (d DataType) BitsPerSample() float64 {
	return math.Log2(float64(d.Max-d.Min) + 1)
}

// BandInfo is the immutable metadata of one imagery band, as reported
// by the imagery service. The core never mutates it after the
// metadata fetch.
type BandInfo struct {
	// Width and Height are the band's pixel dimensions.
	Width  int
	Height int

	// CRS is the band's native coordinate reference system, e.g.
	// "EPSG:32633".
	CRS string

	// Transform maps pixel coordinates to CRS coordinates.
	Transform Affine

	// DataType is the per-pixel integer value range.
	DataType DataType

	// NominalScale is the band's native ground sampling distance in
	// meters per pixel.
	NominalScale float64
}
