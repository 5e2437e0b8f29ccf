// Package geomutil builds and validates the geographic polygons that
// describe tile regions, reprojecting them between coordinate
// reference systems when needed.
package geomutil

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/geeband/geeband/pkg/raster"
)

// ErrDegenerateGeometry is returned when constructed points do not
// form a valid polygon. Callers treat it as non-fatal by default.
var ErrDegenerateGeometry = errors.New("geomutil: points do not form a valid polygon")

// Geometry builds an orb geometry from the given points: a single
// point yields an orb.Point, several points a closed polygon. An open
// ring is closed automatically. The resulting polygon is validated
// and ErrDegenerateGeometry returned if it is not topologically valid.
func Geometry(pts []orb.Point) (orb.Geometry, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrDegenerateGeometry)
	}
	if len(pts) == 1 {
		return pts[0], nil
	}

	ring := make(orb.Ring, len(pts))
	copy(ring, pts)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if err := validateRing(ring); err != nil {
		return nil, err
	}
	return orb.Polygon{ring}, nil
}

// TilePolygon returns the closed 4-corner polygon of a tile in the
// band's native reference system, or reprojected to toCRS when it
// differs. Corner order is top-left, top-right, bottom-right,
// bottom-left, closing back to top-left.
func TilePolygon(t raster.Tile, toCRS string) (orb.Polygon, error) {
	topLeft, bottomRight := t.BoundingBox()

	geom, err := Geometry([]orb.Point{
		{topLeft[0], topLeft[1]},
		{bottomRight[0], topLeft[1]},
		{bottomRight[0], bottomRight[1]},
		{topLeft[0], bottomRight[1]},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	poly := geom.(orb.Polygon)

	if toCRS == "" || toCRS == t.Band.CRS {
		return poly, nil
	}
	return Reproject(poly, t.Band.CRS, toCRS)
}

// validateRing checks that a ring is closed, has enough vertices,
// encloses a non-zero area and does not self-intersect.
func validateRing(r orb.Ring) error {
	if len(r) < 4 || !r.Closed() {
		return fmt.Errorf("%w: ring not closed", ErrDegenerateGeometry)
	}
	if planar.Area(r) == 0 {
		return fmt.Errorf("%w: zero area", ErrDegenerateGeometry)
	}
	// Pairwise segment check; rings here are small (tiles have four
	// corners), so the quadratic sweep is fine.
	n := len(r) - 1
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // first and last segments share the closing vertex
			}
			if segmentsCross(r[i], r[i+1], r[j], r[j+1]) {
				return fmt.Errorf("%w: self-intersecting", ErrDegenerateGeometry)
			}
		}
	}
	return nil
}

func segmentsCross(a, b, c, d orb.Point) bool {
	o1 := orientation(a, b, c)
	o2 := orientation(a, b, d)
	o3 := orientation(c, d, a)
	o4 := orientation(c, d, b)
	return o1*o2 < 0 && o3*o4 < 0
}

func orientation(p, q, r orb.Point) int {
	v := (q[0]-p[0])*(r[1]-p[1]) - (q[1]-p[1])*(r[0]-p[0])
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
