package geomutil

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

// Reproject transforms every vertex of a polygon from one coordinate
// reference system to another. CRS identifiers are EPSG codes, e.g.
// "EPSG:32633".
func Reproject(p orb.Polygon, fromCRS, toCRS string) (orb.Polygon, error) {
	if fromCRS == toCRS {
		return p, nil
	}
	trans, err := transformer(fromCRS, toCRS)
	if err != nil {
		return nil, err
	}

	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		out[i] = make(orb.Ring, len(ring))
		for j, pt := range ring {
			x, y, err := trans(pt[0], pt[1])
			if err != nil {
				return nil, fmt.Errorf("geomutil: reproject %s to %s: %w", fromCRS, toCRS, err)
			}
			out[i][j] = orb.Point{x, y}
		}
	}
	return out, nil
}

func transformer(fromCRS, toCRS string) (proj.Transformer, error) {
	src, err := spatialRef(fromCRS)
	if err != nil {
		return nil, err
	}
	dst, err := spatialRef(toCRS)
	if err != nil {
		return nil, err
	}
	return src.NewTransform(dst)
}

func spatialRef(crs string) (*proj.SR, error) {
	def, err := proj4For(crs)
	if err != nil {
		return nil, err
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("geomutil: parse %s: %w", crs, err)
	}
	return sr, nil
}

// proj4For maps the EPSG identifiers the imagery service hands out to
// proj4 definitions. Satellite bands come in WGS84, web mercator or a
// UTM zone.
func proj4For(crs string) (string, error) {
	switch crs {
	case "EPSG:4326":
		return "+proj=longlat +datum=WGS84 +no_defs", nil
	case "EPSG:3857":
		return "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs", nil
	}

	code, ok := strings.CutPrefix(crs, "EPSG:")
	if !ok {
		return "", fmt.Errorf("geomutil: unsupported CRS %q", crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return "", fmt.Errorf("geomutil: unsupported CRS %q", crs)
	}
	// UTM: 326xx is the northern hemisphere, 327xx the southern.
	switch {
	case n >= 32601 && n <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", n-32600), nil
	case n >= 32701 && n <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", n-32700), nil
	}
	return "", fmt.Errorf("geomutil: unsupported CRS %q", crs)
}
