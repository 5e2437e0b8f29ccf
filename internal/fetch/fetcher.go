package fetch

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/geeband/geeband/pkg/geomutil"
	"github.com/geeband/geeband/pkg/raster"
)

// regionCRS is the reference system tile regions are requested in.
const regionCRS = "EPSG:4326"

// URLProvider issues a single-use download URL for a band clipped to
// a polygon region at a given scale.
type URLProvider interface {
	DownloadURL(ctx context.Context, asset, band string, scale float64, region orb.Polygon) (string, error)
}

// Fetcher downloads and decodes one tile at a time: polygon
// bookkeeping, URL issuance, streaming download with byte-level
// progress, archive extraction and raster decode.
type Fetcher struct {
	urls    URLProvider
	session *Session
}

// NewFetcher creates a fetcher that requests URLs from urls and
// downloads payloads over session.
func NewFetcher(urls URLProvider, session *Session) *Fetcher {
	return &Fetcher{urls: urls, session: session}
}

// Fetch downloads one tile and returns its decoded pixel block, shaped
// exactly to the tile. onProgress, when non-nil, is advanced by each
// chunk's length and forced to the tile's estimated total on
// completion, covering rounding and compression discrepancies.
func (f *Fetcher) Fetch(ctx context.Context, asset, band string, t raster.Tile, onProgress func(n int)) ([]int16, error) {
	region, err := geomutil.TilePolygon(t, regionCRS)
	if err != nil {
		return nil, fmt.Errorf("%s: region: %w", t, err)
	}

	url, err := f.urls.DownloadURL(ctx, asset, band, t.Band.NominalScale, region)
	if err != nil {
		return nil, fmt.Errorf("%s: download url: %w", t, err)
	}

	read := 0
	payload, err := f.session.ReadAll(ctx, url, func(n int) {
		read += n
		if onProgress != nil {
			onProgress(n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	if onProgress != nil && read < t.EstimatedBytes() {
		onProgress(t.EstimatedBytes() - read)
	}

	member, err := ExtractSingle(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}

	h, w := t.Shape()
	block, err := DecodeBlock(member, h, w)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	return block, nil
}
