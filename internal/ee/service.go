// Package ee talks to the remote imagery service: band discovery,
// band metadata and single-use download URLs. The rest of the module
// depends on the ImageService interface so tests can substitute
// fakes.
package ee

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/geeband/geeband/pkg/raster"
)

// ImageService is the imagery-service collaborator.
type ImageService interface {
	// BandExists reports whether the asset carries the named band.
	BandExists(ctx context.Context, asset, band string) (bool, error)

	// BandInfo returns the band's metadata, including its nominal
	// ground sampling distance.
	BandInfo(ctx context.Context, asset, band string) (*raster.BandInfo, error)

	// DownloadURL issues a one-shot pre-signed URL for the band
	// clipped to region at the given scale.
	DownloadURL(ctx context.Context, asset, band string, scale float64, region orb.Polygon) (string, error)
}
