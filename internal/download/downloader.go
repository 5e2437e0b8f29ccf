// Package download orchestrates a band download: tiling, a bounded
// worker pool of fetch tasks, progress accounting and assembly of the
// decoded blocks into one output grid.
package download

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geeband/geeband/internal/ee"
	"github.com/geeband/geeband/internal/fetch"
	"github.com/geeband/geeband/pkg/raster"
)

// DefaultWorkers bounds simultaneous tile fetches.
const DefaultWorkers = 5

// ErrBandNotFound is returned when the requested band is absent from
// the source asset. No download is attempted.
var ErrBandNotFound = errors.New("download: band not found")

// ErrIncomplete marks a download that assembled with one or more tile
// regions missing. Use errors.As with *IncompleteError for the
// failed regions.
var ErrIncomplete = errors.New("download: assembled with missing tiles")

// TileFailure pairs a failed tile with its error.
type TileFailure struct {
	Tile raster.Tile
	Err  error
}

// IncompleteError reports which tile regions are missing from an
// otherwise assembled grid. The failed regions stay at the grid's
// zero value.
type IncompleteError struct {
	Failed []TileFailure
	Total  int
}

func (e *IncompleteError) Error() string {
	regions := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		regions[i] = f.Tile.String()
	}
	return fmt.Sprintf("download: %d/%d tiles missing: %s",
		len(e.Failed), e.Total, strings.Join(regions, ", "))
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }

// State is the orchestrator's lifecycle stage.
type State int

const (
	StateIdle State = iota
	StateMetadataFetched
	StateTiled
	StateDownloading
	StateAssembled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMetadataFetched:
		return "metadata-fetched"
	case StateTiled:
		return "tiled"
	case StateDownloading:
		return "downloading"
	case StateAssembled:
		return "assembled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Downloader.
type Options struct {
	// Workers is the fetch pool size. Default 5.
	Workers int

	// Budget caps one tile's estimated payload in bytes.
	// Default 32 MiB.
	Budget int64

	// Session downloads tile payloads. When nil, a session with the
	// orchestrator's retry policy is used: 5 retries on statuses
	// 500/502/503/504.
	Session *fetch.Session

	// Logger receives orchestration messages. Logging is configured
	// here explicitly; the downloader never touches global logger
	// state. When nil, logs are discarded.
	Logger *log.Logger

	// ProgressOutput receives tile-level progress lines. Nil disables
	// them.
	ProgressOutput io.Writer
}

// Downloader fetches one band as a set of tiles and assembles the
// result. A Downloader is not safe for concurrent Download calls;
// each call restarts the lifecycle from idle.
type Downloader struct {
	svc    ee.ImageService
	opts   Options
	logger *log.Logger

	mu    sync.Mutex
	state State
	info  *raster.BandInfo
	tiles []raster.Tile
}

// New creates a downloader over the given imagery service.
func New(svc ee.ImageService, opts Options) *Downloader {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Budget <= 0 {
		opts.Budget = raster.DefaultBudget
	}
	if opts.Session == nil {
		opts.Session = fetch.NewSession(fetch.SessionOptions{
			Retries:       5,
			BackoffFactor: 0.3,
			RetryStatuses: []int{500, 502, 503, 504},
			Timeout:       120 * time.Second,
		})
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Downloader{
		svc:    svc,
		opts:   opts,
		logger: logger,
	}
}

// State returns the current lifecycle stage.
func (d *Downloader) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Tiles returns the tile list of the last download, for diagnostics.
func (d *Downloader) Tiles() []raster.Tile {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tiles
}

// BandInfo returns the metadata of the last downloaded band.
func (d *Downloader) BandInfo() *raster.BandInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

func (d *Downloader) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Download fetches the named band of the asset and assembles it into
// a grid matching the band's dimensions. scale, when positive,
// overrides the band's nominal ground sampling distance.
//
// On per-tile failure the affected regions stay zero and the grid is
// returned together with an *IncompleteError; the grid is still
// usable, but never silently partial.
func (d *Downloader) Download(ctx context.Context, asset, band string, scale float64) (*raster.Grid, error) {
	d.mu.Lock()
	d.state = StateIdle
	d.info = nil
	d.tiles = nil
	d.mu.Unlock()

	d.logger.Printf("retrieving band info for %s/%s", asset, band)
	exists, err := d.svc.BandExists(ctx, asset, band)
	if err != nil {
		d.setState(StateFailed)
		return nil, fmt.Errorf("download: check band %s: %w", band, err)
	}
	if !exists {
		d.setState(StateFailed)
		return nil, fmt.Errorf("%w: %s in %s", ErrBandNotFound, band, asset)
	}

	info, err := d.svc.BandInfo(ctx, asset, band)
	if err != nil {
		d.setState(StateFailed)
		return nil, fmt.Errorf("download: band metadata: %w", err)
	}
	if scale > 0 {
		scaled := *info
		scaled.NominalScale = scale
		info = &scaled
	}
	d.mu.Lock()
	d.info = info
	d.state = StateMetadataFetched
	d.mu.Unlock()

	grid := raster.NewGrid(info.Height, info.Width)

	tiles, err := raster.BuildTiles(info, d.opts.Budget)
	if err != nil {
		d.setState(StateFailed)
		return nil, fmt.Errorf("download: tiling: %w", err)
	}
	d.mu.Lock()
	d.tiles = tiles
	d.state = StateTiled
	d.mu.Unlock()
	d.logger.Printf("dividing band %s into %d tiles", band, len(tiles))

	var totalBytes int64
	for _, t := range tiles {
		totalBytes += int64(t.EstimatedBytes())
	}
	prog := NewProgress(len(tiles), totalBytes, d.opts.ProgressOutput)

	d.setState(StateDownloading)
	fetcher := fetch.NewFetcher(d.svc, d.opts.Session)

	// One slot per tile; a worker only ever writes its own index, so
	// the slice needs no locking. Failures are isolated per tile: a
	// worker records them and returns nil so siblings keep running.
	blocks := make([][]int16, len(tiles))
	var failMu sync.Mutex
	var failures []TileFailure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, tile := range tiles {
		i, tile := i, tile
		g.Go(func() error {
			block, err := fetcher.Fetch(gctx, asset, band, tile, prog.AddBytes)
			if err != nil {
				d.logger.Printf("%s: %v", tile, err)
				failMu.Lock()
				failures = append(failures, TileFailure{Tile: tile, Err: err})
				failMu.Unlock()
				prog.TileFailed()
				return nil
			}
			blocks[i] = block
			prog.TileDone()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.setState(StateFailed)
		return nil, fmt.Errorf("download: %w", err)
	}
	if err := ctx.Err(); err != nil {
		d.setState(StateFailed)
		return nil, err
	}

	for i, tile := range tiles {
		if blocks[i] == nil {
			continue
		}
		if err := grid.SetRegion(tile, blocks[i]); err != nil {
			d.setState(StateFailed)
			return nil, fmt.Errorf("download: assemble: %w", err)
		}
	}

	d.logger.Print(prog.Summary())
	if len(failures) > 0 {
		d.setState(StateFailed)
		return grid, &IncompleteError{Failed: failures, Total: len(tiles)}
	}
	d.setState(StateAssembled)
	return grid, nil
}

// TilingImage renders the last tile layout for inspection: each tile
// region is filled with its index, so the partition reads as bands of
// increasing gray.
func (d *Downloader) TilingImage() *image.Gray {
	d.mu.Lock()
	info, tiles := d.info, d.tiles
	d.mu.Unlock()
	if info == nil || len(tiles) == 0 {
		return nil
	}

	img := image.NewGray(image.Rect(0, 0, info.Width, info.Height))
	for i, t := range tiles {
		shade := uint8(i * 255 / len(tiles))
		for y := t.YStart; y < t.YStop; y++ {
			for x := t.XStart; x < t.XStop; x++ {
				img.SetGray(x, y, color.Gray{Y: shade})
			}
		}
	}
	return img
}
