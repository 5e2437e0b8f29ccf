package download

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Progress tracks byte-level and tile-level completion across fetch
// tasks. Counters are atomic; tasks on every worker advance them
// concurrently.
type Progress struct {
	totalTiles int
	totalBytes int64

	bytes     atomic.Int64
	tilesDone atomic.Int32
	failed    atomic.Int32

	outMu sync.Mutex
	out   io.Writer
}

// NewProgress creates a reporter for a download of totalTiles tiles
// with an estimated totalBytes payload. out may be nil to disable
// printing.
func NewProgress(totalTiles int, totalBytes int64, out io.Writer) *Progress {
	return &Progress{
		totalTiles: totalTiles,
		totalBytes: totalBytes,
		out:        out,
	}
}

// AddBytes advances the byte counter by n.
func (p *Progress) AddBytes(n int) {
	p.bytes.Add(int64(n))
}

// TileDone records one completed tile.
func (p *Progress) TileDone() {
	done := p.tilesDone.Add(1)
	p.printf("tiles: %d/%d (%.1f%% of %d estimated bytes)\n",
		done, p.totalTiles, p.percent(), p.totalBytes)
}

// TileFailed records one permanently failed tile. Failed tiles count
// as completed for scheduling, not for assembly.
func (p *Progress) TileFailed() {
	done := p.tilesDone.Add(1)
	failed := p.failed.Add(1)
	p.printf("tiles: %d/%d (%d failed)\n", done, p.totalTiles, failed)
}

// TilesDone returns the number of finished tiles, successful or not.
func (p *Progress) TilesDone() int {
	return int(p.tilesDone.Load())
}

// Bytes returns the number of payload bytes accounted so far.
func (p *Progress) Bytes() int64 {
	return p.bytes.Load()
}

// Summary describes the final state: fully assembled, or assembled
// with N/M tiles missing.
func (p *Progress) Summary() string {
	if failed := p.failed.Load(); failed > 0 {
		return fmt.Sprintf("assembled with %d/%d tiles missing", failed, p.totalTiles)
	}
	return fmt.Sprintf("fully assembled (%d tiles)", p.totalTiles)
}

func (p *Progress) percent() float64 {
	if p.totalBytes == 0 {
		return 100
	}
	return float64(p.bytes.Load()) / float64(p.totalBytes) * 100
}

func (p *Progress) printf(format string, args ...any) {
	if p.out == nil {
		return
	}
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}
