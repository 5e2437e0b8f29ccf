package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"

	"github.com/geeband/geeband/pkg/raster"
)

// encodeTIFF renders a h x w block as an uncompressed 16-bit TIFF.
func encodeTIFF(t *testing.T, block []int16, h, w int) []byte {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(block[y*w+x])})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Uncompressed}); err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	return buf.Bytes()
}

// zipSingle wraps payload as a single-entry ZIP archive.
func zipSingle(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractSingle(t *testing.T) {
	payload := []byte("tile payload")
	data := zipSingle(t, "download.B4.tif", payload)

	member, err := ExtractSingle(data)
	if err != nil {
		t.Fatalf("ExtractSingle failed: %v", err)
	}
	if !bytes.Equal(member, payload) {
		t.Errorf("Expected %q, got %q", payload, member)
	}
}

func TestExtractSingleEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := ExtractSingle(buf.Bytes()); !errors.Is(err, ErrEmptyArchive) {
		t.Errorf("Expected ErrEmptyArchive, got %v", err)
	}
}

func TestExtractSingleNotAnArchive(t *testing.T) {
	if _, err := ExtractSingle([]byte("not a zip")); err == nil {
		t.Error("Expected error for malformed archive")
	}
}

func TestDecodeBlock(t *testing.T) {
	block := []int16{1, 2, 3, 4, 5, 6}
	data := encodeTIFF(t, block, 2, 3)

	decoded, err := DecodeBlock(data, 2, 3)
	if err != nil {
		t.Fatalf("DecodeBlock failed: %v", err)
	}
	for i, v := range block {
		if decoded[i] != v {
			t.Errorf("Sample %d: expected %d, got %d", i, v, decoded[i])
		}
	}
}

func TestDecodeBlockResample(t *testing.T) {
	// A 2x2 raster read out at 4x4: nearest neighbour repeats each
	// source sample in a 2x2 quadrant.
	data := encodeTIFF(t, []int16{10, 20, 30, 40}, 2, 2)

	decoded, err := DecodeBlock(data, 4, 4)
	if err != nil {
		t.Fatalf("DecodeBlock failed: %v", err)
	}
	want := []int16{
		10, 10, 20, 20,
		10, 10, 20, 20,
		30, 30, 40, 40,
		30, 30, 40, 40,
	}
	for i, v := range want {
		if decoded[i] != v {
			t.Errorf("Sample %d: expected %d, got %d", i, v, decoded[i])
		}
	}
}

func TestDecodeBlockMalformed(t *testing.T) {
	if _, err := DecodeBlock([]byte("not a tiff"), 2, 2); err == nil {
		t.Error("Expected error for malformed raster")
	}
}

func TestSessionRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	session := NewSession(SessionOptions{Retries: 3, BackoffFactor: 0.001})
	data, err := session.ReadAll(context.Background(), ts.URL, nil)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("Expected body %q, got %q", "ok", data)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}
}

func TestSessionRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	session := NewSession(SessionOptions{Retries: 2, BackoffFactor: 0.001})
	if _, err := session.Get(context.Background(), ts.URL); !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("Expected ErrRetriesExhausted, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 requests (1 + 2 retries), got %d", got)
	}
}

func TestSessionNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	session := NewSession(SessionOptions{Retries: 3, BackoffFactor: 0.001})
	if _, err := session.Get(context.Background(), ts.URL); err == nil {
		t.Fatal("Expected error for 404")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a single request for a non-retryable status, got %d", got)
	}
}

func TestSessionChunkedProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 2500)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer ts.Close()

	session := NewSession(DefaultSessionOptions())
	var total int
	data, err := session.ReadAll(context.Background(), ts.URL, func(n int) {
		if n > chunkSize {
			t.Errorf("Chunk of %d bytes exceeds chunk size %d", n, chunkSize)
		}
		total += n
	})
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(data) != len(payload) {
		t.Errorf("Expected %d bytes, got %d", len(payload), len(data))
	}
	if total != len(payload) {
		t.Errorf("Progress chunks sum to %d, expected %d", total, len(payload))
	}
}

type fakeURLs struct {
	url     string
	regions []orb.Polygon
}

func (f *fakeURLs) DownloadURL(ctx context.Context, asset, band string, scale float64, region orb.Polygon) (string, error) {
	f.regions = append(f.regions, region)
	return f.url, nil
}

func TestFetcherPipeline(t *testing.T) {
	block := make([]int16, 50*50)
	for i := range block {
		block[i] = int16(i % 1000)
	}
	payload := zipSingle(t, "download.B4.tif", encodeTIFF(t, block, 50, 50))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer ts.Close()

	info := &raster.BandInfo{
		Width:        100,
		Height:       100,
		CRS:          "EPSG:4326",
		Transform:    raster.Affine{0.01, 0, 10, 0, -0.01, 50},
		NominalScale: 10,
	}
	tile := raster.Tile{YStart: 0, YStop: 50, XStart: 50, XStop: 100, Band: info}

	urls := &fakeURLs{url: ts.URL}
	fetcher := NewFetcher(urls, NewSession(DefaultSessionOptions()))

	var progressed int
	got, err := fetcher.Fetch(context.Background(), "asset", "B4", tile, func(n int) {
		progressed += n
	})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	for i, v := range block {
		if got[i] != v {
			t.Fatalf("Sample %d: expected %d, got %d", i, v, got[i])
		}
	}

	// The payload here is larger than the tile's estimate, so the
	// progress counter simply tracks the bytes read.
	if progressed != len(payload) {
		t.Errorf("Expected progress %d, got %d", len(payload), progressed)
	}

	if len(urls.regions) != 1 {
		t.Fatalf("Expected 1 URL request, got %d", len(urls.regions))
	}
	ring := urls.regions[0][0]
	if len(ring) != 5 || ring[0] != ring[4] {
		t.Errorf("Expected closed 4-corner region, got %v", ring)
	}
}

func TestFetcherForcesProgressToEstimate(t *testing.T) {
	// A payload smaller than the tile's estimate: on completion the
	// progress counter is forced to the estimated total, covering
	// compression discrepancies.
	payload := zipSingle(t, "member.tif", encodeTIFF(t, []int16{1, 2, 3, 4}, 2, 2))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer ts.Close()

	info := &raster.BandInfo{
		Width:     100,
		Height:    100,
		CRS:       "EPSG:4326",
		Transform: raster.Affine{1, 0, 0, 0, -1, 0},
	}
	tile := raster.Tile{YStart: 0, YStop: 50, XStart: 0, XStop: 50, Band: info}
	if len(payload) >= tile.EstimatedBytes() {
		t.Fatalf("Test payload (%d bytes) must be under the estimate (%d)", len(payload), tile.EstimatedBytes())
	}

	fetcher := NewFetcher(&fakeURLs{url: ts.URL}, NewSession(DefaultSessionOptions()))
	var progressed int
	if _, err := fetcher.Fetch(context.Background(), "asset", "B4", tile, func(n int) {
		progressed += n
	}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if progressed != tile.EstimatedBytes() {
		t.Errorf("Expected progress forced to %d, got %d", tile.EstimatedBytes(), progressed)
	}
}

func TestFetcherDecodeFailure(t *testing.T) {
	payload := zipSingle(t, "member.tif", []byte("not a tiff"))
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer ts.Close()

	info := &raster.BandInfo{
		Width:     10,
		Height:    10,
		CRS:       "EPSG:4326",
		Transform: raster.Affine{1, 0, 0, 0, -1, 0},
	}
	tile := raster.Tile{YStart: 0, YStop: 10, XStart: 0, XStop: 10, Band: info}

	fetcher := NewFetcher(&fakeURLs{url: ts.URL}, NewSession(DefaultSessionOptions()))
	if _, err := fetcher.Fetch(context.Background(), "asset", "B4", tile, nil); err == nil {
		t.Error("Expected decode failure")
	}
}
