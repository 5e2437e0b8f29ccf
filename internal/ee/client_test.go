package ee

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
)

const assetJSON = `{
	"bands": [
		{
			"id": "B4",
			"dimensions": [10980, 10980],
			"crs": "EPSG:32633",
			"crsTransform": [10, 0, 399960, 0, -10, 5300040],
			"dataType": {"min": 0, "max": 65535},
			"nominalScale": 10
		},
		{
			"id": "B8",
			"dimensions": [0, 10980],
			"crs": "EPSG:32633",
			"crsTransform": [10, 0, 399960, 0, -10, 5300040],
			"dataType": {"min": 0, "max": 65535},
			"nominalScale": 10
		}
	]
}`

func newMetadataServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/assets/COPERNICUS%2FS2%2Fgranule" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(assetJSON))
	}))
}

func TestBandExists(t *testing.T) {
	ts := newMetadataServer(t)
	defer ts.Close()
	c := NewClient(ts.URL, "", nil)

	exists, err := c.BandExists(context.Background(), "COPERNICUS/S2/granule", "B4")
	if err != nil {
		t.Fatalf("BandExists failed: %v", err)
	}
	if !exists {
		t.Error("Expected band B4 to exist")
	}

	exists, err = c.BandExists(context.Background(), "COPERNICUS/S2/granule", "B99")
	if err != nil {
		t.Fatalf("BandExists failed: %v", err)
	}
	if exists {
		t.Error("Expected band B99 to be absent")
	}
}

func TestBandInfo(t *testing.T) {
	ts := newMetadataServer(t)
	defer ts.Close()
	c := NewClient(ts.URL, "", nil)

	info, err := c.BandInfo(context.Background(), "COPERNICUS/S2/granule", "B4")
	if err != nil {
		t.Fatalf("BandInfo failed: %v", err)
	}
	if info.Width != 10980 || info.Height != 10980 {
		t.Errorf("Unexpected dimensions %dx%d", info.Width, info.Height)
	}
	if info.CRS != "EPSG:32633" {
		t.Errorf("Unexpected CRS %s", info.CRS)
	}
	if info.Transform[0] != 10 || info.Transform[2] != 399960 || info.Transform[5] != 5300040 {
		t.Errorf("Unexpected transform %v", info.Transform)
	}
	if info.DataType.Max != 65535 {
		t.Errorf("Unexpected data type %v", info.DataType)
	}
	if info.NominalScale != 10 {
		t.Errorf("Unexpected nominal scale %f", info.NominalScale)
	}
}

func TestBandInfoBadDimensions(t *testing.T) {
	ts := newMetadataServer(t)
	defer ts.Close()
	c := NewClient(ts.URL, "", nil)

	// B8 advertises a zero width.
	if _, err := c.BandInfo(context.Background(), "COPERNICUS/S2/granule", "B8"); !errors.Is(err, ErrBadMetadata) {
		t.Fatalf("Expected ErrBadMetadata, got %v", err)
	}
}

func TestBandInfoUnknownBand(t *testing.T) {
	ts := newMetadataServer(t)
	defer ts.Close()
	c := NewClient(ts.URL, "", nil)

	if _, err := c.BandInfo(context.Background(), "COPERNICUS/S2/granule", "B99"); !errors.Is(err, ErrBadMetadata) {
		t.Fatalf("Expected ErrBadMetadata, got %v", err)
	}
}

func TestDownloadURL(t *testing.T) {
	var gotBody map[string]any
	var gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/download" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotToken = r.URL.Query().Get("token")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url": "https://tiles.example/abc123"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "secret", nil)
	region := orb.Polygon{orb.Ring{
		{14, 48}, {15, 48}, {15, 47}, {14, 47}, {14, 48},
	}}
	url, err := c.DownloadURL(context.Background(), "COPERNICUS/S2/granule", "B4", 20, region)
	if err != nil {
		t.Fatalf("DownloadURL failed: %v", err)
	}
	if url != "https://tiles.example/abc123" {
		t.Errorf("Unexpected url %s", url)
	}
	if gotToken != "secret" {
		t.Errorf("Expected token query parameter, got %q", gotToken)
	}

	if gotBody["asset"] != "COPERNICUS/S2/granule" || gotBody["band"] != "B4" {
		t.Errorf("Unexpected request body %v", gotBody)
	}
	if gotBody["scale"] != 20.0 {
		t.Errorf("Expected scale 20, got %v", gotBody["scale"])
	}
	geom, ok := gotBody["region"].(map[string]any)
	if !ok {
		t.Fatalf("Expected a GeoJSON region, got %v", gotBody["region"])
	}
	if geom["type"] != "Polygon" {
		t.Errorf("Expected Polygon geometry, got %v", geom["type"])
	}
}

func TestDownloadURLEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, "", nil)
	region := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	if _, err := c.DownloadURL(context.Background(), "asset", "B4", 0, region); err == nil {
		t.Fatal("Expected an error for an empty download url")
	}
}
