package ee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/geeband/geeband/internal/fetch"
	"github.com/geeband/geeband/pkg/raster"
)

// ErrBadMetadata is returned when the service's band metadata cannot
// be interpreted.
var ErrBadMetadata = errors.New("ee: malformed band metadata")

// Client is a REST implementation of ImageService.
type Client struct {
	baseURL string
	token   string
	session *fetch.Session
}

// NewClient creates a client for the service at baseURL. The token,
// when non-empty, is sent as a query parameter with every request.
func NewClient(baseURL, token string, session *fetch.Session) *Client {
	if session == nil {
		session = fetch.NewSession(fetch.DefaultSessionOptions())
	}
	return &Client{baseURL: baseURL, token: token, session: session}
}

type assetResponse struct {
	Bands []bandResponse `json:"bands"`
}

type bandResponse struct {
	ID           string          `json:"id"`
	Dimensions   [2]int          `json:"dimensions"` // width, height
	CRS          string          `json:"crs"`
	CRSTransform [6]float64      `json:"crsTransform"`
	DataType     raster.DataType `json:"dataType"`
	NominalScale float64         `json:"nominalScale"`
}

// BandExists reports whether the asset carries the named band.
func (c *Client) BandExists(ctx context.Context, asset, band string) (bool, error) {
	bands, err := c.assetBands(ctx, asset)
	if err != nil {
		return false, err
	}
	for _, b := range bands {
		if b.ID == band {
			return true, nil
		}
	}
	return false, nil
}

// BandInfo returns the band's metadata, including its nominal scale.
func (c *Client) BandInfo(ctx context.Context, asset, band string) (*raster.BandInfo, error) {
	bands, err := c.assetBands(ctx, asset)
	if err != nil {
		return nil, err
	}
	for _, b := range bands {
		if b.ID != band {
			continue
		}
		if b.Dimensions[0] <= 0 || b.Dimensions[1] <= 0 {
			return nil, fmt.Errorf("%w: band %s has dimensions %v", ErrBadMetadata, band, b.Dimensions)
		}
		return &raster.BandInfo{
			Width:        b.Dimensions[0],
			Height:       b.Dimensions[1],
			CRS:          b.CRS,
			Transform:    raster.Affine(b.CRSTransform),
			DataType:     b.DataType,
			NominalScale: b.NominalScale,
		}, nil
	}
	return nil, fmt.Errorf("%w: band %s not in asset %s", ErrBadMetadata, band, asset)
}

// DownloadURL requests a one-shot download URL for the band clipped
// to region at the given scale.
func (c *Client) DownloadURL(ctx context.Context, asset, band string, scale float64, region orb.Polygon) (string, error) {
	reqBody, err := json.Marshal(struct {
		Asset  string            `json:"asset"`
		Band   string            `json:"band"`
		Scale  float64           `json:"scale"`
		Region *geojson.Geometry `json:"region"`
	}{
		Asset:  asset,
		Band:   band,
		Scale:  scale,
		Region: geojson.NewGeometry(region),
	})
	if err != nil {
		return "", fmt.Errorf("ee: encode download request: %w", err)
	}

	body, err := c.session.Post(ctx, c.endpoint("download"), "application/json", reqBody)
	if err != nil {
		return "", fmt.Errorf("ee: request download url: %w", err)
	}
	defer body.Close()

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("ee: decode download response: %w", err)
	}
	if resp.URL == "" {
		return "", errors.New("ee: service returned no download url")
	}
	return resp.URL, nil
}

func (c *Client) assetBands(ctx context.Context, asset string) ([]bandResponse, error) {
	body, err := c.session.Get(ctx, c.endpoint("assets/"+url.PathEscape(asset)))
	if err != nil {
		return nil, fmt.Errorf("ee: fetch asset %s: %w", asset, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("ee: read asset %s: %w", asset, err)
	}
	var resp assetResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("ee: decode asset %s: %w", asset, err)
	}
	return resp.Bands, nil
}

func (c *Client) endpoint(path string) string {
	u := c.baseURL + "/" + path
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}
	return u
}
