package fetch

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/tiff"
)

// DecodeBlock decodes a GeoTIFF payload into a row-major int16 block
// of exactly h x w samples. When the decoded raster's dimensions
// differ from the requested shape it is resampled with nearest
// neighbour, mirroring a read at an explicit output shape.
func DecodeBlock(data []byte, h, w int) ([]int16, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("fetch: decode tiff: %w", err)
	}

	bounds := img.Bounds()
	ih, iw := bounds.Dy(), bounds.Dx()
	if ih == 0 || iw == 0 {
		return nil, fmt.Errorf("fetch: decoded raster is empty")
	}

	sample := sampleFunc(img)
	block := make([]int16, h*w)
	for y := 0; y < h; y++ {
		sy := bounds.Min.Y + y*ih/h
		for x := 0; x < w; x++ {
			sx := bounds.Min.X + x*iw/w
			block[y*w+x] = sample(sx, sy)
		}
	}
	return block, nil
}

func sampleFunc(img image.Image) func(x, y int) int16 {
	switch im := img.(type) {
	case *image.Gray16:
		return func(x, y int) int16 {
			return int16(im.Gray16At(x, y).Y)
		}
	case *image.Gray:
		return func(x, y int) int16 {
			return int16(im.GrayAt(x, y).Y)
		}
	default:
		// Fall back to the luminance channel for anything else the
		// tiff decoder produces.
		return func(x, y int) int16 {
			r, _, _, _ := img.At(x, y).RGBA()
			return int16(r >> 8)
		}
	}
}
