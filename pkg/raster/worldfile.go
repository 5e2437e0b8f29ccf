package raster

import (
	"fmt"
	"os"
	"strings"
)

// WriteWorldFile writes a sidecar world file for an image rendered
// from a band, derived from the band's affine transform. The world
// file convention wants the six coefficients in column order and the
// origin at the center of the top-left pixel.
func WriteWorldFile(imagePath string, t Affine) error {
	if imagePath == "" {
		return fmt.Errorf("raster: can't write a world file when writing to stdout")
	}

	worldPath := imagePath + ".pgw"
	if idx := strings.LastIndex(imagePath, "."); idx != -1 {
		worldPath = imagePath[:idx] + ".pgw"
	}

	file, err := os.Create(worldPath)
	if err != nil {
		return err
	}
	defer file.Close()

	cx, cy := t.Apply(0.5, 0.5)
	fmt.Fprintf(file, "%24.10f\n", t[0])
	fmt.Fprintf(file, "%24.10f\n", t[3])
	fmt.Fprintf(file, "%24.10f\n", t[1])
	fmt.Fprintf(file, "%24.10f\n", t[4])
	fmt.Fprintf(file, "%24.10f\n", cx)
	fmt.Fprintf(file, "%24.10f\n", cy)
	return nil
}
