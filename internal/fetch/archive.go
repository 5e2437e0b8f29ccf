package fetch

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyArchive is returned for archives with no entries.
var ErrEmptyArchive = errors.New("fetch: archive has no entries")

// ExtractSingle returns the raw bytes of the first member of a ZIP
// archive. Tile payloads carry exactly one entry.
func ExtractSingle(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("fetch: open archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, ErrEmptyArchive
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("fetch: open archive member %q: %w", zr.File[0].Name, err)
	}
	defer rc.Close()

	member, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetch: read archive member %q: %w", zr.File[0].Name, err)
	}
	return member, nil
}
