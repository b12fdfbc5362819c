// Package media inspects upload payloads and extracts the information the
// pipeline records alongside each stored file.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

// BasicProber detects the payload's mime type from content, and for raster
// images also records pixel dimensions. Content that does not match the
// filename's claimed family is rejected before anything touches a bucket.
type BasicProber struct{}

// NewBasicProber creates a content-sniffing media prober
func NewBasicProber() *BasicProber {
	return &BasicProber{}
}

var extensionFamilies = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// Probe reads the payload and returns its media information. The reader is
// consumed fully to determine size.
func (p *BasicProber) Probe(ctx context.Context, reader io.Reader, filename string) (*simpleimageset.MediaInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload for %q", filename)
	}

	sniffed := http.DetectContentType(data)

	ext := strings.ToLower(filepath.Ext(filename))
	if want, known := extensionFamilies[ext]; known && sniffed != want {
		return nil, fmt.Errorf("payload of %q detected as %s, expected %s", filename, sniffed, want)
	}

	info := &simpleimageset.MediaInfo{
		MimeType:  sniffed,
		SizeBytes: int64(len(data)),
	}

	if strings.HasPrefix(sniffed, "image/") {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding image header of %q: %w", filename, err)
		}
		info.Width = cfg.Width
		info.Height = cfg.Height
	}

	return info, nil
}
