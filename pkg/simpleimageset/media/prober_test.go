package media

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestBasicProber(t *testing.T) {
	ctx := context.Background()
	prober := NewBasicProber()

	t.Run("png with dimensions", func(t *testing.T) {
		data := pngBytes(t, 64, 48)
		info, err := prober.Probe(ctx, bytes.NewReader(data), "is_a.png")
		require.NoError(t, err)
		assert.Equal(t, "image/png", info.MimeType)
		assert.Equal(t, 64, info.Width)
		assert.Equal(t, 48, info.Height)
		assert.Equal(t, int64(len(data)), info.SizeBytes)
	})

	t.Run("pdf magic", func(t *testing.T) {
		info, err := prober.Probe(ctx, strings.NewReader("%PDF-1.7 stub content"), "report.pdf")
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", info.MimeType)
		assert.Zero(t, info.Width)
	})

	t.Run("content contradicting the extension fails", func(t *testing.T) {
		_, err := prober.Probe(ctx, strings.NewReader("just plain text"), "fake.jpg")
		assert.Error(t, err)
	})

	t.Run("png payload under a jpg name fails", func(t *testing.T) {
		_, err := prober.Probe(ctx, bytes.NewReader(pngBytes(t, 8, 8)), "mislabelled.jpg")
		assert.Error(t, err)
	})

	t.Run("empty payload fails", func(t *testing.T) {
		_, err := prober.Probe(ctx, strings.NewReader(""), "empty.png")
		assert.Error(t, err)
	})

	t.Run("unknown extension relies on sniffing", func(t *testing.T) {
		info, err := prober.Probe(ctx, bytes.NewReader(pngBytes(t, 4, 4)), "no-ext")
		require.NoError(t, err)
		assert.Equal(t, "image/png", info.MimeType)
	})
}
