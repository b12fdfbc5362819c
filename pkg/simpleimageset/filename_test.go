package simpleimageset_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

func TestNormalizeUploadFilename(t *testing.T) {
	t.Run("compliant name is kept", func(t *testing.T) {
		v1, err := uuid.NewUUID()
		require.NoError(t, err)
		name := "is_" + v1.String() + ".png"

		got, kept := simpleimageset.NormalizeUploadFilename(name)
		assert.True(t, kept)
		assert.Equal(t, name, got)
	})

	t.Run("random uuid is not accepted", func(t *testing.T) {
		// Version 4 identifiers carry no timestamp, so the convention rejects
		// them even under the right prefix.
		name := "is_" + uuid.New().String() + ".png"

		got, kept := simpleimageset.NormalizeUploadFilename(name)
		assert.False(t, kept)
		assert.NotEqual(t, name, got)
	})

	t.Run("arbitrary name is substituted with the extension preserved", func(t *testing.T) {
		got, kept := simpleimageset.NormalizeUploadFilename("summer vacation (1).JPEG.pdf")
		assert.False(t, kept)
		assert.True(t, strings.HasPrefix(got, simpleimageset.UploadFilenamePrefix))
		assert.True(t, strings.HasSuffix(got, ".pdf"))

		id := strings.TrimSuffix(strings.TrimPrefix(got, simpleimageset.UploadFilenamePrefix), ".pdf")
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})

	t.Run("substitutions are unique", func(t *testing.T) {
		a, _ := simpleimageset.NormalizeUploadFilename("x.jpg")
		b, _ := simpleimageset.NormalizeUploadFilename("x.jpg")
		assert.NotEqual(t, a, b)
	})
}
