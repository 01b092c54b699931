package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "sample.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestThumbnailKeepsAspectRatio(t *testing.T) {
	path := writePNG(t, 400, 200)

	raw, err := Thumbnail(context.Background(), path, ThumbOptions{Width: 100, Quality: 70})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestThumbnailBase64Defaults(t *testing.T) {
	path := writePNG(t, 300, 300)

	b64, err := ThumbnailBase64(context.Background(), path, ThumbOptions{})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestThumbnailErrors(t *testing.T) {
	_, err := Thumbnail(context.Background(), filepath.Join(t.TempDir(), "missing.png"), ThumbOptions{})
	assert.ErrorIs(t, err, fault.ErrPermanent)

	notImage := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notImage, []byte("hello"), 0600))
	_, err = Thumbnail(context.Background(), notImage, ThumbOptions{})
	assert.ErrorIs(t, err, fault.ErrPermanent)
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("uploader"), 0600))

	d1, err := DigestFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(8), d1.Size)
	assert.Len(t, d1.Blake3, 64)

	require.NoError(t, os.WriteFile(path, []byte("uploader!"), 0600))
	d2, err := DigestFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, d1.Blake3, d2.Blake3)

	_, err = DigestFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", ContentType(writePNG(t, 2, 2)))

	noExt := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(noExt, []byte("\x89PNG\r\n\x1a\n0000"), 0600))
	assert.Equal(t, "image/png", ContentType(noExt))

	assert.Equal(t, "application/octet-stream", ContentType(filepath.Join(t.TempDir(), "gone")))
}
