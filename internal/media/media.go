// Package media holds local file helpers used around uploads: thumbnail
// rendering, content digests and content type detection.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/zeebo/blake3"
)

// ThumbOptions controls thumbnail rendering.
type ThumbOptions struct {
	Width   int
	Quality int
}

// Thumbnail renders a JPEG preview of the image at path, scaled to
// opts.Width with the aspect ratio kept.
func Thumbnail(ctx context.Context, path string, opts ThumbOptions) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = 100
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 70
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Permanentf("file not found: %s", path)
		}
		return nil, fault.Wrap(fault.ErrPermanent, "decode image", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumb := imaging.Resize(img, opts.Width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailBase64 is Thumbnail encoded with standard base64.
func ThumbnailBase64(ctx context.Context, path string, opts ThumbOptions) (string, error) {
	raw, err := Thumbnail(ctx, path, opts)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Digest is the BLAKE3 hash and size of a file.
type Digest struct {
	Blake3 string
	Size   int64
}

// DigestFile streams path through BLAKE3.
func DigestFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return Digest{Blake3: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}

// ContentType guesses the MIME type of path from its extension, falling
// back to sniffing the first 512 bytes.
func ContentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}

	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	return http.DetectContentType(head[:n])
}
