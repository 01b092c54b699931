package adapter

import (
	"context"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultipartBodyOrderAndProgress(t *testing.T) {
	content := strings.Repeat("x", 100_000)
	file := writeFile(t, "big.png", content)

	var lastSent, lastTotal int64
	calls := 0
	ctx := WithProgress(context.Background(), func(sent, total int64) {
		calls++
		lastSent, lastTotal = sent, total
	})

	body, ct := MultipartBody(ctx, []Part{
		FilePart("image", file),
		TextPart("format", "json"),
		TextPart("adult", "1"),
	})
	defer body.Close()

	_, params, err := mime.ParseMediaType(ct)
	require.NoError(t, err)
	mr := multipart.NewReader(body, params["boundary"])

	var names []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, p.FormName())
		data, err := io.ReadAll(p)
		require.NoError(t, err)
		if p.FormName() == "image" {
			assert.Equal(t, "big.png", p.FileName())
			assert.Equal(t, "image/png", p.Header.Get("Content-Type"))
			assert.Len(t, data, len(content))
		}
	}

	assert.Equal(t, []string{"format", "adult", "image"}, names)
	assert.Greater(t, calls, 0)
	assert.Equal(t, int64(len(content)), lastSent)
	assert.Equal(t, int64(len(content)), lastTotal)
}

func TestMultipartBodyMissingFile(t *testing.T) {
	body, _ := MultipartBody(context.Background(), []Part{FilePart("f", filepath.Join(t.TempDir(), "none"))})
	defer body.Close()

	_, err := io.ReadAll(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multipart field f")
}
