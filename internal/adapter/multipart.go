package adapter

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattjoyce/uploader/internal/media"
)

// Part is one multipart field. A part with FilePath streams that file;
// otherwise Value is written as a text field.
type Part struct {
	Name     string
	FilePath string
	Value    string
}

// FilePart is a Part that streams path under name.
func FilePart(name, path string) Part { return Part{Name: name, FilePath: path} }

// TextPart is a Part holding a literal value.
func TextPart(name, value string) Part { return Part{Name: name, Value: value} }

// MultipartBody streams parts through a pipe so files are never held in
// memory. Text parts are written before file parts. A write failure closes
// the pipe with that error, which surfaces from the HTTP request. File
// reads report to the ProgressFunc attached to ctx, if any.
func MultipartBody(ctx context.Context, parts []Part) (io.ReadCloser, string) {
	ordered := make([]Part, len(parts))
	copy(ordered, parts)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FilePath == "" && ordered[j].FilePath != ""
	})

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	progress := ProgressFrom(ctx)

	go func() {
		for _, p := range ordered {
			var err error
			if p.FilePath != "" {
				err = writeFilePart(mw, p, progress)
			} else {
				err = mw.WriteField(p.Name, p.Value)
			}
			if err != nil {
				pw.CloseWithError(fmt.Errorf("multipart field %s: %w", p.Name, err))
				return
			}
		}
		if err := mw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	return pr, mw.FormDataContentType()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(mw *multipart.Writer, p Part, progress ProgressFunc) error {
	f, err := os.Open(p.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var total int64
	if info, err := f.Stat(); err == nil {
		total = info.Size()
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(p.Name), quoteEscaper.Replace(filepath.Base(p.FilePath))))
	h.Set("Content-Type", media.ContentType(p.FilePath))
	w, err := mw.CreatePart(h)
	if err != nil {
		return err
	}

	var r io.Reader = f
	if progress != nil {
		r = &progressReader{r: f, total: total, fn: progress}
	}
	_, err = io.Copy(w, r)
	return err
}

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}
