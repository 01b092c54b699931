package hosts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/protocol"
)

type turboFake struct {
	mu       sync.Mutex
	fields   map[string]string
	reply    map[string]any
	endpoint bool
}

func (f *turboFake) server(t *testing.T) *httptest.Server {
	r := chi.NewRouter()

	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("username") == "bob" && r.PostForm.Get("password") == "pw" {
			http.SetCookie(w, &http.Cookie{Name: "tih", Value: "ok", Path: "/"})
		}
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !f.endpoint {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
			return
		}
		_, _ = w.Write([]byte(`<script>var uploader = new qq.FineUploader({ request: { endpoint: '/upload_html5.tu?s=9' } });</script>`))
	})
	r.Post("/upload_html5.tu", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		_, _, err := r.FormFile("qqfile")
		assert.NoError(t, err)
		f.mu.Lock()
		for k, v := range r.MultipartForm.Value {
			f.fields[k] = v[0]
		}
		f.fields["s"] = r.URL.Query().Get("s")
		reply := f.reply
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(reply)
	})
	r.Get("/p/{id}/view.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<textarea>[url=https://www.turboimagehost.com/p/1/a.jpg.html][img]https://s1.turboimg.net/t/1_a.jpg[/img][/url]</textarea>`))
	})

	return httptest.NewServer(r)
}

func TestTurboUploadScrapesViewer(t *testing.T) {
	fake := &turboFake{fields: map[string]string{}, endpoint: true}
	srv := fake.server(t)
	defer srv.Close()
	fake.reply = map[string]any{"success": true, "newUrl": srv.URL + "/p/1/view.html"}

	tb := NewTurbo(newClient(), srv.URL)
	job := &protocol.Job{Config: map[string]string{"turbo_content": "all", "turbo_thumb": "180"}}
	res, err := tb.Upload(context.Background(), tempImage(t, "a.jpg"), job)
	require.NoError(t, err)
	assert.Equal(t, "https://www.turboimagehost.com/p/1/a.jpg.html", res.URL)
	assert.Equal(t, "https://s1.turboimg.net/t/1_a.jpg", res.Thumb)

	assert.Equal(t, "9", fake.fields["s"], "upload should use the announced endpoint")
	assert.Equal(t, "a.jpg", fake.fields["qqfilename"])
	assert.Equal(t, "8", fake.fields["qqtotalfilesize"])
	assert.Equal(t, "all", fake.fields["imcontent"])
	assert.Equal(t, "180", fake.fields["thumb_size"])
	_, err = uuid.Parse(fake.fields["qquuid"])
	assert.NoError(t, err)
}

func TestTurboUploadFallsBackToID(t *testing.T) {
	fake := &turboFake{fields: map[string]string{}, reply: map[string]any{"success": true, "id": "77"}}
	srv := fake.server(t)
	defer srv.Close()

	tb := NewTurbo(newClient(), srv.URL)
	res, err := tb.Upload(context.Background(), tempImage(t, "b.jpg"), &protocol.Job{})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/p/77/b.jpg.html", res.URL)
	assert.Equal(t, res.URL, res.Thumb)
	assert.Empty(t, fake.fields["s"], "no announced endpoint means the default one")

	fake.mu.Lock()
	fake.reply = map[string]any{"success": false, "error": "file too large"}
	fake.mu.Unlock()
	_, err = tb.Upload(context.Background(), tempImage(t, "b.jpg"), &protocol.Job{})
	assert.ErrorIs(t, err, fault.ErrPermanent)
	assert.Contains(t, err.Error(), "file too large")
}

func TestTurboVerify(t *testing.T) {
	fake := &turboFake{fields: map[string]string{}, endpoint: true}
	srv := fake.server(t)
	defer srv.Close()
	tb := NewTurbo(newClient(), srv.URL)
	ctx := context.Background()

	assert.NoError(t, tb.Verify(ctx, map[string]string{"turbo_user": "bob", "turbo_pass": "pw"}))
	assert.NoError(t, tb.Verify(ctx, nil))

	closed := &turboFake{fields: map[string]string{}}
	srv2 := closed.server(t)
	defer srv2.Close()
	assert.ErrorIs(t, NewTurbo(newClient(), srv2.URL).Verify(ctx, nil), fault.ErrPermanent)
}
