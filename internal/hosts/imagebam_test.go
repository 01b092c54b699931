package hosts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/protocol"
)

type imageBamFake struct {
	mu      sync.Mutex
	fields  map[string]string
	headers http.Header
	fail    bool
}

func (f *imageBamFake) server(t *testing.T) *httptest.Server {
	r := chi.NewRouter()
	authed := func(r *http.Request) bool {
		c, err := r.Cookie("ib_session")
		return err == nil && c.Value == "ok"
	}

	r.Get("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<form><input type="hidden" name="_token" value="LT"></form>`))
	})
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("_token") == "LT" && r.PostForm.Get("email") == "bob@example.com" && r.PostForm.Get("password") == "pw" {
			http.SetCookie(w, &http.Cookie{Name: "ib_session", Value: "ok", Path: "/"})
		}
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			_, _ = w.Write([]byte(`<html><head></head></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><head><meta name="csrf-token" content="CSRF1"></head></html>`))
	})
	r.Post("/upload/session", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Header.Get("X-CSRF-TOKEN") != "CSRF1" || r.PostForm.Get("content_type") != "1" {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "data": "UPTOKEN"})
	})
	r.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		_, hdr, err := r.FormFile("files[0]")
		if !assert.NoError(t, err) {
			return
		}
		f.mu.Lock()
		for k, v := range r.MultipartForm.Value {
			f.fields[k] = v[0]
		}
		f.headers = r.Header.Clone()
		fail := f.fail
		f.mu.Unlock()
		if fail {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "quota exceeded"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]string{{
				"url":   fmt.Sprintf("https://www.imagebam.com/view/ME1%s", hdr.Filename),
				"thumb": "https://thumbs.imagebam.com/me1.jpg",
			}},
		})
	})

	return httptest.NewServer(r)
}

var imageBamCreds = map[string]string{"imagebam_user": "bob@example.com", "imagebam_pass": "pw"}

func TestImageBamUpload(t *testing.T) {
	fake := &imageBamFake{fields: map[string]string{}}
	srv := fake.server(t)
	defer srv.Close()
	b := NewImageBam(newClient(), srv.URL)

	res, err := b.Upload(context.Background(), tempImage(t, "a.jpg"), &protocol.Job{Creds: imageBamCreds})
	require.NoError(t, err)
	assert.Equal(t, "https://www.imagebam.com/view/ME1a.jpg", res.URL)
	assert.Equal(t, "https://thumbs.imagebam.com/me1.jpg", res.Thumb)

	assert.Equal(t, "CSRF1", fake.fields["_token"])
	assert.Equal(t, "UPTOKEN", fake.fields["data"])
	assert.Equal(t, "CSRF1", fake.headers.Get("X-CSRF-TOKEN"))
	assert.Equal(t, "XMLHttpRequest", fake.headers.Get("X-Requested-With"))
	assert.Equal(t, srv.URL, fake.headers.Get("Origin"))
}

func TestImageBamUploadErrors(t *testing.T) {
	fake := &imageBamFake{fields: map[string]string{}, fail: true}
	srv := fake.server(t)
	defer srv.Close()
	b := NewImageBam(newClient(), srv.URL)
	ctx := context.Background()

	_, err := b.Upload(ctx, tempImage(t, "a.jpg"), &protocol.Job{Creds: imageBamCreds})
	assert.ErrorIs(t, err, fault.ErrPermanent)
	assert.Contains(t, err.Error(), "quota exceeded")

	// No csrf token without a login.
	_, err = b.Upload(ctx, tempImage(t, "a.jpg"), &protocol.Job{})
	assert.ErrorIs(t, err, fault.ErrPermanent)
	assert.Contains(t, err.Error(), "csrf")
}

func TestImageBamVerifyAndGalleries(t *testing.T) {
	fake := &imageBamFake{fields: map[string]string{}}
	srv := fake.server(t)
	defer srv.Close()
	b := NewImageBam(newClient(), srv.URL)
	ctx := context.Background()

	assert.NoError(t, b.Verify(ctx, imageBamCreds))
	assert.ErrorIs(t, b.Verify(ctx, map[string]string{"imagebam_user": "bob@example.com", "imagebam_pass": "no"}), fault.ErrPermanent)
	assert.ErrorIs(t, b.Verify(ctx, nil), fault.ErrPermanent)

	list, err := b.ListGalleries(ctx, &protocol.Job{Creds: imageBamCreds})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	g, err := b.CreateGallery(ctx, "Set A", &protocol.Job{})
	require.NoError(t, err)
	assert.Equal(t, "0", g.ID)
	assert.Equal(t, "Set A", g.Name)
}
