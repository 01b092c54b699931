// Package adapter defines the upload target contract and the shared
// pieces concrete targets are built from: the HTTP client, streaming
// multipart bodies, {key} templates and response extraction.
//
// Every target implements Adapter. Gallery and credential operations are
// optional capabilities discovered by type assertion; the package-level
// helpers return fault.ErrNotSupported when a target lacks one.
package adapter

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks github.com/mattjoyce/uploader/internal/adapter Adapter,GalleryCreator,GalleryFinalizer,Verifier,GalleryLister

import (
	"context"

	"github.com/mattjoyce/uploader/internal/fault"
	"github.com/mattjoyce/uploader/internal/protocol"
)

// Result is the outcome of one successful upload.
type Result struct {
	URL   string
	Thumb string
	Extra map[string]any
}

// Gallery is a remote album handle.
type Gallery struct {
	ID    string            `json:"id"`
	Name  string            `json:"name,omitempty"`
	Extra map[string]string `json:"-"`
}

// Payload flattens the gallery into the map sent back to the host.
func (g Gallery) Payload() map[string]string {
	out := make(map[string]string, len(g.Extra)+2)
	for k, v := range g.Extra {
		out[k] = v
	}
	out["id"] = g.ID
	if g.Name != "" {
		out["name"] = g.Name
	}
	return out
}

// Adapter uploads files to one remote target. Implementations must honor
// ctx on every network call they make.
type Adapter interface {
	Name() string
	Upload(ctx context.Context, filePath string, job *protocol.Job) (*Result, error)
}

// GalleryCreator is implemented by targets that can create albums.
type GalleryCreator interface {
	CreateGallery(ctx context.Context, name string, job *protocol.Job) (*Gallery, error)
}

// GalleryFinalizer is implemented by targets that need a closing call
// after the last upload into a gallery.
type GalleryFinalizer interface {
	FinalizeGallery(ctx context.Context, handle string, job *protocol.Job) error
}

// Verifier is implemented by targets that can check credentials.
type Verifier interface {
	Verify(ctx context.Context, creds map[string]string) error
}

// GalleryLister is implemented by targets that can enumerate albums.
type GalleryLister interface {
	ListGalleries(ctx context.Context, job *protocol.Job) ([]Gallery, error)
}

// CreateGallery calls a's GalleryCreator capability.
func CreateGallery(ctx context.Context, a Adapter, name string, job *protocol.Job) (*Gallery, error) {
	gc, ok := a.(GalleryCreator)
	if !ok {
		return nil, notSupported(a, protocol.ActionCreateGallery)
	}
	return gc.CreateGallery(ctx, name, job)
}

// FinalizeGallery calls a's GalleryFinalizer capability. Targets without a
// finalize step succeed without doing anything.
func FinalizeGallery(ctx context.Context, a Adapter, handle string, job *protocol.Job) error {
	gf, ok := a.(GalleryFinalizer)
	if !ok {
		return nil
	}
	return gf.FinalizeGallery(ctx, handle, job)
}

// Verify calls a's Verifier capability.
func Verify(ctx context.Context, a Adapter, creds map[string]string) error {
	v, ok := a.(Verifier)
	if !ok {
		return notSupported(a, protocol.ActionVerify)
	}
	return v.Verify(ctx, creds)
}

// ListGalleries calls a's GalleryLister capability.
func ListGalleries(ctx context.Context, a Adapter, job *protocol.Job) ([]Gallery, error) {
	gl, ok := a.(GalleryLister)
	if !ok {
		return nil, notSupported(a, protocol.ActionListGalleries)
	}
	return gl.ListGalleries(ctx, job)
}

func notSupported(a Adapter, op string) error {
	return fault.Wrap(fault.ErrNotSupported, a.Name()+" "+op, nil)
}

type progressKey struct{}

// ProgressFunc receives bytes sent so far and the total for one file.
type ProgressFunc func(sent, total int64)

// WithProgress attaches a progress callback that streaming bodies report to.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFrom returns the callback attached by WithProgress, or nil.
func ProgressFrom(ctx context.Context) ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(ProgressFunc)
	return fn
}
