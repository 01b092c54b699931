package hosts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/protocol"
)

func TestRegister(t *testing.T) {
	reg := adapter.NewRegistry()
	require.NoError(t, Register(context.Background(), reg, Deps{Client: newClient()}))

	assert.Equal(t, []string{
		"imagebam", "imagebam.com", "imx", "imx.to", "pixhost", "pixhost.to",
		"turbo", "turboimagehost", "turboimagehost.com", "vipr", "vipr.im",
	}, reg.Names())

	a, err := reg.Resolve(&protocol.Job{Action: "http_upload", Service: "vipr.im"})
	require.NoError(t, err)
	assert.Equal(t, adapter.GenericName, a.Name())

	_, isCreator := interface{}(NewPixhost(nil, "")).(adapter.GalleryCreator)
	assert.True(t, isCreator)
	_, isLister := interface{}(NewPixhost(nil, "")).(adapter.GalleryLister)
	assert.False(t, isLister)

	a, err = reg.Resolve(&protocol.Job{Action: "list_galleries", Service: "vipr"})
	require.NoError(t, err)
	assert.Equal(t, "vipr.im", a.Name())
	_, isLister = a.(adapter.GalleryLister)
	assert.True(t, isLister)

	a, err = reg.Resolve(&protocol.Job{Action: "verify", Service: "turbo"})
	require.NoError(t, err)
	_, isVerifier := a.(adapter.Verifier)
	assert.True(t, isVerifier)
}

func TestRegisterWithS3(t *testing.T) {
	_, endpoint := newS3Fake(t, "media")
	cfg := s3Config(endpoint)

	reg := adapter.NewRegistry()
	require.NoError(t, Register(context.Background(), reg, Deps{
		Client:  newClient(),
		Targets: config.TargetsConfig{S3: &cfg},
	}))
	_, ok := reg.Get("S3")
	assert.True(t, ok)
}

func TestRegisterRequiresClient(t *testing.T) {
	assert.Error(t, Register(context.Background(), adapter.NewRegistry(), Deps{}))
}
