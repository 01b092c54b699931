// Package hosts holds the built-in upload targets. Targets that only need
// a declarative request description are driven by http_upload instead.
package hosts

import (
	"context"
	"fmt"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/config"
)

// Deps are the shared pieces targets are built from.
type Deps struct {
	Client  *adapter.Client
	Targets config.TargetsConfig

	// Endpoint overrides, used by tests.
	PixhostAPI   string
	ImxAPI       string
	ImxSite      string
	ViprSite     string
	ImageBamSite string
	TurboSite    string
}

// Register installs every built-in target and the generic http_upload
// runner into reg.
func Register(ctx context.Context, reg *adapter.Registry, deps Deps) error {
	if deps.Client == nil {
		return fmt.Errorf("hosts: http client required")
	}

	if err := reg.Register(NewPixhost(deps.Client, deps.PixhostAPI), "pixhost"); err != nil {
		return err
	}
	if err := reg.Register(NewImx(deps.Client, deps.ImxAPI, deps.ImxSite), "imx"); err != nil {
		return err
	}
	if err := reg.Register(NewVipr(deps.Client, deps.ViprSite), "vipr"); err != nil {
		return err
	}
	if err := reg.Register(NewImageBam(deps.Client, deps.ImageBamSite), "imagebam"); err != nil {
		return err
	}
	if err := reg.Register(NewTurbo(deps.Client, deps.TurboSite), "turbo", "turboimagehost.com"); err != nil {
		return err
	}
	if deps.Targets.S3 != nil {
		s3, err := NewS3(ctx, *deps.Targets.S3)
		if err != nil {
			return fmt.Errorf("s3 target: %w", err)
		}
		if err := reg.Register(s3); err != nil {
			return err
		}
	}

	reg.SetGeneric(adapter.NewGeneric(deps.Client))
	return nil
}
