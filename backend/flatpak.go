package backend

import (
	"context"

	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/layout"
)

// FlatpakBuilder is the flatpak build tool.
const FlatpakBuilder = "flatpak-builder"

// FlatpakDriver runs flatpak-builder. The builder owns its sandbox, so there
// is nothing to stage: the driver only composes the command line.
type FlatpakDriver struct {
	// Arch is the flatpak architecture token. Defaults to the host's.
	Arch     string
	Manifest string
	BuildDir string
	Repo     string
	// DepsFrom is the remote runtimes and SDKs are installed from. Empty disables it.
	DepsFrom string
	// Cache reuses the builder's cache between builds.
	Cache   bool
	Sandbox bool
	Verbose bool
	// Install installs the result for the current user.
	Install bool
}

// Name implements Driver.
func (d FlatpakDriver) Name() string { return string(layout.FormatFlatpak) }

// Args is the flatpak-builder command line for arch.
func (d FlatpakDriver) Args(arch string) []string {
	args := []string{"--arch=" + arch, "--force-clean"}
	if !d.Cache {
		args = append(args, "--disable-cache")
	}
	if d.DepsFrom != "" {
		args = append(args, "--install-deps-from="+d.DepsFrom)
	}
	if d.Sandbox {
		args = append(args, "--sandbox")
	}
	if d.Verbose {
		args = append(args, "--verbose")
	}
	if d.Install {
		args = append(args, "--user", "--install")
	}
	args = append(args, "--repo="+d.Repo, d.BuildDir, d.Manifest)
	return args
}

// Run implements Driver. Only the application id is required.
func (d FlatpakDriver) Run(ctx context.Context, job *Job) (*Result, error) {
	if err := job.Descriptor.Require(descriptor.FieldAppID); err != nil {
		return nil, err
	}
	arch := d.Arch
	if arch == "" {
		var err error
		if arch, err = layout.HostArch(layout.FormatFlatpak); err != nil {
			return nil, err
		}
	}

	if d.Manifest == "" {
		d.Manifest = layout.FlatpakManifestName(job.Descriptor.AppID)
	}

	res := &Result{}
	p := newPipeline(d.Name(), job.Listener)
	steps := []step{
		{StateInvokeTool, func(ctx context.Context) error {
			if err := job.invoke(ctx, job.WorkDir, FlatpakBuilder, d.Args(arch)...); err != nil {
				return err
			}
			res.Artifacts = append(res.Artifacts, d.Repo)
			job.emit(EventArtifactProduced{Path: d.Repo})
			return nil
		}},
	}
	err := p.run(ctx, steps, nil)
	res.States = p.States()
	return res, err
}
