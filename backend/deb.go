package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/app-packager/deb"
	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/install"
	"github.com/etnz/app-packager/layout"
)

// DpkgDeb is the Debian packaging tool.
const DpkgDeb = "dpkg-deb"

// DebDriver builds a .deb from a staging tree named <pkg>_<version>_<arch>.
type DebDriver struct {
	// Arch is the Debian architecture token. Defaults to the host's.
	Arch string
	// Native assembles the archive in-process instead of running dpkg-deb.
	Native      bool
	Compression deb.Compression
	Stale       StalePolicy
}

// Name implements Driver.
func (d DebDriver) Name() string { return string(layout.FormatDeb) }

// Run implements Driver.
func (d DebDriver) Run(ctx context.Context, job *Job) (*Result, error) {
	if err := job.Descriptor.Require(descriptor.AllFields...); err != nil {
		return nil, err
	}
	arch := d.Arch
	if arch == "" {
		var err error
		if arch, err = layout.HostArch(layout.FormatDeb); err != nil {
			return nil, err
		}
	}

	name := layout.DebStagingName(job.Name, job.Version, arch)
	st := &staging{dir: filepath.Join(job.workDir(), name)}
	controlDir := filepath.Join(st.dir, layout.DebControlDir)
	dst := layout.Resolve(layout.StagingRoot(st.dir, job.Prefix), job.Name, job.Descriptor.AppID)
	artifact := filepath.Join(job.OutputDir, name+".deb")

	res := &Result{}
	p := newPipeline(d.Name(), job.Listener)
	steps := []step{
		{StateStage, func(ctx context.Context) error {
			if err := st.create(d.Stale); err != nil {
				return err
			}
			if err := os.Mkdir(controlDir, 0755); err != nil {
				return &install.IOError{Op: "mkdir", Path: controlDir, Err: err}
			}
			return nil
		}},
		{StatePopulate, func(ctx context.Context) error {
			plan, err := install.PlanFor(job.Sources, dst, install.PartBinary|install.PartDesktop|install.PartIcons)
			if err != nil {
				return err
			}
			return job.materializer().Materialize(ctx, plan)
		}},
		{StateGenerateMetadata, func(ctx context.Context) error {
			control := deb.RenderControl(deb.Control{
				Package:      job.Name,
				Version:      job.Version,
				Architecture: arch,
				Maintainer:   job.Descriptor.Maintainer(),
				Description:  job.Descriptor.Summary,
			})
			path := filepath.Join(controlDir, string(deb.FileControl))
			if err := os.WriteFile(path, []byte(control), 0644); err != nil {
				return &install.IOError{Op: "write", Path: path, Err: err}
			}
			job.emit(EventMetadataWritten{Path: path})
			return nil
		}},
		{StateInvokeTool, func(ctx context.Context) error {
			if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
				return &install.IOError{Op: "mkdir", Path: job.OutputDir, Err: err}
			}
			if d.Native {
				if err := d.assemble(st.dir, artifact); err != nil {
					return err
				}
			} else if err := job.invoke(ctx, "", DpkgDeb, "--root-owner-group", "--build", st.dir, artifact); err != nil {
				return err
			}
			return job.produced(res, artifact)
		}},
	}

	err := p.run(ctx, steps, st.cleanup)
	res.States = p.States()
	return res, err
}

// assemble writes the archive in-process. A partial archive is removed on failure.
func (d DebDriver) assemble(stagingDir, artifact string) (err error) {
	f, err := os.Create(artifact)
	if err != nil {
		return &install.IOError{Op: "create", Path: artifact, Err: err}
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = &install.IOError{Op: "close", Path: artifact, Err: cerr}
		}
		if err != nil {
			os.Remove(artifact)
		}
	}()
	if _, err := deb.Build(f, stagingDir, deb.BuildOptions{Compression: d.Compression}); err != nil {
		return fmt.Errorf("assembling %s: %w", artifact, err)
	}
	return nil
}
