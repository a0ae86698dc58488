package backend

import (
	"context"
	"os"
	"path/filepath"

	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/install"
	"github.com/etnz/app-packager/layout"
	"github.com/etnz/app-packager/rpm"
)

// RPMBuild is the rpm packaging tool.
const RPMBuild = "rpmbuild"

// RPMDriver builds an .rpm from a buildroot under <pkg>-<version>-1.<arch>.
type RPMDriver struct {
	// Arch is the rpm architecture token. Defaults to the host's.
	Arch    string
	License string
	Group   string
	Stale   StalePolicy
}

// Name implements Driver.
func (d RPMDriver) Name() string { return string(layout.FormatRPM) }

// Run implements Driver.
func (d RPMDriver) Run(ctx context.Context, job *Job) (*Result, error) {
	if err := job.Descriptor.Require(descriptor.AllFields...); err != nil {
		return nil, err
	}
	arch := d.Arch
	if arch == "" {
		var err error
		if arch, err = layout.HostArch(layout.FormatRPM); err != nil {
			return nil, err
		}
	}

	// rpmbuild runs elsewhere than the working directory: every path it sees is absolute.
	workDir, err := filepath.Abs(job.workDir())
	if err != nil {
		return nil, err
	}
	outDir, err := filepath.Abs(job.OutputDir)
	if err != nil {
		return nil, err
	}

	st := &staging{dir: filepath.Join(workDir, layout.RPMStagingName(job.Name, job.Version, arch))}
	buildroot := filepath.Join(st.dir, layout.RPMBuildRootDir)
	specPath := filepath.Join(st.dir, rpm.SpecFileName(job.Name))
	staged := layout.Resolve(layout.StagingRoot(buildroot, job.Prefix), job.Name, job.Descriptor.AppID)
	installed := layout.Resolve(layout.PrefixRoot(job.Prefix), job.Name, job.Descriptor.AppID)

	res := &Result{}
	p := newPipeline(d.Name(), job.Listener)
	steps := []step{
		{StateStage, func(ctx context.Context) error {
			if err := st.create(d.Stale); err != nil {
				return err
			}
			if err := os.MkdirAll(staged.IconsDir, 0755); err != nil {
				return &install.IOError{Op: "mkdir", Path: staged.IconsDir, Err: err}
			}
			return nil
		}},
		{StatePopulate, func(ctx context.Context) error {
			plan, err := install.PlanFor(job.Sources, staged, install.PartsAll)
			if err != nil {
				return err
			}
			return job.materializer().Materialize(ctx, plan)
		}},
		{StateGenerateMetadata, func(ctx context.Context) error {
			spec := rpm.RenderSpec(rpm.Spec{
				Name:    job.Name,
				Version: job.Version,
				Summary: job.Descriptor.Summary,
				License: d.License,
				Group:   d.Group,
				Files:   installed,
			})
			if err := os.WriteFile(specPath, []byte(spec), 0644); err != nil {
				return &install.IOError{Op: "write", Path: specPath, Err: err}
			}
			job.emit(EventMetadataWritten{Path: specPath})
			return nil
		}},
		{StateInvokeTool, func(ctx context.Context) error {
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return &install.IOError{Op: "mkdir", Path: outDir, Err: err}
			}
			if err := job.invoke(ctx, st.dir, RPMBuild, rpmbuildArgs(arch, st.dir, buildroot, outDir, specPath)...); err != nil {
				return err
			}
			moved, err := relocate(filepath.Join(outDir, arch), outDir)
			if err != nil {
				return err
			}
			for _, m := range moved {
				if err := job.produced(res, m); err != nil {
					return err
				}
			}
			return nil
		}},
	}

	err = p.run(ctx, steps, st.cleanup)
	res.States = p.States()
	return res, err
}

// rpmbuildArgs points every rpmbuild directory at the staging tree, except
// the rpm directory which is the output directory.
func rpmbuildArgs(arch, topdir, buildroot, outDir, specPath string) []string {
	return []string{
		"-bb",
		"--target", arch,
		"--buildroot", buildroot,
		"--define", "_topdir " + topdir,
		"--define", "_buildrootdir " + buildroot,
		"--define", "_rpmdir " + outDir,
		specPath,
	}
}

// relocate moves the entries of archDir up into outDir and removes archDir.
// rpmbuild always writes into a subdirectory named after the architecture.
func relocate(archDir, outDir string) ([]string, error) {
	entries, err := os.ReadDir(archDir)
	if err != nil {
		return nil, &install.IOError{Op: "list", Path: archDir, Err: err}
	}
	var moved []string
	for _, e := range entries {
		src := filepath.Join(archDir, e.Name())
		dst := filepath.Join(outDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return moved, &install.IOError{Op: "rename", Path: src, Err: err}
		}
		moved = append(moved, dst)
	}
	if err := os.Remove(archDir); err != nil {
		return moved, &install.IOError{Op: "remove", Path: archDir, Err: err}
	}
	return moved, nil
}
