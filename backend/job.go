// Package backend drives the packaging pipelines: deb, rpm and flatpak.
//
// Every driver walks the same states, Stage, Populate, GenerateMetadata,
// InvokeTool, then Cleanup. A failure in any step skips the rest, the
// external tool included, and cleanup still runs. Staging directories are
// named after the package and are guarded by an advisory lock, so two builds
// of the same package cannot share one.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/install"
	"github.com/etnz/app-packager/layout"
	"github.com/etnz/app-packager/logger"
	"github.com/etnz/app-packager/shell"
	"github.com/etnz/app-packager/sign"
)

// Driver builds one package format.
type Driver interface {
	Name() string
	Run(ctx context.Context, job *Job) (*Result, error)
}

// Job carries the inputs shared by every driver.
type Job struct {
	Descriptor *descriptor.Descriptor
	Version    string
	// Name is the package and binary name.
	Name string
	// Prefix is the install prefix inside the package, e.g. /usr.
	Prefix  string
	Sources install.Sources

	// OutputDir receives the produced packages.
	OutputDir string
	// WorkDir holds staging directories. Defaults to OutputDir.
	WorkDir string

	// Runner executes external tools. Defaults to shell.ExecRunner.
	Runner    shell.Runner
	StripTool string
	Progress  io.Writer
	// SignKey, when set, is an armored private key used to sign every artifact.
	SignKey  string
	Listener Listener
}

// Result describes a finished (or failed) pipeline.
type Result struct {
	Artifacts []string
	States    []State
}

func (j *Job) runner() shell.Runner {
	if j.Runner == nil {
		return shell.ExecRunner{}
	}
	return j.Runner
}

func (j *Job) emit(e fmt.Stringer) {
	if j.Listener != nil {
		j.Listener(e)
	}
}

func (j *Job) workDir() string {
	if j.WorkDir != "" {
		return j.WorkDir
	}
	return j.OutputDir
}

func (j *Job) materializer() *install.Materializer {
	return &install.Materializer{
		Runner:    j.runner(),
		StripTool: j.StripTool,
		Progress:  j.Progress,
		OnInstall: func(e install.Entry) {
			j.emit(EventFileInstalled{Src: e.Src, Dst: e.Dst, Mode: fmt.Sprintf("%#o", uint32(e.Mode))})
		},
	}
}

// invoke runs an external tool and reports it to the listener.
func (j *Job) invoke(ctx context.Context, dir, tool string, args ...string) error {
	j.emit(EventToolInvoked{Tool: tool, Args: args, Dir: dir})
	return j.runner().Run(ctx, dir, tool, args...)
}

// produced records an artifact, signing it when a key is configured.
func (j *Job) produced(res *Result, path string) error {
	res.Artifacts = append(res.Artifacts, path)
	j.emit(EventArtifactProduced{Path: path})
	logger.Logger().Infof("produced %s", path)
	if j.SignKey == "" {
		return nil
	}
	sig, err := sign.DetachSign(path, j.SignKey)
	if err != nil {
		return fmt.Errorf("signing %s: %w", path, err)
	}
	j.emit(EventArtifactSigned{Path: path, Signature: sig})
	return nil
}

// staging tracks what a pipeline created, so cleanup never touches anything else.
type staging struct {
	dir     string
	lock    *stagingLock
	created bool
}

// create locks dir and creates it, applying policy to a leftover directory.
func (s *staging) create(policy StalePolicy) error {
	if err := os.MkdirAll(filepath.Dir(s.dir), 0755); err != nil {
		return &install.IOError{Op: "mkdir", Path: filepath.Dir(s.dir), Err: err}
	}
	lock, err := acquireLock(s.dir, policy)
	if err != nil {
		return err
	}
	s.lock = lock

	if _, err := os.Lstat(s.dir); err == nil {
		if policy != StaleRemove {
			return &StagingConflictError{Path: s.dir}
		}
		logger.Logger().Warnf("removing stale staging directory %s", s.dir)
		if err := os.RemoveAll(s.dir); err != nil {
			return &install.IOError{Op: "remove", Path: s.dir, Err: err}
		}
	} else if !os.IsNotExist(err) {
		return &install.IOError{Op: "stat", Path: s.dir, Err: err}
	}

	if err := os.Mkdir(s.dir, 0755); err != nil {
		return &install.IOError{Op: "mkdir", Path: s.dir, Err: err}
	}
	s.created = true
	return nil
}

// cleanup removes the staging directory this pipeline created, then releases the lock.
func (s *staging) cleanup() []cleanupError {
	var errs []cleanupError
	if s.created {
		if err := removeAll(s.dir); err != nil {
			errs = append(errs, cleanupError{path: s.dir, err: err})
		}
	}
	if err := s.lock.release(); err != nil {
		errs = append(errs, cleanupError{path: s.lock.path, err: err})
	}
	return errs
}

// removeAll is os.RemoveAll, replaceable in tests.
var removeAll = os.RemoveAll

// Install materializes the application under root, as the install command does.
func Install(ctx context.Context, job *Job, root layout.InstallRoot) error {
	if err := job.Descriptor.Require(descriptor.FieldAppID); err != nil {
		return err
	}
	plan, err := install.PlanFor(job.Sources, layout.Resolve(root, job.Name, job.Descriptor.AppID), install.PartsAll)
	if err != nil {
		return err
	}
	return job.materializer().Materialize(ctx, plan)
}

// Uninstall removes what Install placed under root. Icons are matched by
// the names found in the source tree, so foreign icons are left alone.
func Uninstall(job *Job, root layout.InstallRoot) error {
	if err := job.Descriptor.Require(descriptor.FieldAppID); err != nil {
		return err
	}
	plan, err := install.PlanFor(job.Sources, layout.Resolve(root, job.Name, job.Descriptor.AppID), install.PartsAll)
	if err != nil {
		return err
	}
	if err := install.Uninstall(plan); err != nil {
		return err
	}
	for _, p := range plan.Destinations() {
		job.emit(EventFileRemoved{Path: p})
	}
	return nil
}
