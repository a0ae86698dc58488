// Package install places application files at their computed destinations.
package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/etnz/app-packager/layout"
	"github.com/etnz/app-packager/logger"
	"github.com/etnz/app-packager/shell"
	"github.com/schollz/progressbar/v3"
)

// File modes of installed files.
const (
	ModeExecutable os.FileMode = 0755
	ModeData       os.FileMode = 0644
	modeDir        os.FileMode = 0755
)

// IconAppsDir is the subdirectory of the icon source tree whose files are installed.
const IconAppsDir = "apps"

// IOError reports the file operation and path that failed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Sources are the files produced by the application build and its resource directory.
type Sources struct {
	Binary   string
	Desktop  string
	Metainfo string
	// Icons is the icon source tree. Only files directly inside Icons/apps are installed.
	Icons string
}

// Parts selects which sources a plan installs.
type Parts uint8

const (
	PartBinary Parts = 1 << iota
	PartDesktop
	PartMetainfo
	PartIcons

	PartsAll = PartBinary | PartDesktop | PartMetainfo | PartIcons
)

// Entry is one file to install.
type Entry struct {
	Src  string
	Dst  string
	Mode os.FileMode
	// Strip marks the application binary: its debug symbols are removed before it is copied.
	Strip bool
}

// Plan is an ordered list of entries.
type Plan []Entry

// Destinations lists the destination paths of the plan, in order.
func (p Plan) Destinations() []string {
	out := make([]string, len(p))
	for i, e := range p {
		out[i] = e.Dst
	}
	return out
}

// PlanFor maps sources onto dst. Icons are expanded to one entry per file
// in the apps directory, in name order.
func PlanFor(src Sources, dst layout.DestinationSet, parts Parts) (Plan, error) {
	var plan Plan
	if parts&PartBinary != 0 {
		plan = append(plan, Entry{Src: src.Binary, Dst: dst.Binary, Mode: ModeExecutable, Strip: true})
	}
	if parts&PartDesktop != 0 {
		plan = append(plan, Entry{Src: src.Desktop, Dst: dst.Desktop, Mode: ModeData})
	}
	if parts&PartMetainfo != 0 {
		plan = append(plan, Entry{Src: src.Metainfo, Dst: dst.Metainfo, Mode: ModeData})
	}
	if parts&PartIcons != 0 {
		icons, err := listIcons(src.Icons)
		if err != nil {
			return nil, err
		}
		for _, icon := range icons {
			plan = append(plan, Entry{Src: icon, Dst: dst.Icon(icon), Mode: ModeData})
		}
	}
	return plan, nil
}

func listIcons(iconTree string) ([]string, error) {
	dir := filepath.Join(iconTree, IconAppsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "list", Path: dir, Err: err}
	}
	var icons []string
	for _, e := range entries {
		// Symlinked icons are installed as copies of their target.
		p := filepath.Join(dir, e.Name())
		info, err := os.Stat(p)
		if err != nil {
			return nil, &IOError{Op: "stat", Path: p, Err: err}
		}
		if info.Mode().IsRegular() {
			icons = append(icons, p)
		}
	}
	sort.Strings(icons)
	return icons, nil
}

// Materializer installs plans. The zero value strips with "strip" through shell.ExecRunner.
type Materializer struct {
	Runner shell.Runner
	// StripTool is the command used to strip the binary.
	StripTool string
	// Progress, when set, receives a progress bar.
	Progress io.Writer
	// OnInstall is called after each file is in place.
	OnInstall func(Entry)

	stripped map[string]bool
}

// Materialize installs every entry of plan, aborting on the first failure.
// A binary is stripped at most once per Materializer, always before it is copied.
func (m *Materializer) Materialize(ctx context.Context, plan Plan) error {
	log := logger.Logger()

	var bar *progressbar.ProgressBar
	if m.Progress != nil {
		bar = progressbar.NewOptions(len(plan),
			progressbar.OptionSetWriter(m.Progress),
			progressbar.OptionSetDescription("installing"),
			progressbar.OptionShowCount(),
		)
	}

	for _, e := range plan {
		if e.Strip {
			if err := m.strip(ctx, e.Src); err != nil {
				return err
			}
		}
		if err := copyFile(e.Src, e.Dst, e.Mode); err != nil {
			return err
		}
		log.Debugf("installed %s -> %s (%v)", e.Src, e.Dst, e.Mode)
		if m.OnInstall != nil {
			m.OnInstall(e)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return nil
}

func (m *Materializer) strip(ctx context.Context, binary string) error {
	if m.stripped[binary] {
		return nil
	}
	runner := m.Runner
	if runner == nil {
		runner = shell.ExecRunner{}
	}
	tool := m.StripTool
	if tool == "" {
		tool = "strip"
	}
	if err := runner.Run(ctx, "", tool, binary); err != nil {
		return fmt.Errorf("stripping %s: %w", binary, err)
	}
	if m.stripped == nil {
		m.stripped = make(map[string]bool)
	}
	m.stripped[binary] = true
	return nil
}

// copyFile writes src to dst through a temporary file in dst's directory,
// so a failed copy never leaves a truncated destination.
func copyFile(src, dst string, mode os.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return &IOError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, modeDir); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return &IOError{Op: "create", Path: dst, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	// Chmod rather than relying on the create mode, which the umask would alter.
	if err := tmp.Chmod(mode); err != nil {
		return &IOError{Op: "chmod", Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IOError{Op: "close", Path: dst, Err: err}
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return &IOError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}

// Uninstall removes exactly the destinations of plan. Files already gone are skipped.
func Uninstall(plan Plan) error {
	log := logger.Logger()
	for _, e := range plan {
		err := os.Remove(e.Dst)
		switch {
		case err == nil:
			log.Debugf("removed %s", e.Dst)
		case os.IsNotExist(err):
			log.Debugf("%s already absent", e.Dst)
		default:
			return &IOError{Op: "remove", Path: e.Dst, Err: err}
		}
	}
	return nil
}
