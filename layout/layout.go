// Package layout computes every destination path of an application install.
//
// Nothing in this package touches the filesystem: an InstallRoot is a path
// composition value and a DestinationSet is a pure function of
// (root, name, app id).
package layout

import (
	"fmt"
	"path/filepath"
)

// Default prefixes of the two install root families.
const (
	DefaultPrefix        = "/usr"
	DefaultFlatpakPrefix = "/app"
)

// Relative suffixes joined onto an install root.
const (
	BinDir          = "bin"
	ApplicationsDir = "share/applications"
	MetainfoDir     = "share/metainfo"
	IconsDir        = "share/icons/hicolor/scalable/apps"

	DesktopExt  = ".desktop"
	MetainfoExt = ".metainfo.xml"
)

// InstallRoot is the base directory under which a DestinationSet is rooted.
type InstallRoot struct {
	// Prefix is the path as seen on the installed system, e.g. /usr or /app.
	Prefix string
	// Overlay is the directory the prefix is grafted onto: a rootdir override or a staging directory.
	// Empty means the live system.
	Overlay string

	base string
}

// NewInstallRoot composes rootdir and prefix.
// With an empty rootdir the base is prefix, untouched. Otherwise the base is the
// absolute, cleaned join of rootdir and prefix.
func NewInstallRoot(rootdir, prefix string) (InstallRoot, error) {
	if rootdir == "" {
		return InstallRoot{Prefix: prefix, base: prefix}, nil
	}
	base, err := filepath.Abs(filepath.Join(rootdir, prefix))
	if err != nil {
		return InstallRoot{}, fmt.Errorf("resolving install root %s%s: %w", rootdir, prefix, err)
	}
	return InstallRoot{Prefix: prefix, Overlay: rootdir, base: base}, nil
}

// PrefixRoot is the root of prefix on the installed system, with no overlay.
// Package metadata listing installed paths is resolved against it.
func PrefixRoot(prefix string) InstallRoot {
	return InstallRoot{Prefix: prefix, base: filepath.Clean(prefix)}
}

// StagingRoot grafts prefix onto a per-format staging directory.
func StagingRoot(stagingDir, prefix string) InstallRoot {
	return InstallRoot{Prefix: prefix, Overlay: stagingDir, base: filepath.Join(stagingDir, prefix)}
}

// Base returns the directory files are actually written under.
func (r InstallRoot) Base() string { return r.base }

// DestinationSet holds the destinations of one application under one InstallRoot.
type DestinationSet struct {
	Binary   string
	Desktop  string
	Metainfo string
	IconsDir string
}

// Resolve computes the destinations of the application name/appID under root.
func Resolve(root InstallRoot, name, appID string) DestinationSet {
	base := root.Base()
	return DestinationSet{
		Binary:   filepath.Join(base, BinDir, name),
		Desktop:  filepath.Join(base, ApplicationsDir, appID+DesktopExt),
		Metainfo: filepath.Join(base, MetainfoDir, appID+MetainfoExt),
		IconsDir: filepath.Join(base, IconsDir),
	}
}

// Icon returns the destination of a single icon file.
func (d DestinationSet) Icon(filename string) string {
	return filepath.Join(d.IconsDir, filepath.Base(filename))
}

// IconGlob is the pattern matching every installed icon.
func (d DestinationSet) IconGlob() string {
	return filepath.Join(d.IconsDir, "*")
}
