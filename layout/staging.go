package layout

import "fmt"

const (
	// DebControlDir holds the control stanza inside a deb staging directory.
	DebControlDir = "DEBIAN"
	// RPMBuildRootDir is the buildroot inside an rpm staging directory.
	RPMBuildRootDir = "BUILDROOT"
	// RPMRelease is the release number of every rpm built here.
	RPMRelease = "1"
)

// DebStagingName is the staging directory of a deb build, which is also the
// base name of the archive dpkg-deb produces.
//
// Reference: https://www.debian.org/doc/manuals/debian-faq/ch-pkg_basics.en.html#s-pkgname
func DebStagingName(pkg, version, arch string) string {
	return fmt.Sprintf("%s_%s_%s", pkg, version, arch)
}

// RPMStagingName is the staging directory of an rpm build: the package NVRA.
func RPMStagingName(pkg, version, arch string) string {
	return fmt.Sprintf("%s-%s-%s.%s", pkg, version, RPMRelease, arch)
}

// FlatpakManifestName is the manifest file flatpak-builder reads, keyed by application id.
func FlatpakManifestName(appID string) string {
	return appID + ".json"
}
