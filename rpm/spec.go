// Package rpm renders the spec file handed to rpmbuild and reads back the
// header of the packages it produces.
package rpm

import (
	"fmt"
	"strings"

	"github.com/etnz/app-packager/layout"
)

// SpecTag is a preamble tag of a spec file.
type SpecTag string

const (
	TagName    SpecTag = "Name"
	TagVersion SpecTag = "Version"
	TagRelease SpecTag = "Release"
	TagSummary SpecTag = "Summary"
	TagLicense SpecTag = "License"
	TagGroup   SpecTag = "Group"
)

// Section is a spec file section header.
type Section string

const (
	SectionDescription Section = "%description"
	SectionFiles       Section = "%files"
)

// Defaults used when the packaging configuration leaves License or Group empty.
const (
	DefaultLicense = "MPL-2.0"
	DefaultGroup   = "Applications/System"
)

// Spec holds everything RenderSpec needs.
type Spec struct {
	Name    string
	Version string
	// Release defaults to layout.RPMRelease.
	Release string
	Summary string
	License string
	Group   string

	// Files are the destinations on the installed system, i.e. resolved against
	// the bare prefix and not against the buildroot.
	Files layout.DestinationSet
}

// RenderSpec renders s as a binary-only spec file.
//
// The %files section lists the binary, the desktop entry, the metainfo file and
// a glob over the icon directory, in that order. Icon names are left to rpmbuild
// to expand since they are not known when the spec is written.
func RenderSpec(s Spec) string {
	var b strings.Builder

	writeTag := func(tag SpecTag, value string) {
		value = strings.Join(strings.Fields(value), " ")
		fmt.Fprintf(&b, "%s: %s\n", tag, escapeMacros(value))
	}

	release := s.Release
	if release == "" {
		release = layout.RPMRelease
	}
	license := s.License
	if license == "" {
		license = DefaultLicense
	}
	group := s.Group
	if group == "" {
		group = DefaultGroup
	}

	writeTag(TagName, s.Name)
	writeTag(TagVersion, s.Version)
	writeTag(TagRelease, release)
	writeTag(TagSummary, s.Summary)
	writeTag(TagLicense, license)
	writeTag(TagGroup, group)

	fmt.Fprintf(&b, "\n%s\n%s\n", SectionDescription, escapeMacros(strings.TrimSpace(s.Summary)))

	fmt.Fprintf(&b, "\n%s\n", SectionFiles)
	for _, p := range []string{s.Files.Binary, s.Files.Desktop, s.Files.Metainfo, s.Files.IconGlob()} {
		fmt.Fprintln(&b, escapeMacros(p))
	}

	return b.String()
}

// escapeMacros keeps rpmbuild from expanding a literal % as a macro.
func escapeMacros(value string) string {
	return strings.ReplaceAll(value, "%", "%%")
}

// SpecFileName is the name of the spec file written next to the buildroot.
func SpecFileName(name string) string {
	return name + ".spec"
}
