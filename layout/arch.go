package layout

import (
	"fmt"
	"runtime"
	"strings"
)

// Format identifies a packaging ecosystem with its own architecture vocabulary.
type Format string

const (
	FormatDeb     Format = "deb"
	FormatRPM     Format = "rpm"
	FormatFlatpak Format = "flatpak"
)

// UnknownArchError is returned for a machine name missing from the table.
// Guessing would silently mislabel the produced archive.
type UnknownArchError struct {
	Machine string
	Format  Format
}

func (e *UnknownArchError) Error() string {
	return fmt.Sprintf("no %s architecture known for machine %q", e.Format, e.Machine)
}

type archTokens struct {
	deb, rpm, flatpak string
}

// archTable maps uname -m names, Go GOARCH names and the ecosystems' own tokens
// to the canonical token of each format. An empty token means the format has no build for it.
var archTable = map[string]archTokens{
	"x86_64":  {"amd64", "x86_64", "x86_64"},
	"amd64":   {"amd64", "x86_64", "x86_64"},
	"aarch64": {"arm64", "aarch64", "aarch64"},
	"arm64":   {"arm64", "aarch64", "aarch64"},
	"armv7l":  {"armhf", "armv7hl", "arm"},
	"armv7hl": {"armhf", "armv7hl", "arm"},
	"armhf":   {"armhf", "armv7hl", "arm"},
	"arm":     {"armhf", "armv7hl", "arm"},
	"i386":    {"i386", "i686", "i386"},
	"i686":    {"i386", "i686", "i386"},
	"386":     {"i386", "i686", "i386"},
	"ppc64le": {"ppc64el", "ppc64le", ""},
	"ppc64el": {"ppc64el", "ppc64le", ""},
	"s390x":   {"s390x", "s390x", ""},
	"riscv64": {"riscv64", "riscv64", ""},
}

// Arch maps a machine architecture name to the canonical token of format f.
func Arch(machine string, f Format) (string, error) {
	tokens, ok := archTable[strings.ToLower(strings.TrimSpace(machine))]
	if !ok {
		return "", &UnknownArchError{Machine: machine, Format: f}
	}
	var token string
	switch f {
	case FormatDeb:
		token = tokens.deb
	case FormatRPM:
		token = tokens.rpm
	case FormatFlatpak:
		token = tokens.flatpak
	}
	if token == "" {
		return "", &UnknownArchError{Machine: machine, Format: f}
	}
	return token, nil
}

// HostArch is Arch applied to the architecture this binary was built for.
func HostArch(f Format) (string, error) {
	return Arch(runtime.GOARCH, f)
}
