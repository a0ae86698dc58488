package rpm

import (
	"fmt"
	"io"

	rpmutils "github.com/sassoftware/go-rpmutils"
)

// Info is what ReadInfo extracts from an .rpm.
type Info struct {
	Name    string
	Version string
	Release string
	Arch    string
	Summary string
	// Files lists the payload paths recorded in the header.
	Files []string
}

// ReadInfo parses the lead and header of an .rpm read from r. The payload is not read.
func ReadInfo(r io.Reader) (*Info, error) {
	hdr, err := rpmutils.ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("reading rpm header: %w", err)
	}
	nevra, err := hdr.GetNEVRA()
	if err != nil {
		return nil, fmt.Errorf("reading rpm NEVRA: %w", err)
	}
	summary, err := hdr.GetString(rpmutils.SUMMARY)
	if err != nil {
		return nil, fmt.Errorf("reading rpm summary: %w", err)
	}
	files, err := hdr.GetFiles()
	if err != nil {
		return nil, fmt.Errorf("reading rpm file list: %w", err)
	}

	info := &Info{
		Name:    nevra.Name,
		Version: nevra.Version,
		Release: nevra.Release,
		Arch:    nevra.Arch,
		Summary: summary,
	}
	for _, f := range files {
		info.Files = append(info.Files, f.Name())
	}
	return info, nil
}
