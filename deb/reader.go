package deb

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
)

// Info is what ReadInfo extracts from a .deb.
type Info struct {
	Control
	// Files lists the payload's regular files as absolute install paths.
	Files []string
}

// ReadInfo parses the control stanza and payload listing of a .deb read from r.
func ReadInfo(r io.Reader) (*Info, error) {
	info := &Info{}
	foundControl := false

	arR := ar.NewReader(r)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading ar header: %w", err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		// Members are read whole so the ar reader is always positioned on the next header.
		body, err := io.ReadAll(arR)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		switch {
		case strings.HasPrefix(name, string(PkgControlTar)):
			control, err := readControl(bytes.NewReader(body), name)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			fields := parseControlFields(control)
			info.Control = Control{
				Package:      fields[FieldPackage],
				Version:      fields[FieldVersion],
				Architecture: fields[FieldArchitecture],
				Maintainer:   fields[FieldMaintainer],
				Description:  fields[FieldDescription],
			}
			foundControl = true

		case strings.HasPrefix(name, string(PkgDataTar)):
			files, err := listData(bytes.NewReader(body), name)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			info.Files = files
		}
	}
	if !foundControl {
		return nil, fmt.Errorf("control file not found")
	}
	return info, nil
}

// readControl returns the content of the control file within a control.tar member.
func readControl(r io.Reader, member string) (string, error) {
	dr, err := decompress(r, member)
	if err != nil {
		return "", err
	}
	defer dr.Close()

	tr := tar.NewReader(dr)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if filepath.Base(th.Name) == string(FileControl) {
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, tr); err != nil {
				return "", err
			}
			return buf.String(), nil
		}
	}
	return "", fmt.Errorf("control file not found")
}

func listData(r io.Reader, member string) ([]string, error) {
	dr, err := decompress(r, member)
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	var files []string
	tr := tar.NewReader(dr)
	for {
		th, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if th.Typeflag != tar.TypeReg {
			continue
		}
		files = append(files, "/"+strings.TrimPrefix(th.Name, "./"))
	}
	return files, nil
}
