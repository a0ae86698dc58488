// Package descriptor reads the application's AppStream metainfo document,
// the single source of truth for the application id, summary, developer and contact.
package descriptor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension is the file suffix used to discover the descriptor in a resource directory.
const Extension = ".metainfo.xml"

// ErrMissingDescriptor is returned when a resource directory holds no descriptor.
var ErrMissingDescriptor = errors.New("no metainfo descriptor found")

// Field names a descriptor (or build manifest) field that a backend may require.
type Field string

const (
	FieldAppID         Field = "appId"
	FieldSummary       Field = "summary"
	FieldDeveloperName Field = "developerName"
	FieldContactEmail  Field = "contactEmail"
	FieldVersion       Field = "version"
)

// AllFields is the field set required by the deb and rpm backends.
var AllFields = []Field{FieldAppID, FieldSummary, FieldDeveloperName, FieldContactEmail}

// MissingFieldError reports a required field that is absent or empty.
type MissingFieldError struct {
	Field Field
	Path  string
}

func (e *MissingFieldError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("missing required field %q in %s", e.Field, e.Path)
}

// Descriptor is the immutable metadata extracted from the metainfo document.
type Descriptor struct {
	AppID         string
	Summary       string
	DeveloperName string
	ContactEmail  string

	// Path is the descriptor file it was read from. It is also the metainfo file installed on the target.
	Path string
}

// Get returns the value of field f.
func (d *Descriptor) Get(f Field) string {
	switch f {
	case FieldAppID:
		return d.AppID
	case FieldSummary:
		return d.Summary
	case FieldDeveloperName:
		return d.DeveloperName
	case FieldContactEmail:
		return d.ContactEmail
	}
	return ""
}

// Require checks fields in order and reports the first empty one.
func (d *Descriptor) Require(fields ...Field) error {
	for _, f := range fields {
		if d.Get(f) == "" {
			return &MissingFieldError{Field: f, Path: d.Path}
		}
	}
	return nil
}

// Maintainer formats the developer and contact the way Debian expects: "Name <email>".
func (d *Descriptor) Maintainer() string {
	return fmt.Sprintf("%s <%s>", d.DeveloperName, d.ContactEmail)
}

// Find returns the lexicographically first descriptor in resourceDir.
func Find(resourceDir string) (string, error) {
	entries, err := os.ReadDir(resourceDir)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w in %s", ErrMissingDescriptor, resourceDir)
	}
	if err != nil {
		return "", err
	}
	var files []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		p := filepath.Join(resourceDir, e.Name())
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrMissingDescriptor, resourceDir)
	}
	sort.Strings(files)
	return files[0], nil
}

// Read locates and parses the descriptor in resourceDir.
// Fields are not validated here; callers use Require with the set their backend needs.
func Read(resourceDir string) (*Descriptor, error) {
	path, err := Find(resourceDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening descriptor: %w", err)
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// localized is an element that may be repeated once per translation.
type localized struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type component struct {
	XMLName   xml.Name    `xml:"component"`
	ID        string      `xml:"id"`
	Summaries []localized `xml:"summary"`
	Developer struct {
		Names []localized `xml:"name"`
	} `xml:"developer"`
	LegacyDeveloperNames []localized `xml:"developer_name"`
	UpdateContact        string      `xml:"update_contact"`
}

// Parse decodes a metainfo document.
func Parse(r io.Reader) (*Descriptor, error) {
	var c component
	if err := xml.NewDecoder(r).Decode(&c); err != nil {
		return nil, err
	}

	developer := untranslated(c.Developer.Names)
	if developer == "" {
		developer = untranslated(c.LegacyDeveloperNames)
	}

	return &Descriptor{
		AppID:         strings.TrimSpace(c.ID),
		Summary:       untranslated(c.Summaries),
		DeveloperName: developer,
		ContactEmail:  strings.TrimSpace(c.UpdateContact),
	}, nil
}

// untranslated picks the element without xml:lang.
func untranslated(values []localized) string {
	for _, v := range values {
		if v.Lang == "" {
			return strings.TrimSpace(v.Value)
		}
	}
	return ""
}
