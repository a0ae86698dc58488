package deb

import (
	"fmt"
	"strings"
)

// Control holds the fields of the binary control stanza.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#binary-package-control-files-debian-control
type Control struct {
	// Package is the name of the package.
	Package string
	// Version is the upstream version of the application.
	Version string
	// Architecture is the Debian architecture token, e.g. "amd64".
	Architecture string
	// Maintainer is "Name <email>".
	Maintainer string
	// Description is the one line synopsis.
	Description string
}

// RenderControl renders c as a control stanza, one line per field, in fixed order.
func RenderControl(c Control) string {
	var b strings.Builder

	writeField := func(field ControlField, value string) {
		// A newline in a value would start a new field; keep the synopsis on one line.
		value = strings.Join(strings.Fields(value), " ")
		fmt.Fprintf(&b, "%s: %s\n", field, value)
	}

	writeField(FieldPackage, c.Package)
	writeField(FieldVersion, c.Version)
	writeField(FieldArchitecture, c.Architecture)
	writeField(FieldMaintainer, c.Maintainer)
	writeField(FieldDescription, c.Description)

	return b.String()
}

// parseControlFields extracts the fields of a control stanza.
// Continuation lines are folded into the preceding field.
func parseControlFields(control string) map[ControlField]string {
	fields := make(map[ControlField]string)
	var current ControlField
	for _, line := range strings.Split(control, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if current != "" {
				fields[current] += "\n" + strings.TrimSpace(line)
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		current = ControlField(strings.TrimSpace(key))
		fields[current] = strings.TrimSpace(value)
	}
	return fields
}
