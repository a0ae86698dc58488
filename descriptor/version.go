package descriptor

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ReadVersion returns the first version declared by the build manifest at path.
//
// YAML and JSON manifests are decoded and their top-level "version" key is used.
// Any other manifest (Cargo.toml, pyproject.toml, ...) is scanned for the first
// `version = "x"` or `version: x` line.
func ReadVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading build manifest: %w", err)
	}

	var version string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		var dto struct {
			Version string `yaml:"version"`
		}
		// JSON is valid YAML, so a single decoder serves both.
		if err := yaml.Unmarshal(data, &dto); err != nil {
			return "", fmt.Errorf("parsing build manifest %s: %w", path, err)
		}
		version = strings.TrimSpace(dto.Version)
	default:
		version = scanVersion(data)
	}

	if version == "" {
		return "", &MissingFieldError{Field: FieldVersion, Path: path}
	}
	return version, nil
}

func scanVersion(data []byte) string {
	s := bufio.NewScanner(bytes.NewReader(data))
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			key, value, ok = strings.Cut(line, ":")
		}
		if !ok || strings.TrimSpace(key) != "version" {
			continue
		}
		value = strings.TrimSpace(value)
		if i := strings.Index(value, "#"); i >= 0 && !strings.HasPrefix(value, `"`) {
			value = strings.TrimSpace(value[:i])
		}
		value = strings.Trim(value, `"'`)
		if value != "" {
			return value
		}
	}
	return ""
}
