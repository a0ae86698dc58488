// Package config loads packaging.yaml, the per-project packaging configuration.
//
// Every string value may use text/template syntax. Name and the entries of
// defines are available everywhere; AppID, Version and Arch are available to
// the source paths, which are rendered once the descriptor has been read.
//
// A missing packaging.yaml is not an error: defaults follow the usual layout
// of an application repository (Cargo.toml, res/, target/release/<name>).
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/install"
	"github.com/etnz/app-packager/layout"
	"go.yaml.in/yaml/v3"
)

// DefaultFile is the configuration looked up in the working directory.
const DefaultFile = "packaging.yaml"

// Environment overrides of the install root.
const (
	EnvRootdir = "ROOTDIR"
	EnvPrefix  = "PREFIX"
)

// Config is the packaging configuration of one application.
type Config struct {
	// Name is the package and binary name. Defaults to the name of the directory holding the configuration.
	Name string `json:"name" yaml:"name"`
	// Manifest is the build manifest the version is read from.
	Manifest string `json:"manifest" yaml:"manifest"`
	// Resources holds the descriptor, the desktop entry and the icon tree.
	Resources string `json:"resources" yaml:"resources"`
	// Binary is the compiled application.
	Binary string `json:"binary" yaml:"binary"`
	// Desktop is the desktop entry. Defaults to <resources>/<app id>.desktop.
	Desktop string `json:"desktop" yaml:"desktop"`
	// Icons is the icon source tree; its apps subdirectory is installed. Defaults to <resources>/icons.
	Icons string `json:"icons" yaml:"icons"`

	Prefix        string `json:"prefix" yaml:"prefix"`
	FlatpakPrefix string `json:"flatpak_prefix" yaml:"flatpak_prefix"`
	Rootdir       string `json:"rootdir" yaml:"rootdir"`

	// OutputDir receives the built packages.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	License   string `json:"license" yaml:"license"`
	Group     string `json:"group" yaml:"group"`
	// Strip is the command removing debug symbols from the binary.
	Strip string `json:"strip" yaml:"strip"`

	Flatpak Flatpak `json:"flatpak" yaml:"flatpak"`

	// Defines is a map of global variables available to templates.
	Defines map[string]string `json:"defines" yaml:"defines"`

	filePath string
	engine   *templateEngine
}

// Flatpak configures flatpak-builder.
type Flatpak struct {
	// Manifest defaults to <app id>.json.
	Manifest string `json:"manifest" yaml:"manifest"`
	BuildDir string `json:"build_dir" yaml:"build_dir"`
	Repo     string `json:"repo" yaml:"repo"`
	// DepsFrom is the remote dependencies are installed from. An explicit empty value disables it.
	DepsFrom *string `json:"deps_from" yaml:"deps_from"`
	Cache    bool    `json:"cache" yaml:"cache"`
	Sandbox  bool    `json:"sandbox" yaml:"sandbox"`
}

// DefaultDepsFrom is the remote used when deps_from is absent.
const DefaultDepsFrom = "flathub"

// Remote returns the remote dependencies are installed from, or "" to skip them.
func (f Flatpak) Remote() string {
	if f.DepsFrom == nil {
		return ""
	}
	return *f.DepsFrom
}

// Load reads the configuration at path. An empty path means DefaultFile in the
// working directory, and defaults if that file does not exist.
// ROOTDIR and PREFIX from the environment override the file.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	var c Config
	content, err := os.ReadFile(abs)
	switch {
	case err == nil:
		if err := validateAgainstSchema(packagingSchemaURL, packagingSchema, content); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", path, err)
		}
		if err := unmarshal(abs, content, &c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case optional && os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	c.filePath = abs
	c.applyDefaults()
	c.applyEnv(os.Getenv)
	c.initEngine()
	return &c, nil
}

// Define adds template variables, overriding those of the file.
func (c *Config) Define(defines map[string]string) {
	if len(defines) == 0 {
		return
	}
	if c.Defines == nil {
		c.Defines = make(map[string]string)
	}
	for k, v := range defines {
		c.Defines[k] = v
	}
	c.initEngine()
}

func (c *Config) initEngine() {
	c.engine = newTemplateEngine(c.Defines).sub(map[string]string{"Name": c.Name})
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = filepath.Base(filepath.Dir(c.filePath))
	}
	if c.Manifest == "" {
		c.Manifest = "Cargo.toml"
	}
	if c.Resources == "" {
		c.Resources = "res"
	}
	if c.Binary == "" {
		c.Binary = "target/release/{{.Name}}"
	}
	if c.Prefix == "" {
		c.Prefix = layout.DefaultPrefix
	}
	if c.FlatpakPrefix == "" {
		c.FlatpakPrefix = layout.DefaultFlatpakPrefix
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Strip == "" {
		c.Strip = "strip"
	}
	if c.Flatpak.BuildDir == "" {
		c.Flatpak.BuildDir = "flatpak-out"
	}
	if c.Flatpak.Repo == "" {
		c.Flatpak.Repo = "repo"
	}
	if c.Flatpak.DepsFrom == nil {
		deps := DefaultDepsFrom
		c.Flatpak.DepsFrom = &deps
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvRootdir); v != "" {
		c.Rootdir = v
	}
	if v := getenv(EnvPrefix); v != "" {
		c.Prefix = v
	}
}

// Dir is the directory relative paths are resolved against.
func (c *Config) Dir() string { return filepath.Dir(c.filePath) }

// ManifestPath is the rendered and resolved build manifest path.
func (c *Config) ManifestPath() (string, error) {
	return c.path(c.engine, "manifest", c.Manifest)
}

// ResourceDir is the rendered and resolved resource directory.
func (c *Config) ResourceDir() (string, error) {
	return c.path(c.engine, "resources", c.Resources)
}

// OutputPath is the rendered and resolved output directory.
func (c *Config) OutputPath() (string, error) {
	return c.path(c.engine, "output_dir", c.OutputDir)
}

// Sources renders the source paths of the application described by d.
// The metainfo source is the descriptor file itself.
func (c *Config) Sources(d *descriptor.Descriptor, version, arch string) (install.Sources, error) {
	eng := c.appEngine(d.AppID, version, arch)
	res, err := c.path(eng, "resources", c.Resources)
	if err != nil {
		return install.Sources{}, err
	}

	desktop := c.Desktop
	if desktop == "" {
		desktop = filepath.Join(res, d.AppID+layout.DesktopExt)
	}
	icons := c.Icons
	if icons == "" {
		icons = filepath.Join(res, "icons")
	}

	src := install.Sources{Metainfo: d.Path}
	for _, f := range []struct {
		name string
		in   string
		out  *string
	}{
		{"binary", c.Binary, &src.Binary},
		{"desktop", desktop, &src.Desktop},
		{"icons", icons, &src.Icons},
	} {
		p, err := c.path(eng, f.name, f.in)
		if err != nil {
			return install.Sources{}, err
		}
		*f.out = p
	}
	return src, nil
}

// FlatpakManifestPath renders the flatpak manifest of appID.
func (c *Config) FlatpakManifestPath(appID, arch string) (string, error) {
	m := c.Flatpak.Manifest
	if m == "" {
		m = layout.FlatpakManifestName(appID)
	}
	return c.path(c.appEngine(appID, "", arch), "flatpak.manifest", m)
}

// FlatpakDirs renders the flatpak build and repository directories.
func (c *Config) FlatpakDirs() (buildDir, repo string, err error) {
	if buildDir, err = c.path(c.engine, "flatpak.build_dir", c.Flatpak.BuildDir); err != nil {
		return "", "", err
	}
	if repo, err = c.path(c.engine, "flatpak.repo", c.Flatpak.Repo); err != nil {
		return "", "", err
	}
	return buildDir, repo, nil
}

func (c *Config) appEngine(appID, version, arch string) *templateEngine {
	return c.engine.sub(map[string]string{
		"AppID":   appID,
		"Version": version,
		"Arch":    arch,
	})
}

// path renders a templated path and resolves it against the configuration directory.
func (c *Config) path(eng *templateEngine, name, text string) (string, error) {
	p, err := eng.render(name, text)
	if err != nil {
		return "", fmt.Errorf("rendering %s %q: %w", name, text, err)
	}
	return c.resolve(p), nil
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.Dir(), path)
}

// unmarshal parses JSON or YAML based on file extension.
func unmarshal(path string, data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	r := bytes.NewReader(data)
	if ext == ".json" {
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
