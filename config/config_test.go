package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/etnz/app-packager/descriptor"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bitrate")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvRootdir, "")
	t.Setenv(EnvPrefix, "")

	// An explicit path must exist; an empty path tolerates a missing file.
	if _, err := Load(filepath.Join(dir, DefaultFile)); err == nil {
		t.Fatal("expected an error for a missing explicit configuration")
	}

	c, err := Load(writeConfig(t, dir, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Name != "bitrate" {
		t.Errorf("expected name from directory, got %q", c.Name)
	}
	if c.Prefix != "/usr" || c.FlatpakPrefix != "/app" {
		t.Errorf("unexpected prefixes %q %q", c.Prefix, c.FlatpakPrefix)
	}

	manifest, err := c.ManifestPath()
	if err != nil {
		t.Fatal(err)
	}
	if manifest != filepath.Join(dir, "Cargo.toml") {
		t.Errorf("unexpected manifest path %s", manifest)
	}

	d := &descriptor.Descriptor{AppID: "io.example.Bitrate", Path: filepath.Join(dir, "res", "io.example.Bitrate.metainfo.xml")}
	src, err := c.Sources(d, "1.0.0", "amd64")
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if want := filepath.Join(dir, "target", "release", "bitrate"); src.Binary != want {
		t.Errorf("binary: got %s, want %s", src.Binary, want)
	}
	if want := filepath.Join(dir, "res", "io.example.Bitrate.desktop"); src.Desktop != want {
		t.Errorf("desktop: got %s, want %s", src.Desktop, want)
	}
	if want := filepath.Join(dir, "res", "icons"); src.Icons != want {
		t.Errorf("icons: got %s, want %s", src.Icons, want)
	}
	if src.Metainfo != d.Path {
		t.Errorf("metainfo: got %s, want %s", src.Metainfo, d.Path)
	}
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
name: foo
binary: build/{{.Arch}}/{{.Name}}-{{.Version}}
desktop: "{{.Assets}}/{{.AppID | lower}}.desktop"
defines:
  Assets: share
flatpak:
  manifest: flatpak/{{.AppID}}.yml
  sandbox: true
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	src, err := c.Sources(&descriptor.Descriptor{AppID: "org.Example.Foo"}, "1.2.3", "arm64")
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if want := filepath.Join(dir, "build", "arm64", "foo-1.2.3"); src.Binary != want {
		t.Errorf("binary: got %s, want %s", src.Binary, want)
	}
	if want := filepath.Join(dir, "share", "org.example.foo.desktop"); src.Desktop != want {
		t.Errorf("desktop: got %s, want %s", src.Desktop, want)
	}

	fp, err := c.FlatpakManifestPath("org.Example.Foo", "aarch64")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "flatpak", "org.Example.Foo.yml"); fp != want {
		t.Errorf("flatpak manifest: got %s, want %s", fp, want)
	}
	if !c.Flatpak.Sandbox || c.Flatpak.Cache {
		t.Errorf("unexpected flatpak flags %+v", c.Flatpak)
	}
}

func TestLoadUnknownTemplateKey(t *testing.T) {
	c, err := Load(writeConfig(t, t.TempDir(), "binary: target/{{.Profile}}/app\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := &descriptor.Descriptor{AppID: "a.b.C"}
	if _, err := c.Sources(d, "1", "amd64"); err == nil {
		t.Fatal("expected an error for an undefined template key")
	}

	c.Define(map[string]string{"Profile": "debug"})
	src, err := c.Sources(d, "1", "amd64")
	if err != nil {
		t.Fatalf("Sources failed after Define: %v", err)
	}
	if want := filepath.Join(c.Dir(), "target", "debug", "app"); src.Binary != want {
		t.Errorf("binary: got %s, want %s", src.Binary, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", "nmae: foo\n"},
		{"relative prefix", "prefix: usr\n"},
		{"wrong type", "flatpak:\n  cache: sometimes\n"},
		{"unknown flatpak field", "flatpak:\n  arch: x86_64\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, t.TempDir(), tt.content)); err == nil {
				t.Errorf("expected %q to be rejected", tt.content)
			}
		})
	}
}

func TestLoadFlatpakDepsFrom(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		want    string
	}{
		{"absent", "name: foo\n", "flathub"},
		{"set", "flatpak:\n  deps_from: gnome-nightly\n", "gnome-nightly"},
		{"disabled", "flatpak:\n  deps_from: \"\"\n", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Load(writeConfig(t, t.TempDir(), tc.content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got := c.Flatpak.Remote(); got != tc.want {
				t.Errorf("Remote() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvRootdir, "/tmp/stage")
	t.Setenv(EnvPrefix, "/opt/foo")

	c, err := Load(writeConfig(t, t.TempDir(), "prefix: /usr/local\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Rootdir != "/tmp/stage" || c.Prefix != "/opt/foo" {
		t.Errorf("environment not applied: rootdir=%q prefix=%q", c.Rootdir, c.Prefix)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packaging.json")
	if err := os.WriteFile(path, []byte(`{"name": "foo", "output_dir": "dist"}`), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	out, err := c.OutputPath()
	if err != nil {
		t.Fatal(err)
	}
	if out != filepath.Join(dir, "dist") {
		t.Errorf("unexpected output path %s", out)
	}
}

func TestTemplateEngineSub(t *testing.T) {
	parent := newTemplateEngine(map[string]string{"A": "1", "B": "2"})
	child := parent.sub(map[string]string{"B": "3"})

	got, err := child.render("t", "{{.A}}{{.B}}")
	if err != nil {
		t.Fatal(err)
	}
	if got != "13" {
		t.Errorf("got %q, want 13", got)
	}
	if got, _ := parent.render("t", "{{.B}}"); got != "2" {
		t.Errorf("sub leaked into parent: %q", got)
	}
	if got, _ := parent.render("t", "plain"); got != "plain" {
		t.Errorf("plain text altered: %q", got)
	}
}

func TestValidateAgainstSchemaReportsField(t *testing.T) {
	err := validateAgainstSchema(packagingSchemaURL, packagingSchema, []byte("name: Foo Bar\n"))
	if err == nil {
		t.Fatal("expected a schema violation")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error does not name the field: %v", err)
	}
}
