package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

const testMetainfo = `<?xml version="1.0" encoding="UTF-8"?>
<component type="desktop-application">
  <id>io.example.Foo</id>
  <name>Foo</name>
  <summary>Shows network throughput</summary>
  <developer id="io.example">
    <name>Jane Doe</name>
  </developer>
  <update_contact>jane@example.com</update_contact>
</component>
`

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

// newProject lays out a buildable project and returns its packaging.yaml.
func newProject(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not found in PATH")
	}
	t.Setenv("ROOTDIR", "")
	t.Setenv("PREFIX", "")

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "packaging.yaml"), "name: foo\nstrip: \"true\"\noutput_dir: out\n", 0644)
	writeFile(t, filepath.Join(dir, "Cargo.toml"), "[package]\nname = \"foo\"\nversion = \"1.2.3\"\n", 0644)
	writeFile(t, filepath.Join(dir, "target", "release", "foo"), "#!/bin/sh\n", 0755)
	writeFile(t, filepath.Join(dir, "res", "io.example.Foo.metainfo.xml"), testMetainfo, 0644)
	writeFile(t, filepath.Join(dir, "res", "io.example.Foo.desktop"), "[Desktop Entry]\nName=Foo\n", 0644)
	writeFile(t, filepath.Join(dir, "res", "icons", "apps", "io.example.Foo.svg"), "<svg/>", 0644)
	return filepath.Join(dir, "packaging.yaml")
}

// execute runs the command line args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := createRootCommand()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	root := createRootCommand()
	for _, name := range []string{"install", "uninstall", "build-deb", "build-rpm", "build-flatpak", "build-flatpak-install", "describe", "export-key"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Errorf("Find(%q) error: %v", name, err)
			continue
		}
		if cmd.Name() != name {
			t.Errorf("Find(%q) = %q", name, cmd.Name())
		}
	}
}

func TestKVFlags(t *testing.T) {
	f := kvFlags{}
	for _, v := range []string{"b=2", "a=1", "c=x=y"} {
		if err := f.Set(v); err != nil {
			t.Fatalf("Set(%q) error: %v", v, err)
		}
	}
	if got, want := f.String(), "a=1, b=2, c=x=y"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	for _, v := range []string{"novalue", "=x"} {
		if err := f.Set(v); err == nil {
			t.Errorf("Set(%q) expected an error", v)
		}
	}
}

func TestPathArch(t *testing.T) {
	for machine, want := range map[string]string{
		"amd64":   "x86_64",
		"arm64":   "aarch64",
		"loong64": "loong64",
	} {
		if got := pathArch(machine); got != want {
			t.Errorf("pathArch(%q) = %q, want %q", machine, got, want)
		}
	}
}

func TestInstallUninstall(t *testing.T) {
	cfg := newProject(t)
	rootdir := t.TempDir()

	if _, err := execute(t, "--config", cfg, "install", "--rootdir", rootdir); err != nil {
		t.Fatalf("install: %v", err)
	}
	installed := []string{
		"usr/bin/foo",
		"usr/share/applications/io.example.Foo.desktop",
		"usr/share/metainfo/io.example.Foo.metainfo.xml",
		"usr/share/icons/hicolor/scalable/apps/io.example.Foo.svg",
	}
	for _, p := range installed {
		if _, err := os.Stat(filepath.Join(rootdir, p)); err != nil {
			t.Errorf("expected %s to be installed: %v", p, err)
		}
	}

	if _, err := execute(t, "--config", cfg, "uninstall", "--rootdir", rootdir); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	for _, p := range installed {
		if _, err := os.Stat(filepath.Join(rootdir, p)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed, stat error: %v", p, err)
		}
	}
}

func TestInstallFlatpakPrefix(t *testing.T) {
	cfg := newProject(t)
	rootdir := t.TempDir()

	if _, err := execute(t, "--config", cfg, "install", "--flatpak", "--rootdir", rootdir); err != nil {
		t.Fatalf("install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(rootdir, "app", "bin", "foo")); err != nil {
		t.Errorf("expected the binary under /app: %v", err)
	}
}

func TestBuildDebNativeAndDescribe(t *testing.T) {
	cfg := newProject(t)

	out, err := execute(t, "--config", cfg, "build-deb", "--native", "--arch", "amd64", "--compression", "xz")
	if err != nil {
		t.Fatalf("build-deb: %v", err)
	}
	artifact := strings.TrimSpace(out)
	if filepath.Base(artifact) != "foo_1.2.3_amd64.deb" {
		t.Fatalf("build-deb printed %q", out)
	}
	staging := strings.TrimSuffix(artifact, ".deb")
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Errorf("staging %s should be removed, stat error: %v", staging, err)
	}

	out, err = execute(t, "describe", artifact)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.Contains(out, "foo 1.2.3 amd64") {
		t.Errorf("describe = %q", out)
	}
}

func TestBuildDebRejectsCompression(t *testing.T) {
	cfg := newProject(t)
	if _, err := execute(t, "--config", cfg, "build-deb", "--native", "--compression", "lz4"); err == nil {
		t.Error("expected an error for an unknown compression")
	}
}

func TestSignRequiresKey(t *testing.T) {
	cfg := newProject(t)
	t.Setenv("GPG_PRIVATE_KEY", "")
	_, err := execute(t, "--config", cfg, "--sign", "build-deb", "--native", "--arch", "amd64")
	if err == nil || !strings.Contains(err.Error(), "GPG_PRIVATE_KEY") {
		t.Errorf("expected a missing key error, got %v", err)
	}
}

// armoredTestKey returns a fresh unencrypted armored private key.
func armoredTestKey(t *testing.T) string {
	t.Helper()
	entity, err := openpgp.NewEntity("Test", "test", "test@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatalf("armor encode failed: %v", err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	w.Close()
	return buf.String()
}

func TestSignedBuildVerifiesWithExportedKey(t *testing.T) {
	cfg := newProject(t)
	t.Setenv("GPG_PRIVATE_KEY", armoredTestKey(t))

	pub, err := execute(t, "export-key")
	if err != nil {
		t.Fatalf("export-key: %v", err)
	}
	if !strings.Contains(pub, "PGP PUBLIC KEY BLOCK") {
		t.Fatalf("export-key printed %q", pub)
	}
	keyring := filepath.Join(t.TempDir(), "keyring.asc")
	writeFile(t, keyring, pub, 0644)

	out, err := execute(t, "--config", cfg, "--sign", "build-deb", "--native", "--arch", "amd64")
	if err != nil {
		t.Fatalf("build-deb: %v", err)
	}
	artifact := strings.TrimSpace(out)

	out, err = execute(t, "describe", "--keyring", keyring, artifact)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !strings.Contains(out, "foo 1.2.3 amd64 signed-by=") {
		t.Errorf("describe = %q", out)
	}
}

func TestExportKeyRequiresKey(t *testing.T) {
	t.Setenv("GPG_PRIVATE_KEY", "")
	if _, err := execute(t, "export-key"); err == nil {
		t.Error("expected an error without a signing key")
	}
}

func TestDescribeUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.tar")
	writeFile(t, path, "x", 0644)
	if _, err := execute(t, "describe", path); err == nil {
		t.Error("expected an error for an unknown package format")
	}
}
