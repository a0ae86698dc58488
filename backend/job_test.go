package backend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/etnz/app-packager/descriptor"
	"github.com/etnz/app-packager/layout"
	"github.com/etnz/app-packager/sign"
)

func TestInstallUninstall(t *testing.T) {
	r := &recorder{}
	job := newJob(t, r)
	var ev events
	job.Listener = ev.listen

	root, err := layout.NewInstallRoot(t.TempDir(), "/usr")
	if err != nil {
		t.Fatal(err)
	}
	if err := Install(context.Background(), job, root); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	dst := layout.Resolve(root, testName, testAppID)
	assertMode(t, dst.Binary, 0755)
	assertMode(t, dst.Desktop, 0644)
	assertMode(t, dst.Metainfo, 0644)
	assertMode(t, dst.Icon(testAppID+".svg"), 0644)
	if !ev.contains("EventFileInstalled") || !ev.contains(`"mode":"0755"`) {
		t.Errorf("missing install events: %v", ev)
	}

	foreign := dst.Icon("org.other.App.svg")
	writeFile(t, foreign, "<svg/>")

	if err := Uninstall(job, root); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	for _, p := range []string{dst.Binary, dst.Desktop, dst.Metainfo, dst.Icon(testAppID + ".svg")} {
		assertAbsent(t, p)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("uninstall removed a file it did not install: %v", err)
	}
}

func TestInstallRequiresAppID(t *testing.T) {
	job := newJob(t, &recorder{})
	job.Descriptor.AppID = ""
	root, _ := layout.NewInstallRoot(t.TempDir(), "/app")

	err := Install(context.Background(), job, root)
	var missing *descriptor.MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
}

func testKey(t *testing.T) string {
	t.Helper()
	entity, err := openpgp.NewEntity("Test", "test", "test@example.com", nil)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatal(err)
	}
	w.Close()
	return buf.String()
}

func TestSignedArtifacts(t *testing.T) {
	job := newJob(t, &recorder{})
	job.SignKey = testKey(t)
	var ev events
	job.Listener = ev.listen

	res, err := DebDriver{Arch: "amd64", Native: true}.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	artifact := res.Artifacts[0]
	pub, err := sign.PublicKey(job.SignKey, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sign.Verify(artifact, string(pub)); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
	if !ev.contains("EventArtifactSigned") {
		t.Errorf("missing signature event: %v", ev)
	}
	if filepath.Ext(artifact) != ".deb" {
		t.Errorf("unexpected artifact %s", artifact)
	}
}
