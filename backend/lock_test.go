package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireLock(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "foo_1.2.3_amd64")

	l, err := acquireLock(staging, StaleFail)
	if err != nil {
		t.Fatalf("acquireLock failed: %v", err)
	}
	b, err := os.ReadFile(staging + LockSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if want := fmt.Sprintf("%s %d\n", l.id, os.Getpid()); string(b) != want {
		t.Errorf("lock content %q, want %q", b, want)
	}

	// A live holder always wins, whatever the policy.
	for _, policy := range []StalePolicy{StaleFail, StaleRemove} {
		_, err := acquireLock(staging, policy)
		var conflict *StagingConflictError
		if !errors.As(err, &conflict) || conflict.Holder != l.id {
			t.Errorf("policy %s: expected conflict with %s, got %v", policy, l.id, err)
		}
	}

	if err := l.release(); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	assertAbsent(t, staging+LockSuffix)
}

func TestAcquireLockStale(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "foo_1.2.3_amd64")
	// No process runs with this pid.
	writeFile(t, staging+LockSuffix, "dead-build 2147483647\n")

	_, err := acquireLock(staging, StaleFail)
	var conflict *StagingConflictError
	if !errors.As(err, &conflict) || conflict.Holder != "dead-build" {
		t.Fatalf("expected conflict with dead-build, got %v", err)
	}

	l, err := acquireLock(staging, StaleRemove)
	if err != nil {
		t.Fatalf("StaleRemove should take over a stale lock: %v", err)
	}
	if err := l.release(); err != nil {
		t.Fatal(err)
	}
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "foo_1.2.3_amd64")
	l, err := acquireLock(staging, StaleFail)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, staging+LockSuffix, "other-build 1\n")

	if err := l.release(); err == nil || !strings.Contains(err.Error(), "other-build") {
		t.Errorf("expected release to refuse a foreign lock, got %v", err)
	}
	if _, err := os.Stat(staging + LockSuffix); err != nil {
		t.Errorf("foreign lock was removed: %v", err)
	}
}

func TestDebDriverLockedStaging(t *testing.T) {
	r := &recorder{}
	job := newJob(t, r)
	staging := filepath.Join(job.OutputDir, "foo_1.2.3_amd64")
	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		t.Fatal(err)
	}
	held, err := acquireLock(staging, StaleFail)
	if err != nil {
		t.Fatal(err)
	}
	defer held.release()

	res, err := DebDriver{Arch: "amd64", Stale: StaleRemove}.Run(context.Background(), job)
	var conflict *StagingConflictError
	if !errors.As(err, &conflict) || conflict.Holder != held.id {
		t.Fatalf("expected StagingConflictError held by %s, got %v", held.id, err)
	}
	if len(r.calls) != 0 {
		t.Errorf("nothing should run on a locked staging directory, got %v", r.calls)
	}
	if res.States[0] != StateStage || res.States[1] != StateFailed {
		t.Errorf("unexpected states %v", res.States)
	}
	if _, err := os.Stat(staging + LockSuffix); err != nil {
		t.Errorf("the holder's lock must survive: %v", err)
	}
}
