package backend

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/etnz/app-packager/logger"
	"github.com/google/uuid"
)

// LockSuffix names the advisory lock created next to a staging directory.
const LockSuffix = ".lock"

// StalePolicy decides what happens to a staging directory left by an earlier build.
type StalePolicy int

const (
	// StaleFail refuses to build over a leftover staging directory.
	StaleFail StalePolicy = iota
	// StaleRemove deletes the leftover and builds from scratch.
	StaleRemove
)

func (p StalePolicy) String() string {
	if p == StaleRemove {
		return "remove"
	}
	return "fail"
}

// stagingLock is an advisory lock on a staging directory, held for the whole build.
// The lock file holds "<build id> <pid>".
type stagingLock struct {
	path string
	id   string
}

// acquireLock locks staging. A lock held by a running process is always a conflict.
// A lock whose process is gone is stale and follows policy.
func acquireLock(staging string, policy StalePolicy) (*stagingLock, error) {
	l := &stagingLock{path: staging + LockSuffix, id: uuid.NewString()}
	content := fmt.Sprintf("%s %d\n", l.id, os.Getpid())

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			if _, err := f.WriteString(content); err != nil {
				f.Close()
				os.Remove(l.path)
				return nil, err
			}
			if err := f.Close(); err != nil {
				os.Remove(l.path)
				return nil, err
			}
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		holder, pid := readLock(l.path)
		if processAlive(pid) || policy != StaleRemove || attempt > 0 {
			return nil, &StagingConflictError{Path: staging, Holder: holder}
		}
		logger.Logger().Warnf("removing stale lock %s of build %s", l.path, holder)
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, &StagingConflictError{Path: staging}
}

// release removes the lock if it is still ours.
func (l *stagingLock) release() error {
	if l == nil {
		return nil
	}
	holder, _ := readLock(l.path)
	if holder != l.id {
		return fmt.Errorf("lock %s taken over by build %q", l.path, holder)
	}
	return os.Remove(l.path)
}

func readLock(path string) (id string, pid int) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0
	}
	fields := strings.Fields(string(b))
	if len(fields) > 0 {
		id = fields[0]
	}
	if len(fields) > 1 {
		pid, _ = strconv.Atoi(fields[1])
	}
	return id, pid
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
