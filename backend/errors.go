package backend

import "fmt"

// StagingConflictError reports a staging directory that belongs to another
// build, or that a previous build left behind.
type StagingConflictError struct {
	Path string
	// Holder is the id of the build holding the staging lock. Empty for a leftover directory.
	Holder string
}

func (e *StagingConflictError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("staging directory %s is in use by build %s", e.Path, e.Holder)
	}
	return fmt.Sprintf("staging directory %s already exists", e.Path)
}
