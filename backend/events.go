package backend

import (
	"encoding/json"
	"fmt"
)

// Listener is a callback function that receives events during a build.
type Listener func(fmt.Stringer)

func jsonString(v interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventStateEntered is emitted each time a pipeline changes state.
type EventStateEntered struct {
	Backend string `json:"backend,omitempty"`
	State   State  `json:"state,omitempty"`
}

func (e EventStateEntered) String() string { return jsonString(e) }

// EventFileInstalled is emitted when a file is in place with its final mode.
type EventFileInstalled struct {
	Src  string `json:"src,omitempty"`
	Dst  string `json:"dst,omitempty"`
	Mode string `json:"mode,omitempty"`
}

func (e EventFileInstalled) String() string { return jsonString(e) }

// EventFileRemoved is emitted by Uninstall for every planned destination.
type EventFileRemoved struct {
	Path string `json:"path,omitempty"`
}

func (e EventFileRemoved) String() string { return jsonString(e) }

// EventMetadataWritten is emitted when a control or spec file is written.
type EventMetadataWritten struct {
	Path string `json:"path,omitempty"`
}

func (e EventMetadataWritten) String() string { return jsonString(e) }

// EventToolInvoked is emitted right before an external packaging tool runs.
type EventToolInvoked struct {
	Tool string   `json:"tool,omitempty"`
	Args []string `json:"args,omitempty"`
	Dir  string   `json:"dir,omitempty"`
}

func (e EventToolInvoked) String() string { return jsonString(e) }

// EventArtifactProduced is emitted for every package or repository produced.
type EventArtifactProduced struct {
	Path string `json:"path,omitempty"`
}

func (e EventArtifactProduced) String() string { return jsonString(e) }

// EventArtifactSigned is emitted when a detached signature is written.
type EventArtifactSigned struct {
	Path      string `json:"path,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func (e EventArtifactSigned) String() string { return jsonString(e) }

// EventCleanupFailed is emitted when staging state could not be removed.
// The build result is not affected.
type EventCleanupFailed struct {
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

func (e EventCleanupFailed) String() string { return jsonString(e) }
