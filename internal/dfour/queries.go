package dfour

import (
	"encoding/json"
	"fmt"

	"github.com/schaermu/dfoursync/internal/datapackage"
)

const snapshotsInWorkspaceQuery = `
query snapshotsInWorkspace($wshash: ID!) {
  workspace(id: $wshash) {
    title
    description
    snapshots {
      pk
      topic
      title
      municipality {
        bfsNumber
      }
      datafile
      data
    }
  }
}`

const snapshotTitlesQuery = `
query getsnapshotsinworkspace($wshash: ID!) {
  workspace(id: $wshash) {
    snapshots {
      pk
      title
    }
  }
}`

const snapshotQuery = `
query getsnapshot($hash: ID!) {
  snapshot(id: $hash) {
    data
  }
}`

const createSnapshotMutation = `
mutation updatesnapshot($data: SnapshotMutationInput!) {
  snapshotmutation(input: $data) {
    snapshot {
      pk
    }
  }
}`

// Workspace is a remote collection of snapshots
type Workspace struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Snapshots   []RemoteSnapshot `json:"snapshots"`
}

// RemoteSnapshot is one snapshot entry of a workspace query
type RemoteSnapshot struct {
	PK           PK            `json:"pk"`
	Topic        string        `json:"topic"`
	Title        string        `json:"title"`
	Municipality *Municipality `json:"municipality"`
	Datafile     string        `json:"datafile"`
	Data         RawData       `json:"data"`
}

// BfsNumber returns the municipality classifier, or 0 if none is set
func (s RemoteSnapshot) BfsNumber() int {
	if s.Municipality == nil {
		return 0
	}
	return s.Municipality.BfsNumber
}

// Municipality carries the regional classifier of a snapshot
type Municipality struct {
	BfsNumber int `json:"bfsNumber"`
}

// SnapshotRef is the pk and title of a snapshot
type SnapshotRef struct {
	PK    PK     `json:"pk"`
	Title string `json:"title"`
}

// RawData holds the embedded package descriptor of a snapshot as returned
// by the API: either a JSON object or a JSON-encoded string of one.
type RawData json.RawMessage

// UnmarshalJSON keeps the raw bytes
func (r *RawData) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Descriptor decodes the embedded package descriptor
func (r RawData) Descriptor() (datapackage.Descriptor, error) {
	if len(r) == 0 || string(r) == "null" {
		return nil, fmt.Errorf("snapshot has no data")
	}
	if r[0] == '"' {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return nil, err
		}
		return datapackage.Decode([]byte(s))
	}
	return datapackage.Decode(r)
}

type workspaceResponse struct {
	Workspace *Workspace `json:"workspace"`
}

type snapshotTitlesResponse struct {
	Workspace *struct {
		Snapshots []SnapshotRef `json:"snapshots"`
	} `json:"workspace"`
}

type snapshotResponse struct {
	Snapshot *struct {
		Data RawData `json:"data"`
	} `json:"snapshot"`
}

type createSnapshotResponse struct {
	SnapshotMutation struct {
		Snapshot *struct {
			PK PK `json:"pk"`
		} `json:"snapshot"`
	} `json:"snapshotmutation"`
}

// SnapshotInput is the payload of the snapshot creation mutation
type SnapshotInput struct {
	Title     string `json:"title"`
	Topic     string `json:"topic"`
	BfsNumber int    `json:"bfsNumber"`
	WSHash    string `json:"wshash"`
}
