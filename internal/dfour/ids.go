package dfour

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Node type names used in global object identifiers
const (
	SnapshotNode  = "SnapshotNode"
	WorkspaceNode = "WorkspaceNode"
)

// GlobalID encodes a node identifier the way the service expects it:
// base64("<TypeName>:<hash>") with standard padding.
func GlobalID(typeName, hash string) string {
	return base64.StdEncoding.EncodeToString([]byte(typeName + ":" + hash))
}

// SnapshotID returns the global identifier of a snapshot
func SnapshotID(hash string) string {
	return GlobalID(SnapshotNode, hash)
}

// WorkspaceID returns the global identifier of a workspace
func WorkspaceID(hash string) string {
	return GlobalID(WorkspaceNode, hash)
}

// PK is a snapshot primary key. The service returns it either as a
// string or as a number.
type PK string

// UnmarshalJSON accepts both JSON strings and numbers
func (p *PK) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PK(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid pk %s: %w", string(data), err)
	}
	*p = PK(n.String())
	return nil
}

func (p PK) String() string {
	return string(p)
}
