package domain

import "time"

// Snapshot is a named unit of package data, held locally as a file or
// remotely in a workspace.
type Snapshot struct {
	Name         string
	Title        string
	Topic        string
	BfsNumber    int
	Hash         string
	LastModified time.Time
	Location     string // local file path or remote raw-file URL
	PK           string // remote identifier, empty on the local side
	Content      map[string]any
}

// ChangeKind is the direction of a Change.
type ChangeKind string

const (
	KindDownload        ChangeKind = "download"
	KindUpload          ChangeKind = "upload"
	KindDownloadReplace ChangeKind = "download-replace"
	KindUploadReplace   ChangeKind = "upload-replace"
)

// IsDownload returns true for kinds that write into the local folder.
func (k ChangeKind) IsDownload() bool {
	return k == KindDownload || k == KindDownloadReplace
}

// IsUpload returns true for kinds that push content to the service.
func (k ChangeKind) IsUpload() bool {
	return k == KindUpload || k == KindUploadReplace
}

// Change is one action to take during a sync run.
type Change struct {
	Name       string     `json:"name" yaml:"name"`
	Kind       ChangeKind `json:"type" yaml:"type"`
	Source     string     `json:"source" yaml:"source"`
	Target     string     `json:"target" yaml:"target"`
	Topic      string     `json:"topic" yaml:"topic"`
	BfsNumber  int        `json:"bfsNumber" yaml:"bfsNumber"`
	LocalDate  *time.Time `json:"local_date" yaml:"local_date"`
	RemoteDate *time.Time `json:"remote_date" yaml:"remote_date"`
}

// Conflict is a snapshot whose content differs on both sides while both
// last-modified timestamps are equal. It requires a manual merge.
type Conflict struct {
	Name       string    `json:"name" yaml:"name"`
	LocalPath  string    `json:"local_path" yaml:"local_path"`
	RemotePK   string    `json:"remote_pk" yaml:"remote_pk"`
	LocalHash  string    `json:"local_hash" yaml:"local_hash"`
	RemoteHash string    `json:"remote_hash" yaml:"remote_hash"`
	Modified   time.Time `json:"modified" yaml:"modified"`
}
