package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest file kept inside every synced folder
const FileName = "dfour.yaml"

// Entry holds the metadata recorded for one snapshot
type Entry struct {
	Topic     string `yaml:"topic"`
	BfsNumber int    `yaml:"bfsNumber"`
}

// Snapshots maps snapshot names to their metadata
type Snapshots map[string]Entry

// UnmarshalYAML accepts an empty sequence as an empty mapping; older tools
// wrote `snapshots: []` when creating the file.
func (s *Snapshots) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode && len(node.Content) == 0 {
		*s = Snapshots{}
		return nil
	}
	m := map[string]Entry{}
	if err := node.Decode(&m); err != nil {
		return err
	}
	*s = m
	return nil
}

// Workspace is the manifest section of one remote workspace
type Workspace struct {
	Endpoint  string    `yaml:"endpoint,omitempty"`
	Snapshots Snapshots `yaml:"snapshots"`
}

// Manifest is the per-folder record of workspace endpoints and snapshot
// metadata. Every mutation is written back to disk immediately.
type Manifest struct {
	fs         afero.Fs
	path       string
	workspaces map[string]*Workspace
}

// Path returns the manifest location inside folder
func Path(folder string) string {
	return filepath.Join(folder, FileName)
}

// Exists reports whether folder already holds a manifest
func Exists(fs afero.Fs, folder string) (bool, error) {
	return afero.Exists(fs, Path(folder))
}

// New returns an empty, unsaved manifest for folder
func New(fs afero.Fs, folder string) *Manifest {
	return &Manifest{
		fs:         fs,
		path:       Path(folder),
		workspaces: make(map[string]*Workspace),
	}
}

// Load reads the manifest of folder
func Load(fs afero.Fs, folder string) (*Manifest, error) {
	m := New(fs, folder)

	data, err := afero.ReadFile(fs, m.path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, &m.workspaces); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", m.path, err)
	}
	if m.workspaces == nil {
		m.workspaces = make(map[string]*Workspace)
	}

	return m, nil
}

// Path returns the file this manifest is saved to
func (m *Manifest) Path() string {
	return m.path
}

// Ensure adds an empty section for workspace if none exists. It returns
// true if the section was created. The manifest is not saved.
func (m *Manifest) Ensure(workspace, endpoint string) bool {
	if ws, ok := m.workspaces[workspace]; ok && ws != nil {
		return false
	}
	m.workspaces[workspace] = &Workspace{Endpoint: endpoint, Snapshots: Snapshots{}}
	return true
}

// Endpoint returns the endpoint recorded for workspace, or "" if none
func (m *Manifest) Endpoint(workspace string) string {
	if ws, ok := m.workspaces[workspace]; ok && ws != nil {
		return ws.Endpoint
	}
	return ""
}

// Entry returns the metadata recorded for a snapshot
func (m *Manifest) Entry(workspace, name string) (Entry, bool) {
	ws, ok := m.workspaces[workspace]
	if !ok || ws == nil {
		return Entry{}, false
	}
	e, ok := ws.Snapshots[name]
	return e, ok
}

// Set records metadata for a snapshot and saves the manifest
func (m *Manifest) Set(workspace, name string, entry Entry) error {
	ws, ok := m.workspaces[workspace]
	if !ok || ws == nil {
		ws = &Workspace{}
		m.workspaces[workspace] = ws
	}
	if ws.Snapshots == nil {
		ws.Snapshots = Snapshots{}
	}
	ws.Snapshots[name] = entry

	return m.Save()
}

// Save writes the manifest atomically
func (m *Manifest) Save() error {
	data, err := yaml.Marshal(m.workspaces)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpFile, err := afero.TempFile(m.fs, dir, ".dfour-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = m.fs.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := m.fs.Chmod(tmpPath, 0644); err != nil && !os.IsNotExist(err) {
		return err
	}

	return m.fs.Rename(tmpPath, m.path)
}
