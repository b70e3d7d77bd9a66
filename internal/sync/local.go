package sync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/domain"
	"github.com/schaermu/dfoursync/internal/manifest"
)

// LocalReader builds the local side of a sync from the package files in a
// folder and the folder's manifest.
type LocalReader struct {
	fs        afero.Fs
	manifest  *manifest.Manifest
	workspace string
	exclude   []string
	// prompter is nil in non-interactive runs
	prompter Prompter
	logger   *slog.Logger
}

// NewLocalReader creates a reader. A nil prompter makes snapshots without
// manifest metadata an error instead of a question.
func NewLocalReader(fs afero.Fs, m *manifest.Manifest, workspace string, exclude []string, prompter Prompter, logger *slog.Logger) *LocalReader {
	return &LocalReader{
		fs:        fs,
		manifest:  m,
		workspace: workspace,
		exclude:   exclude,
		prompter:  prompter,
		logger:    logger,
	}
}

// Read returns every package file directly inside folder keyed by name
func (r *LocalReader) Read(folder string) (map[string]domain.Snapshot, error) {
	files, err := datapackage.DiscoverFiles(r.fs, folder, r.exclude)
	if err != nil {
		return nil, domain.LocalIOError(err, "cannot list %s", folder)
	}

	snapshots := make(map[string]domain.Snapshot, len(files))
	for _, path := range files {
		snap, err := r.readFile(path)
		if err != nil {
			return nil, err
		}

		if prev, dup := snapshots[snap.Name]; dup {
			return nil, domain.ConfigurationError("snapshot name %q is used by both %s and %s", snap.Name, prev.Location, path)
		}

		entry, err := r.metadata(snap.Name, path)
		if err != nil {
			return nil, err
		}
		snap.Topic = entry.Topic
		snap.BfsNumber = entry.BfsNumber

		snapshots[snap.Name] = snap
	}

	r.logger.Info("read local snapshots", "folder", folder, "count", len(snapshots))
	return snapshots, nil
}

func (r *LocalReader) readFile(path string) (domain.Snapshot, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return domain.Snapshot{}, domain.LocalIOError(err, "cannot stat %s", path)
	}

	pkg, err := datapackage.Load(r.fs, path)
	if err != nil {
		return domain.Snapshot{}, domain.LocalIOError(err, "cannot read package %s", path)
	}

	name, err := datapackage.ResolveName(pkg)
	if err != nil {
		return domain.Snapshot{}, domain.ConfigurationError("%s: %v", path, err)
	}

	hash, err := datapackage.Hash(pkg)
	if err != nil {
		return domain.Snapshot{}, domain.LocalIOError(err, "cannot hash %s", path)
	}

	return domain.Snapshot{
		Name:         name,
		Title:        pkg.Title(),
		Hash:         hash,
		LastModified: localTime(info.ModTime()),
		Location:     path,
		Content:      pkg,
	}, nil
}

// metadata returns the manifest entry for name, asking for it and saving
// the manifest when it is missing.
func (r *LocalReader) metadata(name, path string) (manifest.Entry, error) {
	if entry, ok := r.manifest.Entry(r.workspace, name); ok {
		return entry, nil
	}

	if r.prompter == nil {
		return manifest.Entry{}, domain.ConfigurationError("snapshot %q (%s) has no topic and bfsNumber in %s", name, path, r.manifest.Path())
	}

	topic, err := askRequired(r.prompter, fmt.Sprintf("Topic for snapshot %q", name))
	if err != nil {
		return manifest.Entry{}, err
	}
	bfs, err := askInt(r.prompter, fmt.Sprintf("BFS number for snapshot %q", name))
	if err != nil {
		return manifest.Entry{}, err
	}

	entry := manifest.Entry{Topic: topic, BfsNumber: bfs}
	if err := r.manifest.Set(r.workspace, name, entry); err != nil {
		return manifest.Entry{}, domain.LocalIOError(err, "cannot save %s", r.manifest.Path())
	}
	r.logger.Info("recorded snapshot metadata", "name", name, "topic", topic, "bfs_number", bfs)
	return entry, nil
}

// localTime normalises a file time to the local zone at second precision
func localTime(t time.Time) time.Time {
	return t.In(time.Local).Truncate(time.Second)
}
