package dfour

import (
	"context"
	"fmt"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/domain"
)

// StorageConfig selects where a package is read from or written to. All
// fields are optional; which ones are required depends on the operation.
type StorageConfig struct {
	// SnapshotHash is the snapshot to read, or to overwrite when writing
	SnapshotHash string
	// WorkspaceHash is the workspace a written snapshot belongs to
	WorkspaceHash string
	// Username and Password may use the "env:NAME" form
	Username string
	Password string
	// SnapshotTopic and BfsMunicipality are required to create a snapshot
	SnapshotTopic   string
	BfsMunicipality int
}

// Storage reads and writes data packages on a dfour instance
type Storage struct {
	client *Client
	cfg    StorageConfig
}

// NewStorage creates a storage bound to cfg
func NewStorage(client *Client, cfg StorageConfig) *Storage {
	return &Storage{client: client, cfg: cfg}
}

// ListSnapshots lists the snapshots of the configured workspace. Without a
// workspace it returns nothing.
func (s *Storage) ListSnapshots(ctx context.Context) ([]SnapshotRef, error) {
	if s.cfg.WorkspaceHash == "" {
		return nil, nil
	}
	return s.client.SnapshotRefs(ctx, s.cfg.WorkspaceHash)
}

// ReadPackage fetches the configured snapshot
func (s *Storage) ReadPackage(ctx context.Context) (datapackage.Descriptor, error) {
	if s.cfg.SnapshotHash == "" {
		return nil, domain.ConfigurationError("reading a package from %s requires a snapshot hash", s.client.baseURL)
	}

	pkg, err := s.client.Snapshot(ctx, s.cfg.SnapshotHash)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, domain.StorageError(nil, "snapshot with hash %q on %s doesn't exist", s.cfg.SnapshotHash, s.client.baseURL)
	}
	return pkg, nil
}

// ReadResource fetches one resource of the configured snapshot
func (s *Storage) ReadResource(ctx context.Context, name string) (map[string]any, error) {
	pkg, err := s.ReadPackage(ctx)
	if err != nil {
		return nil, err
	}
	res, ok := pkg.Resource(name)
	if !ok {
		return nil, domain.StorageError(nil, "snapshot %q on %s has no resource %q", s.cfg.SnapshotHash, s.client.baseURL, name)
	}
	return res, nil
}

// WritePackage uploads pkg and returns the pk of the snapshot written. The
// target is, in order: the configured snapshot; an existing snapshot in the
// workspace with the same title; a new snapshot, which needs a topic and a
// bfs number.
func (s *Storage) WritePackage(ctx context.Context, pkg datapackage.Descriptor) (string, error) {
	title := pkg.Title()
	if s.cfg.WorkspaceHash == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		return "", domain.ConfigurationError("uploading %q on %s needs a workspace hash and login credentials", title, s.client.baseURL)
	}

	if err := datapackage.Validate(pkg); err != nil {
		return "", domain.StorageError(err, "uploading %q on %s", title, s.client.baseURL)
	}

	session, err := s.client.Login(ctx, s.cfg.Username, s.cfg.Password)
	if err != nil {
		return "", err
	}

	pk, err := s.resolveTarget(ctx, session, title)
	if err != nil {
		return "", err
	}

	content, err := datapackage.CanonicalJSON(pkg)
	if err != nil {
		return "", fmt.Errorf("failed to encode package: %w", err)
	}

	name, err := datapackage.ResolveName(pkg)
	if err != nil {
		name = pk
	}
	if err := session.Upload(ctx, pk, name, content); err != nil {
		return "", err
	}
	return pk, nil
}

func (s *Storage) resolveTarget(ctx context.Context, session *Session, title string) (string, error) {
	if s.cfg.SnapshotHash != "" {
		return s.cfg.SnapshotHash, nil
	}

	refs, err := s.ListSnapshots(ctx)
	if err != nil {
		return "", err
	}
	for _, ref := range refs {
		if title != "" && ref.Title == title {
			return ref.PK.String(), nil
		}
	}

	if s.cfg.SnapshotTopic == "" || s.cfg.BfsMunicipality == 0 {
		return "", domain.StorageError(nil, "uploading %q on %s requires a municipality bfs number and a snapshot topic", title, s.client.baseURL)
	}
	return session.CreateSnapshot(ctx, title, s.cfg.SnapshotTopic, s.cfg.BfsMunicipality, s.cfg.WorkspaceHash)
}
