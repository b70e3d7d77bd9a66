package sync

import (
	"context"
	"log/slog"
	"strings"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/dfour"
	"github.com/schaermu/dfoursync/internal/domain"
)

// RemoteReader builds the remote side of a sync from a workspace
type RemoteReader struct {
	service dfour.Service
	logger  *slog.Logger
}

// NewRemoteReader creates a reader for service
func NewRemoteReader(service dfour.Service, logger *slog.Logger) *RemoteReader {
	return &RemoteReader{service: service, logger: logger}
}

// Read returns every snapshot of workspace keyed by name. Any failed query
// fails the whole read.
func (r *RemoteReader) Read(ctx context.Context, workspace string) (map[string]domain.Snapshot, error) {
	ws, err := r.service.Workspace(ctx, workspace)
	if err != nil {
		return nil, err
	}

	endpoint := r.service.Endpoint()
	snapshots := make(map[string]domain.Snapshot, len(ws.Snapshots))
	for _, rs := range ws.Snapshots {
		snap, err := r.readSnapshot(ctx, endpoint, rs)
		if err != nil {
			return nil, err
		}

		if prev, dup := snapshots[snap.Name]; dup {
			return nil, domain.RemoteQueryError(nil, "snapshot name %q is used by both pk %s and pk %s in workspace %q on %s",
				snap.Name, prev.PK, snap.PK, workspace, endpoint)
		}
		snapshots[snap.Name] = snap
	}

	r.logger.Info("read remote snapshots", "workspace", workspace, "endpoint", endpoint, "count", len(snapshots))
	return snapshots, nil
}

func (r *RemoteReader) readSnapshot(ctx context.Context, endpoint string, rs dfour.RemoteSnapshot) (domain.Snapshot, error) {
	pkg, err := rs.Data.Descriptor()
	if err != nil {
		return domain.Snapshot{}, domain.RemoteQueryError(err, "malformed data for snapshot pk %s on %s", rs.PK, endpoint)
	}

	name, err := datapackage.ResolveName(pkg)
	if err != nil {
		return domain.Snapshot{}, domain.RemoteQueryError(err, "snapshot pk %s on %s", rs.PK, endpoint)
	}

	hash, err := datapackage.Hash(pkg)
	if err != nil {
		return domain.Snapshot{}, domain.RemoteQueryError(err, "cannot hash snapshot pk %s on %s", rs.PK, endpoint)
	}

	modified, err := r.service.LastModified(ctx, rs.Datafile)
	if err != nil {
		return domain.Snapshot{}, err
	}

	title := rs.Title
	if title == "" {
		title = pkg.Title()
	}

	return domain.Snapshot{
		Name:         name,
		Title:        title,
		Topic:        rs.Topic,
		BfsNumber:    rs.BfsNumber(),
		Hash:         hash,
		LastModified: modified,
		Location:     endpoint + "/media/" + strings.TrimLeft(rs.Datafile, "/"),
		PK:           rs.PK.String(),
		Content:      pkg,
	}, nil
}
