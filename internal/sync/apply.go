package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/dfour"
	"github.com/schaermu/dfoursync/internal/domain"
	"github.com/schaermu/dfoursync/internal/manifest"
)

// Credentials authorise uploads into a workspace
type Credentials struct {
	Workspace string
	Username  string
	Password  string
}

// Complete reports whether uploads are possible
func (c Credentials) Complete() bool {
	return c.Workspace != "" && c.Username != "" && c.Password != ""
}

// Applier executes changes against the local folder and the service
type Applier struct {
	fs       afero.Fs
	service  dfour.Service
	manifest *manifest.Manifest
	creds    Credentials
	logger   *slog.Logger
}

// NewApplier creates an applier. Downloads record metadata in m under
// creds.Workspace.
func NewApplier(fs afero.Fs, service dfour.Service, m *manifest.Manifest, creds Credentials, logger *slog.Logger) *Applier {
	return &Applier{
		fs:       fs,
		service:  service,
		manifest: m,
		creds:    creds,
		logger:   logger,
	}
}

// Apply executes every change independently and returns one outcome per
// change in order. A failed change does not stop the others.
func (a *Applier) Apply(ctx context.Context, changes []domain.Change) []Outcome {
	outcomes := make([]Outcome, 0, len(changes))
	for _, change := range changes {
		outcome := Outcome{Change: change}
		if err := ctx.Err(); err != nil {
			outcome.Err = fmt.Errorf("not applied: %w", err)
			outcomes = append(outcomes, outcome)
			continue
		}

		switch {
		case change.Kind.IsDownload():
			outcome.Err = a.download(ctx, change)
		case change.Kind.IsUpload():
			outcome.PK, outcome.Err = a.upload(ctx, change)
		default:
			outcome.Err = fmt.Errorf("unknown change type %q for %q", change.Kind, change.Name)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (a *Applier) download(ctx context.Context, change domain.Change) error {
	a.logger.Info("downloading snapshot", "name", change.Name, "pk", change.Source, "target", change.Target)

	pkg, err := a.service.ReadPackage(ctx, change.Source)
	if err != nil {
		return err
	}
	if err := datapackage.Validate(pkg); err != nil {
		a.logger.Warn("downloaded package does not match the data package profile", "name", change.Name, "error", err)
	}

	var modTime time.Time
	if change.RemoteDate != nil {
		modTime = *change.RemoteDate
	}
	if err := WritePackageFile(a.fs, change.Target, pkg, modTime); err != nil {
		return domain.LocalIOError(err, "cannot write snapshot %q to %s", change.Name, change.Target)
	}

	entry := manifest.Entry{Topic: change.Topic, BfsNumber: change.BfsNumber}
	if err := a.manifest.Set(a.creds.Workspace, change.Name, entry); err != nil {
		return domain.LocalIOError(err, "cannot save %s after downloading %q", a.manifest.Path(), change.Name)
	}
	return nil
}

func (a *Applier) upload(ctx context.Context, change domain.Change) (string, error) {
	if !a.creds.Complete() {
		return "", domain.ConfigurationError("uploading %q on %s needs a workspace hash and login credentials", change.Name, a.service.Endpoint())
	}

	a.logger.Info("uploading snapshot", "name", change.Name, "source", change.Source, "target", change.Target)

	pkg, err := datapackage.Load(a.fs, change.Source)
	if err != nil {
		return "", domain.LocalIOError(err, "cannot read package %s", change.Source)
	}

	cfg := dfour.StorageConfig{
		SnapshotHash:    change.Target,
		WorkspaceHash:   a.creds.Workspace,
		Username:        a.creds.Username,
		Password:        a.creds.Password,
		SnapshotTopic:   change.Topic,
		BfsMunicipality: change.BfsNumber,
	}
	return a.service.WritePackage(ctx, cfg, pkg)
}
