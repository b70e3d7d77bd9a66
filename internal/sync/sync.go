package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/schaermu/dfoursync/internal/config"
	"github.com/schaermu/dfoursync/internal/dfour"
	"github.com/schaermu/dfoursync/internal/domain"
	"github.com/schaermu/dfoursync/internal/manifest"
)

// ServiceFactory connects to the instance at endpoint
type ServiceFactory func(endpoint string) dfour.Service

// Engine orchestrates the workspace sync
type Engine struct {
	opts     *config.Options
	fs       afero.Fs
	connect  ServiceFactory
	prompter Prompter
	out      io.Writer
	logger   *slog.Logger
}

// NewEngine creates a new sync engine. The report is written to out; the
// prompter is only used in interactive runs.
func NewEngine(opts *config.Options, fs afero.Fs, connect ServiceFactory, prompter Prompter, out io.Writer, logger *slog.Logger) *Engine {
	return &Engine{
		opts:     opts,
		fs:       fs,
		connect:  connect,
		prompter: prompter,
		out:      out,
		logger:   logger,
	}
}

// Run executes the complete sync process. Read failures abort the run;
// apply failures are collected per change and returned joined.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString(), Plan: &Plan{}}
	logger := e.logger.With("run_id", result.RunID)

	logger.Info("starting sync",
		"workspace", e.opts.Workspace,
		"folder", e.opts.Folder,
		"dry_run", e.opts.DryRun)

	m, err := e.loadManifest()
	if err != nil {
		return result, err
	}

	// The endpoint recorded for the workspace wins over the option
	result.Endpoint = m.Endpoint(e.opts.Workspace)
	if result.Endpoint == "" {
		result.Endpoint = e.opts.Endpoint
	}
	service := e.connect(result.Endpoint)

	local, err := NewLocalReader(e.fs, m, e.opts.Workspace, e.opts.Exclude, e.interactivePrompter(), logger).Read(e.opts.Folder)
	if err != nil {
		return result, fmt.Errorf("failed to read local snapshots: %w", err)
	}
	remote, err := NewRemoteReader(service, logger).Read(ctx, e.opts.Workspace)
	if err != nil {
		return result, fmt.Errorf("failed to read remote snapshots: %w", err)
	}
	result.Snapshots = countNames(local, remote)

	diffs := Diff(remote, local)
	result.Plan = Classify(diffs, remote, local, e.opts.Folder)

	logger.Info("sync plan",
		"snapshots", result.Snapshots,
		"differences", len(diffs),
		"changes", len(result.Plan.Changes),
		"conflicts", len(result.Plan.Conflicts))
	for _, c := range result.Plan.Conflicts {
		logger.Warn("conflicting snapshot requires a manual merge",
			"name", c.Name, "local", c.LocalPath, "pk", c.RemotePK, "modified", c.Modified)
	}

	report := Report{
		Snapshots: result.Snapshots,
		Changes:   result.Plan.Changes,
		Conflicts: result.Plan.Conflicts,
	}
	if e.opts.ShowDiff {
		report.Previews = previews(result.Plan.Changes, local, remote, logger)
	}
	if err := Render(e.out, e.opts.Output, report); err != nil {
		return result, fmt.Errorf("failed to render report: %w", err)
	}

	if result.Plan.Empty() {
		logger.Info("nothing to apply")
		return result, nil
	}
	if e.opts.DryRun {
		e.logPlanDetails(logger, result.Plan)
		logger.Info("dry-run complete, no changes applied")
		return result, nil
	}

	if p := e.interactivePrompter(); p != nil {
		ok, err := p.Confirm(fmt.Sprintf("Apply %d change(s)?", len(result.Plan.Changes)))
		if err != nil {
			return result, err
		}
		if !ok {
			return result, domain.ErrAborted
		}
	}

	creds := Credentials{
		Workspace: e.opts.Workspace,
		Username:  e.opts.Username,
		Password:  e.opts.Password,
	}
	result.Outcomes = NewApplier(e.fs, service, m, creds, logger).Apply(ctx, result.Plan.Changes)

	var errs []error
	for _, o := range result.Outcomes {
		if o.Err != nil {
			logger.Error("change failed", "name", o.Change.Name, "type", o.Change.Kind, "error", o.Err)
			errs = append(errs, fmt.Errorf("%s %q: %w", o.Change.Kind, o.Change.Name, o.Err))
			continue
		}
		logger.Info("change applied", "name", o.Change.Name, "type", o.Change.Kind, "pk", o.PK)
	}
	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}

	logger.Info("sync completed successfully", "applied", len(result.Outcomes))
	return result, nil
}

func (e *Engine) interactivePrompter() Prompter {
	if !e.opts.Interactive() {
		return nil
	}
	return e.prompter
}

// loadManifest reads the folder's manifest, creating it when missing, and
// makes sure it has a section for the workspace.
func (e *Engine) loadManifest() (*manifest.Manifest, error) {
	exists, err := manifest.Exists(e.fs, e.opts.Folder)
	if err != nil {
		return nil, domain.LocalIOError(err, "cannot access %s", manifest.Path(e.opts.Folder))
	}

	var m *manifest.Manifest
	if exists {
		m, err = manifest.Load(e.fs, e.opts.Folder)
		if err != nil {
			return nil, domain.LocalIOError(err, "cannot read %s", manifest.Path(e.opts.Folder))
		}
	} else {
		if p := e.interactivePrompter(); p != nil {
			ok, err := p.Confirm(fmt.Sprintf("%s not found. Create it?", manifest.Path(e.opts.Folder)))
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, domain.ErrAborted
			}
		}
		m = manifest.New(e.fs, e.opts.Folder)
	}

	if m.Ensure(e.opts.Workspace, e.opts.Endpoint) || !exists {
		if err := m.Save(); err != nil {
			return nil, domain.LocalIOError(err, "cannot save %s", m.Path())
		}
		e.logger.Info("manifest initialised", "path", m.Path(), "workspace", e.opts.Workspace)
	}
	return m, nil
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(logger *slog.Logger, plan *Plan) {
	for _, c := range plan.Changes {
		logger.Info("[dry-run] would "+string(c.Kind), "name", c.Name, "source", c.Source, "target", c.Target)
	}
}

// previews renders a content diff for every replace change, from the
// content being overwritten to the content replacing it.
func previews(changes []domain.Change, local, remote map[string]domain.Snapshot, logger *slog.Logger) map[string]string {
	out := make(map[string]string)
	for _, c := range changes {
		var from, to map[string]any
		switch c.Kind {
		case domain.KindDownloadReplace:
			from, to = local[c.Name].Content, remote[c.Name].Content
		case domain.KindUploadReplace:
			from, to = remote[c.Name].Content, local[c.Name].Content
		default:
			continue
		}
		diff, err := ContentDiff(from, to)
		if err != nil {
			logger.Warn("cannot render content diff", "name", c.Name, "error", err)
			continue
		}
		out[c.Name] = diff
	}
	return out
}

// countNames returns the number of distinct names over both sides
func countNames(local, remote map[string]domain.Snapshot) int {
	n := len(local)
	for name := range remote {
		if _, ok := local[name]; !ok {
			n++
		}
	}
	return n
}
