package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/dfoursync/internal/config"
	"github.com/schaermu/dfoursync/internal/datapackage"
	"github.com/schaermu/dfoursync/internal/dfour"
	"github.com/schaermu/dfoursync/internal/domain"
	"github.com/schaermu/dfoursync/internal/exitcode"
	"github.com/schaermu/dfoursync/internal/manifest"
	"github.com/schaermu/dfoursync/internal/sync"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string

	// Workspace command flags
	asYAML bool
	asJSON bool
	asCSV  bool

	// Pull command flags
	pullResource string

	// Push command flags
	pushWorkspace string
	pushSnapshot  string
	pushTopic     string
	pushBfs       int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitcode.For(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "dfour",
	Short: "Synchronize data package snapshots with a dfour workspace",
	Long: `dfour keeps a folder of data package files and a dfour workspace in sync.

Each local file is one snapshot. Files missing remotely are uploaded, snapshots
missing locally are downloaded, and when both sides differ the side with the
newer modification time wins.`,
	SilenceUsage: true,
}

var workspaceCmd = &cobra.Command{
	Use:   "workspace <workspace_id> <folder>",
	Short: "Synchronize a folder with a workspace",
	Long: `Workspace compares the package files in folder with the snapshots of the
workspace, prints the planned changes and applies them after confirmation.

Topic and bfs number of every snapshot are kept in the folder's dfour.yaml.
Uploads need a username and password; --dry only shows the plan.`,
	Args: cobra.ExactArgs(2),
	RunE: runWorkspace,
}

var pullCmd = &cobra.Command{
	Use:   "pull <snapshot> [file]",
	Short: "Download a single snapshot into a package file",
	Long: `Pull fetches the package of a snapshot and writes it to file, or to
<name>.json in the current directory. With --resource only that resource is
printed to stdout.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPull,
}

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Upload a package file into a workspace",
	Long: `Push uploads a package file. It overwrites --snapshot when given, otherwise
the snapshot in the workspace with the same title, otherwise it creates a new
snapshot from --topic and --bfs.`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "dfour %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.Version = version

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/dfour/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().Duration("timeout", config.DefaultTimeout, "timeout of every request to the service")
	rootCmd.PersistentFlags().StringP("endpoint", "e", dfour.DefaultEndpoint, "URL of the dfour instance")
	rootCmd.PersistentFlags().StringP("username", "u", "", "login name, or env:NAME to read it from $NAME")
	rootCmd.PersistentFlags().StringP("password", "p", "", "password, or env:NAME to read it from $NAME")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "never prompt; missing metadata becomes an error")

	// Workspace command flags
	workspaceCmd.Flags().Bool("dry", false, "show what would be done without making changes")
	workspaceCmd.Flags().Bool("diff", false, "show a content diff for every replaced snapshot")
	workspaceCmd.Flags().StringSlice("exclude", nil, "glob of file names to ignore (repeatable)")
	workspaceCmd.Flags().BoolVar(&asYAML, "yaml", false, "print the change list as YAML")
	workspaceCmd.Flags().BoolVar(&asJSON, "json", false, "print the change list as JSON")
	workspaceCmd.Flags().BoolVar(&asCSV, "csv", false, "print the change list as CSV")
	workspaceCmd.MarkFlagsMutuallyExclusive("yaml", "json", "csv")

	// Pull command flags
	pullCmd.Flags().StringVar(&pullResource, "resource", "", "print only the named resource")

	// Push command flags
	pushCmd.Flags().StringVar(&pushWorkspace, "workspace", "", "workspace the snapshot belongs to")
	pushCmd.Flags().StringVar(&pushSnapshot, "snapshot", "", "snapshot to overwrite")
	pushCmd.Flags().StringVar(&pushTopic, "topic", "", "topic of a newly created snapshot")
	pushCmd.Flags().IntVar(&pushBfs, "bfs", 0, "municipality bfs number of a newly created snapshot")
	_ = pushCmd.MarkFlagRequired("workspace")

	// Add commands
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(versionCmd)
}

func runWorkspace(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	opts.Workspace, opts.Folder = args[0], args[1]
	if err := opts.ValidateSync(); err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)
	prompter := sync.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	if !opts.DryRun {
		if err := ensurePassword(opts, prompter); err != nil {
			return err
		}
	}

	unlock, err := manifest.Lock(opts.Folder)
	if err != nil {
		return domain.LocalIOError(err, "cannot lock %s", opts.Folder)
	}
	defer func() {
		if err := unlock(); err != nil {
			logger.Warn("failed to release sync lock", "error", err)
		}
	}()

	connect := func(endpoint string) dfour.Service {
		return dfour.NewClient(endpoint, opts.Timeout, logger)
	}
	engine := sync.NewEngine(opts, afero.NewOsFs(), connect, prompter, cmd.OutOrStdout(), logger)

	if _, err := engine.Run(ctx); err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)

	client := dfour.NewClient(opts.Endpoint, opts.Timeout, logger)
	storage := dfour.NewStorage(client, dfour.StorageConfig{SnapshotHash: args[0]})

	if pullResource != "" {
		res, err := storage.ReadResource(ctx, pullResource)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "    ")
		return enc.Encode(res)
	}

	pkg, err := storage.ReadPackage(ctx)
	if err != nil {
		return err
	}
	if err := datapackage.Validate(pkg); err != nil {
		logger.Warn("package does not match the data package profile", "snapshot", args[0], "error", err)
	}

	path, err := pullTarget(args, pkg)
	if err != nil {
		return err
	}
	if err := sync.WritePackageFile(afero.NewOsFs(), path, pkg, time.Time{}); err != nil {
		return domain.LocalIOError(err, "cannot write snapshot %s to %s", args[0], path)
	}

	logger.Info("snapshot downloaded", "snapshot", args[0], "path", path)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// pullTarget returns the file argument, or <name>.json for the package
func pullTarget(args []string, pkg datapackage.Descriptor) (string, error) {
	if len(args) > 1 && args[1] != "" {
		return args[1], nil
	}
	name, err := datapackage.ResolveName(pkg)
	if err != nil {
		return "", domain.ConfigurationError("snapshot %s needs a file argument: %v", args[0], err)
	}
	return name + datapackage.Extension, nil
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)

	if err := ensurePassword(opts, sync.NewTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())); err != nil {
		return err
	}

	pkg, err := datapackage.Load(afero.NewOsFs(), args[0])
	if err != nil {
		return domain.LocalIOError(err, "cannot read package %s", args[0])
	}

	client := dfour.NewClient(opts.Endpoint, opts.Timeout, logger)
	storage := dfour.NewStorage(client, dfour.StorageConfig{
		SnapshotHash:    pushSnapshot,
		WorkspaceHash:   pushWorkspace,
		Username:        opts.Username,
		Password:        opts.Password,
		SnapshotTopic:   pushTopic,
		BfsMunicipality: pushBfs,
	})

	pk, err := storage.WritePackage(ctx, pkg)
	if err != nil {
		logger.Error("push failed", "file", args[0], "error", err)
		return err
	}

	logger.Info("package uploaded", "file", args[0], "pk", pk)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), pk)
	return nil
}

// loadOptions layers the config file, environment and the flags of cmd
func loadOptions(cmd *cobra.Command) (*config.Options, error) {
	opts, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	switch {
	case asYAML:
		opts.Output = config.OutputYAML
	case asJSON:
		opts.Output = config.OutputJSON
	case asCSV:
		opts.Output = config.OutputCSV
	}
	return opts, nil
}

type passwordReader interface {
	Password(label string) (string, error)
}

// ensurePassword asks for the password when only a username is configured
// and prompting is allowed.
func ensurePassword(opts *config.Options, p passwordReader) error {
	if opts.Username == "" || opts.Password != "" || !opts.Interactive() {
		return nil
	}
	password, err := p.Password(fmt.Sprintf("Password for %s", dfour.ResolveCredential(opts.Username)))
	if err != nil {
		return err
	}
	opts.Password = password
	return nil
}

func setupLogger(w io.Writer, logLevel, logFormat string) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Reports go to stdout, so logs stay on w
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
