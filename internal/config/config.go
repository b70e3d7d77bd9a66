package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/schaermu/dfoursync/internal/dfour"
	"github.com/schaermu/dfoursync/internal/domain"
)

// OutputFormat selects how the change report is rendered
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputYAML OutputFormat = "yaml"
	OutputJSON OutputFormat = "json"
	OutputCSV  OutputFormat = "csv"
)

// EnvPrefix is the prefix of every environment variable read by Load
const EnvPrefix = "DFOUR"

// DefaultTimeout bounds every network call
const DefaultTimeout = 30 * time.Second

// Options represents the complete dfour configuration for one invocation
type Options struct {
	// Workspace and Folder are the positional arguments of a workspace sync
	Workspace string `mapstructure:"-"`
	Folder    string `mapstructure:"-"`

	Endpoint string `mapstructure:"endpoint"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	DryRun         bool         `mapstructure:"dry"`
	NonInteractive bool         `mapstructure:"yes"`
	Output         OutputFormat `mapstructure:"output"`
	ShowDiff       bool         `mapstructure:"diff"`
	Exclude        []string     `mapstructure:"exclude"`

	Timeout   time.Duration `mapstructure:"timeout"`
	LogLevel  string        `mapstructure:"log-level"`
	LogFormat string        `mapstructure:"log-format"`
}

// DefaultPath returns the path of the optional user config file
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "dfour", "config.yaml")
}

// Load layers defaults, the config file, DFOUR_* environment variables and
// the flags that were set on the command line, in increasing precedence.
// An empty path selects DefaultPath; a missing default file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Options, error) {
	v := viper.New()
	setDefaults(v)

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(os.ExpandEnv(path))
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
				// optional
			default:
				return nil, domain.ConfigurationError("failed to read config file %s: %v", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, domain.ConfigurationError("failed to parse configuration: %v", err)
	}

	opts.expandEnv()
	opts.applyDefaults()

	return &opts, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", dfour.DefaultEndpoint)
	v.SetDefault("output", string(OutputText))
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	// keys without a default are invisible to AutomaticEnv during Unmarshal
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("dry", false)
	v.SetDefault("yes", false)
	v.SetDefault("diff", false)
	v.SetDefault("exclude", []string{})
}

// expandEnv expands environment variables in path-like fields
func (o *Options) expandEnv() {
	o.Folder = os.ExpandEnv(o.Folder)
	o.Endpoint = os.ExpandEnv(o.Endpoint)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (o *Options) applyDefaults() {
	if o.Endpoint == "" {
		o.Endpoint = dfour.DefaultEndpoint
	}
	o.Endpoint = strings.TrimRight(o.Endpoint, "/")
	if o.Output == "" {
		o.Output = OutputText
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.LogFormat == "" {
		o.LogFormat = "text"
	}
}

// Interactive reports whether prompts may be shown
func (o *Options) Interactive() bool {
	return !o.NonInteractive
}

// Validate checks the options shared by every command
func (o *Options) Validate() error {
	u, err := url.Parse(o.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ConfigurationError("endpoint must be an http(s) URL: %q", o.Endpoint)
	}

	switch o.Output {
	case OutputText, OutputYAML, OutputJSON, OutputCSV:
		// valid
	default:
		return domain.ConfigurationError("invalid output format: %s (must be text, yaml, json or csv)", o.Output)
	}

	if o.Timeout < 0 {
		return domain.ConfigurationError("timeout must not be negative: %s", o.Timeout)
	}

	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return domain.ConfigurationError("invalid log level: %s (must be debug, info, warn or error)", o.LogLevel)
	}
	switch o.LogFormat {
	case "text", "json":
	default:
		return domain.ConfigurationError("invalid log format: %s (must be text or json)", o.LogFormat)
	}

	for _, pattern := range o.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return domain.ConfigurationError("invalid exclude pattern: %q", pattern)
		}
	}

	return nil
}

// ValidateSync additionally checks the arguments of a workspace sync
func (o *Options) ValidateSync() error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Workspace == "" {
		return domain.ConfigurationError("a workspace id is required")
	}
	if o.Folder == "" {
		return domain.ConfigurationError("a folder is required")
	}

	info, err := os.Stat(o.Folder)
	if err != nil {
		return domain.ConfigurationError("folder %s is not accessible: %v", o.Folder, err)
	}
	if !info.IsDir() {
		return domain.ConfigurationError("folder %s is not a directory", o.Folder)
	}
	return nil
}
