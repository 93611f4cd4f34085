package testmux

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/testmux/testmux/flags"
	"github.com/testmux/testmux/reporting"
)

// Config is the validated configuration of one aggregation run. A Config
// that NewConfig returned without error cannot fail fatally later: the
// reporter selection has already been resolved and the worker count checked.
type Config struct {
	Log log.Logger

	// ExpectedWorkers is the total number of workers that must complete
	// before the run finalizes.
	ExpectedWorkers int

	// Reporter is the resolved selection; NewReporter its factory.
	Reporter    string
	NewReporter reporting.Factory

	// Input names the wire stream source; "-" means stdin.
	Input string

	// ListenAddr is the health/metrics address; empty disables the server.
	ListenAddr string

	// CaptureLimitBytes caps retained raw output per worker (0 = default).
	CaptureLimitBytes int

	// ReporterOut, Stdout and Stderr default to the process streams; tests
	// inject buffers.
	ReporterOut io.Writer
	Stdout      io.Writer
	Stderr      io.Writer
}

// fileConfig is the YAML run config shape. Pointer fields distinguish
// "absent" from zero values so flags can override only what the file left
// unset.
type fileConfig struct {
	ExpectedWorkers   *int   `yaml:"expected_workers"`
	Reporter          string `yaml:"reporter"`
	Listen            string `yaml:"listen"`
	CaptureLimitBytes int    `yaml:"capture_limit_bytes"`
}

// NewConfig merges the optional YAML config file with CLI flags (flags win)
// and validates the result. Every failure here is a ConfigError: the process
// must abort before any test results are produced.
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	cfg := &Config{
		Log:               logger,
		ExpectedWorkers:   -1,
		Reporter:          flags.Reporter.Value,
		Input:             ctx.String(flags.Input.Name),
		CaptureLimitBytes: ctx.Int(flags.CaptureLimit.Name),
	}

	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		file, err := loadFileConfig(path)
		if err != nil {
			return nil, NewConfigError(err)
		}
		if file.ExpectedWorkers != nil {
			cfg.ExpectedWorkers = *file.ExpectedWorkers
		}
		if file.Reporter != "" {
			cfg.Reporter = file.Reporter
		}
		cfg.ListenAddr = file.Listen
		if file.CaptureLimitBytes > 0 {
			cfg.CaptureLimitBytes = file.CaptureLimitBytes
		}
	}

	if ctx.IsSet(flags.ExpectedWorkers.Name) {
		cfg.ExpectedWorkers = ctx.Int(flags.ExpectedWorkers.Name)
	}
	if ctx.IsSet(flags.Reporter.Name) {
		cfg.Reporter = ctx.String(flags.Reporter.Name)
	}
	if ctx.IsSet(flags.ListenAddr.Name) {
		cfg.ListenAddr = ctx.String(flags.ListenAddr.Name)
	}
	if ctx.IsSet(flags.CaptureLimit.Name) {
		cfg.CaptureLimitBytes = ctx.Int(flags.CaptureLimit.Name)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the invariants and resolves the reporter selection.
func (c *Config) validate() error {
	if c.Log == nil {
		return NewConfigError(fmt.Errorf("logger is required"))
	}
	if c.ExpectedWorkers < 0 {
		return NewConfigError(fmt.Errorf("expected worker count is required and must not be negative, got %d", c.ExpectedWorkers))
	}

	factory, err := reporting.Resolve(c.Reporter)
	if err != nil {
		return NewConfigError(err)
	}
	c.NewReporter = factory
	return nil
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &file, nil
}
