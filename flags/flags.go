package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "TESTMUX"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	ExpectedWorkers = &cli.IntFlag{
		Name:    "expected-workers",
		Value:   -1,
		EnvVars: prefixEnvVars("EXPECTED_WORKERS"),
		Usage:   "Total number of test-file workers scheduled for this run (required unless set in the config file)",
	}
	Reporter = &cli.StringFlag{
		Name:    "reporter",
		Value:   "summary",
		EnvVars: prefixEnvVars("REPORTER"),
		Usage:   "Reporter to render results with: a built-in name, a registered name, or a path to a .tmpl file",
	}
	Input = &cli.StringFlag{
		Name:    "input",
		Value:   "-",
		EnvVars: prefixEnvVars("INPUT"),
		Usage:   "Wire stream to read NDJSON worker events from ('-' for stdin)",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to a YAML run config file (flags take precedence)",
	}
	ListenAddr = &cli.StringFlag{
		Name:    "listen",
		Value:   "",
		EnvVars: prefixEnvVars("LISTEN"),
		Usage:   "Address for the health/metrics HTTP server (empty disables it)",
	}
	CaptureLimit = &cli.IntFlag{
		Name:    "capture-limit",
		Value:   0,
		EnvVars: prefixEnvVars("CAPTURE_LIMIT"),
		Usage:   "Max bytes of raw output retained per worker before merge (0 for the default)",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: debug, info, warn, error",
	}
)

var Flags = []cli.Flag{
	ExpectedWorkers,
	Reporter,
	Input,
	ConfigFile,
	ListenAddr,
	CaptureLimit,
	LogLevel,
}

// CheckRequired verifies the settings that cannot default. The expected
// worker count may come from either the flag or the config file; with
// neither present the run cannot know when it is finished.
func CheckRequired(ctx *cli.Context) error {
	if !ctx.IsSet(ExpectedWorkers.Name) && !ctx.IsSet(ConfigFile.Name) {
		return fmt.Errorf("flag %s is required (or supply it via --%s)", ExpectedWorkers.Name, ConfigFile.Name)
	}
	return nil
}
