package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/testmux/testmux"
	"github.com/testmux/testmux/exitcodes"
	"github.com/testmux/testmux/flags"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "testmux"
	app.Usage = "Aggregate parallel test-run output into one ordered report"
	app.Description = "testmux reads NDJSON worker events from a wire stream, replays each " +
		"worker's run in order once it completes, and exits with the aggregate failure count."
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// ConfigErrors, RuntimeErrors and anything else fatal share the
			// reserved exit code so failure counts stay unambiguous.
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.ConfigErr))
		}
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logger, err := newLogger(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.ConfigErr)
	}
	log.SetDefault(logger)

	if err := flags.CheckRequired(ctx); err != nil {
		return testmux.NewConfigError(err)
	}

	cfg, err := testmux.NewConfig(ctx, logger)
	if err != nil {
		return err
	}

	input, closeInput, err := openInput(cfg.Input)
	if err != nil {
		return testmux.NewConfigError(err)
	}
	defer closeInput()

	svc, err := testmux.New(cfg)
	if err != nil {
		return err
	}

	failures, err := svc.Run(ctx.Context, input)
	if err != nil {
		return err
	}
	if failures > 0 {
		return cli.Exit(fmt.Sprintf("%d failing", failures), exitcodes.FromFailures(failures))
	}
	return nil
}

func newLogger(level string) (log.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)), nil
}

func openInput(name string) (io.Reader, func(), error) {
	if name == "-" || name == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input %s: %w", name, err)
	}
	return f, func() { _ = f.Close() }, nil
}
