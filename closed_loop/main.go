package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"boost-regulator-core/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code. Every resource it opens is closed
// before it returns, so main can exit straight after.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("closed_loop", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath  = fs.String("config", "", "YAML config file (defaults when empty)")
		scenPath = fs.String("scenario", "", "Scenario JSON for the sim backend")
		logLevel = fs.String("log", "", "trace|debug|info|warn|error|critical (overrides config)")
		logFile  = fs.String("logfile", "", "Log file path (overrides config)")
		summary  = fs.Bool("summary", true, "Print a state residency summary on exit")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = LoadConfig(*cfgPath); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}

	log, err := utils.NewFileLogger(cfg.Log.File, utils.ParseLevel(cfg.Log.Level), cfg.Log.Stdout)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: cannot open %s: %v\n", cfg.Log.File, err)
		return 1
	}
	defer log.Close()

	runner, err := NewRunner(ctx, cfg, *scenPath, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return 1
	}
	defer runner.Close()

	err = runner.Run(ctx)
	if *summary {
		fmt.Fprintln(stdout, runner.Stats().Render())
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		return 1
	}
	return 0
}
