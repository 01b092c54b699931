package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/uploader/internal/adapter"
	"github.com/mattjoyce/uploader/internal/api"
	"github.com/mattjoyce/uploader/internal/config"
	"github.com/mattjoyce/uploader/internal/dispatch"
	"github.com/mattjoyce/uploader/internal/events"
	"github.com/mattjoyce/uploader/internal/hosts"
	"github.com/mattjoyce/uploader/internal/log"
	"github.com/mattjoyce/uploader/internal/protocol"
	"github.com/mattjoyce/uploader/internal/ratelimit"
	"github.com/mattjoyce/uploader/internal/sidecar"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

// runCLI dispatches subcommands. With no command, or only flags, the
// process serves the protocol on stdin/stdout.
func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 || strings.HasPrefix(cliArgs[0], "-") && !isHelpToken(cliArgs[0]) && cliArgs[0] != "--version" {
		return runServe(cliArgs, os.Stdin, os.Stdout)
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args, os.Stdin, os.Stdout)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type serveFlags struct {
	configPath  string
	logLevel    string
	workers     int
	queueSize   int
	fileTimeout time.Duration
	statusAddr  string
}

func parseServeFlags(args []string) (*serveFlags, error) {
	f := &serveFlags{}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file (defaults apply when omitted)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	fs.IntVar(&f.workers, "workers", 0, "Number of concurrent upload workers")
	fs.IntVar(&f.queueSize, "queue-size", 0, "Pending work items before submission blocks")
	fs.DurationVar(&f.fileTimeout, "file-timeout", 0, "Deadline for each file, e.g. 120s")
	fs.StringVar(&f.statusAddr, "status-addr", "", "Serve the status API on this host:port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if f.workers < 0 || f.queueSize < 0 || f.fileTimeout < 0 {
		return nil, errors.New("--workers, --queue-size and --file-timeout must not be negative")
	}
	return f, nil
}

// loadServeConfig reads the config file, if any, and layers flag overrides on top.
func loadServeConfig(f *serveFlags) (*config.Config, error) {
	cfg := config.Defaults()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.workers > 0 {
		cfg.Dispatch.Workers = f.workers
	}
	if f.queueSize > 0 {
		cfg.Dispatch.QueueSize = f.queueSize
		if cfg.Dispatch.QueueWarnDepth > f.queueSize {
			cfg.Dispatch.QueueWarnDepth = f.queueSize / 2
		}
	}
	if f.fileTimeout > 0 {
		cfg.Dispatch.FileTimeout = f.fileTimeout
	}
	if f.statusAddr != "" {
		cfg.Status.Listen = f.statusAddr
	}
	return cfg, nil
}

// runServe speaks the job protocol on stdin and stdout until the input
// closes or a signal arrives. Only failures before the encoder exists
// reach stderr.
func runServe(args []string, stdin io.Reader, stdout io.Writer) int {
	flags, err := parseServeFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadServeConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	enc := protocol.NewEncoder(stdout)
	var hub *events.Hub
	if cfg.Status.Listen != "" {
		hub = events.NewHub(cfg.Status.EventBuffer)
	}
	var emitter protocol.Emitter = enc
	if hub != nil {
		emitter = protocol.Tee(enc, hub)
	}

	log.Setup(cfg.LogLevel, emitter)
	logger := log.WithComponent("main")
	logger.Info("uploader starting",
		"version", version,
		"workers", cfg.Dispatch.Workers,
		"queue_size", cfg.Dispatch.QueueSize,
		"file_timeout", cfg.Dispatch.FileTimeout.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiters := ratelimit.New(cfg.RateLimits)
	registry := adapter.NewRegistry()
	if err := hosts.Register(ctx, registry, hosts.Deps{
		Client:  adapter.NewClient(cfg.HTTP),
		Targets: cfg.Targets,
	}); err != nil {
		logger.Error("failed to register targets", "error", err)
		return 1
	}
	logger.Info("targets registered", "targets", registry.Names())

	disp := dispatch.New(cfg, registry, limiters, emitter)

	var statusDone chan error
	statusCtx, stopStatus := context.WithCancel(context.Background())
	defer stopStatus()
	if cfg.Status.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Status.Listen)
		if err != nil {
			logger.Error("failed to start status server", "listen", cfg.Status.Listen, "error", err)
			return 1
		}
		srv := api.New(api.Config{Listen: cfg.Status.Listen, Token: cfg.Status.Token}, api.Sources{
			Stats:    disp,
			Targets:  registry,
			Limiters: limiters,
			Events:   hub,
		}, log.WithComponent("api"))
		statusDone = make(chan error, 1)
		go func() { statusDone <- srv.Serve(statusCtx, ln) }()
	}

	disp.Start(ctx)

	// Reading stdin cannot be interrupted, so a signal stops waiting for the
	// loop rather than waiting for the loop to notice.
	loopDone := make(chan error, 1)
	go func() {
		st, err := sidecar.Run(ctx, stdin, disp, emitter)
		logger.Info("input loop finished", "jobs", st.Jobs, "malformed", st.Malformed)
		loopDone <- err
	}()

	code := 0
	select {
	case err := <-loopDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("input loop failed", "error", err)
			code = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	disp.Drain()

	if statusDone != nil {
		stopStatus()
		if err := <-statusDone; err != nil {
			logger.Error("status server stopped with error", "error", err)
		}
	}

	st := disp.Stats()
	logger.Info("uploader stopped",
		"succeeded", st.Succeeded,
		"failed", st.Failed,
		"timed_out", st.TimedOut,
		"write_failures", enc.Failures(),
	)
	return code
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: uploader version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("uploader %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		info.Commit = commit
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`uploader - Image upload sidecar speaking JSON lines on stdin/stdout

Usage:
  uploader [serve] [flags]
  uploader <noun> <action> [flags]

Commands:
  serve                 Read jobs from stdin and write events to stdout (default)
  config check          Validate a configuration file and report risky settings
  config hash-update    Write the BLAKE3 checksum next to a configuration file
  version               Show version information

Run 'uploader serve --help' for serve flags.
`)
}

func printServeHelp() {
	fmt.Println("Usage: uploader serve [--config PATH] [--workers N] [--queue-size N] [--file-timeout DURATION] [--log-level LEVEL] [--status-addr HOST:PORT]")
	fmt.Println("Read one JSON job per line from stdin and write one JSON event per line to stdout.")
	fmt.Println("Exits after every queued file has finished once stdin closes.")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
