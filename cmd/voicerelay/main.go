// Voicerelay is an HTTP relay for short voice-transcribed utterances.
//
// It sanitizes and validates incoming transcripts, throttles abusive
// callers, forwards the survivors to an OpenAI-compatible completion
// endpoint with a fixed persona prompt, and returns a cleaned,
// speakable reply. A bounded in-memory log keeps the recent exchanges.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); without one, the
// defaults plus the GROQ_API_KEY environment variable are enough.
//
// Usage:
//
//	voicerelay serve             Start the HTTP server
//	voicerelay init [dir]        Write an example config.yaml
//	voicerelay ask <text>        Run one utterance through the pipeline (for testing)
//	voicerelay version           Print version and build information
//	voicerelay -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rhyniox/voicerelay/internal/admission"
	"github.com/rhyniox/voicerelay/internal/api"
	"github.com/rhyniox/voicerelay/internal/buildinfo"
	"github.com/rhyniox/voicerelay/internal/completion"
	"github.com/rhyniox/voicerelay/internal/config"
	"github.com/rhyniox/voicerelay/internal/history"
	"github.com/rhyniox/voicerelay/internal/metrics"
	"github.com/rhyniox/voicerelay/internal/prompts"
	"github.com/rhyniox/voicerelay/internal/relay"
	"github.com/rhyniox/voicerelay/internal/sanitize"
	"github.com/rhyniox/voicerelay/internal/speech"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are injected:
// ctx controls process lifetime (cancelling it triggers graceful
// shutdown), stdout/stderr receive all output, and args is os.Args[1:].
// Arguments are parsed by hand — the flag package's package-level
// globals get in the way of calling run concurrently from tests, and
// the argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := ""
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: voicerelay ask <text>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Voicerelay - voice assistant HTTP relay")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: voicerelay [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the HTTP server")
	fmt.Fprintln(w, "  ask          Run one utterance through the pipeline (for testing)")
	fmt.Fprintln(w, "  init [dir]   Write an example config.yaml")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/voicerelay/config.yaml, /etc/voicerelay/config.yaml")
	return nil
}

// runAsk handles the "voicerelay ask <text>" subcommand. It runs a
// single utterance through the validation, prompt, completion, and
// post-processing stages without starting the server or the throttles.
// Useful for smoke tests and prompt tuning.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	result := sanitize.NewValidator(nil).Validate(text)
	if !result.OK {
		return fmt.Errorf("input rejected: %s", result.Reason)
	}

	completer := completion.NewClient(completion.Config{
		APIKey:      cfg.Completion.APIKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
	}, logger)

	askCtx, cancel := context.WithTimeout(ctx, cfg.Completion.Timeout())
	defer cancel()

	raw, err := completer.Ask(askCtx, prompts.System("", relay.ModeLive), result.Cleaned)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, speech.Speakable(raw))
	return nil
}

// runServe handles the "voicerelay serve" subcommand: load config, wire
// the pipeline, start the prune schedule and the HTTP server, and block
// until a shutdown signal arrives. SIGINT/SIGTERM cancel the context,
// the server drains in-flight requests, and the cron runner stops via
// defer.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting voicerelay", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger only covers the banner.
	{
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Completion.Model,
		"base_url", cfg.Completion.BaseURL,
	)

	if cfg.Completion.APIKey == "" {
		// Not fatal at startup: every other endpoint still works, and
		// /ask reports the misconfiguration explicitly.
		logger.Warn("no completion API key configured - /ask will fail until GROQ_API_KEY is set")
	}

	// --- Pipeline state ---
	// All mutable state lives here and is injected into the server.
	gates := admission.NewController(
		admission.NewRateGate(cfg.Limits.RateWindow(), cfg.Limits.RateMax),
		admission.NewCooldownGate(cfg.Limits.Cooldown()),
	)
	validator := sanitize.NewValidator(nil)
	log := history.NewLog()

	completer := completion.NewClient(completion.Config{
		APIKey:      cfg.Completion.APIKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		MaxTokens:   cfg.Completion.MaxTokens,
		Temperature: cfg.Completion.Temperature,
	}, logger)

	// --- History pruning ---
	// One prune at startup, then on a fixed schedule. The log is empty
	// at boot, but running the prune anyway keeps the lifecycle uniform.
	prune := func() {
		removed := log.Prune(cfg.History.Retention())
		metrics.HistoryEntries.Set(float64(log.Len()))
		logger.Info("history pruned", "removed", removed, "remaining", log.Len())
	}
	prune()

	runner := cron.New()
	if _, err := runner.AddFunc(fmt.Sprintf("@every %dh", cfg.History.PruneEveryHrs), prune); err != nil {
		return fmt.Errorf("schedule history prune: %w", err)
	}
	runner.Start()
	defer runner.Stop()

	// --- HTTP server ---
	server := api.NewServer(cfg, gates, validator, completer, log, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger builds an slog.Logger writing to w at the given level.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration. A missing
// config file is not an error — every setting has a default and the
// API key can come from the environment.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit == "" && errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			cfg.ApplyEnv()
			return cfg, "(defaults)", nil
		}
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
