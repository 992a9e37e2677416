package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/penwyp/go-fade-canvas/internal/application/engine"
	"github.com/penwyp/go-fade-canvas/internal/util"
	"github.com/spf13/cobra"
)

var (
	// Logging related
	debug     bool
	logFile   string
	logFormat string

	// Data path
	dataDir string

	// Display
	timezone string

	rootCmd = &cobra.Command{
		Use:   "go-fade-canvas",
		Short: "Shared pixel canvas whose paint fades away",
		Long: `go-fade-canvas serves a small shared pixel canvas. Every painted pixel lingers, then
fades out on its own randomly sampled schedule until it disappears. Bursts of painting
are captured as snapshots once the painters go quiet.

Examples:
  go-fade-canvas serve                               # Serve on 127.0.0.1:4420
  go-fade-canvas serve --addr :8080 --debug          # Listen on all interfaces with debug logs
  go-fade-canvas inspect                             # Summarize the data directory
  go-fade-canvas inspect -o json                     # Same, as JSON
  go-fade-canvas snapshot "before cleanup"           # Capture a labelled snapshot offline

Settings can also come from FADE_CANVAS_* environment variables; flags win.`,
		SilenceUsage:      true,
		PersistentPreRunE: initLogging,
	}
)

const (
	defaultLogFile = "~/.go-fade-canvas/logs/app.log"
	defaultDataDir = "~/.go-fade-canvas"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", defaultDataDir,
		"Data directory (grid, snapshots, gallery)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "Local",
		"Timezone setting (e.g., Asia/Shanghai, UTC)")

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", defaultLogFile,
		"Log file path (empty logs to stderr only)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", string(util.FormatText),
		"Log format (text, json)")
}

func initLogging(cmd *cobra.Command, args []string) error {
	logLevel := "info"
	if debug {
		logLevel = "debug"
	}
	if logFormat != string(util.FormatText) && logFormat != string(util.FormatJSON) {
		return fmt.Errorf("invalid log format '%s': must be either 'text' or 'json'", logFormat)
	}

	path := ""
	if logFile != "" {
		path = expandPath(logFile)
	}
	return util.InitLogger(util.LoggerOptions{
		Level:   logLevel,
		File:    path,
		Format:  util.LogFormat(logFormat),
		Console: debug,
	})
}

// loadConfig layers defaults, FADE_CANVAS_* variables and explicitly set flags.
func loadConfig(cmd *cobra.Command) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("timezone") {
		cfg.Timezone = timezone
	}
	cfg.DataDir = expandPath(cfg.DataDir)
	if cfg.CompanionFile != "" {
		cfg.CompanionFile = expandPath(cfg.CompanionFile)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
