package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/constants"
	"github.com/penwyp/go-fade-canvas/internal/core/lifespan"
)

// Config contains configuration for the canvas engine
type Config struct {
	// Data directory holding the grid arrays, snapshots, gallery and lock file
	DataDir string

	// Grid dimensions
	Width  int
	Height int

	// Repaint behaviour
	RepaintPolicy    string // always, never, diff_color_refresh
	RefreshOnRepaint bool   // overrides RepaintPolicy for a>0 writes

	// Aging and autosnapshot
	FadeTick          time.Duration
	BurstWindow       time.Duration
	BurstThreshold    int
	AutosnapIdleAfter time.Duration
	AutosnapLabel     string

	// Incremental sync
	EventLogCapacity int

	// Lifespan sampling; Seed 0 seeds from the clock
	Lifespan lifespan.Params
	Seed     uint64

	// Companion avatar state file; defaults to <DataDir>/babyState.json
	CompanionFile string

	// Display timezone for logs and reports
	Timezone string
}

// DefaultConfig returns the reference deployment's settings.
func DefaultConfig() Config {
	return Config{
		DataDir:           "~/.go-fade-canvas",
		Width:             constants.GridWidth,
		Height:            constants.GridHeight,
		RepaintPolicy:     canvas.RepaintDiffColorRefresh.String(),
		RefreshOnRepaint:  true,
		FadeTick:          constants.FadeTick,
		BurstWindow:       constants.BurstWindow,
		BurstThreshold:    constants.BurstThresholdPx,
		AutosnapIdleAfter: constants.AutosnapIdleAfter,
		AutosnapLabel:     constants.AutosnapLabel,
		EventLogCapacity:  constants.EventLogCapacity,
		Lifespan:          lifespan.DefaultParams(),
		Timezone:          "Local",
	}
}

// Validate fills zero values with defaults and checks the rest
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Width == 0 {
		c.Width = def.Width
	}
	if c.Height == 0 {
		c.Height = def.Height
	}
	if c.RepaintPolicy == "" {
		c.RepaintPolicy = def.RepaintPolicy
	}
	if c.FadeTick == 0 {
		c.FadeTick = def.FadeTick
	}
	if c.BurstWindow == 0 {
		c.BurstWindow = def.BurstWindow
	}
	if c.BurstThreshold == 0 {
		c.BurstThreshold = def.BurstThreshold
	}
	if c.AutosnapIdleAfter == 0 {
		c.AutosnapIdleAfter = def.AutosnapIdleAfter
	}
	if c.AutosnapLabel == "" {
		c.AutosnapLabel = def.AutosnapLabel
	}
	if c.EventLogCapacity == 0 {
		c.EventLogCapacity = def.EventLogCapacity
	}
	if c.Lifespan == (lifespan.Params{}) {
		c.Lifespan = def.Lifespan
	}
	if c.CompanionFile == "" {
		c.CompanionFile = filepath.Join(c.DataDir, "babyState.json")
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	if c.Width < 1 || c.Height < 1 || c.Width > 4096 || c.Height > 4096 {
		return fmt.Errorf("invalid grid size %dx%d", c.Width, c.Height)
	}
	if c.FadeTick < 0 || c.BurstWindow < 0 || c.AutosnapIdleAfter < 0 {
		return fmt.Errorf("durations must be positive")
	}
	if c.BurstThreshold < 0 || c.EventLogCapacity < 0 {
		return fmt.Errorf("burst threshold and event log capacity must be positive")
	}
	if _, err := canvas.ParseRepaintPolicy(c.RepaintPolicy); err != nil {
		return err
	}
	return c.Lifespan.Validate()
}

// StoreOptions converts the repaint settings. Call after Validate.
func (c Config) StoreOptions() canvas.Options {
	policy, _ := canvas.ParseRepaintPolicy(c.RepaintPolicy)
	return canvas.Options{Policy: policy, RefreshOnRepaint: c.RefreshOnRepaint}
}

func (c Config) GridDir() string     { return filepath.Join(c.DataDir, "grid") }
func (c Config) SnapshotDir() string { return filepath.Join(c.DataDir, "snapshots") }
func (c Config) GalleryPath() string { return filepath.Join(c.DataDir, "gallery.db") }

// Environment overrides, applied on top of flags.
const (
	EnvDataDir          = "FADE_CANVAS_DATA_DIR"
	EnvRepaintPolicy    = "FADE_CANVAS_REPAINT_POLICY"
	EnvRefreshOnRepaint = "FADE_CANVAS_REFRESH_ON_REPAINT"
	EnvFadeTick         = "FADE_CANVAS_FADE_TICK"
	EnvBurstWindow      = "FADE_CANVAS_BURST_WINDOW"
	EnvBurstThreshold   = "FADE_CANVAS_BURST_THRESHOLD"
	EnvAutosnapIdle     = "FADE_CANVAS_AUTOSNAP_IDLE"
	EnvEventLogCapacity = "FADE_CANVAS_EVENT_LOG_CAPACITY"
	EnvPShort           = "FADE_CANVAS_P_SHORT"
	EnvPMedium          = "FADE_CANVAS_P_MEDIUM"
	EnvPLong            = "FADE_CANVAS_P_LONG"
	EnvJitter           = "FADE_CANVAS_JITTER"
	EnvMinFade          = "FADE_CANVAS_MIN_FADE_SECONDS"
	EnvCompanionFile    = "FADE_CANVAS_COMPANION_FILE"
)

// ApplyEnv overrides fields from FADE_CANVAS_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	fail := func(key, v string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(key, v, err)
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(key, v, err)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				fail(key, v, err)
				return
			}
			*dst = f
		}
	}

	str(EnvDataDir, &c.DataDir)
	str(EnvRepaintPolicy, &c.RepaintPolicy)
	str(EnvCompanionFile, &c.CompanionFile)
	if v, ok := lookup(EnvRefreshOnRepaint); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(EnvRefreshOnRepaint, v, err)
		} else {
			c.RefreshOnRepaint = b
		}
	}
	dur(EnvFadeTick, &c.FadeTick)
	dur(EnvBurstWindow, &c.BurstWindow)
	dur(EnvAutosnapIdle, &c.AutosnapIdleAfter)
	integer(EnvBurstThreshold, &c.BurstThreshold)
	integer(EnvEventLogCapacity, &c.EventLogCapacity)
	float(EnvPShort, &c.Lifespan.PShort)
	float(EnvPMedium, &c.Lifespan.PMedium)
	float(EnvPLong, &c.Lifespan.PLong)
	float(EnvJitter, &c.Lifespan.Jitter)
	float(EnvMinFade, &c.Lifespan.MinFade)
	return firstErr
}
