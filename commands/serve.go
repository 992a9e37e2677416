package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/penwyp/go-fade-canvas/internal/application/engine"
	"github.com/penwyp/go-fade-canvas/internal/data/companion"
	"github.com/penwyp/go-fade-canvas/internal/data/gallery"
	"github.com/penwyp/go-fade-canvas/internal/presentation/httpapi"
	"github.com/penwyp/go-fade-canvas/internal/util"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Network
	serveAddr    string
	serveMetrics bool

	// Canvas behaviour
	serveRepaintPolicy    string
	serveRefreshOnRepaint bool
	serveFadeTick         time.Duration
	serveSeed             uint64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the canvas over HTTP",
	Long: `Runs the HTTP API, the aging scheduler and the companion state watcher until interrupted.

The data directory is locked while serving; a second process on the same directory fails
fast instead of corrupting the grid.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:4420",
		"HTTP listen address")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", true,
		"Expose Prometheus metrics on /metrics")

	serveCmd.Flags().StringVar(&serveRepaintPolicy, "repaint-policy", "",
		"Repaint policy (always, never, diff_color_refresh)")
	serveCmd.Flags().BoolVar(&serveRefreshOnRepaint, "refresh-on-repaint", true,
		"Give every repainted pixel a fresh lifespan regardless of policy")
	serveCmd.Flags().DurationVar(&serveFadeTick, "fade-tick", 0,
		"Aging tick period (e.g., 60s)")
	serveCmd.Flags().Uint64Var(&serveSeed, "seed", 0,
		"Lifespan sampler seed (0 = time based)")
}

func applyServeFlags(cmd *cobra.Command, cfg *engine.Config) error {
	flags := cmd.Flags()
	if flags.Changed("repaint-policy") {
		cfg.RepaintPolicy = serveRepaintPolicy
	}
	if flags.Changed("refresh-on-repaint") {
		cfg.RefreshOnRepaint = serveRefreshOnRepaint
	}
	if flags.Changed("fade-tick") {
		cfg.FadeTick = serveFadeTick
	}
	if flags.Changed("seed") {
		cfg.Seed = serveSeed
	}
	return cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, &cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := ensureDir(cfg.DataDir); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	watcher, err := companion.NewWatcher(cfg.CompanionFile)
	if err != nil {
		return err
	}
	defer watcher.Close()

	eng, err := engine.New(cfg, engine.Options{Companion: watcher})
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			util.LogError("Failed to close engine", util.Err(err))
		}
	}()

	store, err := gallery.Open(cfg.GalleryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	router := httpapi.NewRouter(httpapi.Deps{
		Canvas:    eng,
		Companion: watcher,
		Gallery:   store,
		Metrics:   serveMetrics,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return httpapi.Serve(gctx, serveAddr, router) })

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", cfg.DataDir, serveAddr)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
