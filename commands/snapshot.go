package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/penwyp/go-fade-canvas/internal/application/engine"
	"github.com/penwyp/go-fade-canvas/internal/data/companion"
	"github.com/penwyp/go-fade-canvas/internal/data/gridfile"
	"github.com/spf13/cobra"
)

var snapshotImage string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [label...]",
	Short: "Capture a snapshot of a stopped canvas",
	Long: `Captures the persisted grid and companion state as a new snapshot. The data directory
must not be in use; while a server runs, request snapshots through its HTTP API instead.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVar(&snapshotImage, "image", "",
		"PNG file to attach as the snapshot preview")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	label := strings.Join(args, " ")

	var image []byte
	if snapshotImage != "" {
		if image, err = os.ReadFile(expandPath(snapshotImage)); err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
	}

	watcher, err := companion.NewWatcher(cfg.CompanionFile)
	if err != nil {
		return err
	}
	defer watcher.Close()

	eng, err := engine.New(cfg, engine.Options{Companion: watcher})
	if errors.Is(err, gridfile.ErrLocked) {
		return fmt.Errorf("%s is in use by a running server; POST /api/snapshot instead", cfg.DataDir)
	}
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := context.Background()
	meta, err := eng.RequestSnapshot(ctx, label)
	if err != nil {
		return err
	}
	if len(image) > 0 {
		attached, err := eng.AttachSnapshotImage(ctx, meta.ID, image)
		if err != nil {
			return fmt.Errorf("snapshot %s captured but the image was not attached: %w", meta.ID, err)
		}
		meta = attached
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", meta.ID, meta.Timestamp.Format("2006-01-02 15:04:05"), meta.Label)
	return nil
}
