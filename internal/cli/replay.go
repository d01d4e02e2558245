package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeusync/worldsync/internal/core/docsync"
	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/document/memory"
	"github.com/zeusync/worldsync/internal/core/events/bus"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/storage"
	"github.com/zeusync/worldsync/internal/core/world"
)

type ReplayOptions struct {
	*RootOptions
	ContinueOnError bool
	DryRun          bool
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay BATCHES.json",
		Short: "Apply recorded change batches to a stored document",
		Long: `Load the stored snapshot of the document (empty when missing), start a
sync session on it and merge every batch from the file as if a remote peer
sent it. The resulting document is printed and saved back.

The file holds a JSON array of batches, each an array of patches:
  [[{"action":"put","path":["e1","Position","x"],"value":5}]]`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.ContinueOnError, "continue-on-error", false, "log failed batches and keep going")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the result without saving it")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, cmd *cobra.Command, path string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	batches, err := readBatches(path)
	if err != nil {
		return err
	}

	app, cleanup, err := opts.app()
	if err != nil {
		return err
	}
	defer cleanup()

	docID := app.Config.Document.ID
	logger := app.Log.With(log.String("doc", docID))

	var initial any
	rec, err := app.Store.Load(ctx, docID)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
	case err != nil:
		return err
	default:
		if initial, err = rec.Snapshot(); err != nil {
			return err
		}
	}

	doc, err := memory.New(initial)
	if err != nil {
		return err
	}
	events := bus.New()
	events.AddObserver(&deliveryLog{log: logger})
	w := app.NewWorld(world.WithEventBus(events))
	session, err := docsync.CreateSync(ctx, app.Registry, w, doc, docsync.WithLogger(logger))
	if err != nil {
		return err
	}
	defer session.Dispose()

	failed := 0
	for i, batch := range batches {
		if err = doc.Merge(batch); err != nil {
			if !opts.ContinueOnError {
				return errors.Wrapf(err, "batch %d", i)
			}
			failed++
			logger.Warn("batch failed", log.Int("batch", i), log.Error(err))
		}
	}

	snapshot, err := doc.Snapshot()
	if err != nil {
		return err
	}
	if err = writeJSON(cmd.OutOrStdout(), snapshot); err != nil {
		return err
	}

	stats := session.Stats()
	summary := fmt.Sprintf("batches=%d failed=%d patches=%d entities=%d events=%d",
		len(batches), failed, stats.PatchesApplied, w.Len(), events.GetMetrics().Published)
	if opts.DryRun {
		fmt.Fprintln(cmd.ErrOrStderr(), summary, "saved=false")
		return nil
	}

	saved, changed, err := app.Store.Save(ctx, docID, snapshot)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s saved=%t version=%d\n", summary, changed, saved.Version)
	return nil
}

func readBatches(path string) ([][]document.Patch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read batches")
	}
	var batches [][]document.Patch
	if err = json.Unmarshal(raw, &batches); err != nil {
		return nil, errors.Wrapf(err, "decode batches %s", path)
	}
	return batches, nil
}

// deliveryLog traces world notifications at debug level.
type deliveryLog struct {
	log log.Log
}

func (d *deliveryLog) OnPublish(string, bus.Event) {}

func (d *deliveryLog) OnDelivered(eventType string, handlers int, err error, durationMicros int64) {
	fields := []log.Field{
		log.String("event", eventType),
		log.Int("handlers", handlers),
		log.Int64("micros", durationMicros),
	}
	if err != nil {
		d.log.Warn("world notification failed", append(fields, log.Error(err))...)
		return
	}
	d.log.Debug("world notification delivered", fields...)
}
