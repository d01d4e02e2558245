package cli

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/worldsync/internal/core/docsync"
	"github.com/zeusync/worldsync/internal/core/document/memory"
	"github.com/zeusync/worldsync/internal/core/storage"
	"github.com/zeusync/worldsync/internal/injector"
)

var ErrVerifyFailed = errors.New("round trip verification failed")

type VerifyOptions struct {
	*RootOptions
	Parallel int
}

type verifyResult struct {
	docID    string
	version  int64
	stored   uint64
	restored uint64
	err      error
}

func (r verifyResult) ok() bool {
	return r.err == nil && r.stored == r.restored
}

func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every stored document survives a world round trip",
		Long: `For every stored document, seed a fresh world from the snapshot, project
the world back into a document and compare checksums. A mismatch means the
stored document is not in the canonical form of its component schemas.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "documents verified concurrently")
	return cmd
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, cleanup, err := opts.app()
	if err != nil {
		return err
	}
	defer cleanup()

	ids, err := app.Store.List(ctx)
	if err != nil {
		return err
	}

	results := make([]verifyResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}
	for i, id := range ids {
		g.Go(func() error {
			res, err := verifyDocument(gctx, app, id)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range results {
		switch {
		case r.err != nil:
			failed++
			fmt.Fprintf(out, "FAIL %s v%d: %v\n", r.docID, r.version, r.err)
		case !r.ok():
			failed++
			fmt.Fprintf(out, "DRIFT %s v%d stored=%016x restored=%016x\n", r.docID, r.version, r.stored, r.restored)
		default:
			fmt.Fprintf(out, "ok %s v%d %016x\n", r.docID, r.version, r.stored)
		}
	}
	if failed > 0 {
		return errors.Wrapf(ErrVerifyFailed, "%d of %d documents", failed, len(results))
	}
	return nil
}

// verifyDocument returns an error only for storage failures; sync failures
// are reported in the result.
func verifyDocument(ctx context.Context, app *injector.App, docID string) (verifyResult, error) {
	rec, err := app.Store.Load(ctx, docID)
	if err != nil {
		return verifyResult{}, err
	}
	res := verifyResult{docID: docID, version: rec.Version, stored: rec.Checksum}

	snapshot, err := rec.Snapshot()
	if err != nil {
		res.err = err
		return res, nil
	}
	doc, err := memory.New(snapshot)
	if err != nil {
		res.err = err
		return res, nil
	}
	w := app.NewWorld()
	session, err := docsync.CreateSync(ctx, app.Registry, w, doc, docsync.WithLogger(app.Log))
	if err != nil {
		res.err = err
		return res, nil
	}
	defer session.Dispose()

	projected, err := docsync.Project(w)
	if err != nil {
		res.err = err
		return res, nil
	}
	_, res.restored, err = storage.Encode(projected)
	if err != nil {
		res.err = err
	}
	return res, nil
}
