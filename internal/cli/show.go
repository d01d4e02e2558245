package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the stored snapshot of a document",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := rootOpts.app()
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := app.Store.Load(cmd.Context(), app.Config.Document.ID)
			if err != nil {
				return err
			}
			snapshot, err := rec.Snapshot()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "doc: %s\nversion: %d\nchecksum: %016x\nentities: %d\n",
				rec.DocID, rec.Version, rec.Checksum, len(snapshot))
			return writeJSON(out, snapshot)
		},
	}
}
