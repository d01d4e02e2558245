// Package cli implements the worldsync command line.
package cli

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/zeusync/worldsync/internal/config"
	"github.com/zeusync/worldsync/internal/injector"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	ConfigPath string
	DocID      string

	config *config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "worldsync",
		Short: "Keep an entity world and a replicated document in sync",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults when empty)")
	cmd.PersistentFlags().StringVar(&opts.DocID, "doc", "", "document id (overrides document.id)")

	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.LoadFile(o.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if o.DocID != "" {
		cfg.Document.ID = o.DocID
	}
	o.config = cfg
	return nil
}

func (o *RootOptions) app() (*injector.App, func(), error) {
	if o.config == nil {
		if err := o.load(); err != nil {
			return nil, nil, err
		}
	}
	return injector.InitializeApp(o.config)
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(out, '\n'))
	return err
}
