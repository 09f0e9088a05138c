package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sealpost/sealpost/internal/correlation"
)

func newLocatorsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locators",
		Short: "Move message locators between correlation stores",
		Long: `Locators never go on the ledger. A sender exports the records for the
messages a recipient should read, and the recipient imports them before
running "sealpost inbox".`,
	}
	cmd.AddCommand(newLocatorsExportCommand(flags), newLocatorsImportCommand(flags))
	return cmd
}

func openCorrelation(flags *globalFlags) (*correlation.BoltStore, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%v': %v", flags.ConfigFile, err)
	}
	return correlation.OpenBoltStore(cfg.Client.CorrelationFile)
}

func newLocatorsExportCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [id...]",
		Short: "Export correlation records as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make(map[uint64]struct{}, len(args))
			for _, a := range args {
				id, err := parseID(a)
				if err != nil {
					return err
				}
				ids[id] = struct{}{}
			}
			var filter func(correlation.Record) bool
			if len(ids) > 0 {
				filter = func(r correlation.Record) bool {
					_, ok := ids[r.ID]
					return ok
				}
			}

			store, err := openCorrelation(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := correlation.Export(cmd.Context(), store, w, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func newLocatorsImportCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import correlation records from JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return importLocators(cmd.Context(), flags, r, cmd.ErrOrStderr())
		},
	}
}

func importLocators(ctx context.Context, flags *globalFlags, r io.Reader, log io.Writer) error {
	store, err := openCorrelation(flags)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := correlation.Import(ctx, store, r)
	if err != nil {
		return err
	}
	fmt.Fprintf(log, "imported %d records\n", n)
	return nil
}
