// Command sealpost runs the sealpost ledger daemon and acts as a client
// of it.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/sealpost/sealpost/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ConfigFile string
	URL        string
	KeysFile   string
	// Correlation defaults to correlation.db next to KeysFile.
	Correlation string
}

// newRootCommand creates the root cobra command
func newRootCommand() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   "sealpost",
		Short: "End-to-end encrypted messages with ledger commitments",
		Long: `sealpost sends end-to-end encrypted messages whose commitments are
recorded on an append-only ledger.

The daemon ("sealpost serve") hosts the ledger and a content-addressed blob
store over HTTP. The remaining commands are a client of a daemon: they
generate and publish keys, send messages and read the inbox.

Configuration is read from a TOML file, a .env file in the working
directory and SEALPOST_* environment variables, in increasing priority.
Command line flags override all three.`,
		Example: `  # Start the daemon
  sealpost serve --config sealpost.toml

  # Create an identity and publish its encryption key
  sealpost keygen
  sealpost publish-key

  # Send a message and read the inbox
  echo "hello" | sealpost send 0x1234...abcd
  sealpost inbox`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "f", "sealpost.toml",
		"path to the configuration file (TOML format)")
	cmd.PersistentFlags().StringVar(&flags.URL, "url", "",
		"daemon base URL (overrides Client.URL)")
	cmd.PersistentFlags().StringVarP(&flags.KeysFile, "keys", "k", "",
		"path to the keys file (overrides Client.KeysFile)")
	cmd.PersistentFlags().StringVar(&flags.Correlation, "correlation", "",
		"path to the correlation store (overrides Client.CorrelationFile)")

	cmd.AddCommand(
		newServeCommand(&flags),
		newKeygenCommand(&flags),
		newAddressCommand(&flags),
		newPublishKeyCommand(&flags),
		newSendCommand(&flags),
		newInboxCommand(&flags),
		newLocatorsCommand(&flags),
	)
	return cmd
}

// loadConfig reads the configuration file and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(f.ConfigFile)
	if err != nil {
		return nil, err
	}
	if f.URL != "" {
		cfg.Client.URL = f.URL
	}
	if f.KeysFile != "" {
		cfg.Client.KeysFile = f.KeysFile
		cfg.Client.CorrelationFile = filepath.Join(filepath.Dir(f.KeysFile), "correlation.db")
	}
	if f.Correlation != "" {
		cfg.Client.CorrelationFile = f.Correlation
	}
	return cfg, nil
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}
