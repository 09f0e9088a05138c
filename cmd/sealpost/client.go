package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/sealpost/sealpost"
	"github.com/sealpost/sealpost/internal/api"
	"github.com/sealpost/sealpost/internal/config"
	"github.com/sealpost/sealpost/internal/correlation"
)

// session is an open client with the resources it owns.
type session struct {
	client      *sealpost.Client
	correlation *correlation.BoltStore
}

func (s *session) Close() error {
	return errors.Join(s.client.Close(), s.correlation.Close())
}

// openSession loads keys and connects to the daemon named by cfg.
func openSession(cfg *config.Config) (*session, error) {
	keys, err := sealpost.LoadKeys(cfg.Client.KeysFile)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger(os.Stderr)
	apiOpts := []api.Option{api.WithAPIKey(cfg.Client.APIKey), api.WithLogger(logger)}
	if cfg.Client.Retries != 0 {
		apiOpts = append(apiOpts, api.WithRetries(cfg.Client.Retries))
	}
	remote, err := api.New(cfg.Client.URL, apiOpts...)
	if err != nil {
		return nil, err
	}

	corr, err := correlation.OpenBoltStore(cfg.Client.CorrelationFile)
	if err != nil {
		return nil, err
	}

	client, err := sealpost.New(remote, remote, keys,
		sealpost.WithLogger(logger),
		sealpost.WithCorrelationStore(corr),
		sealpost.WithSigning(cfg.Client.Signed),
		sealpost.WithDeliveryStrategy(sealpost.StrategyPolling),
	)
	if err != nil {
		corr.Close()
		return nil, err
	}
	return &session{client: client, correlation: corr}, nil
}

func withSession(flags *globalFlags, fn func(ctx context.Context, cfg *config.Config, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := flags.loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config file '%v': %v", flags.ConfigFile, err)
		}
		s, err := openSession(cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd.Context(), cfg, s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newKeygenCommand(flags *globalFlags) *cobra.Command {
	var force bool
	var scheme string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an identity and encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config file '%v': %v", flags.ConfigFile, err)
			}
			if scheme == "" {
				scheme = cfg.Client.Scheme
			}
			path := cfg.Client.KeysFile
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}

			keys, err := sealpost.GenerateKeys(scheme)
			if err != nil {
				return err
			}
			if err := sealpost.SaveKeys(path, keys); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keys.Address().Hex())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keys file")
	cmd.Flags().StringVar(&scheme, "scheme", "", "key-wrapping scheme (ML-KEM-768 or RSA-OAEP-SHA256)")
	return cmd
}

func newAddressCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print this identity's address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config file '%v': %v", flags.ConfigFile, err)
			}
			keys, err := sealpost.LoadKeys(cfg.Client.KeysFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), keys.Address().Hex())
			return nil
		},
	}
}

func newPublishKeyCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish-key",
		Short: "Store the public key bundle and register it on the ledger",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = withSession(flags, func(ctx context.Context, _ *config.Config, s *session) error {
		rec, err := s.client.PublishKey(ctx)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), rec)
	})
	return cmd
}

// sendOutput is what send prints on success.
type sendOutput struct {
	ID             uint64 `json:"id"`
	Nonce          uint64 `json:"nonce"`
	Timestamp      uint64 `json:"timestamp"`
	ContentLocator string `json:"contentLocator"`
	KeyLocator     string `json:"keyLocator,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
}

func newSendCommand(flags *globalFlags) *cobra.Command {
	var signed, unsigned bool

	cmd := &cobra.Command{
		Use:   "send <recipient> [message]",
		Short: "Encrypt and send a message",
		Long: `Encrypt a message to recipient's published key and submit its commitments.

The message is read from stdin when not given as an argument. The printed
locators are also saved to the local correlation store; export them with
"sealpost locators export" to hand them to the recipient.`,
		Args: cobra.RangeArgs(1, 2),
	}
	cmd.Flags().BoolVar(&signed, "signed", false, "sign this submission")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "do not sign this submission")
	cmd.MarkFlagsMutuallyExclusive("signed", "unsigned")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid argument %q: not an address", args[0])
		}
		recipient := common.HexToAddress(args[0])

		var body []byte
		if len(args) == 2 {
			body = []byte(args[1])
		} else {
			var err error
			if body, err = io.ReadAll(c.InOrStdin()); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
		}

		var opts []sealpost.SendOption
		switch {
		case signed:
			opts = append(opts, sealpost.WithSigned(true))
		case unsigned:
			opts = append(opts, sealpost.WithSigned(false))
		}

		return withSession(flags, func(ctx context.Context, _ *config.Config, s *session) error {
			res, err := s.client.Send(ctx, recipient, body, opts...)
			if err != nil {
				return err
			}
			if res.Degraded {
				fmt.Fprintln(c.ErrOrStderr(), "warning: recipient has no published key; they will not be able to read this message")
			}
			return writeJSON(c.OutOrStdout(), sendOutput{
				ID:             res.Message.ID,
				Nonce:          res.Message.Nonce,
				Timestamp:      res.Message.Timestamp,
				ContentLocator: res.ContentLocator,
				KeyLocator:     res.KeyLocator,
				Degraded:       res.Degraded,
			})
		})(c, args)
	}
	return cmd
}

// inboxEntry is one message as printed by inbox.
type inboxEntry struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Timestamp uint64 `json:"timestamp"`
	Signed    bool   `json:"signed"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

func toInboxEntry(m *sealpost.Message) inboxEntry {
	e := inboxEntry{
		ID:        m.ID,
		Sender:    m.Sender.Hex(),
		Timestamp: m.Timestamp,
		Signed:    m.Signed,
	}
	if m.Err != nil {
		e.Error = m.Err.Error()
	} else {
		e.Text = string(m.Plaintext)
	}
	return e
}

func newInboxCommand(flags *globalFlags) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Read and decrypt this identity's inbox",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "keep running and print new messages as they arrive")

	cmd.RunE = withSession(flags, func(ctx context.Context, _ *config.Config, s *session) error {
		out := cmd.OutOrStdout()
		if follow {
			return followInbox(ctx, s.client, out)
		}
		msgs, err := s.client.Receive(ctx)
		if err != nil {
			return err
		}
		entries := make([]inboxEntry, 0, len(msgs))
		for _, m := range msgs {
			entries = append(entries, toInboxEntry(m))
		}
		return writeJSON(out, entries)
	})
	return cmd
}

func followInbox(ctx context.Context, client *sealpost.Client, out io.Writer) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	enc := json.NewEncoder(out)
	msgs := make(chan *sealpost.Message, 16)
	sub, err := client.Watch(ctx, func(m *sealpost.Message) {
		select {
		case msgs <- m:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			if err := enc.Encode(toInboxEntry(m)); err != nil {
				return err
			}
		}
	}
}

func parseID(s string) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscan(strings.TrimSpace(s), &id); err != nil || id == 0 {
		return 0, fmt.Errorf("invalid argument %q: not a message id", s)
	}
	return id, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
