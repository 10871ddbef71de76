// main.go - treasuryd: daemon and tooling for the pooled-deposit treasury.
//
// Subcommands:
//   - serve:   run the ledger behind the REST surface
//   - rebuild: replay the event log off-chain and check it against a root
//   - keygen:  generate a treasury manager keypair
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/spf13/cobra"

	"github.com/lyronctk/treasury-house/internal/eventlog"
	"github.com/lyronctk/treasury-house/internal/prover"
	"github.com/lyronctk/treasury-house/internal/treasury"
)

func main() {
	root := &cobra.Command{
		Use:           "treasuryd",
		Short:         "Privacy-preserving pooled-deposit treasury ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "treasuryd.json", "path to config file")

	root.AddCommand(serveCmd(&configPath), rebuildCmd(&configPath), keygenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the treasury ledger daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			events, err := eventlog.OpenLevelDB(cfg.EventLogPath)
			if err != nil {
				return err
			}
			defer events.Close()

			verifier, err := loadVerifier(cfg)
			if err != nil {
				return err
			}

			hasher := treasury.NewMiMCHasher()
			ledger, err := openLedger(cfg, hasher, verifier, events)
			if err != nil {
				return err
			}
			ledger.SetLogger(log.With().Str("component", "ledger").Logger())

			// The event log is the source of truth; a snapshot that cannot
			// reproduce the same root means lost history and proofs that
			// would be rejected, so refuse to serve from it.
			iter, err := events.Iter()
			if err != nil {
				return err
			}
			rec, err := prover.Rebuild(iter, cfg.TreeDepth, hasher)
			iter.Close()
			if err != nil {
				return err
			}
			if err := rec.CheckAgainst(ledger.Root()); err != nil {
				return fmt.Errorf("snapshot diverges from event log: %w", err)
			}

			srv := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: NewServer(ledger, log.With().Str("component", "http").Logger()).Handler(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				srv.Shutdown(context.Background())
			}()

			log.Info().Str("addr", cfg.ListenAddr).Msg("treasuryd listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			if cfg.LedgerSnapshot != "" {
				if err := ledger.SaveToFile(cfg.LedgerSnapshot); err != nil {
					log.Error().Err(err).Msg("saving ledger snapshot")
				}
			}
			log.Info().Msg("treasuryd stopped")
			return nil
		},
	}
}

// openLedger restores the ledger from its JSON snapshot when one exists and
// starts fresh otherwise.
func openLedger(cfg *Config, h treasury.Hasher, v treasury.Verifier, sink treasury.LeafSink) (*treasury.Ledger, error) {
	if cfg.LedgerSnapshot != "" {
		if _, err := os.Stat(cfg.LedgerSnapshot); err == nil {
			// The daemon always runs the default padding policy, so the
			// snapshot restore keeps it explicit here.
			return treasury.LoadLedgerFromFile(cfg.LedgerSnapshot, h, v, sink, treasury.DuplicateFirstIndex)
		}
	}
	return treasury.NewLedger(treasury.Params{
		Depth:    cfg.TreeDepth,
		MaxBatch: cfg.MaxBatch,
	}, h, v, sink)
}

// loadVerifier builds the proof-checking capability. Without a verifying key
// the daemon refuses withdrawals rather than silently accepting them.
func loadVerifier(cfg *Config) (treasury.Verifier, error) {
	if cfg.VerifyingKeyPath == "" {
		return treasury.VerifierFunc(func([]byte, []fr.Element) (bool, error) {
			return false, errors.New("no verifying key configured")
		}), nil
	}
	f, err := os.Open(cfg.VerifyingKeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening verifying key: %w", err)
	}
	defer f.Close()
	return prover.LoadGroth16Verifier(f)
}

func rebuildCmd(configPath *string) *cobra.Command {
	var expectedRoot string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Replay the event log and report the reconstructed root",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			events, err := eventlog.OpenLevelDB(cfg.EventLogPath)
			if err != nil {
				return err
			}
			defer events.Close()

			iter, err := events.Iter()
			if err != nil {
				return err
			}
			defer iter.Close()

			rec, err := prover.Rebuild(iter, cfg.TreeDepth, treasury.NewMiMCHasher())
			if err != nil {
				return err
			}
			root := rec.Root()
			log.Info().
				Uint64("leaves", rec.Len()).
				Str("root", root.String()).
				Msg("event log replayed")

			if expectedRoot != "" {
				var want fr.Element
				if _, err := want.SetString(expectedRoot); err != nil {
					return fmt.Errorf("parsing expected root: %w", err)
				}
				if err := rec.CheckAgainst(want); err != nil {
					return err
				}
				log.Info().Msg("reconstructed root matches")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&expectedRoot, "expect-root", "", "authoritative root to compare against")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a treasury manager keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := treasury.GenerateKeyPair()
			if err != nil {
				return err
			}
			fmt.Printf("private scalar: %s\n", kp.Sk.String())
			fmt.Printf("public key x:   %s\n", kp.Pk.X.String())
			fmt.Printf("public key y:   %s\n", kp.Pk.Y.String())
			return nil
		},
	}
}
