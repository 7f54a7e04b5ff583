package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/config"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/service"
	"github.com/bitfsorg/contribsplit/telemetry"
)

// EnvKeystorePassword unlocks the authority keystore.
const EnvKeystorePassword = "CONTRIBSPLIT_KEYSTORE_PASSWORD"

var (
	dataDir    string
	jsonOutput bool
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "contribsplit",
		Short: "Contribution attribution and revenue distribution",
		Long: `contribsplit computes contributor shares from a repository's commit history,
registers split addresses for those shares, verifies that contributors control
their settlement addresses and distributes funds received at each split.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "datadir", config.DefaultDataDir(), "Data directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(splitCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(fundsCmd())
	rootCmd.AddCommand(distributeCmd())
	rootCmd.AddCommand(claimableCmd())
	rootCmd.AddCommand(keystoreCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(configCmd())

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		if kind := revshare.Kind(err); kind != "" {
			fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind, err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// withService loads configuration, opens the service and runs fn with a
// context cancelled on SIGINT or SIGTERM.
func withService(fn func(ctx context.Context, svc *service.Service) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}
	logger, closer, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := telemetry.Init(ctx, "contribsplit", rootCmd.Version); err != nil {
		logger.Warn("telemetry_init_failed", "error", err)
	}
	defer telemetry.Shutdown(context.WithoutCancel(ctx))

	svc, err := service.Open(ctx, service.Options{
		Config:           cfg,
		Logger:           logger,
		KeystorePassword: os.Getenv(EnvKeystorePassword),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("service_close_failed", "error", cerr)
		}
	}()
	return fn(ctx, svc)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
