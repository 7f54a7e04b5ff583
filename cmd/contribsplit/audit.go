package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/config"
	"github.com/bitfsorg/contribsplit/service"
)

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				entries, err := svc.ListAudit(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(entries)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tACTION\tSUBJECT\tDETAIL")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.At.Format("2006-01-02 15:04:05"), e.Action, e.Subject, e.Detail)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialise configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(dataDir)
			if err != nil {
				return err
			}
			cfg.RPCPass = redact(cfg.RPCPass)
			cfg.GitHubToken = redact(cfg.GitHubToken)
			cfg.DSN = redact(cfg.DSN)
			if jsonOutput {
				return printJSON(cfg)
			}
			fmt.Printf("%+v\n", cfg)
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigPath(dataDir)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			cfg := config.DefaultConfig()
			cfg.DataDir = dataDir
			if err := config.SaveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(showCmd, initCmd)
	return cmd
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
