package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/service"
)

func fundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funds",
		Short: "Detect new funds at split addresses",
	}

	checkCmd := &cobra.Command{
		Use:   "check [split-id]",
		Short: "Create distributions for new funds (all active splits by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				if len(args) == 1 {
					d, err := svc.CheckForNewFunds(ctx, args[0])
					if err != nil {
						return err
					}
					if d == nil {
						fmt.Println("No new funds")
						return nil
					}
					fmt.Printf("Distribution %s: %d sat\n", d.ID, d.Amount)
					return nil
				}
				created, err := svc.CheckAllSplits(ctx)
				for _, d := range created {
					fmt.Printf("Distribution %s for split %s: %d sat\n", d.ID, d.SplitID, d.Amount)
				}
				if len(created) == 0 && err == nil {
					fmt.Println("No new funds")
				}
				return err
			})
		},
	}

	cmd.AddCommand(checkCmd)
	return cmd
}

func distributeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Settle and inspect distributions",
	}

	var (
		check    bool
		interval time.Duration
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Settle pending distributions",
		Long: `Settle every pending distribution. With --check, new funds are detected
first. With --interval, the cycle repeats until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				cycle := func() error {
					if check {
						if _, err := svc.CheckAllSplits(ctx); err != nil {
							fmt.Fprintln(os.Stderr, "check:", err)
						}
					}
					report, err := svc.ProcessPendingDistributions(ctx)
					for _, id := range report.Completed {
						fmt.Printf("completed %s\n", id)
					}
					for _, f := range report.Failed {
						fmt.Printf("failed    %s: %v\n", f.DistributionID, f.Err)
					}
					for _, id := range report.Skipped {
						fmt.Printf("skipped   %s: settlement in progress\n", id)
					}
					return err
				}
				if interval <= 0 {
					return cycle()
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if err := cycle(); err != nil && !errors.Is(err, context.Canceled) {
						fmt.Fprintln(os.Stderr, "run:", err)
					}
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}
	runCmd.Flags().BoolVar(&check, "check", false, "Check all splits for new funds first")
	runCmd.Flags().DurationVar(&interval, "interval", 0, "Repeat every interval until interrupted")

	retryCmd := &cobra.Command{
		Use:   "retry <distribution-id>",
		Short: "Requeue a failed distribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				d, err := svc.RetryDistribution(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Distribution %s is %s\n", d.ID, d.Status)
				return nil
			})
		},
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair claims of completed distributions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				n, err := svc.ReconcileClaims(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Reconciled %d claim(s)\n", n)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <split-id>",
		Short: "List a split's distributions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				ds, err := svc.ListDistributions(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(ds)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tAMOUNT\tSTATUS\tSETTLEMENT\tERROR")
				for _, d := range ds {
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", d.ID, d.Amount, d.Status, d.SettlementRef, d.Error)
				}
				return w.Flush()
			})
		},
	}

	claimsCmd := &cobra.Command{
		Use:   "claims <distribution-id>",
		Short: "List a distribution's claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				claims, err := svc.ListClaims(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(claims)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CONTRIBUTOR\tADDRESS\tAMOUNT\tSTATUS")
				for _, c := range claims {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ContributorID, c.Address, c.Amount, c.Status)
				}
				return w.Flush()
			})
		},
	}

	cmd.AddCommand(runCmd, retryCmd, reconcileCmd, listCmd, claimsCmd)
	return cmd
}

func claimableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claimable <contributor-id>",
		Short: "Show the total paid to a contributor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				amount, err := svc.GetClaimableAmount(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]any{"contributor_id": args[0], "amount": amount})
				}
				fmt.Printf("%d sat\n", amount)
				return nil
			})
		},
	}
}
