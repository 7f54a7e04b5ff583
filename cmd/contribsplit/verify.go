package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/service"
)

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Bind contributors to settlement addresses",
	}

	startCmd := &cobra.Command{
		Use:   "start <contributor-id> <handle> <address>",
		Short: "Issue a verification challenge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				ch, err := svc.StartVerification(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(ch)
				}
				fmt.Printf("Session:  %s\n", ch.SessionID)
				fmt.Printf("Expires:  %s\n\n", ch.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
				fmt.Printf("Challenge:\n%s\n\n", ch.Text)
				if ch.Locator != "" {
					fmt.Printf("Published at %s\n", ch.Locator)
				} else {
					fmt.Println(ch.Instructions)
				}
				fmt.Println("Sign the challenge with the address key and run:")
				fmt.Printf("  contribsplit verify complete %s <signature>\n", ch.SessionID)
				return nil
			})
		},
	}

	completeCmd := &cobra.Command{
		Use:   "complete <session-id> <signature>",
		Short: "Complete a verification with a signed challenge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				c, err := svc.CompleteVerification(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(c)
				}
				fmt.Printf("%s verified for %s\n", c.Handle, c.SettlementAddress)
				return nil
			})
		},
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions <contributor-id>",
		Short: "Show a contributor's verification history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				sessions, err := svc.ListSessions(ctx, args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(sessions)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SESSION\tADDRESS\tSTATUS\tEXPIRES")
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Address, s.Status, s.ExpiresAt.Format("2006-01-02 15:04"))
				}
				return w.Flush()
			})
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Expire verification sessions past their window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				n, err := svc.CleanupExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d session(s)\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(startCmd, completeCmd, sessionsCmd, cleanupCmd)
	return cmd
}
