package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/invitation"
	"github.com/bitfsorg/contribsplit/service"
)

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Invite contributors to claim their share",
	}

	var ttl time.Duration
	createCmd := &cobra.Command{
		Use:   "create <split-id> <handle> <email>",
		Short: "Issue an invitation token",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				issued, err := svc.Invite(ctx, args[0], invitation.InviteRequest{
					Handle: args[1],
					Email:  args[2],
					TTL:    ttl,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(map[string]any{
						"invitation": issued.Invitation,
						"token":      issued.Token,
					})
				}
				fmt.Printf("Invitation %s for %s expires %s\n", issued.Invitation.ID, args[1],
					issued.Invitation.ExpiresAt.Format("2006-01-02 15:04 MST"))
				fmt.Printf("Token (shown once): %s\n", issued.Token)
				return nil
			})
		},
	}
	createCmd.Flags().DurationVar(&ttl, "ttl", 0, "Invitation lifetime (defaults to invitettl)")

	acceptCmd := &cobra.Command{
		Use:   "accept <token> <address>",
		Short: "Redeem an invitation with a settlement address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				c, err := svc.AcceptInvitation(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(c)
				}
				fmt.Printf("%s bound to %s; verify with:\n", c.Handle, c.SettlementAddress)
				fmt.Printf("  contribsplit verify start %s %s %s\n", c.ID, c.Handle, c.SettlementAddress)
				return nil
			})
		},
	}

	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire invitations past their lifetime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				n, err := svc.ExpireInvitations(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Expired %d invitation(s)\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(createCmd, acceptCmd, expireCmd)
	return cmd
}
