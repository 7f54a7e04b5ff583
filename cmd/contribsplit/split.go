package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/registry"
	"github.com/bitfsorg/contribsplit/revshare"
	"github.com/bitfsorg/contribsplit/service"
)

// parseContributor parses handle=share or handle=share@address.
func parseContributor(s string) (registry.NewContributor, error) {
	handle, rest, ok := strings.Cut(s, "=")
	if !ok || handle == "" {
		return registry.NewContributor{}, fmt.Errorf("contributor must be handle=share[@address], got %q", s)
	}
	shareStr, address, _ := strings.Cut(rest, "@")
	share, err := decimal.NewFromString(shareStr)
	if err != nil {
		return registry.NewContributor{}, fmt.Errorf("contributor %s: invalid share %q", handle, shareStr)
	}
	return registry.NewContributor{Handle: handle, Share: share, SettlementAddress: address}, nil
}

func parseShares(args []string) (map[string]decimal.Decimal, error) {
	shares := make(map[string]decimal.Decimal, len(args))
	for _, a := range args {
		c, err := parseContributor(a)
		if err != nil {
			return nil, err
		}
		if c.SettlementAddress != "" {
			return nil, fmt.Errorf("share update for %s cannot set an address", c.Handle)
		}
		shares[c.Handle] = c.Share
	}
	return shares, nil
}

func printSplit(v *registry.SplitView) error {
	if jsonOutput {
		return printJSON(v)
	}
	s := v.Split
	fmt.Printf("Split %s\n", s.ID)
	fmt.Printf("  Address:     %s (%s)\n", s.Address, s.Chain)
	fmt.Printf("  Authority:   %s\n", s.Authority)
	if s.Owner != "" {
		fmt.Printf("  Repository:  %s/%s\n", s.Owner, s.Repo)
	}
	fmt.Printf("  Status:      %s\n", s.Status)
	fmt.Printf("  Distributed: %d sat\n", s.TotalDistributed)
	fmt.Printf("  Undivided:   %d sat\n\n", s.Residual)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHANDLE\tSHARE\tSTATUS\tADDRESS\tCLAIMED")
	for _, c := range v.Contributors {
		fmt.Fprintf(w, "%s\t%s\t%s%%\t%s\t%s\t%d\n",
			c.ID, c.Handle, c.Share.String(), c.Status, c.SettlementAddress, c.TotalClaimed)
	}
	return w.Flush()
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Create and manage splits",
	}

	var (
		address, chain, authority, fromRepo string
		contributors                        []string
		activate                            bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a split",
		Long: `Register a split from explicit contributors (--contributor alice=60@1Addr...)
or from a repository analysis (--from-repo owner/repo). Without --address a new
treasury address is issued from the authority keystore.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (fromRepo == "") == (len(contributors) == 0) {
				return fmt.Errorf("exactly one of --from-repo or --contributor is required")
			}
			var ncs []registry.NewContributor
			for _, s := range contributors {
				c, err := parseContributor(s)
				if err != nil {
					return err
				}
				ncs = append(ncs, c)
			}
			if address == "" || authority == "" {
				ks, _, err := openKeystore()
				if err != nil {
					return fmt.Errorf("issue split address: %w", err)
				}
				if address == "" {
					if address, err = ks.NewSplitAddress(); err != nil {
						return err
					}
				}
				if authority == "" {
					authority = ks.AuthorityAddress()
				}
			}

			return withService(func(ctx context.Context, svc *service.Service) error {
				if chain == "" {
					chain = svc.Network()
				}
				var (
					v   *registry.SplitView
					err error
				)
				if fromRepo != "" {
					owner, repo, perr := parseRepo(fromRepo)
					if perr != nil {
						return perr
					}
					a, aerr := svc.AnalyzeRepository(ctx, owner, repo)
					if aerr != nil {
						return aerr
					}
					v, err = svc.CreateSplitFromAnalysis(ctx, a, service.SplitParams{
						Address: address, Chain: chain, Authority: authority, Activate: activate,
					})
				} else {
					v, err = svc.CreateSplit(ctx, registry.NewSplit{
						Address: address, Chain: chain, Authority: authority,
						Contributors: ncs, Activate: activate,
					})
				}
				if err != nil {
					return err
				}
				return printSplit(v)
			})
		},
	}
	createCmd.Flags().StringVar(&address, "address", "", "Split treasury address")
	createCmd.Flags().StringVar(&chain, "chain", "", "Ledger chain (defaults to the configured network)")
	createCmd.Flags().StringVar(&authority, "authority", "", "Controlling authority address")
	createCmd.Flags().StringVar(&fromRepo, "from-repo", "", "Seed contributors from owner/repo")
	createCmd.Flags().StringArrayVar(&contributors, "contributor", nil, "Contributor as handle=share[@address] (repeatable)")
	createCmd.Flags().BoolVar(&activate, "activate", false, "Activate the split immediately")

	showCmd := &cobra.Command{
		Use:   "show <split-id|address>",
		Short: "Show a split and its contributors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				v, err := svc.GetSplit(ctx, args[0])
				if revshare.Kind(err) == "not_found" {
					v, err = svc.GetSplitByAddress(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printSplit(v)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List splits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *service.Service) error {
				splits, err := svc.ListSplits(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(splits)
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tADDRESS\tSTATUS\tREPOSITORY\tDISTRIBUTED")
				for _, s := range splits {
					repo := ""
					if s.Owner != "" {
						repo = s.Owner + "/" + s.Repo
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Address, s.Status, repo, s.TotalDistributed)
				}
				return w.Flush()
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <split-id> <ACTIVE|PAUSED|CLOSED>",
		Short: "Change a split's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := revshare.ParseSplitStatus(strings.ToUpper(args[1]))
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *service.Service) error {
				s, err := svc.SetSplitStatus(ctx, args[0], status)
				if err != nil {
					return err
				}
				fmt.Printf("Split %s is %s\n", s.ID, s.Status)
				return nil
			})
		},
	}

	sharesCmd := &cobra.Command{
		Use:   "shares <split-id> <handle=share>...",
		Short: "Reassign contributor shares",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			shares, err := parseShares(args[1:])
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *service.Service) error {
				v, err := svc.UpdateShares(ctx, args[0], shares)
				if err != nil {
					return err
				}
				return printSplit(v)
			})
		},
	}

	cmd.AddCommand(createCmd, showCmd, listCmd, statusCmd, sharesCmd)
	return cmd
}
