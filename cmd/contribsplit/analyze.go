package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/contribsplit/service"
)

func parseRepo(s string) (string, string, error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository must be owner/repo, got %q", s)
	}
	return owner, repo, nil
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <owner/repo>",
		Short: "Compute contributor shares from commit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, repo, err := parseRepo(args[0])
			if err != nil {
				return err
			}
			return withService(func(ctx context.Context, svc *service.Service) error {
				a, err := svc.AnalyzeRepository(ctx, owner, repo)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(a)
				}
				fmt.Printf("%s/%s: %d commits", a.Owner, a.Repo, a.TotalCommits)
				if a.IsFork {
					fmt.Printf(" (fork of %s)", a.Parent)
				}
				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CONTRIBUTOR\tCOMMITS\tUPSTREAM\tFORK\tSHARE")
				for _, c := range a.Contributors {
					name := c.Handle
					if name == "" {
						name = c.Name
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d%%\n", name, c.Commits, c.UpstreamCommits, c.ForkCommits, c.Share)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if a.RoundingResidual != 0 {
					fmt.Printf("rounding residual %+d allocated by largest remainder\n", a.RoundingResidual)
				}
				return nil
			})
		},
	}
}
