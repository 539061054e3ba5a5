package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/profile"
)

// newProfilesCmd creates the 'profiles' subcommand listing configured outlets.
func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Lists the configured outlets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROOT MODE\tROOT\tSCOPE\tDEFAULT")
			for _, id := range registry.IDs() {
				p, err := registry.Get(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Name, p.Root.Mode, p.Root.Describe(), p.Scope, p.DefaultCategory)
			}
			return tw.Flush()
		},
	}
}

func loadRegistry(cmd *cobra.Command) (*profile.Registry, error) {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return nil, err
	}
	registry, err := profile.Load(e.cfg.Profiles.File, e.cfg.Profiles.SharedListsFile)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	return registry, nil
}
