package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitemap-coverage-crawler/internal/classifier"
	"github.com/JakeFAU/sitemap-coverage-crawler/internal/crawler"
)

// newClassifyCmd creates the 'classify' subcommand, which runs an outlet's
// rules over URLs given on the command line.
func newClassifyCmd() *cobra.Command {
	var outlet, defaultCategory string
	cmd := &cobra.Command{
		Use:   "classify URL...",
		Short: "Classifies URLs with an outlet's rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cmd)
			if err != nil {
				return err
			}
			p, err := registry.Get(outlet)
			if err != nil {
				return err
			}
			policy, err := p.EffectivePolicy(defaultCategory, e.cfg.Crawl.DefaultCategory)
			if err != nil {
				return crawler.NewConfigError("default_category", err)
			}
			cls := classifier.New(p, classifier.WithDefaultPolicy(policy))
			out := cmd.OutOrStdout()
			for _, raw := range args {
				d := cls.Classify(raw)
				category := "-"
				if d.InScope {
					category = string(d.Category)
				}
				fmt.Fprintf(out, "%s\t%s\trule=%s\tmatched=%s\n", category, raw, d.Rule, strings.Join(d.Matched, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outlet, "outlet", "", "outlet id (see 'profiles')")
	cmd.Flags().StringVar(&defaultCategory, "default-category", "", "override crawl.default_category and the profile's default category")
	_ = cmd.MarkFlagRequired("outlet")
	return cmd
}
