package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ralt/aptpool/internal/publish"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultSuite = "stable"

func suiteArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultSuite
}

// NewPublishCmd creates the publish command
func NewPublishCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [SUITE]",
		Short: "Build metadata for the pool and make it live",
		Long: `Extracts every pool archive, builds the Packages indexes and the signed
Release for SUITE (default "stable"), verifies the result and switches
dists/SUITE to it in one step.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, closeCache, err := openCoordinator(opts.config)
			if err != nil {
				return err
			}
			defer closeCache()

			start := time.Now()
			gen, err := coord.Publish(cmd.Context(), suiteArg(args))
			if err != nil {
				return err
			}

			logrus.WithField("duration", time.Since(start).Round(time.Millisecond)).
				Infof("Suite %s is live at generation %s", gen.Suite, gen.ID)
			fmt.Fprintln(cmd.OutOrStdout(), gen.ID)
			return nil
		},
	}

	cmd.Flags().StringP("gpg-key", "k", "", "Path to GPG private key")
	cmd.Flags().StringP("gpg-passphrase", "p", "", "GPG key passphrase")
	cmd.Flags().IntP("workers", "j", 0, "Parallel extractions (default: number of CPUs)")
	return cmd
}

// NewRollbackCmd creates the rollback command
func NewRollbackCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback SUITE GENERATION",
		Short: "Make a retained generation live again",
		Args:  exactArgs(2, "rollback SUITE GENERATION"),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord := publish.NewCoordinator(opts.config.Root, nil, opts.config.Publish)
			return coord.Rollback(cmd.Context(), args[0], args[1])
		},
	}
}

// NewGenerationsCmd creates the generations command
func NewGenerationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "generations [SUITE]",
		Short: "List the retained generations of a suite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord := publish.NewCoordinator(opts.config.Root, nil, opts.config.Publish)
			gens, err := coord.Generations(suiteArg(args))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GENERATION\tCREATED\tLIVE")
			for _, g := range gens {
				live := ""
				if g.Live {
					live = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID, g.Created.UTC().Format(time.RFC3339), live)
			}
			return w.Flush()
		},
	}
}
