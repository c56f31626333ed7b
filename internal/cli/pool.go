package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ralt/aptpool/internal/models"
	"github.com/ralt/aptpool/internal/scanner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewIngestCmd creates the ingest command
func NewIngestCmd(opts *options) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Add package archives to the pool",
		Long: `Scans the given files and directories for .deb archives and stores them
in the pool. Archives already present with identical content are skipped;
a different archive for an existing name, version and architecture is
refused.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(opts.config)
			if err != nil {
				return err
			}
			s, err := scanner.NewFileSystemScanner(pattern)
			if err != nil {
				return &models.PoolError{Type: models.ErrInvalidConfig, Key: pattern, Err: err}
			}

			var errs []error
			added, existing := 0, 0
			for _, arg := range args {
				found, err := s.Scan(ctx, arg)
				if err != nil {
					errs = append(errs, err)
					continue
				}

				for _, pkg := range found {
					data, err := os.ReadFile(pkg.Path)
					if err != nil {
						errs = append(errs, &models.PoolError{Type: models.ErrFileOp, Key: pkg.Path, Err: err})
						continue
					}

					entry, err := store.Add(ctx, data)
					if err != nil {
						logrus.WithError(err).Errorf("Failed to ingest %s", pkg.Path)
						errs = append(errs, fmt.Errorf("%s: %w", pkg.Path, err))
						continue
					}
					if entry.Existing {
						existing++
					} else {
						added++
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", entry.Identity(), entry.Path)
				}
			}

			logrus.Infof("Ingested %d archives (%d already present, %d failed)", added, existing, len(errs))
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Only ingest paths matching this glob, e.g. '**/*_arm64.deb'")
	return cmd
}

// NewRetractCmd creates the retract command
func NewRetractCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "retract NAME VERSION ARCH",
		Short: "Remove a package archive from the pool",
		Long: `Removes one archive from the pool. Published generations are not
rewritten; the package disappears from the indexes at the next publish.`,
		Args: exactArgs(3, "retract NAME VERSION ARCH"),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts.config)
			if err != nil {
				return err
			}
			return store.Retract(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

// NewListCmd creates the list command
func NewListCmd(opts *options) *cobra.Command {
	var arch string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pool archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(opts.config)
			if err != nil {
				return err
			}
			entries, err := store.List(cmd.Context(), arch)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tARCH\tSIZE\tPATH")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", e.Name, e.Version, e.Architecture, e.Size, e.Path)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&arch, "arch", "a", "", "Only list this architecture")
	return cmd
}
