package cli

import (
	"fmt"

	"github.com/ralt/aptpool/internal/config"
	"github.com/ralt/aptpool/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options is shared by every subcommand once the root has loaded it
type options struct {
	configFile string
	config     *models.RepositoryConfig
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "aptpool",
		Short: "Maintain a flat pool of .deb packages and publish it as an APT repository",
		Long: `Aptpool stores Debian packages in a content-checked pool and publishes
signed APT metadata for it. Each publish builds a complete new generation
of the metadata and switches to it atomically, so clients never see a
half-written repository.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}

			cfg, err := config.Load(opts.configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Log.Format == "json" {
				logrus.SetFormatter(&logrus.JSONFormatter{})
			}
			opts.config = cfg

			logrus.Debugf("Configuration: %+v", redacted(cfg))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (default: ./aptpool.yaml or /etc/aptpool/aptpool.yaml)")
	rootCmd.PersistentFlags().StringP("root", "r", ".", "Repository root holding pool/ and dists/")
	rootCmd.PersistentFlags().String("component", "main", "Archive component")

	// Add subcommands
	rootCmd.AddCommand(
		NewIngestCmd(opts),
		NewRetractCmd(opts),
		NewListCmd(opts),
		NewPublishCmd(opts),
		NewRollbackCmd(opts),
		NewGenerationsCmd(opts),
	)

	return rootCmd
}

// redacted returns a copy of cfg safe to log
func redacted(cfg *models.RepositoryConfig) models.RepositoryConfig {
	out := *cfg
	if out.Signing.Passphrase != "" {
		out.Signing.Passphrase = "***"
	}
	if out.Pool.Minio.SecretKey != "" {
		out.Pool.Minio.SecretKey = "***"
	}
	return out
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &models.PoolError{
				Type: models.ErrInvalidConfig,
				Err:  fmt.Errorf("usage: %s", usage),
			}
		}
		return nil
	}
}
