// Package cli implements the footprint command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/beetlebugorg/footprint/internal/config"
	"github.com/beetlebugorg/footprint/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// viperKeyAnnotation marks a flag with the config key it overrides.
const viperKeyAnnotation = "footprint_viper_key"

// app holds state shared by all commands of one invocation.
type app struct {
	v          *viper.Viper
	configPath string
	envFile    string

	cfg *config.Config
	log logging.Logger
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:   "footprint",
		Short: "Reconcile building footprint datasets",
		Long: "footprint matches buildings of a reference cadastral dataset against a\n" +
			"3D city model dataset, unit by unit, and merges attributes across them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with FOOTPRINT_* overrides")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	annotate(flags, "log-level", "log.level")
	annotate(flags, "log-format", "log.format")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newPartitionCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup loads the dotenv file and configuration, then builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			// the default .env is optional; an explicit one is not
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load env file %q: %w", a.envFile, err)
			}
		}
	}

	// Bind only the flags of the executing command, since several
	// subcommands override the same keys.
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKeyAnnotation]
		if !ok || bindErr != nil {
			return
		}
		bindErr = a.v.BindPFlag(keys[0], f)
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.LoadWith(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	logging.SetDefault(log)
	return nil
}

// annotate ties a flag to the config key it overrides.
func annotate(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, viperKeyAnnotation, []string{key})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the footprint version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "footprint version %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
