// Package cmd provides the sitekit command line.
//
// Configuration is read, highest priority first, from command-line flags,
// SITEKIT_<SECTION>_<OPTION> environment variables and the configuration
// file: --config, else SITEKIT_CONFIG_FILE, else .sitekit.yml in the project
// directory.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/sitekit/internal/config"
	"github.com/conneroisu/sitekit/internal/logging"
	"github.com/conneroisu/sitekit/internal/services"
)

var (
	cfgFile string
	workDir string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitekit [task...]",
	Short: "Build and serve a static site",
	Long: `sitekit builds a static site from src/ into dist/: Handlebars pages,
SCSS, concatenated scripts, optimised images and fonts. Without arguments it
builds, then watches the sources and serves dist/ with live reload.

Quick Start:
  sitekit init          Scaffold src/ and .sitekit.yml
  sitekit               Build, watch and serve
  sitekit build         Clean and build once
  sitekit tasks         List the available tasks`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTasks(cmd, args...)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .sitekit.yml, can also use SITEKIT_CONFIG_FILE env var)")
	flags.StringVar(&workDir, "cwd", "", "project directory to run in")
	addLogFlags(flags)
}

// addLogFlags registers the logging flags and binds them to their viper keys.
func addLogFlags(flags *pflag.FlagSet) {
	flags.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

// initConfig changes to the project directory and points viper at the
// configuration file and the SITEKIT_ environment.
func initConfig() {
	if workDir != "" {
		if err := os.Chdir(workDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: changing to %s: %v\n", workDir, err)
			os.Exit(1)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEKIT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitekit")
	}

	viper.SetEnvPrefix("SITEKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the configuration file, if any, and decodes it. A missing
// default file is not an error; a missing explicit one is.
func loadConfig() (*config.Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return config.Load()
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	}), nil
}

func newProject(cmd *cobra.Command) (*services.Project, logging.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "Using config file", "path", used)
	}
	project, err := services.NewProject(cfg, afero.NewOsFs(), logger)
	if err != nil {
		return nil, nil, err
	}
	return project, logger, nil
}

// runTasks runs the named tasks in series, or the default task, until they
// finish or the process is interrupted.
func runTasks(cmd *cobra.Command, names ...string) error {
	project, _, err := newProject(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = project.Run(ctx, names...)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// taskCommand returns a sub-command that runs the task of the same name.
func taskCommand(name, short string, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     name,
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(cmd, name)
		},
	}
}
