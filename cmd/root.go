// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/prerender/internal/config"
	"github.com/xkilldash9x/prerender/internal/observability"
	"github.com/xkilldash9x/prerender/pkg/components"
	"go.uber.org/zap"
)

var (
	cfgFile string

	// Registry holds the components the CLI renders with. A program that
	// embeds this command defines its components here before calling Execute.
	Registry = components.NewRegistry()
)

// newRootCmd builds the command tree. It is a constructor rather than a
// package variable so tests can start from a pristine tree.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prerender",
		Short: "Renders documents built from custom elements to static html.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(); err != nil {
				return err
			}

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "prerender"})
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}
			observability.InitializeLogger(cfg.LoggerCfg)

			observability.GetLogger().Debug("Starting prerender.", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.prerender/config.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRenderCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a context that is cancelled on SIGINT
// or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// initializeConfig reads the config file and PRERENDER_* environment
// variables on top of the defaults.
func initializeConfig() error {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("could not expand config path %q: %w", cfgFile, err)
		}
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".prerender"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PRERENDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults, env and flags apply.
	}
	return nil
}
