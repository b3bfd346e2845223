package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/ayudaclient"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/logging"
)

// app carries the resolved settings and clients shared by every command.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
	client *ayudaclient.Client
	clock  clock.Clock
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), clock: clock.New()}

	cmd := &cobra.Command{
		Use:          "andrebot",
		Short:        "Andrebot: soporte, tickets y cotizaciones desde la terminal",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("server", ayudaclient.DefaultBaseURL, "Backstage server base URL")
	flags.String("state-dir", "", "directory for the saved conversation (default: user config dir)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.Duration("timeout", ayudaclient.DefaultTimeout, "timeout for a single request")

	a.v.SetEnvPrefix("andrebot")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	cmd.AddCommand(
		newChatCmd(a),
		newWatchCmd(a),
		newTicketsCmd(a),
		newQuoteCmd(a),
	)
	return cmd
}

func (a *app) init() error {
	logger, err := logging.New(&logging.Config{
		Level:       a.v.GetString("log-level"),
		Format:      "console",
		Environment: "development",
	})
	if err != nil {
		return err
	}
	a.logger = logger.Zap().Named("andrebot")

	a.client = ayudaclient.New(ayudaclient.Config{
		BaseURL:   a.v.GetString("server"),
		Timeout:   a.v.GetDuration("timeout"),
		UserAgent: "andrebot/" + version,
	}, a.clock, a.logger)
	return nil
}

func (a *app) serverURL() string {
	return strings.TrimRight(a.v.GetString("server"), "/")
}

// stateDir returns the directory holding the saved conversation.
func (a *app) stateDir() (string, error) {
	if dir := a.v.GetString("state-dir"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no state directory: %w", err)
	}
	return filepath.Join(base, "andrebot"), nil
}
