package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/roomsense-go/cmd/realtime"
	"github.com/tphakala/roomsense-go/internal/conf"
	"github.com/tphakala/roomsense-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "roomsense",
		Short: "RoomSense-Go CLI",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	// Add sub-commands to the root command.
	rootCmd.AddCommand(realtime.Command(settings))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		return initialize(settings)
	}

	return rootCmd
}

// initialize is called before any subcommand runs: it applies the logging
// level from settings.
func initialize(settings *conf.Settings) error {
	level := slog.LevelInfo
	switch settings.Main.LogLevel {
	case "trace":
		level = logging.LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unsupported log level: %s", settings.Main.LogLevel)
	}
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.SetLevel(level)
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Main.LogLevel, "loglevel", viper.GetString("main.loglevel"), "Logging level (trace, debug, info, warn, error)")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
