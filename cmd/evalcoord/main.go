package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/RajanDhamala/evalcoord/config"
)

var (
	configPath  string
	enginePath  string
	logLevel    string
	metricsAddr string

	rootCmd = &cobra.Command{
		Use:   "evalcoord",
		Short: "Drive a UCI chess engine for position review, line sweeps and games",
		Long: `evalcoord runs a UCI engine behind the evaluation coordinator:
continuous analysis of one position, a timed sweep over every move of a
line, or a game against the engine.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&enginePath, "engine", "", "engine binary, overrides engine.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides log.level")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(analyzeCmd, lineCmd, playCmd, initConfigCmd)
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the default configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
		return nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies the global flags over the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if enginePath != "" {
		cfg.Engine.Path = enginePath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	if cfg.Log.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
}

func splitMoves(moves string) []string {
	return strings.Fields(strings.ReplaceAll(moves, ",", " "))
}
