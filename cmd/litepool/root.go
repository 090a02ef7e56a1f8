package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jirevwe/litepool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	v := viper.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "litepool",
		Short:         "Serve static pages from a fixed-size worker pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML, JSON or TOML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("journal", "", "Path to the SQLite request journal, empty disables it")
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("journal_path", rootCmd.PersistentFlags().Lookup("journal"))

	load := func() (*litepool.Config, *slog.Logger, error) {
		cfg, err := litepool.LoadConfig(v, configFile)
		if err != nil {
			return nil, nil, err
		}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
		return cfg, logger, nil
	}

	rootCmd.AddCommand(newServeCommand(v, load))
	rootCmd.AddCommand(newRequestsCommand(load))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("error executing command", "err", err)
		os.Exit(1)
	}
}

type loader func() (*litepool.Config, *slog.Logger, error)
