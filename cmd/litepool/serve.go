package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jirevwe/litepool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCommand(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and answer them on the worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	d := litepool.DefaultConfig()
	cmd.Flags().String("addr", d.Addr, "Address to listen on")
	cmd.Flags().Int("pool-size", d.PoolSize, "Number of worker goroutines")
	cmd.Flags().Duration("timeout", d.Timeout, "Deadline for a single connection, 0 disables it")
	cmd.Flags().String("source", d.Source, "Where pages are read from (dir, s3)")
	cmd.Flags().String("page-dir", d.PageDir, "Directory holding hello.html and 404.html")
	cmd.Flags().String("s3-endpoint", "", "S3 endpoint for --source=s3")
	cmd.Flags().String("s3-bucket", "", "S3 bucket holding the pages")
	cmd.Flags().String("s3-prefix", "", "Key prefix of the pages in the bucket")
	cmd.Flags().String("metrics-addr", "", "Address for the Prometheus /metrics endpoint, empty disables it")

	for key, flag := range map[string]string{
		"addr":         "addr",
		"pool_size":    "pool-size",
		"timeout":      "timeout",
		"source":       "source",
		"page_dir":     "page-dir",
		"s3.endpoint":  "s3-endpoint",
		"s3.bucket":    "s3-bucket",
		"s3.prefix":    "s3-prefix",
		"metrics_addr": "metrics-addr",
	} {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}

	return cmd
}

func runServe(ctx context.Context, cfg *litepool.Config, logger *slog.Logger) error {
	pages, err := cfg.Pages(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize page source: %w", err)
	}

	var journal litepool.Journal
	if cfg.JournalPath != "" {
		s, err := litepool.NewSqlite(cfg.JournalPath, logger)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer s.Close()
		journal = s
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server, err := litepool.NewServer(&litepool.Options{
		Addr:       cfg.Addr,
		PoolSize:   cfg.PoolSize,
		Timeout:    cfg.Timeout,
		Mux:        litepool.DefaultMux(),
		Pages:      pages,
		Journal:    journal,
		Logger:     logger,
		Registerer: reg,
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info(fmt.Sprintf("serving metrics on %s", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(err.Error(), "func", "metricsServer.ListenAndServe")
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	return server.ListenAndServe(ctx)
}
