package main

import (
	"fmt"
	"strings"

	"github.com/jirevwe/litepool"
	"github.com/spf13/cobra"
)

func newRequestsCommand(load loader) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List the most recent requests from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("no journal configured, pass --journal")
			}

			s, err := litepool.NewSqlite(cfg.JournalPath, logger)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer s.Close()

			records, err := s.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range records {
				detail, err := r.GetDetail()
				if err != nil {
					return fmt.Errorf("failed to decode request %s: %w", r.Id, err)
				}

				fmt.Fprintf(out, "%s  %s  %-21s  %d  %-10s  %4dms  %q\n",
					r.Id, r.CreatedAt, r.RemoteAddr, r.Status, r.Page, r.DurationMs, r.RequestLine)
				if len(detail.Headers) > 0 {
					fmt.Fprintf(out, "    %s\n", strings.Join(detail.Headers, "\n    "))
				}
				if detail.Error != "" {
					fmt.Fprintf(out, "    error: %s\n", detail.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of requests to show")
	return cmd
}
