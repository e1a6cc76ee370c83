package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"xeterbot/internal/domain"
	"xeterbot/internal/history"
	"xeterbot/internal/pipeline"
)

func obfuscateCmd() *cobra.Command {
	var presetName, out string
	cmd := &cobra.Command{
		Use:   "obfuscate <file>",
		Short: "Obfuscate a local Lua file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := pipeline.ParsePreset(presetName)
			if err != nil {
				return err
			}
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			written, err := a.pipeline.ObfuscateFile(ctx, args[0], preset, out)
			if err != nil {
				var je *pipeline.JobError
				if errors.As(err, &je) && je.Kind == pipeline.KindEngine {
					return fmt.Errorf("engine rejected %s:\n%s", args[0], je.Detail)
				}
				return err
			}
			fmt.Printf("Wrote %s (%s)\n", written, preset)
			return nil
		},
	}
	cmd.Flags().StringVarP(&presetName, "preset", "p", "Medium", "obfuscation preset: Weak, Medium or Strong")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory (default: generated name in the current directory)")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if !cfg.History.Enabled {
				return errors.New("history is disabled (history.enabled = false)")
			}

			store, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			recs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No jobs recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tCHANNEL\tAUTHOR\tPRESET\tSOURCE\tSTATUS\tTOOK")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					humanize.Time(r.CreatedAt),
					r.Channel,
					authorLabel(r),
					r.Preset,
					sourceLabel(r),
					r.Status,
					(time.Duration(r.DurationMs) * time.Millisecond).String(),
				)
			}
			tw.Flush()

			fmt.Printf("\n%s jobs total", humanize.Comma(stats.Total))
			if n := stats.ByStatus[domain.JobReplied]; n > 0 {
				fmt.Printf(", %s replied", humanize.Comma(n))
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")
	return cmd
}

func authorLabel(r domain.JobRecord) string {
	if r.AuthorName != "" {
		return r.AuthorName
	}
	return r.AuthorID
}

func sourceLabel(r domain.JobRecord) string {
	if r.Origin == "" {
		return "-"
	}
	if r.InputBytes == 0 {
		return r.Origin
	}
	return strings.TrimSpace(r.Origin + " " + humanize.Bytes(uint64(r.InputBytes)))
}
