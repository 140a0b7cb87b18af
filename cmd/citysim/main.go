package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"citysim/internal/city"
	"citysim/internal/config"
	"citysim/internal/journal"
	"citysim/internal/server"
	"citysim/internal/statsdb"
)

func main() {
	var (
		configPath string
		logLevel   string
	)
	rootCmd := &cobra.Command{
		Use:   "citysim",
		Short: "Tile-based city simulation server",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "tuning YAML file (defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	loadConfig := func() (config.Config, error) {
		if configPath == "" {
			return config.Default(), nil
		}
		return config.Load(configPath)
	}

	rootCmd.AddCommand(serveCmd(loadConfig))
	rootCmd.AddCommand(runCmd(loadConfig))
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type recorders struct {
	journal *journal.Writer
	stats   *statsdb.DB
}

func openRecorders(journalPath, statsPath string) (*recorders, error) {
	r := &recorders{}
	if journalPath != "" {
		j, err := journal.Create(journalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		r.journal = j
	}
	if statsPath != "" {
		db, err := statsdb.OpenSQLite(statsPath)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open stats db: %w", err)
		}
		r.stats = db
	}
	return r, nil
}

func (r *recorders) Close() {
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			slog.Error("close journal", "err", err)
		}
	}
	if r.stats != nil {
		if err := r.stats.Close(); err != nil {
			slog.Error("close stats db", "err", err)
		}
	}
}

func serveCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var addr, journalPath, statsPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation in real time behind HTTP and websocket endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rec, err := openRecorders(journalPath, statsPath)
			if err != nil {
				return err
			}
			defer rec.Close()

			srv, err := server.New(cfg,
				server.WithLogger(slog.Default()),
				server.WithJournal(rec.journal),
				server.WithStats(rec.stats),
			)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "listen address")
	cmd.Flags().StringVar(&journalPath, "journal", "", "write a zstd JSONL journal to this file")
	cmd.Flags().StringVar(&statsPath, "stats-db", "", "index per-tick stats into this sqlite file")
	return cmd
}

func runCmd(loadConfig func() (config.Config, error)) *cobra.Command {
	var (
		ticks                  int
		journalPath, statsPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a fixed number of ticks without a server and print the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rec, err := openRecorders(journalPath, statsPath)
			if err != nil {
				return err
			}
			defer rec.Close()

			c := city.New(cfg, nil, city.WithLogger(slog.Default()))
			if err := c.ApplyLayout(cfg.Layout); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			for i := 0; i < ticks && ctx.Err() == nil; i++ {
				c.Step()
				sum := c.Summary()
				if rec.journal != nil {
					if err := rec.journal.WriteTick(sum); err != nil {
						return err
					}
				}
				rec.stats.WriteTick(sum)
			}
			s := c.Summary()
			fmt.Fprintf(cmd.OutOrStdout(),
				"tick=%d population=%d employed=%d jobs=%d developed=%d abandoned=%d power=%.1f/%.1f vehicles=%d\n",
				s.Tick, s.Population, s.Employed, s.Jobs, s.Developed, s.Abandoned,
				s.PowerSupplied, s.PowerCapacity, s.Vehicles)
			return nil
		},
	}
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 100, "number of ticks to simulate")
	cmd.Flags().StringVar(&journalPath, "journal", "", "write a zstd JSONL journal to this file")
	cmd.Flags().StringVar(&statsPath, "stats-db", "", "index per-tick stats into this sqlite file")
	return cmd
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [journal-path]",
		Short: "Print the entries of a journal file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return journal.Read(args[0], func(e journal.Entry) error {
				switch e.Kind {
				case journal.KindTick:
					s := e.Summary
					if s == nil {
						return fmt.Errorf("tick %d: entry without summary", e.Tick)
					}
					fmt.Fprintf(out, "%6d tick   population=%d employed=%d developed=%d vehicles=%d\n",
						e.Tick, s.Population, s.Employed, s.Developed, s.Vehicles)
				case journal.KindAction:
					fmt.Fprintf(out, "%6d action %s (%d,%d) %s applied=%t\n",
						e.Tick, e.Action, e.X, e.Y, e.Detail, e.Applied)
				}
				return nil
			})
		},
	}
}
