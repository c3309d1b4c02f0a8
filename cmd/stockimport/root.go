package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
	"github.com/JonMunkholm/inventory/internal/store/memory"
	"github.com/JonMunkholm/inventory/internal/store/postgres"
)

type rootOptions struct {
	logLevel  string
	logFormat string

	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "stockimport",
		Short:         "Bulk product and serial-number imports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOffline()
			if err != nil {
				return withCode(exitUsage, err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = opts.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = opts.logFormat
			}
			slog.SetDefault(logging.New(opts.stderr, cfg.Logging.Level, cfg.Logging.Format))
			opts.cfg = cfg
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(newRunCmd(opts), newTemplateCmd(opts), newStocksCmd(opts))
	return cmd
}

// backend is the store a command works against.
type backend struct {
	store core.Store
	pg    *postgres.Store
	close func()
}

// openBackend connects to the configured database. Without one it falls
// back to an in-memory store holding offlineStocks, which only makes sense
// for dry runs and templates; requireDB turns that case into an error.
func (o *rootOptions) openBackend(ctx context.Context, requireDB bool, offlineStocks []string) (*backend, error) {
	if o.cfg.Database.URL == "" {
		if requireDB {
			return nil, withCode(exitUsage, fmt.Errorf("DATABASE_URL is not set"))
		}
		mem := memory.New()
		for _, name := range offlineStocks {
			mem.AddStock(name)
		}
		slog.Info("no database configured, using in-memory store", "stocks", len(offlineStocks))
		return &backend{store: mem, close: func() {}}, nil
	}

	pool, err := postgres.Open(ctx, o.cfg.Database)
	if err != nil {
		return nil, withCode(exitUnavailable, err)
	}
	slog.Info("connected to database", "name", postgres.DatabaseName(o.cfg.Database.URL))

	pg := postgres.New(pool)
	if o.cfg.Database.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, withCode(exitUnavailable, err)
		}
	}
	return &backend{store: pg, pg: pg, close: pool.Close}, nil
}

func (o *rootOptions) newService(store core.Store) *core.Service {
	return core.NewService(store, core.Options{
		MaxConcurrent: o.cfg.Import.MaxConcurrent,
		MaxWait:       o.cfg.Import.MaxWaitTime,
		ResultTTL:     o.cfg.Import.ResultTTL,
		DecodeBuffer:  o.cfg.Import.DecodeBuffer,
	})
}
