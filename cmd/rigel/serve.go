package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/everydev1618/rigel"
	"github.com/everydev1618/rigel/dsl"
	"github.com/everydev1618/rigel/serve"
)

// openStore opens and initializes the run database.
func openStore(path string) (*serve.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := serve.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Init(); err != nil {
		store.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	return store, nil
}

// newServeCmd starts the REST API server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start a REST API server that solves problems, streams pipeline events
and serves run history and Prometheus metrics.`,
		Example: `  rigel serve
  rigel serve -f geometry.rigel.yaml --addr :8080
  rigel serve --db /tmp/rigel.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument()
			if err != nil {
				return err
			}
			inv, err := newInvoker(doc)
			if err != nil {
				return err
			}

			store, err := openStore(viper.GetString("db"))
			if err != nil {
				return err
			}
			defer store.Close()

			pipeline, err := dsl.Build(doc, inv, rigel.WithRecorder(store))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Loaded: %s (%s)\n", doc.Name, doc.Summary())

			srv := serve.New(pipeline, doc, store, serve.Config{
				Addr:  viper.GetString("addr"),
				Runs:  runs(doc, 0),
				Usage: inv.Usage,
			})

			// Signal handling for graceful shutdown
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	cmd.Flags().String("addr", ":3001", "HTTP listen address")
	if err := viper.BindPFlag("addr", cmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}

	return cmd
}
