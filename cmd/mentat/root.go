// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mentatdb/mentat/config"
	"github.com/mentatdb/mentat/log"
	"github.com/mentatdb/mentat/metrics"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/store"
	"github.com/mentatdb/mentat/txn"
)

// app bundles the long-lived collaborators a command needs once the
// store is open: the storage handle, the transactor sitting on top of
// it, and the metrics provider wired into the transactor.
type app struct {
	store   *store.Store
	tx      *txn.Transactor
	metrics *metrics.Provider
}

type appContextKey struct{}

func appFromContext(ctx context.Context) *app {
	a, _ := ctx.Value(appContextKey{}).(*app)
	return a
}

var (
	storageDSN string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "mentat",
	Short:         "A schema-aware, transactional Datalog store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.BindCommandFlags(cmd); err != nil {
			return err
		}
		if err := log.SetLevel(logLevel); err != nil {
			return errors.Wrapf(err, "set log level")
		}

		st, err := store.Open(storageDSN)
		if err != nil {
			return errors.Wrapf(err, "open store %q", storageDSN)
		}

		sch := schema.NewSchema()
		tr := txn.NewTransactor(sch, st)
		mp := metrics.New()
		tr.SetMetrics(mp)

		a := &app{store: st, tx: tr, metrics: mp}
		cmd.SetContext(context.WithValue(cmd.Context(), appContextKey{}, a))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if a := appFromContext(cmd.Context()); a != nil {
			return a.store.Close()
		}
		return nil
	},
}

// Execute builds and runs the root command, resolving flag defaults from
// the environment via config.Load before cobra parses argv.
func Execute() error {
	cfg := config.Load()
	rootCmd.PersistentFlags().StringVar(&storageDSN, "storage-dsn", cfg.StorageDSN,
		"SQLite data source name backing the datom log")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel,
		"log level: debug, info, warn, or error")

	rootCmd.AddCommand(transactCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(replCmd)

	rootCmd.SetContext(context.Background())
	return rootCmd.Execute()
}
