// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package config resolves runtime configuration for cmd/mentat from
// environment variables prefixed MENTAT_, and binds any flag a command
// leaves at its default to the matching environment variable. Ground
// truth: cmd/internal/env/env.go's viper-backed flag/environment
// reconciliation, generalized from a single global prefix to the
// storage DSN, log level, and attribute-builder default this core
// needs (spec's ambient configuration concern).
package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const globalPrefix = "mentat"

// Config holds the resolved runtime settings.
type Config struct {
	// StorageDSN is the modernc.org/sqlite data source name the store
	// package opens. Defaults to a shared in-memory database.
	StorageDSN string
	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string
	// Helpful is resolved from MENTAT_HELPFUL. cmd/mentat's schema
	// commands do not read it; they enable AttributeBuilder.Helpful() only
	// from a definition's "helpful" field.
	Helpful bool
}

// Load resolves Config from MENTAT_-prefixed environment variables,
// falling back to defaults matching spec §6's embedded-storage
// assumption.
func Load() *Config {
	v := viper.New()
	v.SetEnvPrefix(globalPrefix)
	v.AutomaticEnv()
	v.SetDefault("storage_dsn", "file::memory:?cache=shared")
	v.SetDefault("log_level", "info")
	v.SetDefault("helpful", false)

	return &Config{
		StorageDSN: v.GetString("storage_dsn"),
		LogLevel:   v.GetString("log_level"),
		Helpful:    v.GetBool("helpful"),
	}
}

// BindCommandFlags applies any MENTAT_<COMMAND>_<FLAG> (or, for the root
// command, MENTAT_<FLAG>) environment variable over a flag the caller
// left at its default, the same precedence rule
// cmdFlagsImpl.CheckEnvironmentVariables enforces in the teacher.
func BindCommandFlags(cmd *cobra.Command) error {
	v := viper.New()
	v.AutomaticEnv()
	if cmd.Name() == globalPrefix {
		v.SetEnvPrefix(cmd.Name())
	} else {
		v.SetEnvPrefix(fmt.Sprintf("%s_%s", globalPrefix, cmd.Name()))
	}

	var errs []string
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		name := strings.ReplaceAll(f.Name, "-", "_")
		if !f.Changed && v.IsSet(name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(name))); err != nil {
				errs = append(errs, err.Error())
			}
		}
	})

	if len(errs) == 0 {
		return nil
	}
	return errors.Errorf("error mapping environment variables to command flags: %s", strings.Join(errs, "; "))
}
