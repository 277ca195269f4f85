// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package config

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	c := Load()
	if c.StorageDSN != "file::memory:?cache=shared" {
		t.Fatalf("unexpected default DSN: %s", c.StorageDSN)
	}
	if c.LogLevel != "info" {
		t.Fatalf("unexpected default log level: %s", c.LogLevel)
	}
	if c.Helpful {
		t.Fatalf("expected helpful to default false")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MENTAT_STORAGE_DSN", "file:/tmp/mentat.db")
	t.Setenv("MENTAT_LOG_LEVEL", "debug")
	t.Setenv("MENTAT_HELPFUL", "true")

	c := Load()
	if c.StorageDSN != "file:/tmp/mentat.db" {
		t.Fatalf("expected env-overridden DSN, got %s", c.StorageDSN)
	}
	if c.LogLevel != "debug" {
		t.Fatalf("expected env-overridden log level, got %s", c.LogLevel)
	}
	if !c.Helpful {
		t.Fatalf("expected env-overridden helpful=true")
	}
}

func TestBindCommandFlagsAppliesUnsetFlagFromEnv(t *testing.T) {
	t.Setenv("MENTAT_QUERY_LIMIT", "50")

	cmd := &cobra.Command{Use: "query"}
	cmd.Flags().Int("limit", 10, "result limit")

	if err := BindCommandFlags(cmd); err != nil {
		t.Fatalf("BindCommandFlags: %v", err)
	}
	got, err := cmd.Flags().GetInt("limit")
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 50 {
		t.Fatalf("expected limit overridden to 50, got %d", got)
	}
}

func TestBindCommandFlagsLeavesExplicitFlagAlone(t *testing.T) {
	t.Setenv("MENTAT_QUERY_LIMIT", "50")

	cmd := &cobra.Command{Use: "query"}
	cmd.Flags().Int("limit", 10, "result limit")
	if err := cmd.Flags().Set("limit", "7"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := BindCommandFlags(cmd); err != nil {
		t.Fatalf("BindCommandFlags: %v", err)
	}
	got, err := cmd.Flags().GetInt("limit")
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected explicitly-set flag to remain 7, got %d", got)
	}
}
