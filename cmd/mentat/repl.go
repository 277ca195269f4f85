// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mentatdb/mentat/engine"
	"github.com/mentatdb/mentat/query"
	"github.com/mentatdb/mentat/result"
	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/txn"
)

const exitPromptMessage = "Exit? (y/N): "

var replHistoryPath string

// repl holds the liner session state around the shared app collaborators.
type repl struct {
	a           *app
	out         io.Writer
	historyPath string
}

func newREPL(a *app, out io.Writer, historyPath string) *repl {
	return &repl{a: a, out: out, historyPath: historyPath}
}

// loop runs until the user types "exit", hits Ctrl+D and confirms, or an
// unrecoverable I/O error occurs.
func (r *repl) loop(ctx context.Context) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(true)
	r.loadHistory(line)

	fmt.Fprintln(r.out, "mentat repl. Commands: transact, schema install, schema alter, query, exit.")

loop:
	for {
		input, err := line.Prompt("mentat> ")

		if err == io.EOF {
			goto exitPrompt
		}
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			fmt.Fprintln(r.out, "error (fatal):", err)
			os.Exit(1)
		}

		if strings.TrimSpace(input) == "" {
			continue
		}

		stop, err := r.oneShot(ctx, input)
		if err != nil {
			fmt.Fprintln(r.out, "error:", err)
		}
		line.AppendHistory(input)
		if stop {
			break loop
		}
	}
	r.saveHistory(line)
	return

exitPrompt:
	fmt.Fprintln(r.out)
	for {
		input, err := line.Prompt(exitPromptMessage)
		if err == io.EOF {
			break
		}
		if err == liner.ErrPromptAborted {
			goto loop
		}
		if err != nil {
			fmt.Fprintln(r.out, "error (fatal):", err)
			os.Exit(1)
		}
		switch strings.ToLower(strings.TrimSpace(input)) {
		case "", "y", "yes":
			r.saveHistory(line)
			return
		case "n", "no":
			goto loop
		}
	}
	r.saveHistory(line)
}

// oneShot evaluates a single line of input. A command is the first
// whitespace-delimited word; the rest of the line is decoded as JSON in
// the same wire shapes the transact/schema/query subcommands accept. It
// reports whether the REPL should exit.
func (r *repl) oneShot(ctx context.Context, line string) (bool, error) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 2)
	cmd := fields[0]
	var rest string
	if len(fields) > 1 {
		rest = fields[1]
	}

	switch cmd {
	case "exit", "quit":
		return true, nil
	case "transact":
		return false, r.transact(ctx, rest)
	case "query":
		return false, r.query(ctx, rest)
	case "schema":
		return false, r.schema(ctx, rest)
	default:
		return false, errors.Errorf("unknown command %q (want transact, schema, query, or exit)", cmd)
	}
}

func (r *repl) transact(ctx context.Context, body string) error {
	var raw []jsonAssertion
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return errors.Wrapf(err, "decode assertions")
	}

	sch := r.a.tx.Schema()
	assertions := make([]txn.Assertion, len(raw))
	for i, ja := range raw {
		assertion, err := ja.toAssertion(sch)
		if err != nil {
			return errors.Wrapf(err, "assertion %d", i)
		}
		assertions[i] = assertion
	}

	report, err := r.a.tx.Transact(ctx, assertions)
	if err != nil {
		return errors.Wrapf(err, "transact")
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		TxID      int64            `json:"tx_id"`
		TxInstant string           `json:"tx_instant"`
		Tempids   map[string]int64 `json:"tempids"`
	}{
		TxID:      report.TxID,
		TxInstant: report.TxInstant.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Tempids:   tempidsToJSON(report.Tempids),
	})
}

func (r *repl) schema(ctx context.Context, rest string) error {
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	if len(fields) < 2 {
		return errors.Errorf("usage: schema install|alter <json>")
	}
	sub, body := fields[0], fields[1]

	var ja jsonAttribute
	if err := json.Unmarshal([]byte(body), &ja); err != nil {
		return errors.Wrapf(err, "decode attribute")
	}
	if ja.Ident == "" {
		return errors.Errorf("ident is required")
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")

	switch sub {
	case "install":
		b := schema.NewInstallBuilder()
		if err := ja.applyTo(b, true); err != nil {
			return err
		}
		kw := parseKeywordString(ja.Ident)
		id, err := r.a.tx.InstallAttribute(ctx, kw, b)
		if err != nil {
			return errors.Wrapf(err, "install %s", ja.Ident)
		}
		return enc.Encode(struct {
			Ident string `json:"ident"`
			Entid int64  `json:"entid"`
		}{Ident: ja.Ident, Entid: int64(id)})
	case "alter":
		b := schema.NewAlterBuilder()
		if err := ja.applyTo(b, false); err != nil {
			return err
		}
		kw := parseKeywordString(ja.Ident)
		kinds, err := r.a.tx.AlterAttribute(kw, b)
		if err != nil {
			return errors.Wrapf(err, "alter %s", ja.Ident)
		}
		kindStrings := make([]string, len(kinds))
		for i, k := range kinds {
			kindStrings[i] = k.String()
		}
		return enc.Encode(struct {
			Ident       string   `json:"ident"`
			Alterations []string `json:"alterations"`
		}{Ident: ja.Ident, Alterations: kindStrings})
	default:
		return errors.Errorf("schema subcommand must be \"install\" or \"alter\", got %q", sub)
	}
}

func (r *repl) query(ctx context.Context, body string) error {
	var jf jsonForm
	if err := json.Unmarshal([]byte(body), &jf); err != nil {
		return errors.Wrapf(err, "decode query form")
	}

	form, inputs, err := jf.build()
	if err != nil {
		return err
	}

	sch := r.a.tx.Schema()
	cc, errs := query.Algebrize(sch, form, inputs)
	if len(errs) != 0 {
		return errors.Wrapf(errs, "algebrize")
	}
	r.a.metrics.QueryAlgebrized(cc.IsEmpty())

	facts, err := loadFacts(ctx, r.a.store)
	if err != nil {
		return err
	}

	rawRows, err := engine.Execute(cc, facts)
	if err != nil {
		return errors.Wrapf(err, "execute")
	}
	rows := make([]result.Row, len(rawRows))
	for i, row := range rawRows {
		rows[i] = result.Row(row)
	}

	projected, err := result.Project(cc, rows)
	if err != nil {
		return errors.Wrapf(err, "project")
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(projected)
}

func (r *repl) loadHistory(prompt *liner.State) {
	if f, err := os.Open(r.historyPath); err == nil {
		_, _ = prompt.ReadHistory(f)
		f.Close()
	}
}

func (r *repl) saveHistory(prompt *liner.State) {
	if r.historyPath == "" {
		return
	}
	if f, err := os.Create(r.historyPath); err == nil {
		_, _ = prompt.WriteHistory(f)
		f.Close()
	}
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive line-editing session over the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := appFromContext(cmd.Context())
		r := newREPL(a, cmd.OutOrStdout(), replHistoryPath)
		r.loop(cmd.Context())
		return nil
	},
}

func init() {
	home, err := os.UserHomeDir()
	defaultHistory := ".mentat_history"
	if err == nil {
		defaultHistory = filepath.Join(home, ".mentat_history")
	}
	replCmd.Flags().StringVar(&replHistoryPath, "history-file", defaultHistory, "path to the repl history file")
}
