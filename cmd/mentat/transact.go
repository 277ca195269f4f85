// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/txn"
)

var transactCmd = &cobra.Command{
	Use:   "transact [file]",
	Short: "Apply a JSON array of assertions, reading from a file or stdin",
	Long: `Reads a JSON array of assertions and applies them in a single transaction.

Each assertion has the shape:

	{"op": "add", "e": {"tempid": "alice"}, "a": "person/email", "v": "alice@example.com"}

"e" is either {"tempid": "<name>"} or {"entid": <int>}. "op" is "add" or
"retract". A :db.type/ref-valued attribute whose value is itself a
tempid uses "vtempid" instead of "v".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFromContext(cmd.Context())

		r, err := openInput(args)
		if err != nil {
			return err
		}
		defer r.Close()

		var raw []jsonAssertion
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return errors.Wrapf(err, "decode assertions")
		}

		sch := a.tx.Schema()
		assertions := make([]txn.Assertion, len(raw))
		for i, ja := range raw {
			assertion, err := ja.toAssertion(sch)
			if err != nil {
				return errors.Wrapf(err, "assertion %d", i)
			}
			assertions[i] = assertion
		}

		report, err := a.tx.Transact(cmd.Context(), assertions)
		if err != nil {
			return errors.Wrapf(err, "transact")
		}

		return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
			TxID      int64            `json:"tx_id"`
			TxInstant string           `json:"tx_instant"`
			Tempids   map[string]int64 `json:"tempids"`
		}{
			TxID:      report.TxID,
			TxInstant: report.TxInstant.Format("2006-01-02T15:04:05.999999999Z07:00"),
			Tempids:   tempidsToJSON(report.Tempids),
		})
	},
}

func tempidsToJSON(m map[string]ident.Entid) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = int64(v)
	}
	return out
}

func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", args[0])
	}
	return f, nil
}
