// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mentatdb/mentat/schema"
	"github.com/mentatdb/mentat/value"
)

// jsonAttribute is the wire shape of one attribute definition, accepted
// by both "schema install" and "schema alter".
type jsonAttribute struct {
	Ident     string `json:"ident"`
	ValueType string `json:"value_type,omitempty"`
	Multival  *bool  `json:"multival,omitempty"`
	Unique    string `json:"unique,omitempty"`
	Index     *bool  `json:"index,omitempty"`
	Fulltext  *bool  `json:"fulltext,omitempty"`
	Component *bool  `json:"component,omitempty"`
	NoHistory *bool  `json:"no_history,omitempty"`
	Helpful   bool   `json:"helpful,omitempty"`
}

func parseValueType(s string) (value.Type, error) {
	for _, t := range value.All() {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown value type %q", s)
}

func parseUnique(s string) (schema.Unique, error) {
	switch s {
	case "", "none":
		return schema.UniqueNone, nil
	case "value":
		return schema.UniqueValue, nil
	case "identity":
		return schema.UniqueIdentity, nil
	default:
		return 0, errors.Errorf("unknown uniqueness constraint %q", s)
	}
}

func (ja jsonAttribute) applyTo(b *schema.AttributeBuilder, requireValueType bool) error {
	if ja.Helpful {
		b.Helpful()
	}
	if ja.ValueType != "" {
		t, err := parseValueType(ja.ValueType)
		if err != nil {
			return err
		}
		b.ValueType(t)
	} else if requireValueType {
		return errors.Errorf("value_type is required to install an attribute")
	}
	if ja.Multival != nil {
		b.Multival(*ja.Multival)
	}
	if ja.Unique != "" {
		u, err := parseUnique(ja.Unique)
		if err != nil {
			return err
		}
		b.Unique(u)
	}
	if ja.Index != nil {
		b.Index(*ja.Index)
	}
	if ja.Fulltext != nil {
		b.Fulltext(*ja.Fulltext)
	}
	if ja.Component != nil {
		b.Component(*ja.Component)
	}
	if ja.NoHistory != nil {
		b.NoHistory(*ja.NoHistory)
	}
	return nil
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Install or alter attribute metadata",
}

var schemaInstallCmd = &cobra.Command{
	Use:   "install [file]",
	Short: "Install one new attribute from a JSON definition",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFromContext(cmd.Context())

		r, err := openInput(args)
		if err != nil {
			return err
		}
		defer r.Close()

		var ja jsonAttribute
		if err := json.NewDecoder(r).Decode(&ja); err != nil {
			return errors.Wrapf(err, "decode attribute")
		}
		if ja.Ident == "" {
			return errors.Errorf("ident is required")
		}

		b := schema.NewInstallBuilder()
		if err := ja.applyTo(b, true); err != nil {
			return err
		}

		kw := parseKeywordString(ja.Ident)
		id, err := a.tx.InstallAttribute(cmd.Context(), kw, b)
		if err != nil {
			return errors.Wrapf(err, "install %s", ja.Ident)
		}

		return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
			Ident string `json:"ident"`
			Entid int64  `json:"entid"`
		}{Ident: ja.Ident, Entid: int64(id)})
	},
}

var schemaAlterCmd = &cobra.Command{
	Use:   "alter [file]",
	Short: "Alter an existing attribute from a JSON definition",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := appFromContext(cmd.Context())

		r, err := openInput(args)
		if err != nil {
			return err
		}
		defer r.Close()

		var ja jsonAttribute
		if err := json.NewDecoder(r).Decode(&ja); err != nil {
			return errors.Wrapf(err, "decode attribute")
		}
		if ja.Ident == "" {
			return errors.Errorf("ident is required")
		}

		b := schema.NewAlterBuilder()
		if err := ja.applyTo(b, false); err != nil {
			return err
		}

		kw := parseKeywordString(ja.Ident)
		kinds, err := a.tx.AlterAttribute(kw, b)
		if err != nil {
			return errors.Wrapf(err, "alter %s", ja.Ident)
		}

		kindStrings := make([]string, len(kinds))
		for i, k := range kinds {
			kindStrings[i] = k.String()
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
			Ident      string   `json:"ident"`
			Alterations []string `json:"alterations"`
		}{Ident: ja.Ident, Alterations: kindStrings})
	},
}

func init() {
	schemaCmd.AddCommand(schemaInstallCmd)
	schemaCmd.AddCommand(schemaAlterCmd)
}
