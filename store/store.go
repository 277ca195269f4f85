// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package store is the embedded storage collaborator spec §6 describes
// but leaves external to the core: a session handle over an append-only
// datom log, indexed lookup by (e,a), (a,v), and (v), and a fulltext
// search primitive. It implements txn.Store so a *Store can be handed
// directly to txn.NewTransactor.
//
// Ground truth: storage/inmem/inmem.go's mutex-guarded, map-indexed
// store, reworked from an in-memory document tree onto an embedded
// modernc.org/sqlite database — the core's logical datom model maps
// onto a single append-only table plus covering indices rather than
// inmem's nested maps, but the session discipline (one writer at a
// time, readers see a consistent snapshot) is the same shape.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/mentatdb/mentat/ident"
	"github.com/mentatdb/mentat/value"
)

// firstUserEntid is the first entid NextEntid hands out. Entids below it
// are reserved for the core's own pseudo-attributes (:db/txInstant and
// :db/txUuid occupy 1 and 2; see txn.ensurePseudoAttributes).
const firstUserEntid = 1000

// Store is a single embedded SQLite database holding the datom log. All
// methods are safe for concurrent use; writes are additionally
// serialized by mu, matching spec §5's single-writer assumption.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at dsn and
// ensures the datom log schema exists. dsn is passed through verbatim
// to modernc.org/sqlite, e.g. "file::memory:?cache=shared" or
// "file:/var/lib/mentat/db.sqlite".
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %q", dsn)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS datoms (
	rowid     INTEGER PRIMARY KEY AUTOINCREMENT,
	e         INTEGER NOT NULL,
	a         INTEGER NOT NULL,
	v_type    INTEGER NOT NULL,
	v_long    INTEGER,
	v_double  REAL,
	v_string  TEXT,
	v_bool    INTEGER,
	v_bytes   BLOB,
	tx        INTEGER NOT NULL,
	added     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS datoms_ea ON datoms(e, a);
CREATE INDEX IF NOT EXISTS datoms_av_long ON datoms(a, v_long);
CREATE INDEX IF NOT EXISTS datoms_av_double ON datoms(a, v_double);
CREATE INDEX IF NOT EXISTS datoms_av_string ON datoms(a, v_string);
CREATE INDEX IF NOT EXISTS datoms_v_string ON datoms(v_string);

CREATE TABLE IF NOT EXISTS entid_seq (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	next INTEGER NOT NULL
);
INSERT OR IGNORE INTO entid_seq(id, next) VALUES (1, ` + fmt.Sprint(firstUserEntid) + `);
`
	_, err := s.db.Exec(schema)
	if err != nil {
		return errors.Wrapf(err, "store: migrate")
	}
	return nil
}

// NextEntid allocates and returns a fresh entid, monotonically
// increasing and never reused, satisfying txn.Store.
func (s *Store) NextEntid(ctx context.Context) (ident.Entid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "store: begin")
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT next FROM entid_seq WHERE id = 1`).Scan(&next); err != nil {
		return 0, errors.Wrapf(err, "store: read entid_seq")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE entid_seq SET next = ? WHERE id = 1`, next+1); err != nil {
		return 0, errors.Wrapf(err, "store: advance entid_seq")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(err, "store: commit entid_seq")
	}
	return ident.Entid(next), nil
}

// Lookup finds the entity currently asserting attribute a with value v,
// i.e. the most recent (e,a,v) datom that has not been retracted by a
// later transaction. Satisfies txn.Store, used by the transactor's
// unique=Identity upsert resolution.
func (s *Store) Lookup(ctx context.Context, a ident.Entid, v value.Value) (ident.Entid, bool, error) {
	col, arg, err := valueColumn(v)
	if err != nil {
		return 0, false, err
	}
	query := fmt.Sprintf(
		`SELECT e, added FROM datoms WHERE a = ? AND v_type = ? AND %s = ? ORDER BY tx DESC, rowid DESC LIMIT 1`,
		col,
	)
	var e int64
	var added bool
	err = s.db.QueryRowContext(ctx, query, int64(a), int(v.Type), arg).Scan(&e, &added)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "store: lookup")
	}
	if !added {
		return 0, false, nil
	}
	return ident.Entid(e), true, nil
}

// WriteDatom appends one datom to the log. Satisfies txn.Store.
func (s *Store) WriteDatom(ctx context.Context, e, a ident.Entid, v value.Value, tx int64, added bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := encodeValue(v)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datoms (e, a, v_type, v_long, v_double, v_string, v_bool, v_bytes, tx, added)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(e), int64(a), int(v.Type), row.long, row.double, row.str, row.boolean, row.bytes, tx, added,
	)
	if err != nil {
		return errors.Wrapf(err, "store: write datom")
	}
	return nil
}

// DatomsForEntity returns every live (non-retracted) datom asserted
// against entity e, the (e,*) index of spec §6.
func (s *Store) DatomsForEntity(ctx context.Context, e ident.Entid) ([]Datom, error) {
	return s.queryDatoms(ctx, `WHERE e = ?`, int64(e))
}

// DatomsForAttribute returns every live datom asserting attribute a, the
// (a,*) index of spec §6.
func (s *Store) DatomsForAttribute(ctx context.Context, a ident.Entid) ([]Datom, error) {
	return s.queryDatoms(ctx, `WHERE a = ?`, int64(a))
}

// DatomsForValue returns every live datom asserting value v against any
// attribute, the (v,*) index of spec §6.
func (s *Store) DatomsForValue(ctx context.Context, v value.Value) ([]Datom, error) {
	col, arg, err := valueColumn(v)
	if err != nil {
		return nil, err
	}
	return s.queryDatoms(ctx, fmt.Sprintf(`WHERE v_type = ? AND %s = ?`, col), int(v.Type), arg)
}

// AllDatoms returns every live datom in the log. Intended for handing a
// full working set to a reference executor (cmd/mentat's query command
// does this to build an engine.Facts); not an index the storage
// contract itself requires.
func (s *Store) AllDatoms(ctx context.Context) ([]Datom, error) {
	return s.queryDatoms(ctx, ``)
}

// Datom is one logical fact: entity e asserts attribute a has value v as
// of transaction tx.
type Datom struct {
	E  ident.Entid
	A  ident.Entid
	V  value.Value
	Tx int64
}

func (s *Store) queryDatoms(ctx context.Context, where string, args ...interface{}) ([]Datom, error) {
	// Only the latest row per (e,a,v_type,v_long,v_double,v_string,v_bool,v_bytes)
	// is live; a later "added=0" retraction for the same tuple removes it.
	// Grouping on the full value columns approximates value identity, which
	// is sufficient because the value model's Equal is exactly columnwise
	// equality of the populated fields per type (see value.Equal).
	query := fmt.Sprintf(`
		SELECT e, a, v_type, v_long, v_double, v_string, v_bool, v_bytes, tx, added
		FROM datoms
		%s
		ORDER BY rowid ASC`, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "store: query datoms")
	}
	defer rows.Close()

	type key struct {
		e, a, vType int64
		long        sql.NullInt64
		double      sql.NullFloat64
		str         sql.NullString
		boolean     sql.NullInt64
		bytesHex    string
	}
	live := map[key]Datom{}
	for rows.Next() {
		var e, a int64
		var vType int64
		var long sql.NullInt64
		var double sql.NullFloat64
		var str sql.NullString
		var boolean sql.NullInt64
		var bytes []byte
		var tx int64
		var added bool
		if err := rows.Scan(&e, &a, &vType, &long, &double, &str, &boolean, &bytes, &tx, &added); err != nil {
			return nil, errors.Wrapf(err, "store: scan datom")
		}
		k := key{e: e, a: a, vType: vType, long: long, double: double, str: str, boolean: boolean, bytesHex: string(bytes)}
		if !added {
			delete(live, k)
			continue
		}
		v, derr := decodeValue(value.Type(vType), long, double, str, boolean, bytes)
		if derr != nil {
			return nil, derr
		}
		live[k] = Datom{E: ident.Entid(e), A: ident.Entid(a), V: v, Tx: tx}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "store: iterate datoms")
	}

	out := make([]Datom, 0, len(live))
	for _, d := range live {
		out = append(out, d)
	}
	return out, nil
}

// FulltextMatch is one hit from a fulltext search: the entity and value
// asserting the matched attribute, the transaction that asserted it, and
// a relevance score (higher is more relevant).
type FulltextMatch struct {
	E     ident.Entid
	V     string
	Tx    int64
	Score int
}

// FulltextSearch implements spec §6's fulltext search primitive: given an
// attribute entid (the caller is responsible for checking
// schema.Attribute.Fulltext) and a search term, returns every live datom
// whose string value contains the term, scored by occurrence count.
//
// This is a substring-match scan rather than a real inverted index
// (SQLite FTS5 virtual tables need schema wiring this package does not
// own); it is correct, just not sublinear. A future iteration can swap
// the query body for an FTS5-backed one without touching the interface.
func (s *Store) FulltextSearch(ctx context.Context, a ident.Entid, term string) ([]FulltextMatch, error) {
	if term == "" {
		return nil, errors.Errorf("store: fulltext search term must not be empty")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT e, v_string, tx, added FROM datoms
		 WHERE a = ? AND v_type = ? AND v_string LIKE ? ESCAPE '\'
		 ORDER BY rowid ASC`,
		int64(a), int(value.String), "%"+escapeLike(term)+"%",
	)
	if err != nil {
		return nil, errors.Wrapf(err, "store: fulltext search")
	}
	defer rows.Close()

	type key struct {
		e int64
		v string
	}
	live := map[key]FulltextMatch{}
	for rows.Next() {
		var e, tx int64
		var v string
		var added bool
		if err := rows.Scan(&e, &v, &tx, &added); err != nil {
			return nil, errors.Wrapf(err, "store: scan fulltext row")
		}
		k := key{e: e, v: v}
		if !added {
			delete(live, k)
			continue
		}
		live[k] = FulltextMatch{E: ident.Entid(e), V: v, Tx: tx, Score: strings.Count(v, term)}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "store: iterate fulltext rows")
	}

	out := make([]FulltextMatch, 0, len(live))
	for _, m := range live {
		out = append(out, m)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

type encodedValue struct {
	long    sql.NullInt64
	double  sql.NullFloat64
	str     sql.NullString
	boolean sql.NullInt64
	bytes   []byte
}

func encodeValue(v value.Value) encodedValue {
	switch v.Type {
	case value.Boolean:
		b := int64(0)
		if v.Bool() {
			b = 1
		}
		return encodedValue{boolean: sql.NullInt64{Int64: b, Valid: true}}
	case value.Long:
		return encodedValue{long: sql.NullInt64{Int64: v.Long(), Valid: true}}
	case value.Double:
		return encodedValue{double: sql.NullFloat64{Float64: v.Double(), Valid: true}}
	case value.String, value.Keyword:
		return encodedValue{str: sql.NullString{String: v.Str(), Valid: true}}
	case value.Uuid:
		return encodedValue{str: sql.NullString{String: v.UUID().String(), Valid: true}}
	case value.Instant:
		return encodedValue{long: sql.NullInt64{Int64: v.Time().UnixNano(), Valid: true}}
	case value.Ref:
		return encodedValue{long: sql.NullInt64{Int64: v.Entid(), Valid: true}}
	case value.Bytes:
		return encodedValue{bytes: v.Raw()}
	default:
		return encodedValue{}
	}
}

// valueColumn returns the column to equality-match against for a value
// of v's type, and the argument to bind to it. Keyword and String share
// v_string, so callers must also filter on v_type, which Lookup does.
func valueColumn(v value.Value) (string, interface{}, error) {
	switch v.Type {
	case value.Boolean:
		b := int64(0)
		if v.Bool() {
			b = 1
		}
		return "v_bool", b, nil
	case value.Long:
		return "v_long", v.Long(), nil
	case value.Double:
		return "v_double", v.Double(), nil
	case value.String, value.Keyword:
		return "v_string", v.Str(), nil
	case value.Uuid:
		return "v_string", v.UUID().String(), nil
	case value.Instant:
		return "v_long", v.Time().UnixNano(), nil
	case value.Ref:
		return "v_long", v.Entid(), nil
	case value.Bytes:
		return "v_bytes", v.Raw(), nil
	default:
		return "", nil, errors.Errorf("store: unhandled value type %v", v.Type)
	}
}

func decodeValue(t value.Type, long sql.NullInt64, double sql.NullFloat64, str sql.NullString, boolean sql.NullInt64, bytes []byte) (value.Value, error) {
	switch t {
	case value.Boolean:
		return value.NewBoolean(boolean.Valid && boolean.Int64 != 0), nil
	case value.Long:
		return value.NewLong(long.Int64), nil
	case value.Double:
		return value.NewDouble(double.Float64), nil
	case value.String:
		return value.NewString(str.String), nil
	case value.Keyword:
		return value.NewKeyword(str.String), nil
	case value.Uuid:
		u, err := uuid.Parse(str.String)
		if err != nil {
			return value.Value{}, errors.Wrapf(err, "store: decode uuid")
		}
		return value.NewUuid(u), nil
	case value.Instant:
		return value.NewInstant(time.Unix(0, long.Int64).UTC()), nil
	case value.Ref:
		return value.NewRef(long.Int64), nil
	case value.Bytes:
		return value.NewBytes(bytes), nil
	default:
		return value.Value{}, errors.Errorf("store: unhandled value type %d", t)
	}
}
