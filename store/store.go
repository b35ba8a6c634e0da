// Package store persists resource and rule configuration in a sqlite
// database. Configurations are stored as JSON blobs keyed by id; the
// gateway loads them at startup and rebuilds the live resources.
package store

import (
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/datagate-io/datagate/errors"
)

// Resource kinds stored in the resources table.
const (
	KindSource = "source"
	KindSink   = "sink"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id     TEXT PRIMARY KEY,
	kind   TEXT NOT NULL,
	config TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rules (
	id     TEXT PRIMARY KEY,
	config TEXT NOT NULL
);
`

// Store wraps the sqlite database holding gateway configuration.
type Store struct {
	db *sqlx.DB
}

// Open opens (and if needed creates) the database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Open", "open "+path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "Store", "Open", "apply schema")
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type resourceRow struct {
	ID     string `db:"id"`
	Kind   string `db:"kind"`
	Config string `db:"config"`
}

type ruleRow struct {
	ID     string `db:"id"`
	Config string `db:"config"`
}

// SaveResource upserts one resource configuration.
func (s *Store) SaveResource(id, kind string, cfg any) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(errors.ErrEncode, "Store", "SaveResource", "marshal "+id+": "+err.Error())
	}
	_, err = s.db.Exec(
		`INSERT INTO resources (id, kind, config) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, config = excluded.config`,
		id, kind, string(blob))
	if err != nil {
		return errors.Wrap(err, "Store", "SaveResource", "upsert "+id)
	}
	return nil
}

// LoadResources reads every stored configuration of one kind and
// unmarshals each into a fresh value produced by newCfg.
func LoadResources[T any](s *Store, kind string) (map[string]T, error) {
	var rows []resourceRow
	if err := s.db.Select(&rows, `SELECT id, kind, config FROM resources WHERE kind = ?`, kind); err != nil {
		return nil, errors.Wrap(err, "Store", "LoadResources", "select "+kind)
	}
	out := make(map[string]T, len(rows))
	for _, row := range rows {
		var cfg T
		if err := json.Unmarshal([]byte(row.Config), &cfg); err != nil {
			return nil, errors.Wrap(errors.ErrDecode, "Store", "LoadResources", "unmarshal "+row.ID+": "+err.Error())
		}
		out[row.ID] = cfg
	}
	return out, nil
}

// DeleteResource removes one resource configuration.
func (s *Store) DeleteResource(id string) error {
	res, err := s.db.Exec(`DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "Store", "DeleteResource", "delete "+id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrNotFound, "Store", "DeleteResource", id)
	}
	return nil
}

// SaveRule upserts one rule definition.
func (s *Store) SaveRule(id string, def any) error {
	blob, err := json.Marshal(def)
	if err != nil {
		return errors.Wrap(errors.ErrEncode, "Store", "SaveRule", "marshal "+id+": "+err.Error())
	}
	_, err = s.db.Exec(
		`INSERT INTO rules (id, config) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET config = excluded.config`,
		id, string(blob))
	if err != nil {
		return errors.Wrap(err, "Store", "SaveRule", "upsert "+id)
	}
	return nil
}

// LoadRules reads every stored rule definition.
func LoadRules[T any](s *Store) (map[string]T, error) {
	var rows []ruleRow
	if err := s.db.Select(&rows, `SELECT id, config FROM rules`); err != nil {
		return nil, errors.Wrap(err, "Store", "LoadRules", "select")
	}
	out := make(map[string]T, len(rows))
	for _, row := range rows {
		var def T
		if err := json.Unmarshal([]byte(row.Config), &def); err != nil {
			return nil, errors.Wrap(errors.ErrDecode, "Store", "LoadRules", "unmarshal "+row.ID+": "+err.Error())
		}
		out[row.ID] = def
	}
	return out, nil
}

// DeleteRule removes one rule definition.
func (s *Store) DeleteRule(id string) error {
	res, err := s.db.Exec(`DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "Store", "DeleteRule", "delete "+id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrap(errors.ErrNotFound, "Store", "DeleteRule", id)
	}
	return nil
}
