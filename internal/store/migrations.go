package store

import (
	"context"
	"fmt"
	"strings"
)

// Migrate applies the idempotent schema for the database's driver.
func Migrate(ctx context.Context, d *DB) error {
	if d == nil || d.SQL == nil {
		return fmt.Errorf("migrations: db is nil")
	}
	var schema string
	switch d.Driver {
	case DriverPostgres:
		schema = schemaPostgres
	case DriverSQLite:
		schema = schemaSQLite
	default:
		return fmt.Errorf("migrations: unsupported driver %q", d.Driver)
	}

	// Some drivers reject multi-statement scripts; fall back to one at a time.
	if _, err := d.SQL.ExecContext(ctx, schema); err != nil {
		for _, stmt := range splitSQL(schema) {
			if _, e := d.SQL.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("migrations: failed at:\n%s\nerr: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS assessment_instances (
  id              TEXT PRIMARY KEY,
  scale_id        TEXT NOT NULL,
  subject_id      TEXT NOT NULL DEFAULT '',
  age_months      INTEGER NOT NULL,
  gender          TEXT NOT NULL,
  administered_at BIGINT NOT NULL,
  status          TEXT NOT NULL,
  updated_at      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instances_status ON assessment_instances(status);

CREATE TABLE IF NOT EXISTS item_responses (
  instance_id TEXT NOT NULL REFERENCES assessment_instances(id),
  item_id     INTEGER NOT NULL,
  sequence    INTEGER NOT NULL,
  value       INTEGER NOT NULL,
  omitted     BOOLEAN NOT NULL DEFAULT FALSE,
  PRIMARY KEY (instance_id, sequence, item_id)
);

CREATE TABLE IF NOT EXISTS score_results (
  instance_id   TEXT PRIMARY KEY,
  scale_id      TEXT NOT NULL,
  overall_label TEXT NOT NULL,
  verdict       TEXT NOT NULL,
  input_digest  TEXT NOT NULL,
  result_json   TEXT NOT NULL,
  scored_at     BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS norms (
  scale_id  TEXT NOT NULL,
  domain    TEXT NOT NULL,
  age_group TEXT NOT NULL,
  gender    TEXT NOT NULL,
  mean      DOUBLE PRECISION NOT NULL,
  sd        DOUBLE PRECISION NOT NULL,
  PRIMARY KEY (scale_id, domain, age_group, gender)
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS assessment_instances (
  id              TEXT PRIMARY KEY,
  scale_id        TEXT NOT NULL,
  subject_id      TEXT NOT NULL DEFAULT '',
  age_months      INTEGER NOT NULL,
  gender          TEXT NOT NULL,
  administered_at INTEGER NOT NULL,
  status          TEXT NOT NULL,
  updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instances_status ON assessment_instances(status);

CREATE TABLE IF NOT EXISTS item_responses (
  instance_id TEXT NOT NULL REFERENCES assessment_instances(id),
  item_id     INTEGER NOT NULL,
  sequence    INTEGER NOT NULL,
  value       INTEGER NOT NULL,
  omitted     INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (instance_id, sequence, item_id)
);

CREATE TABLE IF NOT EXISTS score_results (
  instance_id   TEXT PRIMARY KEY,
  scale_id      TEXT NOT NULL,
  overall_label TEXT NOT NULL,
  verdict       TEXT NOT NULL,
  input_digest  TEXT NOT NULL,
  result_json   TEXT NOT NULL,
  scored_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS norms (
  scale_id  TEXT NOT NULL,
  domain    TEXT NOT NULL,
  age_group TEXT NOT NULL,
  gender    TEXT NOT NULL,
  mean      REAL NOT NULL,
  sd        REAL NOT NULL,
  PRIMARY KEY (scale_id, domain, age_group, gender)
);
`

func splitSQL(s string) []string {
	raw := strings.Split(s, ";")
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part+";")
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
