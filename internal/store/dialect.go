package store

import (
    "fmt"
    "strings"
)

// Dialect covers the column types that differ between SQLite and PostgreSQL.
type Dialect interface {
    AutoIncrementPK() string
    BlobType() string
    BoolType() string
}

type sqliteDialect struct{}

func (sqliteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) BlobType() string        { return "BLOB" }
func (sqliteDialect) BoolType() string        { return "INTEGER" }

type postgresDialect struct{}

func (postgresDialect) AutoIncrementPK() string { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) BlobType() string        { return "BYTEA" }
func (postgresDialect) BoolType() string        { return "BOOLEAN" }

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
    n := 0
    var b strings.Builder
    for i := 0; i < len(query); i++ {
        if query[i] == '?' {
            n++
            fmt.Fprintf(&b, "$%d", n)
        } else {
            b.WriteByte(query[i])
        }
    }
    return b.String()
}

func schemaFor(d Dialect) string {
    return strings.NewReplacer(
        "{{pk}}", d.AutoIncrementPK(),
        "{{blob}}", d.BlobType(),
        "{{bool}}", d.BoolType(),
    ).Replace(schemaTemplate)
}

// Timestamps are unix milliseconds so due-time comparisons behave the same
// on both drivers.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS dispatch_log (
    id          {{pk}},
    session_id  TEXT NOT NULL DEFAULT '',
    job_id      TEXT NOT NULL,
    operator    TEXT NOT NULL DEFAULT '',
    success     {{bool}} NOT NULL,
    message     TEXT NOT NULL DEFAULT '',
    at_ms       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_job ON dispatch_log(job_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_session ON dispatch_log(session_id);

CREATE TABLE IF NOT EXISTS subscriptions (
    id          TEXT PRIMARY KEY,
    url         TEXT NOT NULL,
    events      TEXT NOT NULL,
    secret      TEXT NOT NULL DEFAULT '',
    owner       TEXT NOT NULL DEFAULT '',
    created_ms  BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id               TEXT PRIMARY KEY,
    subscription_id  TEXT NOT NULL DEFAULT '',
    event_type       TEXT NOT NULL,
    url              TEXT NOT NULL,
    secret           TEXT NOT NULL DEFAULT '',
    payload          {{blob}} NOT NULL,
    dedup_key        TEXT NOT NULL,
    status           TEXT NOT NULL,
    attempts         INTEGER NOT NULL DEFAULT 0,
    next_attempt_ms  BIGINT NOT NULL,
    last_error       TEXT NOT NULL DEFAULT '',
    response_code    INTEGER NOT NULL DEFAULT 0,
    latency_ms       INTEGER NOT NULL DEFAULT 0,
    delivered_ms     BIGINT,
    created_ms       BIGINT NOT NULL,
    UNIQUE (event_type, url, dedup_key)
);
CREATE INDEX IF NOT EXISTS idx_webhook_due ON webhook_deliveries(status, next_attempt_ms);
`
