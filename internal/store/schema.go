package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const ddl = `
CREATE TABLE IF NOT EXISTS files (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    path   TEXT NOT NULL UNIQUE,
    hash   TEXT NOT NULL,
    lang   TEXT NOT NULL DEFAULT '',
    size   INTEGER NOT NULL DEFAULT 0,
    mtime  TEXT NOT NULL,
    parsed INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS chunks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id    INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    start_line INTEGER NOT NULL CHECK (start_line >= 1),
    end_line   INTEGER NOT NULL CHECK (end_line >= start_line),
    kind       TEXT NOT NULL DEFAULT '',
    text       TEXT NOT NULL,
    hash       TEXT NOT NULL,
    symbol_id  INTEGER REFERENCES symbols(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS symbols (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id          INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    name             TEXT NOT NULL,
    kind             TEXT NOT NULL,
    signature        TEXT NOT NULL DEFAULT '',
    start_line       INTEGER NOT NULL,
    end_line         INTEGER NOT NULL,
    doc              TEXT NOT NULL DEFAULT '',
    parent_symbol_id INTEGER REFERENCES symbols(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS edges (
    src_symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
    dst_symbol_id INTEGER NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
    edge_type     TEXT NOT NULL,
    UNIQUE (src_symbol_id, dst_symbol_id, edge_type)
);

CREATE TABLE IF NOT EXISTS packages (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    path       TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    package_id INTEGER REFERENCES packages(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS module_files (
    module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
    file_id   INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    UNIQUE (module_id, file_id)
);

CREATE TABLE IF NOT EXISTS summaries (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    level      TEXT NOT NULL CHECK (level IN ('chunk','file','module','package')),
    target_id  INTEGER NOT NULL,
    text       TEXT NOT NULL,
    confidence REAL NOT NULL,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_versions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    content        TEXT NOT NULL,
    created_at     TEXT NOT NULL,
    coverage_score REAL NOT NULL DEFAULT 0,
    citation_score REAL NOT NULL DEFAULT 0,
    issues_high    INTEGER NOT NULL DEFAULT 0,
    issues_med     INTEGER NOT NULL DEFAULT 0,
    issues_low     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS claims (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    report_version INTEGER NOT NULL REFERENCES report_versions(id) ON DELETE CASCADE,
    text           TEXT NOT NULL,
    citation_refs  TEXT NOT NULL,
    status         TEXT NOT NULL,
    severity       TEXT NOT NULL,
    rationale      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS iteration_status (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    report_version    INTEGER NOT NULL REFERENCES report_versions(id) ON DELETE CASCADE,
    iteration         INTEGER NOT NULL,
    coverage          REAL NOT NULL,
    support_rate      REAL NOT NULL,
    citation_rate     REAL NOT NULL,
    issues_high       INTEGER NOT NULL,
    issues_med        INTEGER NOT NULL,
    issues_low        INTEGER NOT NULL,
    missing_citations INTEGER NOT NULL,
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS retrieval_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    report_version INTEGER NOT NULL REFERENCES report_versions(id) ON DELETE CASCADE,
    iteration      INTEGER NOT NULL,
    prompt         TEXT NOT NULL,
    chunk_ids      TEXT NOT NULL,
    symbol_ids     TEXT NOT NULL,
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS iteration_issues (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    report_version INTEGER NOT NULL REFERENCES report_versions(id) ON DELETE CASCADE,
    iteration      INTEGER NOT NULL,
    severity       TEXT NOT NULL,
    description    TEXT NOT NULL,
    fix_hint       TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL
);

`

// ftsDDL declares the FTS5 index tables and the triggers that keep them
// in sync with their content tables. FTS5 is only compiled into
// mattn/go-sqlite3 under the sqlite_fts5 build tag, so this block is
// applied separately and its absence downgrades search to LIKE scans
// instead of failing the open.
const ftsDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
    text,
    content='chunks',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;
CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
    INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS summaries_fts USING fts5(
    text,
    content='summaries',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS summaries_ai AFTER INSERT ON summaries BEGIN
    INSERT INTO summaries_fts(rowid, text) VALUES (new.id, new.text);
END;
CREATE TRIGGER IF NOT EXISTS summaries_ad AFTER DELETE ON summaries BEGIN
    INSERT INTO summaries_fts(summaries_fts, rowid, text) VALUES ('delete', old.id, old.text);
END;
CREATE TRIGGER IF NOT EXISTS summaries_au AFTER UPDATE ON summaries BEGIN
    INSERT INTO summaries_fts(summaries_fts, rowid, text) VALUES ('delete', old.id, old.text);
    INSERT INTO summaries_fts(rowid, text) VALUES (new.id, new.text);
END;
`

// vecDDL declares the sqlite-vec virtual tables. The embedding dimension
// is fixed at schema creation, so it is interpolated here rather than in
// the static DDL block.
const vecDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);

CREATE VIRTUAL TABLE IF NOT EXISTS symbol_embeddings USING vec0(
    symbol_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);
`

// initSchema creates all schema objects. It runs exactly once per Store,
// at construction; nothing mutates the schema afterwards. The returned
// bool reports whether the FTS5 tables exist.
func initSchema(db *sql.DB, embeddingDim int) (bool, error) {
	if _, err := db.Exec(ddl); err != nil {
		return false, fmt.Errorf("create schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(vecDDL, embeddingDim, embeddingDim)); err != nil {
		return false, fmt.Errorf("create vector tables: %w", err)
	}
	if _, err := db.Exec(ftsDDL); err != nil {
		if strings.Contains(err.Error(), "fts5") {
			return false, nil
		}
		return false, fmt.Errorf("create fts tables: %w", err)
	}
	return true, nil
}
