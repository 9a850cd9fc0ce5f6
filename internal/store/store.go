// Package store is the persistent knowledge base: relational tables for
// files, chunks, symbols, edges, summaries, reports and claims, plus
// FTS5 full-text indexes and sqlite-vec vector tables. One Store is
// owned by one pipeline run; writes go through this single connection
// while WAL journaling lets concurrent readers observe committed state.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	sqlite3 "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// IntegrityError reports a write that would violate a relational
// constraint. The offending write is aborted; surrounding state is
// untouched.
type IntegrityError struct {
	Op     string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: %s", e.Op, e.Detail)
}

// Options configure store construction.
type Options struct {
	// Persist keeps the backing file after Close. Ignored for ephemeral
	// stores (empty path), which are always deleted.
	Persist bool
	// AllowExisting permits opening a path that already exists. Without
	// it, reusing another run's data fails closed.
	AllowExisting bool
	// EmbeddingDim is the fixed vector length for the embedding tables.
	// Zero selects the default (768).
	EmbeddingDim int
}

const defaultEmbeddingDim = 768

// Store wraps the SQLite connection. Single writer, one logical owner.
type Store struct {
	db      *sql.DB
	path    string
	persist bool
	dim     int
	fts     bool
}

// Open creates the store at path, or an ephemeral temp-file store when
// path is empty. An existing path is refused unless opts.AllowExisting
// is set.
func Open(path string, opts Options) (*Store, error) {
	persist := opts.Persist
	if path == "" {
		f, err := os.CreateTemp("", "scribe-*.db")
		if err != nil {
			return nil, fmt.Errorf("create ephemeral store: %w", err)
		}
		path = f.Name()
		f.Close()
		os.Remove(path) // sqlite recreates it
		persist = false
	} else if _, err := os.Stat(path); err == nil && !opts.AllowExisting {
		return nil, fmt.Errorf("refusing to reuse existing store at %s", path)
	}

	dim := opts.EmbeddingDim
	if dim <= 0 {
		dim = defaultEmbeddingDim
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	fts, err := initSchema(db, dim)
	if err != nil {
		db.Close()
		if !persist {
			os.Remove(path)
		}
		return nil, err
	}
	return &Store{db: db, path: path, persist: persist, dim: dim, fts: fts}, nil
}

// FTSEnabled reports whether full-text search is backed by FTS5. It is
// false when the binary was built without the sqlite_fts5 tag; searches
// then degrade to LIKE scans.
func (s *Store) FTSEnabled() bool { return s.fts }

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// EmbeddingDim returns the fixed vector length of the embedding tables.
func (s *Store) EmbeddingDim() int { return s.dim }

// Close releases the connection and removes the backing file unless the
// store was opened with Persist.
func (s *Store) Close() error {
	err := s.db.Close()
	if !s.persist {
		os.Remove(s.path)
		os.Remove(s.path + "-wal")
		os.Remove(s.path + "-shm")
	}
	return err
}

// --- files ---

// FileHash returns the stored content hash for a path, or "" if the
// path has not been ingested.
func (s *Store) FileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM files WHERE path = ?", path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return hash, err
}

// UpsertFile inserts or updates a file record and returns its id. The
// same path always maps to the same id; a changed hash replaces the
// file's chunks, symbols, edges and embeddings.
func (s *Store) UpsertFile(f FileRecord) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	var existingHash string
	err = tx.QueryRow("SELECT id, hash FROM files WHERE path = ?", f.Path).Scan(&existingID, &existingHash)
	switch {
	case err == nil:
		if existingHash == f.Hash {
			return existingID, tx.Commit()
		}
		if err := deleteFileContents(tx, existingID); err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			"UPDATE files SET hash = ?, lang = ?, size = ?, mtime = ?, parsed = ? WHERE id = ?",
			f.Hash, f.Lang, f.Size, f.MTime.UTC().Format(time.RFC3339), boolToInt(f.Parsed), existingID,
		)
		if err != nil {
			return 0, err
		}
		return existingID, tx.Commit()
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(
			"INSERT INTO files (path, hash, lang, size, mtime, parsed) VALUES (?, ?, ?, ?, ?, ?)",
			f.Path, f.Hash, f.Lang, f.Size, f.MTime.UTC().Format(time.RFC3339), boolToInt(f.Parsed),
		)
		if err != nil {
			return 0, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		return id, tx.Commit()
	default:
		return 0, err
	}
}

func deleteFileContents(tx *sql.Tx, fileID int64) error {
	rows, err := tx.Query("SELECT id FROM chunks WHERE file_id = ?", fileID)
	if err != nil {
		return err
	}
	chunkIDs, err := scanIDs(rows)
	if err != nil {
		return err
	}
	for _, id := range chunkIDs {
		if _, err := tx.Exec("DELETE FROM chunk_embeddings WHERE chunk_id = ?", id); err != nil {
			return err
		}
	}
	rows, err = tx.Query("SELECT id FROM symbols WHERE file_id = ?", fileID)
	if err != nil {
		return err
	}
	symbolIDs, err := scanIDs(rows)
	if err != nil {
		return err
	}
	for _, id := range symbolIDs {
		if _, err := tx.Exec("DELETE FROM symbol_embeddings WHERE symbol_id = ?", id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM symbols WHERE file_id = ?", fileID); err != nil {
		return err
	}
	return nil
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const fileCols = "id, path, hash, lang, size, mtime, parsed"

func scanFile(row interface{ Scan(...any) error }) (FileRecord, error) {
	var f FileRecord
	var mtime string
	var parsed int
	if err := row.Scan(&f.ID, &f.Path, &f.Hash, &f.Lang, &f.Size, &mtime, &parsed); err != nil {
		return FileRecord{}, err
	}
	f.MTime, _ = time.Parse(time.RFC3339, mtime)
	f.Parsed = parsed != 0
	return f, nil
}

// FileByPath returns the file record for a path.
func (s *Store) FileByPath(path string) (FileRecord, bool, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, err
	}
	return f, true, nil
}

// FileByID returns the file record for an id.
func (s *Store) FileByID(id int64) (FileRecord, bool, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, err
	}
	return f, true, nil
}

// FileIDByPath implements cite.ChunkLookup.
func (s *Store) FileIDByPath(path string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return id, err == nil, err
}

// Files lists all ingested files ordered by path.
func (s *Store) Files() ([]FileRecord, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var files []FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileCount returns the number of ingested files.
func (s *Store) FileCount() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&n)
	return n, err
}

// --- chunks ---

const chunkCols = "id, file_id, start_line, end_line, kind, text, hash, COALESCE(symbol_id, 0)"

func scanChunk(row interface{ Scan(...any) error }) (ChunkRecord, error) {
	var c ChunkRecord
	err := row.Scan(&c.ID, &c.FileID, &c.StartLine, &c.EndLine, &c.Kind, &c.Text, &c.Hash, &c.SymbolID)
	return c, err
}

// AddChunks inserts chunks and returns their ids. Line ranges are
// validated before touching the database.
func (s *Store) AddChunks(chunks []ChunkRecord) ([]int64, error) {
	for _, c := range chunks {
		if c.StartLine < 1 || c.EndLine < c.StartLine {
			return nil, &IntegrityError{
				Op:     "AddChunks",
				Detail: fmt.Sprintf("bad line range %d-%d", c.StartLine, c.EndLine),
			}
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO chunks (file_id, start_line, end_line, kind, text, hash, symbol_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		res, err := stmt.Exec(c.FileID, c.StartLine, c.EndLine, c.Kind, c.Text, c.Hash, nullableID(c.SymbolID))
		if err != nil {
			return nil, wrapConstraint("AddChunks", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}

// AttachChunkToSymbol sets the owning symbol of a chunk.
func (s *Store) AttachChunkToSymbol(chunkID, symbolID int64) error {
	_, err := s.db.Exec("UPDATE chunks SET symbol_id = ? WHERE id = ?", symbolID, chunkID)
	return wrapConstraint("AttachChunkToSymbol", err)
}

// ChunksForFile returns a file's chunks ordered by start line.
func (s *Store) ChunksForFile(fileID int64) ([]ChunkRecord, error) {
	rows, err := s.db.Query("SELECT "+chunkCols+" FROM chunks WHERE file_id = ? ORDER BY start_line", fileID)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

// ChunkByID returns one chunk.
func (s *Store) ChunkByID(id int64) (ChunkRecord, bool, error) {
	c, err := scanChunk(s.db.QueryRow("SELECT "+chunkCols+" FROM chunks WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ChunkRecord{}, false, nil
	}
	if err != nil {
		return ChunkRecord{}, false, err
	}
	return c, true, nil
}

// FirstChunk returns the lowest-id chunk in the store, used as the
// enforcement fallback when retrieval yields nothing for a line.
func (s *Store) FirstChunk() (ChunkRecord, bool, error) {
	c, err := scanChunk(s.db.QueryRow("SELECT " + chunkCols + " FROM chunks ORDER BY id LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return ChunkRecord{}, false, nil
	}
	if err != nil {
		return ChunkRecord{}, false, err
	}
	return c, true, nil
}

// ChunkCovering returns the first chunk of the file whose span contains
// the requested range.
func (s *Store) ChunkCovering(fileID int64, start, end int) (ChunkRecord, bool, error) {
	c, err := scanChunk(s.db.QueryRow(
		"SELECT "+chunkCols+" FROM chunks WHERE file_id = ? AND start_line <= ? AND end_line >= ? ORDER BY id LIMIT 1",
		fileID, start, end,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return ChunkRecord{}, false, nil
	}
	if err != nil {
		return ChunkRecord{}, false, err
	}
	return c, true, nil
}

// ChunkCoveringRange implements cite.ChunkLookup.
func (s *Store) ChunkCoveringRange(fileID int64, start, end int) (int64, string, bool, error) {
	c, ok, err := s.ChunkCovering(fileID, start, end)
	return c.ID, c.Text, ok, err
}

func collectChunks(rows *sql.Rows) ([]ChunkRecord, error) {
	defer rows.Close()
	var chunks []ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SearchChunks runs a full-text query over chunk text, falling back to a
// LIKE scan when FTS5 is unavailable or the query trips its syntax.
func (s *Store) SearchChunks(query string, limit int) ([]ChunkRecord, error) {
	if s.fts {
		rows, err := s.db.Query(
			`SELECT c.id, c.file_id, c.start_line, c.end_line, c.kind, c.text, c.hash, COALESCE(c.symbol_id, 0)
			 FROM chunks_fts f JOIN chunks c ON c.id = f.rowid
			 WHERE chunks_fts MATCH ? ORDER BY rank LIMIT ?`,
			ftsQuote(query), limit,
		)
		if err == nil {
			return collectChunks(rows)
		}
	}
	rows, err := s.db.Query(
		"SELECT "+chunkCols+" FROM chunks WHERE text LIKE ? LIMIT ?",
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

// --- symbols & edges ---

const symbolCols = "id, file_id, name, kind, signature, start_line, end_line, doc, COALESCE(parent_symbol_id, 0)"

func scanSymbol(row interface{ Scan(...any) error }) (SymbolRecord, error) {
	var r SymbolRecord
	err := row.Scan(&r.ID, &r.FileID, &r.Name, &r.Kind, &r.Signature, &r.StartLine, &r.EndLine, &r.Doc, &r.ParentSymbolID)
	return r, err
}

// AddSymbols inserts symbols and returns their ids in input order.
func (s *Store) AddSymbols(symbols []SymbolRecord) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		"INSERT INTO symbols (file_id, name, kind, signature, start_line, end_line, doc, parent_symbol_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(symbols))
	for _, r := range symbols {
		res, err := stmt.Exec(r.FileID, r.Name, r.Kind, r.Signature, r.StartLine, r.EndLine, r.Doc, nullableID(r.ParentSymbolID))
		if err != nil {
			return nil, wrapConstraint("AddSymbols", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}

// SetSymbolParent records the smallest-enclosing-span parent of a symbol.
func (s *Store) SetSymbolParent(symbolID, parentID int64) error {
	_, err := s.db.Exec("UPDATE symbols SET parent_symbol_id = ? WHERE id = ?", parentID, symbolID)
	return wrapConstraint("SetSymbolParent", err)
}

// AddEdges inserts edges, ignoring duplicates of (src, dst, type).
// Dangling symbol references still fail.
func (s *Store) AddEdges(edges []EdgeRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO edges (src_symbol_id, dst_symbol_id, edge_type) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, e := range edges {
		if _, err := stmt.Exec(e.SrcSymbolID, e.DstSymbolID, e.EdgeType); err != nil {
			return wrapConstraint("AddEdges", err)
		}
	}
	return tx.Commit()
}

// SymbolsForFile returns a file's symbols ordered by start line.
func (s *Store) SymbolsForFile(fileID int64) ([]SymbolRecord, error) {
	rows, err := s.db.Query("SELECT "+symbolCols+" FROM symbols WHERE file_id = ? ORDER BY start_line", fileID)
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

// SymbolByID returns one symbol.
func (s *Store) SymbolByID(id int64) (SymbolRecord, bool, error) {
	r, err := scanSymbol(s.db.QueryRow("SELECT "+symbolCols+" FROM symbols WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return SymbolRecord{}, false, nil
	}
	if err != nil {
		return SymbolRecord{}, false, err
	}
	return r, true, nil
}

// SymbolsMatching returns symbols whose name contains the pattern.
func (s *Store) SymbolsMatching(pattern string, limit int) ([]SymbolRecord, error) {
	rows, err := s.db.Query(
		"SELECT "+symbolCols+" FROM symbols WHERE name LIKE ? LIMIT ?",
		"%"+pattern+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

// NonImportSymbols returns every declared (non-import) symbol. Used by
// the cross-file import-resolution pass to build its global name index.
func (s *Store) NonImportSymbols() ([]SymbolRecord, error) {
	rows, err := s.db.Query("SELECT " + symbolCols + " FROM symbols WHERE kind != 'import'")
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

// ImportSymbols returns every import symbol.
func (s *Store) ImportSymbols() ([]SymbolRecord, error) {
	rows, err := s.db.Query("SELECT " + symbolCols + " FROM symbols WHERE kind = 'import'")
	if err != nil {
		return nil, err
	}
	return collectSymbols(rows)
}

// EdgesForSymbol returns all edges touching a symbol, in either
// direction.
func (s *Store) EdgesForSymbol(symbolID int64) ([]EdgeRecord, error) {
	rows, err := s.db.Query(
		"SELECT src_symbol_id, dst_symbol_id, edge_type FROM edges WHERE src_symbol_id = ? OR dst_symbol_id = ?",
		symbolID, symbolID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []EdgeRecord
	for rows.Next() {
		var e EdgeRecord
		if err := rows.Scan(&e.SrcSymbolID, &e.DstSymbolID, &e.EdgeType); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func collectSymbols(rows *sql.Rows) ([]SymbolRecord, error) {
	defer rows.Close()
	var symbols []SymbolRecord
	for rows.Next() {
		r, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, r)
	}
	return symbols, rows.Err()
}

// --- packages & modules ---

// AddPackage upserts a package row by path and returns its id.
func (s *Store) AddPackage(path, name string) (int64, error) {
	res, err := s.db.Exec("INSERT OR IGNORE INTO packages (path, name) VALUES (?, ?)", path, name)
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		if n, _ := res.RowsAffected(); n > 0 {
			return id, nil
		}
	}
	var id int64
	err = s.db.QueryRow("SELECT id FROM packages WHERE path = ?", path).Scan(&id)
	return id, err
}

// AddModule upserts a module row by path and returns its id.
func (s *Store) AddModule(path, name string, packageID int64) (int64, error) {
	res, err := s.db.Exec(
		"INSERT OR IGNORE INTO modules (path, name, package_id) VALUES (?, ?, ?)",
		path, name, nullableID(packageID),
	)
	if err != nil {
		return 0, wrapConstraint("AddModule", err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		if n, _ := res.RowsAffected(); n > 0 {
			return id, nil
		}
	}
	var id int64
	err = s.db.QueryRow("SELECT id FROM modules WHERE path = ?", path).Scan(&id)
	return id, err
}

// LinkFileToModule records module membership for a file.
func (s *Store) LinkFileToModule(moduleID, fileID int64) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO module_files (module_id, file_id) VALUES (?, ?)", moduleID, fileID)
	return wrapConstraint("LinkFileToModule", err)
}

// --- summaries ---

// AddSummary inserts a summary after verifying that its level/target
// pair references an existing entity of that level.
func (s *Store) AddSummary(rec SummaryRecord) (int64, error) {
	table, idCol := "", "id"
	switch rec.Level {
	case LevelChunk:
		table = "chunks"
	case LevelFile:
		table = "files"
	case LevelModule:
		table = "modules"
	case LevelPackage:
		table = "packages"
	default:
		return 0, &IntegrityError{Op: "AddSummary", Detail: fmt.Sprintf("unknown level %q", rec.Level)}
	}
	var exists int
	err := s.db.QueryRow(fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?", table, idCol), rec.TargetID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &IntegrityError{
			Op:     "AddSummary",
			Detail: fmt.Sprintf("level %q target %d does not exist in %s", rec.Level, rec.TargetID, table),
		}
	}
	if err != nil {
		return 0, err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.db.Exec(
		"INSERT INTO summaries (level, target_id, text, confidence, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.Level, rec.TargetID, rec.Text, rec.Confidence, created.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, wrapConstraint("AddSummary", err)
	}
	return res.LastInsertId()
}

const summaryCols = "id, level, target_id, text, confidence, created_at"

func scanSummary(row interface{ Scan(...any) error }) (SummaryRecord, error) {
	var r SummaryRecord
	var created string
	if err := row.Scan(&r.ID, &r.Level, &r.TargetID, &r.Text, &r.Confidence, &created); err != nil {
		return SummaryRecord{}, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return r, nil
}

// SearchSummaries runs a full-text query over summary text with a LIKE
// fallback, mirroring SearchChunks.
func (s *Store) SearchSummaries(query string, limit int) ([]SummaryRecord, error) {
	if s.fts {
		rows, err := s.db.Query(
			`SELECT s.id, s.level, s.target_id, s.text, s.confidence, s.created_at
			 FROM summaries_fts f JOIN summaries s ON s.id = f.rowid
			 WHERE summaries_fts MATCH ? ORDER BY rank LIMIT ?`,
			ftsQuote(query), limit,
		)
		if err == nil {
			return collectSummaries(rows)
		}
	}
	rows, err := s.db.Query(
		"SELECT "+summaryCols+" FROM summaries WHERE text LIKE ? ORDER BY confidence DESC LIMIT ?",
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	return collectSummaries(rows)
}

// SummariesByLevel lists summaries, optionally filtered by level.
func (s *Store) SummariesByLevel(level string) ([]SummaryRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if level == "" {
		rows, err = s.db.Query("SELECT " + summaryCols + " FROM summaries ORDER BY id")
	} else {
		rows, err = s.db.Query("SELECT "+summaryCols+" FROM summaries WHERE level = ? ORDER BY id", level)
	}
	if err != nil {
		return nil, err
	}
	return collectSummaries(rows)
}

func collectSummaries(rows *sql.Rows) ([]SummaryRecord, error) {
	defer rows.Close()
	var out []SummaryRecord
	for rows.Next() {
		r, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- embeddings ---

// AddChunkEmbeddings stores one vector per chunk id.
func (s *Store) AddChunkEmbeddings(chunkIDs []int64, vectors [][]float32) error {
	return s.addEmbeddings("chunk_embeddings", "chunk_id", chunkIDs, vectors)
}

// AddSymbolEmbeddings stores one vector per symbol id.
func (s *Store) AddSymbolEmbeddings(symbolIDs []int64, vectors [][]float32) error {
	return s.addEmbeddings("symbol_embeddings", "symbol_id", symbolIDs, vectors)
}

func (s *Store) addEmbeddings(table, idCol string, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("mismatched ids (%d) and vectors (%d)", len(ids), len(vectors))
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s, embedding) VALUES (?, ?)", table, idCol))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, id := range ids {
		if len(vectors[i]) != s.dim {
			return fmt.Errorf("vector for %s %d has dimension %d, want %d", idCol, id, len(vectors[i]), s.dim)
		}
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return fmt.Errorf("serialize embedding for %s %d: %w", idCol, id, err)
		}
		if _, err := stmt.Exec(id, blob); err != nil {
			return fmt.Errorf("insert embedding for %s %d: %w", idCol, id, err)
		}
	}
	return tx.Commit()
}

// HasChunkEmbeddings reports whether any chunk vectors are stored.
// Retrieval degrades to lexical-only when false.
func (s *Store) HasChunkEmbeddings() (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM chunk_embeddings").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ChunkMatch is a vector search hit.
type ChunkMatch struct {
	Chunk    ChunkRecord
	Distance float64
}

// SearchChunkVectors returns the k chunks nearest to the query vector by
// cosine distance.
func (s *Store) SearchChunkVectors(query []float32, k int) ([]ChunkMatch, error) {
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}
	rows, err := s.db.Query(
		`SELECT v.chunk_id, v.distance, c.file_id, c.start_line, c.end_line, c.kind, c.text, c.hash, COALESCE(c.symbol_id, 0)
		 FROM chunk_embeddings v JOIN chunks c ON c.id = v.chunk_id
		 WHERE v.embedding MATCH ? AND v.k = ?
		 ORDER BY v.distance`,
		blob, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(
			&m.Chunk.ID, &m.Distance, &m.Chunk.FileID, &m.Chunk.StartLine, &m.Chunk.EndLine,
			&m.Chunk.Kind, &m.Chunk.Text, &m.Chunk.Hash, &m.Chunk.SymbolID,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- reports & claims ---

// AddReportVersion inserts a report version and returns its id.
func (s *Store) AddReportVersion(rec ReportVersionRecord) (int64, error) {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.db.Exec(
		`INSERT INTO report_versions (content, created_at, coverage_score, citation_score, issues_high, issues_med, issues_low)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Content, created.UTC().Format(time.RFC3339),
		rec.CoverageScore, rec.CitationScore, rec.IssuesHigh, rec.IssuesMed, rec.IssuesLow,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateReportVersion mutates content and scores of a report version in
// place, as iterations of the same run progress.
func (s *Store) UpdateReportVersion(rec ReportVersionRecord) error {
	_, err := s.db.Exec(
		`UPDATE report_versions SET content = ?, coverage_score = ?, citation_score = ?,
		 issues_high = ?, issues_med = ?, issues_low = ? WHERE id = ?`,
		rec.Content, rec.CoverageScore, rec.CitationScore,
		rec.IssuesHigh, rec.IssuesMed, rec.IssuesLow, rec.ID,
	)
	return err
}

// ReplaceClaims discards a report version's claims and inserts the new
// set. Claims are recomputed every gating iteration, never accumulated.
func (s *Store) ReplaceClaims(reportVersion int64, claims []ClaimRecord) ([]int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM claims WHERE report_version = ?", reportVersion); err != nil {
		return nil, err
	}
	stmt, err := tx.Prepare(
		"INSERT INTO claims (report_version, text, citation_refs, status, severity, rationale) VALUES (?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	ids := make([]int64, 0, len(claims))
	for _, c := range claims {
		refs, err := json.Marshal(c.CitationRefs)
		if err != nil {
			return nil, err
		}
		res, err := stmt.Exec(reportVersion, c.Text, string(refs), string(c.Status), string(c.Severity), c.Rationale)
		if err != nil {
			return nil, wrapConstraint("ReplaceClaims", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}

// --- helpers ---

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ftsQuote wraps each whitespace-separated token in double quotes so
// punctuation in free text does not read as FTS5 syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// wrapConstraint converts SQLite constraint violations into
// IntegrityError; other errors pass through unchanged.
func wrapConstraint(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &IntegrityError{Op: op, Detail: err.Error()}
	}
	return err
}
