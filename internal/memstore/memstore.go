// Package memstore implements the vector+keyword memory store: markdown
// ingestion into content-addressed chunks, and semantic, keyword, and
// hybrid search over them. Storage is a local SQLite file (no server, no
// network) with an FTS5 virtual table mirroring the chunk text for keyword
// search; embeddings are stored as a BLOB of little-endian float32s and
// scored with plain cosine similarity, since a single-user local workspace
// never has enough rows to need an approximate-nearest-neighbor index.
package memstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	_ "modernc.org/sqlite"
)

const (
	// MinChunkLen and MaxChunkLen bound the size of an ingested chunk.
	MinChunkLen = 20
	MaxChunkLen = 500
)

// Chunk is a bounded text fragment carved from a source file.
type Chunk struct {
	ID        string
	Source    string
	Text      string
	Hash      string
	Embedding []float32
	Timestamp time.Time
}

// Result is a scored chunk returned from a search call.
type Result struct {
	Chunk
	Score         float64
	VectorScore   *float64
	KeywordScore  *float64
	RRFScore      *float64
}

// Filters narrow a search by recency or source.
type Filters struct {
	MaxAgeDays int      // 0 means unfiltered
	Sources    []string // empty means unfiltered
}

// Store is the vector+keyword memory store backed by a local SQLite file.
type Store struct {
	db          *sql.DB
	vectorCache *resultCache
}

// Open creates or opens the SQLite-backed store at path, applying the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("memstore: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memstore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one file handle

	s := &Store{db: db, vectorCache: newResultCache(100, 60*time.Second)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			text TEXT NOT NULL,
			hash TEXT NOT NULL,
			embedding BLOB,
			mtime INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_hash ON chunks(hash)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			id UNINDEXED, source UNINDEXED, text
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("memstore: migrate: %w", err)
		}
	}
	return nil
}

// ContentHash returns the stable content hash of text, used both as the
// chunk id suffix and as the idempotency key for upserts.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// SplitIntoChunks splits raw markdown by "^## " headers, further splitting
// any section longer than MaxChunkLen at line boundaries, and drops
// sections shorter than MinChunkLen.
func SplitIntoChunks(source, raw string) []string {
	var sections []string
	lines := strings.Split(raw, "\n")
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sections = append(sections, s)
		}
		cur.Reset()
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") && cur.Len() > 0 {
			flush()
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()

	var chunks []string
	for _, sec := range sections {
		if len(sec) <= MaxChunkLen {
			if len(sec) >= MinChunkLen {
				chunks = append(chunks, sec)
			}
			continue
		}
		chunks = append(chunks, splitAtLineBoundaries(sec, MaxChunkLen)...)
	}
	return chunks
}

func splitAtLineBoundaries(text string, maxLen int) []string {
	lines := strings.Split(text, "\n")
	var out []string
	var cur strings.Builder
	for _, line := range lines {
		if cur.Len() > 0 && cur.Len()+len(line)+1 > maxLen {
			if s := strings.TrimSpace(cur.String()); len(s) >= MinChunkLen {
				out = append(out, s)
			}
			cur.Reset()
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	if s := strings.TrimSpace(cur.String()); len(s) >= MinChunkLen {
		out = append(out, s)
	}
	return out
}

// EmbedFunc generates embeddings for a batch of chunk texts, in order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// cachedEmbeddings looks up vectors already stored for any of hashes,
// regardless of which source ingested them first, so identical content
// reused across documents is never re-embedded.
func (s *Store) cachedEmbeddings(ctx context.Context, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		args[i] = h
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT hash, embedding FROM chunks WHERE hash IN (%s) GROUP BY hash`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return nil, fmt.Errorf("memstore: query cached embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		var blob []byte
		if err := rows.Scan(&h, &blob); err != nil {
			return nil, fmt.Errorf("memstore: scan cached embedding: %w", err)
		}
		out[h] = decodeVector(blob)
	}
	return out, rows.Err()
}

// UpsertChunks ingests chunk texts for source, reusing cached embeddings for
// hashes already present and batch-embedding only new or changed ones.
func (s *Store) UpsertChunks(ctx context.Context, source string, texts []string, mtime time.Time, embed EmbedFunc) error {
	if len(texts) == 0 {
		return nil
	}

	existing := make(map[string]bool, len(texts))
	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM chunks WHERE source = ?`, source)
	if err != nil {
		return fmt.Errorf("memstore: query existing hashes: %w", err)
	}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return fmt.Errorf("memstore: scan hash: %w", err)
		}
		existing[h] = true
	}
	rows.Close()

	var newTexts []string
	var newHashes []string
	for _, t := range texts {
		h := ContentHash(t)
		if !existing[h] {
			newTexts = append(newTexts, t)
			newHashes = append(newHashes, h)
		}
	}

	// Chunks with equal hash share one cached embedding even across
	// different sources: before calling embed, check whether any other
	// source already stored a vector for this hash.
	cached, err := s.cachedEmbeddings(ctx, newHashes)
	if err != nil {
		return err
	}

	var toEmbed []string
	var toEmbedHashes []string
	for i, h := range newHashes {
		if _, ok := cached[h]; !ok {
			toEmbed = append(toEmbed, newTexts[i])
			toEmbedHashes = append(toEmbedHashes, h)
		}
	}
	if len(toEmbed) > 0 {
		vecs, err := embed(ctx, toEmbed)
		if err != nil {
			return fmt.Errorf("memstore: embed new chunks: %w", err)
		}
		for i, h := range toEmbedHashes {
			cached[h] = vecs[i]
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, t := range newTexts {
		h := newHashes[i]
		id := source + ":" + h
		blob := encodeVector(cached[h])
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, source, text, hash, embedding, mtime) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET text=excluded.text, embedding=excluded.embedding, mtime=excluded.mtime`,
			id, source, t, h, blob, mtime.Unix(),
		); err != nil {
			return fmt.Errorf("memstore: insert chunk: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks_fts (id, source, text) VALUES (?, ?, ?)`,
			id, source, t,
		); err != nil {
			return fmt.Errorf("memstore: insert fts row: %w", err)
		}
	}
	return tx.Commit()
}

// DeleteBySource removes every chunk ingested from source.
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE source = ?`, source); err != nil {
		return fmt.Errorf("memstore: delete fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("memstore: delete chunks: %w", err)
	}
	return tx.Commit()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4 : i*4+4]))
	}
	return v
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		da, db := float64(a[i]), float64(b[i])
		dot += da * db
		normA += da * da
		normB += db * db
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenize splits a query into unicode letter/digit runs, matching the
// keyword-search tokenization contract (including Hangul ranges, which
// unicode.IsLetter already covers).
func tokenize(q string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for _, r := range q {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func matchesFilters(c Chunk, f Filters) bool {
	if f.MaxAgeDays > 0 {
		cutoff := time.Now().Add(-time.Duration(f.MaxAgeDays) * 24 * time.Hour)
		if c.Timestamp.Before(cutoff) {
			return false
		}
	}
	if len(f.Sources) > 0 {
		ok := false
		for _, s := range f.Sources {
			if s == c.Source {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Search performs semantic search against queryVec, filtering by minScore
// and Filters, returning the top-K by cosine similarity descending.
func (s *Store) Search(ctx context.Context, queryVec []float32, topK int, minScore float64, filters Filters) ([]Result, error) {
	cacheKey := vectorCacheKey(queryVec, topK, minScore, filters)
	if cached, ok := s.vectorCache.get(cacheKey); ok {
		return cached, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, source, text, hash, embedding, mtime FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("memstore: query chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var c Chunk
		var embBlob []byte
		var mtime int64
		if err := rows.Scan(&c.ID, &c.Source, &c.Text, &c.Hash, &embBlob, &mtime); err != nil {
			return nil, fmt.Errorf("memstore: scan chunk: %w", err)
		}
		c.Timestamp = time.Unix(mtime, 0)
		c.Embedding = decodeVector(embBlob)

		if !matchesFilters(c, filters) {
			continue
		}
		score := cosine(queryVec, c.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, Result{Chunk: c, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	s.vectorCache.put(cacheKey, results)
	return results, nil
}

// SearchKeyword runs an FTS5 match query, ranking by bm25 (lower is better
// in SQLite's bm25(), matching this package's "lower = better" convention).
func (s *Store) SearchKeyword(ctx context.Context, q string, topK int, filters Filters) ([]Result, error) {
	tokens := tokenize(q)
	if len(tokens) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(tokens, " OR ")

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.source, c.text, c.hash, c.embedding, c.mtime, bm25(chunks_fts) AS rank
		 FROM chunks_fts
		 JOIN chunks c ON c.id = chunks_fts.id
		 WHERE chunks_fts MATCH ?
		 ORDER BY rank LIMIT ?`,
		matchQuery, topK*4, // over-fetch so post-filtering still yields topK
	)
	if err != nil {
		return nil, fmt.Errorf("memstore: fts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var c Chunk
		var embBlob []byte
		var mtime int64
		var rank float64
		if err := rows.Scan(&c.ID, &c.Source, &c.Text, &c.Hash, &embBlob, &mtime, &rank); err != nil {
			return nil, fmt.Errorf("memstore: scan fts row: %w", err)
		}
		c.Timestamp = time.Unix(mtime, 0)
		c.Embedding = decodeVector(embBlob)
		if !matchesFilters(c, filters) {
			continue
		}
		results = append(results, Result{Chunk: c, Score: rank, KeywordScore: ptr(rank)})
		if len(results) >= topK {
			break
		}
	}
	return results, nil
}

func ptr[T any](v T) *T { return &v }
