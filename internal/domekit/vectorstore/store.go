// Package vectorstore implements the embedding-backed collection storage
// behind the vector_search and vector_manage built-in tools. Collections are
// stored in their own embedded SQLite database, opened through the same
// modernc.org/sqlite driver the sql_query tool uses, with similarity search
// done in process (brute-force cosine
// similarity) rather than delegating to an external vector database — the
// collection sizes a single local-first gateway handles do not warrant one.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	_ "modernc.org/sqlite"
)

// Document is one embedded record in a collection.
type Document struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
}

// Match is a single vector_search result.
type Match struct {
	Document
	Score float32 `json:"score"`
}

// Embedder turns text into an embedding vector. Implementations typically
// call out to an OpenAI-compatible /v1/embeddings endpoint, local or remote.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists collections in a dedicated SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the vector store database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id          TEXT NOT NULL,
			collection  TEXT NOT NULL,
			text        TEXT NOT NULL,
			metadata    TEXT NOT NULL DEFAULT '{}',
			embedding   BLOB NOT NULL,
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("vectorstore: migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Upsert writes doc into its collection, overwriting any existing document
// with the same ID.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("vectorstore: encode metadata: %w", err)
	}
	embBytes, err := encodeEmbedding(doc.Embedding)
	if err != nil {
		return fmt.Errorf("vectorstore: encode embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding
	`, doc.ID, doc.Collection, doc.Text, string(metaJSON), embBytes)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

// Delete removes a document from its collection.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return fmt.Errorf("vectorstore: delete: %w", err)
	}
	return nil
}

// Search returns the topK closest documents to query within collection by
// cosine similarity, highest score first.
func (s *Store) Search(ctx context.Context, collection string, query []float32, topK int) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, metadata, embedding FROM documents WHERE collection = ?
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, text, metaJSON string
		var embBytes []byte
		if err := rows.Scan(&id, &text, &metaJSON, &embBytes); err != nil {
			return nil, fmt.Errorf("vectorstore: scan: %w", err)
		}
		emb, err := decodeEmbedding(embBytes)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: decode embedding: %w", err)
		}
		var meta map[string]string
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("vectorstore: decode metadata: %w", err)
		}

		matches = append(matches, Match{
			Document: Document{ID: id, Collection: collection, Text: text, Metadata: meta},
			Score:    cosineSimilarity(query, emb),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: iterate: %w", err)
	}

	sortMatchesDescending(matches)
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func sortMatchesDescending(matches []Match) {
	// Insertion sort: collection sizes here are small enough (bounded by a
	// single local-first deployment) that O(n^2) is not worth the
	// complexity of a heap-based top-K.
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

func encodeEmbedding(v []float32) ([]byte, error) {
	return json.Marshal(v)
}

func decodeEmbedding(b []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
