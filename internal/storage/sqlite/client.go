package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docqa/backend/internal/domain"
	"github.com/docqa/backend/internal/storage/models"
	"github.com/docqa/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fragments (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		text TEXT NOT NULL,
		kind TEXT NOT NULL,
		embedding BLOB NOT NULL,
		embedding_dim INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fragments_document ON fragments(document_id);

	CREATE TABLE IF NOT EXISTS cached_qa (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		question_text TEXT NOT NULL,
		question_embedding BLOB NOT NULL,
		embedding_dim INTEGER NOT NULL,
		answer_text TEXT NOT NULL,
		confidence_score REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cached_qa_document ON cached_qa(document_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		question_text TEXT NOT NULL,
		answer_text TEXT NOT NULL,
		confidence REAL,
		cached INTEGER NOT NULL DEFAULT 0,
		no_evidence INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_document ON query_history(document_id);
	CREATE INDEX IF NOT EXISTS idx_history_created ON query_history(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(query, doc.ID, doc.Title, doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

func (c *Client) UpsertFragment(f *models.Fragment) error {
	query := `
		INSERT INTO fragments (id, document_id, text, kind, embedding, embedding_dim, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			text = excluded.text,
			kind = excluded.kind,
			embedding = excluded.embedding,
			embedding_dim = excluded.embedding_dim
	`

	_, err := c.db.Exec(
		query,
		f.ID,
		f.DocumentID,
		f.Text,
		string(f.Kind),
		encodeEmbedding(f.Embedding),
		len(f.Embedding),
		f.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert fragment: %w", err)
	}

	return nil
}

func (c *Client) ListFragments(documentID string) ([]models.Fragment, error) {
	query := `
		SELECT id, document_id, text, kind, embedding, embedding_dim, created_at
		FROM fragments
		WHERE document_id = ?
		ORDER BY created_at
	`

	rows, err := c.db.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	return scanFragments(rows)
}

func (c *Client) ListAllFragments() ([]models.Fragment, error) {
	query := `
		SELECT id, document_id, text, kind, embedding, embedding_dim, created_at
		FROM fragments
		ORDER BY created_at
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list fragments: %w", err)
	}
	defer rows.Close()

	return scanFragments(rows)
}

func (c *Client) CountFragments(documentID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM fragments WHERE document_id = ?`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count fragments: %w", err)
	}
	return count, nil
}

func (c *Client) CountCachedQA(documentID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM cached_qa WHERE document_id = ?`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cached qa: %w", err)
	}
	return count, nil
}

func (c *Client) DeleteFragments(documentID string) error {
	_, err := c.db.Exec(`DELETE FROM fragments WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete fragments: %w", err)
	}
	return nil
}

func (c *Client) InsertCachedQA(entry *models.CachedQA) error {
	query := `
		INSERT INTO cached_qa (id, document_id, question_text, question_embedding, embedding_dim,
			answer_text, confidence_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		entry.ID,
		entry.DocumentID,
		entry.QuestionText,
		encodeEmbedding(entry.QuestionEmbedding),
		len(entry.QuestionEmbedding),
		entry.AnswerText,
		entry.ConfidenceScore,
		entry.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert cached qa: %w", err)
	}

	return nil
}

func (c *Client) ListCachedQA(documentID string) ([]models.CachedQA, error) {
	query := `
		SELECT id, document_id, question_text, question_embedding, embedding_dim,
			answer_text, confidence_score, created_at
		FROM cached_qa
		WHERE document_id = ?
		ORDER BY created_at
	`

	rows, err := c.db.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached qa: %w", err)
	}
	defer rows.Close()

	var entries []models.CachedQA
	for rows.Next() {
		var e models.CachedQA
		var blob []byte
		var dim int
		var createdAt int64

		err := rows.Scan(&e.ID, &e.DocumentID, &e.QuestionText, &blob, &dim,
			&e.AnswerText, &e.ConfidenceScore, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		e.QuestionEmbedding, err = decodeEmbedding(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("cached qa %s: %w", e.ID, err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (c *Client) ListAllCachedQA() ([]models.CachedQA, error) {
	rows, err := c.db.Query(`SELECT DISTINCT document_id FROM cached_qa`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached qa documents: %w", err)
	}
	defer rows.Close()

	var docIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docIDs = append(docIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var all []models.CachedQA
	for _, id := range docIDs {
		entries, err := c.ListCachedQA(id)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	return all, nil
}

func (c *Client) DeleteCachedQA(id string) error {
	_, err := c.db.Exec(`DELETE FROM cached_qa WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cached qa: %w", err)
	}
	return nil
}

func (c *Client) DeleteCachedQAForDocument(documentID string) error {
	_, err := c.db.Exec(`DELETE FROM cached_qa WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete cached qa for document: %w", err)
	}
	return nil
}

func (c *Client) InsertQueryRecord(record *models.QueryRecord) error {
	query := `
		INSERT INTO query_history (id, document_id, question_text, answer_text, confidence,
			cached, no_evidence, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	cached := 0
	if record.Cached {
		cached = 1
	}
	noEvidence := 0
	if record.NoEvidence {
		noEvidence = 1
	}

	_, err := c.db.Exec(
		query,
		record.ID,
		record.DocumentID,
		record.QuestionText,
		record.AnswerText,
		record.Confidence,
		cached,
		noEvidence,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	return nil
}

func (c *Client) GetQueryHistory(documentID string, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, document_id, question_text, answer_text, confidence, cached, no_evidence, latency_ms, created_at
		FROM query_history
		WHERE document_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var cached, noEvidence int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.DocumentID, &r.QuestionText, &r.AnswerText,
			&r.Confidence, &cached, &noEvidence, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Cached = cached == 1
		r.NoEvidence = noEvidence == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func scanFragments(rows *sql.Rows) ([]models.Fragment, error) {
	var fragments []models.Fragment
	for rows.Next() {
		var f models.Fragment
		var kind string
		var blob []byte
		var dim int
		var createdAt int64

		err := rows.Scan(&f.ID, &f.DocumentID, &f.Text, &kind, &blob, &dim, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		f.Kind = domain.FragmentKind(kind)
		f.Embedding, err = decodeEmbedding(blob, dim)
		if err != nil {
			return nil, fmt.Errorf("fragment %s: %w", f.ID, err)
		}
		f.CreatedAt = time.Unix(createdAt, 0)
		fragments = append(fragments, f)
	}

	return fragments, rows.Err()
}

// Embeddings are stored as little-endian float32 arrays with the
// dimensionality recorded alongside for validation on read.

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob) != 4*dim {
		return nil, fmt.Errorf("%w: blob holds %d bytes, expected %d for dim %d",
			domain.ErrDimensionMismatch, len(blob), 4*dim, dim)
	}

	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
