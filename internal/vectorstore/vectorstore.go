// Package vectorstore keeps one embedding per item id, separate from the
// relational store so the backend can be swapped or disabled.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/matthewjhunter/onboard/internal/metrics"
)

// Store is a vector backend. GetVectorsForItems never fails: lookups that
// cannot be served are logged and the ids are simply absent from the result.
type Store interface {
	Upsert(ctx context.Context, id string, vec []float32, meta map[string]string) (string, error)
	GetVectorsForItems(ctx context.Context, ids []string) map[string][]float32
	Query(ctx context.Context, vec []float32, topK int) ([]Match, error)
	Close() error
}

// Match is a nearest-neighbour query result.
type Match struct {
	ID    string
	Score float64
	Meta  map[string]string
}

const schema = `
CREATE TABLE IF NOT EXISTS item_vectors (
    id TEXT PRIMARY KEY,
    dim INTEGER NOT NULL,
    vec BLOB NOT NULL,
    meta TEXT
);
`

const lookupBatch = 500

// SQLiteStore stores vectors as little-endian float32 blobs.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a vector database at path.
func NewSQLiteStore(path string, log zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert writes vec under id and returns id as the vector id.
func (s *SQLiteStore) Upsert(ctx context.Context, id string, vec []float32, meta map[string]string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("vector id is required")
	}
	if len(vec) == 0 {
		return "", fmt.Errorf("empty vector for %s", id)
	}
	var metaJSON []byte
	if len(meta) > 0 {
		var err error
		if metaJSON, err = json.Marshal(meta); err != nil {
			return "", fmt.Errorf("encode vector metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_vectors (id, dim, vec, meta) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dim = excluded.dim, vec = excluded.vec, meta = excluded.meta`,
		id, len(vec), embedding.EncodeFloat32s(vec), string(metaJSON),
	)
	if err != nil {
		return "", fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return id, nil
}

// GetVectorsForItems returns the stored vectors for ids that have one.
func (s *SQLiteStore) GetVectorsForItems(ctx context.Context, ids []string) map[string][]float32 {
	out := make(map[string][]float32, len(ids))
	for start := 0; start < len(ids); start += lookupBatch {
		end := start + lookupBatch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			"SELECT id, vec FROM item_vectors WHERE id IN (?"+strings.Repeat(",?", len(chunk)-1)+")",
			args...,
		)
		if err != nil {
			metrics.VectorLookups.WithLabelValues("error").Add(float64(len(chunk)))
			s.log.Warn().Err(err).Int("ids", len(chunk)).Msg("vector lookup failed")
			continue
		}
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				s.log.Warn().Err(err).Msg("scan vector row")
				continue
			}
			out[id] = embedding.DecodeFloat32s(blob)
		}
		rows.Close()
	}
	metrics.VectorLookups.WithLabelValues("hit").Add(float64(len(out)))
	metrics.VectorLookups.WithLabelValues("miss").Add(float64(len(ids) - len(out)))
	return out
}

// Query scans every stored vector and returns the topK most similar.
func (s *SQLiteStore) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, vec, COALESCE(meta, '') FROM item_vectors")
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, meta string
		var blob []byte
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		stored := embedding.DecodeFloat32s(blob)
		if len(stored) != len(vec) {
			continue
		}
		m := Match{ID: id, Score: embedding.CosineSimilarity(vec, stored)}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &m.Meta); err != nil {
				s.log.Debug().Err(err).Str("id", id).Msg("bad vector metadata")
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Noop is used when no vector backend is configured. Upserts fail and
// lookups find nothing.
type Noop struct{}

var _ Store = Noop{}

// ErrUnavailable is returned by Noop.Upsert.
var ErrUnavailable = errors.New("vector backend not configured")

func (Noop) Upsert(context.Context, string, []float32, map[string]string) (string, error) {
	return "", ErrUnavailable
}

func (Noop) GetVectorsForItems(context.Context, []string) map[string][]float32 {
	return map[string][]float32{}
}

func (Noop) Query(context.Context, []float32, int) ([]Match, error) {
	return nil, nil
}

func (Noop) Close() error { return nil }
