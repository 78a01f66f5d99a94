package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donorhub/donorhub/internal/platform/db"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
)`

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps documents as JSONB rows in a single table and relies on
// a Postgres transaction for batch atomicity.
type PostgresStore struct {
	pool   *pgxpool.Pool
	feed   *Feed
	logger *slog.Logger
}

// NewPostgresStore constructs a PostgresStore. feed may be nil, in which case
// Subscribe is unavailable.
func NewPostgresStore(pool *pgxpool.Pool, feed *Feed, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, feed: feed, logger: logger.With(slog.String("component", "docstore_postgres"))}
}

// EnsureSchema creates the documents table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("docstore: ensure schema: %w", err)
	}
	return nil
}

// Get fetches one document.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return decodeRow(raw)
}

// Set writes the whole document.
func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc Document) error {
	return s.Batch(ctx, func(b Batch) error {
		b.Set(collection, id, doc)
		return nil
	})
}

// Create inserts doc unless a row for collection and id already exists.
func (s *PostgresStore) Create(ctx context.Context, collection, id string, doc Document) (bool, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (collection, id) DO NOTHING`, collection, id, string(payload))
	if err != nil {
		return false, fmt.Errorf("docstore: create %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	if err := s.feed.Publish(ctx, []Change{{Collection: collection, ID: id, Op: OpSet}}); err != nil {
		s.logger.Warn("publish changes", slog.Any("error", err))
	}
	return true, nil
}

// Update merges fields into an existing document.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields Document) error {
	return s.Batch(ctx, func(b Batch) error {
		b.Update(collection, id, fields)
		return nil
	})
}

// Delete removes the document.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	return s.Batch(ctx, func(b Batch) error {
		b.Delete(collection, id)
		return nil
	})
}

// Query returns documents matching every filter, ordered by id.
func (s *PostgresStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	args := []any{collection}
	for _, f := range filters {
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode filter %s: %w", f.Field, err)
		}
		args = append(args, f.Field, string(value))
		fmt.Fprintf(&sb, ` AND data -> $%d = $%d::jsonb`, len(args)-1, len(args))
	}
	sb.WriteString(` ORDER BY id`)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", collection, err)
		}
		doc, err := decodeRow(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", collection, err)
	}
	return records, nil
}

// Batch runs every queued write inside one transaction and publishes change
// notifications after commit.
func (s *PostgresStore) Batch(ctx context.Context, fn func(Batch) error) error {
	b := &opBatch{}
	if err := fn(b); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, op := range b.ops {
			if err := applyOp(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.feed.Publish(ctx, b.changes()); err != nil {
		s.logger.Warn("publish changes", slog.Any("error", err))
	}
	return nil
}

func applyOp(ctx context.Context, q DBTX, op batchOp) error {
	switch op.kind {
	case opSet:
		payload, err := json.Marshal(op.doc)
		if err != nil {
			return fmt.Errorf("docstore: encode %s/%s: %w", op.collection, op.id, err)
		}
		_, err = q.Exec(ctx, `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3::jsonb, NOW())
ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, op.collection, op.id, string(payload))
		if err != nil {
			return fmt.Errorf("docstore: set %s/%s: %w", op.collection, op.id, err)
		}
	case opUpdate:
		payload, err := json.Marshal(op.doc)
		if err != nil {
			return fmt.Errorf("docstore: encode %s/%s: %w", op.collection, op.id, err)
		}
		tag, err := q.Exec(ctx, `UPDATE documents SET data = data || $3::jsonb, updated_at = NOW() WHERE collection = $1 AND id = $2`, op.collection, op.id, string(payload))
		if err != nil {
			return fmt.Errorf("docstore: update %s/%s: %w", op.collection, op.id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("docstore: update %s/%s: %w", op.collection, op.id, ErrNotFound)
		}
	case opDelete:
		if _, err := q.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, op.collection, op.id); err != nil {
			return fmt.Errorf("docstore: delete %s/%s: %w", op.collection, op.id, err)
		}
	}
	return nil
}

// Subscribe listens on the change feed first and then reads the snapshot, so
// no write between the two is missed.
func (s *PostgresStore) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	sub, err := s.feed.Subscribe(ctx, collection)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.Query(ctx, collection)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	sub.Snapshot = snapshot
	return sub, nil
}

func decodeRow(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: decode row: %w", err)
	}
	return doc, nil
}
