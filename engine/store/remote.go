package store

import (
	"context"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentsTable = "documents"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// RemoteStore is the cloud half of the dual store: a partitioned document
// table with upsert-by-id semantics and last-writer-wins on conflicts.
type RemoteStore struct {
	pool *pgxpool.Pool
}

func NewRemoteStore(ctx context.Context, dsn string) (*RemoteStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, ErrUnavailable(err, "connect")
	}
	s := &RemoteStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *RemoteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    collection    TEXT        NOT NULL,
    id            TEXT        NOT NULL,
    partition_key TEXT        NOT NULL DEFAULT '',
    type          TEXT        NOT NULL DEFAULT '',
    body          JSONB       NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_partition_idx ON documents (collection, partition_key);
CREATE INDEX IF NOT EXISTS documents_type_idx ON documents (collection, type);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return ErrUnavailable(err, "migrate")
	}
	return nil
}

func (s *RemoteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	query, args, err := psql.Select("id", "type", "partition_key", "body").
		From(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return nil, ErrUnavailable(err, "build query")
	}
	row := s.pool.QueryRow(ctx, query, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound(collection, id)
	}
	if err != nil {
		return nil, ErrUnavailable(err, "read")
	}
	return doc, nil
}

func (s *RemoteStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	builder := psql.Select("id", "type", "partition_key", "body").
		From(documentsTable).
		Where(sq.Eq{"collection": collection})
	if q.Type != "" {
		builder = builder.Where(sq.Eq{"type": q.Type})
	}
	if q.PartitionKey != "" {
		builder = builder.Where(sq.Eq{"partition_key": q.PartitionKey})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, ErrUnavailable(err, "build query")
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, ErrUnavailable(err, "read")
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, ErrUnavailable(err, "scan")
		}
		docs = append(docs, *doc)
	}
	if rows.Err() != nil {
		return nil, ErrUnavailable(rows.Err(), "read")
	}
	return docs, nil
}

func (s *RemoteStore) Upsert(ctx context.Context, collection string, doc *Document) error {
	doc.Normalize()
	body, err := json.Marshal(doc.Data)
	if err != nil {
		return ErrUnavailable(err, "encode")
	}
	query, args, err := psql.Insert(documentsTable).
		Columns("collection", "id", "partition_key", "type", "body").
		Values(collection, doc.ID, doc.PartitionKey, doc.Type, body).
		Suffix(`ON CONFLICT (collection, id) DO UPDATE
SET partition_key = EXCLUDED.partition_key,
    type          = EXCLUDED.type,
    body          = EXCLUDED.body,
    updated_at    = now()`).
		ToSql()
	if err != nil {
		return ErrUnavailable(err, "build upsert")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return ErrUnavailable(err, "upsert")
	}
	return nil
}

func (s *RemoteStore) Delete(ctx context.Context, collection, id string) error {
	query, args, err := psql.Delete(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return ErrUnavailable(err, "build delete")
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return ErrUnavailable(err, "delete")
	}
	return nil
}

func (s *RemoteStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	var body []byte
	if err := row.Scan(&doc.ID, &doc.Type, &doc.PartitionKey, &body); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &doc.Data); err != nil {
		return nil, err
	}
	return &doc, nil
}
