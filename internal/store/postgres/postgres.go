// Package postgres persists the dataset catalog in PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embedviz/vizframe/errs"
	"github.com/embedviz/vizframe/internal/dataset"
	"github.com/embedviz/vizframe/internal/schema"
	"github.com/embedviz/vizframe/internal/store"
)

// Store is a PostgreSQL-backed dataset catalog.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store backed by the provided pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const (
	datasetInsertSQL = `
INSERT INTO datasets (
    id,
    slug,
    transform,
    revision,
    source,
    params,
    document,
    note,
    updated_at
)
VALUES ($1, $2, $3, 1, $4::jsonb, $5::jsonb, $6::jsonb, $7, NOW())
ON CONFLICT (slug) DO NOTHING
RETURNING updated_at;
`
	datasetSelectSQL = `
SELECT id, slug, transform, revision, source, params, document, note, updated_at
FROM datasets
WHERE slug = $1;
`
	datasetListSQL = `
SELECT id, slug, transform, revision, source, params, document, note, updated_at
FROM datasets
ORDER BY slug;
`
	datasetLockSQL = `SELECT id, revision FROM datasets WHERE slug = $1 FOR UPDATE;`

	datasetUpdateSQL = `
UPDATE datasets SET
    transform = $2,
    revision = $3,
    source = $4::jsonb,
    params = $5::jsonb,
    document = $6::jsonb,
    note = $7,
    updated_at = NOW()
WHERE slug = $1
RETURNING updated_at;
`
)

// Get returns the current record for the provided slug.
func (s *Store) Get(ctx context.Context, slug string) (store.Record, error) {
	if s.pool == nil {
		return store.Record{}, fmt.Errorf("dataset store: nil pool")
	}
	if err := store.ValidateSlug(slug); err != nil {
		return store.Record{}, err
	}
	record, err := scanRecord(s.pool.QueryRow(ctx, datasetSelectSQL, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, notFound(slug)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("select dataset: %w", err)
	}
	return record, nil
}

// List retrieves every record ordered by slug.
func (s *Store) List(ctx context.Context) ([]store.Record, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("dataset store: nil pool")
	}
	rows, err := s.pool.Query(ctx, datasetListSQL)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate datasets: %w", err)
	}
	return records, nil
}

// Put creates a new record at revision 1. An existing slug is a conflict.
func (s *Store) Put(ctx context.Context, record store.Record) (store.Record, error) {
	if s.pool == nil {
		return store.Record{}, fmt.Errorf("dataset store: nil pool")
	}
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}
	source, params, document, err := encodeRecord(record)
	if err != nil {
		return store.Record{}, err
	}

	record.Revision = 1
	err = s.pool.QueryRow(ctx, datasetInsertSQL,
		record.ID, record.Slug, record.Transform, source, params, document, record.Note,
	).Scan(&record.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, errs.New("store/postgres", errs.CodeConflict,
			errs.WithMessage("dataset already exists"),
			errs.WithMetaField("slug", record.Slug))
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("insert dataset: %w", err)
	}
	return record, nil
}

// CompareAndSwap replaces the record inside a transaction if the previous
// revision matches, bumping it by one.
func (s *Store) CompareAndSwap(ctx context.Context, prevRevision uint64, record store.Record) (store.Record, error) {
	if s.pool == nil {
		return store.Record{}, fmt.Errorf("dataset store: nil pool")
	}
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}
	source, params, document, err := encodeRecord(record)
	if err != nil {
		return store.Record{}, err
	}

	var txOptions pgx.TxOptions
	txOptions.IsoLevel = pgx.ReadCommitted
	txOptions.AccessMode = pgx.ReadWrite
	txOptions.DeferrableMode = pgx.NotDeferrable

	tx, err := s.pool.BeginTx(ctx, txOptions)
	if err != nil {
		return store.Record{}, fmt.Errorf("begin cas tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current int64
	err = tx.QueryRow(ctx, datasetLockSQL, record.Slug).Scan(&record.ID, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, notFound(record.Slug)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("lock dataset: %w", err)
	}
	if uint64(current) != prevRevision {
		return store.Record{}, errs.New("store/postgres", errs.CodeConflict,
			errs.WithMessage("revision mismatch"),
			errs.WithMetaField("slug", record.Slug))
	}

	record.Revision = prevRevision + 1
	err = tx.QueryRow(ctx, datasetUpdateSQL,
		record.Slug, record.Transform, int64(record.Revision), source, params, document, record.Note,
	).Scan(&record.UpdatedAt)
	if err != nil {
		return store.Record{}, fmt.Errorf("update dataset: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return store.Record{}, fmt.Errorf("commit cas tx: %w", err)
	}
	return record, nil
}

func notFound(slug string) error {
	return errs.New("store/postgres", errs.CodeNotFound,
		errs.WithMessage("dataset not found"),
		errs.WithMetaField("slug", slug))
}

func encodeRecord(record store.Record) (source, params, document []byte, err error) {
	source, err = json.Marshal(record.Table)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal dataset table: %w", err)
	}
	params = record.Params
	if len(params) == 0 {
		params = []byte("{}")
	}
	document, err = json.Marshal(record.Document)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal dataset document: %w", err)
	}
	return source, params, document, nil
}

// scanRecord reads one dataset row; pgx.Row and pgx.Rows share the Scan shape.
func scanRecord(row pgx.Row) (store.Record, error) {
	var (
		record        store.Record
		revision      int64
		sourceBytes   []byte
		paramsBytes   []byte
		documentBytes []byte
	)
	err := row.Scan(&record.ID, &record.Slug, &record.Transform, &revision,
		&sourceBytes, &paramsBytes, &documentBytes, &record.Note, &record.UpdatedAt)
	if err != nil {
		return store.Record{}, err
	}
	record.Revision = uint64(revision)

	var table dataset.Table
	if err := json.Unmarshal(sourceBytes, &table); err != nil {
		return store.Record{}, fmt.Errorf("decode dataset table: %w", err)
	}
	record.Table = table
	record.Params = append(json.RawMessage(nil), paramsBytes...)

	doc, err := schema.DecodeDocument(documentBytes)
	if err != nil {
		return store.Record{}, err
	}
	record.Document = doc
	return record, nil
}
