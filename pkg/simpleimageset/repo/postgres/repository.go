// Package postgres provides a PostgreSQL-backed simpleimageset.Repository.
//
// Schema (see migrations in the deployment repo):
//
//	imageset(id uuid pk, default_duration int not null,
//	         bg_color text, color text, created_at, updated_at)
//	imageset_entry(imageset_id uuid references imageset,
//	               position int not null, stored_file_id uuid not null,
//	               duration int, created_at,
//	               primary key (imageset_id, position))
//	stored_file(id uuid pk, owner_ref text not null, bucket text not null,
//	            object_key text not null, file_name text not null,
//	            mime_type text, size_bytes bigint, created_at)
package postgres

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-imageset/pkg/simpleimageset"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleimageset.Repository using PostgreSQL
type Repository struct {
	db   DBTX
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL repository from any DBTX. Repositories built
// this way cannot take container locks; use NewWithPool for that.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if pgErr.ConstraintName == "imageset_pkey" {
				return simpleimageset.ErrImageSetExists
			}
			if pgErr.ConstraintName == "imageset_entry_pkey" {
				return simpleimageset.ErrPositionOccupied
			}
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return simpleimageset.ErrImageSetNotFound
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Imageset operations

func (r *Repository) CreateImageSet(ctx context.Context, set *simpleimageset.ImageSet) error {
	query := `
		INSERT INTO imageset (id, default_duration, bg_color, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		set.ID, set.DefaultDuration, set.BGColor, set.Color, set.CreatedAt, set.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create imageset", err)
	}
	return nil
}

func (r *Repository) GetImageSet(ctx context.Context, id uuid.UUID) (*simpleimageset.ImageSet, error) {
	query := `
		SELECT id, default_duration, bg_color, color, created_at, updated_at
		FROM imageset WHERE id = $1`

	var set simpleimageset.ImageSet
	err := r.db.QueryRow(ctx, query, id).Scan(
		&set.ID, &set.DefaultDuration, &set.BGColor, &set.Color, &set.CreatedAt, &set.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleimageset.ErrImageSetNotFound
		}
		return nil, r.handlePostgresError("get imageset", err)
	}
	return &set, nil
}

func (r *Repository) UpdateImageSet(ctx context.Context, set *simpleimageset.ImageSet) error {
	query := `
		UPDATE imageset SET default_duration = $2, bg_color = $3, color = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		set.ID, set.DefaultDuration, set.BGColor, set.Color, set.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update imageset", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimageset.ErrImageSetNotFound
	}
	return nil
}

// Entry operations

func (r *Repository) ListEntries(ctx context.Context, imagesetID uuid.UUID) ([]*simpleimageset.Entry, error) {
	// The imageset must exist even when it has no entries.
	if _, err := r.GetImageSet(ctx, imagesetID); err != nil {
		return nil, err
	}

	query := `
		SELECT imageset_id, position, stored_file_id, duration, created_at
		FROM imageset_entry
		WHERE imageset_id = $1
		ORDER BY position ASC`

	rows, err := r.db.Query(ctx, query, imagesetID)
	if err != nil {
		return nil, r.handlePostgresError("list entries", err)
	}
	defer rows.Close()

	var entries []*simpleimageset.Entry
	for rows.Next() {
		var entry simpleimageset.Entry
		if err := rows.Scan(&entry.ImageSetID, &entry.Position,
			&entry.StoredFileID, &entry.Duration, &entry.CreatedAt); err != nil {
			return nil, r.handlePostgresError("list entries", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list entries", err)
	}
	return entries, nil
}

func (r *Repository) CreateEntry(ctx context.Context, entry *simpleimageset.Entry) error {
	query := `
		INSERT INTO imageset_entry (imageset_id, position, stored_file_id, duration, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		entry.ImageSetID, entry.Position, entry.StoredFileID, entry.Duration, entry.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create entry", err)
	}
	return nil
}

func (r *Repository) DeleteEntryAt(ctx context.Context, imagesetID uuid.UUID, position int) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM imageset_entry WHERE imageset_id = $1 AND position = $2`,
		imagesetID, position)
	if err != nil {
		return r.handlePostgresError("delete entry", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimageset.ErrEntryNotFound
	}
	return nil
}

func (r *Repository) MoveEntry(ctx context.Context, imagesetID uuid.UUID, from, to int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE imageset_entry SET position = $3 WHERE imageset_id = $1 AND position = $2`,
		imagesetID, from, to)
	if err != nil {
		return r.handlePostgresError("move entry", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimageset.ErrEntryNotFound
	}
	return nil
}

// Stored file operations

func (r *Repository) CreateStoredFile(ctx context.Context, file *simpleimageset.StoredFile) error {
	query := `
		INSERT INTO stored_file (id, owner_ref, bucket, object_key, file_name, mime_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		file.ID, file.OwnerRef, file.Bucket, file.ObjectKey,
		file.FileName, file.MimeType, file.SizeBytes, file.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create stored file", err)
	}
	return nil
}

func (r *Repository) GetStoredFile(ctx context.Context, id uuid.UUID) (*simpleimageset.StoredFile, error) {
	query := `
		SELECT id, owner_ref, bucket, object_key, file_name, mime_type, size_bytes, created_at
		FROM stored_file WHERE id = $1`

	var file simpleimageset.StoredFile
	err := r.db.QueryRow(ctx, query, id).Scan(
		&file.ID, &file.OwnerRef, &file.Bucket, &file.ObjectKey,
		&file.FileName, &file.MimeType, &file.SizeBytes, &file.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleimageset.ErrStoredFileNotFound
		}
		return nil, r.handlePostgresError("get stored file", err)
	}
	return &file, nil
}

func (r *Repository) UpdateStoredFile(ctx context.Context, file *simpleimageset.StoredFile) error {
	query := `
		UPDATE stored_file SET owner_ref = $2, bucket = $3, object_key = $4,
			file_name = $5, mime_type = $6, size_bytes = $7
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		file.ID, file.OwnerRef, file.Bucket, file.ObjectKey,
		file.FileName, file.MimeType, file.SizeBytes)
	if err != nil {
		return r.handlePostgresError("update stored file", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleimageset.ErrStoredFileNotFound
	}
	return nil
}

// WithContainerLock runs fn inside a transaction holding an advisory lock
// derived from the imageset id, serializing sequence mutations per imageset
// across all processes sharing the database.
func (r *Repository) WithContainerLock(ctx context.Context, imagesetID uuid.UUID, fn func(simpleimageset.Repository) error) error {
	if r.pool == nil {
		return errors.New("container locks require a repository built with NewWithPool")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("begin container lock", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(imagesetID)); err != nil {
		return r.handlePostgresError("acquire container lock", err)
	}

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// advisoryLockKey folds a uuid into the int64 keyspace pg_advisory_xact_lock
// expects. Collisions only cost extra serialization, never correctness.
func advisoryLockKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
}
