// Package catalog keeps a local SQLite history of created and restored
// archives.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/dmitrijs2005/sealback/internal/dbx"
	"github.com/dmitrijs2005/sealback/internal/manifest"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedded embed.FS

type Operation string

const (
	OperationCreate  Operation = "create"
	OperationRestore Operation = "restore"
)

// Record is one history entry. For creates Destination is the upload
// target (possibly empty); for restores it is the directory restored into.
type Record struct {
	ID          string
	Operation   Operation
	ArchivePath string
	Destination string
	Size        int64
	CreatedAt   time.Time
	Sources     []manifest.Source
}

type Repository interface {
	Add(ctx context.Context, rec Record) (Record, error)
	List(ctx context.Context, limit int) ([]Record, error)
}

// Catalog is the SQLite backed Repository.
type Catalog struct {
	db *sql.DB
}

var _ Repository = (*Catalog)(nil)

var now = func() time.Time { return time.Now().UTC() }

// RunMigrations brings the schema of db up to date.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	migrations, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Open opens the history database at path, creating and migrating it as
// needed.
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := dbx.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Add stores rec and its sources in one transaction. A missing ID or
// timestamp is filled in; the stored record is returned.
func (c *Catalog) Add(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}

	err := dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backups (id, operation, archive_path, destination, archive_size, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, string(rec.Operation), rec.ArchivePath, rec.Destination, rec.Size, rec.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert backup record: %w", err)
		}

		for i, s := range rec.Sources {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO backup_sources (backup_id, position, path, type) VALUES (?, ?, ?, ?)
			`, rec.ID, i, s.Path, s.Type)
			if err != nil {
				return fmt.Errorf("failed to insert backup source: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns up to limit records, newest first.
func (c *Catalog) List(ctx context.Context, limit int) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, operation, archive_path, destination, archive_size, created_at
		FROM backups
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var records []Record
	for rows.Next() {
		var rec Record
		var op string
		var created int64
		if err := rows.Scan(&rec.ID, &op, &rec.ArchivePath, &rec.Destination, &rec.Size, &created); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		rec.Operation = Operation(op)
		rec.CreatedAt = time.Unix(0, created).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate backup rows: %w", err)
	}
	_ = rows.Close()

	for i := range records {
		sources, err := c.sources(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Sources = sources
	}
	return records, nil
}

func (c *Catalog) sources(ctx context.Context, id string) ([]manifest.Source, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT path, type FROM backup_sources WHERE backup_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources of %s: %w", id, err)
	}
	defer rows.Close()

	var out []manifest.Source
	for rows.Next() {
		var s manifest.Source
		if err := rows.Scan(&s.Path, &s.Type); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
