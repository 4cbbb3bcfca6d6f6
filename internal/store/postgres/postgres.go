// Package postgres provides a PostgreSQL-backed store.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/networkfs/internal/logging"
	"github.com/fruitsalade/networkfs/internal/store"
	"github.com/fruitsalade/networkfs/pkg/models"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Store is a PostgreSQL store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New connects to databaseURL.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema files in name order.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkDir fails unless id names a directory in ns. When lock is set the row
// is share-locked so a concurrent rmdir waits for the caller.
func checkDir(ctx context.Context, q querier, ns string, id uint64, lock bool) error {
	if id == models.RootID {
		return nil
	}
	query := `SELECT kind FROM entries WHERE namespace = $1 AND id = $2`
	if lock {
		query += ` FOR SHARE`
	}
	var kind int16
	err := q.QueryRowContext(ctx, query, ns, int64(id)).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNoSuchInode
	}
	if err != nil {
		return fmt.Errorf("query inode: %w", err)
	}
	if !models.Kind(kind).IsDir() {
		return store.ErrNotDir
	}
	return nil
}

func (s *Store) List(ctx context.Context, ns string, dir uint64) ([]models.Entry, error) {
	if err := checkDir(ctx, s.db, ns, dir, false); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, id FROM entries
		 WHERE namespace = $1 AND parent = $2
		 ORDER BY name COLLATE "C"`, ns, int64(dir))
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var (
			e    models.Entry
			kind int16
			id   int64
		)
		if err := rows.Scan(&e.Name, &kind, &id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Kind, e.ID = models.Kind(kind), uint64(id)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

func lookup(ctx context.Context, q querier, ns string, parent uint64, name string, lock bool) (models.Entry, error) {
	query := `SELECT kind, id FROM entries WHERE namespace = $1 AND parent = $2 AND name = $3`
	if lock {
		query += ` FOR UPDATE`
	}
	var (
		kind int16
		id   int64
	)
	err := q.QueryRowContext(ctx, query, ns, int64(parent), name).Scan(&kind, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, store.ErrNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("query entry: %w", err)
	}
	return models.Entry{Name: name, Kind: models.Kind(kind), ID: uint64(id)}, nil
}

func (s *Store) Lookup(ctx context.Context, ns string, parent uint64, name string) (models.Entry, error) {
	if err := checkDir(ctx, s.db, ns, parent, false); err != nil {
		return models.Entry{}, err
	}
	return lookup(ctx, s.db, ns, parent, name, false)
}

func (s *Store) Create(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) (uint64, error) {
	if err := store.ValidateCreate(name, kind); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := checkDir(ctx, tx, ns, parent, true); err != nil {
		return 0, err
	}
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO entries (namespace, parent, name, kind)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		ns, int64(parent), name, int16(kind)).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, store.ErrExists
		}
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return uint64(id), nil
}

func (s *Store) Remove(ctx context.Context, ns string, parent uint64, name string, kind models.Kind) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := checkDir(ctx, tx, ns, parent, false); err != nil {
		return err
	}
	target, err := lookup(ctx, tx, ns, parent, name, true)
	if err != nil {
		return err
	}
	children := 0
	if target.Kind.IsDir() {
		err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM entries WHERE namespace = $1 AND parent = $2`,
			ns, int64(target.ID)).Scan(&children)
		if err != nil {
			return fmt.Errorf("count children: %w", err)
		}
	}
	if err := store.CheckRemove(target, kind, children); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE namespace = $1 AND id = $2`, ns, int64(target.ID)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
