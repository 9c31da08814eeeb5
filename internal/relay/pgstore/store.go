// Package pgstore keeps canonical blobs in PostgreSQL, one row per owner in
// the clipboards table.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/clipsync/internal/cryptox"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/relay"
	"github.com/dmitrijs2005/clipsync/internal/relay/pgstore/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var _ relay.Coordinator = (*Store)(nil)

type Store struct {
	db     *sql.DB
	cipher *cryptox.MessageCipher
	logger logging.Logger
}

// Open connects with the pgx driver and applies pending migrations.
func Open(ctx context.Context, dsn string, cipher *cryptox.MessageCipher, l logging.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	s := New(db, cipher, l)
	if err := s.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// New wraps an already open database.
func New(db *sql.DB, cipher *cryptox.MessageCipher, l logging.Logger) *Store {
	return &Store{db: db, cipher: cipher, logger: l.With("module", "pgstore")}
}

func (s *Store) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Push replaces the owner's row. Pushing the digest already stored is a
// no-op so the version only moves on real changes.
func (s *Store) Push(ctx context.Context, owner string, data []byte, hash string) error {
	payload, err := s.cipher.Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt blob of %s: %w", owner, err)
	}

	unchanged := false
	err = inTx(ctx, s.db, func(ctx context.Context, q querier) error {
		var current string
		err := q.QueryRowContext(ctx, `SELECT hash FROM clipboards WHERE owner_id = $1 FOR UPDATE`, owner).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("select hash: %w", err)
		case current == hash:
			unchanged = true
			return nil
		}

		query := `
			INSERT INTO clipboards (owner_id, hash, payload, size_bytes)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (owner_id)
			DO UPDATE SET
				hash = EXCLUDED.hash,
				payload = EXCLUDED.payload,
				size_bytes = EXCLUDED.size_bytes,
				version = clipboards.version + 1,
				updated_at = now();
		`
		res, err := q.ExecContext(ctx, query, owner, hash, payload, len(data))
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected error: %w", err)
		}
		if n != 1 {
			return fmt.Errorf("unexpected rows affected: %d", n)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push blob of %s: %w", owner, err)
	}

	if !unchanged {
		s.logger.Debug(ctx, "blob stored", "owner", owner, "bytes", len(data))
	}
	return nil
}

func (s *Store) PullHash(ctx context.Context, owner string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM clipboards WHERE owner_id = $1`, owner).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select hash of %s: %w", owner, err)
	}
	return hash, true, nil
}

func (s *Store) Pull(ctx context.Context, owner string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM clipboards WHERE owner_id = $1`, owner).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select blob of %s: %w", owner, err)
	}

	data, err := s.cipher.Decrypt(payload)
	if err != nil {
		return nil, false, fmt.Errorf("blob of %s: %w", owner, err)
	}
	return data, true, nil
}
