package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/faceauth/internal/config"
	"github.com/your-org/faceauth/internal/models"
)

// PostgresStore is the relational backend. Identity ids come from a
// sequence, so they stay strictly increasing and are never reused even
// when an enrollment fails after the insert. Samples append: every
// enrollment keeps its crop and all of them feed the next retrain.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS identities (
		id            BIGSERIAL PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT UNIQUE,
		password_hash TEXT,
		level         INT NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS face_samples (
		id          BIGSERIAL PRIMARY KEY,
		identity_id BIGINT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		blob_key    TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_face_samples_identity ON face_samples(identity_id);`

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Identities ---

func (s *PostgresStore) CreateIdentity(ctx context.Context, p CreateIdentityParams) (*models.Identity, error) {
	ident := &models.Identity{
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Level:        p.Level,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identities (name, email, password_hash, level) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		p.Name, p.Email, p.PasswordHash, p.Level,
	).Scan(&ident.ID, &ident.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("create identity: %w", ErrConflict)
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, level, created_at FROM identities WHERE id = $1`, id,
	).Scan(&ident.ID, &ident.Name, &ident.Email, &ident.PasswordHash, &ident.Level, &ident.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) FindIdentityByLogin(ctx context.Context, login string) (*models.Identity, error) {
	ident := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, level, created_at FROM identities
		 WHERE email = $1 OR name = $1
		 ORDER BY (email = $1) DESC, id ASC
		 LIMIT 1`, login,
	).Scan(&ident.ID, &ident.Name, &ident.Email, &ident.PasswordHash, &ident.Level, &ident.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find identity by login: %w", err)
	}
	return ident, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email, password_hash, level, created_at FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var idents []models.Identity
	for rows.Next() {
		var ident models.Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Email, &ident.PasswordHash, &ident.Level, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		idents = append(idents, ident)
	}
	return idents, nil
}

func (s *PostgresStore) DeleteIdentity(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT blob_key FROM face_samples WHERE identity_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("list sample keys: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sample key: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()

	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return keys, nil
}

// --- Face samples ---

// SampleKey returns a fresh key per call; the relational backend keeps
// every historical crop.
func (s *PostgresStore) SampleKey(identityID int64) string {
	return fmt.Sprintf("user_%d_%s.png", identityID, uuid.New().String())
}

func (s *PostgresStore) AddFaceSample(ctx context.Context, identityID int64, blobKey string) (*models.FaceSample, error) {
	sample := &models.FaceSample{
		IdentityID: identityID,
		BlobKey:    blobKey,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO face_samples (identity_id, blob_key) VALUES ($1, $2) RETURNING id, created_at`,
		identityID, blobKey,
	).Scan(&sample.ID, &sample.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add face sample: %w", err)
	}
	return sample, nil
}

func (s *PostgresStore) ListFaceSamples(ctx context.Context) ([]models.FaceSample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, identity_id, blob_key, created_at FROM face_samples ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list face samples: %w", err)
	}
	defer rows.Close()

	var samples []models.FaceSample
	for rows.Next() {
		var sample models.FaceSample
		if err := rows.Scan(&sample.ID, &sample.IdentityID, &sample.BlobKey, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (s *PostgresStore) CountFaceSamples(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM face_samples`).Scan(&count)
	return count, err
}

func (s *PostgresStore) CountSamplesFor(ctx context.Context, identityID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_samples WHERE identity_id = $1`, identityID).Scan(&count)
	return count, err
}

func (s *PostgresStore) CountIdentities(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM identities`).Scan(&count)
	return count, err
}
