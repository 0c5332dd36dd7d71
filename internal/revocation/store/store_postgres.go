package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"strand/internal/revocation/models"
	"strand/pkg/platform/sentinel"
)

// PostgresStore persists revocations in PostgreSQL. Rows are never updated
// or deleted.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, rec models.Record) (models.Record, bool, error) {
	if rec.CredentialID == "" {
		return models.Record{}, false, fmt.Errorf("credential id is required: %w", sentinel.ErrInvalidInput)
	}
	query := `
		INSERT INTO revocations (credential_id, reason, revoked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (credential_id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, rec.CredentialID, rec.Reason, rec.RevokedAt)
	if err != nil {
		return models.Record{}, false, unavailable("insert revocation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Record{}, false, unavailable("insert revocation", err)
	}
	if affected == 1 {
		return rec, true, nil
	}
	existing, err := s.Get(ctx, rec.CredentialID)
	if err != nil {
		return models.Record{}, false, err
	}
	return existing, false, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (models.Record, error) {
	var rec models.Record
	err := s.db.QueryRowContext(ctx,
		`SELECT credential_id, reason, revoked_at FROM revocations WHERE credential_id = $1`, id,
	).Scan(&rec.CredentialID, &rec.Reason, &rec.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Record{}, unavailable("get revocation", err)
	}
	rec.RevokedAt = rec.RevokedAt.UTC()
	return rec, nil
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT credential_id FROM revocations ORDER BY credential_id COLLATE "C"`)
	if err != nil {
		return nil, unavailable("list revocations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, unavailable("scan revocation", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list revocations", err)
	}
	return ids, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(err, sentinel.ErrUnavailable))
}
