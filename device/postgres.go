package device

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry implements Registry on the user_devices table created by
// the store package migrations.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a registry bound to the given pool.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) Register(ctx context.Context, userID, token string, provider Provider, platform string) (*Device, error) {
	var d Device
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_devices (
			push_token, user_id, provider, platform, is_active,
			last_seen_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, TRUE, now(), now(), now())
		ON CONFLICT (push_token) DO UPDATE SET
			user_id = $2, provider = $3, platform = $4, is_active = TRUE,
			last_seen_at = now(), updated_at = now(),
			last_error_at = NULL, last_error_message = ''
		RETURNING push_token, user_id, provider, platform, is_active,
			last_seen_at, last_error_at, last_error_message, created_at, updated_at`,
		token, userID, provider, platform,
	).Scan(
		&d.PushToken, &d.UserID, &d.Provider, &d.Platform, &d.IsActive,
		&d.LastSeenAt, &d.LastErrorAt, &d.LastErrorMessage, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *PostgresRegistry) Unregister(ctx context.Context, userID, token string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_devices WHERE push_token = $1 AND user_id = $2`, token, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRegistry) ActiveTokens(ctx context.Context, userID string, provider Provider) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT push_token FROM user_devices
		 WHERE user_id = $1 AND provider = $2 AND is_active`, userID, provider)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (r *PostgresRegistry) Deactivate(ctx context.Context, token, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_devices SET
			is_active = FALSE, last_error_at = now(),
			last_error_message = $2, updated_at = now()
		WHERE push_token = $1`, token, reason)
	return err
}
