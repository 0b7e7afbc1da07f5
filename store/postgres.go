package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/notifier/notification"
	"github.com/dmitrymomot/notifier/policy"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// PostgresConfig represents the configuration for the Postgres-backed storage.
type PostgresConfig struct {
	ConnectionString string        `env:"PG_CONN_URL,required"`
	MaxOpenConns     int32         `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
	MinConns         int32         `env:"PG_MIN_CONNS" envDefault:"1"`
	MaxConnIdleTime  time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime  time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`
	RetryAttempts    int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval    time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"5s"`
}

// ConnectPostgres establishes a pgx connection pool with retries.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errors.Join(ErrFailedToConnect, err)
	}
	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	for i := range cfg.RetryAttempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err := pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		time.Sleep(time.Duration(i+1) * cfg.RetryInterval)
	}

	return nil, ErrFailedToConnect
}

// MigratePostgres applies the embedded schema migrations using goose,
// bridging the pgx pool to the database/sql interface goose expects.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func(db *sql.DB) { _ = db.Close() }(db)

	goose.SetBaseFS(embeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// PostgresStorage implements Storage on top of PostgreSQL. Deliveries live
// in their own table keyed by (notification_id, channel), so the claim
// operation is a single conditional UPDATE with a status guard.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates storage bound to the given pool. Run
// MigratePostgres before first use.
func NewPostgresStorage(pool *pgxpool.Pool) *PostgresStorage {
	return &PostgresStorage{pool: pool}
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStorage) Create(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("marshal notification data: %w", err)
	}
	policyJSON, err := json.Marshal(n.Policy)
	if err != nil {
		return fmt.Errorf("marshal delivery policy: %w", err)
	}

	channels := make([]string, len(n.Channels))
	for i, ch := range n.Channels {
		channels[i] = string(ch)
	}

	var dedup *string
	if n.DeduplicationKey != "" {
		dedup = &n.DeduplicationKey
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (
			id, audience, recipient_user_id, recipient_company_id, event_key,
			topic, priority, title, body, data, channels, status, policy,
			deduplication_key, scheduled_at, expires_at, read_at, archived_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		n.ID, n.Audience, n.RecipientUserID, n.RecipientCompanyID, n.EventKey,
		n.Topic, n.Priority, n.Title, n.Body, data, channels, n.Status, policyJSON,
		dedup, n.ScheduledAt, n.ExpiresAt, n.ReadAt, n.ArchivedAt,
		n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return err
	}

	for _, d := range n.Deliveries {
		_, err = tx.Exec(ctx, `
			INSERT INTO deliveries (
				notification_id, channel, status, attempt_count, requested_at,
				sent_at, delivered_at, failure_at, next_retry_at,
				error_code, error_message, provider_message_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			n.ID, d.Channel, d.Status, d.AttemptCount, d.RequestedAt,
			d.SentAt, d.DeliveredAt, d.FailureAt, d.NextRetryAt,
			d.ErrorCode, d.ErrorMessage, d.ProviderMessageID,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// querier abstracts the pool and a transaction for the load helpers.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStorage) load(ctx context.Context, q querier, id string) (*notification.Notification, error) {
	var (
		n          notification.Notification
		data       []byte
		policyJSON []byte
		channels   []string
		dedup      *string
	)
	err := q.QueryRow(ctx, `
		SELECT id, audience, recipient_user_id, recipient_company_id, event_key,
			topic, priority, title, body, data, channels, status, policy,
			deduplication_key, scheduled_at, expires_at, read_at, archived_at,
			created_at, updated_at
		FROM notifications WHERE id = $1`, id,
	).Scan(
		&n.ID, &n.Audience, &n.RecipientUserID, &n.RecipientCompanyID, &n.EventKey,
		&n.Topic, &n.Priority, &n.Title, &n.Body, &data, &channels, &n.Status, &policyJSON,
		&dedup, &n.ScheduledAt, &n.ExpiresAt, &n.ReadAt, &n.ArchivedAt,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal notification data: %w", err)
		}
	}
	if len(policyJSON) > 0 {
		if err := json.Unmarshal(policyJSON, &n.Policy); err != nil {
			return nil, fmt.Errorf("unmarshal delivery policy: %w", err)
		}
	}
	n.Channels = make([]notification.Channel, len(channels))
	for i, ch := range channels {
		n.Channels[i] = notification.Channel(ch)
	}
	if dedup != nil {
		n.DeduplicationKey = *dedup
	}

	rows, err := q.Query(ctx, `
		SELECT channel, status, attempt_count, requested_at, sent_at,
			delivered_at, failure_at, next_retry_at, error_code,
			error_message, provider_message_id
		FROM deliveries WHERE notification_id = $1 ORDER BY channel`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d notification.Delivery
		if err := rows.Scan(
			&d.Channel, &d.Status, &d.AttemptCount, &d.RequestedAt, &d.SentAt,
			&d.DeliveredAt, &d.FailureAt, &d.NextRetryAt, &d.ErrorCode,
			&d.ErrorMessage, &d.ProviderMessageID,
		); err != nil {
			return nil, err
		}
		n.Deliveries = append(n.Deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &n, nil
}

func (s *PostgresStorage) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return s.load(ctx, s.pool, id)
}

func (s *PostgresStorage) ListForUser(ctx context.Context, userID string, opts ListOptions) ([]notification.Notification, int, error) {
	filter := `recipient_user_id = $1 AND archived_at IS NULL`
	switch opts.Status {
	case ReadFilterUnread:
		filter += ` AND read_at IS NULL`
	case ReadFilterRead:
		filter += ` AND read_at IS NOT NULL`
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE `+filter, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id FROM notifications WHERE ` + filter + ` ORDER BY created_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	items := make([]notification.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.load(ctx, s.pool, id)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *n)
	}
	return items, total, nil
}

func (s *PostgresStorage) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications
		 WHERE recipient_user_id = $1 AND archived_at IS NULL AND read_at IS NULL`,
		userID,
	).Scan(&count)
	return count, err
}

func (s *PostgresStorage) MarkRead(ctx context.Context, id string, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, now()), updated_at = now()
		 WHERE id = $1 AND recipient_user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read_at = now(), updated_at = now()
		 WHERE recipient_user_id = $1 AND read_at IS NULL AND archived_at IS NULL`, userID)
	return err
}

func (s *PostgresStorage) Archive(ctx context.Context, id string, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET archived_at = COALESCE(archived_at, now()), updated_at = now()
		 WHERE id = $1 AND recipient_user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) Unarchive(ctx context.Context, id string, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET archived_at = NULL, updated_at = now()
		 WHERE id = $1 AND recipient_user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) FindDue(ctx context.Context, ch notification.Channel, now time.Time, limit int) ([]notification.Notification, error) {
	query := `
		SELECT n.id FROM notifications n
		JOIN deliveries d ON d.notification_id = n.id AND d.channel = $1
		WHERE n.status = ANY($2)
		  AND n.archived_at IS NULL
		  AND (n.scheduled_at IS NULL OR n.scheduled_at <= $3)
		  AND d.status IN ('queued','sending')
		  AND (d.next_retry_at IS NULL OR d.next_retry_at <= $3)
		ORDER BY n.created_at ASC`
	args := []any{ch, []string{
		string(notification.StatusQueued),
		string(notification.StatusDispatching),
		string(notification.StatusPartiallySent),
	}, now}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	ids, err := s.queryIDs(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	items := make([]notification.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.load(ctx, s.pool, id)
		if err != nil {
			return nil, err
		}
		items = append(items, *n)
	}
	return items, nil
}

func (s *PostgresStorage) Claim(ctx context.Context, id string, ch notification.Channel, now time.Time) (*notification.Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The conditional UPDATE is the compare-and-swap: the WHERE clause
	// re-checks the full eligibility predicate, so losing the race to
	// another dispatcher simply updates zero rows.
	tag, err := tx.Exec(ctx, `
		UPDATE deliveries d
		SET status = 'sending', sent_at = $3, attempt_count = d.attempt_count + 1
		FROM notifications n
		WHERE d.notification_id = $1 AND d.channel = $2
		  AND d.status IN ('queued','sending')
		  AND (d.next_retry_at IS NULL OR d.next_retry_at <= $3)
		  AND n.id = d.notification_id
		  AND n.status IN ('queued','dispatching','partially-sent')
		  AND n.archived_at IS NULL
		  AND (n.scheduled_at IS NULL OR n.scheduled_at <= $3)`,
		id, ch, now.UTC())
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrClaimConflict
	}

	if _, err := tx.Exec(ctx,
		`UPDATE notifications SET status = 'dispatching', updated_at = $2 WHERE id = $1`,
		id, now.UTC()); err != nil {
		return nil, err
	}

	n, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *PostgresStorage) UpdateDelivery(ctx context.Context, id string, d notification.Delivery) (*notification.Notification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the aggregate row first. Concurrent sibling-channel updates
	// serialize here, so the status recomputation below always sees the
	// other side's committed delivery write and the last writer derives
	// the status from the complete set.
	var locked string
	if err := tx.QueryRow(ctx,
		`SELECT id FROM notifications WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE deliveries SET
			status = $3, attempt_count = $4, sent_at = $5, delivered_at = $6,
			failure_at = $7, next_retry_at = $8, error_code = $9,
			error_message = $10, provider_message_id = $11
		WHERE notification_id = $1 AND channel = $2`,
		id, d.Channel, d.Status, d.AttemptCount, d.SentAt, d.DeliveredAt,
		d.FailureAt, d.NextRetryAt, d.ErrorCode, d.ErrorMessage, d.ProviderMessageID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrDeliveryNotFound
	}

	n, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	n.RecomputeStatus()

	if _, err := tx.Exec(ctx,
		`UPDATE notifications SET status = $2, updated_at = now() WHERE id = $1`,
		id, n.Status); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *PostgresStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// GetPreferences implements PreferencesStorage.
func (s *PostgresStorage) GetPreferences(ctx context.Context, userID string) (policy.Preferences, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT preferences FROM user_preferences WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy.DefaultPreferences(), nil
		}
		return policy.Preferences{}, err
	}

	var prefs policy.Preferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return policy.Preferences{}, fmt.Errorf("unmarshal preferences: %w", err)
	}
	return prefs, nil
}

// UpdatePreferences implements PreferencesStorage with shallow-merge
// semantics applied in application code, then persisted whole.
func (s *PostgresStorage) UpdatePreferences(ctx context.Context, userID string, patch policy.PreferencesPatch) (policy.Preferences, error) {
	current, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return policy.Preferences{}, err
	}
	updated := current.Apply(patch)

	raw, err := json.Marshal(updated)
	if err != nil {
		return policy.Preferences{}, fmt.Errorf("marshal preferences: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, preferences, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET preferences = $2, updated_at = now()`,
		userID, raw)
	if err != nil {
		return policy.Preferences{}, err
	}
	return updated, nil
}
