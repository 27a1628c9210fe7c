package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const maxSerializationRetries = 3

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}

const selectClients = `SELECT id, name, description, status, priority FROM clients`

func (s *SQLStore) ListClients(ctx context.Context) ([]Client, error) {
	return s.queryClients(ctx, s.db, selectClients+` ORDER BY id ASC`)
}

func (s *SQLStore) ListClientsByStatus(ctx context.Context, status Status) ([]Client, error) {
	return s.queryClients(ctx, s.db, selectClients+` WHERE status=? ORDER BY id ASC`, string(status))
}

func (s *SQLStore) GetClient(ctx context.Context, id int64) (Client, error) {
	var item Client
	err := s.db.QueryRowContext(ctx, rebind(s.dialect, selectClients+` WHERE id=?`), id).
		Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, ErrNotFound
	}
	if err != nil {
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	return item, nil
}

// SearchClients matches text case-insensitively against name and description.
// An empty status searches every lane.
func (s *SQLStore) SearchClients(ctx context.Context, text string, status Status, limit int) ([]Client, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Client{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(text)) + "%"
	query := selectClients + ` WHERE (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern}
	if status != "" {
		query += ` AND status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY status ASC, priority ASC, id ASC LIMIT ?`
	args = append(args, limit)
	return s.queryClients(ctx, s.db, query, args...)
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count clients: %w", err)
	}
	return count, nil
}

// UpdateClients runs fn against the current client set inside one transaction
// and applies the updates it returns in order. The refreshed set is read back
// before commit so callers never see a half-applied batch.
func (s *SQLStore) UpdateClients(ctx context.Context, fn func([]Client) ([]ClientUpdate, error)) ([]Client, error) {
	attempts := 1
	if s.dialect == DialectPostgres {
		attempts = maxSerializationRetries
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		var clients []Client
		clients, err = s.updateClientsOnce(ctx, fn)
		if err == nil {
			return clients, nil
		}
		if !isSerializationFailure(err) {
			return nil, err
		}
	}
	return nil, err
}

func (s *SQLStore) updateClientsOnce(ctx context.Context, fn func([]Client) ([]ClientUpdate, error)) ([]Client, error) {
	var opts *sql.TxOptions
	if s.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := s.queryClients(ctx, tx, selectClients+` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}

	updates, err := fn(current)
	if err != nil {
		return nil, err
	}

	if len(updates) > 0 {
		stmt, err := tx.PrepareContext(ctx, rebind(s.dialect, `
			UPDATE clients SET status=?, priority=?, updated_at=CURRENT_TIMESTAMP
			WHERE id=?
		`))
		if err != nil {
			return nil, fmt.Errorf("prepare client update: %w", err)
		}
		defer stmt.Close()

		for _, update := range updates {
			result, err := stmt.ExecContext(ctx, string(update.Status), update.Priority, update.ID)
			if err != nil {
				return nil, fmt.Errorf("update client %d: %w", update.ID, err)
			}
			affected, err := result.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("update client %d: %w", update.ID, err)
			}
			if affected == 0 {
				return nil, fmt.Errorf("update client %d: %w", update.ID, ErrNotFound)
			}
		}
	}

	refreshed, err := s.queryClients(ctx, tx, selectClients+` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update tx: %w", err)
	}
	return refreshed, nil
}

// Ping verifies the database connection is alive
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) queryClients(ctx context.Context, q queryer, query string, args ...any) ([]Client, error) {
	rows, err := q.QueryContext(ctx, rebind(s.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		var item Client
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.Priority); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
