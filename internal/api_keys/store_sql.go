package api_keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/db"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
)

type SQLStore struct {
	db     *db.DB
	logger *logger.Logger
}

var _ MetadataStore = (*SQLStore)(nil)

const keyColumns = `id, owner, name, COALESCE(description, ''), start, hash, enabled,
	created_at, updated_at, expires_at, remaining_credits, refill_amount, refilled_at`

// NewSQLStore creates the api_keys table if needed and returns a store on top of database.
func NewSQLStore(ctx context.Context, log *logger.Logger, database *db.DB) (*SQLStore, error) {
	if log == nil {
		log = logger.Production()
	}
	s := &SQLStore{db: database, logger: log}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	// Timestamps are RFC3339 UTC text so both dialects compare them the same way.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		start TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		expires_at TEXT,
		remaining_credits BIGINT,
		refill_amount BIGINT,
		refilled_at TEXT
	)`

	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner)`); err != nil {
		return fmt.Errorf("failed to create owner index: %w", err)
	}

	return nil
}

func (s *SQLStore) placeholder(index int) string {
	return s.db.Placeholder(index)
}

func (s *SQLStore) Add(ctx context.Context, key *APIKey) error {
	if strings.TrimSpace(key.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(key.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(key.Owner) == "" {
		return ErrEmptyOwner
	}

	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	if key.UpdatedAt.IsZero() {
		key.UpdatedAt = key.CreatedAt
	}

	remaining, refill, refilledAt := creditColumns(key.Credits)

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	INSERT INTO api_keys (id, owner, name, description, start, hash, enabled,
		created_at, updated_at, expires_at, remaining_credits, refill_amount, refilled_at)
	VALUES (%s)
	`, s.db.Placeholders(13))

	_, err := s.db.ExecContext(ctx, query,
		key.ID, key.Owner, strings.TrimSpace(key.Name), strings.TrimSpace(key.Description),
		key.Start, key.Hash, boolToInt(key.Enabled),
		formatTime(key.CreatedAt), formatTime(key.UpdatedAt), formatTimePtr(key.ExpiresAt),
		remaining, refill, refilledAt)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, owner, id string) (*APIKey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE owner = %s AND id = %s`,
		keyColumns, s.placeholder(1), s.placeholder(2))
	return scanKey(s.db.QueryRowContext(ctx, query, owner, id))
}

func (s *SQLStore) Lookup(ctx context.Context, id string) (*APIKey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE id = %s`, keyColumns, s.placeholder(1))
	return scanKey(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) FindByHash(ctx context.Context, hash string) (*APIKey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE hash = %s`, keyColumns, s.placeholder(1))
	return scanKey(s.db.QueryRowContext(ctx, query, hash))
}

func (s *SQLStore) List(ctx context.Context, owner string) ([]APIKey, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`SELECT %s FROM api_keys WHERE owner = %s ORDER BY created_at DESC, id`,
		keyColumns, s.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	keys := []APIKey{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *SQLStore) Update(ctx context.Context, key *APIKey) error {
	if strings.TrimSpace(key.Name) == "" {
		return ErrEmptyName
	}
	key.UpdatedAt = time.Now().UTC()
	remaining, refill, refilledAt := creditColumns(key.Credits)

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE api_keys SET name = %s, description = %s, enabled = %s, expires_at = %s,
		remaining_credits = %s, refill_amount = %s, refilled_at = %s, updated_at = %s
	WHERE owner = %s AND id = %s
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10))

	result, err := s.db.ExecContext(ctx, query,
		strings.TrimSpace(key.Name), strings.TrimSpace(key.Description), boolToInt(key.Enabled),
		formatTimePtr(key.ExpiresAt), remaining, refill, refilledAt, formatTime(key.UpdatedAt),
		key.Owner, key.ID)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	return expectAffected(result)
}

func (s *SQLStore) Delete(ctx context.Context, owner, id string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`DELETE FROM api_keys WHERE owner = %s AND id = %s`, s.placeholder(1), s.placeholder(2))
	result, err := s.db.ExecContext(ctx, query, owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return expectAffected(result)
}

func (s *SQLStore) ConsumeCredit(ctx context.Context, id string) error {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE api_keys SET remaining_credits = remaining_credits - 1
	WHERE id = %s AND remaining_credits IS NOT NULL AND remaining_credits > 0
	`, s.placeholder(1))

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to consume credit: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		return nil
	}

	// Nothing decremented: the key is unknown, unlimited or exhausted.
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	check := fmt.Sprintf(`SELECT remaining_credits FROM api_keys WHERE id = %s`, s.placeholder(1))
	var remaining sql.NullInt64
	if err := s.db.QueryRowContext(ctx, check, id).Scan(&remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("failed to read remaining credits: %w", err)
	}
	if !remaining.Valid {
		return nil
	}
	return ErrNoCredits
}

func (s *SQLStore) RefillCredits(ctx context.Context, cutoff, now time.Time) (int64, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	UPDATE api_keys SET remaining_credits = refill_amount, refilled_at = %s
	WHERE refill_amount IS NOT NULL AND refill_amount > 0
		AND (refilled_at IS NULL OR refilled_at <= %s)
	`, s.placeholder(1), s.placeholder(2))

	result, err := s.db.ExecContext(ctx, query, formatTime(now), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to refill credits: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info("Refilled api key credits", "keys", rows)
	}
	return rows, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var (
		k                       APIKey
		enabled                 int64
		createdStr, updatedStr  string
		expiresStr, refilledStr sql.NullString
		remaining, refill       sql.NullInt64
	)
	err := row.Scan(&k.ID, &k.Owner, &k.Name, &k.Description, &k.Start, &k.Hash, &enabled,
		&createdStr, &updatedStr, &expiresStr, &remaining, &refill, &refilledStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	k.Enabled = enabled != 0
	k.CreatedAt = parseTime(createdStr)
	k.UpdatedAt = parseTime(updatedStr)
	if expiresStr.Valid {
		t := parseTime(expiresStr.String)
		k.ExpiresAt = &t
	}
	if remaining.Valid {
		k.Credits = &Credits{Remaining: remaining.Int64}
		if refill.Valid {
			k.Credits.RefillAmount = refill.Int64
		}
		if refilledStr.Valid {
			t := parseTime(refilledStr.String)
			k.Credits.RefilledAt = &t
		}
	}
	return &k, nil
}

func creditColumns(c *Credits) (remaining, refill, refilledAt any) {
	if c == nil {
		return nil, nil, nil
	}
	remaining = c.Remaining
	if c.RefillAmount > 0 {
		refill = c.RefillAmount
	}
	refilledAt = formatTimePtr(c.RefilledAt)
	return remaining, refill, refilledAt
}

func expectAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// parseTime returns the zero time for unreadable values.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
