package verifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/db"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/keystatus-api/internal/status"
)

type SQLStore struct {
	db     *db.DB
	logger *logger.Logger
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates the key_verifications table if needed.
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
	// occurred_at is unix seconds so buckets are computed with integer division in both dialects.
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS key_verifications (
		key_id TEXT NOT NULL,
		outcome TEXT NOT NULL,
		occurred_at BIGINT NOT NULL
	)`

	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_key_verifications_key_time ON key_verifications(key_id, occurred_at)`); err != nil {
		return fmt.Errorf("failed to create key index: %w", err)
	}

	return nil
}

func (s *SQLStore) Record(ctx context.Context, keyID string, outcome Outcome, at time.Time) error {
	if strings.TrimSpace(keyID) == "" {
		return ErrEmptyKeyID
	}
	if _, ok := outcomes[outcome]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`INSERT INTO key_verifications (key_id, outcome, occurred_at) VALUES (%s)`,
		s.db.Placeholders(3))

	if _, err := s.db.ExecContext(ctx, query, keyID, string(outcome), at.UTC().Unix()); err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}

func (s *SQLStore) Buckets(ctx context.Context, keyID string, since, until time.Time, granularity time.Duration) ([]status.Bucket, error) {
	start, buckets, err := emptyBuckets(since, until, granularity)
	if err != nil || len(buckets) == 0 {
		return buckets, err
	}

	startUnix := start.Unix()
	width := int64(granularity / time.Second)

	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`
	SELECT (occurred_at - %[1]s) / %[2]s AS bucket,
		COUNT(*),
		CAST(SUM(CASE WHEN outcome NOT IN ('valid', 'rate_limited') THEN 1 ELSE 0 END) AS BIGINT),
		CAST(SUM(CASE WHEN outcome = 'rate_limited' THEN 1 ELSE 0 END) AS BIGINT)
	FROM key_verifications
	WHERE key_id = %[3]s AND occurred_at >= %[4]s AND occurred_at <= %[5]s
	GROUP BY bucket
	`, s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Placeholder(4), s.db.Placeholder(5))

	rows, err := s.db.QueryContext(ctx, query, startUnix, width, keyID, startUnix, until.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx, total, errCount, rateLimited int64
		if err := rows.Scan(&idx, &total, &errCount, &rateLimited); err != nil {
			return nil, fmt.Errorf("failed to scan verification bucket: %w", err)
		}
		if idx < 0 || idx >= int64(len(buckets)) {
			continue
		}
		buckets[idx].Total = total
		buckets[idx].Error = errCount
		buckets[idx].RateLimited = rateLimited
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *SQLStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	//nolint:gosec // G201: Safe - using placeholder indices, not user input
	query := fmt.Sprintf(`DELETE FROM key_verifications WHERE occurred_at < %s`, s.db.Placeholder(1))

	result, err := s.db.ExecContext(ctx, query, before.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune verifications: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info("Pruned verification events", "count", rows, "before", before.UTC().Format(time.RFC3339))
	}
	return rows, nil
}
