package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SequenceRepository hands out increasing event sequence numbers per partition key.
type SequenceRepository interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

// SQLSequences keeps one counter row per partition key in event_sequences.
type SQLSequences struct {
	db *sql.DB
}

func NewSequenceRepository(db *sql.DB) *SQLSequences {
	return &SQLSequences{db: db}
}

var errEmptyPartitionKey = errors.New("partition key is required")

// The upsert is a single statement, so the row lock it takes serializes
// concurrent callers for the same key without an explicit transaction.
const nextSequenceQuery = `
INSERT INTO event_sequences AS s (partition_key, last_sequence, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (partition_key) DO UPDATE
SET last_sequence = s.last_sequence + 1,
    updated_at = now()
RETURNING last_sequence`

func (r *SQLSequences) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, errEmptyPartitionKey
	}

	var next int64
	if err := r.db.QueryRowContext(ctx, nextSequenceQuery, partitionKey).Scan(&next); err != nil {
		return 0, fmt.Errorf("increment sequence for %s: %w", partitionKey, err)
	}
	return next, nil
}
