package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/oroio/internal/models"
)

// PostgresHistoryRepository records usage snapshots in a PostgreSQL database.
type PostgresHistoryRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresHistoryRepository creates a new PostgresHistoryRepository using the provided *sql.DB.
// db must be a valid connection to a PostgreSQL instance with the usage_history schema applied.
func NewPostgresHistoryRepository(db *sql.DB) *PostgresHistoryRepository {
	return &PostgresHistoryRepository{DB: db}
}

// AppendSnapshots inserts all records of one refresh cycle within a transaction.
//
//	ctx:     context for cancellation and deadlines
//	records: rows to insert, usually one per key
//
// Returns an error if any insert or the commit fails.
func (r *PostgresHistoryRepository) AppendSnapshots(ctx context.Context, records []models.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO usage_history (cycle_id, fingerprint, position, balance, total, used, expires, raw, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, rec.CycleID, rec.Fingerprint, rec.Position,
			rec.Snapshot.BalanceNum, rec.Snapshot.Total, rec.Snapshot.Used,
			rec.Snapshot.Expires, rec.Snapshot.Raw, rec.FetchedAt)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListByFingerprint returns the newest records of one key, newest first.
//
//	ctx:         context for cancellation and deadlines
//	fingerprint: models.Fingerprint of the key
//	limit:       maximum number of rows
func (r *PostgresHistoryRepository) ListByFingerprint(ctx context.Context, fingerprint string, limit int) ([]models.HistoryRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT cycle_id, fingerprint, position, balance, total, used, expires, raw, fetched_at
		FROM usage_history WHERE fingerprint = $1 ORDER BY fetched_at DESC LIMIT $2
	`, fingerprint, limit)
	if err != nil {
		return nil, fmt.Errorf("ListByFingerprint: %w", err)
	}
	defer rows.Close()

	records := []models.HistoryRecord{}
	for rows.Next() {
		var rec models.HistoryRecord
		if err := rows.Scan(
			&rec.CycleID, &rec.Fingerprint, &rec.Position,
			&rec.Snapshot.BalanceNum, &rec.Snapshot.Total, &rec.Snapshot.Used,
			&rec.Snapshot.Expires, &rec.Snapshot.Raw, &rec.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec.Snapshot.Balance = rec.Snapshot.BalanceNum
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByFingerprint: %w", err)
	}
	return records, nil
}
