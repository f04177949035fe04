package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

// PostgresStore persists completed aggregation runs so merged leaderboards
// can be inspected after the fact.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// SaveSnapshot stores one aggregation run and its records in a single
// transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, sourceURL string, filter *domain.FilterState, records []domain.Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	filterType, filterValue := "", ""
	if filter != nil {
		filterType, filterValue = filter.FilterType, filter.FilterValue
	}

	var snapshotID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO leaderboard_snapshots (source_url, filter_type, filter_value, record_count, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id`,
		sourceURL, filterType, filterValue, len(records),
	).Scan(&snapshotID)
	if err != nil {
		return err
	}

	if len(records) > 0 {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(
				`INSERT INTO leaderboard_entries
				   (snapshot_id, rank, name, ride_date, speed, heart_rate, avg_climbing_speed, power, elapsed, elapsed_seconds)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				snapshotID, rec.Rank, rec.Name, rec.Date, rec.Speed,
				rec.HeartRate, rec.AverageClimbingSpeed, rec.Power,
				rec.Time, rec.TimeInSeconds)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
