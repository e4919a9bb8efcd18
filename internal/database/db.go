package database

import (
	"context"
	"errors"
	"fmt"

	"homework-bot/internal/config"
	"homework-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNoStatusEvents = errors.New("no status events recorded")
)

type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to database at %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{
			Host: cfg.Host,
			Port: cfg.Port,
			Err:  err,
		}
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, &ConnectionError{
			Host: cfg.Host,
			Port: cfg.Port,
			Err:  err,
		}
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// StatusRepository journals delivered status change notifications.
type StatusRepository struct {
	db *DB
}

func NewStatusRepository(db *DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// Record stores a status event. Redelivered events hit the unique
// constraint and are treated as already recorded.
func (r *StatusRepository) Record(ctx context.Context, rec *models.StatusRecord) error {
	query := `
		INSERT INTO status_events (homework_name, status, message, changed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (homework_name, status, changed_at) DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		rec.HomeworkName, rec.Status, rec.Message, rec.ChangedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

// noRows converts the driver's empty-result error into the domain sentinel.
func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoStatusEvents
	}
	return err
}

func (r *StatusRepository) Latest(ctx context.Context) (*models.StatusRecord, error) {
	query := `
		SELECT id, homework_name, status, message, changed_at, created_at
		FROM status_events
		ORDER BY changed_at DESC, id DESC
		LIMIT 1
	`
	var rec models.StatusRecord
	err := r.db.Pool.QueryRow(ctx, query).Scan(
		&rec.ID, &rec.HomeworkName, &rec.Status,
		&rec.Message, &rec.ChangedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, noRows(err)
	}
	return &rec, nil
}

func (r *StatusRepository) Recent(ctx context.Context, limit int) ([]models.StatusRecord, error) {
	query := `
		SELECT id, homework_name, status, message, changed_at, created_at
		FROM status_events
		ORDER BY changed_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.StatusRecord
	for rows.Next() {
		var rec models.StatusRecord
		if err := rows.Scan(
			&rec.ID, &rec.HomeworkName, &rec.Status,
			&rec.Message, &rec.ChangedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *StatusRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM status_events").Scan(&count)
	return count, err
}
