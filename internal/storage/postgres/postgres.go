package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/letsssgooo/quizResults/internal/domain/models"
)

// Таймауты запросов
const (
	timeoutQuery   = 5 * time.Second
	timeoutMigrate = 30 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	avatar TEXT
);

CREATE TABLE IF NOT EXISTS test_results (
	user_id BIGINT NOT NULL,
	test_id BIGINT NOT NULL,
	score INTEGER NOT NULL CHECK (score >= 0),
	timestamp TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, test_id)
);

CREATE INDEX IF NOT EXISTS idx_test_results_score ON test_results (score DESC);
`

// Storage реализует storage.ResultRepository поверх PostgreSQL.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage подключается к базе по dsn и проверяет соединение.
func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// Migrate создаёт таблицы, если их ещё нет.
func (s *Storage) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutMigrate)
	defer cancel()

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping проверяет доступность базы.
func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	return s.pool.Ping(ctx)
}

// Close закрывает пул соединений.
func (s *Storage) Close() {
	s.pool.Close()
}

func (s *Storage) FindLatest(ctx context.Context, userID, testID int64) (*models.TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	query := `
	SELECT user_id, test_id, score, timestamp FROM test_results WHERE user_id = $1 AND test_id = $2
	`

	var result models.TestResult
	err := s.pool.QueryRow(ctx, query, userID, testID).Scan(
		&result.UserID, &result.TestID, &result.Score, &result.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find result %d/%d: %w", userID, testID, err)
	}

	return &result, nil
}

func (s *Storage) Upsert(ctx context.Context, userID, testID int64, score int, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	query := `
	INSERT INTO test_results (user_id, test_id, score, timestamp)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, test_id) DO UPDATE SET
		score = EXCLUDED.score,
		timestamp = EXCLUDED.timestamp
	`

	if _, err := s.pool.Exec(ctx, query, userID, testID, score, now); err != nil {
		return fmt.Errorf("upsert result %d/%d: %w", userID, testID, err)
	}

	return nil
}

func (s *Storage) ListByUser(ctx context.Context, userID int64) ([]models.UserTest, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	query := `
	SELECT test_id, score, timestamp FROM test_results WHERE user_id = $1 ORDER BY test_id
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list results of user %d: %w", userID, err)
	}
	defer rows.Close()

	tests := make([]models.UserTest, 0)
	for rows.Next() {
		var test models.UserTest
		if err = rows.Scan(&test.ID, &test.Score, &test.Time); err != nil {
			return nil, fmt.Errorf("scan result of user %d: %w", userID, err)
		}

		tests = append(tests, test)
	}

	return tests, rows.Err()
}

func (s *Storage) CountByUser(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM test_results WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count results of user %d: %w", userID, err)
	}

	return int(count), nil
}

func (s *Storage) TopUsers(ctx context.Context, limit int) ([]models.TopUser, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	query := `
	WITH user_scores AS (
		SELECT user_id, SUM(score) AS score
		FROM test_results
		GROUP BY user_id
	)
	SELECT us.user_id, u.first_name, u.last_name, u.avatar, us.score
	FROM user_scores us
	LEFT JOIN users u ON u.id = us.user_id
	ORDER BY us.score DESC, us.user_id
	LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query top users: %w", err)
	}
	defer rows.Close()

	top := make([]models.TopUser, 0, limit)
	for rows.Next() {
		var entry models.TopUser
		if err = rows.Scan(&entry.UserID, &entry.FirstName, &entry.LastName, &entry.Avatar, &entry.Score); err != nil {
			return nil, fmt.Errorf("scan top user: %w", err)
		}

		top = append(top, entry)
	}

	return top, rows.Err()
}

func (s *Storage) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	query := `
	SELECT r.user_id, COALESCE(u.first_name, ''), COALESCE(u.last_name, ''), r.score
	FROM test_results r
	LEFT JOIN users u ON u.id = r.user_id
	ORDER BY r.score DESC, r.timestamp, r.user_id
	LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	board := make([]models.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry models.LeaderboardEntry
		if err = rows.Scan(&entry.UserID, &entry.FirstName, &entry.LastName, &entry.Score); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}

		board = append(board, entry)
	}

	return board, rows.Err()
}

// SaveUser сохраняет данные пользователя, которые показываются в рейтингах.
func (s *Storage) SaveUser(ctx context.Context, userID int64, firstName, lastName string) error {
	ctx, cancel := context.WithTimeout(ctx, timeoutQuery)
	defer cancel()

	query := `
	INSERT INTO users (id, first_name, last_name) VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name
	`

	_, err := s.pool.Exec(ctx, query, userID, firstName, lastName)
	return err
}
