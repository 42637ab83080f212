package storage

import (
	"context"
	"time"

	"github.com/letsssgooo/quizResults/internal/domain/models"
)

// ResultRepository определяет интерфейс для хранения результатов тестов.
type ResultRepository interface {
	// FindLatest возвращает результат пары (userID, testID) или nil, если его нет.
	FindLatest(ctx context.Context, userID, testID int64) (*models.TestResult, error)

	// Upsert создаёт результат или обновляет score и timestamp существующего.
	Upsert(ctx context.Context, userID, testID int64, score int, now time.Time) error

	// ListByUser возвращает все результаты пользователя.
	ListByUser(ctx context.Context, userID int64) ([]models.UserTest, error)

	// CountByUser возвращает количество пройденных пользователем тестов.
	CountByUser(ctx context.Context, userID int64) (int, error)

	// TopUsers возвращает limit пользователей с наибольшей суммой баллов.
	TopUsers(ctx context.Context, limit int) ([]models.TopUser, error)

	// Leaderboard возвращает limit лучших отдельных результатов.
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// KV определяет хранилище ключ-значение с истекающими записями.
type KV interface {
	// Get возвращает значение и false, если ключа нет или он истёк.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set записывает значение со временем жизни ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ.
	Delete(ctx context.Context, key string) error
}

// Locker определяет распределённую блокировку на основе "создать, если нет" с TTL.
type Locker interface {
	// Acquire пытается занять ключ на ttl. Возвращает токен владельца
	// и false, если ключ уже занят.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)

	// Release освобождает ключ, только если он всё ещё принадлежит token.
	Release(ctx context.Context, key, token string) (bool, error)
}
