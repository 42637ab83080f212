package client

import (
	"context"
	"fmt"
	"time"

	"github.com/letsssgooo/quizResults/internal/auth"
	"github.com/letsssgooo/quizResults/internal/domain/models"
)

// SubmitRequest представляет заявку на сохранение результата.
type SubmitRequest struct {
	UserID         int64
	TestID         int64
	Score          int
	TotalQuestions int

	// Launch содержит параметры запуска мини-приложения (vk_platform, vk_ts и т.д.).
	// Они передаются как есть и не входят в подпись.
	Launch map[string]interface{}
}

// APIError представляет ответ сервиса с ошибкой.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client api error: %d %s", e.StatusCode, e.Message)
}

// Signer подписывает параметры заявки.
type Signer interface {
	Sign(params auth.Params) string
}

// Client определяет интерфейс клиента сервиса результатов.
type Client interface {
	// SaveTestResult подписывает и отправляет результат теста.
	SaveTestResult(ctx context.Context, req SubmitRequest) error

	// Tests возвращает результаты пользователя.
	Tests(ctx context.Context, userID int64) ([]models.UserTest, error)

	// TestsCount возвращает количество пройденных пользователем тестов.
	TestsCount(ctx context.Context, userID int64) (int, error)

	// TopUsers возвращает рейтинг пользователей по сумме баллов.
	TopUsers(ctx context.Context) ([]models.TopUser, error)

	// Leaderboard возвращает таблицу лидеров.
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
}

// Таймауты
const (
	timeoutSend = 5 * time.Second
	timeoutRead = 10 * time.Second
)
