package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/letsssgooo/quizResults/internal/domain/models"
	"github.com/letsssgooo/quizResults/internal/submission"
)

// HeaderSignature — заголовок с подписью заявки.
const HeaderSignature = "X-Signature"

// maxBodyBytes ограничивает размер тела заявки.
const maxBodyBytes = 64 << 10

// Таймауты
const (
	timeoutReadHeader = 5 * time.Second
	timeoutRead       = 15 * time.Second
	timeoutWrite      = 30 * time.Second
	timeoutShutdown   = 10 * time.Second
	timeoutReady      = 2 * time.Second
)

// Submitter обрабатывает заявки на сохранение результата.
type Submitter interface {
	Submit(ctx context.Context, s submission.Submission) error
}

// ResultReader отдаёт результаты пользователя.
type ResultReader interface {
	ListByUser(ctx context.Context, userID int64) ([]models.UserTest, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// Source отдаёт закэшированное представление.
type Source[T any] interface {
	Get(ctx context.Context) (T, error)
}

// ErrorRecorder принимает необработанные ошибки для журнала.
type ErrorRecorder interface {
	Record(message string, err error, attrs ...slog.Attr)
}

// SubmissionObserver получает исходы обработки заявок.
type SubmissionObserver interface {
	ObserveSubmission(outcome string)
}

// ReadyFunc проверяет доступность хранилищ.
type ReadyFunc func(ctx context.Context) error

// Deps содержит зависимости Handler. Errors, Metrics и Ready необязательны.
type Deps struct {
	Gate        Submitter
	Results     ResultReader
	Leaderboard Source[[]models.LeaderboardEntry]
	TopUsers    Source[[]models.TopUser]
	Errors      ErrorRecorder
	Metrics     SubmissionObserver
	Ready       ReadyFunc
	Log         *slog.Logger
}

// RouterOptions настраивает middleware и служебные маршруты.
type RouterOptions struct {
	CORSOrigins []string

	// MetricsHandler, если задан, доступен по /metrics.
	MetricsHandler http.Handler
}

// Исходы заявки для метрик
const (
	outcomeAccepted         = "accepted"
	outcomeMalformed        = "malformed"
	outcomeBusy             = "busy"
	outcomeInvalidSignature = "invalid_signature"
	outcomeUserMismatch     = "user_mismatch"
	outcomeInvalidFormat    = "invalid_format"
	outcomeInvalidScore     = "invalid_score"
	outcomeTooSoon          = "too_soon"
	outcomeError            = "error"
)

// Сообщения ответов
const (
	msgInvalidSignature = "Invalid signature"
	msgUserMismatch     = "User ID mismatch"
	msgInvalidFormat    = "Invalid data format"
	msgInvalidScore     = "Invalid score value"
	msgBusy             = "Operation is currently in progress."
	msgTooSoon          = "Submission too soon. Please wait longer."
	msgSaveFailed       = "An error occurred while saving test result"
	msgInvalidUserID    = "Invalid user_id"
	msgTestsFailed      = "An error occurred while fetching tests with user results"
	msgCountFailed      = "An error occurred while fetching user tests count"
	msgTopUsersMiss     = "Cache miss, please try again"
	msgTopUsersFailed   = "An error occurred while fetching top users data"
	msgLeaderboardFail  = "An error occurred while fetching leaderboard"
	msgNotReady         = "Service is not ready"
	msgInternal         = "Internal server error"
)

// rejection сопоставляет ошибку заявки с ответом.
type rejection struct {
	err     error
	status  int
	message string
	outcome string
}

var rejections = []rejection{
	{err: submission.ErrBusy, status: http.StatusTooManyRequests, message: msgBusy, outcome: outcomeBusy},
	{err: submission.ErrInvalidSignature, status: http.StatusBadRequest, message: msgInvalidSignature, outcome: outcomeInvalidSignature},
	{err: submission.ErrUserMismatch, status: http.StatusBadRequest, message: msgUserMismatch, outcome: outcomeUserMismatch},
	{err: submission.ErrInvalidFormat, status: http.StatusBadRequest, message: msgInvalidFormat, outcome: outcomeInvalidFormat},
	{err: submission.ErrInvalidScore, status: http.StatusBadRequest, message: msgInvalidScore, outcome: outcomeInvalidScore},
	{err: submission.ErrTooSoon, status: http.StatusTooManyRequests, message: msgTooSoon, outcome: outcomeTooSoon},
	{err: submission.ErrMalformed, status: http.StatusBadRequest, message: msgInvalidFormat, outcome: outcomeMalformed},
}

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse — тело ответа на принятую заявку.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// CountResponse — тело ответа /api/user-tests-count.
type CountResponse struct {
	TestsCount int `json:"tests_count"`
}
