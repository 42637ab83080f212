package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Submission — заявка на сохранение результата в том виде, в каком её прислал клиент.
// Числовые поля хранятся сырыми: подпись считается по их исходному тексту,
// а проверка типов выполняется уже под блокировкой.
type Submission struct {
	UserID         json.RawMessage
	TestID         json.RawMessage
	Score          json.RawMessage
	TotalQuestions json.RawMessage
	VKUserID       json.RawMessage

	// Launch содержит остальные поля (параметры запуска VK Mini App). Они не подписаны.
	Launch map[string]json.RawMessage

	// Signature — значение заголовка X-Signature.
	Signature string
}

// Поля тела запроса
const (
	fieldUserID         = "user_id"
	fieldTestID         = "test_id"
	fieldScore          = "score"
	fieldTotalQuestions = "totalQuestions"
	fieldVKUserID       = "vk_user_id"
)

// Config содержит параметры SubmissionGate.
type Config struct {
	// LockTTL ограничивает время жизни блокировки упавшего обработчика.
	LockTTL time.Duration

	// ThrottleWindow — минимальный интервал между принятыми заявками одного ключа.
	ThrottleWindow time.Duration
}

// Значения по умолчанию
const (
	DefaultLockTTL        = 30 * time.Second
	DefaultThrottleWindow = 15 * time.Second
)

// Ошибки обработки заявки
var (
	ErrMalformed        = errors.New("malformed submission body")
	ErrBusy             = errors.New("submission for this key is in progress")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUserMismatch     = errors.New("user_id does not match vk_user_id")
	ErrInvalidFormat    = errors.New("invalid data format")
	ErrInvalidScore     = errors.New("score is out of range")
	ErrTooSoon          = errors.New("submission too soon")
)

// Decode разбирает JSON-тело заявки.
func Decode(body []byte, signature string) (Submission, error) {
	var fields map[string]json.RawMessage

	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&fields); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if fields == nil {
		return Submission{}, fmt.Errorf("%w: body must be a JSON object", ErrMalformed)
	}

	s := Submission{
		UserID:         fields[fieldUserID],
		TestID:         fields[fieldTestID],
		Score:          fields[fieldScore],
		TotalQuestions: fields[fieldTotalQuestions],
		VKUserID:       fields[fieldVKUserID],
		Launch:         make(map[string]json.RawMessage),
		Signature:      signature,
	}

	for name, value := range fields {
		switch name {
		case fieldUserID, fieldTestID, fieldScore, fieldTotalQuestions, fieldVKUserID:
		default:
			s.Launch[name] = value
		}
	}

	return s, nil
}

// accepted — заявка после проверки типов и диапазона.
type accepted struct {
	userID int64
	testID int64
	score  int
}
