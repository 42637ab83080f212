package models

import (
	"time"
)

// Файл с моделями, которые видны всем слоям сервиса.
// Хранилища заполняют их из БД, обработчики сериализуют их в ответы.

// TestResult определяет результат прохождения теста пользователем.
// Для пары (UserID, TestID) хранится не более одной записи.
type TestResult struct {
	UserID    int64
	TestID    int64
	Score     int
	Timestamp time.Time
}

// UserTest определяет запись в списке тестов пользователя.
type UserTest struct {
	ID    int64     `json:"id"`
	Score int       `json:"score"`
	Time  time.Time `json:"time"`
}

// LeaderboardEntry определяет запись таблицы лидеров (лучшие отдельные результаты).
type LeaderboardEntry struct {
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Score     int    `json:"score"`
}

// TopUser определяет запись рейтинга пользователей по сумме баллов.
type TopUser struct {
	UserID    int64   `json:"user_id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Avatar    *string `json:"avatar"`
	Score     int64   `json:"score"`
}
