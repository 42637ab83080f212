package auth

import (
	"errors"
)

// Algorithm определяет функцию, которой считается подпись заявки.
type Algorithm string

// Алгоритмы подписи
const (
	// AlgorithmMD5 — md5 от канонической строки с приписанным в конец секретом.
	// Совместим с уже выпущенными клиентами.
	AlgorithmMD5 Algorithm = "md5"

	// AlgorithmHMACSHA256 — HMAC-SHA256 канонической строки с секретом в качестве ключа.
	AlgorithmHMACSHA256 Algorithm = "hmac-sha256"
)

// Ошибки авторизации
var (
	ErrValidation       = errors.New("validation error")
	ErrEmptySecret      = errors.New("signing secret must not be empty")
	ErrUnknownAlgorithm = errors.New("unknown signature algorithm")
)

// Params содержит подписываемые поля заявки в каноническом текстовом виде.
// Порядок полей в подписи фиксирован: user_id, test_id, score.
type Params struct {
	UserID string
	TestID string
	Score  string
}
