package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// CanonicalValue превращает сырое JSON-значение в текст для подписи:
// число пишется как есть, строка без кавычек, отсутствующее значение и null пустой строкой.
func CanonicalValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}

	return string(raw)
}

// ParseInteger валидирует, что raw является JSON-числом без дробной части и экспоненты.
// Принимается только каноническая запись (-0 отвергается), иначе ключ блокировки,
// построенный по тексту поля, разошёлся бы с ключом строки.
func ParseInteger(field string, raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("%w, missing field %s", ErrValidation, field)
	}

	if raw[0] == '"' {
		return 0, fmt.Errorf("%w, field %s must be a number", ErrValidation, field)
	}

	value, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w, field %s must be an integer", ErrValidation, field)
	}

	if strconv.FormatInt(value, 10) != string(raw) {
		return 0, fmt.Errorf("%w, field %s must be a canonical integer", ErrValidation, field)
	}

	return value, nil
}

// SameValue сообщает, совпадают ли два сырых значения с учётом типа (1 и "1" различны).
func SameValue(a, b json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
}
