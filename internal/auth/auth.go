package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Verifier проверяет подписи заявок общим секретом.
type Verifier struct {
	algorithm Algorithm
	secrets   []string
}

// NewVerifier создаёт Verifier. Первый секрет считается текущим, остальные
// принимаются на время ротации.
func NewVerifier(algorithm Algorithm, secrets ...string) (*Verifier, error) {
	switch algorithm {
	case AlgorithmMD5, AlgorithmHMACSHA256:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algorithm)
	}

	if len(secrets) == 0 {
		return nil, ErrEmptySecret
	}

	for _, secret := range secrets {
		if secret == "" {
			return nil, ErrEmptySecret
		}
	}

	return &Verifier{
		algorithm: algorithm,
		secrets:   append([]string(nil), secrets...),
	}, nil
}

// Sign подписывает params текущим секретом.
func (v *Verifier) Sign(params Params) string {
	return Sign(v.algorithm, params, v.secrets[0])
}

// Verify сравнивает полученную подпись с ожидаемой для каждого секрета.
func (v *Verifier) Verify(params Params, received string) bool {
	received = strings.ToLower(strings.TrimSpace(received))
	if received == "" {
		return false
	}

	for _, secret := range v.secrets {
		expected := Sign(v.algorithm, params, secret)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1 {
			return true
		}
	}

	return false
}

// Sign возвращает hex-подпись params.
func Sign(algorithm Algorithm, params Params, secret string) string {
	canonical := CanonicalString(params)

	if algorithm == AlgorithmHMACSHA256 {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(canonical))
		return hex.EncodeToString(mac.Sum(nil))
	}

	sum := md5.Sum([]byte(canonical + secret))
	return hex.EncodeToString(sum[:])
}

// CanonicalString собирает строку user_id=<v>&test_id=<v>&score=<v>.
func CanonicalString(params Params) string {
	return "user_id=" + params.UserID + "&test_id=" + params.TestID + "&score=" + params.Score
}
