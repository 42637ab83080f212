package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/letsssgooo/quizResults/internal/domain/models"
	"github.com/tilinna/clock"
)

type resultKey struct {
	userID, testID int64
}

type identity struct {
	firstName, lastName string
}

// MemoryStorage реализует ResultRepository в памяти.
type MemoryStorage struct {
	results map[resultKey]models.TestResult
	users   map[int64]identity
	mu      sync.RWMutex
}

// NewMemoryStorage создаёт новый MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		results: make(map[resultKey]models.TestResult),
		users:   make(map[int64]identity),
	}
}

// SetUser сохраняет имя и фамилию пользователя для таблицы лидеров.
func (s *MemoryStorage) SetUser(userID int64, firstName, lastName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = identity{firstName: firstName, lastName: lastName}
}

// FindLatest возвращает результат по ключу (userID, testID).
func (s *MemoryStorage) FindLatest(_ context.Context, userID, testID int64) (*models.TestResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[resultKey{userID: userID, testID: testID}]
	if !ok {
		return nil, nil
	}

	return &result, nil
}

// Upsert сохраняет результат.
func (s *MemoryStorage) Upsert(_ context.Context, userID, testID int64, score int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[resultKey{userID: userID, testID: testID}] = models.TestResult{
		UserID:    userID,
		TestID:    testID,
		Score:     score,
		Timestamp: now,
	}

	return nil
}

// ListByUser возвращает результаты пользователя, отсортированные по test_id.
func (s *MemoryStorage) ListByUser(_ context.Context, userID int64) ([]models.UserTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tests := make([]models.UserTest, 0)
	for key, result := range s.results {
		if key.userID != userID {
			continue
		}

		tests = append(tests, models.UserTest{ID: key.testID, Score: result.Score, Time: result.Timestamp})
	}

	sort.Slice(tests, func(i, j int) bool {
		return tests[i].ID < tests[j].ID
	})

	return tests, nil
}

// CountByUser возвращает количество результатов пользователя.
func (s *MemoryStorage) CountByUser(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.results {
		if key.userID == userID {
			count++
		}
	}

	return count, nil
}

// TopUsers возвращает пользователей с наибольшей суммой баллов.
func (s *MemoryStorage) TopUsers(_ context.Context, limit int) ([]models.TopUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[int64]int64)
	for key, result := range s.results {
		sums[key.userID] += int64(result.Score)
	}

	top := make([]models.TopUser, 0, len(sums))
	for userID, sum := range sums {
		entry := models.TopUser{UserID: userID, Score: sum}
		if user, ok := s.users[userID]; ok {
			entry.FirstName = &user.firstName
			entry.LastName = &user.lastName
		}

		top = append(top, entry)
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].Score != top[j].Score {
			return top[i].Score > top[j].Score
		}

		return top[i].UserID < top[j].UserID
	})

	if len(top) > limit {
		top = top[:limit]
	}

	return top, nil
}

// Leaderboard возвращает лучшие отдельные результаты.
// При равном score выше тот, кто получил его раньше.
func (s *MemoryStorage) Leaderboard(_ context.Context, limit int) ([]models.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]models.TestResult, 0, len(s.results))
	for _, result := range s.results {
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		if !results[i].Timestamp.Equal(results[j].Timestamp) {
			return results[i].Timestamp.Before(results[j].Timestamp)
		}

		return results[i].UserID < results[j].UserID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	board := make([]models.LeaderboardEntry, 0, len(results))
	for _, result := range results {
		user := s.users[result.UserID]
		board = append(board, models.LeaderboardEntry{
			UserID:    result.UserID,
			FirstName: user.firstName,
			LastName:  user.lastName,
			Score:     result.Score,
		})
	}

	return board, nil
}

// MemoryKVOpts содержит необязательные параметры MemoryKV.
// nil равнозначен нулевому значению.
type MemoryKVOpts struct {
	// Clock управляет временем истечения записей.
	//
	// По умолчанию clock.Realtime().
	Clock clock.Clock
}

func (o *MemoryKVOpts) withDefaults() *MemoryKVOpts {
	if o == nil {
		o = new(MemoryKVOpts)
	}

	if o.Clock == nil {
		o.Clock = clock.Realtime()
	}

	return o
}

type kvEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV реализует KV и Locker в памяти одного процесса.
type MemoryKV struct {
	opts    *MemoryKVOpts
	entries map[string]kvEntry
	mu      sync.Mutex
}

// NewMemoryKV создаёт новый MemoryKV.
func NewMemoryKV(opts *MemoryKVOpts) *MemoryKV {
	return &MemoryKV{
		opts:    opts.withDefaults(),
		entries: make(map[string]kvEntry),
	}
}

// lookup возвращает живую запись, удаляя истёкшую. Вызывается под mu.
func (kv *MemoryKV) lookup(key string) (kvEntry, bool) {
	entry, ok := kv.entries[key]
	if !ok {
		return kvEntry{}, false
	}

	if !kv.opts.Clock.Now().Before(entry.expiresAt) {
		delete(kv.entries, key)
		return kvEntry{}, false
	}

	return entry, true
}

// Get возвращает копию значения по ключу.
func (kv *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	entry, ok := kv.lookup(key)
	if !ok {
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)

	return value, true, nil
}

// Set записывает значение со временем жизни ttl.
func (kv *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	kv.mu.Lock()
	defer kv.mu.Unlock()

	kv.entries[key] = kvEntry{value: stored, expiresAt: kv.opts.Clock.Now().Add(ttl)}

	return nil
}

// Delete удаляет ключ.
func (kv *MemoryKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	delete(kv.entries, key)

	return nil
}

// Acquire занимает ключ, если он свободен или истёк.
func (kv *MemoryKV) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, ok := kv.lookup(key); ok {
		return "", false, nil
	}

	token := uuid.NewString()
	kv.entries[key] = kvEntry{value: []byte(token), expiresAt: kv.opts.Clock.Now().Add(ttl)}

	return token, true, nil
}

// Release удаляет ключ, только если он занят тем же токеном.
func (kv *MemoryKV) Release(_ context.Context, key, token string) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	entry, ok := kv.lookup(key)
	if !ok || string(entry.value) != token {
		return false, nil
	}

	delete(kv.entries, key)

	return true, nil
}
