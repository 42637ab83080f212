// Package cache хранит агрегаты (таблицу лидеров, топ пользователей) в KV с TTL.
//
// Каждое представление описывается политикой Policy:
//   - TTL — сколько запись считается актуальной;
//   - Mode — кто заполняет запись: фоновый Refresher (ModePush) или сам запрос при промахе (ModeLazy);
//   - Miss — что делать при промахе: пересчитать (MissRecompute) или вернуть ErrNotReady (MissUnavailable).
//
// Устаревание ограничено TTL, явной инвалидации нет. Конкурентные записи
// разрешаются по принципу "последний победил".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/letsssgooo/quizResults/internal/storage"
	"golang.org/x/sync/singleflight"
)

// Mode — способ заполнения записи.
type Mode string

const (
	ModeLazy Mode = "lazy"
	ModePush Mode = "push"
)

// MissBehavior — поведение чтения при промахе.
type MissBehavior string

const (
	MissRecompute   MissBehavior = "recompute"
	MissUnavailable MissBehavior = "unavailable"
)

// Policy описывает политику кэширования одного представления.
type Policy struct {
	TTL  time.Duration
	Mode Mode
	Miss MissBehavior
}

// timeoutCompute ограничивает общий пересчёт при промахе. Он не зависит
// от отмены запроса, который его запустил.
const timeoutCompute = 10 * time.Second

// ErrNotReady возвращается при промахе представления с MissUnavailable.
var ErrNotReady = errors.New("cache entry is not ready")

// Результаты обращения к кэшу для Observer.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultError    = "error"
	ResultRefresh  = "refresh"
	ResultNotReady = "not_ready"
)

// Observer получает результаты обращений к представлениям.
type Observer interface {
	ObserveCache(key, result string)
}

// ComputeFunc считает значение представления по основному хранилищу.
type ComputeFunc[T any] func(ctx context.Context) (T, error)

// View — закэшированное представление со своей политикой.
type View[T any] struct {
	key      string
	policy   Policy
	kv       storage.KV
	compute  ComputeFunc[T]
	group    singleflight.Group
	log      *slog.Logger
	observer Observer
}

// ViewOption настраивает View.
type ViewOption func(*viewOptions)

type viewOptions struct {
	log      *slog.Logger
	observer Observer
}

// WithLogger задаёт логгер представления.
func WithLogger(log *slog.Logger) ViewOption {
	return func(o *viewOptions) {
		o.log = log
	}
}

// WithObserver задаёт получателя метрик.
func WithObserver(observer Observer) ViewOption {
	return func(o *viewOptions) {
		o.observer = observer
	}
}

// NewView создаёт представление с ключом key.
func NewView[T any](key string, policy Policy, kv storage.KV, compute ComputeFunc[T], opts ...ViewOption) *View[T] {
	o := viewOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	return &View[T]{
		key:      key,
		policy:   policy,
		kv:       kv,
		compute:  compute,
		log:      o.log.With(slog.String("cache_key", key)),
		observer: o.observer,
	}
}

// Key возвращает ключ записи в KV.
func (v *View[T]) Key() string {
	return v.key
}

// Policy возвращает политику представления.
func (v *View[T]) Policy() Policy {
	return v.policy
}

// Get возвращает значение из кэша. При промахе действует согласно Policy.Miss.
func (v *View[T]) Get(ctx context.Context) (T, error) {
	var zero T

	data, ok, err := v.kv.Get(ctx, v.key)
	if err != nil {
		v.observe(ResultError)
		return zero, fmt.Errorf("read cache %s: %w", v.key, err)
	}

	if ok {
		var value T
		if err = json.Unmarshal(data, &value); err == nil {
			v.observe(ResultHit)
			return value, nil
		}

		v.log.Warn("dropping undecodable cache entry", slog.Any("error", err))
	}

	if v.policy.Miss == MissUnavailable {
		v.observe(ResultNotReady)
		return zero, ErrNotReady
	}

	v.observe(ResultMiss)

	// Параллельные промахи одного процесса ждут одного пересчёта.
	shared, err, _ := v.group.Do(v.key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeoutCompute)
		defer cancel()

		return v.populate(ctx)
	})
	if err != nil {
		return zero, err
	}

	return shared.(T), nil
}

// Refresh пересчитывает значение и публикует его в кэш.
func (v *View[T]) Refresh(ctx context.Context) error {
	_, err := v.populate(ctx)
	if err == nil {
		v.observe(ResultRefresh)
	}

	return err
}

func (v *View[T]) populate(ctx context.Context) (T, error) {
	var zero T

	value, err := v.compute(ctx)
	if err != nil {
		return zero, fmt.Errorf("compute %s: %w", v.key, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("encode %s: %w", v.key, err)
	}

	if err = v.kv.Set(ctx, v.key, data, v.policy.TTL); err != nil {
		return zero, fmt.Errorf("publish %s: %w", v.key, err)
	}

	return value, nil
}

func (v *View[T]) observe(result string) {
	if v.observer != nil {
		v.observer.ObserveCache(v.key, result)
	}
}
