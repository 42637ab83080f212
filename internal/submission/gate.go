package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/letsssgooo/quizResults/internal/auth"
	"github.com/letsssgooo/quizResults/internal/storage"
	"github.com/tilinna/clock"
)

// timeoutRelease ограничивает снятие блокировки, которое выполняется
// даже после отмены контекста запроса.
const timeoutRelease = 3 * time.Second

// Verifier проверяет подпись заявки.
type Verifier interface {
	Verify(params auth.Params, received string) bool
}

// Gate сохраняет результаты под распределённой блокировкой ключа (user_id, test_id).
//
// Порядок шагов фиксирован: блокировка → подпись → валидация → throttle → upsert.
// Блокировка снимается на любом выходе после успешного захвата.
type Gate struct {
	repo     storage.ResultRepository
	locker   storage.Locker
	verifier Verifier
	clock    clock.Clock
	cfg      Config
	log      *slog.Logger
}

// NewGate создаёт Gate. Нулевые значения cfg заменяются значениями по умолчанию.
func NewGate(
	repo storage.ResultRepository,
	locker storage.Locker,
	verifier Verifier,
	clk clock.Clock,
	cfg Config,
	log *slog.Logger,
) *Gate {
	if clk == nil {
		clk = clock.Realtime()
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}

	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultThrottleWindow
	}

	return &Gate{
		repo:     repo,
		locker:   locker,
		verifier: verifier,
		clock:    clk,
		cfg:      cfg,
		log:      log,
	}
}

// LockKey возвращает ключ блокировки заявки: lock:result:{user_id}:{test_id}.
func LockKey(s Submission) string {
	return fmt.Sprintf("lock:result:%s:%s", auth.CanonicalValue(s.UserID), auth.CanonicalValue(s.TestID))
}

// Submit обрабатывает заявку. Ошибки ErrBusy, ErrInvalidSignature, ErrUserMismatch,
// ErrInvalidFormat, ErrInvalidScore и ErrTooSoon означают отказ; любые другие — сбой.
func (g *Gate) Submit(ctx context.Context, s Submission) error {
	key := LockKey(s)

	token, ok, err := g.locker.Acquire(ctx, key, g.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return ErrBusy
	}

	defer g.release(ctx, key, token)

	params := auth.Params{
		UserID: auth.CanonicalValue(s.UserID),
		TestID: auth.CanonicalValue(s.TestID),
		Score:  auth.CanonicalValue(s.Score),
	}
	if !g.verifier.Verify(params, s.Signature) {
		return ErrInvalidSignature
	}

	result, err := validate(s)
	if err != nil {
		return err
	}

	now := g.clock.Now()

	latest, err := g.repo.FindLatest(ctx, result.userID, result.testID)
	if err != nil {
		return fmt.Errorf("read latest result: %w", err)
	}

	if latest != nil && now.Sub(latest.Timestamp) < g.cfg.ThrottleWindow {
		return ErrTooSoon
	}

	if err = g.repo.Upsert(ctx, result.userID, result.testID, result.score, now); err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	g.log.Info("test result saved",
		slog.Int64("user_id", result.userID),
		slog.Int64("test_id", result.testID),
		slog.Int("score", result.score),
		slog.Bool("updated", latest != nil),
	)

	return nil
}

// release снимает блокировку, только если она всё ещё принадлежит token.
func (g *Gate) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeoutRelease)
	defer cancel()

	released, err := g.locker.Release(ctx, key, token)
	if err != nil {
		g.log.Error("failed to release lock", slog.String("key", key), slog.Any("error", err))
		return
	}

	if !released {
		g.log.Warn("lock expired before release", slog.String("key", key))
	}
}

// validate проверяет совпадение user_id и vk_user_id, целочисленность полей и диапазон score.
func validate(s Submission) (accepted, error) {
	if !auth.SameValue(s.UserID, s.VKUserID) {
		return accepted{}, ErrUserMismatch
	}

	fields := []struct {
		name string
		raw  []byte
	}{
		{name: fieldUserID, raw: s.UserID},
		{name: fieldTestID, raw: s.TestID},
		{name: fieldScore, raw: s.Score},
		{name: fieldTotalQuestions, raw: s.TotalQuestions},
	}

	values := make([]int64, len(fields))
	for i, field := range fields {
		value, err := auth.ParseInteger(field.name, field.raw)
		if err != nil {
			return accepted{}, errors.Join(ErrInvalidFormat, err)
		}

		values[i] = value
	}

	score, total := values[2], values[3]
	if score < 0 || score > total {
		return accepted{}, ErrInvalidScore
	}

	return accepted{userID: values[0], testID: values[1], score: int(score)}, nil
}
