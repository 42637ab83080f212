package errsink

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// bufferSize — сколько записей может ждать записи в файл.
const bufferSize = 256

// DropObserver получает уведомление о потерянной записи.
type DropObserver interface {
	ObserveDroppedError()
}

// Options содержит параметры журнала ошибок.
type Options struct {
	// Path — путь к файлу журнала. Пустой путь отключает журнал.
	Path string

	// MaxSizeMB — размер файла, после которого он ротируется.
	MaxSizeMB int

	// MaxBackups — сколько старых файлов хранить.
	MaxBackups int

	Observer DropObserver
}

type record struct {
	at      time.Time
	message string
	err     error
	attrs   []slog.Attr
}

// Sink — журнал необработанных ошибок. Record никогда не блокирует вызывающего:
// при переполнении буфера запись отбрасывается.
type Sink struct {
	records  chan record
	log      *slog.Logger
	closer   io.Closer
	observer DropObserver
	done     chan struct{}

	// mu защищает records от записи после Close.
	mu     sync.RWMutex
	closed bool
}

// New открывает журнал в файле opts.Path с ротацией.
func New(opts Options) *Sink {
	if opts.Path == "" {
		return NewWriter(io.Discard, opts.Observer)
	}

	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	s := NewWriter(file, opts.Observer)
	s.closer = file

	return s
}

// NewWriter создаёт журнал, пишущий JSON-строки в w.
func NewWriter(w io.Writer, observer DropObserver) *Sink {
	s := &Sink{
		records:  make(chan record, bufferSize),
		log:      slog.New(slog.NewJSONHandler(w, nil)),
		observer: observer,
		done:     make(chan struct{}),
	}

	go s.run()

	return s
}

// Record ставит ошибку в очередь на запись. После Close запись отбрасывается.
func (s *Sink) Record(message string, err error, attrs ...slog.Attr) {
	r := record{at: time.Now(), message: message, err: err, attrs: attrs}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped()
		return
	}

	select {
	case s.records <- r:
	default:
		s.dropped()
	}
}

func (s *Sink) dropped() {
	if s.observer != nil {
		s.observer.ObserveDroppedError()
	}
}

func (s *Sink) run() {
	defer close(s.done)

	for r := range s.records {
		attrs := append([]slog.Attr{slog.Time("at", r.at), slog.Any("error", r.err)}, r.attrs...)
		s.log.LogAttrs(context.Background(), slog.LevelError, r.message, attrs...)
	}
}

// Close дописывает очередь и закрывает файл. Повторный вызов безопасен.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	close(s.records)
	s.mu.Unlock()

	<-s.done

	if s.closer != nil {
		return s.closer.Close()
	}

	return nil
}
