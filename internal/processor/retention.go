package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention defaults.
const (
	DefaultRetentionCron = "0 3 * * *"
	DefaultRetentionAge  = 30 * 24 * time.Hour
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RetentionStore удаляет терминальные задачи старше cutoff.
type RetentionStore interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper удаляет завершённые задачи обработки по расписанию.
//
// Записи анализа не трогает — audit trail бессрочный, чистятся
// только строки очереди.
type Sweeper struct {
	tasks    RetentionStore
	schedule cron.Schedule
	age      time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewSweeper создаёт Sweeper.
//
// cronExpr — стандартное 5-польное cron-выражение; age — минимальный
// возраст терминальной задачи для удаления.
func NewSweeper(tasks RetentionStore, cronExpr string, age time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if cronExpr == "" {
		cronExpr = DefaultRetentionCron
	}
	if age <= 0 {
		age = DefaultRetentionAge
	}

	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid retention cron expression %q: %w", cronExpr, err)
	}

	return &Sweeper{
		tasks:    tasks,
		schedule: schedule,
		age:      age,
		logger:   logger,
	}, nil
}

// Start запускает цикл по расписанию.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	s.logger.Info("retention sweeper started", "age", s.age)
}

// Stop останавливает Sweeper.
func (s *Sweeper) Stop() {
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
}

// run спит до следующего срабатывания расписания и выполняет sweep.
func (s *Sweeper) run(ctx context.Context) {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep выполняет одно удаление. Экспортирован для ручного запуска.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.age)

	deleted, err := s.tasks.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("retention sweep completed", "deleted", deleted, "cutoff", cutoff)
	}
}
