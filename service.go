package elastiq

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jirevwe/elastiq/pool"
)

// Service ties the task mux and the execution journal to the elastic
// pool. Dispatch is the only way work enters the pool through the
// service, so every execution leaves a journal trail.
type Service struct {
	pool    *pool.ElasticPool
	journal *Journal
	mux     *Mux
	logger  *slog.Logger
}

// NewService builds a service from cfg. A nil mux or logger gets a
// default; the journal is opened at cfg.JournalPath.
func NewService(cfg Config, mux *Mux, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	if mux == nil {
		mux = NewMux()
	}

	journal, err := NewJournal(cfg.JournalPath, logger)
	if err != nil {
		return nil, err
	}

	p, err := pool.New(pool.Config{
		MinWorkers:    cfg.MinWorkers,
		MaxWorkers:    cfg.MaxWorkers,
		HighWaterMark: cfg.HighWaterMark,
		Logger:        logger,
	})
	if err != nil {
		if closeErr := journal.Close(); closeErr != nil {
			logger.Error(closeErr.Error())
		}
		return nil, err
	}

	return &Service{
		pool:    p,
		journal: journal,
		mux:     mux,
		logger:  logger,
	}, nil
}

// Handle registers a handler for a task type.
func (s *Service) Handle(taskType string, h Handler) {
	s.mux.Handle(taskType, h)
}

// Dispatch journals a new task and submits it to the pool. It returns
// as soon as the task is queued; the outcome is observable through the
// journal. Execution begins in dispatch order across the whole pool.
func (s *Service) Dispatch(ctx context.Context, taskType string, payload []byte) (*Task, error) {
	task := NewTask(taskType, payload)

	if err := s.journal.Record(ctx, task); err != nil {
		return nil, err
	}

	err := s.pool.Submit(func() {
		s.execute(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}

// execute runs on a pool worker.
func (s *Service) execute(ctx context.Context, task *Task) {
	s.journalStatus(func() error { return s.journal.MarkRunning(ctx, task.ID) })

	execErr := s.runHandler(ctx, task)
	if execErr != nil {
		s.logger.Error(fmt.Sprintf("task %s failed: %s", task.ID, execErr.Error()))
	}

	s.journalStatus(func() error { return s.journal.MarkDone(ctx, task.ID, execErr) })
}

// runHandler converts a handler panic into an error so the journal
// record always reaches a terminal state; without this the panic would
// unwind past MarkDone and leave the record running forever.
func (s *Service) runHandler(ctx context.Context, task *Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	return s.mux.ProcessTask(ctx, task)
}

// journalStatus retries transient journal write failures (sqlite busy)
// before giving up and logging.
func (s *Service) journalStatus(write func() error) {
	if err := NewRetry(3, 50*time.Millisecond, write).Do(); err != nil {
		s.logger.Error(err.Error())
	}
}

// Execution returns the journal record of a dispatched task.
func (s *Service) Execution(ctx context.Context, id string) (Execution, error) {
	return s.journal.Get(ctx, id)
}

// History lists the journal records of a task type, most recent first.
func (s *Service) History(ctx context.Context, taskType string) ([]Execution, error) {
	return s.journal.History(ctx, taskType)
}

// WorkerCount reports the pool's current roster size.
func (s *Service) WorkerCount() int {
	return s.pool.WorkerCount()
}

// QueueDepth reports the pool's current backlog.
func (s *Service) QueueDepth() int {
	return s.pool.QueueDepth()
}

// Close drains the pool, then closes the journal. In-flight and queued
// tasks finish (and are journaled) before Close returns.
func (s *Service) Close() error {
	if err := s.pool.Stop(); err != nil {
		return err
	}
	return s.journal.Close()
}
