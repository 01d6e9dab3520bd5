package worker

import (
	"context"
	"errors"
	"time"

	"datachat/internal/models"
)

// Asker answers one question for a session.
type Asker interface {
	Ask(ctx context.Context, sessionID, question string) (*models.Answer, error)
}

// Options sizes the pool and bounds how long one question may run.
type Options struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	AskTimeout  time.Duration
}

const (
	defaultMinWorkers = 2
	defaultMaxWorkers = 8
	defaultQueueSize  = 64
	defaultAskTimeout = 2 * time.Minute
)

// Manager fronts the orchestrator with the worker pool. Questions for
// the same session run one at a time and in arrival order; different
// sessions run concurrently up to the pool maximum.
type Manager struct {
	asker      Asker
	dispatcher *Dispatcher
	timeout    time.Duration
}

func NewManager(asker Asker, opts Options) (*Manager, error) {
	if asker == nil {
		return nil, errors.New("asker is required")
	}
	if opts.MinWorkers <= 0 {
		opts.MinWorkers = defaultMinWorkers
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = defaultMaxWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.AskTimeout <= 0 {
		opts.AskTimeout = defaultAskTimeout
	}

	m := &Manager{
		asker:   asker,
		timeout: opts.AskTimeout,
	}
	m.dispatcher = NewDispatcher(opts.MinWorkers, opts.MaxWorkers, opts.QueueSize, m, opts.IdleTimeout)
	return m, nil
}

// Ask enqueues the question and blocks until a worker answers it, the
// context is cancelled, or the ask timeout expires.
func (m *Manager) Ask(ctx context.Context, sessionID, question string) (*models.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	task := &AskTask{
		ctx:       ctx,
		sessionID: sessionID,
		question:  question,
		result:    make(chan askResult, 1),
	}

	select {
	case m.dispatcher.JobQueue <- Job{Type: Ask, Task: task}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-task.result:
		return res.answer, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CancelSession drops queued questions for an ended session.
func (m *Manager) CancelSession(sessionID string) {
	m.dispatcher.CancelSession(sessionID)
}

func (m *Manager) handleAsk(task *AskTask) {
	if task == nil {
		return
	}
	if err := task.ctx.Err(); err != nil {
		task.deliver(nil, err)
		return
	}
	answer, err := m.asker.Ask(task.ctx, task.sessionID, task.question)
	task.deliver(answer, err)
}
