package worker

import (
	"context"

	"datachat/internal/models"
)

type JobType int

const (
	Ask JobType = iota
	Stop
)

// Job is one unit of work flowing through the dispatcher. Stop jobs
// retire idle workers.
type Job struct {
	Type JobType
	Task *AskTask
}

// AskTask carries one question through the pool and back.
type AskTask struct {
	ctx       context.Context
	sessionID string
	question  string
	result    chan askResult
}

type askResult struct {
	answer *models.Answer
	err    error
}

// deliver hands the outcome to the waiting caller. Non-blocking so a
// caller that gave up never wedges a worker.
func (t *AskTask) deliver(answer *models.Answer, err error) {
	select {
	case t.result <- askResult{answer: answer, err: err}:
	default:
	}
}

type Worker struct {
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
	quit       chan struct{}
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
		quit:       make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			w.pool.Release(w.jobChannel)
			select {
			case job := <-w.jobChannel:
				switch job.Type {
				case Ask:
					w.manager.handleAsk(job.Task)
					w.manager.dispatcher.jobDone(job.sessionKey())
				case Stop:
					w.pool.retire(w.jobChannel)
					return
				}
			case <-w.quit:
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	close(w.quit)
}
