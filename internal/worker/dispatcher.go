package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrSessionCancelled is delivered to callers whose queued questions
// were dropped because the session ended.
var ErrSessionCancelled = errors.New("session cancelled")

type sessionQueue struct {
	jobs     []Job
	enqueued bool // session is waiting in the ready list
	inflight bool // a worker is handling this session right now
}

// Dispatcher fans jobs out to the pool while keeping at most one job
// per session in flight. Sessions take turns in LRU order, so one noisy
// session cannot starve the rest.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job
	Manager  *Manager

	mu        sync.Mutex
	queues    map[string]*sessionQueue
	ready     *list.List // LRU queue storing session IDs
	positions map[string]*list.Element
	wake      chan struct{}
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager)
	jobQueue := make(chan Job, queueSize)

	d := &Dispatcher{
		queues:    make(map[string]*sessionQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  jobQueue,
		Manager:   manager,
		wake:      make(chan struct{}, 1),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the session in front of the LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.wake:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

// CancelSession drops any queued jobs for the session and fails their
// waiting callers. An in-flight job finishes on its own; its queue entry
// stays until jobDone so a follow-up question cannot run alongside it.
func (d *Dispatcher) CancelSession(sessionID string) {
	d.mu.Lock()
	var dropped []Job
	if q := d.queues[sessionID]; q != nil {
		dropped = q.jobs
		q.jobs = nil
		q.enqueued = false
		if !q.inflight {
			delete(d.queues, sessionID)
		}
	}
	if elem, ok := d.positions[sessionID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
	}
	d.mu.Unlock()

	for _, job := range dropped {
		if job.Task != nil {
			job.Task.deliver(nil, ErrSessionCancelled)
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	sessionID := job.sessionKey()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[sessionID]
	if q == nil {
		q = &sessionQueue{}
		d.queues[sessionID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued || q.inflight {
		return
	}
	q.enqueued = true
	elem := d.ready.PushBack(sessionID)
	d.positions[sessionID] = elem
}

// dispatchOne takes the front session's oldest job and hands it to a
// worker. The session leaves the ready list until the job completes.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	sessionID := elem.Value.(string)
	q := d.queues[sessionID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.inflight = true
	q.enqueued = false
	d.ready.Remove(elem)
	delete(d.positions, sessionID)
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	debugLog("[dispatcher] assign job for session %s", sessionID)
	workerChan <- job
	return true
}

// jobDone re-admits the session once its in-flight job finished.
func (d *Dispatcher) jobDone(sessionID string) {
	d.mu.Lock()
	if q := d.queues[sessionID]; q != nil {
		q.inflight = false
		if len(q.jobs) > 0 {
			q.enqueued = true
			d.positions[sessionID] = d.ready.PushBack(sessionID)
		} else {
			delete(d.queues, sessionID)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (job Job) sessionKey() string {
	if job.Task != nil {
		return job.Task.sessionID
	}
	return ""
}
