// Package queue holds pending on-demand refreshes. The API enqueues an ASIN
// when the extension reports a price we have no fresh observation for, and
// the refresh worker drains the queue between scheduled sweeps.
package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrQueueEmpty    = errors.New("queue is empty")
	ErrQueueClosed   = errors.New("queue is closed")
	ErrAlreadyQueued = errors.New("asin already queued")
)

// Refresh priorities. User-visible requests jump ahead of background refills.
const (
	PriorityScheduled = 0
	PriorityManual    = 10
)

type RefreshTask struct {
	ASIN        string
	Marketplace string
	Priority    int
	Attempts    int
	EnqueuedAt  time.Time
}

func NewRefreshTask(asin, marketplace string, priority int) *RefreshTask {
	return &RefreshTask{
		ASIN:        asin,
		Marketplace: marketplace,
		Priority:    priority,
		EnqueuedAt:  time.Now(),
	}
}

// RefreshQueue is an in-memory priority queue keyed by ASIN. Pushing an ASIN
// that is already waiting is a no-op, so a chatty extension cannot flood the
// worker with duplicates.
type RefreshQueue struct {
	tasks   []*RefreshTask
	pending map[string]bool
	mu      sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func NewRefreshQueue() *RefreshQueue {
	q := &RefreshQueue{
		tasks:   make([]*RefreshTask, 0),
		pending: make(map[string]bool),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *RefreshQueue) Push(task *RefreshTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.pending[task.ASIN] {
		return ErrAlreadyQueued
	}

	q.tasks = append(q.tasks, task)
	q.pending[task.ASIN] = true
	// Stable sort keeps FIFO order inside a priority band.
	sort.SliceStable(q.tasks, func(i, j int) bool {
		return q.tasks[i].Priority > q.tasks[j].Priority
	})
	q.cond.Signal()

	return nil
}

// Pop blocks until a task is available, the queue is closed, or the context
// is cancelled.
func (q *RefreshQueue) Pop(ctx context.Context) (*RefreshTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 && !q.closed {
		done := make(chan struct{})
		go func() {
			q.cond.Wait()
			close(done)
		}()

		select {
		case <-ctx.Done():
			q.cond.Signal()
			return nil, ctx.Err()
		case <-done:
		}
	}

	if q.closed && len(q.tasks) == 0 {
		return nil, ErrQueueClosed
	}

	return q.popLocked(), nil
}

// TryPop returns the highest-priority task without blocking.
func (q *RefreshQueue) TryPop() (*RefreshTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	return q.popLocked(), true
}

// Drain removes and returns up to max tasks without blocking. The refresh
// worker calls this at the start of each sweep so manual requests are served
// before the catalogue walk.
func (q *RefreshQueue) Drain(max int) []*RefreshTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if max <= 0 || max > len(q.tasks) {
		max = len(q.tasks)
	}

	drained := make([]*RefreshTask, 0, max)
	for i := 0; i < max; i++ {
		drained = append(drained, q.popLocked())
	}
	return drained
}

func (q *RefreshQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *RefreshQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()

	return nil
}

func (q *RefreshQueue) popLocked() *RefreshTask {
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	delete(q.pending, task.ASIN)
	return task
}
