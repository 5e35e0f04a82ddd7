package telegram

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

const chatQueueSize = 16

// dispatcher runs jobs one at a time per chat with a global concurrency cap.
// Each chat gets a worker goroutine on first use.
type dispatcher struct {
	mu      sync.RWMutex
	workers map[int64]chan func()
	sem     chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

func newDispatcher(maxConcurrent int) *dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &dispatcher{
		workers: make(map[int64]chan func()),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

// submit queues job behind earlier jobs of the same chat. It blocks while
// the chat queue is full and returns false when ctx ends first or the
// dispatcher is closed.
func (d *dispatcher) submit(ctx context.Context, chatID int64, job func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	q, ok := d.workers[chatID]
	if !ok {
		q = make(chan func(), chatQueueSize)
		d.workers[chatID] = q
		d.wg.Add(1)
		go d.work(chatID, q)
	}
	d.mu.Unlock()

	// close waits for in-flight sends before closing the queues
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case q <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *dispatcher) work(chatID int64, q chan func()) {
	defer d.wg.Done()
	for job := range q {
		d.sem <- struct{}{}
		func() {
			defer func() { <-d.sem }()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("chat job panicked",
						slog.Int64("chat_id", chatID),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())))
				}
			}()
			job()
		}()
	}
}

// close stops accepting jobs and waits for queued ones to finish.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.workers {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
