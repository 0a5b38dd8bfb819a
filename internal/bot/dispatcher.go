package bot

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned for jobs submitted after Close
var ErrDispatcherClosed = errors.New("bot: dispatcher closed")

// dispatcher runs jobs of one chat strictly in arrival order while
// different chats proceed concurrently. A chat has a worker goroutine only
// while it has queued jobs.
type dispatcher struct {
	logger *zap.Logger

	mu     sync.Mutex
	queues map[int64][]func()
	closed bool

	wg sync.WaitGroup
}

func newDispatcher(logger *zap.Logger) *dispatcher {
	return &dispatcher{
		logger: logger,
		queues: make(map[int64][]func()),
	}
}

// Submit queues job behind the earlier jobs of chatID
func (d *dispatcher) Submit(chatID int64, job func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	queue, running := d.queues[chatID]
	d.queues[chatID] = append(queue, job)
	if !running {
		d.wg.Add(1)
		go d.drain(chatID)
	}
	return nil
}

// Spawn runs job outside any chat queue
func (d *dispatcher) Spawn(job func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(0, job)
	}()
	return nil
}

func (d *dispatcher) drain(chatID int64) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[chatID]
		if len(queue) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		d.queues[chatID] = queue[1:]
		d.mu.Unlock()

		d.run(chatID, job)
	}
}

func (d *dispatcher) run(chatID int64, job func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered from panic in update job",
				zap.Any("panic", r),
				zap.Int64("chat_id", chatID),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	job()
}

// Close rejects new jobs and waits for queued ones until ctx is done
func (d *dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
