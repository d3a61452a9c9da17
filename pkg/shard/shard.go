package shard

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Do after the shard has been closed.
var ErrClosed = errors.New("shard is closed")

// Shard serializes requests onto a single processing goroutine. Every
// request runs to completion before the next one starts, so all state owned
// by the shard is mutated from exactly one goroutine.
type Shard struct {
	mailbox chan task
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type task struct {
	fn   func()
	done chan struct{}
}

// New creates a shard with the given mailbox capacity and starts its
// processing goroutine.
func New(queueSize int) *Shard {
	s := &Shard{
		mailbox: make(chan task, queueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Shard) run() {
	defer s.wg.Done()
	for t := range s.mailbox {
		t.fn()
		close(t.done)
	}
}

// Do enqueues fn and waits for it to run. A context cancelled before the
// request is enqueued aborts without mutating anything; once enqueued the
// request will be applied, so Do keeps waiting for completion regardless of
// the context.
func (s *Shard) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}

	select {
	case s.mailbox <- t:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	<-t.done
	return nil
}

// Close stops accepting requests, drains the mailbox and waits for the
// processing goroutine to finish. Safe to call more than once.
func (s *Shard) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.mailbox)
	s.mu.Unlock()

	s.wg.Wait()
}
