/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package worker provides the fixed-size pool that runs request handlers.

Pool Configuration:
===================

	Workers:   number of goroutines executing tasks
	QueueSize: capacity of the task queue

Usage:
======

	pool := worker.NewPool(worker.Config{Workers: 8, QueueSize: 256})
	if err := pool.TrySubmit(task); errors.Is(err, worker.ErrQueueFull) {
	    // keep the task and retry later
	}
	...
	pool.Shutdown(ctx) // runs every queued task, then returns

TrySubmit never blocks: the reactor that feeds the pool must not stall
on a busy pool. Shutdown stops accepting tasks, lets the workers drain the
queue and waits for them.
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"turing/internal/logging"
)

var (
	// ErrQueueFull is returned by TrySubmit when the queue is at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrClosed is returned after Shutdown has begun.
	ErrClosed = errors.New("worker pool closed")
)

// Task is a unit of work.
type Task func()

// Config configures the pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Stats describes pool activity.
type Stats struct {
	Workers   int
	Queued    int
	Running   int64
	Completed uint64
	Panics    uint64
	Closed    bool
}

// Pool runs tasks on a fixed set of goroutines.
type Pool struct {
	cfg   Config
	tasks chan Task
	group *errgroup.Group

	mu     sync.RWMutex
	closed bool

	running   atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64

	logger *logging.Logger
}

// NewPool starts cfg.Workers goroutines.
func NewPool(cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	p := &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		group:  new(errgroup.Group),
		logger: logging.NewLogger("worker"),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.group.Go(func() error {
			for task := range p.tasks {
				p.run(task)
			}
			return nil
		})
	}
	return p
}

func (p *Pool) run(task Task) {
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	task()
}

// TrySubmit queues task without blocking.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit queues task, waiting for queue space until ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits until every queued task has run
// or ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("worker drain: %w", ctx.Err())
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	return Stats{
		Closed:    closed,
		Workers:   p.cfg.Workers,
		Queued:    len(p.tasks),
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}
