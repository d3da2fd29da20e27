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
Package reactor provides the connection multiplexer of the Turing server.

Event Loop Overview:
====================

One goroutine owns the listening socket and every client socket. It waits
for readiness, reads whatever bytes are available into the connection's
Framer and, once a complete request is buffered, hands the connection to
the worker pool. Business logic never runs on the loop goroutine.

Connection States:
==================

	AwaitingRequest --(readable, request complete)--> InWorker
	InWorker        --(response written)-----------> AwaitingRequest
	any state       --(I/O error, EOF, Close)-------> Closed

Client sockets are registered with EPOLLONESHOT: a connection handed to a
worker produces no further events until the loop re-arms it. Workers never
touch the epoll set; they push finished connections onto the re-arm queue
and wake the loop through an eventfd. A connection is therefore re-armed
only after its response is fully written, which preserves per-connection
request/response ordering.

When the pool queue is full the request waits in a backlog that is retried
on every loop iteration. Once the pool has shut down, new requests are
answered with the shutting-down status and the connection is closed.

Cleanup:
========

A closed connection is removed from the epoll set by the loop. The socket
itself is closed, and Handler.Closed is called, on a separate goroutine so
the loop never waits for a slow writer or for cleanup work. A connection
whose request is still running in a worker is closed after the worker
returns, so cleanup never races with a request of the same connection.
*/
package reactor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"turing/internal/protocol"
	"turing/internal/worker"
)

var (
	// ErrConnClosed is returned when writing to a closed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrWriteTimeout is returned when a peer does not drain a response in
	// time.
	ErrWriteTimeout = errors.New("write timed out")
	// ErrUnsupported is returned on platforms without epoll.
	ErrUnsupported = errors.New("reactor requires linux")
	// ErrStopped is returned when starting a stopped reactor.
	ErrStopped = errors.New("reactor stopped")
)

// Config configures a reactor.
type Config struct {
	// Addr is the host:port to listen on. Port 0 picks a free port.
	Addr string
	// WriteTimeout bounds a single response write to a slow peer.
	WriteTimeout time.Duration
	// MaxEvents is the epoll batch size.
	MaxEvents int
	// ReadBufferSize is the size of the loop's read buffer.
	ReadBufferSize int
}

// DefaultConfig returns the default configuration for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:           addr,
		WriteTimeout:   5 * time.Second,
		MaxEvents:      256,
		ReadBufferSize: 64 * 1024,
	}
}

// Request is one complete request: its frames in arrival order.
type Request []protocol.Frame

// Handler is the application served by the reactor.
type Handler interface {
	// Next cuts the next complete request from buffered bytes. It returns
	// the encoded size of the request, or 0 when more bytes are needed.
	// An error closes the connection.
	Next(f *protocol.Framer) (Request, int, error)

	// Serve runs on a pool worker. It must write its response before
	// returning. An error closes the connection.
	Serve(c *Conn, req Request) error

	// Closed runs once per connection after it has left the reactor.
	Closed(c *Conn)
}

// Submitter runs tasks without blocking. worker.Pool implements it.
type Submitter interface {
	TrySubmit(task worker.Task) error
}

// Stats describes reactor activity.
type Stats struct {
	Accepted   uint64
	Active     int64
	Requests   uint64
	Backlogged uint64
	Rejected   uint64
}

// Conn is one client connection.
type Conn struct {
	id      uint64
	fd      int
	remote  string
	timeout time.Duration
	owner   *Reactor

	writeMu sync.Mutex
	closed  bool // guarded by writeMu

	closeRequested atomic.Bool

	ctxMu sync.Mutex
	ctx   any

	// Owned by the loop goroutine.
	framer   protocol.Framer
	busy     bool
	removed  bool
	closeDue bool
	farewell []byte
}

// ID returns the connection id, unique for the life of the reactor.
func (c *Conn) ID() uint64 { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// SetContext attaches handler state to the connection.
func (c *Conn) SetContext(v any) {
	c.ctxMu.Lock()
	c.ctx = v
	c.ctxMu.Unlock()
}

// Context returns the handler state set by SetContext.
func (c *Conn) Context() any {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	return c.ctx
}

// WriteFrame writes one frame.
func (c *Conn) WriteFrame(tag int32, body []byte) error {
	return c.Write(protocol.AppendFrame(nil, tag, body))
}

// Write writes p in full. Concurrent writers are serialized, so frames
// never interleave.
func (c *Conn) Write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return c.writeAll(p)
}

// Close asks the reactor to close the connection. A request running in a
// worker finishes first.
func (c *Conn) Close() {
	if c.closeRequested.Swap(true) {
		return
	}
	if c.owner != nil {
		c.owner.enqueueClose(c)
	}
}

// Closing reports whether Close was called.
func (c *Conn) Closing() bool {
	return c.closeRequested.Load()
}

// release closes the socket once no writer holds it.
func (c *Conn) release() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeFD()
}
