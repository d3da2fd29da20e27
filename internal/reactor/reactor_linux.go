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

//go:build linux

package reactor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"turing/internal/logging"
	"turing/internal/protocol"
	"turing/internal/worker"
)

const (
	connEvents = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLONESHOT

	// maxReadPerEvent keeps one busy peer from starving the others.
	maxReadPerEvent = 1 << 20

	// backlogRetry is the wait between retries of a non-empty backlog.
	backlogRetry = 5 // ms
)

type pending struct {
	c   *Conn
	req Request
}

// Reactor is the epoll event loop.
type Reactor struct {
	cfg     Config
	handler Handler
	pool    Submitter
	logger  *logging.Logger

	epfd int
	efd  int
	lfd  int // loop-owned after Run starts
	addr *net.TCPAddr

	conns   map[int]*Conn // loop-owned
	backlog []pending     // loop-owned
	nextID  atomic.Uint64

	mu         sync.Mutex
	rearm      []*Conn
	closing    []*Conn
	stopAccept bool
	stopping   bool
	exited     bool

	started       atomic.Bool
	done          chan struct{}
	acceptStopped chan struct{}
	cleanups      sync.WaitGroup

	accepted   atomic.Uint64
	active     atomic.Int64
	requests   atomic.Uint64
	backlogged atomic.Uint64
	rejected   atomic.Uint64
}

// New binds the listening socket. Run starts serving.
func New(cfg Config, handler Handler, pool Submitter) (*Reactor, error) {
	def := DefaultConfig(cfg.Addr)
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}

	lfd, addr, err := listen(cfg.Addr)
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(lfd)
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(lfd)
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	for _, fd := range []int{lfd, efd} {
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			unix.Close(lfd)
			unix.Close(epfd)
			unix.Close(efd)
			return nil, fmt.Errorf("epoll add: %w", err)
		}
	}

	return &Reactor{
		cfg:           cfg,
		handler:       handler,
		pool:          pool,
		logger:        logging.NewLogger("reactor"),
		epfd:          epfd,
		efd:           efd,
		lfd:           lfd,
		addr:          addr,
		conns:         make(map[int]*Conn),
		done:          make(chan struct{}),
		acceptStopped: make(chan struct{}),
	}, nil
}

// Addr returns the bound listening address.
func (r *Reactor) Addr() net.Addr { return r.addr }

// Run serves connections until Stop. It must be called once.
func (r *Reactor) Run() error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrStopped
	}
	defer close(r.done)

	r.logger.Info("reactor started", "addr", r.addr.String())
	events := make([]unix.EpollEvent, r.cfg.MaxEvents)
	buf := make([]byte, r.cfg.ReadBufferSize)

	for {
		if r.drainQueues() {
			r.teardown()
			return nil
		}
		r.retryBacklog()

		timeout := -1
		if len(r.backlog) > 0 {
			timeout = backlogRetry
		}
		n, err := unix.EpollWait(r.epfd, events, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			r.teardown()
			return fmt.Errorf("epoll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == r.efd:
				r.drainEventfd()
			case fd == r.lfd:
				r.accept()
			default:
				if c, ok := r.conns[fd]; ok {
					r.readable(c, buf)
				}
			}
		}
	}
}

// StopAccepting closes the listening socket. Open connections keep being
// served.
func (r *Reactor) StopAccepting(ctx context.Context) error {
	r.mu.Lock()
	r.stopAccept = true
	r.wakeLocked()
	r.mu.Unlock()

	if !r.started.Load() {
		return nil
	}
	select {
	case <-r.acceptStopped:
		return nil
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes every connection, waits for their cleanup and releases the
// loop. Workers should be drained first.
func (r *Reactor) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopping = true
	r.wakeLocked()
	r.mu.Unlock()

	if r.started.CompareAndSwap(false, true) {
		// Never ran: nothing to drain.
		r.teardown()
		close(r.done)
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	cleaned := make(chan struct{})
	go func() {
		r.cleanups.Wait()
		close(cleaned)
	}()
	select {
	case <-cleaned:
		r.logger.Info("reactor stopped", "accepted", r.accepted.Load())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection cleanup: %w", ctx.Err())
	}
}

// Stats returns a snapshot of reactor activity.
func (r *Reactor) Stats() Stats {
	return Stats{
		Accepted:   r.accepted.Load(),
		Active:     r.active.Load(),
		Requests:   r.requests.Load(),
		Backlogged: r.backlogged.Load(),
		Rejected:   r.rejected.Load(),
	}
}

// ============================================================================
// Queues shared with workers
// ============================================================================

func (r *Reactor) enqueueClose(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exited {
		return
	}
	r.closing = append(r.closing, c)
	r.wakeLocked()
}

func (r *Reactor) enqueueRearm(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exited {
		return
	}
	r.rearm = append(r.rearm, c)
	r.wakeLocked()
}

func (r *Reactor) wakeLocked() {
	if r.exited {
		return
	}
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	// EAGAIN means the counter is already non-zero.
	unix.Write(r.efd, one[:])
}

func (r *Reactor) drainEventfd() {
	var buf [8]byte
	unix.Read(r.efd, buf[:])
}

// drainQueues applies the requests of other goroutines. It reports whether
// the loop must stop.
func (r *Reactor) drainQueues() bool {
	r.mu.Lock()
	rearm, closing := r.rearm, r.closing
	r.rearm, r.closing = nil, nil
	stopAccept, stopping := r.stopAccept, r.stopping
	r.mu.Unlock()

	if stopAccept && r.lfd >= 0 {
		r.closeListener()
	}
	for _, c := range closing {
		r.closeConn(c)
	}
	for _, c := range rearm {
		r.finished(c)
	}
	return stopping
}

func (r *Reactor) closeListener() {
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, r.lfd, nil)
	unix.Close(r.lfd)
	r.lfd = -1
	close(r.acceptStopped)
	r.logger.Info("stopped accepting connections")
}

// teardown closes every connection and the loop's descriptors.
func (r *Reactor) teardown() {
	if r.lfd >= 0 {
		r.closeListener()
	}
	for _, c := range r.conns {
		if c.busy {
			r.logger.Warn("closing connection with a request in flight", "conn", c.id)
			c.busy = false
		}
		r.closeConn(c)
	}
	for _, p := range r.backlog {
		r.closeConn(p.c)
	}
	r.backlog = nil

	r.mu.Lock()
	r.exited = true
	r.mu.Unlock()
	unix.Close(r.efd)
	unix.Close(r.epfd)
}

// ============================================================================
// Connection lifecycle (loop goroutine)
// ============================================================================

func (r *Reactor) accept() {
	for {
		nfd, sa, err := unix.Accept4(r.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				r.logger.Warn("accept failed", "error", err)
			}
			return
		}
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		c := &Conn{
			id:      r.nextID.Add(1),
			fd:      nfd,
			remote:  sockaddrString(sa),
			timeout: r.cfg.WriteTimeout,
			owner:   r,
		}
		ev := unix.EpollEvent{Events: connEvents, Fd: int32(nfd)}
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, nfd, &ev); err != nil {
			r.logger.Warn("epoll add failed", "error", err)
			unix.Close(nfd)
			continue
		}
		r.conns[nfd] = c
		r.accepted.Add(1)
		r.active.Add(1)
		r.logger.Debug("connection accepted", "conn", c.id, "remote", c.remote)
	}
}

func (r *Reactor) readable(c *Conn, buf []byte) {
	read := 0
	for read < maxReadPerEvent {
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.framer.Write(buf[:n])
			read += n
			continue
		}
		switch {
		case err == nil:
			r.logger.Debug("peer closed connection", "conn", c.id)
			r.closeConn(c)
			return
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			r.dispatch(c)
			return
		default:
			r.logger.Debug("read failed", "conn", c.id, "error", err)
			r.closeConn(c)
			return
		}
	}
	r.dispatch(c)
}

// dispatch hands the next buffered request to the pool, or re-arms the
// connection when none is complete.
func (r *Reactor) dispatch(c *Conn) {
	req, size, err := r.handler.Next(&c.framer)
	if err != nil {
		r.logger.Debug("protocol error", "conn", c.id, "error", err)
		r.closeConn(c)
		return
	}
	if size == 0 {
		r.arm(c)
		return
	}
	c.framer.Discard(size)
	r.requests.Add(1)
	c.busy = true
	r.submit(pending{c: c, req: req}, false)
}

// submit reports whether the task left the loop.
func (r *Reactor) submit(p pending, retry bool) bool {
	err := r.pool.TrySubmit(func() { r.serve(p.c, p.req) })
	switch {
	case err == nil:
		return true
	case errors.Is(err, worker.ErrQueueFull):
		if !retry {
			r.backlogged.Add(1)
			r.backlog = append(r.backlog, p)
		}
		return false
	default:
		r.rejected.Add(1)
		p.c.busy = false
		p.c.farewell = protocol.AppendFrame(nil, int32(protocol.StatusShuttingDown), nil)
		r.closeConn(p.c)
		return true
	}
}

func (r *Reactor) retryBacklog() {
	if len(r.backlog) == 0 {
		return
	}
	kept := r.backlog[:0]
	for i, p := range r.backlog {
		if p.c.removed {
			continue
		}
		if !r.submit(p, true) {
			// Queue still full; keep order for the rest.
			kept = append(kept, r.backlog[i:]...)
			break
		}
	}
	r.backlog = kept
}

// serve runs on a worker.
func (r *Reactor) serve(c *Conn, req Request) {
	ok := false
	defer func() {
		if !ok {
			c.closeRequested.Store(true)
		}
		r.enqueueRearm(c)
	}()
	if err := r.handler.Serve(c, req); err != nil {
		r.logger.Debug("request failed", "conn", c.id, "error", err)
		return
	}
	ok = true
}

// finished runs when a worker is done with c.
func (r *Reactor) finished(c *Conn) {
	c.busy = false
	if c.removed {
		return
	}
	if c.closeDue || c.Closing() {
		r.closeConn(c)
		return
	}
	r.dispatch(c)
}

func (r *Reactor) arm(c *Conn) {
	ev := unix.EpollEvent{Events: connEvents, Fd: int32(c.fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, c.fd, &ev); err != nil {
		r.logger.Debug("re-arm failed", "conn", c.id, "error", err)
		r.closeConn(c)
	}
}

func (r *Reactor) closeConn(c *Conn) {
	if c.removed {
		return
	}
	c.closeRequested.Store(true)
	if c.busy {
		c.closeDue = true
		return
	}
	c.removed = true
	delete(r.conns, c.fd)
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	r.active.Add(-1)

	farewell := c.farewell
	c.framer.Reset()
	r.cleanups.Add(1)
	go func() {
		defer r.cleanups.Done()
		if farewell != nil {
			c.Write(farewell)
		}
		c.release()
		r.handler.Closed(c)
		r.logger.Debug("connection closed", "conn", c.id)
	}()
}

// ============================================================================
// Sockets
// ============================================================================

func (c *Conn) writeAll(p []byte) error {
	deadline := time.Now().Add(c.timeout)
	for len(p) > 0 {
		n, err := unix.Write(c.fd, p)
		if n > 0 {
			p = p[n:]
			continue
		}
		switch {
		case err == nil:
			return io.ErrShortWrite
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			wait := time.Until(deadline)
			if wait <= 0 {
				return ErrWriteTimeout
			}
			fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
			if _, err := unix.Poll(fds, int(wait/time.Millisecond)+1); err != nil && !errors.Is(err, unix.EINTR) {
				return fmt.Errorf("poll: %w", err)
			}
		default:
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

func (c *Conn) closeFD() {
	unix.Close(c.fd)
}

func listen(addr string) (int, *net.TCPAddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := tcpAddr.IP.To4(); ip4 != nil || tcpAddr.IP == nil {
		s := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(s.Addr[:], ip4)
		sa = s
	} else {
		family = unix.AF_INET6
		s := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(s.Addr[:], tcpAddr.IP.To16())
		sa = s
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("setsockopt: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("getsockname: %w", err)
	}
	return fd, sockaddrTCP(bound), nil
}

func sockaddrTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), s.Addr[:]...)), Port: s.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), s.Addr[:]...)), Port: s.Port}
	}
	return &net.TCPAddr{}
}

func sockaddrString(sa unix.Sockaddr) string {
	return sockaddrTCP(sa).String()
}
