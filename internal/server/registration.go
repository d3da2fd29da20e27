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

package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	terrors "turing/internal/errors"
	"turing/internal/logging"
	"turing/internal/protocol"
	"turing/internal/worker"
)

const (
	// registrationTimeout bounds one side channel exchange.
	registrationTimeout = 10 * time.Second
	// queueWait bounds the wait for a free slot in the worker queue.
	queueWait = 2 * time.Second
)

// Registrar serves the registration side channel: one REGISTER frame per
// connection, one response, then close. Connections are read and answered
// on plain goroutines outside the reactor; the request itself runs on the
// shared worker pool.
type Registrar struct {
	ln         net.Listener
	dispatcher *Dispatcher
	pool       *worker.Pool
	ctx        context.Context
	logger     *logging.Logger

	wg sync.WaitGroup
}

// NewRegistrar listens on addr.
func NewRegistrar(ctx context.Context, addr string, d *Dispatcher, pool *worker.Pool) (*Registrar, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Registrar{ln: ln, dispatcher: d, pool: pool, ctx: ctx, logger: logging.NewLogger("registration")}, nil
}

// Addr returns the bound address.
func (r *Registrar) Addr() net.Addr { return r.ln.Addr() }

// Serve accepts connections until Close.
func (r *Registrar) Serve() {
	r.logger.Info("registration channel listening", "addr", r.ln.Addr().String())
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				r.logger.Warn("accept failed", "error", err)
			}
			return
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.handle(conn)
		}()
	}
}

func (r *Registrar) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(registrationTimeout))

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		r.logger.Debug("registration read failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	var resp Response
	if frame.Command() != protocol.CmdRegister {
		resp = ErrorResponse(terrors.UnknownCommand(frame.Tag))
	} else {
		resp = r.register(frame)
	}
	if err := protocol.WriteFrame(conn, int32(resp.Status), resp.Body); err != nil {
		r.logger.Debug("registration reply failed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

// register runs the request on the worker pool and waits for its response.
// A queue that stays full answers ServerBusy.
func (r *Registrar) register(frame *protocol.Frame) Response {
	ctx, cancel := context.WithTimeout(r.ctx, queueWait)
	defer cancel()

	done := make(chan Response, 1)
	err := r.pool.Submit(ctx, func() {
		done <- r.dispatcher.Dispatch(r.ctx, 0, *frame, nil)
	})
	switch {
	case err == nil:
		return <-done
	case errors.Is(err, worker.ErrClosed):
		return ErrorResponse(terrors.New(protocol.StatusShuttingDown))
	default:
		r.logger.Warn("worker queue full, registration refused", "error", err)
		return ErrorResponse(terrors.New(protocol.StatusServerBusy))
	}
}

// Close stops accepting and waits for open exchanges.
func (r *Registrar) Close() error {
	err := r.ln.Close()
	r.wg.Wait()
	return err
}
