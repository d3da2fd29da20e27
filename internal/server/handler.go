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
Connection Handler
==================

Every connection starts as a primary channel. The first frame may announce
the channel kind:

	CHANNEL_PRIMARY                  requests follow (optional)
	CHANNEL_NOTIFY [user, token]     the server pushes invites here

A notify channel carries no requests after its handshake; any frame the
client sends on it is a protocol error.

Request Assembly:
=================

END_EDIT is a two-frame request: the END_EDIT frame is followed by a
SECTION_UPDATE frame whose body is the raw section text. The pair is
handed to a worker only when both frames are buffered.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"turing/internal/engine"
	terrors "turing/internal/errors"
	"turing/internal/logging"
	"turing/internal/protocol"
	"turing/internal/reactor"
	"turing/internal/session"
)

// ErrProtocol is returned for requests that break the channel rules.
var ErrProtocol = errors.New("protocol violation")

type channelKind int

const (
	channelUnknown channelKind = iota
	channelPrimary
	channelNotify
)

type connState struct {
	mu       sync.Mutex
	kind     channelKind
	notifier *connNotifier
}

// handler adapts the dispatcher to the reactor.
type handler struct {
	engine     *engine.Engine
	dispatcher *Dispatcher
	ctx        context.Context
	logger     *logging.Logger
}

func newHandler(ctx context.Context, e *engine.Engine, d *Dispatcher) *handler {
	return &handler{
		engine:     e,
		dispatcher: d,
		ctx:        ctx,
		logger:     logging.NewLogger("handler"),
	}
}

func (h *handler) Next(f *protocol.Framer) (reactor.Request, int, error) {
	first, size, ok, err := f.PeekAt(0)
	if err != nil || !ok {
		return nil, 0, err
	}
	if first.Command() != protocol.CmdEndEdit {
		return reactor.Request{first}, size, nil
	}

	update, usize, ok, err := f.PeekAt(size)
	if err != nil || !ok {
		return nil, 0, err
	}
	if update.Command() != protocol.CmdSectionUpdate {
		return nil, 0, fmt.Errorf("%w: %s must follow %s, got tag %d",
			ErrProtocol, protocol.CmdSectionUpdate, protocol.CmdEndEdit, update.Tag)
	}
	return reactor.Request{first, update}, size + usize, nil
}

func stateOf(c *reactor.Conn) *connState {
	if st, ok := c.Context().(*connState); ok {
		return st
	}
	st := &connState{}
	c.SetContext(st)
	return st
}

func (h *handler) Serve(c *reactor.Conn, req reactor.Request) error {
	st := stateOf(c)
	frame := req[0]

	st.mu.Lock()
	kind := st.kind
	if kind == channelUnknown {
		st.kind = channelPrimary
	}
	st.mu.Unlock()

	switch {
	case kind == channelNotify:
		return fmt.Errorf("%w: request on a notify channel", ErrProtocol)
	case frame.Command() == protocol.CmdChannelPrimary:
		if kind != channelUnknown {
			return fmt.Errorf("%w: late channel handshake", ErrProtocol)
		}
		return writeResponse(c, Response{Status: protocol.StatusOK})
	case frame.Command() == protocol.CmdChannelNotify:
		if kind != channelUnknown {
			return fmt.Errorf("%w: late channel handshake", ErrProtocol)
		}
		return h.attach(c, st, frame)
	}

	var update []byte
	if len(req) > 1 {
		update = req[1].Body
	}
	resp := h.dispatcher.Dispatch(h.ctx, session.ConnID(c.ID()), frame, update)
	if err := writeResponse(c, resp); err != nil {
		return err
	}
	if resp.Close {
		c.Close()
	}
	return nil
}

func (h *handler) attach(c *reactor.Conn, st *connState, frame protocol.Frame) error {
	args, err := protocol.DecodeArgs(frame.Body)
	if err != nil || len(args) != 2 {
		writeResponse(c, ErrorResponse(terrors.InvalidArguments(protocol.CmdChannelNotify, 2, len(args))))
		return fmt.Errorf("%w: bad notify handshake", ErrProtocol)
	}

	n := &connNotifier{conn: c, user: args[0]}
	st.mu.Lock()
	st.kind = channelNotify
	st.notifier = n
	st.mu.Unlock()

	// Acknowledge first so queued invites arrive after the OK.
	if err := writeResponse(c, Response{Status: protocol.StatusOK}); err != nil {
		return err
	}
	if err := h.engine.AttachNotifier(args[0], args[1], n); err != nil {
		writeResponse(c, ErrorResponse(err))
		return err
	}
	h.logger.Debug("notify channel attached", "user", args[0], "conn", c.ID())
	return nil
}

func (h *handler) Closed(c *reactor.Conn) {
	st, _ := c.Context().(*connState)
	if st != nil {
		st.mu.Lock()
		kind, n := st.kind, st.notifier
		st.mu.Unlock()
		if kind == channelNotify {
			if n != nil {
				h.engine.DetachNotifier(n.user, n)
			}
			return
		}
	}
	h.dispatcher.Disconnect(h.ctx, session.ConnID(c.ID()))
}

func writeResponse(c *reactor.Conn, r Response) error {
	return c.WriteFrame(int32(r.Status), r.Body)
}

// connNotifier pushes invites on a notify channel.
type connNotifier struct {
	conn *reactor.Conn
	user string
}

func (n *connNotifier) NotifyInvite(document, inviter string) error {
	if n.conn.Closing() {
		return reactor.ErrConnClosed
	}
	err := n.conn.WriteFrame(int32(protocol.StatusInvite), protocol.EncodeArgs(document, inviter))
	if err != nil {
		n.conn.Close()
	}
	return err
}
