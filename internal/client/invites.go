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

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	terrors "turing/internal/errors"
	"turing/internal/logging"
	"turing/internal/protocol"
)

// Invite is a share pushed by the server while the user is online.
type Invite struct {
	Document string
	Inviter  string
}

// InviteListener keeps a notify channel open for one session and
// reconnects with exponential backoff when it drops.
type InviteListener struct {
	addr    string
	user    string
	token   string
	timeout time.Duration
	logger  *logging.Logger

	// MaxInterval caps the reconnect delay.
	MaxInterval time.Duration
}

// NewInviteListener creates a listener for the session of user.
func NewInviteListener(addr, user, token string) *InviteListener {
	return &InviteListener{
		addr:        addr,
		user:        user,
		token:       token,
		timeout:     DefaultTimeout,
		logger:      logging.NewLogger("invites"),
		MaxInterval: 30 * time.Second,
	}
}

// Listen calls handle for every invite until ctx is done or the session
// ends. It returns nil on cancellation and the server's error when the
// session token is no longer valid.
func (l *InviteListener) Listen(ctx context.Context, handle func(Invite)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = l.MaxInterval
	b.MaxElapsedTime = 0

	op := func() error {
		err := l.session(ctx, b, handle)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if terrors.Is(err, protocol.StatusInvalidSessionToken) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		l.logger.Debug("invite channel lost, reconnecting", "user", l.user, "wait", wait.String(), "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// session runs one notify channel until it fails.
func (l *InviteListener) session(ctx context.Context, b backoff.BackOff, handle func(Invite)) error {
	conn, err := dialChannel(ctx, l.addr, l.timeout, protocol.CmdChannelNotify, l.user, l.token)
	if err != nil {
		return err
	}
	defer conn.Close()
	b.Reset()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		f, err := protocol.ReadFrame(conn)
		if err != nil {
			return fmt.Errorf("invite channel: %w", err)
		}
		if f.Status() != protocol.StatusInvite {
			if err := statusError(f); err != nil {
				return err
			}
			continue
		}
		args, err := protocol.DecodeArgs(f.Body)
		if err != nil || len(args) != 2 {
			return fmt.Errorf("invite channel: malformed invite")
		}
		handle(Invite{Document: args[0], Inviter: args[1]})
	}
}
