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
Package notify implements the per-document notification groups.

Every document owns one group address handed out by the Allocator. Editors
subscribe to the group of the document they are editing; chat messages and
"started/stopped editing" events are published to it.

Backends:
=========

  - local: in-process fan-out, used by tests and single-host deployments
  - multicast: UDP multicast on the group address itself
  - redis: Redis pub/sub, one channel per group address

All backends deliver into a Subscription mailbox that keeps the most recent
messages and drops the oldest once full. RECEIVE drains the mailbox.
*/
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
)

// DefaultMailboxSize is the number of messages a subscription keeps.
const DefaultMailboxSize = 256

// ErrClosed is returned by a closed bus.
var ErrClosed = errors.New("notification bus closed")

// Bus publishes messages to groups and subscribes to them.
type Bus interface {
	Publish(ctx context.Context, group netip.Addr, m Message) error
	Subscribe(ctx context.Context, group netip.Addr) (*Subscription, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend     string // local, multicast or redis
	Port        int    // multicast UDP port
	Interface   string // multicast interface name, empty for the default
	RedisAddr   string
	MailboxSize int
}

// Open creates the bus named by opts.Backend.
func Open(ctx context.Context, opts Options) (Bus, error) {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	switch opts.Backend {
	case "", "local":
		return NewLocalBus(opts.MailboxSize), nil
	case "multicast":
		return NewMulticastBus(opts.Port, opts.Interface, opts.MailboxSize)
	case "redis":
		return NewRedisBus(ctx, opts.RedisAddr, opts.MailboxSize)
	default:
		return nil, fmt.Errorf("unknown notification backend: %s", opts.Backend)
	}
}

// Subscription is a bounded mailbox of messages received on one group.
type Subscription struct {
	group netip.Addr

	mu      sync.Mutex
	buf     []Message
	limit   int
	dropped int
	closed  bool

	closeOnce sync.Once
	onClose   func() error
	closeErr  error
}

func newSubscription(group netip.Addr, limit int, onClose func() error) *Subscription {
	return &Subscription{group: group, limit: limit, onClose: onClose}
}

// Group returns the subscribed group address.
func (s *Subscription) Group() netip.Addr {
	return s.group
}

func (s *Subscription) deliver(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.buf) >= s.limit {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, m)
}

// Drain returns and clears the buffered messages, oldest first.
func (s *Subscription) Drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buf
	s.buf = nil
	return out
}

// Dropped returns how many messages were discarded because the mailbox
// was full.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.buf = nil
		s.mu.Unlock()
		if s.onClose != nil {
			s.closeErr = s.onClose()
		}
	})
	return s.closeErr
}

// LocalBus delivers messages between subscriptions of one process.
type LocalBus struct {
	mu     sync.RWMutex
	groups map[netip.Addr]map[*Subscription]struct{}
	limit  int
	closed bool
}

// NewLocalBus creates an in-process bus.
func NewLocalBus(mailboxSize int) *LocalBus {
	if mailboxSize <= 0 {
		mailboxSize = DefaultMailboxSize
	}
	return &LocalBus{groups: make(map[netip.Addr]map[*Subscription]struct{}), limit: mailboxSize}
}

// Publish delivers m to every subscriber of group, including the sender's
// own subscription.
func (b *LocalBus) Publish(_ context.Context, group netip.Addr, m Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	m.Group = group
	for s := range b.groups[group] {
		s.deliver(m)
	}
	return nil
}

// Subscribe joins group.
func (b *LocalBus) Subscribe(_ context.Context, group netip.Addr) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	var sub *Subscription
	sub = newSubscription(group, b.limit, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if members := b.groups[group]; members != nil {
			delete(members, sub)
			if len(members) == 0 {
				delete(b.groups, group)
			}
		}
		return nil
	})
	if b.groups[group] == nil {
		b.groups[group] = make(map[*Subscription]struct{})
	}
	b.groups[group][sub] = struct{}{}
	return sub, nil
}

// Close rejects further use of the bus.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.groups = make(map[netip.Addr]map[*Subscription]struct{})
	return nil
}
