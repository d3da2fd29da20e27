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

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"turing/internal/notify"
)

// ConnID identifies a client connection for the lifetime of the server.
type ConnID uint64

// Notifier delivers invitations to a user over the out-of-band channel.
type Notifier interface {
	NotifyInvite(document, inviter string) error
}

// EditTarget names the section a session is editing.
type EditTarget struct {
	Document string
	Section  int
}

func (t EditTarget) String() string {
	return fmt.Sprintf("%s#%d", t.Document, t.Section)
}

// Session is the presence entry binding one connection to one user.
type Session struct {
	Conn     ConnID
	Username string
	Token    string
	Started  time.Time

	mu       sync.Mutex
	editing  bool
	target   EditTarget
	sub      *notify.Subscription
	notifier Notifier
}

func newSession(conn ConnID, username string) *Session {
	return &Session{
		Conn:     conn,
		Username: username,
		Token:    uuid.NewString(),
		Started:  time.Now(),
	}
}

// Editing returns the section being edited, if any.
func (s *Session) Editing() (EditTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.editing
}

// BeginEdit records the edit target and its group subscription. It fails
// if the session already edits a section.
func (s *Session) BeginEdit(target EditTarget, sub *notify.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing {
		return false
	}
	s.editing = true
	s.target = target
	s.sub = sub
	return true
}

// EndEdit clears the edit target and returns it with its subscription.
func (s *Session) EndEdit() (EditTarget, *notify.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editing {
		return EditTarget{}, nil, false
	}
	target, sub := s.target, s.sub
	s.editing = false
	s.target = EditTarget{}
	s.sub = nil
	return target, sub, true
}

// Subscription returns the group subscription of the current edit.
func (s *Session) Subscription() *notify.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// Notifier returns the attached invite notifier, or nil.
func (s *Session) Notifier() Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifier
}

func (s *Session) setNotifier(n Notifier) Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.notifier
	s.notifier = n
	return prev
}

func (s *Session) clearNotifier(n Notifier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier != n {
		return false
	}
	s.notifier = nil
	return true
}
