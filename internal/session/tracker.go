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
Package session tracks which user is logged in on which connection.

The Tracker keeps two maps, connection to session and username to session,
updated together under one lock so that a user is online exactly when some
connection maps to them. A username has at most one live session: a second
login while the first is active fails with ErrUserOnline.

Each session carries its edit target and the notification subscription of
the document being edited, and optionally a Notifier bound by the client's
out-of-band invite channel.
*/
package session

import (
	"crypto/subtle"
	"errors"
	"sync"
)

var (
	// ErrConnectionBound is returned when a connection already has a session.
	ErrConnectionBound = errors.New("connection already logged in")
	// ErrUserOnline is returned when the user has a session elsewhere.
	ErrUserOnline = errors.New("user already online")
	// ErrInvalidToken is returned when a notifier presents a wrong token.
	ErrInvalidToken = errors.New("invalid session token")
)

// Tracker is the presence table.
type Tracker struct {
	mu     sync.RWMutex
	byConn map[ConnID]*Session
	byUser map[string]*Session
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byConn: make(map[ConnID]*Session),
		byUser: make(map[string]*Session),
	}
}

// MarkOnline binds username to conn.
func (t *Tracker) MarkOnline(conn ConnID, username string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byConn[conn]; ok {
		return nil, ErrConnectionBound
	}
	if _, ok := t.byUser[username]; ok {
		return nil, ErrUserOnline
	}
	s := newSession(conn, username)
	t.byConn[conn] = s
	t.byUser[username] = s
	return s, nil
}

// MarkOffline removes the session of conn. It returns false, and changes
// nothing, when conn has no session.
func (t *Tracker) MarkOffline(conn ConnID) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byConn[conn]
	if !ok {
		return nil, false
	}
	delete(t.byConn, conn)
	if t.byUser[s.Username] == s {
		delete(t.byUser, s.Username)
	}
	return s, true
}

// IsUserOnline reports whether username has a session.
func (t *Tracker) IsUserOnline(username string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byUser[username]
	return ok
}

// Lookup returns the session of conn.
func (t *Tracker) Lookup(conn ConnID) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byConn[conn]
	return s, ok
}

// LookupUser returns the session of username.
func (t *Tracker) LookupUser(username string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byUser[username]
	return s, ok
}

// Len returns the number of online users.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byConn)
}

// Online returns every live session.
func (t *Tracker) Online() []*Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Session, 0, len(t.byConn))
	for _, s := range t.byConn {
		out = append(out, s)
	}
	return out
}

// AttachNotifier binds n to the session of username after checking token.
// A previously attached notifier is replaced and returned.
func (t *Tracker) AttachNotifier(username, token string, n Notifier) (*Session, Notifier, error) {
	s, ok := t.LookupUser(username)
	if !ok || subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return nil, nil, ErrInvalidToken
	}
	return s, s.setNotifier(n), nil
}

// DetachNotifier unbinds n from the session of username if it is still the
// attached one.
func (t *Tracker) DetachNotifier(username string, n Notifier) bool {
	s, ok := t.LookupUser(username)
	if !ok {
		return false
	}
	return s.clearNotifier(n)
}
