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

package registry

import (
	"crypto/subtle"
	"errors"
	"sort"
	"sync"
)

// ErrUsernameTaken is returned when registering an existing username.
var ErrUsernameTaken = errors.New("username already taken")

// User is a registered account. The username and password never change;
// the document sets are guarded by the user's own mutex because several
// workers may share documents with the same user at once.
type User struct {
	name     string
	password string

	mu       sync.Mutex
	editable map[string]struct{}
	pending  []string
	live     []string
}

func newUser(name, password string) *User {
	return &User{
		name:     name,
		password: password,
		editable: make(map[string]struct{}),
	}
}

// Name returns the normalised username.
func (u *User) Name() string {
	return u.name
}

// CheckPassword compares password with the registered one.
func (u *User) CheckPassword(password string) bool {
	return subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) == 1
}

// CanEdit reports whether doc is in the user's editable set.
func (u *User) CanEdit(doc string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.editable[doc]
	return ok
}

// EditableDocuments returns the editable set sorted by name.
func (u *User) EditableDocuments() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	docs := make([]string, 0, len(u.editable))
	for d := range u.editable {
		docs = append(docs, d)
	}
	sort.Strings(docs)
	return docs
}

func (u *User) addEditable(doc string) {
	u.mu.Lock()
	u.editable[doc] = struct{}{}
	u.mu.Unlock()
}

// AddPendingInvite records an invitation received while offline.
func (u *User) AddPendingInvite(doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = appendUnique(u.pending, doc)
}

// DrainPendingInvites returns and clears the offline invitations.
func (u *User) DrainPendingInvites() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := u.pending
	u.pending = nil
	return out
}

// AddLiveInvite queues an invitation received while online for real-time
// delivery.
func (u *User) AddLiveInvite(doc string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.live = appendUnique(u.live, doc)
}

// DrainLiveInvites returns and clears the queued live invitations.
func (u *User) DrainLiveInvites() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := u.live
	u.live = nil
	return out
}

// DemoteLiveInvites moves undelivered live invitations to the pending set,
// used when the user goes offline before they were pushed.
func (u *User) DemoteLiveInvites() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, doc := range u.live {
		u.pending = appendUnique(u.pending, doc)
	}
	u.live = nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// UserRegistry maps usernames to users.
type UserRegistry struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewUserRegistry creates an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{users: make(map[string]*User)}
}

// Register inserts a new user if the name is free. The check and the insert
// happen under one write lock.
func (r *UserRegistry) Register(name, password string) (*User, error) {
	name = Normalize(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[name]; exists {
		return nil, ErrUsernameTaken
	}
	u := newUser(name, password)
	r.users[name] = u
	return u, nil
}

// Lookup returns the user registered under name.
func (r *UserRegistry) Lookup(name string) (*User, bool) {
	name = Normalize(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[name]
	return u, ok
}

// Len returns the number of registered users.
func (r *UserRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
