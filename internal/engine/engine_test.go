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

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "turing/internal/errors"
	"turing/internal/notify"
	"turing/internal/protocol"
	"turing/internal/session"
	"turing/internal/storage"
)

// flakyStore fails the first CreateDocument.
type flakyStore struct {
	storage.Store
	mu     sync.Mutex
	failed bool
}

func (s *flakyStore) CreateDocument(doc string, sections int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.failed {
		s.failed = true
		return errors.New("no space left on device")
	}
	return s.Store.CreateDocument(doc, sections)
}

type recordingNotifier struct {
	mu      sync.Mutex
	invites []string
	fail    bool
}

func (n *recordingNotifier) NotifyInvite(document, inviter string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("channel closed")
	}
	n.invites = append(n.invites, document+" from "+inviter)
	return nil
}

func (n *recordingNotifier) received() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.invites...)
}

func assertStatus(t *testing.T, err error, want protocol.Status) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, terrors.StatusOf(err), "got %v", err)
}

// setup returns an engine with alice (conn 1) and bob (conn 2) registered
// and logged in.
func setup(t *testing.T) *Engine {
	t.Helper()
	e := New(Options{})
	require.NoError(t, e.Register("alice", "pw1"))
	require.NoError(t, e.Register("bob", "pw2"))
	_, err := e.Login(1, "alice", "pw1")
	require.NoError(t, err)
	_, err = e.Login(2, "bob", "pw2")
	require.NoError(t, err)
	return e
}

func TestRegisterTwice(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Register("alice", "pw1"))
	assertStatus(t, e.Register("alice", "pw2"), protocol.StatusUsernameAlreadyTaken)
}

func TestRegisterConcurrent(t *testing.T) {
	e := New(Options{})
	const n = 16
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Register("alice", "pw")
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assertStatus(t, err, protocol.StatusUsernameAlreadyTaken)
	}
	assert.Equal(t, 1, ok)
}

func TestLoginPreconditions(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Register("alice", "pw1"))

	_, err := e.Login(1, "carol", "pw")
	assertStatus(t, err, protocol.StatusUserNotRegistered)
	_, err = e.Login(1, "alice", "wrong")
	assertStatus(t, err, protocol.StatusPasswordIncorrect)

	res, err := e.Login(1, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Empty(t, res.Invites)

	// Single session per user.
	_, err = e.Login(2, "alice", "pw1")
	assertStatus(t, err, protocol.StatusUserAlreadyOnline)
	// A bound connection cannot log in again, whatever the user.
	_, err = e.Login(1, "carol", "pw")
	assertStatus(t, err, protocol.StatusUserAlreadyOnline)
}

func TestLoginConcurrent(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Register("alice", "pw1"))

	const n = 8
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(conn session.ConnID) {
			defer wg.Done()
			_, err := e.Login(conn, "alice", "pw1")
			errs <- err
		}(session.ConnID(i + 1))
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assertStatus(t, err, protocol.StatusUserAlreadyOnline)
	}
	assert.Equal(t, 1, ok)
}

func TestLogout(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	require.NoError(t, e.Logout(ctx, 1))
	assertStatus(t, e.Logout(ctx, 1), protocol.StatusUserNotOnline)

	_, err := e.Login(3, "alice", "pw1")
	require.NoError(t, err, "user can log in again from another connection")
}

func TestCreateDuplicate(t *testing.T) {
	e := setup(t)

	addr, err := e.Create(1, "doc1", 3)
	require.NoError(t, err)
	assert.True(t, addr.IsMulticast())
	assert.False(t, notify.IsReserved(addr))

	_, err = e.Create(2, "doc1", 5)
	assertStatus(t, err, protocol.StatusDocumentAlreadyExists)

	_, err = e.Create(9, "doc2", 1)
	assertStatus(t, err, protocol.StatusUserNotOnline)
}

func TestCreateAddressExhausted(t *testing.T) {
	alloc := notify.NewAllocatorWithRanges(notify.ParseRange("239.1.1.1", "239.1.1.2"), nil, 1)
	e := New(Options{Allocator: alloc})
	require.NoError(t, e.Register("alice", "pw"))
	_, err := e.Login(1, "alice", "pw")
	require.NoError(t, err)

	a, err := e.Create(1, "one", 1)
	require.NoError(t, err)
	b, err := e.Create(1, "two", 1)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = e.Create(1, "three", 1)
	assertStatus(t, err, protocol.StatusNotificationAddressExhausted)

	docs, err := e.List(1)
	require.NoError(t, err)
	assert.Len(t, docs, 2, "a failed allocation leaves no document behind")
}

func TestCreateStoreFailureReleasesAddress(t *testing.T) {
	alloc := notify.NewAllocatorWithRanges(notify.ParseRange("239.1.1.1", "239.1.1.1"), nil, 1)
	e := New(Options{Allocator: alloc, Store: &flakyStore{Store: storage.NewMemoryStore()}})
	require.NoError(t, e.Register("alice", "pw"))
	_, err := e.Login(1, "alice", "pw")
	require.NoError(t, err)

	_, err = e.Create(1, "doc", 1)
	assertStatus(t, err, protocol.StatusInternalError)
	assert.Equal(t, 0, e.Groups().Assigned)

	// The only address is free again and the name can be reused.
	addr, err := e.Create(1, "doc", 1)
	require.NoError(t, err)
	assert.Equal(t, "239.1.1.1", addr.String())
	assert.Equal(t, notify.AllocatorStats{Usable: 1, Assigned: 1}, e.Groups())
}

func TestEditShareEndEdit(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	_, err := e.Create(1, "doc1", 3)
	require.NoError(t, err)

	_, err = e.Edit(ctx, 2, "doc1", 1)
	assertStatus(t, err, protocol.StatusUserNotAllowedToEdit)

	require.NoError(t, e.Share(1, "doc1", "bob"))

	res, err := e.Edit(ctx, 2, "doc1", 1)
	require.NoError(t, err)
	assert.Empty(t, res.Content)

	_, err = e.Edit(ctx, 1, "doc1", 1)
	assertStatus(t, err, protocol.StatusSectionAlreadyInEditingMode)
	assert.Equal(t, "bob", terrors.DetailOf(err))

	view, err := e.ShowSection(1, "doc1", 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", view.Editor)

	assertStatus(t, e.EndEdit(ctx, 1, "doc1", 1, nil), protocol.StatusSectionEditedBySomeoneElse)
	require.NoError(t, e.EndEdit(ctx, 2, "doc1", 1, []byte("hello world")))
	assertStatus(t, e.EndEdit(ctx, 2, "doc1", 1, nil), protocol.StatusSectionNotInEditingMode)

	res, err = e.Edit(ctx, 1, "doc1", 1)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(res.Content))
}

func TestEditPreconditionOrder(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.Create(1, "doc1", 2)
	require.NoError(t, err)

	_, err = e.Edit(ctx, 9, "missing", 99)
	assertStatus(t, err, protocol.StatusUserNotOnline)
	_, err = e.Edit(ctx, 2, "missing", 99)
	assertStatus(t, err, protocol.StatusDocumentNotExist)
	_, err = e.Edit(ctx, 2, "doc1", 99)
	assertStatus(t, err, protocol.StatusUserNotAllowedToEdit)
	_, err = e.Edit(ctx, 1, "doc1", 2)
	assertStatus(t, err, protocol.StatusSectionNotExist)

	_, err = e.Edit(ctx, 1, "doc1", 0)
	require.NoError(t, err)
	_, err = e.Edit(ctx, 1, "doc1", 1)
	assertStatus(t, err, protocol.StatusUserAlreadyEditingAnotherSection)
	assert.Equal(t, "doc1#0", terrors.DetailOf(err))
}

func TestShareErrors(t *testing.T) {
	e := setup(t)
	_, err := e.Create(1, "doc1", 1)
	require.NoError(t, err)

	assertStatus(t, e.Share(9, "doc1", "bob"), protocol.StatusUserNotOnline)
	assertStatus(t, e.Share(1, "nope", "bob"), protocol.StatusDocumentNotExist)
	assertStatus(t, e.Share(2, "doc1", "alice"), protocol.StatusUserNotCreator)
	assertStatus(t, e.Share(1, "doc1", "alice"), protocol.StatusUserIsDest)
	assertStatus(t, e.Share(1, "doc1", "carol"), protocol.StatusDestNotRegistered)
	require.NoError(t, e.Share(1, "doc1", "bob"))
	assertStatus(t, e.Share(1, "doc1", "bob"), protocol.StatusDestAlreadyContributor)
}

func TestShowPermissions(t *testing.T) {
	e := setup(t)
	_, err := e.Create(1, "doc1", 2)
	require.NoError(t, err)

	_, err = e.ShowDocument(2, "doc1")
	assertStatus(t, err, protocol.StatusPermissionDenied)
	_, err = e.ShowSection(2, "doc1", 0)
	assertStatus(t, err, protocol.StatusPermissionDenied)
	_, err = e.ShowSection(1, "doc1", 5)
	assertStatus(t, err, protocol.StatusSectionNotExist)

	views, err := e.ShowDocument(1, "doc1")
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestListSorted(t *testing.T) {
	e := setup(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := e.Create(1, name, 1)
		require.NoError(t, err)
	}
	_, err := e.Create(2, "bobs", 4)
	require.NoError(t, err)
	require.NoError(t, e.Share(2, "bobs", "alice"))

	docs, err := e.List(1)
	require.NoError(t, err)
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"alpha", "bobs", "mid", "zeta"}, names)
	assert.Equal(t, "bob", docs[1].Creator)
	assert.Equal(t, 4, docs[1].Sections)
	assert.Equal(t, []string{"alice"}, docs[1].Collaborators)
}

func TestPendingInvites(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.Register("carol", "pw3"))
	_, err := e.Create(1, "doc1", 1)
	require.NoError(t, err)
	_, err = e.Create(1, "doc2", 1)
	require.NoError(t, err)

	require.NoError(t, e.Share(1, "doc1", "carol"))
	require.NoError(t, e.Share(1, "doc2", "carol"))

	res, err := e.Login(3, "carol", "pw3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, res.Invites)

	require.NoError(t, e.Logout(context.Background(), 3))
	res, err = e.Login(3, "carol", "pw3")
	require.NoError(t, err)
	assert.Empty(t, res.Invites, "pending invites are delivered once")
}

func TestLiveInvites(t *testing.T) {
	e := setup(t)
	_, err := e.Create(1, "doc1", 1)
	require.NoError(t, err)
	_, err = e.Create(1, "doc2", 1)
	require.NoError(t, err)

	// Queued until bob's channel attaches.
	require.NoError(t, e.Share(1, "doc1", "bob"))

	bobSession, ok := e.Presence().Lookup(2)
	require.True(t, ok)
	n := &recordingNotifier{}
	assertStatus(t, e.AttachNotifier("bob", "bad-token", n), protocol.StatusInvalidSessionToken)
	require.NoError(t, e.AttachNotifier("bob", bobSession.Token, n))
	assert.Equal(t, []string{"doc1 from alice"}, n.received())

	// Pushed right away once attached.
	require.NoError(t, e.Share(1, "doc2", "bob"))
	assert.Equal(t, []string{"doc1 from alice", "doc2 from alice"}, n.received())
}

func TestUndeliveredInvitesBecomePending(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.Create(1, "doc1", 1)
	require.NoError(t, err)

	bobSession, _ := e.Presence().Lookup(2)
	n := &recordingNotifier{fail: true}
	require.NoError(t, e.AttachNotifier("bob", bobSession.Token, n))
	require.NoError(t, e.Share(1, "doc1", "bob"))
	assert.Empty(t, n.received())

	require.NoError(t, e.Logout(ctx, 2))
	res, err := e.Login(2, "bob", "pw2")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, res.Invites)
}

func TestSendReceive(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.Create(1, "doc1", 2)
	require.NoError(t, err)
	require.NoError(t, e.Share(1, "doc1", "bob"))

	assertStatus(t, e.Send(ctx, 1, "hi"), protocol.StatusUserNotEditing)
	_, err = e.Receive(1)
	assertStatus(t, err, protocol.StatusUserNotEditing)

	_, err = e.Edit(ctx, 1, "doc1", 0)
	require.NoError(t, err)
	_, err = e.Edit(ctx, 2, "doc1", 1)
	require.NoError(t, err)

	require.NoError(t, e.Send(ctx, 2, "hello alice, with spaces"))

	msgs, err := e.Receive(1)
	require.NoError(t, err)
	// Group members hear their own events too.
	require.Len(t, msgs, 3)
	assert.Equal(t, notify.KindJoined, msgs[0].Kind)
	assert.Equal(t, "alice", msgs[0].From)
	assert.Equal(t, notify.KindJoined, msgs[1].Kind)
	assert.Equal(t, "bob", msgs[1].From)
	assert.Equal(t, notify.KindChat, msgs[2].Kind)
	assert.Equal(t, "hello alice, with spaces", msgs[2].Text)

	msgs, err = e.Receive(1)
	require.NoError(t, err)
	assert.Empty(t, msgs, "receive drains the mailbox")
}

func TestDisconnectReleasesLock(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, err := e.Create(1, "doc1", 1)
	require.NoError(t, err)
	require.NoError(t, e.Share(1, "doc1", "bob"))

	_, err = e.Edit(ctx, 2, "doc1", 0)
	require.NoError(t, err)
	_, err = e.Edit(ctx, 1, "doc1", 0)
	assertStatus(t, err, protocol.StatusSectionAlreadyInEditingMode)

	e.Disconnect(ctx, 2)
	e.Disconnect(ctx, 2)
	assert.Equal(t, 1, e.Presence().Len())

	_, err = e.Edit(ctx, 1, "doc1", 0)
	require.NoError(t, err, "lock is released when the editor disconnects")

	e.Disconnect(ctx, 77)
	assert.Equal(t, 1, e.Presence().Len())
}

func TestNormalizedNames(t *testing.T) {
	e := New(Options{})
	require.NoError(t, e.Register("rené", "pw"))
	assertStatus(t, e.Register("rené", "pw"), protocol.StatusUsernameAlreadyTaken)

	_, err := e.Login(1, "rené", "pw")
	require.NoError(t, err)
	_, err = e.Create(1, "café", 1)
	require.NoError(t, err)
	_, err = e.ShowSection(1, "café", 0)
	require.NoError(t, err)
}

func TestConcurrentEditExclusive(t *testing.T) {
	e := New(Options{})
	ctx := context.Background()
	const users = 8
	require.NoError(t, e.Register("owner", "pw"))
	_, err := e.Login(100, "owner", "pw")
	require.NoError(t, err)
	_, err = e.Create(100, "shared", 1)
	require.NoError(t, err)

	for i := 0; i < users; i++ {
		name := "user" + strings.Repeat("x", i)
		require.NoError(t, e.Register(name, "pw"))
		require.NoError(t, e.Share(100, "shared", name))
		_, err := e.Login(session.ConnID(i+1), name, "pw")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(conn session.ConnID) {
			defer wg.Done()
			_, err := e.Edit(ctx, conn, "shared", 0)
			results <- err
		}(session.ConnID(i + 1))
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assertStatus(t, err, protocol.StatusSectionAlreadyInEditingMode)
	}
	assert.Equal(t, 1, ok)
}
