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
Package engine implements the Turing task layer: one method per request
command, run on a worker goroutine against the shared registries.

Precondition Order:
===================

Every command checks its preconditions in the same order, so the status a
client receives for a request that breaks several rules is deterministic:

 1. online: the connection has a session
 2. registered: the named users exist
 3. exists: the document and section exist
 4. permission: the caller may act on the document
 5. state: lock and edit state allow the operation

Arguments are validated by the dispatcher (Limits) before a method is
called. Every failure is a *errors.Error carrying the response status.

Invitations:
============

Sharing a document with an offline user records a pending invite that the
next LOGIN returns. Sharing with an online user pushes the invite through
the notifier bound by the user's notification channel, or queues it as a
live invite until the channel attaches. Invites still queued at logout
become pending again.
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	terrors "turing/internal/errors"
	"turing/internal/logging"
	"turing/internal/notify"
	"turing/internal/protocol"
	"turing/internal/registry"
	"turing/internal/session"
	"turing/internal/storage"
)

// Options wires the engine to its collaborators. Nil fields get in-memory
// defaults.
type Options struct {
	Users     *registry.UserRegistry
	Documents *registry.DocumentRegistry
	Presence  *session.Tracker
	Allocator *notify.Allocator
	Bus       notify.Bus
	Store     storage.Store
	Limits    Limits
}

// Engine executes requests.
type Engine struct {
	users    *registry.UserRegistry
	docs     *registry.DocumentRegistry
	presence *session.Tracker
	alloc    *notify.Allocator
	bus      notify.Bus
	store    storage.Store
	limits   Limits
	logger   *logging.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	e := &Engine{
		users:    opts.Users,
		docs:     opts.Documents,
		presence: opts.Presence,
		alloc:    opts.Allocator,
		bus:      opts.Bus,
		store:    opts.Store,
		limits:   opts.Limits,
		logger:   logging.NewLogger("engine"),
	}
	if e.users == nil {
		e.users = registry.NewUserRegistry()
	}
	if e.docs == nil {
		e.docs = registry.NewDocumentRegistry()
	}
	if e.presence == nil {
		e.presence = session.NewTracker()
	}
	if e.alloc == nil {
		e.alloc = notify.NewAllocator()
	}
	if e.bus == nil {
		e.bus = notify.NewLocalBus(notify.DefaultMailboxSize)
	}
	if e.store == nil {
		e.store = storage.NewMemoryStore()
	}
	if e.limits == (Limits{}) {
		e.limits = DefaultLimits()
	}
	return e
}

// Limits returns the argument limits.
func (e *Engine) Limits() Limits { return e.limits }

// Presence returns the session tracker.
func (e *Engine) Presence() *session.Tracker { return e.presence }

// Groups describes the notification address space.
func (e *Engine) Groups() notify.AllocatorStats { return e.alloc.Stats() }

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token   string
	Invites []string // documents shared while the user was offline
}

// SectionView is the content of one section and its current editor.
type SectionView struct {
	Content []byte
	Editor  string
}

// DocumentInfo summarises a document for LIST.
type DocumentInfo struct {
	Name          string
	Creator       string
	Sections      int
	Collaborators []string
}

// EditResult is returned when an edit starts.
type EditResult struct {
	Content []byte
	Address netip.Addr
}

// ============================================================================
// Precondition helpers
// ============================================================================

func (e *Engine) online(conn session.ConnID) (*session.Session, *registry.User, error) {
	s, ok := e.presence.Lookup(conn)
	if !ok {
		return nil, nil, terrors.New(protocol.StatusUserNotOnline)
	}
	u, ok := e.users.Lookup(s.Username)
	if !ok {
		return nil, nil, terrors.New(protocol.StatusUserNotRegistered)
	}
	return s, u, nil
}

func (e *Engine) document(name string) (*registry.Document, error) {
	doc, ok := e.docs.Lookup(name)
	if !ok {
		return nil, terrors.DocumentNotExist(registry.Normalize(name))
	}
	return doc, nil
}

func sectionExists(doc *registry.Document, index int) error {
	if !doc.Sections().Valid(index) {
		return terrors.SectionNotExist(index)
	}
	return nil
}

// ============================================================================
// Accounts
// ============================================================================

// Register creates an account.
func (e *Engine) Register(username, password string) error {
	if _, err := e.users.Register(username, password); err != nil {
		if errors.Is(err, registry.ErrUsernameTaken) {
			return terrors.New(protocol.StatusUsernameAlreadyTaken)
		}
		return terrors.Internal(err)
	}
	e.logger.Info("user registered", "user", registry.Normalize(username))
	return nil
}

// Login binds username to conn.
func (e *Engine) Login(conn session.ConnID, username, password string) (*LoginResult, error) {
	if _, ok := e.presence.Lookup(conn); ok {
		return nil, terrors.New(protocol.StatusUserAlreadyOnline)
	}
	u, ok := e.users.Lookup(username)
	if !ok {
		return nil, terrors.New(protocol.StatusUserNotRegistered)
	}
	if !u.CheckPassword(password) {
		return nil, terrors.New(protocol.StatusPasswordIncorrect)
	}
	s, err := e.presence.MarkOnline(conn, u.Name())
	if err != nil {
		return nil, terrors.New(protocol.StatusUserAlreadyOnline)
	}

	e.logger.Info("user logged in", "user", u.Name(), "conn", conn)
	return &LoginResult{Token: s.Token, Invites: u.DrainPendingInvites()}, nil
}

// Logout ends the session of conn, releasing its section lock.
func (e *Engine) Logout(ctx context.Context, conn session.ConnID) error {
	if !e.cleanup(ctx, conn) {
		return terrors.New(protocol.StatusUserNotOnline)
	}
	return nil
}

// Disconnect releases everything conn holds. It is safe to call for a
// connection that never logged in or was already cleaned up.
func (e *Engine) Disconnect(ctx context.Context, conn session.ConnID) {
	e.cleanup(ctx, conn)
}

func (e *Engine) cleanup(ctx context.Context, conn session.ConnID) bool {
	s, ok := e.presence.MarkOffline(conn)
	if !ok {
		return false
	}

	if target, sub, editing := s.EndEdit(); editing {
		if doc, ok := e.docs.Lookup(target.Document); ok {
			if err := doc.Sections().Unlock(target.Section, s.Username); err != nil {
				e.logger.Warn("releasing section on logout", "user", s.Username, "section", target, "error", err)
			}
			e.publish(ctx, doc, notify.KindLeft, s.Username, "")
		}
		if sub != nil {
			sub.Close()
		}
	}
	if u, ok := e.users.Lookup(s.Username); ok {
		u.DemoteLiveInvites()
	}

	e.logger.Info("user logged out", "user", s.Username, "conn", conn)
	return true
}

// AttachNotifier binds the invite channel of a logged-in user and flushes
// the invites queued while it was detached.
func (e *Engine) AttachNotifier(username, token string, n session.Notifier) error {
	s, _, err := e.presence.AttachNotifier(registry.Normalize(username), token, n)
	if err != nil {
		return terrors.New(protocol.StatusInvalidSessionToken)
	}
	e.flushInvites(s)
	return nil
}

// DetachNotifier unbinds n from username's session.
func (e *Engine) DetachNotifier(username string, n session.Notifier) {
	e.presence.DetachNotifier(registry.Normalize(username), n)
}

func (e *Engine) flushInvites(s *session.Session) {
	n := s.Notifier()
	if n == nil {
		return
	}
	u, ok := e.users.Lookup(s.Username)
	if !ok {
		return
	}
	for _, name := range u.DrainLiveInvites() {
		inviter := ""
		if doc, ok := e.docs.Lookup(name); ok {
			inviter = doc.Creator()
		}
		if err := n.NotifyInvite(name, inviter); err != nil {
			e.logger.Debug("invite push failed, queued again", "user", s.Username, "document", name, "error", err)
			u.AddLiveInvite(name)
		}
	}
}

// ============================================================================
// Documents
// ============================================================================

// Create registers a document of n empty sections and returns its
// notification address.
func (e *Engine) Create(conn session.ConnID, name string, sections int) (netip.Addr, error) {
	_, u, err := e.online(conn)
	if err != nil {
		return netip.Addr{}, err
	}
	name = registry.Normalize(name)

	doc, err := e.docs.Create(name, u, sections, func() (netip.Addr, error) {
		addr, err := e.alloc.Allocate()
		if err != nil {
			return netip.Addr{}, err
		}
		if err := e.store.CreateDocument(name, sections); err != nil {
			e.alloc.Release(addr)
			return netip.Addr{}, err
		}
		return addr, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrDocumentExists):
		return netip.Addr{}, terrors.DocumentAlreadyExists(name)
	case errors.Is(err, notify.ErrExhausted):
		return netip.Addr{}, terrors.New(protocol.StatusNotificationAddressExhausted)
	default:
		return netip.Addr{}, terrors.Internal(err)
	}

	e.logger.Info("document created", "document", name, "creator", u.Name(), "sections", sections, "group", doc.Address())
	return doc.Address(), nil
}

// Share makes dest a collaborator of the document.
func (e *Engine) Share(conn session.ConnID, name, destName string) error {
	_, u, err := e.online(conn)
	if err != nil {
		return err
	}
	doc, err := e.document(name)
	if err != nil {
		return err
	}
	if doc.Creator() != u.Name() {
		return terrors.New(protocol.StatusUserNotCreator)
	}
	destName = registry.Normalize(destName)
	if destName == u.Name() {
		return terrors.New(protocol.StatusUserIsDest)
	}
	dest, ok := e.users.Lookup(destName)
	if !ok {
		return terrors.DestNotRegistered(destName)
	}
	if err := e.docs.Share(doc, dest); err != nil {
		if errors.Is(err, registry.ErrAlreadyCollaborator) {
			return terrors.DestAlreadyContributor(destName)
		}
		return terrors.Internal(err)
	}

	e.invite(dest, doc)
	e.logger.Info("document shared", "document", doc.Name(), "from", u.Name(), "to", dest.Name())
	return nil
}

func (e *Engine) invite(dest *registry.User, doc *registry.Document) {
	s, online := e.presence.LookupUser(dest.Name())
	if !online {
		dest.AddPendingInvite(doc.Name())
		// The user may have logged in after the check and before the
		// pending invite was recorded.
		s, online = e.presence.LookupUser(dest.Name())
		if !online {
			return
		}
		for _, name := range dest.DrainPendingInvites() {
			dest.AddLiveInvite(name)
		}
	} else {
		dest.AddLiveInvite(doc.Name())
	}
	e.flushInvites(s)
}

// ShowSection returns one section of a document.
func (e *Engine) ShowSection(conn session.ConnID, name string, index int) (SectionView, error) {
	_, u, err := e.online(conn)
	if err != nil {
		return SectionView{}, err
	}
	doc, err := e.document(name)
	if err != nil {
		return SectionView{}, err
	}
	if !doc.CanEdit(u.Name()) {
		return SectionView{}, terrors.New(protocol.StatusPermissionDenied)
	}
	if err := sectionExists(doc, index); err != nil {
		return SectionView{}, err
	}
	return e.readSection(doc, index)
}

// ShowDocument returns every section of a document.
func (e *Engine) ShowDocument(conn session.ConnID, name string) ([]SectionView, error) {
	_, u, err := e.online(conn)
	if err != nil {
		return nil, err
	}
	doc, err := e.document(name)
	if err != nil {
		return nil, err
	}
	if !doc.CanEdit(u.Name()) {
		return nil, terrors.New(protocol.StatusPermissionDenied)
	}

	holders := doc.Sections().Holders()
	views := make([]SectionView, len(holders))
	for i, editor := range holders {
		content, err := e.store.ReadSection(doc.Name(), i)
		if err != nil {
			return nil, terrors.Internal(fmt.Errorf("read %s#%d: %w", doc.Name(), i, err))
		}
		views[i] = SectionView{Content: content, Editor: editor}
	}
	return views, nil
}

func (e *Engine) readSection(doc *registry.Document, index int) (SectionView, error) {
	content, err := e.store.ReadSection(doc.Name(), index)
	if err != nil {
		return SectionView{}, terrors.Internal(fmt.Errorf("read %s#%d: %w", doc.Name(), index, err))
	}
	return SectionView{Content: content, Editor: doc.Sections().Holder(index)}, nil
}

// List returns the documents the caller may edit, sorted by name.
func (e *Engine) List(conn session.ConnID) ([]DocumentInfo, error) {
	_, u, err := e.online(conn)
	if err != nil {
		return nil, err
	}
	docs := e.docs.Editable(u)
	out := make([]DocumentInfo, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentInfo{
			Name:          d.Name(),
			Creator:       d.Creator(),
			Sections:      d.SectionCount(),
			Collaborators: d.Collaborators(),
		})
	}
	return out, nil
}

// ============================================================================
// Editing
// ============================================================================

// Edit locks a section for the caller and subscribes the session to the
// document's notification group.
func (e *Engine) Edit(ctx context.Context, conn session.ConnID, name string, index int) (*EditResult, error) {
	s, u, err := e.online(conn)
	if err != nil {
		return nil, err
	}
	doc, err := e.document(name)
	if err != nil {
		return nil, err
	}
	if !doc.CanEdit(u.Name()) {
		return nil, terrors.New(protocol.StatusUserNotAllowedToEdit)
	}
	if err := sectionExists(doc, index); err != nil {
		return nil, err
	}
	if current, editing := s.Editing(); editing {
		return nil, terrors.AlreadyEditing(current.String())
	}

	sections := doc.Sections()
	if !sections.TryLock(index, u.Name()) {
		return nil, terrors.SectionAlreadyInEditingMode(sections.Holder(index))
	}
	release := func() { sections.Unlock(index, u.Name()) }

	content, err := e.store.ReadSection(doc.Name(), index)
	if err != nil {
		release()
		return nil, terrors.Internal(err)
	}
	sub, err := e.bus.Subscribe(ctx, doc.Address())
	if err != nil {
		release()
		return nil, terrors.Internal(fmt.Errorf("subscribe to %s: %w", doc.Address(), err))
	}
	if !s.BeginEdit(session.EditTarget{Document: doc.Name(), Section: index}, sub) {
		sub.Close()
		release()
		current, _ := s.Editing()
		return nil, terrors.AlreadyEditing(current.String())
	}

	e.publish(ctx, doc, notify.KindJoined, u.Name(), "")
	e.logger.Debug("edit started", "user", u.Name(), "document", doc.Name(), "section", index)
	return &EditResult{Content: content, Address: doc.Address()}, nil
}

// EndEdit stores the new content of a section and releases its lock.
func (e *Engine) EndEdit(ctx context.Context, conn session.ConnID, name string, index int, content []byte) error {
	s, u, err := e.online(conn)
	if err != nil {
		return err
	}
	doc, err := e.document(name)
	if err != nil {
		return err
	}
	if !doc.CanEdit(u.Name()) {
		return terrors.New(protocol.StatusUserNotAllowedToEdit)
	}
	if err := sectionExists(doc, index); err != nil {
		return err
	}
	sections := doc.Sections()
	locked, holder := sections.State(index)
	if !locked {
		return terrors.New(protocol.StatusSectionNotInEditingMode)
	}
	if holder != u.Name() {
		return terrors.SectionEditedBySomeoneElse(holder)
	}

	if err := e.store.WriteSection(doc.Name(), index, content); err != nil {
		return terrors.Internal(err)
	}
	if err := sections.Unlock(index, u.Name()); err != nil {
		return terrors.Internal(err)
	}
	_, sub, _ := s.EndEdit()
	e.publish(ctx, doc, notify.KindLeft, u.Name(), "")
	if sub != nil {
		sub.Close()
	}

	e.logger.Debug("edit finished", "user", u.Name(), "document", doc.Name(), "section", index, "bytes", len(content))
	return nil
}

// Send publishes a chat message to the group of the document being edited.
func (e *Engine) Send(ctx context.Context, conn session.ConnID, text string) error {
	s, u, err := e.online(conn)
	if err != nil {
		return err
	}
	target, editing := s.Editing()
	if !editing {
		return terrors.New(protocol.StatusUserNotEditing)
	}
	doc, err := e.document(target.Document)
	if err != nil {
		return err
	}
	m := notify.Message{Kind: notify.KindChat, From: u.Name(), Text: text, At: time.Now()}
	if err := e.bus.Publish(ctx, doc.Address(), m); err != nil {
		return terrors.SendFailure(err)
	}
	return nil
}

// Receive drains the messages received on the group of the document being
// edited.
func (e *Engine) Receive(conn session.ConnID) ([]notify.Message, error) {
	s, _, err := e.online(conn)
	if err != nil {
		return nil, err
	}
	if _, editing := s.Editing(); !editing {
		return nil, terrors.New(protocol.StatusUserNotEditing)
	}
	sub := s.Subscription()
	if sub == nil {
		return nil, terrors.New(protocol.StatusReceiveFailure)
	}
	return sub.Drain(), nil
}

func (e *Engine) publish(ctx context.Context, doc *registry.Document, kind notify.Kind, from, text string) {
	m := notify.Message{Kind: kind, From: from, Text: text, At: time.Now()}
	if err := e.bus.Publish(ctx, doc.Address(), m); err != nil {
		e.logger.Warn("publishing group event", "document", doc.Name(), "kind", string(kind), "error", err)
	}
}
