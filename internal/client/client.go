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
Package client is the Go SDK for Turing servers.

Quick Start:
============

	c, err := client.Dial(ctx, "localhost:5000")
	if err != nil { ... }
	defer c.Close()

	res, err := c.Login("alice", "secret")
	addr, err := c.Create("report", 3)
	sec, err := c.Edit("report", 0)
	err = c.EndEdit("report", 0, []byte("new text"))

Errors:
=======

A refused request returns a *errors.Error carrying the response status and
its detail, so callers switch on errors.StatusOf(err). Transport failures
are plain wrapped errors; the connection is unusable afterwards.
*/
package client

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	terrors "turing/internal/errors"
	"turing/internal/notify"
	"turing/internal/protocol"
)

// DefaultTimeout bounds one request/response exchange.
const DefaultTimeout = 10 * time.Second

// Options configures a client.
type Options struct {
	Timeout time.Duration
}

// Client is a primary channel to a server. Requests are serialized.
type Client struct {
	addr    string
	timeout time.Duration

	mu    sync.Mutex
	conn  net.Conn
	user  string
	token string
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token   string
	Invites []string
}

// Section is one section and its current editor.
type Section struct {
	Content []byte
	Editor  string
}

// DocumentInfo describes a document returned by List.
type DocumentInfo struct {
	Name          string
	Creator       string
	Sections      int
	Collaborators []string
}

// EditResult is returned by Edit.
type EditResult struct {
	Content []byte
	Address netip.Addr
}

// Dial connects to addr and announces a primary channel.
func Dial(ctx context.Context, addr string) (*Client, error) {
	return DialWithOptions(ctx, addr, Options{})
}

// DialWithOptions connects with explicit options.
func DialWithOptions(ctx context.Context, addr string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	conn, err := dialChannel(ctx, addr, opts.Timeout, protocol.CmdChannelPrimary)
	if err != nil {
		return nil, err
	}
	return &Client{addr: addr, timeout: opts.Timeout, conn: conn}, nil
}

// dialChannel connects and performs the channel handshake.
func dialChannel(ctx context.Context, addr string, timeout time.Duration, kind protocol.Command, args ...string) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))
	if err := protocol.WriteRequest(conn, kind, args...); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	f, err := protocol.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	if err := statusError(f); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return conn, nil
}

// Addr returns the server address.
func (c *Client) Addr() string { return c.addr }

// User returns the logged-in user, or an empty string.
func (c *Client) User() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Token returns the session token of the logged-in user.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Close closes the connection without sending EXIT.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// statusError converts a non-OK response into an error.
func statusError(f *protocol.Frame) error {
	status := f.Status()
	if status == protocol.StatusOK {
		return nil
	}
	e := terrors.New(status)
	if args, err := protocol.DecodeArgs(f.Body); err == nil && len(args) == 1 {
		e.WithDetail(args[0])
	}
	return e
}

// roundTrip writes a pre-encoded request and reads the response body.
func (c *Client) roundTrip(cmd protocol.Command, request []byte) (*protocol.Decoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, fmt.Errorf("%s: %w", cmd, net.ErrClosed)
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := protocol.WriteExact(c.conn, request); err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	f, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	if err := statusError(f); err != nil {
		return nil, err
	}
	return protocol.NewDecoder(f.Body), nil
}

func (c *Client) do(cmd protocol.Command, args ...string) (*protocol.Decoder, error) {
	return c.roundTrip(cmd, protocol.AppendFrame(nil, int32(cmd), protocol.EncodeArgs(args...)))
}

// Help returns the server's command summary.
func (c *Client) Help() ([]string, error) {
	d, err := c.do(protocol.CmdHelp)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeStrings(d)
}

// Register creates an account.
func (c *Client) Register(user, password string) error {
	_, err := c.do(protocol.CmdRegister, user, password)
	return err
}

// Login starts a session.
func (c *Client) Login(user, password string) (*LoginResult, error) {
	d, err := c.do(protocol.CmdLogin, user, password)
	if err != nil {
		return nil, err
	}
	token, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	invites, err := protocol.DecodeStrings(d)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.user, c.token = user, token
	c.mu.Unlock()
	return &LoginResult{Token: token, Invites: invites}, nil
}

// Logout ends the session.
func (c *Client) Logout() error {
	if _, err := c.do(protocol.CmdLogout); err != nil {
		return err
	}
	c.mu.Lock()
	c.user, c.token = "", ""
	c.mu.Unlock()
	return nil
}

// Create creates a document of n sections and returns its chat address.
func (c *Client) Create(doc string, sections int) (netip.Addr, error) {
	d, err := c.do(protocol.CmdCreate, doc, strconv.Itoa(sections))
	if err != nil {
		return netip.Addr{}, err
	}
	s, err := d.ReadString()
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.ParseAddr(s)
}

// Share invites user to edit doc.
func (c *Client) Share(doc, user string) error {
	_, err := c.do(protocol.CmdShare, doc, user)
	return err
}

// ShowSection returns one section.
func (c *Client) ShowSection(doc string, index int) (Section, error) {
	d, err := c.do(protocol.CmdShowSection, doc, protocol.FormatIndex(index))
	if err != nil {
		return Section{}, err
	}
	return readSection(d)
}

// ShowDocument returns every section of doc.
func (c *Client) ShowDocument(doc string) ([]Section, error) {
	d, err := c.do(protocol.CmdShowDocument, doc)
	if err != nil {
		return nil, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]Section, 0, n)
	for range n {
		s, err := readSection(d)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func readSection(d *protocol.Decoder) (Section, error) {
	content, err := d.ReadBytes()
	if err != nil {
		return Section{}, err
	}
	editor, err := d.ReadString()
	if err != nil {
		return Section{}, err
	}
	return Section{Content: append([]byte(nil), content...), Editor: editor}, nil
}

// List returns the documents the user may edit.
func (c *Client) List() ([]DocumentInfo, error) {
	d, err := c.do(protocol.CmdList)
	if err != nil {
		return nil, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]DocumentInfo, 0, n)
	for range n {
		var info DocumentInfo
		if info.Name, err = d.ReadString(); err != nil {
			return nil, err
		}
		if info.Creator, err = d.ReadString(); err != nil {
			return nil, err
		}
		sections, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		info.Sections = int(sections)
		if info.Collaborators, err = protocol.DecodeStrings(d); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Edit locks a section and returns its content.
func (c *Client) Edit(doc string, index int) (*EditResult, error) {
	d, err := c.do(protocol.CmdEdit, doc, protocol.FormatIndex(index))
	if err != nil {
		return nil, err
	}
	content, err := d.ReadBytes()
	if err != nil {
		return nil, err
	}
	s, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return nil, err
	}
	return &EditResult{Content: append([]byte(nil), content...), Address: addr}, nil
}

// EndEdit uploads the section and releases it.
func (c *Client) EndEdit(doc string, index int, content []byte) error {
	req := protocol.AppendFrame(nil, int32(protocol.CmdEndEdit), protocol.EncodeArgs(doc, protocol.FormatIndex(index)))
	req = protocol.AppendFrame(req, int32(protocol.CmdSectionUpdate), content)
	_, err := c.roundTrip(protocol.CmdEndEdit, req)
	return err
}

// Send chats with the other editors of the document being edited.
func (c *Client) Send(text string) error {
	_, err := c.do(protocol.CmdSend, text)
	return err
}

// Receive returns the chat messages received since the last call.
func (c *Client) Receive() ([]notify.Message, error) {
	d, err := c.do(protocol.CmdReceive)
	if err != nil {
		return nil, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]notify.Message, 0, n)
	for range n {
		m, err := notify.ReadMessage(d)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Exit tells the server the client is leaving and closes the connection.
func (c *Client) Exit() error {
	_, err := c.do(protocol.CmdExit)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// RegisterVia creates an account over the registration side channel.
func RegisterVia(ctx context.Context, addr, user, password string) error {
	d := net.Dialer{Timeout: DefaultTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(DefaultTimeout))

	if err := protocol.WriteRequest(conn, protocol.CmdRegister, user, password); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	f, err := protocol.ReadFrame(conn)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return statusError(f)
}
