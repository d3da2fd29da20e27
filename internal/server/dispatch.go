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
Request Dispatcher
==================

The dispatcher turns one decoded request into one response. It checks the
argument count and the configured limits first, so a malformed request
never reaches the engine, then calls the engine and encodes the result.

Response Bodies:
================

	LOGIN          token, [invite...]
	CREATE         address
	SHOW_SECTION   content, editor
	SHOW_DOCUMENT  [content, editor]...
	LIST           [name, creator, sections, [collaborator...]]...
	EDIT           content, address
	RECEIVE        [kind, group, from, text, unixNano]...
	HELP           [line...]
	errors         detail (omitted when empty)

Lists are a uint32 count followed by the elements.

Audit:
======

Account and document commands are recorded in the audit trail with their
outcome, attributed to the session user as it was before the request.
*/
package server

import (
	"context"
	"fmt"

	"turing/internal/audit"
	"turing/internal/engine"
	terrors "turing/internal/errors"
	"turing/internal/logging"
	"turing/internal/protocol"
	"turing/internal/session"
)

// Response is one encoded reply.
type Response struct {
	Status protocol.Status
	Body   []byte
	// Close asks the transport to close the connection after writing.
	Close bool
}

// Dispatcher validates requests and runs them against the engine.
type Dispatcher struct {
	engine *engine.Engine
	limits engine.Limits
	audit  *audit.Manager
	logger *logging.Logger
}

// NewDispatcher creates a dispatcher over e.
func NewDispatcher(e *engine.Engine) *Dispatcher {
	return &Dispatcher{engine: e, limits: e.Limits(), logger: logging.NewLogger("dispatcher")}
}

// WithAudit records audited commands in a.
func (d *Dispatcher) WithAudit(a *audit.Manager) *Dispatcher {
	d.audit = a
	return d
}

// auditEvents maps audited commands to their event.
var auditEvents = map[protocol.Command]audit.EventType{
	protocol.CmdRegister: audit.EventRegister,
	protocol.CmdLogin:    audit.EventLogin,
	protocol.CmdLogout:   audit.EventLogout,
	protocol.CmdCreate:   audit.EventCreateDocument,
	protocol.CmdShare:    audit.EventShare,
	protocol.CmdEdit:     audit.EventEdit,
	protocol.CmdEndEdit:  audit.EventEndEdit,
}

// argCount is the number of fields each command carries.
var argCount = map[protocol.Command]int{
	protocol.CmdHelp:         0,
	protocol.CmdRegister:     2,
	protocol.CmdLogin:        2,
	protocol.CmdLogout:       0,
	protocol.CmdCreate:       2,
	protocol.CmdShare:        2,
	protocol.CmdShowDocument: 1,
	protocol.CmdShowSection:  2,
	protocol.CmdList:         0,
	protocol.CmdEdit:         2,
	protocol.CmdEndEdit:      2,
	protocol.CmdSend:         1,
	protocol.CmdReceive:      0,
	protocol.CmdExit:         0,
}

// Dispatch handles one request of conn. update is the section body that
// follows END_EDIT and is ignored for every other command.
func (d *Dispatcher) Dispatch(ctx context.Context, conn session.ConnID, frame protocol.Frame, update []byte) Response {
	cmd := frame.Command()
	event, audited := auditEvents[cmd]
	audited = audited && d.audit != nil
	var user string
	if audited {
		user = d.sessionUser(conn)
	}

	body, err := d.dispatch(ctx, conn, cmd, frame.Body, update)
	if audited {
		d.record(conn, event, frame.Body, user, err)
	}
	if err != nil {
		if terrors.IsInternal(err) {
			d.logger.Error("request failed", "cmd", cmd.String(), "conn", conn, "error", err)
		} else {
			d.logger.Debug("request refused", "cmd", cmd.String(), "conn", conn, "error", err)
		}
		return ErrorResponse(err)
	}
	return Response{Status: protocol.StatusOK, Body: body, Close: cmd == protocol.CmdExit}
}

// Disconnect cleans up after a closed primary channel.
func (d *Dispatcher) Disconnect(ctx context.Context, conn session.ConnID) {
	user := d.sessionUser(conn)
	d.engine.Disconnect(ctx, conn)
	if user != "" {
		d.audit.LogEvent(audit.Event{EventType: audit.EventDisconnect, Username: user, Conn: uint64(conn)})
	}
}

func (d *Dispatcher) sessionUser(conn session.ConnID) string {
	if s, ok := d.engine.Presence().Lookup(conn); ok {
		return s.Username
	}
	return ""
}

func (d *Dispatcher) record(conn session.ConnID, event audit.EventType, raw []byte, user string, err error) {
	e := audit.Event{EventType: event, Username: user, Conn: uint64(conn)}
	args, _ := protocol.DecodeArgs(raw)
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	switch event {
	case audit.EventRegister, audit.EventLogin:
		e.Username = arg(0)
	case audit.EventCreateDocument:
		e.Object = arg(0)
	case audit.EventShare:
		e.Object, e.Detail = arg(1), arg(0)
	case audit.EventEdit, audit.EventEndEdit:
		e.Object = arg(0) + "#" + arg(1)
	}
	if err != nil {
		e.Status = audit.StatusFailed
		e.Error = terrors.StatusOf(err).String()
		if event == audit.EventLogin {
			e.EventType = audit.EventLoginFailed
		}
	}
	d.audit.LogEvent(e)
}

// ErrorResponse encodes err as a response.
func ErrorResponse(err error) Response {
	r := Response{Status: terrors.StatusOf(err)}
	if detail := terrors.DetailOf(err); detail != "" {
		r.Body = protocol.EncodeArgs(detail)
	}
	return r
}

func (d *Dispatcher) dispatch(ctx context.Context, conn session.ConnID, cmd protocol.Command, raw, update []byte) ([]byte, error) {
	want, ok := argCount[cmd]
	if !ok {
		return nil, terrors.UnknownCommand(int32(cmd))
	}
	args, err := protocol.DecodeArgs(raw)
	if err != nil {
		return nil, terrors.New(protocol.StatusInvalidArguments).WithCause(err)
	}
	if len(args) != want {
		return nil, terrors.InvalidArguments(cmd, want, len(args))
	}

	switch cmd {
	case protocol.CmdHelp:
		return protocol.EncodeStrings(HelpLines()), nil

	case protocol.CmdRegister:
		if err := d.checkCredentials(args[0], args[1]); err != nil {
			return nil, err
		}
		return nil, d.engine.Register(args[0], args[1])

	case protocol.CmdLogin:
		if err := d.checkCredentials(args[0], args[1]); err != nil {
			return nil, err
		}
		res, err := d.engine.Login(conn, args[0], args[1])
		if err != nil {
			return nil, err
		}
		e := protocol.NewEncoder()
		e.WriteString(res.Token)
		e.WriteStrings(res.Invites)
		return e.Bytes(), nil

	case protocol.CmdLogout:
		return nil, d.engine.Logout(ctx, conn)

	case protocol.CmdCreate:
		if err := d.limits.CheckName(args[0]); err != nil {
			return nil, err
		}
		n, err := d.limits.ParseSectionCount(args[1])
		if err != nil {
			return nil, err
		}
		addr, err := d.engine.Create(conn, args[0], n)
		if err != nil {
			return nil, err
		}
		return protocol.EncodeArgs(addr.String()), nil

	case protocol.CmdShare:
		if err := d.checkNames(args[0], args[1]); err != nil {
			return nil, err
		}
		return nil, d.engine.Share(conn, args[0], args[1])

	case protocol.CmdShowDocument:
		if err := d.limits.CheckName(args[0]); err != nil {
			return nil, err
		}
		views, err := d.engine.ShowDocument(conn, args[0])
		if err != nil {
			return nil, err
		}
		e := protocol.NewEncoder()
		e.WriteUint32(uint32(len(views)))
		for _, v := range views {
			e.WriteBytes(v.Content)
			e.WriteString(v.Editor)
		}
		return e.Bytes(), nil

	case protocol.CmdShowSection:
		index, err := d.section(args)
		if err != nil {
			return nil, err
		}
		v, err := d.engine.ShowSection(conn, args[0], index)
		if err != nil {
			return nil, err
		}
		e := protocol.NewEncoder()
		e.WriteBytes(v.Content)
		e.WriteString(v.Editor)
		return e.Bytes(), nil

	case protocol.CmdList:
		docs, err := d.engine.List(conn)
		if err != nil {
			return nil, err
		}
		e := protocol.NewEncoder()
		e.WriteUint32(uint32(len(docs)))
		for _, doc := range docs {
			e.WriteString(doc.Name)
			e.WriteString(doc.Creator)
			e.WriteUint32(uint32(doc.Sections))
			e.WriteStrings(doc.Collaborators)
		}
		return e.Bytes(), nil

	case protocol.CmdEdit:
		index, err := d.section(args)
		if err != nil {
			return nil, err
		}
		res, err := d.engine.Edit(ctx, conn, args[0], index)
		if err != nil {
			return nil, err
		}
		e := protocol.NewEncoder()
		e.WriteBytes(res.Content)
		e.WriteString(res.Address.String())
		return e.Bytes(), nil

	case protocol.CmdEndEdit:
		index, err := d.section(args)
		if err != nil {
			return nil, err
		}
		if err := d.limits.CheckSectionBody(update); err != nil {
			return nil, err
		}
		return nil, d.engine.EndEdit(ctx, conn, args[0], index, update)

	case protocol.CmdSend:
		if err := d.limits.CheckMessage(args[0]); err != nil {
			return nil, err
		}
		return nil, d.engine.Send(ctx, conn, args[0])

	case protocol.CmdReceive:
		msgs, err := d.engine.Receive(conn)
		if err != nil {
			return nil, err
		}
		e := protocol.NewEncoder()
		e.WriteUint32(uint32(len(msgs)))
		for _, m := range msgs {
			m.EncodeTo(e)
		}
		return e.Bytes(), nil

	case protocol.CmdExit:
		return nil, nil
	}
	return nil, terrors.Internal(fmt.Errorf("no handler for %s", cmd))
}

func (d *Dispatcher) checkCredentials(user, password string) error {
	if err := d.limits.CheckName(user); err != nil {
		return err
	}
	return d.limits.CheckPassword(password)
}

func (d *Dispatcher) checkNames(names ...string) error {
	for _, n := range names {
		if err := d.limits.CheckName(n); err != nil {
			return err
		}
	}
	return nil
}

// section validates a [document, index] argument pair.
func (d *Dispatcher) section(args []string) (int, error) {
	if err := d.limits.CheckName(args[0]); err != nil {
		return 0, err
	}
	return d.limits.ParseSectionIndex(args[1])
}
