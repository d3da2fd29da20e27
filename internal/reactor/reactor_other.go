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

//go:build !linux

package reactor

import (
	"context"
	"net"
)

// Reactor is unavailable on this platform.
type Reactor struct{}

// New always fails with ErrUnsupported.
func New(cfg Config, handler Handler, pool Submitter) (*Reactor, error) {
	return nil, ErrUnsupported
}

func (r *Reactor) Addr() net.Addr                          { return nil }
func (r *Reactor) Run() error                              { return ErrUnsupported }
func (r *Reactor) StopAccepting(ctx context.Context) error { return nil }
func (r *Reactor) Stop(ctx context.Context) error          { return nil }
func (r *Reactor) Stats() Stats                            { return Stats{} }
func (r *Reactor) enqueueClose(c *Conn)                    {}

func (c *Conn) writeAll(p []byte) error { return ErrUnsupported }
func (c *Conn) closeFD()                {}
