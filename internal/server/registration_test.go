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

package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turing/internal/client"
	"turing/internal/engine"
	terrors "turing/internal/errors"
	"turing/internal/protocol"
	"turing/internal/worker"
)

// startRegistrar serves the side channel of e on a private worker pool.
func startRegistrar(t *testing.T, e *engine.Engine, pool *worker.Pool) *Registrar {
	t.Helper()
	r, err := NewRegistrar(context.Background(), "127.0.0.1:0", NewDispatcher(e), pool)
	require.NoError(t, err)
	go r.Serve()
	t.Cleanup(func() { r.Close() })
	return r
}

func newPool(t *testing.T, workers, queue int) *worker.Pool {
	t.Helper()
	p := worker.NewPool(worker.Config{Workers: workers, QueueSize: queue})
	t.Cleanup(func() { p.Shutdown(context.Background()) })
	return p
}

func TestRegistrationChannel(t *testing.T) {
	e := engine.New(engine.Options{})
	r := startRegistrar(t, e, newPool(t, 2, 4))

	addr := r.Addr().String()
	require.NoError(t, client.RegisterVia(context.Background(), addr, "alice", "pw"))

	err := client.RegisterVia(context.Background(), addr, "alice", "pw")
	assert.Equal(t, protocol.StatusUsernameAlreadyTaken, terrors.StatusOf(err))

	err = client.RegisterVia(context.Background(), addr, "a/b", "pw")
	assert.Equal(t, protocol.StatusInvalidName, terrors.StatusOf(err))

	err = client.RegisterVia(context.Background(), addr, "..", "pw")
	assert.Equal(t, protocol.StatusInvalidName, terrors.StatusOf(err))

	_, err = e.Login(1, "alice", "pw")
	assert.NoError(t, err)
}

func TestRegistrationChannelRejectsOtherCommands(t *testing.T) {
	r := startRegistrar(t, engine.New(engine.Options{}), newPool(t, 1, 1))

	conn, err := net.Dial("tcp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteRequest(conn, protocol.CmdLogin, "alice", "pw"))
	f, err := protocol.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusUnknownCommand, f.Status())
}

func TestRegistrationChannelBusyPool(t *testing.T) {
	pool := newPool(t, 1, 1)
	started, gate := make(chan struct{}), make(chan struct{})
	require.NoError(t, pool.TrySubmit(func() { close(started); <-gate }))
	<-started
	require.NoError(t, pool.TrySubmit(func() {}))
	t.Cleanup(func() { close(gate) })

	e := engine.New(engine.Options{})
	r := startRegistrar(t, e, pool)

	err := client.RegisterVia(context.Background(), r.Addr().String(), "alice", "pw")
	assert.Equal(t, protocol.StatusServerBusy, terrors.StatusOf(err))
	_, err = e.Login(1, "alice", "pw")
	assert.Equal(t, protocol.StatusUserNotRegistered, terrors.StatusOf(err), "a refused registration must not run later")
}

func TestRegistrationChannelAfterPoolShutdown(t *testing.T) {
	pool := newPool(t, 1, 1)
	require.NoError(t, pool.Shutdown(context.Background()))
	r := startRegistrar(t, engine.New(engine.Options{}), pool)

	err := client.RegisterVia(context.Background(), r.Addr().String(), "alice", "pw")
	assert.Equal(t, protocol.StatusShuttingDown, terrors.StatusOf(err))
}
