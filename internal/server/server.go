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
Package server assembles the Turing server: storage, notification bus,
engine, worker pool, reactor, registration side channel and discovery.

Startup:
========

 1. open the section store, the notification bus and the audit trail
 2. build the engine over them
 3. bind the request port (reactor) and the registration port
 4. advertise over mDNS when enabled

A bind failure is returned by New so the binary can exit non-zero.

Shutdown:
=========

Shutdown runs once, in this order:

 1. stop accepting connections (reactor listener, registration listener)
 2. drain the worker pool: queued requests complete, new ones are refused
 3. stop the reactor: close every connection and run its cleanup
 4. close the bus, the store and the audit trail

Draining the pool before stopping the reactor lets in-flight requests
write their responses instead of being dropped.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"turing/internal/audit"
	"turing/internal/compression"
	"turing/internal/config"
	"turing/internal/discovery"
	"turing/internal/engine"
	"turing/internal/logging"
	"turing/internal/notify"
	"turing/internal/protocol"
	"turing/internal/reactor"
	"turing/internal/storage"
	"turing/internal/worker"
)

// Server is a running Turing server.
type Server struct {
	cfg    config.Config
	logger *logging.Logger

	store      storage.Store
	bus        notify.Bus
	audit      *audit.Manager
	engine     *engine.Engine
	pool       *worker.Pool
	reactor    *reactor.Reactor
	registrar  *Registrar
	advertiser *discovery.Advertiser

	ctx    context.Context
	cancel context.CancelFunc

	runErr       chan error
	shutdownOnce sync.Once
	shutdownErr  error
}

// LimitsFrom extracts the argument limits of cfg.
func LimitsFrom(cfg *config.Config) engine.Limits {
	return engine.Limits{
		MaxNameLength:     cfg.MaxNameLength,
		MaxPasswordLength: cfg.MaxPasswordLength,
		MaxSections:       cfg.MaxSections,
		MaxSectionSize:    cfg.MaxSectionSize,
		MaxMessageLength:  cfg.MaxMessageLength,
	}
}

// New builds a server and binds its ports.
func New(cfg *config.Config) (s *Server, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s = &Server{cfg: *cfg, logger: logging.NewLogger("server"), runErr: make(chan error, 1)}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Unwind whatever was opened when a later step fails.
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}
	comp := compression.DefaultConfig()
	comp.Algorithm = algo
	s.store, err = storage.Open(storage.Config{
		Backend:     storage.Backend(cfg.StorageBackend),
		DataDir:     cfg.DataDir,
		Compression: comp,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s.bus, err = notify.Open(s.ctx, notify.Options{
		Backend:   cfg.NotifyBackend,
		Port:      cfg.MulticastPort,
		Interface: cfg.MulticastInterface,
		RedisAddr: cfg.RedisAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("open notification bus: %w", err)
	}

	auditCfg := audit.DefaultConfig()
	auditCfg.Enabled = cfg.AuditEnabled
	auditCfg.File = cfg.AuditFile
	s.audit, err = audit.NewManager(auditCfg)
	if err != nil {
		return nil, err
	}

	s.engine = engine.New(engine.Options{
		Bus:    s.bus,
		Store:  s.store,
		Limits: LimitsFrom(cfg),
	})
	dispatcher := NewDispatcher(s.engine).WithAudit(s.audit)
	s.pool = worker.NewPool(worker.Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize})

	s.reactor, err = reactor.New(reactor.Config{
		Addr:         cfg.Addr(),
		WriteTimeout: cfg.WriteTimeout,
	}, newHandler(s.ctx, s.engine, dispatcher), s.pool)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	if cfg.RegistrationPort > 0 {
		s.registrar, err = NewRegistrar(s.ctx, cfg.RegistrationAddr(), dispatcher, s.pool)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", cfg.RegistrationAddr(), err)
		}
	}
	return s, nil
}

// Start serves in the background.
func (s *Server) Start() error {
	go func() { s.runErr <- s.reactor.Run() }()
	if s.registrar != nil {
		go s.registrar.Serve()
	}

	if s.cfg.Discovery {
		regPort := 0
		if s.registrar != nil {
			regPort = portOf(s.registrar.Addr())
		}
		adv, err := discovery.Advertise(discovery.Config{
			Port:             portOf(s.reactor.Addr()),
			RegistrationPort: regPort,
			Version:          protocol.Version,
		})
		if err != nil {
			// Discovery is a convenience; the server still serves.
			s.logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			s.advertiser = adv
		}
	}

	s.logger.Info("server started",
		"addr", s.reactor.Addr().String(),
		"workers", s.cfg.Workers,
		"storage", s.cfg.StorageBackend,
		"notify", s.cfg.NotifyBackend,
	)
	return nil
}

// Wait blocks until the reactor exits and returns its error.
func (s *Server) Wait() error {
	err := <-s.runErr
	s.runErr <- err
	return err
}

// Addr returns the request address.
func (s *Server) Addr() net.Addr { return s.reactor.Addr() }

// RegistrationAddr returns the side channel address, or nil when disabled.
func (s *Server) RegistrationAddr() net.Addr {
	if s.registrar == nil {
		return nil
	}
	return s.registrar.Addr()
}

// Engine returns the task layer.
func (s *Server) Engine() *engine.Engine { return s.engine }

// Audit returns the audit trail, nil when disabled.
func (s *Server) Audit() *audit.Manager { return s.audit }

// Stats describes server activity.
type Stats struct {
	Reactor  reactor.Stats
	Workers  worker.Stats
	Storage  storage.Stats
	Audit    audit.Stats
	Groups   notify.AllocatorStats
	Sessions int
}

// Stats returns a snapshot of server activity.
func (s *Server) Stats() Stats {
	return Stats{
		Reactor:  s.reactor.Stats(),
		Workers:  s.pool.Stats(),
		Storage:  s.store.Stats(),
		Audit:    s.audit.Stats(),
		Groups:   s.engine.Groups(),
		Sessions: s.engine.Presence().Len(),
	}
}

// ApplyConfig applies the settings that can change while running.
func (s *Server) ApplyConfig(cfg *config.Config) {
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	s.logger.Info("configuration reloaded", "log_level", cfg.LogLevel)
}

// Shutdown stops the server gracefully. Later calls return the first
// result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	var errs []error

	if s.advertiser != nil {
		errs = append(errs, s.advertiser.Shutdown())
	}
	if err := s.reactor.StopAccepting(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop accepting: %w", err))
	}
	if s.registrar != nil {
		errs = append(errs, s.registrar.Close())
	}

	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.reactor.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop reactor: %w", err))
	}

	s.cancel()
	errs = append(errs, s.bus.Close(), s.store.Close(), s.audit.Stop())

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Warn("shutdown finished with errors", "error", err)
	} else {
		s.logger.Info("shutdown complete")
	}
	return err
}

// release closes what New opened before it failed.
func (s *Server) release() {
	s.cancel()
	if s.registrar != nil {
		s.registrar.Close()
	}
	if s.reactor != nil {
		s.reactor.Stop(context.Background())
	}
	if s.pool != nil {
		s.pool.Shutdown(context.Background())
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	s.audit.Stop()
}

func portOf(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
