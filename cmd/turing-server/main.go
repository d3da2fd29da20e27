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
turing-server runs the Turing collaborative editing server.

Usage:

	turing-server [flags]

Configuration comes from defaults, an optional file (--config or
TURING_CONFIG), TURING_* environment variables and finally flags. SIGHUP
reloads the file; SIGINT and SIGTERM shut down gracefully. The process
exits non-zero when the server cannot start.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"turing/internal/config"
	"turing/internal/logging"
	"turing/internal/server"
	"turing/pkg/cli"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		cli.FromError(err).Exit()
	}
}

func run() error {
	defaults := config.DefaultConfig()
	configFile := flag.String("config", os.Getenv(config.EnvConfigFile), "configuration file")
	listen := flag.String("listen", defaults.ListenAddr, "listen address")
	port := flag.Int("port", defaults.Port, "request port")
	regPort := flag.Int("registration-port", defaults.RegistrationPort, "registration port, 0 disables it")
	workers := flag.Int("workers", defaults.Workers, "worker pool size")
	storageBackend := flag.String("storage", defaults.StorageBackend, "section store: memory, disk or bolt")
	dataDir := flag.String("data-dir", defaults.DataDir, "data directory of the disk and bolt stores")
	compression := flag.String("compression", defaults.Compression, "section compression: none, gzip, zstd, snappy or lz4")
	notifyBackend := flag.String("notify", defaults.NotifyBackend, "chat transport: local, multicast or redis")
	redisAddr := flag.String("redis", defaults.RedisAddr, "redis address of the redis transport")
	discover := flag.Bool("discovery", defaults.Discovery, "advertise over mDNS")
	logLevel := flag.String("log-level", defaults.LogLevel, "debug, info, warn or error")
	logJSON := flag.Bool("log-json", defaults.LogJSON, "log in JSON")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("turing-server %s\n", version)
		return nil
	}

	// Only flags given on the command line override the file and env.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	overrides := func(c *config.Config) {
		if set["listen"] {
			c.ListenAddr = *listen
		}
		if set["port"] {
			c.Port = *port
		}
		if set["registration-port"] {
			c.RegistrationPort = *regPort
		}
		if set["workers"] {
			c.Workers = *workers
		}
		if set["storage"] {
			c.StorageBackend = *storageBackend
		}
		if set["data-dir"] {
			c.DataDir = *dataDir
		}
		if set["compression"] {
			c.Compression = *compression
		}
		if set["notify"] {
			c.NotifyBackend = *notifyBackend
		}
		if set["redis"] {
			c.RedisAddr = *redisAddr
		}
		if set["discovery"] {
			c.Discovery = *discover
		}
		if set["log-level"] {
			c.LogLevel = *logLevel
		}
		if set["log-json"] {
			c.LogJSON = *logJSON
		}
	}

	mgr := config.Global()
	if *configFile != "" {
		if err := mgr.LoadFromFile(*configFile); err != nil {
			return cli.NewCLIError("Cannot load configuration").WithDetail(err.Error())
		}
	}
	mgr.LoadFromEnv()
	mgr.SetOverrides(overrides)
	cfg := mgr.Get()
	if err := cfg.Validate(); err != nil {
		return cli.NewCLIError("Invalid configuration").WithDetail(err.Error())
	}

	if *printConfig {
		fmt.Print(cfg.ToTOML())
		return nil
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("main")

	srv, err := server.New(cfg)
	if err != nil {
		return cli.NewCLIError("Cannot start the server").WithDetail(err.Error()).WithExitCode(2)
	}
	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	mgr.OnReload(srv.ApplyConfig)
	if cfg.ConfigFile != "" {
		if err := mgr.Watch(ctx); err != nil {
			logger.Warn("config file is not watched", "error", err)
		}
	}

	cli.PrintSuccess("turing-server %s listening on %s", version, srv.Addr())
	if reg := srv.RegistrationAddr(); reg != nil {
		cli.PrintInfo("registration on %s", reg)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	exited := make(chan error, 1)
	go func() { exited <- srv.Wait() }()

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				if err := mgr.Reload(); err != nil {
					logger.Warn("reload failed", "error", err)
				}
				continue
			}
			logger.Info("signal received", "signal", sig.String())
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			err := srv.Shutdown(sctx)
			cancel()
			if err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logStats(logger, srv.Stats())
			return nil

		case err := <-exited:
			// The reactor died on its own; still release everything.
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			serr := srv.Shutdown(sctx)
			cancel()
			if err == nil {
				err = errors.New("server stopped unexpectedly")
			}
			return errors.Join(err, serr)
		}
	}
}

func logStats(logger *logging.Logger, st server.Stats) {
	logger.Info("server stopped",
		"connections", st.Reactor.Accepted,
		"requests", st.Reactor.Requests,
		"tasks", st.Workers.Completed,
		"task_panics", st.Workers.Panics,
		"groups_assigned", st.Groups.Assigned,
		"audit_events", st.Audit.Logged,
		"audit_dropped", st.Audit.Dropped,
	)
}
