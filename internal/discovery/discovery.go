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
Package discovery finds Turing servers on the local network with mDNS
(Bonjour/Avahi).

A server advertises the service type _turing._tcp with TXT records:

	version=<protocol semver>
	registration=<port>   (absent when the side channel is disabled)
	id=<instance id>

Discover returns the servers whose protocol major version matches the
client's, so an incompatible server is never offered.
*/
package discovery

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/mdns"
	"golang.org/x/mod/semver"

	"turing/internal/logging"
)

// ServiceType is the mDNS service type of Turing servers.
const ServiceType = "_turing._tcp"

// Server is a discovered server.
type Server struct {
	ID               string `json:"id"`
	Host             string `json:"host"`
	Addr             string `json:"addr"`
	RegistrationAddr string `json:"registration_addr,omitempty"`
	Version          string `json:"version"`
}

// Config configures an advertisement.
type Config struct {
	// Instance names the advertisement. Defaults to the host name.
	Instance string
	// Port is the request port.
	Port int
	// RegistrationPort is the side channel port, 0 when disabled.
	RegistrationPort int
	// Version is the protocol version, e.g. "v1.0.0".
	Version string
	// IPs are the advertised addresses. Empty means the host's addresses.
	IPs []net.IP
}

// Advertiser publishes the service until Shutdown.
type Advertiser struct {
	server *mdns.Server
	id     string
	logger *logging.Logger
}

// Advertise starts answering mDNS queries for this server.
func Advertise(cfg Config) (*Advertiser, error) {
	if !semver.IsValid(cfg.Version) {
		return nil, fmt.Errorf("invalid protocol version %q", cfg.Version)
	}
	if cfg.Instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "turing"
		}
		cfg.Instance = host
	}

	id := uuid.NewString()
	txt := []string{"version=" + cfg.Version, "id=" + id}
	if cfg.RegistrationPort > 0 {
		txt = append(txt, "registration="+strconv.Itoa(cfg.RegistrationPort))
	}

	service, err := mdns.NewMDNSService(cfg.Instance, ServiceType, "", "", cfg.Port, cfg.IPs, txt)
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service, Logger: quietLogger()})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}

	a := &Advertiser{server: server, id: id, logger: logging.NewLogger("discovery")}
	a.logger.Info("advertising service", "type", ServiceType, "instance", cfg.Instance, "port", cfg.Port, "version", cfg.Version)
	return a, nil
}

// ID returns the instance id carried in the TXT record.
func (a *Advertiser) ID() string { return a.id }

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Discover queries the network for timeout and returns the servers
// compatible with version, sorted by address.
func Discover(timeout time.Duration, version string) ([]*Server, error) {
	entries := make(chan *mdns.ServiceEntry, 32)
	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	params.Logger = quietLogger()

	done := make(chan error, 1)
	go func() {
		done <- mdns.Query(params)
		close(entries)
	}()

	seen := make(map[string]*Server)
	for e := range entries {
		if s := fromEntry(e); s != nil && Compatible(version, s.Version) {
			seen[s.Addr] = s
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("mdns query: %w", err)
	}

	out := make([]*Server, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out, nil
}

// Compatible reports whether a server speaking version theirs can serve a
// client speaking ours.
func Compatible(ours, theirs string) bool {
	if !semver.IsValid(ours) || !semver.IsValid(theirs) {
		return false
	}
	return semver.Major(ours) == semver.Major(theirs)
}

func fromEntry(e *mdns.ServiceEntry) *Server {
	if e == nil || e.AddrV4 == nil || !strings.Contains(e.Name, ServiceType) {
		return nil
	}
	txt := parseTXT(e.InfoFields)
	s := &Server{
		ID:      txt["id"],
		Host:    strings.TrimSuffix(e.Host, "."),
		Addr:    net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(e.Port)),
		Version: txt["version"],
	}
	if p, err := strconv.Atoi(txt["registration"]); err == nil && p > 0 {
		s.RegistrationAddr = net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(p))
	}
	return s
}

func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok {
			out[k] = v
		}
	}
	return out
}

// quietLogger drops the library's logging; it reports harmless IPv6
// errors on most hosts.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}
