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

package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"golang.org/x/net/ipv4"

	"turing/internal/logging"
)

// maxDatagram bounds one encoded message on the wire.
const maxDatagram = 64 * 1024

// ErrInvalidGroup is returned for an address that is not an assignable
// IPv4 multicast group.
var ErrInvalidGroup = errors.New("not an assignable multicast group")

func checkGroup(group netip.Addr) error {
	if !group.Is4() || !group.IsMulticast() || IsReserved(group) {
		return fmt.Errorf("%w: %s", ErrInvalidGroup, group)
	}
	return nil
}

// MulticastBus sends messages as UDP datagrams to the group address.
// Each subscription owns a socket bound to the shared port and joined to
// its group. Datagrams for other groups arriving on the same port are
// filtered by the group recorded in the message.
type MulticastBus struct {
	port  int
	ifi   *net.Interface
	limit int

	mu     sync.Mutex
	sender *ipv4.PacketConn
	closed bool

	logger *logging.Logger
}

// NewMulticastBus opens the sending socket.
func NewMulticastBus(port int, ifname string, mailboxSize int) (*MulticastBus, error) {
	var ifi *net.Interface
	if ifname != "" {
		var err error
		if ifi, err = net.InterfaceByName(ifname); err != nil {
			return nil, fmt.Errorf("multicast interface %s: %w", ifname, err)
		}
	}

	c, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("open multicast sender: %w", err)
	}
	p := ipv4.NewPacketConn(c)
	if err := p.SetMulticastTTL(1); err != nil {
		c.Close()
		return nil, fmt.Errorf("set multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(true); err != nil {
		c.Close()
		return nil, fmt.Errorf("set multicast loopback: %w", err)
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			c.Close()
			return nil, fmt.Errorf("set multicast interface: %w", err)
		}
	}

	return &MulticastBus{
		port:   port,
		ifi:    ifi,
		limit:  mailboxSize,
		sender: p,
		logger: logging.NewLogger("multicast"),
	}, nil
}

// Publish sends m to group.
func (b *MulticastBus) Publish(_ context.Context, group netip.Addr, m Message) error {
	if err := checkGroup(group); err != nil {
		return err
	}
	m.Group = group
	payload := m.Encode()
	if len(payload) > maxDatagram {
		return fmt.Errorf("message of %d bytes exceeds datagram size", len(payload))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	dst := &net.UDPAddr{IP: group.AsSlice(), Port: b.port}
	if _, err := b.sender.WriteTo(payload, nil, dst); err != nil {
		return fmt.Errorf("multicast send to %s: %w", group, err)
	}
	return nil
}

// Subscribe joins group on the bus port.
func (b *MulticastBus) Subscribe(ctx context.Context, group netip.Addr) (*Subscription, error) {
	if err := checkGroup(group); err != nil {
		return nil, err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	lc := net.ListenConfig{Control: reuseAddrControl}
	c, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(b.port)))
	if err != nil {
		return nil, fmt.Errorf("listen on multicast port %d: %w", b.port, err)
	}
	p := ipv4.NewPacketConn(c)
	gaddr := &net.UDPAddr{IP: group.AsSlice()}
	if err := p.JoinGroup(b.ifi, gaddr); err != nil {
		c.Close()
		return nil, fmt.Errorf("join group %s: %w", group, err)
	}

	sub := newSubscription(group, b.limit, func() error {
		p.LeaveGroup(b.ifi, gaddr)
		return c.Close()
	})

	go func() {
		buf := make([]byte, maxDatagram)
		for {
			n, _, _, err := p.ReadFrom(buf)
			if err != nil {
				return
			}
			m, err := DecodeMessage(buf[:n])
			if err != nil {
				b.logger.Debug("dropping malformed datagram", "group", group, "error", err)
				continue
			}
			if m.Group != group {
				continue
			}
			sub.deliver(m)
		}
	}()
	return sub, nil
}

// Close closes the sending socket. Open subscriptions stay valid until
// closed by their owner.
func (b *MulticastBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.sender.Close()
}
