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
	"fmt"
	"net/netip"

	"github.com/redis/go-redis/v9"

	"turing/internal/logging"
)

// RedisChannel returns the pub/sub channel carrying group.
func RedisChannel(group netip.Addr) string {
	return "turing:group:" + group.String()
}

// RedisBus relays group messages through Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	limit  int
	logger *logging.Logger
}

// NewRedisBus connects to addr and checks the connection.
func NewRedisBus(ctx context.Context, addr string, mailboxSize int) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &RedisBus{client: client, limit: mailboxSize, logger: logging.NewLogger("redis-bus")}, nil
}

// Publish sends m to the channel of group.
func (b *RedisBus) Publish(ctx context.Context, group netip.Addr, m Message) error {
	m.Group = group
	if err := b.client.Publish(ctx, RedisChannel(group), m.Encode()).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", group, err)
	}
	return nil
}

// Subscribe listens on the channel of group. It returns once Redis has
// confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, group netip.Addr) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, RedisChannel(group))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe to %s: %w", group, err)
	}

	sub := newSubscription(group, b.limit, ps.Close)
	ch := ps.Channel()
	go func() {
		for msg := range ch {
			m, err := DecodeMessage([]byte(msg.Payload))
			if err != nil {
				b.logger.Debug("dropping malformed message", "channel", msg.Channel, "error", err)
				continue
			}
			sub.deliver(m)
		}
	}()
	return sub, nil
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
