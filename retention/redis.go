// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package retention

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/destiny/wamprouter/match"
	"github.com/destiny/wamprouter/wamp"
)

// DefaultKeyPrefix namespaces retained events in Redis.
const DefaultKeyPrefix = "wamprouter:retained:"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	TLS       bool   `yaml:"tls"`
	KeyPrefix string `yaml:"key_prefix"`
	// TTL expires retained events; zero keeps them until superseded.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultRedisConfig returns a config for a local Redis server.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "127.0.0.1:6379",
		KeyPrefix: DefaultKeyPrefix,
	}
}

// Validate checks the configuration.
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("retention: redis addr required")
	}
	if c.DB < 0 {
		return fmt.Errorf("retention: redis db must be >= 0, got %d", c.DB)
	}
	if c.TTL < 0 {
		return fmt.Errorf("retention: redis ttl must be >= 0, got %v", c.TTL)
	}
	return nil
}

// RedisStore is a Store backed by Redis. Each retained PUBLISH is kept in its
// JSON wire form under KeyPrefix+topic.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	codec  wamp.Serializer
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("retention: redis ping %s: %w", cfg.Addr, err)
	}
	s := NewRedisStoreWithClient(client, cfg.KeyPrefix)
	s.ttl = cfg.TTL
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, codec: wamp.JSONSerializer{}}
}

// Retain implements Store.
func (s *RedisStore) Retain(ctx context.Context, msg *wamp.Publish) (bool, error) {
	if !Internal(msg) {
		return false, nil
	}
	data, err := s.codec.Serialize(msg)
	if err != nil {
		return false, err
	}
	if err := s.client.Set(ctx, s.prefix+msg.Topic, data, s.ttl).Err(); err != nil {
		return false, fmt.Errorf("retention: redis set %q: %w", msg.Topic, err)
	}
	return true, nil
}

// Retained implements Store. Pattern lookups SCAN the key prefix.
func (s *RedisStore) Retained(ctx context.Context, dest match.Destination) ([]*wamp.Publish, error) {
	if dest.Policy() == match.Exact {
		data, err := s.client.Get(ctx, s.prefix+dest.Pattern()).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("retention: redis get %q: %w", dest.Pattern(), err)
		}
		msg, err := s.decode(data)
		if err != nil {
			return nil, err
		}
		return []*wamp.Publish{msg}, nil
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, escapeGlob(s.prefix)+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if dest.Matches(strings.TrimPrefix(key, s.prefix)) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("retention: redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("retention: redis mget: %w", err)
	}
	out := make([]*wamp.Publish, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		msg, err := s.decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) decode(data []byte) (*wamp.Publish, error) {
	msg, err := s.codec.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("retention: decode retained event: %w", err)
	}
	pub, ok := msg.(*wamp.Publish)
	if !ok {
		return nil, fmt.Errorf("retention: retained %s is not a PUBLISH", msg.MessageType())
	}
	return pub, nil
}

var globEscaper = strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `\`, `\\`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
