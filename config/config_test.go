// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/retention"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "realm1", cfg.Realm)
	assert.Equal(t, BackendMemory, cfg.Retention.Backend)
	assert.Len(t, cfg.Listen.Serializers, 3)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
realm: com.example
listen:
  addr: 127.0.0.1:9000
  serializers: [wamp.2.msgpack]
  ping_interval: 5s
router:
  workers: 8
  disclose_caller: false
retention:
  backend: redis
  redis:
    addr: redis:6379
    password: hunter2
    db: 2
    ttl: 1m
log:
  level: debug
  console: true
`))
	require.NoError(t, err)

	assert.Equal(t, "com.example", cfg.Realm)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen.Addr)
	assert.Equal(t, "/ws", cfg.Listen.Path, "defaults kept")
	assert.Equal(t, []string{"wamp.2.msgpack"}, cfg.Listen.Serializers)
	assert.Equal(t, 5*time.Second, cfg.Listen.PingInterval)
	assert.Equal(t, 8, cfg.Router.Workers)
	assert.False(t, cfg.Router.DiscloseCaller)
	assert.Equal(t, 2, cfg.Retention.Redis.DB)
	assert.Equal(t, time.Minute, cfg.Retention.Redis.TTL)
	assert.Equal(t, retention.DefaultKeyPrefix, cfg.Retention.Redis.KeyPrefix)

	opts := cfg.RouterOptions()
	assert.Equal(t, "com.example", opts.Realm)
	assert.Equal(t, 8, opts.Workers)
	assert.False(t, opts.DiscloseCaller)

	s := cfg.String()
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "REDACTED")
	assert.Equal(t, "hunter2", cfg.Retention.Redis.Password, "String must not modify the config")
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte("realm: r\nworkerz: 3\n"))
	assert.Error(t, err)
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Realm = ""
	cfg.Listen.Path = "ws"
	cfg.Listen.Serializers = []string{"wamp.2.xml"}
	cfg.Router.Workers = 0
	cfg.Retention.Backend = "etcd"
	cfg.Log.Level = "loud"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "metrics"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"realm", "listen path", "wamp.2.xml", "workers", "etcd", "loud", "metrics path"} {
		assert.Contains(t, msg, want)
	}
	assert.Len(t, strings.Split(msg, "\n"), 7)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte("realm: loaded\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "loaded", cfg.Realm)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	var buf bytes.Buffer
	l, err := cfg.Logger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevelWarn, l.GetLevel())

	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestOpenRetention(t *testing.T) {
	cfg := Default()
	store, closeFn, err := cfg.OpenRetention(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &retention.MemoryStore{}, store)
	assert.NoError(t, closeFn())

	cfg.Retention.Backend = BackendNone
	store, closeFn, err = cfg.OpenRetention(context.Background())
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.NoError(t, closeFn())
}
