// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the router configuration from YAML.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	wamprouter "github.com/destiny/wamprouter"
	"github.com/destiny/wamprouter/logging"
	"github.com/destiny/wamprouter/retention"
	"github.com/destiny/wamprouter/wamp"
)

// Retention backends
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root of the configuration file.
type Config struct {
	Realm     string          `yaml:"realm"`
	Listen    ListenConfig    `yaml:"listen"`
	Router    RouterConfig    `yaml:"router"`
	Retention RetentionConfig `yaml:"retention"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ListenConfig configures the WebSocket endpoint.
type ListenConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
	// Serializers lists the accepted WAMP sub-protocols in preference order.
	Serializers  []string      `yaml:"serializers"`
	ReadLimit    int64         `yaml:"read_limit"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RouterConfig tunes dispatch.
type RouterConfig struct {
	Workers        int  `yaml:"workers"`
	QueueSize      int  `yaml:"queue_size"`
	OutboundQueue  int  `yaml:"outbound_queue"`
	DiscloseCaller bool `yaml:"disclose_caller"`
}

// RetentionConfig selects where retained events live.
type RetentionConfig struct {
	Backend string                `yaml:"backend"`
	Redis   retention.RedisConfig `yaml:"redis"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	ro := wamprouter.DefaultOptions()
	return Config{
		Realm: ro.Realm,
		Listen: ListenConfig{
			Addr:         ":8080",
			Path:         "/ws",
			Serializers:  []string{wamp.JSONSubprotocol, wamp.MsgpackSubprotocol, wamp.CBORSubprotocol},
			ReadLimit:    1 << 20,
			PingInterval: 30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Router: RouterConfig{
			Workers:        ro.Workers,
			QueueSize:      ro.QueueSize,
			OutboundQueue:  ro.OutboundQueue,
			DiscloseCaller: ro.DiscloseCaller,
		},
		Retention: RetentionConfig{
			Backend: BackendMemory,
			Redis:   retention.DefaultRedisConfig(),
		},
		Log: LogConfig{Level: logging.LogLevelInfo.String()},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Path:      "/metrics",
			Namespace: "wamprouter",
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown keys
// are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem in the configuration.
func (c *Config) Validate() error {
	var errs []error
	if !wamp.ValidURI(c.Realm, false) {
		errs = append(errs, fmt.Errorf("config: invalid realm %q", c.Realm))
	}
	errs = append(errs, c.validateListen()...)
	errs = append(errs, c.validateRouter()...)
	errs = append(errs, c.validateRetention()...)
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			errs = append(errs, errors.New("config: metrics addr required"))
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			errs = append(errs, fmt.Errorf("config: metrics path %q must start with /", c.Metrics.Path))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateListen() []error {
	var errs []error
	if c.Listen.Addr == "" {
		errs = append(errs, errors.New("config: listen addr required"))
	}
	if !strings.HasPrefix(c.Listen.Path, "/") {
		errs = append(errs, fmt.Errorf("config: listen path %q must start with /", c.Listen.Path))
	}
	if len(c.Listen.Serializers) == 0 {
		errs = append(errs, errors.New("config: at least one serializer required"))
	}
	for _, name := range c.Listen.Serializers {
		if _, err := wamp.LookupSerializer(name); err != nil {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}
	if c.Listen.ReadLimit < 0 {
		errs = append(errs, errors.New("config: read limit cannot be negative"))
	}
	if c.Listen.PingInterval < 0 || c.Listen.WriteTimeout < 0 {
		errs = append(errs, errors.New("config: listen intervals cannot be negative"))
	}
	return errs
}

func (c *Config) validateRouter() []error {
	var errs []error
	if c.Router.Workers <= 0 {
		errs = append(errs, fmt.Errorf("config: workers must be positive, got %d", c.Router.Workers))
	}
	if c.Router.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("config: queue size must be positive, got %d", c.Router.QueueSize))
	}
	if c.Router.OutboundQueue <= 0 {
		errs = append(errs, fmt.Errorf("config: outbound queue must be positive, got %d", c.Router.OutboundQueue))
	}
	return errs
}

func (c *Config) validateRetention() []error {
	switch c.Retention.Backend {
	case BackendNone, BackendMemory:
		return nil
	case BackendRedis:
		if err := c.Retention.Redis.Validate(); err != nil {
			return []error{fmt.Errorf("config: %w", err)}
		}
		return nil
	default:
		return []error{fmt.Errorf("config: unknown retention backend %q", c.Retention.Backend)}
	}
}

func (c Config) String() string {
	cp := c
	if cp.Retention.Redis.Password != "" {
		cp.Retention.Redis.Password = "***REDACTED***"
	}
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(cp))
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if c.Log.Console {
		return logging.NewConsoleLogger(w, level), nil
	}
	return logging.NewLoggerWithWriter(w, level), nil
}

// OpenRetention opens the configured store. The returned close function is
// never nil.
func (c *Config) OpenRetention(ctx context.Context) (retention.Store, func() error, error) {
	nop := func() error { return nil }
	switch c.Retention.Backend {
	case BackendMemory:
		return retention.NewMemoryStore(), nop, nil
	case BackendRedis:
		s, err := retention.NewRedisStore(ctx, c.Retention.Redis)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil
	default:
		return nil, nop, nil
	}
}

// RouterOptions maps the configuration onto router options. Logger,
// retention store and metrics are created by the caller.
func (c *Config) RouterOptions() wamprouter.Options {
	o := wamprouter.DefaultOptions()
	o.Realm = c.Realm
	o.Workers = c.Router.Workers
	o.QueueSize = c.Router.QueueSize
	o.OutboundQueue = c.Router.OutboundQueue
	o.DiscloseCaller = c.Router.DiscloseCaller
	return o
}
