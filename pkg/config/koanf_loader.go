// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/consul/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigType selects which remote-config backend a Loader reads from,
// each wired through koanf's Provider abstraction ("the remote-config
// backends wired in (file, consul, etcd,
// zookeeper via koanf)").
type ConfigType string

const (
	ConfigTypeFile      ConfigType = "file"
	ConfigTypeConsul    ConfigType = "consul"
	ConfigTypeEtcd      ConfigType = "etcd"
	ConfigTypeZookeeper ConfigType = "zookeeper"
)

// ParseConfigType validates and normalizes a --config-type flag value.
func ParseConfigType(s string) (ConfigType, error) {
	switch ConfigType(s) {
	case ConfigTypeFile, ConfigTypeConsul, ConfigTypeEtcd, ConfigTypeZookeeper, "":
		if s == "" {
			return ConfigTypeFile, nil
		}
		return ConfigType(s), nil
	default:
		return "", fmt.Errorf("unknown config type %q (valid: file, consul, etcd, zookeeper)", s)
	}
}

// byteReader is the minimal shape every backend's provider exposes: the
// raw YAML document, pre-parse, so env-var expansion can run once over
// the text rather than over an already-decoded value tree.
type byteReader interface {
	ReadBytes() ([]byte, error)
}

// watcher is the shape every non-file backend's hand-written provider
// implements (ZookeeperProvider, EtcdProvider); koanf's file.Provider
// implements an equivalent Watch method of its own.
type watcher interface {
	Watch(cb func(event interface{}, err error)) error
}

type closer interface {
	Close() error
}

// byteProvider feeds an already-read (and already env-expanded) byte
// slice into koanf, satisfying koanf.Provider without a second
// ecosystem dependency beyond the yaml parser already in use.
type byteProvider struct{ b []byte }

func (p byteProvider) ReadBytes() ([]byte, error) { return p.b, nil }

func (p byteProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("byteProvider: Read unsupported, use ReadBytes")
}

// LoaderOptions configures one Loader instance.
type LoaderOptions struct {
	Type ConfigType

	// Path is the file path (file), key (consul/etcd), or znode path
	// (zookeeper) holding the YAML document.
	Path string

	// Endpoints addresses the consul/etcd/zookeeper cluster; ignored for
	// the file backend. Defaults are applied per backend when empty.
	Endpoints []string

	// Watch enables hot reload: file changes are picked up via koanf's
	// file.Provider (itself fsnotify-backed); consul/etcd/zookeeper
	// changes are picked up via their respective watch primitives.
	Watch bool

	// OnChange is invoked after each successful reload triggered by
	// Watch. It receives no config value directly; the caller
	// re-unmarshals via Loader.UnmarshalAgentFile/UnmarshalServerConfig
	// to pick up the new state. The Loader itself only re-reads and
	// re-parses the document: it invalidates no discovery cache and
	// never hot-swaps a running task's tools mid-execution.
	OnChange func()
}

// Loader loads a YAML configuration document from one of four backends
// and keeps it live via Watch, built on a koanf-based
// Loader (file/consul/etcd/zookeeper dispatch, env-var expansion,
// OnChange callback shape).
type Loader struct {
	k        *koanf.Koanf
	opts     LoaderOptions
	provider byteReader
	stopCh   chan struct{}
}

// NewLoader builds a Loader for opts.Type, applying per-backend default
// endpoints when none are given.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config: path is required")
	}

	l := &Loader{opts: opts, stopCh: make(chan struct{})}

	switch opts.Type {
	case "", ConfigTypeFile:
		l.provider = file.Provider(opts.Path)

	case ConfigTypeConsul:
		endpoints := opts.Endpoints
		if len(endpoints) == 0 {
			endpoints = []string{"127.0.0.1:8500"}
		}
		cfg := api.DefaultConfig()
		cfg.Address = endpoints[0]
		client, err := api.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("config: failed to build consul client: %w", err)
		}
		l.provider = consul.Provider(consul.Config{Key: opts.Path, Client: client})

	case ConfigTypeEtcd:
		endpoints := opts.Endpoints
		if len(endpoints) == 0 {
			endpoints = []string{"127.0.0.1:2379"}
		}
		p, err := NewEtcdProvider(endpoints, opts.Path)
		if err != nil {
			return nil, err
		}
		l.provider = p

	case ConfigTypeZookeeper:
		endpoints := opts.Endpoints
		if len(endpoints) == 0 {
			endpoints = []string{"127.0.0.1:2181"}
		}
		p, err := NewZookeeperProvider(endpoints, opts.Path)
		if err != nil {
			return nil, err
		}
		l.provider = p

	default:
		return nil, fmt.Errorf("config: unknown config type %q", opts.Type)
	}

	return l, nil
}

// Load reads the document, expands ${VAR}/${VAR:-default} references
// against the process environment (env.go) over the raw YAML text, and,
// if Watch is enabled, starts the background watch goroutine.
func (l *Loader) Load() error {
	return l.reload(func() {
		if l.opts.Watch {
			if w, ok := l.provider.(watcher); ok {
				go l.watch(w)
			}
		}
	})
}

func (l *Loader) reload(after func()) error {
	raw, err := l.provider.ReadBytes()
	if err != nil {
		return fmt.Errorf("config: failed to read: %w", err)
	}

	expanded := expandEnvVars(string(raw))

	k := koanf.New(".")
	if err := k.Load(byteProvider{b: []byte(expanded)}, yaml.Parser()); err != nil {
		return fmt.Errorf("config: failed to parse: %w", err)
	}
	l.k = k

	if after != nil {
		after()
	}
	return nil
}

func (l *Loader) watch(w watcher) {
	_ = w.Watch(func(event interface{}, err error) {
		select {
		case <-l.stopCh:
			return
		default:
		}
		if err != nil {
			return
		}
		if reloadErr := l.reload(nil); reloadErr != nil {
			return
		}
		if l.opts.OnChange != nil {
			l.opts.OnChange()
		}
	})
}

// Stop ends the watch goroutine and releases the provider's connection,
// if it holds one.
func (l *Loader) Stop() {
	close(l.stopCh)
	if c, ok := l.provider.(closer); ok {
		_ = c.Close()
	}
}

// SetOnChange registers (or replaces) the hot-reload callback.
func (l *Loader) SetOnChange(cb func()) { l.opts.OnChange = cb }

// UnmarshalAgentFile decodes the loaded document into an AgentFile.
func (l *Loader) UnmarshalAgentFile() (*AgentFile, error) {
	var f AgentFile
	if err := l.unmarshal(&f); err != nil {
		return nil, err
	}
	f.Spec.Agent.SetDefaults()
	if err := f.Spec.Agent.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// UnmarshalServerConfig decodes the loaded document into a ServerConfig.
func (l *Loader) UnmarshalServerConfig() (*ServerConfig, error) {
	var c ServerConfig
	if err := l.unmarshal(&c); err != nil {
		return nil, err
	}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (l *Loader) unmarshal(out interface{}) error {
	if result, err := ValidateConfigStructure(l.k.Raw(), out); err == nil && !result.Valid() {
		return fmt.Errorf("config: %s", result.FormatErrors())
	}
	return l.k.UnmarshalWithConf("", out, koanf.UnmarshalConf{Tag: "mapstructure"})
}

// LoadAgentFile is a convenience wrapper around NewLoader+Load+
// UnmarshalAgentFile for one-shot (non-watching) reads.
func LoadAgentFile(opts LoaderOptions) (*AgentFile, error) {
	l, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l.UnmarshalAgentFile()
}

// LoadServerConfig is a convenience wrapper around NewLoader+Load+
// UnmarshalServerConfig for one-shot (non-watching) reads.
func LoadServerConfig(opts LoaderOptions) (*ServerConfig, error) {
	l, err := NewLoader(opts)
	if err != nil {
		return nil, err
	}
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l.UnmarshalServerConfig()
}
