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

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/arcadeflow/agentserver/internal/keylock"
	"github.com/arcadeflow/agentserver/pkg/auth"
	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/config"
	"github.com/arcadeflow/agentserver/pkg/handler"
	"github.com/arcadeflow/agentserver/pkg/kernel"
	"github.com/arcadeflow/agentserver/pkg/llm"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
	"github.com/arcadeflow/agentserver/pkg/observability"
	"github.com/arcadeflow/agentserver/pkg/oauth"
	"github.com/arcadeflow/agentserver/pkg/session"
	"github.com/arcadeflow/agentserver/pkg/task"
	"github.com/arcadeflow/agentserver/pkg/transport"
)

// ServeCmd starts the agent orchestration server.
type ServeCmd struct {
	ConfigType string `name:"config-type" help:"Configuration backend: file, consul, etcd, zookeeper." default:"file"`
	ConfigPath string `name:"config-path" help:"Configuration path: file path, or key/znode for remote backends." required:""`
	Endpoints  string `help:"Comma-separated cluster endpoints for consul/etcd/zookeeper backends."`
	Watch      bool   `help:"Watch the configuration source and hot-reload mounted agents on change."`
}

// pluginConstructor builds a kernel.NativeFunction from a PluginRef's
// declarative Params. Native plugin implementations are an external
// concern (spec's "individual plugin implementations" exclusion): this
// registry is the seam a real deployment populates with its own
// functions before calling run. It is empty by default.
var pluginConstructors = map[string]func(params map[string]any) (kernel.NativeFunction, error){}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down...")
		cancel()
	}()

	configType, err := config.ParseConfigType(c.ConfigType)
	if err != nil {
		return err
	}

	opts := config.LoaderOptions{
		Type:      configType,
		Path:      c.ConfigPath,
		Endpoints: splitNonEmpty(c.Endpoints),
		Watch:     c.Watch,
	}

	loader, err := config.NewLoader(opts)
	if err != nil {
		return fmt.Errorf("failed to build config loader: %w", err)
	}
	defer loader.Stop()

	if err := loader.Load(); err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	cfg, err := loader.UnmarshalServerConfig()
	if err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Watch {
		loader.SetOnChange(func() {
			slog.Info("configuration changed, reloading mounts")
			newCfg, err := loader.UnmarshalServerConfig()
			if err != nil {
				slog.Error("reload failed, keeping previous configuration", "error", err)
				return
			}
			if err := app.reloadMounts(newCfg); err != nil {
				slog.Error("reload failed, keeping previous mounts", "error", err)
			}
		})
	}

	slog.Info("agentserver starting", "address", cfg.Address, "mounts", len(cfg.Mounts))
	for _, m := range app.server.Mounts() {
		slog.Info("agent mounted", "name", m.Name, "path", m.Path)
	}

	return app.server.Start()
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// app bundles every process-wide subsystem plus the live transport.Server,
// so a config reload can rebuild mounts without tearing down persistence
// or observability.
type app struct {
	cfg *config.ServerConfig

	db  *sql.DB
	rdb *redis.Client

	cache      *session.Cache
	catalog    *catalog.Catalog
	authorizer auth.Authorizer
	broker     *oauth.Broker
	storage    oauth.Storage
	resolver   *oauth.Resolver
	registry   *mcpregistry.Registry
	tasks      task.Service
	obs        *observability.Manager

	server *transport.Server
}

func buildApp(ctx context.Context, cfg *config.ServerConfig) (*app, error) {
	a := &app{cfg: cfg}

	db, rdb, err := openPersistence(cfg.Persistence)
	if err != nil {
		return nil, err
	}
	a.db, a.rdb = db, rdb

	tasks, err := task.NewServiceFromConfig(task.Backend(cfg.Persistence.Backend), db, rdb)
	if err != nil {
		return nil, fmt.Errorf("failed to build task service: %w", err)
	}
	a.tasks = tasks

	storage, err := oauth.NewStorageFromConfig(oauth.Backend(cfg.Persistence.Backend), db, rdb)
	if err != nil {
		return nil, fmt.Errorf("failed to build oauth storage: %w", err)
	}
	a.storage = storage

	authorizer, err := buildAuthorizer(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}
	a.authorizer = authorizer

	a.broker = config.BuildBroker(cfg.OAuthServers)
	a.resolver = oauth.NewResolver(storage, a.broker, &keylock.Map[string]{})
	a.cache = session.NewCache()
	a.catalog = catalog.New()
	a.registry = mcpregistry.NewRegistry(a.cache, a.catalog, a.resolver)

	obs, err := observability.NewManager(ctx, &cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to build observability manager: %w", err)
	}
	a.obs = obs

	mounts, err := a.buildMounts(cfg)
	if err != nil {
		return nil, err
	}

	a.server = transport.NewServer(transport.Config{
		Address:       cfg.Address,
		GRPCAddress:   cfg.GRPCAddress,
		Mounts:        mounts,
		Authorizer:    authorizer,
		Broker:        a.broker,
		Storage:       storage,
		Registry:      a.registry,
		Observability: obs,
	})

	return a, nil
}

// buildMounts loads each configured agent file (or uses its inline body)
// and builds a handler.Handler for it, sharing the process-wide
// persistence/discovery subsystems.
func (a *app) buildMounts(cfg *config.ServerConfig) ([]transport.Mount, error) {
	mounts := make([]transport.Mount, 0, len(cfg.Mounts))
	for _, m := range cfg.Mounts {
		agentFile := m.Inline
		if agentFile == nil {
			f, err := config.LoadAgentFile(config.LoaderOptions{Type: config.ConfigTypeFile, Path: m.File})
			if err != nil {
				return nil, fmt.Errorf("failed to load agent file %q: %w", m.File, err)
			}
			agentFile = f
		}

		h, err := a.buildHandler(agentFile.Spec.Agent)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", agentFile.Name, err)
		}

		mounts = append(mounts, transport.Mount{
			Name:    agentFile.Spec.Agent.Name,
			Path:    agentFile.Resolve(),
			Handler: h,
		})
	}
	return mounts, nil
}

func (a *app) buildHandler(agent config.AgentConfig) (*handler.Handler, error) {
	nativeTools := make([]handler.NativeTool, 0, len(agent.Plugins))
	for _, p := range agent.Plugins {
		ctor, ok := pluginConstructors[p.Name]
		if !ok {
			return nil, fmt.Errorf("no native plugin registered for %q", p.Name)
		}
		fn, err := ctor(p.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to build native plugin %q: %w", p.Name, err)
		}
		nativeTools = append(nativeTools, handler.NativeTool{PluginName: p.Name, Function: fn})
	}

	return handler.New(handler.Config{
		MCPServers:  agent.MCPRegistryConfigs(),
		NativeTools: nativeTools,
		MaxRounds:   agent.MaxRounds,
	}, handler.Deps{
		Tasks:      a.tasks,
		Cache:      a.cache,
		Registry:   a.registry,
		Catalog:    a.catalog,
		Resolver:   a.resolver,
		Refresher:  a.broker,
		Authorizer: a.authorizer,
		// The chat-completion endpoint is an external collaborator with
		// no concrete implementation in this module (llm.Provider is a
		// boundary interface only); a real deployment replaces this with
		// a Provider backed by whatever model API agent.Model names.
		Provider: &llm.ScriptedProvider{ProviderName: agent.Model},
	}), nil
}

// reloadMounts rebuilds and hot-swaps the agent mounts in place, without
// disturbing persistence, auth, or observability wiring.
func (a *app) reloadMounts(cfg *config.ServerConfig) error {
	mounts, err := a.buildMounts(cfg)
	if err != nil {
		return err
	}
	a.server.UpdateMounts(mounts)
	a.cfg = cfg
	return nil
}

func (a *app) Close() {
	if a.obs != nil {
		_ = a.obs.Shutdown(context.Background())
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func buildAuthorizer(ctx context.Context, cfg config.AuthConfig) (auth.Authorizer, error) {
	if !cfg.IsEnabled() {
		return auth.DummyAuthorizer{}, nil
	}
	return auth.NewJWTAuthorizer(ctx, cfg.JWTAuthorizerConfig())
}

func openPersistence(cfg config.PersistenceConfig) (*sql.DB, *redis.Client, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		if cfg.Postgres.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		}
		return db, nil, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return nil, rdb, nil
	default:
		return nil, nil, nil
	}
}
