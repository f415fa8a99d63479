// Copyright 2026 The Telefind Authors
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
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telefind/telefind/pkg/bot"
	"github.com/telefind/telefind/pkg/config"
	"github.com/telefind/telefind/pkg/memory"
	"github.com/telefind/telefind/pkg/model"
	"github.com/telefind/telefind/pkg/model/gemini"
	"github.com/telefind/telefind/pkg/observability"
	"github.com/telefind/telefind/pkg/pagination"
	"github.com/telefind/telefind/pkg/ratelimit"
	"github.com/telefind/telefind/pkg/search"
	"github.com/telefind/telefind/pkg/telegram"
)

// ServeCmd starts the bot.
type ServeCmd struct {
	Watch bool `help:"Watch the config file and apply rate limit changes on the fly."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	tg, err := telegram.NewClient(cfg.Telegram)
	if err != nil {
		return fmt.Errorf("failed to create transport client: %w", err)
	}

	// SQLite connections are shared so concurrent writers do not trip
	// over database locks.
	dbPool := config.NewDBPool()
	defer dbPool.Close()

	store, err := buildRateLimitStore(cfg, dbPool)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter, err := ratelimit.New(&cfg.RateLimits, store)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	var provider search.Provider
	if cfg.Database != nil {
		db, err := dbPool.Get(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		provider, err = search.NewSQLProvider(db, cfg.Database.Dialect())
		if err != nil {
			return fmt.Errorf("failed to create search provider: %w", err)
		}
	}

	var llm model.LLM
	if cfg.LLM.IsEnabled() {
		llm, err = gemini.New(gemini.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			return fmt.Errorf("failed to create model provider: %w", err)
		}
		defer llm.Close()
	}

	obs := observability.NewManager(observability.Config{
		Tracing: observability.TracerConfig{
			Enabled:      cfg.Observability.TracingEnabled,
			EndpointURL:  cfg.Observability.OTLPEndpoint,
			SamplingRate: cfg.Observability.SamplingRate,
			ServiceName:  cfg.Observability.ServiceName,
		},
		Metrics: observability.MetricsConfig{
			Enabled: cfg.Observability.MetricsEnabled,
			Port:    cfg.Observability.MetricsPort,
		},
	})
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	b, err := bot.New(bot.Options{
		Transport: tg,
		Limiter:   limiter,
		History:   memory.NewStore(cfg.Memory),
		Pages:     pagination.New(cfg.Pagination),
		Search:    provider,
		LLM:       llm,
		Config:    cfg,
		Metrics:   obs.GetMetrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	if c.Watch && cli.Config != "" {
		loader := config.NewLoader(cli.Config, func(next *config.Config) {
			limiter.SetLimits(&next.RateLimits)
		})
		go func() {
			if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Config watch error", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Observability.MetricsEnabled {
		metricsSrv := observability.NewServer(observability.MetricsConfig{
			Enabled: true,
			Port:    cfg.Observability.MetricsPort,
		})
		g.Go(metricsSrv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
		slog.Info("Metrics enabled", "port", cfg.Observability.MetricsPort)
	}

	g.Go(func() error {
		return b.Run(gctx, tg)
	})

	slog.Info("telefind ready",
		"llm", cfg.LLM.IsEnabled(),
		"search", provider != nil,
		"rate_limit_backend", cfg.RateLimits.Backend,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Shutdown complete")
	return nil
}

// buildRateLimitStore picks the accounting backend: SQL when configured
// with a database, in-memory otherwise.
func buildRateLimitStore(cfg *config.Config, pool *config.DBPool) (ratelimit.Store, error) {
	if cfg.RateLimits.Backend == "sql" {
		if cfg.Database == nil {
			return nil, fmt.Errorf("rate limit backend %q requires a database section", cfg.RateLimits.Backend)
		}
		db, err := pool.Get(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		store, err := ratelimit.NewSQLStore(db, cfg.Database.Dialect())
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
		return store, nil
	}
	return ratelimit.NewMemoryStore(), nil
}
