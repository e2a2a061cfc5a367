package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pocketllm/pocketllm/pkg/admin"
	"github.com/pocketllm/pocketllm/pkg/audit"
	cachepkg "github.com/pocketllm/pocketllm/pkg/cache/sqlite"
	"github.com/pocketllm/pocketllm/pkg/chat"
	"github.com/pocketllm/pocketllm/pkg/config"
	"github.com/pocketllm/pocketllm/pkg/models"
	"github.com/pocketllm/pocketllm/pkg/store"
)

// sources are the read paths shared by the offline commands.
type sources struct {
	store *store.Store
	cache *cachepkg.Cache
	audit *audit.Logger
	close func()
}

// openSources opens the store plus the cache and audit log when enabled.
// An unavailable cache is logged and left nil.
func openSources(cfg *config.Config, logger *slog.Logger) (*sources, error) {
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	src := &sources{store: st}
	closers := []func() error{st.Close}

	if cfg.Cache.Enabled {
		c, err := cachepkg.New(cfg.DBPath)
		if err != nil {
			logger.Warn("query cache unavailable", "error", err)
		} else {
			src.cache = c
			closers = append(closers, c.Close)
		}
	}

	if cfg.Audit.Enabled {
		al, err := audit.New(cfg.Audit)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, fmt.Errorf("init audit log: %w", err)
		}
		src.audit = al
		closers = append(closers, al.Close)
	}

	src.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}
	return src, nil
}

func (s *sources) adminStats() *admin.Stats {
	var latency admin.LatencySource
	if s.audit != nil {
		latency = s.audit
	}
	return admin.New(s.store, cacheReporter{s.cache}, latency)
}

// cacheReporter adapts the cache for admin.Stats outside a running server.
type cacheReporter struct {
	c *cachepkg.Cache
}

func (r cacheReporter) CacheStats(ctx context.Context) models.CacheStats {
	empty := models.CacheStats{Top: []models.CacheEntry{}}
	if r.c == nil {
		return empty
	}
	stats, err := r.c.Stats(ctx, chat.TopCachedQueries)
	if err != nil {
		return empty
	}
	return stats
}
