package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ZanzyTHEbar/team-pulse/internal/cache"
	"github.com/ZanzyTHEbar/team-pulse/internal/monitoring"
)

const viewKeyPrefix = "metrics:"

// ViewCache provides caching for computed team and member views.
//
// Every invalidation bumps a generation counter. A view computed from reads
// that started under an older generation is never stored, so a slow read
// racing a write cannot repopulate the cache with pre-write data.
type ViewCache struct {
	cache  cache.Cache
	logger *monitoring.Logger
	gen    atomic.Uint64
}

// NewViewCache creates a view cache on top of any cache backend.
// A nil logger falls back to the default slog logger.
func NewViewCache(c cache.Cache, logger *monitoring.Logger) *ViewCache {
	if logger == nil {
		logger = &monitoring.Logger{Logger: slog.Default()}
	}
	return &ViewCache{cache: c, logger: logger}
}

func teamKey() string {
	return viewKeyPrefix + "team"
}

func memberKey(code string) string {
	return fmt.Sprintf("%smember:%s", viewKeyPrefix, code)
}

// Generation returns the current invalidation generation. Take it before
// reading from storage and pass it to the matching Set call.
func (vc *ViewCache) Generation() uint64 {
	return vc.gen.Load()
}

// GetTeamView retrieves the cached team view
func (vc *ViewCache) GetTeamView(ctx context.Context) (*TeamView, bool) {
	var view TeamView
	if !vc.get(ctx, teamKey(), &view) {
		return nil, false
	}
	return &view, true
}

// SetTeamView caches the team view computed under generation gen
func (vc *ViewCache) SetTeamView(ctx context.Context, gen uint64, view *TeamView) bool {
	return vc.set(ctx, gen, teamKey(), view)
}

// GetMemberView retrieves a cached member view
func (vc *ViewCache) GetMemberView(ctx context.Context, code string) (*MemberView, bool) {
	var view MemberView
	if !vc.get(ctx, memberKey(code), &view) {
		return nil, false
	}
	return &view, true
}

// SetMemberView caches a member view computed under generation gen
func (vc *ViewCache) SetMemberView(ctx context.Context, gen uint64, code string, view *MemberView) bool {
	return vc.set(ctx, gen, memberKey(code), view)
}

// InvalidateAll drops every cached view. Any member, assessment or metric
// write can change both views, so writers call this rather than picking keys.
func (vc *ViewCache) InvalidateAll(ctx context.Context) {
	vc.gen.Add(1)
	vc.cache.DeletePrefix(ctx, viewKeyPrefix)
	vc.logger.CacheLogger("invalidate", viewKeyPrefix+"*", false)
}

// Stats returns cache statistics
func (vc *ViewCache) Stats() map[string]interface{} {
	stats := vc.cache.Stats()
	stats["generation"] = vc.gen.Load()
	return stats
}

func (vc *ViewCache) get(ctx context.Context, key string, dst interface{}) bool {
	data, found := vc.cache.Get(ctx, key)
	if !found {
		vc.logger.CacheLogger("get", key, false)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		slog.Error("Failed to unmarshal cached view", "error", err, "key", key)
		vc.cache.Delete(ctx, key)
		return false
	}
	vc.logger.CacheLogger("get", key, true)
	return true
}

// set stores view unless an invalidation happened since gen was taken.
// The generation is checked again after the write: an invalidation that
// lands between the check and the write is caught here, one that lands
// after the write deletes the key itself.
func (vc *ViewCache) set(ctx context.Context, gen uint64, key string, view interface{}) bool {
	if vc.gen.Load() != gen {
		vc.logger.CacheLogger("set_stale", key, false)
		return false
	}
	data, err := json.Marshal(view)
	if err != nil {
		slog.Error("Failed to marshal view for cache", "error", err, "key", key)
		return false
	}
	vc.cache.Set(ctx, key, data)
	if vc.gen.Load() != gen {
		vc.cache.Delete(ctx, key)
		vc.logger.CacheLogger("set_stale", key, false)
		return false
	}
	vc.logger.CacheLogger("set", key, false)
	return true
}
