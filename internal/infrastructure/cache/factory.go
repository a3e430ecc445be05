package cache

import (
	"go.uber.org/zap"
)

// NewProductCache selects the product cache implementation. When redis is
// enabled and reachable it is preferred (resolved products survive between
// passes); otherwise the per-run in-memory cache is used.
func NewProductCache(enabled bool, cfg RedisConfig, logger *zap.Logger) ProductCache {
	if enabled {
		store, err := NewRedisProductCache(cfg)
		if err == nil {
			logger.Info("Using redis product cache",
				zap.String("host", cfg.Host),
				zap.Int("port", cfg.Port),
			)
			return store
		}
		logger.Warn("Redis unavailable, falling back to in-memory product cache",
			zap.Error(err),
		)
	}
	return NewInMemoryProductCache()
}
