package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"imgpack/internal/domain"
	"imgpack/internal/infra/logging"
)

// computeArchiveCacheKey hashes the render parameters together with every
// upload name and content, in order.
func computeArchiveCacheKey(params domain.RenderParams, uploads []domain.Upload) string {
	h := sha256.New()
	h.Write([]byte(params.String()))
	for _, u := range uploads {
		h.Write([]byte{0})
		h.Write([]byte(u.Filename))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(len(u.Data))))
		h.Write(u.Data)
	}
	return "archivecache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedArchive returns nil, nil on a miss.
func getCachedArchive(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.UserContext(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return nil, err
	}

	logging.Info("Archive cache hit", "key", key)
	return cached, nil
}

func setCachedArchive(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.UserContext(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
