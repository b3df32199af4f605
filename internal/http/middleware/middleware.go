// Package middleware installs the global Fiber middleware stack.
package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	recoverer "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"

	"imgpack/internal/auth"
	"imgpack/internal/config"
	"imgpack/internal/infra/logging"
)

const (
	apiKeyHeader = "X-API-Key"
	apiKeyLocal  = "api_key"

	LivenessPath  = "/ops/health"
	ReadinessPath = "/ops/ready"
)

// Deps are the shared collaborators of the middleware stack. Every field is
// optional.
type Deps struct {
	Keys    *auth.Store
	Storage fiber.Storage
	Ready   func(*fiber.Ctx) bool
}

// NewStorage returns the rate-limit storage: Redis when a host is configured
// and reachable, otherwise process memory.
func NewStorage(cfg config.Config) (store fiber.Storage) {
	if cfg.Cache.RedisHost == "" {
		return memoryStorage.New()
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
			store = memoryStorage.New()
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Cache.RedisHost},
		Database: cfg.Cache.RateLimitDB,
	})
	logging.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
	return store
}

// Register attaches global middleware to the app.
func Register(app *fiber.App, cfg config.Config, deps Deps) {
	if deps.Storage == nil {
		deps.Storage = memoryStorage.New()
	}

	app.Use(recoverer.New())

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  LivenessPath,
		ReadinessEndpoint: ReadinessPath,
		ReadinessProbe:    deps.Ready,
	}))

	app.Use(requestLogger())

	if deps.Keys != nil {
		app.Use(apiKeyAuth(deps.Keys))
		limiters := &keyLimiters{store: deps.Storage, cfg: cfg, handlers: make(map[int]fiber.Handler)}
		app.Use(limiters.middleware(deps.Keys))
	}

	if cfg.RateLimiter.EnableUserLimiter && cfg.RateLimiter.UserLimit > 0 {
		app.Use(userRateLimit(cfg, deps.Storage))
	}
}

func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = string(c.Response().Header.Peek(fiber.HeaderXRequestID))
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	}
}

// apiKeyAuth validates X-API-Key when present. Requests without the header
// pass through to the anonymous per-client limiter.
func apiKeyAuth(keys *auth.Store) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + apiKeyHeader,
		ContextKey: apiKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if err := keys.Validate(key); err != nil {
				return false, err
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get(apiKeyHeader) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may pass a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, auth.ErrStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return fiber.NewError(status, err.Error())
		},
	})
}

// keyLimiters caches one limiter per distinct per-key budget.
type keyLimiters struct {
	mu       sync.RWMutex
	handlers map[int]fiber.Handler
	store    fiber.Storage
	cfg      config.Config
}

func (l *keyLimiters) get(limit int) fiber.Handler {
	l.mu.RLock()
	h, ok := l.handlers[limit]
	l.mu.RUnlock()
	if ok {
		return h
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handlers[limit]; ok {
		return h
	}
	h = limiter.New(limiter.Config{
		Max:               limit,
		Expiration:        l.cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           l.store,
		KeyGenerator: func(c *fiber.Ctx) string {
			key, _ := c.Locals(apiKeyLocal).(string)
			return "key:" + key
		},
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "api_key", redact(c.Locals(apiKeyLocal)), "path", c.Path())
			return fiber.NewError(fiber.StatusTooManyRequests, "Too Many Requests")
		},
	})
	l.handlers[limit] = h
	return h
}

func (l *keyLimiters) middleware(keys *auth.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, ok := c.Locals(apiKeyLocal).(string)
		if !ok || key == "" {
			return c.Next()
		}
		limit := keys.RateLimit(key)
		if limit <= 0 {
			return c.Next()
		}
		return l.get(limit)(c)
	}
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return "user:" + hex.EncodeToString(sum[:])
}

// userRateLimit limits anonymous clients by IP and user agent. Requests that
// carry a validated API key are budgeted by their key instead.
func userRateLimit(cfg config.Config, store fiber.Storage) fiber.Handler {
	userLimiter := limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			logging.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return fiber.NewError(fiber.StatusTooManyRequests, "Too Many Requests")
		},
	})
	return func(c *fiber.Ctx) error {
		if key, ok := c.Locals(apiKeyLocal).(string); ok && key != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}

func redact(v any) string {
	key, _ := v.(string)
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
