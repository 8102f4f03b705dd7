package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterConfig конфигурация rate limiter
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Количество запросов в секунду
	BurstSize         int           // Максимальный размер burst
	CleanupInterval   time.Duration // Интервал очистки неактивных клиентов
}

// DefaultRateLimiterConfig конфигурация по умолчанию
var DefaultRateLimiterConfig = RateLimiterConfig{
	RequestsPerSecond: 10,
	BurstSize:         20,
	CleanupInterval:   time.Minute,
}

// visitor представляет rate limiter для одного клиента
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter ограничивает запросы по алгоритму Token Bucket.
// Состояние локально для инстанса и защищает только его самого.
type RateLimiter struct {
	config   RateLimiterConfig
	visitors map[string]*visitor // ключ клиента -> visitor
	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter создаёт rate limiter и запускает фоновую очистку
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = DefaultRateLimiterConfig.BurstSize
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultRateLimiterConfig.CleanupInterval
	}

	rl := &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop останавливает фоновую очистку
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup удаляет клиентов, неактивных дольше трёх интервалов
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.config.CleanupInterval*3 {
			delete(rl.visitors, key)
		}
	}
}

// Visitors количество отслеживаемых клиентов
func (rl *RateLimiter) Visitors() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, exists := rl.visitors[key]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize)
	rl.visitors[key] = &visitor{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

// Middleware ограничивает запросы по IP клиента
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return rl.MiddlewareWithKey(nil)
}

// MiddlewareWithKey ограничивает запросы по произвольному ключу; пустой ключ заменяется IP
func (rl *RateLimiter) MiddlewareWithKey(getKey func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if getKey != nil {
			key = getKey(c)
		}
		if key == "" {
			key = c.ClientIP()
		}

		if !rl.getLimiter(key).Allow() {
			retryAfter := int(math.Ceil(1 / rl.config.RequestsPerSecond))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests, try again later",
				"retry_after": retryAfter,
			})
			return
		}

		c.Next()
	}
}
