package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailguard/backend/internal/storage"
)

// PrincipalRateLimiter 基于滑动窗口的按主体限流中间件。
// 计数存储可替换（内存或 Redis），多实例部署时共享窗口。
type PrincipalRateLimiter struct {
	counter storage.CounterStore
	limit   int64
	window  time.Duration
	log     *zap.Logger

	onReject func()
}

// NewPrincipalRateLimiter 创建按主体限流中间件。
func NewPrincipalRateLimiter(counter storage.CounterStore, limit int64, window time.Duration, log *zap.Logger) *PrincipalRateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrincipalRateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		log:     log,
	}
}

// OnReject 注册限流拒绝时的回调（用于指标上报）。
func (rl *PrincipalRateLimiter) OnReject(fn func()) {
	rl.onReject = fn
}

// Handler 返回 gin 中间件。需置于认证中间件之后。
func (rl *PrincipalRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "authentication required",
			})
			c.Abort()
			return
		}

		count, err := rl.counter.Increment(c.Request.Context(), principal.Mailbox, rl.window)
		if err != nil {
			// 计数失败时放行，限流不应成为单点故障
			rl.log.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > rl.limit {
			rl.log.Warn("rate limit exceeded",
				zap.String("mailbox", principal.Mailbox),
				zap.Int64("count", count),
				zap.Int64("limit", rl.limit))
			if rl.onReject != nil {
				rl.onReject()
			}
			c.Header("Retry-After", formatSeconds(rl.window))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "too many requests, please slow down",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ipLimiter 保存单个来源 IP 的令牌桶和最后访问时间。
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter 按来源 IP 的粗粒度限流，保护未认证端点。
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time

	onReject func()
}

// NewIPRateLimiter 创建按 IP 限流中间件。
func NewIPRateLimiter(r float64, burst int, log *zap.Logger) *IPRateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(r),
		burst:    burst,
		ttl:      10 * time.Minute,
		log:      log,
		now:      time.Now,
	}
}

// OnReject 注册限流拒绝时的回调。
func (rl *IPRateLimiter) OnReject(fn func()) {
	rl.onReject = fn
}

// Handler 返回 gin 中间件。
func (rl *IPRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.allow(ip) {
			rl.log.Warn("ip rate limit exceeded", zap.String("ip", ip))
			if rl.onReject != nil {
				rl.onReject()
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status":  "error",
				"message": "too many requests, please slow down",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *IPRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[ip]
	if !ok {
		// lastAccess 必须先于清理赋值，否则零值条目会被立刻清掉。
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst), lastAccess: now}
		rl.limiters[ip] = entry
		rl.pruneLocked(now)
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// pruneLocked 清理长时间未访问的 IP 条目。调用方需持锁。
func (rl *IPRateLimiter) pruneLocked(now time.Time) {
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.ttl {
			delete(rl.limiters, ip)
		}
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
