package health

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewChecker 创建健康检查器。
func NewChecker(logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}
}

// AddReadinessCheck 注册就绪检查（依赖可用性，如 Redis、过滤引擎）。
func (c *Checker) AddReadinessCheck(name string, check func() error) {
	c.health.AddReadinessCheck(name, func() error {
		if err := check(); err != nil {
			c.logger.Warn("readiness check failed",
				zap.String("check", name),
				zap.Error(err))
			return err
		}
		return nil
	})
}

// AddLivenessCheck 注册存活检查。
func (c *Checker) AddLivenessCheck(name string, check func() error) {
	c.health.AddLivenessCheck(name, check)
}

// LiveEndpoint 存活探针处理函数。
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针处理函数。
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.health.ReadyEndpoint(w, r)
}
