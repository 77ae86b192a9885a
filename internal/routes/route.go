// Package routes 组装管理HTTP服务
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"smart_head/internal/handlers"
	"smart_head/internal/metrics"
	"smart_head/internal/middleware"
)

// Deps 管理接口依赖
type Deps struct {
	Sessions handlers.SessionStore
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Version  string
	Events   http.Handler // 会话事件推送，可为空
}

// NewEngine 创建注册好中间件和路由的gin引擎
func NewEngine(deps Deps) *gin.Engine {
	r := gin.New()
	middleware.Setup(r, deps.Logger, deps.Metrics)

	metricsHandler := promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	handlers.RegisterRoutes(r, handlers.NewHandler(deps.Sessions, deps.Version), metricsHandler)
	if deps.Events != nil {
		r.GET("/events", gin.WrapH(deps.Events))
	}
	return r
}
