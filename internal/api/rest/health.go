package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// Pinger 依赖的健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterHealth 挂载 /healthz 与 /metrics。checks 中的 nil 项会被跳过
func RegisterHealth(engine *gin.Engine, gatherer prometheus.Gatherer, checks map[string]Pinger) {
	engine.GET("/healthz", func(g *gin.Context) {
		ctx, cancel := context.WithTimeout(g.Request.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		g.JSON(status, report)
	})

	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
