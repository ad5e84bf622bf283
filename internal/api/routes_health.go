package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/smartpost/internal/app"
	"github.com/charlesng35/smartpost/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, db handlers.Pinger, prom app.PrometheusConfig) {
	health := handlers.Health(db)
	r.GET("/health", health)
	r.GET("/api/health", health)

	if prom.Enabled {
		endpoint := prom.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}
