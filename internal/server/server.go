package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emailcraft/drip/pkg/metrics"
)

func NewHTTPServer(addr string, h *Handlers) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery(), Observability())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.POST("/flowcharts", h.SaveFlowchart)
	r.GET("/flowcharts", h.ListFlowcharts)
	r.GET("/flowcharts/:id", h.GetFlowchart)
	r.DELETE("/flowcharts/:id", h.DeleteFlowchart)
	r.POST("/flowcharts/:id/process", h.ProcessFlowchart)
	r.GET("/flowcharts/:id/schedules", h.ListSchedules)
	r.GET("/jobs", h.ListJobs)

	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}
