package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/emailcraft/drip/internal/graphstore"
	"github.com/emailcraft/drip/internal/jobstore"
	"github.com/emailcraft/drip/internal/scheduler"
	"github.com/emailcraft/drip/pkg/api"
	"github.com/emailcraft/drip/pkg/logx"
	"github.com/emailcraft/drip/pkg/metrics"
)

type Handlers struct {
	Graphs graphstore.Store
	Sched  *scheduler.Scheduler
}

func NewHandlers(graphs graphstore.Store, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{Graphs: graphs, Sched: sched}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// SaveFlowchart upserts a campaign graph. A blank id means create; the
// stored graph (with its assigned id) is echoed back.
func (h *Handlers) SaveFlowchart(c *gin.Context) {
	var g api.Graph
	if err := c.ShouldBindJSON(&g); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	saved, err := h.Graphs.SaveGraph(ctx, &g)
	if err != nil {
		if errors.Is(err, api.ErrInvalidGraph) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logx.L().Errorw("save_flowchart_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save error"})
		return
	}

	c.JSON(http.StatusOK, saved)
}

func (h *Handlers) ListFlowcharts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	graphs, err := h.Graphs.ListGraphs(ctx)
	if err != nil {
		logx.L().Errorw("list_flowcharts_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list error"})
		return
	}

	c.JSON(http.StatusOK, graphs)
}

func (h *Handlers) GetFlowchart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	g, err := h.Graphs.GetGraph(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, api.ErrGraphNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "flowchart not found"})
			return
		}
		logx.L().Errorw("get_flowchart_error", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get error"})
		return
	}

	c.JSON(http.StatusOK, g)
}

func (h *Handlers) DeleteFlowchart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Graphs.DeleteGraph(ctx, c.Param("id")); err != nil {
		if errors.Is(err, api.ErrGraphNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "flowchart not found"})
			return
		}
		logx.L().Errorw("delete_flowchart_error", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete error"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ProcessFlowchart compiles the stored graph into scheduled jobs. The
// compile result is returned as the body; a missing graph is a 404, any
// other compile failure a 422.
func (h *Handlers) ProcessFlowchart(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	timer := prometheus.NewTimer(metrics.CompileDuration)
	res := h.Sched.CompileAndSchedule(ctx, c.Param("id"))
	timer.ObserveDuration()

	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case errors.Is(res.Err, api.ErrGraphNotFound):
		c.JSON(http.StatusNotFound, res)
	default:
		c.JSON(http.StatusUnprocessableEntity, res)
	}
}

// ListSchedules returns the audit records written when the graph was
// processed, newest first.
func (h *Handlers) ListSchedules(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	records, err := h.Sched.Records(ctx, c.Param("id"))
	if err != nil {
		logx.L().Errorw("list_schedules_error", "id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list error"})
		return
	}

	c.JSON(http.StatusOK, records)
}

// ListJobs returns job views, optionally filtered by ?status= and
// ?due_before= (RFC 3339).
func (h *Handlers) ListJobs(c *gin.Context) {
	var f jobstore.Filter
	if s := c.Query("status"); s != "" {
		switch api.JobStatus(s) {
		case api.StatusPending, api.StatusLocked, api.StatusCompleted, api.StatusFailed:
			f.Status = api.JobStatus(s)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}
	if d := c.Query("due_before"); d != "" {
		ts, err := time.Parse(time.RFC3339, d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_before"})
			return
		}
		f.DueBefore = ts
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	views, err := h.Sched.Query(ctx, f)
	if err != nil {
		logx.L().Errorw("list_jobs_error", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list error"})
		return
	}

	c.JSON(http.StatusOK, views)
}
