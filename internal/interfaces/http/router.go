// Package http exposes the pipeline's operational HTTP surface: health and
// readiness probes, Prometheus metrics and a read-only run report API.
package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qsarlab/molgraph/internal/cv"
	"github.com/qsarlab/molgraph/internal/model"
	"github.com/qsarlab/molgraph/internal/monitoring/logging"
	"github.com/qsarlab/molgraph/internal/storage/milvus"
	"github.com/qsarlab/molgraph/internal/storage/postgres"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// RunReader serves the run report API. *postgres.RunStore satisfies it.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*cv.Report, error)
	ListRuns(ctx context.Context, limit int) ([]postgres.RunSummary, error)
}

// SimilaritySearcher answers nearest-neighbour queries over stored molecule
// embeddings. *milvus.EmbeddingSink satisfies it.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, topK int) ([]milvus.Neighbor, error)
}

// RouterConfig aggregates the router's dependencies. Nil fields disable the
// endpoints that need them.
type RouterConfig struct {
	Runs     RunReader
	Similar  SimilaritySearcher
	Backend  model.Backend
	Registry *prometheus.Registry
	Logger   logging.Logger
}

// NewRouter builds the gin route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(cfg.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", readiness(cfg.Backend))

	if cfg.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	if cfg.Runs != nil {
		api.GET("/runs", listRuns(cfg.Runs))
		api.GET("/runs/:id", getRun(cfg.Runs))
	}
	if cfg.Similar != nil {
		api.POST("/similar", searchSimilar(cfg.Similar))
	}
	return r
}

// readiness reports ready only when the training backend answers and claims
// to be ready. Without a backend the probe degrades to liveness.
func readiness(backend model.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if backend == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		st, err := backend.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "backend unreachable", "error": err.Error()})
			return
		}
		if !st.Ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "backend not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend_version": st.Version})
	}
}

func listRuns(runs RunReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		out, err := runs.ListRuns(c.Request.Context(), limit)
		if err != nil {
			writeError(c, err)
			return
		}
		if out == nil {
			out = []postgres.RunSummary{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": out})
	}
}

func getRun(runs RunReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := runs.GetRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

type similarRequest struct {
	Embedding []float32 `json:"embedding" binding:"required"`
	TopK      int       `json:"top_k"`
}

func searchSimilar(similar SimilaritySearcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req similarRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry a non-empty embedding"})
			return
		}
		hits, err := similar.SearchSimilar(c.Request.Context(), req.Embedding, req.TopK)
		if err != nil {
			writeError(c, err)
			return
		}
		if hits == nil {
			hits = []milvus.Neighbor{}
		}
		c.JSON(http.StatusOK, gin.H{"neighbors": hits})
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsCode(err, errors.CodeNotFound):
		status = http.StatusNotFound
	case errors.IsCode(err, errors.CodeInvalidParam):
		status = http.StatusBadRequest
	case errors.IsCode(err, errors.CodeUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"code":  string(errors.GetCode(err)),
		"error": err.Error(),
	})
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("http request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
		)
	}
}
