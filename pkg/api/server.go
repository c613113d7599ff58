// Package api exposes the graph driver over a plain-polling HTTP surface —
// no WebSocket or real-time push: a caller submits an incident, then polls
// for its terminal state and checkpoint history.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsconsensus/orchestrator/pkg/checkpoint"
	"github.com/opsconsensus/orchestrator/pkg/config"
	"github.com/opsconsensus/orchestrator/pkg/database"
	"github.com/opsconsensus/orchestrator/pkg/graph"
)

// Server wires the graph driver, checkpoint store, and loaded configuration
// into gin handlers.
type Server struct {
	driver *graph.Driver
	store  checkpoint.Store
	cfg    *config.Config
	db     *sql.DB // nil when running against an in-memory checkpoint store
}

// New builds a Server. db may be nil (e.g. in tests backed by
// checkpoint.NewMemoryStore()), in which case /health reports checkpoint
// connectivity only via the store.
func New(driver *graph.Driver, store checkpoint.Store, cfg *config.Config, db *sql.DB) *Server {
	return &Server{driver: driver, store: store, cfg: cfg, db: db}
}

// Router builds the gin.Engine exposing the four endpoints.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.POST("/incidents", s.createIncident)
	r.GET("/incidents/:session_id", s.getIncident)
	r.GET("/incidents/:session_id/checkpoints", s.listCheckpoints)
	r.GET("/health", s.health)
	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	stats := s.cfg.Stats()
	body := gin.H{
		"status": "healthy",
		"configuration": gin.H{
			"agents":           stats.Agents,
			"pricing_entries":  stats.PricingEntries,
			"masking_patterns": stats.MaskingPatterns,
		},
	}

	if s.db != nil {
		dbHealth, err := database.Health(ctx, s.db)
		body["database"] = dbHealth
		if err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}

	c.JSON(http.StatusOK, body)
}
