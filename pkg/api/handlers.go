package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opsconsensus/orchestrator/pkg/graph"
	"github.com/opsconsensus/orchestrator/pkg/state"
)

// createIncident handles POST /incidents: validates the invocation event,
// synthesizes any missing session_id, and drives one orchestration run to
// completion. The driver itself checkpoints after every node, so a request
// that times out mid-run (at the HTTP layer) leaves a resumable session —
// the caller polls GET /incidents/:session_id/checkpoints and re-submits
// the same session_id to continue.
func (s *Server) createIncident(c *gin.Context) {
	var req CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	budget := defaultBudgetRemaining
	if req.BudgetRemaining != nil {
		budget = *req.BudgetRemaining
	}

	input := state.AgentInput{
		IncidentID:      req.IncidentID,
		EvidenceBundle:  req.EvidenceBundle,
		Timestamp:       req.Timestamp,
		ExecutionID:     req.ExecutionID,
		SessionID:       sessionID,
		BudgetRemaining: budget,
		Context:         req.Context,
	}

	out, err := s.driver.Run(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "session_id": sessionID})
		return
	}

	c.JSON(http.StatusOK, out)
}

// getIncident handles GET /incidents/:session_id: a read-only poll of the
// session's latest checkpoint. It never drives the graph — re-POST the
// same session_id to /incidents to actually resume and complete a crashed
// or still-running session.
func (s *Server) getIncident(c *gin.Context) {
	sessionID := c.Param("session_id")

	out, err := s.driver.Status(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, graph.ErrNotTerminal):
			latest, lerr := s.store.Latest(c.Request.Context(), sessionID)
			node := ""
			if lerr == nil && latest != nil {
				node = latest.NodeName
			}
			c.JSON(http.StatusAccepted, gin.H{
				"session_id": sessionID,
				"status":     "in_progress",
				"node":       node,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, out)
}

// listCheckpoints handles GET /incidents/:session_id/checkpoints: the raw
// checkpoint history, descending by checkpoint_id, for operators
// inspecting a run's progress or diagnosing a stuck resume.
func (s *Server) listCheckpoints(c *gin.Context) {
	sessionID := c.Param("session_id")

	checkpoints, err := s.store.List(c.Request.Context(), sessionID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(checkpoints) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	type checkpointView struct {
		CheckpointID string `json:"checkpoint_id"`
		NodeName     string `json:"node_name"`
		CreatedAt    string `json:"created_at"`
	}
	views := make([]checkpointView, len(checkpoints))
	for i, cp := range checkpoints {
		views[i] = checkpointView{
			CheckpointID: cp.CheckpointID,
			NodeName:     cp.NodeName,
			CreatedAt:    cp.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "checkpoints": views})
}
