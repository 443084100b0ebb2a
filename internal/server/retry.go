package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/plan"
	"gorm.io/gorm"
)

type retryRequest struct {
	ProjectID string `json:"project_id"`
	Force     bool   `json:"force"`
	TraceID   string `json:"trace_id"`
}

// handleRetryPlan re-runs generation and reconciliation for an existing
// project. plan_status is the mutual-exclusion gate: the conditional update
// to pending claims the work, and a caller who loses the race observes
// "pending" without triggering a second backend call.
func (s *Server) handleRetryPlan(c *gin.Context) {
	ident, ok := s.authenticate(c)
	if !ok {
		return
	}

	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing project_id"})
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = c.GetHeader("X-Request-ID")
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}

	// Only members may retry. Checked before existence so non-members
	// cannot probe for project ids.
	var memberCount int64
	err := s.db.Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", req.ProjectID, ident.UserID).
		Count(&memberCount).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed", "trace_id": traceID})
		return
	}
	if memberCount == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "trace_id": traceID})
		return
	}

	var proj models.Project
	if err := s.db.First(&proj, "id = ?", req.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found", "trace_id": traceID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project load failed", "trace_id": traceID})
		return
	}

	// Another attempt is already in flight.
	if proj.PlanStatus == models.PlanStatusPending {
		c.JSON(http.StatusOK, gin.H{"status": models.PlanStatusPending, "trace_id": traceID})
		return
	}
	// Already ready: no redundant regeneration unless forced.
	if proj.PlanStatus == models.PlanStatusReady && !req.Force {
		c.JSON(http.StatusOK, gin.H{
			"status":       models.PlanStatusReady,
			"plan_payload": rawPayload(proj.PlanPayload),
			"trace_id":     traceID,
		})
		return
	}

	if len(proj.AssignmentDetails) > plan.MaxAssignmentLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":        models.PlanStatusFailed,
			"error_code":    plan.CodeAssignmentTooLong,
			"error_message": "assignment exceeds max length",
			"trace_id":      traceID,
		})
		return
	}

	// Claim the work: set pending only if not already pending. Zero rows
	// affected means another caller won the race.
	claim := s.db.Model(&models.Project{}).
		Where("id = ? AND plan_status <> ?", proj.ID, models.PlanStatusPending).
		Updates(map[string]interface{}{
			"plan_status": models.PlanStatusPending,
			"plan_error":  "",
		})
	if claim.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed", "trace_id": traceID})
		return
	}
	if claim.RowsAffected == 0 {
		c.JSON(http.StatusOK, gin.H{"status": models.PlanStatusPending, "trace_id": traceID})
		return
	}

	audit, err := s.newAudit(&proj, ident.UserID, traceID)
	if err != nil {
		// The claim already happened; fail the project rather than leaving
		// it stuck in pending.
		res := s.failAttempt(&proj, nil, traceID, plan.CodeGenerateOrPersistFailed, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":        res.Status,
			"error_code":    res.ErrorCode,
			"error_message": res.ErrorMessage,
			"trace_id":      traceID,
		})
		return
	}

	res := s.runAttempt(c.Request.Context(), &proj, audit, traceID)
	if res.Status != models.PlanStatusReady {
		c.JSON(http.StatusOK, gin.H{
			"status":        res.Status,
			"error_code":    res.ErrorCode,
			"error_message": res.ErrorMessage,
			"trace_id":      traceID,
		})
		return
	}

	payload, _ := json.Marshal(res.Plan)
	c.JSON(http.StatusOK, gin.H{
		"status":       res.Status,
		"plan_payload": json.RawMessage(payload),
		"trace_id":     traceID,
	})
}

// rawPayload passes stored plan JSON through without re-encoding. Empty
// payloads render as null.
func rawPayload(stored string) json.RawMessage {
	if stored == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(stored)
}
