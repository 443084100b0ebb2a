package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grouperhq/grouper/internal/joincode"
	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/plan"
)

type createRequest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Timeframe         string   `json:"timeframe"`
	AssignmentDetails string   `json:"assignment_details"`
	GroupSize         int      `json:"group_size"`
	MemberNames       []string `json:"member_names"`
	TraceID           string   `json:"trace_id"`
	DebugSkipOpenAI   bool     `json:"debug_skip_openai"`
}

// handleCreateProject creates a project and runs the first generation
// attempt inline. The project id is returned even when generation fails, so
// the caller can retry.
func (s *Server) handleCreateProject(c *gin.Context) {
	ident, ok := s.authenticate(c)
	if !ok {
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = c.GetHeader("X-Request-ID")
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}

	// Input validation rejects early with no side effects.
	if req.Name == "" || req.Timeframe == "" || req.AssignmentDetails == "" || req.GroupSize == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing required fields", "trace_id": traceID})
		return
	}
	if !plan.Timeframe(req.Timeframe).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": fmt.Sprintf("invalid timeframe %q", req.Timeframe), "trace_id": traceID})
		return
	}

	log.Printf("server: create trace=%s nameLen=%d assignmentLen=%d group=%d timeframe=%s",
		traceID, len(req.Name), len(req.AssignmentDetails), req.GroupSize, req.Timeframe)

	code, err := joincode.Allocate(s.db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "join code allocation failed", "trace_id": traceID})
		return
	}

	proj := &models.Project{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Description:       req.Description,
		Timeframe:         req.Timeframe,
		AssignmentDetails: req.AssignmentDetails,
		GroupSize:         plan.ClampGroupSize(req.GroupSize),
		JoinCode:          code,
		PlanStatus:        models.PlanStatusPending,
	}
	if err := s.db.Create(proj).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "project insert failed", "trace_id": traceID})
		return
	}

	// Creator joins immediately; remaining names become placeholders until
	// they register and claim a seat.
	creatorName := ""
	if len(req.MemberNames) > 0 {
		creatorName = req.MemberNames[0]
	}
	member := models.ProjectMember{ProjectID: proj.ID, UserID: ident.UserID, DisplayName: creatorName}
	if err := s.db.Create(&member).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "member insert failed", "trace_id": traceID})
		return
	}
	if len(req.MemberNames) > 1 {
		for _, name := range req.MemberNames[1:] {
			if name == "" {
				name = "TBD"
			}
			planned := models.PlannedMember{ProjectID: proj.ID, DisplayName: name}
			if err := s.db.Create(&planned).Error; err != nil {
				log.Printf("server: insert planned member trace=%s: %v", traceID, err)
			}
		}
	}

	audit, err := s.newAudit(proj, ident.UserID, traceID)
	if err != nil {
		// The project is already pending; fail it so a retry can claim it
		// instead of leaving it stuck behind the pending guard.
		res := s.failAttempt(proj, nil, traceID, plan.CodeGenerateOrPersistFailed, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":          false,
			"project_id":  proj.ID,
			"plan_status": res.Status,
			"error":       fmt.Sprintf("%s: %s", res.ErrorCode, res.ErrorMessage),
			"trace_id":    traceID,
		})
		return
	}

	// Diagnostic bypass: skip the backend entirely and mark the project
	// ready with no plan.
	if req.DebugSkipOpenAI && s.allowDebugSkip {
		log.Printf("server: debug skip trace=%s project=%s", traceID, proj.ID)
		err := s.db.Model(&models.Project{}).Where("id = ?", proj.ID).
			Update("plan_status", models.PlanStatusReady).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "project_id": proj.ID, "error": "status update failed", "trace_id": traceID})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "project_id": proj.ID, "plan_status": models.PlanStatusReady, "trace_id": traceID})
		return
	}

	res := s.runAttempt(c.Request.Context(), proj, audit, traceID)
	if res.Status != models.PlanStatusReady {
		c.JSON(http.StatusInternalServerError, gin.H{
			"ok":          false,
			"project_id":  proj.ID,
			"plan_status": res.Status,
			"error":       fmt.Sprintf("%s: %s", res.ErrorCode, res.ErrorMessage),
			"trace_id":    traceID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"project_id":  proj.ID,
		"plan_status": res.Status,
		"trace_id":    traceID,
	})
}
