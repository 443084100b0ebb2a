package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/notify"
	"github.com/grouperhq/grouper/internal/persist"
	"github.com/grouperhq/grouper/internal/plan"
)

// outcome is the result of one generation+persist attempt, shared by the
// create and retry handlers.
type outcome struct {
	Status       string
	Plan         *plan.Plan
	ErrorCode    string
	ErrorMessage string
}

// newAudit inserts the pending audit row for an attempt. The snapshot stores
// the assignment length, not the text.
func (s *Server) newAudit(proj *models.Project, userID, traceID string) (*models.GenerationAudit, error) {
	audit := &models.GenerationAudit{
		ProjectID:        proj.ID,
		CreatedByUserID:  userID,
		TraceID:          traceID,
		Status:           models.PlanStatusPending,
		InputTitle:       proj.Name,
		InputDescription: proj.Description,
		InputTimeframe:   proj.Timeframe,
		InputAssignLen:   len(proj.AssignmentDetails),
		InputGroupSize:   proj.GroupSize,
		Model:            s.model,
		PromptVersion:    plan.PromptVersion,
	}
	if err := s.db.Create(audit).Error; err != nil {
		return nil, fmt.Errorf("server: insert audit: %w", err)
	}
	return audit, nil
}

// runAttempt generates a plan for the project and reconciles it into the
// store. Every failure path lands the project in plan_status=failed with
// plan_error populated; the project is never left dangling in pending.
func (s *Server) runAttempt(ctx context.Context, proj *models.Project, audit *models.GenerationAudit, traceID string) outcome {
	start := time.Now()

	p, err := s.generator.Generate(ctx, plan.Input{
		Title:             proj.Name,
		Description:       proj.Description,
		Timeframe:         plan.Timeframe(proj.Timeframe),
		AssignmentDetails: proj.AssignmentDetails,
		GroupSize:         proj.GroupSize,
		TraceID:           traceID,
	})
	if err != nil {
		return s.failAttempt(proj, audit, traceID, plan.CodeAICallFailed, err)
	}

	res, err := persist.PersistPlan(s.db, proj.ID, p)
	if err != nil {
		return s.failAttempt(proj, audit, traceID, plan.CodeGenerateOrPersistFailed, err)
	}
	log.Printf("server: plan persisted trace=%s project=%s bundles_inserted=%d tasks_inserted=%d",
		traceID, proj.ID, res.BundlesInserted, res.TasksInserted)

	latency := time.Since(start).Milliseconds()
	payload, _ := json.Marshal(p)
	err = s.db.Model(audit).Updates(map[string]interface{}{
		"status":        models.PlanStatusReady,
		"output_plan":   string(payload),
		"latency_ms":    latency,
		"error_code":    "",
		"error_message": "",
	}).Error
	if err != nil {
		log.Printf("server: update audit trace=%s: %v", traceID, err)
	}

	taskCount := 0
	for _, b := range p.Bundles {
		taskCount += len(b.Tasks)
	}
	s.announce(notify.Event{
		ProjectID:    proj.ID,
		ProjectTitle: proj.Name,
		JoinCode:     proj.JoinCode,
		Status:       models.PlanStatusReady,
		Severity:     notify.SeveritySuccess,
		BundleCount:  len(p.Bundles),
		TaskCount:    taskCount,
		TraceID:      traceID,
	})

	return outcome{Status: models.PlanStatusReady, Plan: p}
}

// failAttempt translates err into durable failed state on the project and
// the audit row.
func (s *Server) failAttempt(proj *models.Project, audit *models.GenerationAudit, traceID, fallbackCode string, attemptErr error) outcome {
	code := plan.CodeOf(attemptErr)
	if code == "" {
		code = fallbackCode
	}
	message := plan.MessageOf(attemptErr)
	log.Printf("server: attempt failed trace=%s project=%s code=%s: %s", traceID, proj.ID, code, message)

	err := s.db.Model(&models.Project{}).Where("id = ?", proj.ID).Updates(map[string]interface{}{
		"plan_status": models.PlanStatusFailed,
		"plan_error":  fmt.Sprintf("%s: %s", code, message),
	}).Error
	if err != nil {
		log.Printf("server: mark project failed trace=%s: %v", traceID, err)
	}

	if audit != nil && audit.ID != 0 {
		err = s.db.Model(audit).Updates(map[string]interface{}{
			"status":        models.PlanStatusFailed,
			"error_code":    code,
			"error_message": message,
		}).Error
		if err != nil {
			log.Printf("server: update audit trace=%s: %v", traceID, err)
		}
	}

	s.announce(notify.Event{
		ProjectID:    proj.ID,
		ProjectTitle: proj.Name,
		JoinCode:     proj.JoinCode,
		Status:       models.PlanStatusFailed,
		Severity:     notify.SeverityError,
		ErrorCode:    code,
		TraceID:      traceID,
	})

	return outcome{Status: models.PlanStatusFailed, ErrorCode: code, ErrorMessage: message}
}

// announce delivers the event best effort. A notification failure is logged,
// never propagated.
func (s *Server) announce(ev notify.Event) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.notifier.Send(ctx, ev); err != nil {
		log.Printf("server: notify trace=%s: %v", ev.TraceID, err)
	}
}
