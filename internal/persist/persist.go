// Package persist merges generated plans into durable project state.
//
// The merge is a reconciliation, not a replace: bundles are keyed by label
// and survive regeneration, claims are sticky, and user-authored tasks and
// deliverables are never deleted. Only rows flagged is_ai_generated are
// owned by the planner and safe to replace.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/grouperhq/grouper/internal/models"
	"github.com/grouperhq/grouper/internal/plan"
	"gorm.io/gorm"
)

// Result reports what a merge inserted.
type Result struct {
	BundlesInserted int
	TasksInserted   int
}

// PersistPlan merges p into the project's bundles, tasks and deliverables,
// stores the payload on the project row, and marks it ready. Re-running with
// the same plan is safe: labels dedupe bundles, and the AI-task replace is
// scoped per bundle.
func PersistPlan(db *gorm.DB, projectID string, p *plan.Plan) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("persist: plan is nil")
	}

	existing, err := loadBundlesByLabel(db, projectID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	bundleIDByLabel := make(map[string]string, len(p.Bundles))

	// Upsert bundles by label. Display fields update; claims never change here.
	for _, b := range p.Bundles {
		if b.Label == "" {
			continue
		}
		if row, ok := existing[b.Label]; ok {
			err := db.Model(&models.TaskBundle{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
				"title":   b.BundleTitle,
				"summary": b.BundleSummary,
			}).Error
			if err != nil {
				return nil, fmt.Errorf("persist: update bundle %q: %w", b.Label, err)
			}
			bundleIDByLabel[b.Label] = row.ID
		} else {
			row := models.TaskBundle{
				ID:        uuid.NewString(),
				ProjectID: projectID,
				Label:     b.Label,
				Title:     b.BundleTitle,
				Summary:   b.BundleSummary,
			}
			if err := db.Create(&row).Error; err != nil {
				return nil, fmt.Errorf("persist: insert bundle %q: %w", b.Label, err)
			}
			bundleIDByLabel[b.Label] = row.ID
			res.BundlesInserted++
		}
	}

	// Replace AI-generated tasks per bundle. Each replace runs in its own
	// narrow transaction so a crash mid-merge never loses one bundle's tasks
	// without the project still being re-runnable (status is not yet ready).
	for _, b := range p.Bundles {
		bundleID, ok := bundleIDByLabel[b.Label]
		if !ok {
			continue
		}
		var claimedBy *uint
		if row, ok := existing[b.Label]; ok {
			claimedBy = row.ClaimedByMemberID
		}

		inserted, err := replaceBundleTasks(db, projectID, bundleID, claimedBy, b.Tasks)
		if err != nil {
			return nil, err
		}
		res.TasksInserted += inserted
	}

	if err := replaceDeliverables(db, projectID, p.Deliverables); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("persist: marshal payload: %w", err)
	}
	err = db.Model(&models.Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
		"plan_payload": string(payload),
		"plan_status":  models.PlanStatusReady,
		"plan_error":   "",
	}).Error
	if err != nil {
		return nil, fmt.Errorf("persist: finalize project: %w", err)
	}

	return res, nil
}

// loadBundlesByLabel indexes the project's existing bundles by label.
func loadBundlesByLabel(db *gorm.DB, projectID string) (map[string]models.TaskBundle, error) {
	var rows []models.TaskBundle
	if err := db.Where("project_id = ?", projectID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("persist: load bundles: %w", err)
	}
	byLabel := make(map[string]models.TaskBundle, len(rows))
	for _, row := range rows {
		if row.Label != "" {
			byLabel[row.Label] = row
		}
	}
	return byLabel, nil
}

// replaceBundleTasks deletes the bundle's AI-generated tasks and inserts the
// plan's new ones. Manual tasks under the same bundle are untouched. When the
// bundle is claimed, new tasks inherit the claiming member immediately so a
// regenerated plan does not revert a staffed bundle to "unassigned".
func replaceBundleTasks(db *gorm.DB, projectID, bundleID string, claimedBy *uint, tasks []plan.Task) (int, error) {
	inserted := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("bundle_id = ? AND is_ai_generated = ?", bundleID, true).
			Delete(&models.Task{}).Error
		if err != nil {
			return fmt.Errorf("persist: delete ai tasks for bundle %s: %w", bundleID, err)
		}

		for _, t := range tasks {
			row := models.Task{
				ProjectID:     projectID,
				BundleID:      &bundleID,
				OwnerMemberID: claimedBy,
				Title:         t.Title,
				Details:       t.Details,
				Category:      string(t.Category),
				Size:          string(t.Size),
				Status:        models.TaskStatusTodo,
				IsAIGenerated: true,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("persist: insert task %q: %w", t.Title, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// replaceDeliverables swaps the project's AI-generated deliverables for the
// plan's. User-entered deliverables are never touched.
func replaceDeliverables(db *gorm.DB, projectID string, deliverables []plan.Deliverable) error {
	return db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("project_id = ? AND is_ai_generated = ?", projectID, true).
			Delete(&models.Deliverable{}).Error
		if err != nil {
			return fmt.Errorf("persist: delete ai deliverables: %w", err)
		}
		now := time.Now()
		for _, d := range deliverables {
			if d.Title == "" {
				continue
			}
			row := models.Deliverable{
				ProjectID:     projectID,
				Title:         d.Title,
				Description:   d.Description,
				IsAIGenerated: true,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("persist: insert deliverable %q: %w", d.Title, err)
			}
		}
		return nil
	})
}
