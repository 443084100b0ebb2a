package plan

import "fmt"

// stubTaskCount returns the fixed per-bundle task count for a timeframe.
func stubTaskCount(tf Timeframe) int {
	switch tf {
	case TimeframeTwoDay:
		return 2
	case TimeframeOneWeek:
		return 5
	case TimeframeLong:
		return 7
	}
	return 4
}

// stubSize cycles L, M, S so bundle totals stay identical across bundles.
func stubSize(j int) Size {
	switch j % 3 {
	case 0:
		return SizeL
	case 1:
		return SizeM
	}
	return SizeS
}

// StubPlan synthesizes a deterministic plan without calling the backend.
// It exists so validation, persistence, reconciliation and the UI can be
// exercised without external cost or nondeterminism. Its output must pass
// Validate like real output.
func StubPlan(tf Timeframe, groupSize int) *Plan {
	n := ClampGroupSize(groupSize)
	count := stubTaskCount(tf)

	bundles := make([]Bundle, 0, n)
	for i := 1; i <= n; i++ {
		label := BundleLabel(i)
		tasks := make([]Task, 0, count+1)
		for j := 0; j < count; j++ {
			size := stubSize(j)
			tasks = append(tasks, Task{
				Title:        fmt.Sprintf("%s task %d", label, j+1),
				Details:      fmt.Sprintf("Complete %s task %d. Done when deliverable is produced.", label, j+1),
				Category:     CategoryResearch,
				Size:         size,
				EffortPoints: EffortForSize(size),
			})
		}
		if tf == TimeframeLong {
			hasReview := false
			for _, t := range tasks {
				if t.Category == CategoryReview {
					hasReview = true
					break
				}
			}
			if !hasReview {
				tasks = append(tasks, Task{
					Title:        label + " review",
					Details:      "Review other's work. Done when feedback submitted.",
					Category:     CategoryReview,
					Size:         SizeS,
					EffortPoints: EffortForSize(SizeS),
				})
			}
		}
		bundles = append(bundles, Bundle{
			Label:         label,
			BundleTitle:   "Bundle for " + label,
			BundleSummary: "Auto-generated bundle for " + label,
			Tasks:         tasks,
		})
	}

	return &Plan{
		Timeframe: tf,
		Deliverables: []Deliverable{
			{Title: "Final submission", Description: "Project deliverable (PDF or link)"},
		},
		Bundles:     bundles,
		Assumptions: []string{"Generated in stub mode"},
	}
}
