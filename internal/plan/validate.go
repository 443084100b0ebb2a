package plan

import "fmt"

// Issue is a single validation finding with the path of the offending field.
type Issue struct {
	Path    string
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// Validate checks a candidate plan against structural and cross-field rules.
// It returns the full issue list, not just the first failure, so callers can
// log complete diagnostics. When expectedBundles > 0, the bundle count and
// the fixed "Person 1".."Person N" labels are enforced as well.
func Validate(p *Plan, expectedBundles int) []Issue {
	if p == nil {
		return []Issue{{Message: "plan is nil"}}
	}

	var issues []Issue

	if p.Timeframe != "" && !p.Timeframe.Valid() {
		issues = append(issues, Issue{"timeframe", fmt.Sprintf("invalid value %q", p.Timeframe)})
	}

	for i, d := range p.Deliverables {
		if d.Title == "" {
			issues = append(issues, Issue{fmt.Sprintf("deliverables[%d]", i), "title is required"})
		}
	}

	if len(p.Bundles) == 0 {
		issues = append(issues, Issue{"bundles", "must not be empty"})
	}
	if expectedBundles > 0 && len(p.Bundles) > 0 && len(p.Bundles) != expectedBundles {
		issues = append(issues, Issue{"bundles", fmt.Sprintf("expected %d bundles, got %d", expectedBundles, len(p.Bundles))})
	}

	for i, b := range p.Bundles {
		path := fmt.Sprintf("bundles[%d]", i)
		if b.Label == "" {
			issues = append(issues, Issue{path + ".label", "label is required"})
		} else if expectedBundles > 0 && b.Label != BundleLabel(i+1) {
			issues = append(issues, Issue{path + ".label", fmt.Sprintf("must be %q, got %q", BundleLabel(i+1), b.Label)})
		}
		if b.BundleTitle == "" {
			issues = append(issues, Issue{path + ".bundle_title", "bundle_title is required"})
		}
		if len(b.Tasks) == 0 {
			issues = append(issues, Issue{path + ".tasks", "must not be empty"})
		}
		for j, t := range b.Tasks {
			tpath := fmt.Sprintf("%s.tasks[%d]", path, j)
			if t.Title == "" {
				issues = append(issues, Issue{tpath + ".title", "title is required"})
			}
			if !t.Category.Valid() {
				issues = append(issues, Issue{tpath + ".category", fmt.Sprintf("invalid value %q", t.Category)})
			}
			if !t.Size.Valid() {
				issues = append(issues, Issue{tpath + ".size", fmt.Sprintf("invalid value %q", t.Size)})
			} else if t.EffortPoints != EffortForSize(t.Size) {
				issues = append(issues, Issue{tpath + ".effort_points",
					fmt.Sprintf("must match size mapping (S->1, M->2, L->3): expected %d for size %s, got %d",
						EffortForSize(t.Size), t.Size, t.EffortPoints)})
			}
		}
	}

	return issues
}

// FormatIssues joins issues into a single diagnostic string.
func FormatIssues(issues []Issue) string {
	s := ""
	for i, issue := range issues {
		if i > 0 {
			s += "; "
		}
		s += issue.String()
	}
	return s
}
