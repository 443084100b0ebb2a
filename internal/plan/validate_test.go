package plan

import (
	"strings"
	"testing"
)

func TestValidate_NilPlan(t *testing.T) {
	issues := Validate(nil, 0)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
}

func TestValidate_EffortMismatch(t *testing.T) {
	p := StubPlan(TimeframeOneWeek, 2)
	p.Bundles[0].Tasks[0].EffortPoints = 99

	issues := Validate(p, 2)
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d: %s", len(issues), FormatIssues(issues))
	}
	if !strings.Contains(issues[0].Path, "effort_points") {
		t.Errorf("issue path = %q, want effort_points", issues[0].Path)
	}
}

func TestValidate_WrongLabel(t *testing.T) {
	p := StubPlan(TimeframeOneWeek, 2)
	p.Bundles[1].Label = "Person B"

	issues := Validate(p, 2)
	if len(issues) == 0 {
		t.Fatal("expected a label issue")
	}
	if !strings.Contains(issues[0].Path, "label") {
		t.Errorf("issue path = %q, want label", issues[0].Path)
	}
}

func TestValidate_LabelsIgnoredWithoutExpectedCount(t *testing.T) {
	p := StubPlan(TimeframeOneWeek, 2)
	p.Bundles[0].Label = "Alpha"
	p.Bundles[1].Label = "Beta"

	if issues := Validate(p, 0); len(issues) > 0 {
		t.Fatalf("unexpected issues: %s", FormatIssues(issues))
	}
}

func TestValidate_BundleCountMismatch(t *testing.T) {
	p := StubPlan(TimeframeOneWeek, 3)
	p.Bundles = p.Bundles[:2]

	issues := Validate(p, 3)
	if len(issues) == 0 {
		t.Fatal("expected a bundle count issue")
	}
}

func TestValidate_EmptyBundles(t *testing.T) {
	p := &Plan{Timeframe: TimeframeTwoDay}
	issues := Validate(p, 0)
	if len(issues) != 1 || issues[0].Path != "bundles" {
		t.Fatalf("unexpected issues: %s", FormatIssues(issues))
	}
}

func TestValidate_CollectsAllIssues(t *testing.T) {
	p := &Plan{
		Timeframe:    "someday",
		Deliverables: []Deliverable{{}},
		Bundles: []Bundle{
			{
				Label:       "Person 1",
				BundleTitle: "",
				Tasks: []Task{
					{Title: "", Category: "Cooking", Size: "XXL"},
				},
			},
		},
	}
	issues := Validate(p, 1)
	// timeframe, deliverable title, bundle_title, task title, category, size.
	if len(issues) != 6 {
		t.Fatalf("expected 6 issues, got %d: %s", len(issues), FormatIssues(issues))
	}
}

func TestValidate_InvalidTaskFields(t *testing.T) {
	p := StubPlan(TimeframeTwoDay, 1)
	p.Bundles[0].Tasks[0].Category = "Juggling"
	p.Bundles[0].Tasks[1].Size = "XL"

	issues := Validate(p, 1)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %s", len(issues), FormatIssues(issues))
	}
}

func TestFormatIssues(t *testing.T) {
	s := FormatIssues([]Issue{
		{Path: "a", Message: "first"},
		{Message: "second"},
	})
	if s != "a: first; second" {
		t.Errorf("FormatIssues = %q", s)
	}
}
