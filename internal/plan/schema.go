// Package plan defines the generated work-breakdown structure, its
// validation rules, and the generation pipeline that produces it.
package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Timeframe is the project's planning horizon.
type Timeframe string

// Allowed timeframes.
const (
	TimeframeTwoDay  Timeframe = "twoDay"
	TimeframeOneWeek Timeframe = "oneWeek"
	TimeframeLong    Timeframe = "long"
)

// Valid reports whether t is one of the allowed timeframes.
func (t Timeframe) Valid() bool {
	switch t {
	case TimeframeTwoDay, TimeframeOneWeek, TimeframeLong:
		return true
	}
	return false
}

// Size is a task's coarse effort size.
type Size string

// Allowed sizes.
const (
	SizeS Size = "S"
	SizeM Size = "M"
	SizeL Size = "L"
)

// Valid reports whether s is one of the allowed sizes.
func (s Size) Valid() bool {
	return s == SizeS || s == SizeM || s == SizeL
}

// Category is a task's skill category.
type Category string

// Allowed categories.
const (
	CategoryResearch Category = "Research"
	CategoryWriting  Category = "Writing"
	CategorySlides   Category = "Slides"
	CategoryCoding   Category = "Coding"
	CategoryAnalysis Category = "Analysis"
	CategoryAdmin    Category = "Admin"
	CategoryDesign   Category = "Design"
	CategoryReview   Category = "Review"
)

// Categories returns all allowed categories in display order.
func Categories() []Category {
	return []Category{
		CategoryResearch, CategoryWriting, CategorySlides, CategoryCoding,
		CategoryAnalysis, CategoryAdmin, CategoryDesign, CategoryReview,
	}
}

// Valid reports whether c is one of the allowed categories.
func (c Category) Valid() bool {
	for _, v := range Categories() {
		if c == v {
			return true
		}
	}
	return false
}

// EffortForSize maps a size to its effort points: S->1, M->2, L->3.
// Every task's effort_points must equal this mapping exactly.
func EffortForSize(s Size) int {
	switch s {
	case SizeS:
		return 1
	case SizeM:
		return 2
	case SizeL:
		return 3
	}
	return 0
}

// MaxGroupSize bounds the number of bundles in a plan.
const MaxGroupSize = 12

// ClampGroupSize clamps a requested group size into [1, MaxGroupSize].
func ClampGroupSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxGroupSize {
		return MaxGroupSize
	}
	return n
}

// BundleLabel returns the fixed label for the i-th bundle (1-based).
func BundleLabel(i int) string {
	return fmt.Sprintf("Person %d", i)
}

// Task is a single unit of work within a bundle.
type Task struct {
	Title        string   `json:"title"`
	Details      string   `json:"details,omitempty"`
	Category     Category `json:"category"`
	Size         Size     `json:"size"`
	EffortPoints int      `json:"effort_points"`
}

// Bundle is a labeled group of tasks intended for one participant.
type Bundle struct {
	Label         string `json:"label"`
	BundleTitle   string `json:"bundle_title"`
	BundleSummary string `json:"bundle_summary,omitempty"`
	Tasks         []Task `json:"tasks"`
}

// EffortTotal sums the effort points of all tasks in the bundle.
func (b Bundle) EffortTotal() int {
	total := 0
	for _, t := range b.Tasks {
		total += t.EffortPoints
	}
	return total
}

// Deliverable is a tangible final artifact the assignment expects.
type Deliverable struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Plan is the complete structured output of one generation attempt.
type Plan struct {
	Timeframe    Timeframe     `json:"timeframe,omitempty"`
	Deliverables []Deliverable `json:"deliverables"`
	Bundles      []Bundle      `json:"bundles"`
	Assumptions  []string      `json:"assumptions,omitempty"`
}

// Decode parses raw JSON into a Plan, rejecting unknown fields so that
// generation drift is caught before validation.
func Decode(raw []byte) (*Plan, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	return &p, nil
}
