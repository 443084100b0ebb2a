package plan

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// PromptVersion identifies the prompt revision recorded on audit rows.
const PromptVersion = "plan_v1_2026-01-22"

// PromptInput carries the project fields the prompt is rendered from.
type PromptInput struct {
	Title             string
	Description       string
	Timeframe         Timeframe
	AssignmentDetails string
	GroupSize         int
}

// promptTemplate renders the instruction set for the generation backend.
// The output must stay deterministic for fixed inputs.
const promptTemplate = `You are an assistant that MUST produce a single JSON object and nothing else. The JSON must conform exactly to the PlanV1 schema and the following constraints. Do not include any explanatory text, quotes, or commentary — output only the JSON.
Schema: PlanV1 with properties: timeframe, deliverables[], bundles[], assumptions[].
Produce EXACTLY {{ .N }} bundles. Bundle labels MUST be exactly: {{ .Labels }}.
For each bundle include bundle_title, optional bundle_summary, and tasks[].
Do NOT enforce strict task counts; instead balance total effort_points across bundles (difference between highest and lowest bundle total <=1 when feasible).{{ if .ReviewRule }} {{ .ReviewRule }}{{ end }}
Each task MUST include title, details (with a clear done condition), category (one of allowed), size (S/M/L), and effort_points (1/2/3) where S->1, M->2, L->3.
Deliverables MUST describe the tangible final artifacts (compiled report, slide deck, code repo, bibliography, etc.) that the assignment expects for submission.
Do NOT list process steps or work-in-progress plans as deliverables.
Each deliverable must tie back to the assignment_details and timeframe provided.
Bundles should be skill-themed (1-2 primary categories) and avoid concentrating all similar categories in a single bundle unless the assignment requires it.
Use title and description as context; assignment_details is authoritative for task content.
Do NOT include any questions in the output.
{{ if .Title }}
Project title: {{ .Title }}{{ end }}{{ if .Description }}
Project description: {{ .Description }}{{ end }}
---
Assignment details (authoritative):
{{ .AssignmentDetails }}

Output example shape (for guidance, do not output this example):
{ "timeframe": "{{ .Timeframe }}", "deliverables": [ { "title": "Example", "description": "..." } ], "bundles": [ { "label": "Person 1", "bundle_title": "Example", "bundle_summary": "...", "tasks": [ { "title": "Do X", "details": "Done when ...", "category":"Research", "size":"S", "effort_points": 1 } ] } ], "assumptions": [] }

Return the JSON now.`

var promptTmpl = template.Must(template.New("prompt").Parse(promptTemplate))

// BuildPrompt renders the generation instructions for the given inputs.
// It is a pure function: no randomness and no time dependence, so stub and
// real mode see identical instructions for identical inputs.
func BuildPrompt(in PromptInput) (string, error) {
	n := ClampGroupSize(in.GroupSize)
	labels := make([]string, n)
	for i := range labels {
		labels[i] = BundleLabel(i + 1)
	}

	reviewRule := ""
	if in.Timeframe == TimeframeLong {
		reviewRule = "For 'long' timeframe include at least one Review task per bundle."
	}

	data := struct {
		PromptInput
		N          int
		Labels     string
		ReviewRule string
	}{
		PromptInput: in,
		N:           n,
		Labels:      strings.Join(labels, ", "),
		ReviewRule:  reviewRule,
	}

	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("plan: render prompt: %w", err)
	}
	return buf.String(), nil
}
