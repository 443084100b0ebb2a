package plan

// OutputFormat returns the Responses-API text.format payload that constrains
// backend output to the plan schema. The backend's enforcement is not
// trusted: received output is still decoded and validated independently.
func OutputFormat() map[string]interface{} {
	return map[string]interface{}{
		"type":   "json_schema",
		"name":   "PlanV1",
		"strict": true,
		"schema": SchemaObject(),
	}
}

// SchemaObject returns the plain JSON Schema for a plan. Strict structured
// output requires every property name to appear in "required" and
// additionalProperties:false at each level.
func SchemaObject() map[string]interface{} {
	categories := make([]interface{}, 0, len(Categories()))
	for _, c := range Categories() {
		categories = append(categories, string(c))
	}

	taskSchema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []interface{}{"title", "details", "category", "size", "effort_points"},
		"properties": map[string]interface{}{
			"title":         map[string]interface{}{"type": "string"},
			"details":       map[string]interface{}{"type": "string"},
			"category":      map[string]interface{}{"type": "string", "enum": categories},
			"size":          map[string]interface{}{"type": "string", "enum": []interface{}{"S", "M", "L"}},
			"effort_points": map[string]interface{}{"type": "integer", "enum": []interface{}{1, 2, 3}},
		},
	}

	bundleSchema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []interface{}{"label", "bundle_title", "bundle_summary", "tasks"},
		"properties": map[string]interface{}{
			"label":          map[string]interface{}{"type": "string"},
			"bundle_title":   map[string]interface{}{"type": "string"},
			"bundle_summary": map[string]interface{}{"type": "string"},
			"tasks": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
				"items":    taskSchema,
			},
		},
	}

	deliverableSchema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []interface{}{"title", "description"},
		"properties": map[string]interface{}{
			"title":       map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
		},
	}

	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []interface{}{"timeframe", "deliverables", "bundles", "assumptions"},
		"properties": map[string]interface{}{
			"timeframe": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"twoDay", "oneWeek", "long"},
			},
			"deliverables": map[string]interface{}{
				"type":  "array",
				"items": deliverableSchema,
			},
			"bundles": map[string]interface{}{
				"type":     "array",
				"minItems": 1,
				"items":    bundleSchema,
			},
			"assumptions": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
	}
}
