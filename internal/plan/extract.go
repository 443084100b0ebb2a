package plan

import (
	"encoding/json"
	"strings"
)

// The generation backend has returned several response shapes over time:
// a direct output_text field, a pre-parsed output_parsed object, and nested
// content arrays. Extraction is an ordered list of strategies, each a pure
// function from the decoded response to candidate JSON; the first strategy
// that yields a well-formed JSON object wins. New shapes get a new strategy
// here without touching validation.

type extractFunc func(resp map[string]interface{}) []byte

var extractors = []struct {
	name string
	fn   extractFunc
}{
	{"output_text", extractOutputText},
	{"output_parsed", extractOutputParsed},
	{"content_blocks", extractContentBlocks},
}

// ExtractJSON pulls the first well-formed JSON object out of a backend
// response. ok is false when no strategy matched.
func ExtractJSON(resp map[string]interface{}) (raw []byte, ok bool) {
	for _, e := range extractors {
		if out := e.fn(resp); out != nil {
			return out, true
		}
	}
	return nil, false
}

// jsonObject returns s as bytes when it parses as a JSON object.
func jsonObject(s string) []byte {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var probe map[string]interface{}
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil
	}
	return []byte(s)
}

func extractOutputText(resp map[string]interface{}) []byte {
	if s, ok := resp["output_text"].(string); ok {
		return jsonObject(s)
	}
	return nil
}

func extractOutputParsed(resp map[string]interface{}) []byte {
	obj, ok := resp["output_parsed"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil
	}
	return raw
}

func extractContentBlocks(resp map[string]interface{}) []byte {
	var outputs []interface{}
	for _, key := range []string{"output", "outputs", "results"} {
		if arr, ok := resp[key].([]interface{}); ok && len(arr) > 0 {
			outputs = arr
			break
		}
	}
	if outputs == nil {
		return nil
	}

	for _, o := range outputs {
		entry, ok := o.(map[string]interface{})
		if !ok {
			continue
		}
		if content, ok := entry["content"].([]interface{}); ok {
			// Prefer structured JSON blocks, then fall back to text blocks.
			for _, c := range content {
				block, ok := c.(map[string]interface{})
				if !ok {
					continue
				}
				typ, _ := block["type"].(string)
				if (typ == "application/json" || typ == "output_schema") && block["data"] != nil {
					if raw, err := json.Marshal(block["data"]); err == nil {
						return raw
					}
				}
			}
			for _, c := range content {
				block, ok := c.(map[string]interface{})
				if !ok {
					continue
				}
				if text, ok := block["text"].(string); ok {
					if raw := jsonObject(text); raw != nil {
						return raw
					}
				}
			}
		}
		if text, ok := entry["text"].(string); ok {
			if raw := jsonObject(text); raw != nil {
				return raw
			}
		}
	}
	return nil
}
