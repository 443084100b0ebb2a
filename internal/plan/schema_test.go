package plan

import (
	"encoding/json"
	"testing"
)

func TestDecode_RejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"bundles": [], "surprise": true}`)
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	p := StubPlan(TimeframeOneWeek, 2)
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Bundles) != 2 {
		t.Errorf("got %d bundles, want 2", len(got.Bundles))
	}
	if got.Bundles[0].EffortTotal() != p.Bundles[0].EffortTotal() {
		t.Errorf("effort total changed across round trip")
	}
}

func TestEffortForSize(t *testing.T) {
	cases := map[Size]int{SizeS: 1, SizeM: 2, SizeL: 3, "XL": 0}
	for size, want := range cases {
		if got := EffortForSize(size); got != want {
			t.Errorf("EffortForSize(%s) = %d, want %d", size, got, want)
		}
	}
}

func TestClampGroupSize(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 7: 7, 12: 12, 13: 12, 100: 12}
	for in, want := range cases {
		if got := ClampGroupSize(in); got != want {
			t.Errorf("ClampGroupSize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBundleLabel(t *testing.T) {
	if got := BundleLabel(1); got != "Person 1" {
		t.Errorf("BundleLabel(1) = %q", got)
	}
	if got := BundleLabel(12); got != "Person 12" {
		t.Errorf("BundleLabel(12) = %q", got)
	}
}

func TestOutputFormat_Shape(t *testing.T) {
	f := OutputFormat()
	if f["type"] != "json_schema" {
		t.Errorf("type = %v", f["type"])
	}
	if f["name"] != "PlanV1" {
		t.Errorf("name = %v", f["name"])
	}
	if f["strict"] != true {
		t.Errorf("strict = %v", f["strict"])
	}
	schema, ok := f["schema"].(map[string]interface{})
	if !ok {
		t.Fatal("schema missing")
	}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("schema properties missing")
	}
	for _, key := range []string{"timeframe", "deliverables", "bundles", "assumptions"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing property %s", key)
		}
	}
}
