package logschema

import "testing"

func TestValidate(t *testing.T) {
	err := Validate("order_event", map[string]interface{}{
		"event":       "buy_accepted",
		"orderLinkId": "abc",
		"symbol":      "SOLUSDT",
		"side":        "Buy",
		"price":       "50",
		"qty":         "1.9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = Validate("order_event", map[string]interface{}{
		"symbol": "SOLUSDT",
	})
	if err == nil {
		t.Fatalf("expected error for missing fields")
	}
	if err := Validate("unknown", nil); err != nil {
		t.Fatalf("unknown events should pass: %v", err)
	}
}

func TestKnownEvents(t *testing.T) {
	names := Known()
	if len(names) == 0 {
		t.Fatalf("expected non-empty schema list")
	}
	found := false
	for _, n := range names {
		if n == "phase_event" {
			found = true
		}
	}
	if !found {
		t.Fatalf("phase_event not found in schemas")
	}
}
