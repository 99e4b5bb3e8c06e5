package llm

import (
	"testing"
)

var allowed = []string{"Booking", "Status Check", "Cancellation", "Informational", "Others"}

func TestParseAnalysis_Valid(t *testing.T) {
	text := `{"call_type": "Booking", "summary": "Customer ordered a cake.", "key_details": {"customer_name": "Sandy", "weight_of_cake": "1kg", "price": 450}}`

	a := ParseAnalysis(text, allowed)
	if a.CallType != "Booking" {
		t.Errorf("Expected call_type Booking, got %s", a.CallType)
	}
	if a.Summary != "Customer ordered a cake." {
		t.Errorf("Wrong summary: %s", a.Summary)
	}
	if a.KeyDetails["customer_name"] != "Sandy" {
		t.Errorf("Wrong key_details: %v", a.KeyDetails)
	}
	if a.KeyDetails["price"] != "450" {
		t.Errorf("Numeric detail must be stringified, got %q", a.KeyDetails["price"])
	}
}

func TestParseAnalysis_CodeFence(t *testing.T) {
	text := "```json\n{\"call_type\": \"Informational\", \"summary\": \"Asked about hours.\", \"key_details\": {}}\n```"

	a := ParseAnalysis(text, allowed)
	if a.CallType != "Informational" {
		t.Errorf("Expected Informational, got %s", a.CallType)
	}
}

func TestParseAnalysis_DisallowedTypeCoerced(t *testing.T) {
	text := `{"call_type": "Complaint", "summary": "Unhappy customer.", "key_details": {}}`

	a := ParseAnalysis(text, allowed)
	if a.CallType != CallTypeOthers {
		t.Errorf("Expected coercion to Others, got %s", a.CallType)
	}
	if a.Summary != "Unhappy customer." {
		t.Errorf("Summary must be preserved on coercion, got %s", a.Summary)
	}
}

func TestParseAnalysis_InvalidJSON(t *testing.T) {
	a := ParseAnalysis("the call was about a cake", allowed)
	if a.CallType != CallTypeOthers {
		t.Errorf("Expected Others, got %s", a.CallType)
	}
	if a.Summary != FailedAnalysisSummary {
		t.Errorf("Expected failure summary, got %s", a.Summary)
	}
	if len(a.KeyDetails) != 0 {
		t.Errorf("Expected empty key_details, got %v", a.KeyDetails)
	}
}

func TestParseAnalysis_MissingRequiredKeys(t *testing.T) {
	a := ParseAnalysis(`{"call_type": "Booking"}`, allowed)
	if a.CallType != CallTypeOthers || a.Summary != FailedAnalysisSummary {
		t.Errorf("Expected failure analysis for missing summary, got %+v", a)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"plain object", `{"a": 1}`, true},
		{"fenced object", "```json\n{\"a\": 1}\n```", true},
		{"bare fence", "```\n{\"a\": 1}\n```", true},
		{"prose", "no json here", false},
		{"array", `[1, 2]`, false},
	}

	for _, tt := range tests {
		got := ExtractJSON(tt.in)
		if (got != nil) != tt.ok {
			t.Errorf("%s: ExtractJSON = %v, want ok=%v", tt.name, got, tt.ok)
		}
	}
}
