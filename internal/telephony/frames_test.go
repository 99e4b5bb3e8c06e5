package telephony

import (
	"encoding/json"
	"testing"
)

func TestParseMessage_Start(t *testing.T) {
	raw := []byte(`{
		"event": "start",
		"start": {
			"stream_sid": "ST123",
			"call_sid": "CA456",
			"account_sid": "AC789",
			"from": "09901678665",
			"custom_parameters": {"tenant": "saloon"}
		}
	}`)

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Event != EventStart {
		t.Errorf("Expected event 'start', got '%s'", msg.Event)
	}
	if msg.Start == nil {
		t.Fatal("Expected start payload")
	}
	if msg.Start.StreamSid != "ST123" || msg.Start.CallSid != "CA456" || msg.Start.AccountSid != "AC789" {
		t.Errorf("Wrong identity fields: %+v", msg.Start)
	}
	if msg.Start.CustomParameters["tenant"] != "saloon" {
		t.Errorf("Expected tenant custom parameter, got %v", msg.Start.CustomParameters)
	}
}

func TestParseMessage_Media(t *testing.T) {
	raw := []byte(`{"event": "media", "media": {"payload": "AAAA", "rate": 8000}}`)

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.Media == nil || msg.Media.Payload != "AAAA" || msg.Media.Rate != 8000 {
		t.Errorf("Wrong media payload: %+v", msg.Media)
	}
}

func TestParseMessage_DTMF(t *testing.T) {
	raw := []byte(`{"event": "dtmf", "dtmf": {"digit": "5"}}`)

	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage failed: %v", err)
	}
	if msg.DTMF == nil || msg.DTMF.Digit != "5" {
		t.Errorf("Wrong dtmf payload: %+v", msg.DTMF)
	}
}

func TestParseMessage_Malformed(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("Expected error for non-JSON frame")
	}
	if _, err := ParseMessage([]byte(`{"foo": "bar"}`)); err == nil {
		t.Error("Expected error for frame without event")
	}
}

func TestMessage_OutboundShape(t *testing.T) {
	msg := Message{
		Event:          EventMedia,
		SequenceNumber: "1",
		StreamSid:      "ST123",
		Media:          &Media{Payload: "AAAA"},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["sequence_number"] != "1" {
		t.Errorf("sequence_number must be a string, got %T %v", decoded["sequence_number"], decoded["sequence_number"])
	}
	if decoded["stream_sid"] != "ST123" {
		t.Errorf("Expected stream_sid 'ST123', got %v", decoded["stream_sid"])
	}
	if _, ok := decoded["mark"]; ok {
		t.Error("Empty mark must be omitted from a media frame")
	}
}
