package bus

import (
	"encoding/json"
	"testing"
)

func TestEventMarshalsExpectedShape(t *testing.T) {
	evt := Event{
		MessageUUID: "abc-123",
		Actions:     []map[string]any{{"name": "process_patient", "data": map[string]any{"mrn": "654321"}}},
	}
	body, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["dhos_connector_message_uuid"] != "abc-123" {
		t.Errorf("uuid field = %v", decoded["dhos_connector_message_uuid"])
	}
	if _, ok := decoded["actions"]; !ok {
		t.Error("expected actions field")
	}
}
