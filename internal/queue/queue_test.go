package queue

import (
	"encoding/json"
	"testing"
	"time"
)

// The journal consumer and any external subscriber both key off these
// field names, so the wire format is pinned here.
func TestStatusEventWireFormat(t *testing.T) {
	changedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	event := StatusEvent{
		HomeworkName: "hw01_final",
		Status:       "approved",
		Message:      `Изменился статус проверки работы "hw01_final".`,
		ChangedAt:    changedAt,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal StatusEvent: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Failed to unmarshal into map: %v", err)
	}

	for _, key := range []string{"homework_name", "status", "message", "changed_at"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("Expected field %q on the wire", key)
		}
	}

	var parsed StatusEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal StatusEvent: %v", err)
	}
	if !parsed.ChangedAt.Equal(changedAt) {
		t.Errorf("ChangedAt = %v, want %v", parsed.ChangedAt, changedAt)
	}
}
