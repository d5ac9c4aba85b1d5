package events

import (
	"encoding/json"
	"fmt"
)

// FormatSSE renders an Event as one Server-Sent Events frame for the
// HTTP host's progress stream (§6).
func FormatSSE(e Event) (string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, body), nil
}
