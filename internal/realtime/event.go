package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/nhle/workdesk/internal/model"
)

// Event names on the wire.
const (
	EventNewNotification = "new-notification"
	EventPing            = "ping"
	EventPong            = "pong"
)

// frame is the JSON envelope of every message in either direction.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a typed server-pushed message. Exactly one payload field is
// set, matching Name.
type Event struct {
	Name         string
	Notification *model.NotificationPush
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	if f.Event == "" {
		return frame{}, fmt.Errorf("frame without event name")
	}
	return f, nil
}

func decodeNotification(f frame) (Event, error) {
	var push model.NotificationPush
	if err := json.Unmarshal(f.Data, &push); err != nil {
		return Event{}, fmt.Errorf("decoding %s payload: %w", f.Event, err)
	}
	return Event{Name: f.Event, Notification: &push}, nil
}

func encodeFrame(event string) []byte {
	data, _ := json.Marshal(frame{Event: event})
	return data
}
