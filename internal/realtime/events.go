package realtime

import "encoding/json"

const (
	EventNotification = "notification"
	EventNewMessage   = "new-message"
	EventMessagesRead = "messages-read"
)

// Envelope is the frame written to websocket clients.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
