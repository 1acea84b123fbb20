package realtime

import "encoding/json"

// Local-only message types synthesized by the bridge itself. Everything else
// a Handler sees came verbatim from the remote service.
const (
	MessageTypeAudioBlocked = "audio_blocked"
	MessageTypeError        = "error"
)

// Event is one decoded data-channel message. Raw holds the full JSON body so
// callers can re-decode into richer shapes.
type Event struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// Handler receives every event of a session: remote service events plus the
// two synthesized local types. Called from network goroutines; implementations
// must not block for long.
type Handler func(Event)

func localEvent(msgType, message string) Event {
	raw, _ := json.Marshal(map[string]string{
		"type":    msgType,
		"message": message,
	})
	return Event{Type: msgType, Raw: raw}
}
