package event

import "encoding/json"

// Server -> client event names. These are wire names and must stay stable
// for client compatibility.
const (
	EventOnlineUsers      = "getOnlineUsers"
	EventNewMessage       = "newMessage"
	EventMessageDelivered = "messageDelivered"
	EventMessageSeen      = "messageSeenUpdate"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
)

// Client -> server event names.
const (
	EventClientTyping     = "typing"
	EventClientStopTyping = "stopTyping"
	EventClientSend       = "sendMessage"
)

// WsEvent is the envelope for every frame exchanged over a realtime
// connection. Payload carries the event-specific body.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypingSignal is the body of client typing/stopTyping frames. The server
// forwards only the sender id to the receiver's connections; expiry of the
// indicator is handled client-side.
type TypingSignal struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
}

// New builds a WsEvent with the given payload marshalled into the envelope.
func New(name string, payload any) (WsEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return WsEvent{}, err
	}
	return WsEvent{Event: name, Payload: raw}, nil
}
