// Package hub fans engagement results out to websocket subscribers,
// one topic per session, using the channel-based hub pattern.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data
	BinaryMessage
)

// Message is a payload for every subscriber of Topic.
type Message struct {
	Topic string
	Type  MessageType
	Data  []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes.
func NewJSONMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message.
func NewBinaryMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Type: BinaryMessage, Data: data}
}
