package schema

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Bridge protocol message kinds.
const (
	KindSubscribe  = "subscribe-to-data-url"
	KindSetDataURL = "set-data-url"
)

// FrameEndpoint is the websocket path a parent context serves the bridge
// protocol on, relative to its advertised origin.
const FrameEndpoint = "/frame"

// ErrUnknownKind reports a well-formed message whose kind is outside the
// protocol. Receivers ignore such messages.
var ErrUnknownKind = errors.New("unknown bridge message kind")

// Message is one bridge protocol message. The variant set is closed; only
// types in this package implement it.
type Message interface {
	kind() string
}

// SubscribeToDataURL announces a frame's interest in data-URL updates. It is
// sent exactly once per established connection, before any reads.
type SubscribeToDataURL struct{}

func (SubscribeToDataURL) kind() string { return KindSubscribe }

// SetDataURL instructs a frame to switch to a new data source locator. Origin
// declares the sender's origin; receivers compare it byte-for-byte against
// their configured parent origin.
type SetDataURL struct {
	Origin  string
	DataURL string
}

func (SetDataURL) kind() string { return KindSetDataURL }

type wireMessage struct {
	Type    string `json:"type"`
	Origin  string `json:"origin,omitempty"`
	DataURL string `json:"dataUrl,omitempty"`
}

// DecodeMessage parses and validates one bridge message. It is the only
// deserialization point of the protocol: malformed payloads, wrongly typed
// fields, and incomplete variants all fail here, and a kind outside the
// protocol returns ErrUnknownKind.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode bridge message: %w", err)
	}
	switch wire.Type {
	case KindSubscribe:
		return SubscribeToDataURL{}, nil
	case KindSetDataURL:
		if strings.TrimSpace(wire.DataURL) == "" {
			return nil, fmt.Errorf("set-data-url without dataUrl")
		}
		return SetDataURL{Origin: wire.Origin, DataURL: wire.DataURL}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, wire.Type)
	}
}

// EncodeMessage serializes a bridge message for the wire.
func EncodeMessage(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case SubscribeToDataURL:
		return json.Marshal(wireMessage{Type: KindSubscribe})
	case SetDataURL:
		if strings.TrimSpace(msg.DataURL) == "" {
			return nil, fmt.Errorf("set-data-url without dataUrl")
		}
		return json.Marshal(wireMessage{Type: KindSetDataURL, Origin: msg.Origin, DataURL: msg.DataURL})
	default:
		return nil, fmt.Errorf("unencodable bridge message %T", m)
	}
}
