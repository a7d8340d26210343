package nostr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Wire message discriminators.
const (
	MessageEvent = "EVENT"
	MessageReq   = "REQ"
	MessageClose = "CLOSE"
)

// ErrMalformedMessage is returned for frames that are not one of the
// three wire message shapes.
var ErrMalformedMessage = errors.New("nostr: malformed message")

// Message is a decoded client-to-relay frame: one of
// ["EVENT", event], ["REQ", subscription_id, filter, ...] or
// ["CLOSE", subscription_id].
type Message struct {
	Type    string
	Event   *Event
	SubID   string
	Filters []Filter
}

// ParseMessage decodes a wire frame into a Message.
func ParseMessage(data []byte) (*Message, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedMessage)
	}

	var msgType string
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return nil, fmt.Errorf("%w: message must start with one of %q, %q, %q",
			ErrMalformedMessage, MessageEvent, MessageReq, MessageClose)
	}

	switch msgType {
	case MessageEvent:
		if len(elems) != 2 {
			return nil, fmt.Errorf("%w: EVENT takes exactly one event", ErrMalformedMessage)
		}
		var ev Event
		if err := json.Unmarshal(elems[1], &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return &Message{Type: MessageEvent, Event: &ev}, nil

	case MessageReq:
		if len(elems) < 2 {
			return nil, fmt.Errorf("%w: REQ requires a subscription id", ErrMalformedMessage)
		}
		var subID string
		if err := json.Unmarshal(elems[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		filters := make([]Filter, 0, len(elems)-2)
		for _, raw := range elems[2:] {
			var f Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
			filters = append(filters, f)
		}
		return &Message{Type: MessageReq, SubID: subID, Filters: filters}, nil

	case MessageClose:
		if len(elems) != 2 {
			return nil, fmt.Errorf("%w: CLOSE takes exactly one subscription id", ErrMalformedMessage)
		}
		var subID string
		if err := json.Unmarshal(elems[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return &Message{Type: MessageClose, SubID: subID}, nil
	}

	return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, msgType)
}

// OKFrame serializes the ["OK", event_id, accepted, message] reply.
func OKFrame(eventID string, accepted bool, message string) []byte {
	return marshalFrame([]any{"OK", eventID, accepted, message})
}

// EventFrame serializes the ["EVENT", subscription_id, event] reply.
func EventFrame(subID string, ev *Event) []byte {
	return marshalFrame([]any{MessageEvent, subID, ev})
}

// EOSEFrame serializes the end-of-stored-events marker.
func EOSEFrame(subID string) []byte {
	return marshalFrame([]any{"EOSE", subID})
}

// marshalFrame encodes without HTML escaping so event content crosses
// the wire byte-identical to its canonical form.
func marshalFrame(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// All frame values are marshalable by construction.
		panic(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}
