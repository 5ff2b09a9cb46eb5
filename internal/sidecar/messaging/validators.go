package messaging

import (
	"bytes"
	"encoding/json"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
)

// AnyPayload accepts every message; used by types that carry no payload.
func AnyPayload(Message) bool { return true }

func payloadObject(msg Message) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg.Payload, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// ValidProjectCreate requires a string name and, if present, a string
// description.
func ValidProjectCreate(msg Message) bool {
	fields, ok := payloadObject(msg)
	if !ok || !isString(fields["name"]) {
		return false
	}
	desc, present := fields["description"]
	return !present || isString(desc)
}

// ValidChatSend requires string text and sessionId.
func ValidChatSend(msg Message) bool {
	fields, ok := payloadObject(msg)
	return ok && isString(fields["text"]) && isString(fields["sessionId"])
}

// ValidBrowserControlAction requires a known action.
func ValidBrowserControlAction(msg Message) bool {
	fields, ok := payloadObject(msg)
	if !ok || !isString(fields["action"]) {
		return false
	}
	var action domain.BrowserControlAction
	if err := json.Unmarshal(fields["action"], &action); err != nil {
		return false
	}
	return action.Valid()
}

func decodePayload[T any](msg Message) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	if err := dec.Decode(&out); err != nil {
		return out, domain.WrapError(domain.CodeValidation, domain.MsgInvalidPayload, err)
	}
	return out, nil
}
