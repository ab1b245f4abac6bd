package statemachine

import "encoding/json"

// decodeSendEvent, et al., unmarshal a WidgetMessage's raw Data payload. A
// malformed body answers with M_INVALID_REQUEST rather than panicking — the
// reducer never throws (spec §7).

type sendEventBody struct {
	Type     string         `json:"type"`
	Content  map[string]any `json:"content"`
	StateKey *string        `json:"state_key,omitempty"`
}

func decodeSendEvent(raw []byte) (sendEventBody, bool) {
	var b sendEventBody
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil || b.Type == "" {
		return sendEventBody{}, false
	}
	return b, true
}

type readEventsBody struct {
	Type     string  `json:"type,omitempty"`
	StateKey *string `json:"state_key,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

func decodeReadEvents(raw []byte) (readEventsBody, bool) {
	var b readEventsBody
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return readEventsBody{}, false
	}
	return b, true
}

type sendToDeviceBody struct {
	Type      string                                `json:"type"`
	Encrypted bool                                  `json:"encrypted"`
	Messages  map[string]map[string]map[string]any `json:"messages"`
}

func decodeSendToDevice(raw []byte) (sendToDeviceBody, bool) {
	var b sendToDeviceBody
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil || b.Type == "" {
		return sendToDeviceBody{}, false
	}
	return b, true
}

type updateDelayedEventBody struct {
	Action  string `json:"action"`
	DelayID string `json:"delay_id"`
}

func decodeUpdateDelayedEvent(raw []byte) (updateDelayedEventBody, bool) {
	var b updateDelayedEventBody
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil || b.DelayID == "" {
		return updateDelayedEventBody{}, false
	}
	return b, true
}

type navigateBody struct {
	URI string `json:"uri"`
}

func decodeNavigate(raw []byte) (navigateBody, bool) {
	var b navigateBody
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil || b.URI == "" {
		return navigateBody{}, false
	}
	return b, true
}
