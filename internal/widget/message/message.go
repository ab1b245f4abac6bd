// Package message defines the widget postMessage envelope (MSC2762, spec
// §6.2) and the JSON request/response payload shapes carried inside it
// (spec §6.3).
package message

import "encoding/json"

// API distinguishes the direction a WidgetMessage travels.
type API string

const (
	APIFromWidget API = "fromWidget"
	APIToWidget   API = "toWidget"
)

// WidgetMessage is the postMessage envelope every frame exchanged with the
// widget is wrapped in.
type WidgetMessage struct {
	API       API             `json:"api"`
	RequestID string          `json:"requestId,omitempty"`
	WidgetID  string          `json:"widgetId"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Response  json.RawMessage `json:"response,omitempty"`
}

// HasRequestID reports whether m carries a non-empty requestId, used to
// decide whether a dispatch failure can be answered at all (spec §4.4.1:
// "a missing request_id on any action requiring a response is a protocol
// violation: the message is dropped silently").
func (m WidgetMessage) HasRequestID() bool {
	return m.RequestID != ""
}

// SendEventRequest is the send_event action's request payload.
type SendEventRequest struct {
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content"`
	StateKey *string         `json:"state_key,omitempty"`
}

// SendEventResponse is the send_event action's response payload.
type SendEventResponse struct {
	EventID string `json:"event_id"`
	RoomID  string `json:"room_id,omitempty"`
}

// ReadEventsRequest is the read_events action's request payload.
type ReadEventsRequest struct {
	Type     string  `json:"type,omitempty"`
	StateKey *string `json:"state_key,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// MatrixEvent is the minimal shape of an event forwarded to a widget.
type MatrixEvent struct {
	Type     string          `json:"type"`
	Sender   string          `json:"sender"`
	RoomID   string          `json:"room_id,omitempty"`
	StateKey *string         `json:"state_key,omitempty"`
	Content  json.RawMessage `json:"content"`
	EventID  string          `json:"event_id"`
	OriginTS int64           `json:"origin_server_ts"`
}

// ReadEventsResponse is the read_events action's response payload.
type ReadEventsResponse struct {
	Events []MatrixEvent `json:"events"`
}

// SendToDeviceRequest is the send_to_device action's request payload
// (MSC3819).
type SendToDeviceRequest struct {
	Type      string                                 `json:"type"`
	Encrypted bool                                   `json:"encrypted"`
	Messages  map[string]map[string]json.RawMessage `json:"messages"`
}

// GetOpenIDResponse is the get_openid action's response payload. State is
// one of "allowed", "blocked", or "request" (spec §6.3, §6.6).
type GetOpenIDResponse struct {
	State            string `json:"state"`
	AccessToken      string `json:"access_token,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	MatrixServerName string `json:"matrix_server_name,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
}

// NavigateRequest is the navigate action's request payload.
type NavigateRequest struct {
	URI string `json:"uri"`
}

// UpdateDelayedEventRequest is the update_delayed_event action's request
// payload (MSC4157).
type UpdateDelayedEventRequest struct {
	Action  string `json:"action"`
	DelayID string `json:"delay_id"`
}

// SupportedAPIVersionsResponse is the supported_api_versions action's
// response payload.
type SupportedAPIVersionsResponse struct {
	SupportedVersions []string `json:"supported_versions"`
}

// CapabilitiesResponse is the capabilities notification payload sent after
// capability negotiation completes.
type CapabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

// RequestCapabilitiesResponse is the request_capabilities action's response
// payload: the widget's own ask, echoed back.
type RequestCapabilitiesResponse struct {
	Capabilities []string `json:"capabilities"`
}

// ErrorData is the error envelope (spec §6.3, §7): carried as the "data"
// field of a SendToWidget{action="error"} message.
type ErrorData struct {
	Code         string          `json:"code"`
	Message      string          `json:"message"`
	MatrixError  json.RawMessage `json:"matrix_error,omitempty"`
	RetryAfterMs int64           `json:"retry_after_ms,omitempty"`
}
