// Package action defines the closed set of effects the state machine's
// reducer can emit (spec §4.4). An Action tells the orchestrator what to do
// outside the pure reducer: send a framed reply to the widget, call the
// Matrix client, prompt the capability UI, or navigate the host.
package action

// Kind tags which variant an Action holds. Actions are a closed tagged union
// dispatched by a switch on Kind, following the same
// tagged-variant-as-struct shape used by internal/widget/capability.Filter.
type Kind int

const (
	KindSendToWidget Kind = iota
	KindSendMatrixEvent
	KindReadMatrixEvents
	KindSendToDeviceMessage
	KindUpdateDelayedEvent
	KindNavigate
	KindRequestOpenID
	KindRequestCapabilities
)

// Action is the reducer's sole output alongside the next state. Only the
// fields relevant to Kind are populated; callers must switch on Kind before
// reading them.
type Action struct {
	Kind Kind

	// RequestID is the originating widget requestId, when one was present.
	// Empty for notifications and for actions with no natural requestId
	// (e.g. a RequestCapabilities prompt answered asynchronously).
	RequestID string

	// SendToWidget fields: a reply or notification delivered back over the
	// transport, addressed by RequestID (empty for unsolicited notifications
	// such as forwarded Matrix events).
	ToWidgetAction string
	ToWidgetData   map[string]any

	// SendMatrixEvent fields.
	EventType string
	Content   map[string]any
	StateKey  *string

	// ReadMatrixEvents fields.
	ReadType     string
	ReadStateKey *string
	ReadLimit    int

	// SendToDeviceMessage fields.
	ToDeviceType      string
	ToDeviceEncrypted bool
	ToDeviceMessages  map[string]map[string]map[string]any

	// UpdateDelayedEvent fields.
	DelayedEventAction string
	DelayID            string

	// Navigate fields.
	NavigateURI string

	// RequestOpenID carries no payload beyond RequestID: it asks the
	// orchestrator to obtain a fresh OpenID token from the Matrix client.

	// RequestCapabilities fields: the widget's ask, forwarded to the
	// external CapabilityUI collaborator.
	RequestedCapabilities []string

	// DeniedAction names the fromWidget action a capability or crypto-denylist
	// check refused. Set only on Error actions built by CapabilityDenied; the
	// orchestrator reads it to attribute a capability-denial metric and it is
	// never sent over the transport itself.
	DeniedAction string
}

// SendToWidget builds a reply or notification destined for the widget.
func SendToWidget(requestID, toWidgetAction string, data map[string]any) Action {
	return Action{Kind: KindSendToWidget, RequestID: requestID, ToWidgetAction: toWidgetAction, ToWidgetData: data}
}

// Error builds the canonical SendToWidget{action="error", ...} shape used
// for every reducer-detected authorization or validation failure (spec
// §4.4.1: "all error actions are encoded as SendToWidget{action=\"error\"...}").
func Error(requestID, code, message string) Action {
	return SendToWidget(requestID, "error", map[string]any{
		"code":    code,
		"message": message,
	})
}

// CapabilityDenied builds the error Action for a refusal attributable to a
// missing capability or the crypto denylist, tagging deniedAction (the
// fromWidget action name) so the orchestrator can attribute its denial
// metric without the reducer itself touching metrics (spec §4.4.1's
// M_FORBIDDEN failures).
func CapabilityDenied(requestID, deniedAction, message string) Action {
	a := Error(requestID, "M_FORBIDDEN", message)
	a.DeniedAction = deniedAction
	return a
}

// SendMatrixEvent asks the orchestrator to send a room (or state) event via
// the Matrix client.
func SendMatrixEvent(requestID, eventType string, content map[string]any, stateKey *string) Action {
	return Action{
		Kind:      KindSendMatrixEvent,
		RequestID: requestID,
		EventType: eventType,
		Content:   content,
		StateKey:  stateKey,
	}
}

// ReadMatrixEvents asks the orchestrator to read events matching type/
// stateKey/limit from the Matrix client.
func ReadMatrixEvents(requestID, eventType string, stateKey *string, limit int) Action {
	return Action{
		Kind:         KindReadMatrixEvents,
		RequestID:    requestID,
		ReadType:     eventType,
		ReadStateKey: stateKey,
		ReadLimit:    limit,
	}
}

// SendToDeviceMessage asks the orchestrator to dispatch a to-device message
// (MSC3819).
func SendToDeviceMessage(requestID, eventType string, encrypted bool, messages map[string]map[string]map[string]any) Action {
	return Action{
		Kind:              KindSendToDeviceMessage,
		RequestID:         requestID,
		ToDeviceType:      eventType,
		ToDeviceEncrypted: encrypted,
		ToDeviceMessages:  messages,
	}
}

// UpdateDelayedEvent asks the orchestrator to update or cancel a scheduled
// delayed event (MSC4157).
func UpdateDelayedEvent(requestID, delayedAction, delayID string) Action {
	return Action{
		Kind:               KindUpdateDelayedEvent,
		RequestID:          requestID,
		DelayedEventAction: delayedAction,
		DelayID:            delayID,
	}
}

// Navigate asks the orchestrator's host to navigate to uri. Navigate never
// fails inside the reducer; there is no gate for it (spec §4.4.1).
func Navigate(requestID, uri string) Action {
	return Action{Kind: KindNavigate, RequestID: requestID, NavigateURI: uri}
}

// RequestOpenID asks the orchestrator to obtain a fresh OpenID token from the
// Matrix client, keyed by the pending registry entry "openid:"+requestID.
func RequestOpenID(requestID string) Action {
	return Action{Kind: KindRequestOpenID, RequestID: requestID}
}

// RequestCapabilities asks the orchestrator to prompt the external
// CapabilityUI with the widget's requested capability strings.
func RequestCapabilities(requestID string, requested []string) Action {
	return Action{Kind: KindRequestCapabilities, RequestID: requestID, RequestedCapabilities: requested}
}
