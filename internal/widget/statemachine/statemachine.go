// Package statemachine implements the widget driver's pure reducer (spec
// §4.4): capability negotiation, OpenID token lifecycle, per-action
// authorization, and the two documented entry points, plus the negotiation
// trigger implied by the capability FSM (spec §4.4.3, "Unset -- widget
// requests caps --> Negotiating").
//
// Every exported function here takes a State by value and returns a new
// State by value alongside the actions to dispatch; the caller (the
// orchestrator) owns atomically swapping its held State. The one exception
// to purity is the PendingRegistry, which is single-owner and mutated in
// place by design (spec §4.3) — its own clock injection keeps expiry
// deterministic under test.
package statemachine

import (
	"time"

	"github.com/matrix-org/widgetdriver/internal/widget/action"
	"github.com/matrix-org/widgetdriver/internal/widget/capability"
	"github.com/matrix-org/widgetdriver/internal/widget/filter"
	"github.com/matrix-org/widgetdriver/internal/widget/message"
	"github.com/matrix-org/widgetdriver/internal/widget/pending"
)

// CapabilityState is the negotiation FSM's discriminant (spec §4.4.3).
type CapabilityState int

const (
	Unset CapabilityState = iota
	Negotiating
	Negotiated
)

// SupportedAPIVersions is the fixed advertised version list (spec §6.6).
var SupportedAPIVersions = []string{"0.0.1", "0.0.2", "MSC2762", "MSC2871", "MSC3819", "MSC4157"}

// OpenIDCredentials mirrors the credential shape stored once a token has
// been obtained from the Matrix client (spec §3.3).
type OpenIDCredentials struct {
	AccessToken string
	ExpiresIn   int64
	Homeserver  string
	TokenType   string
}

// openIDState is the cached, time-stamped credential (spec §3.3).
type openIDState struct {
	Credentials OpenIDCredentials
	AcquiredAt  time.Time
}

func (s openIDState) expired(now time.Time) bool {
	return !now.Before(s.AcquiredAt.Add(time.Duration(s.Credentials.ExpiresIn) * time.Second))
}

// OpenIDApprovalKind tags the outcome a capability approval carries for a
// pending OpenID request (spec §4.4.2, P6's "OpenIdAllowed").
type OpenIDApprovalKind int

const (
	// OpenIDUnchanged means process_capability_approval carries no OpenID
	// decision; any pending OpenID request is left untouched.
	OpenIDUnchanged OpenIDApprovalKind = iota
	OpenIDAllowed
	OpenIDBlocked
	OpenIDRequestPending
)

// OpenIDApproval is the optional openid parameter to
// ProcessCapabilityApproval.
type OpenIDApproval struct {
	Kind        OpenIDApprovalKind
	Credentials OpenIDCredentials
}

// State is the widget driver's machine state (spec §3.3).
type State struct {
	CapabilityState       CapabilityState
	RequestedCapabilities capability.Set
	ApprovedCapabilities  capability.Set
	openID                *openIDState
	Pending               *pending.Registry
	Now                   func() time.Time
	Context               capability.Context
}

// New builds an initial, Unset state. clock defaults to time.Now if nil.
func New(ctx capability.Context, clock func() time.Time, pendingReg *pending.Registry) State {
	if clock == nil {
		clock = time.Now
	}
	if pendingReg == nil {
		pendingReg = pending.New(pending.WithClock(clock))
	}
	return State{
		CapabilityState: Unset,
		Pending:         pendingReg,
		Now:             clock,
		Context:         ctx,
	}
}

// BeginNegotiation is the FSM's "widget requests caps" transition (spec
// §4.4.3). It is a one-shot move out of Unset; called again on a
// Negotiating or Negotiated state it is a no-op (re-negotiation is not
// modeled by this core).
func BeginNegotiation(s State, requestedCapabilities []string) (State, []action.Action) {
	if s.CapabilityState != Unset {
		return s, nil
	}
	s.CapabilityState = Negotiating
	s.RequestedCapabilities = capability.Parse(requestedCapabilities)
	return s, []action.Action{action.RequestCapabilities("", requestedCapabilities)}
}

const openIDPendingPrefix = "openid:"

// ProcessFromWidget is the primary reducer entry point (spec §4.4.1):
// dispatches on msg.Action and returns the next state plus the actions to
// execute.
func ProcessFromWidget(s State, msg message.WidgetMessage) (State, []action.Action) {
	switch msg.Action {
	case "supported_api_versions":
		return s, []action.Action{action.SendToWidget(msg.RequestID, "supported_api_versions", map[string]any{
			"supported_versions": SupportedAPIVersions,
		})}

	case "content_loaded":
		if s.CapabilityState != Negotiated {
			return s, nil
		}
		return s, []action.Action{action.SendToWidget(msg.RequestID, "capabilities", map[string]any{
			"capabilities": s.ApprovedCapabilities.Serialize(),
		})}

	case "get_openid":
		return processGetOpenID(s, msg)

	case "send_event":
		return processSendEvent(s, msg)

	case "read_events":
		return processReadEvents(s, msg)

	case "send_to_device":
		return processSendToDevice(s, msg)

	case "update_delayed_event":
		return processUpdateDelayedEvent(s, msg)

	case "navigate":
		return processNavigate(s, msg)

	default:
		if !msg.HasRequestID() {
			return s, nil
		}
		return s, []action.Action{action.Error(msg.RequestID, "M_UNRECOGNIZED", "unknown action: "+msg.Action)}
	}
}

func processGetOpenID(s State, msg message.WidgetMessage) (State, []action.Action) {
	if !msg.HasRequestID() {
		return s, nil
	}
	now := s.Now()
	if s.openID != nil && !s.openID.expired(now) {
		return s, []action.Action{action.SendToWidget(msg.RequestID, "openid_credentials", openIDAllowedPayload(s.openID.Credentials))}
	}
	if err := s.Pending.Insert(openIDPendingPrefix+msg.RequestID, msg.RequestID); err != nil {
		return s, []action.Action{action.Error(msg.RequestID, "M_LIMIT_EXCEEDED", err.Error())}
	}
	return s, []action.Action{action.RequestOpenID(msg.RequestID)}
}

func openIDAllowedPayload(c OpenIDCredentials) map[string]any {
	return map[string]any{
		"state":              "allowed",
		"access_token":       c.AccessToken,
		"expires_in":         c.ExpiresIn,
		"matrix_server_name": c.Homeserver,
		"token_type":         c.TokenType,
	}
}

func processSendEvent(s State, msg message.WidgetMessage) (State, []action.Action) {
	if !msg.HasRequestID() {
		return s, nil
	}
	req, ok := decodeSendEvent(msg.Data)
	if !ok {
		return s, []action.Action{action.Error(msg.RequestID, "M_INVALID_REQUEST", "malformed send_event body")}
	}
	if filter.IsCryptoEvent(req.Type) || !s.ApprovedCapabilities.CanSend(req.Type, req.StateKey, s.Context) {
		return s, []action.Action{action.CapabilityDenied(msg.RequestID, "send_event", "missing capability to send "+req.Type)}
	}
	return s, []action.Action{action.SendMatrixEvent(msg.RequestID, req.Type, req.Content, req.StateKey)}
}

func processReadEvents(s State, msg message.WidgetMessage) (State, []action.Action) {
	if !msg.HasRequestID() {
		return s, nil
	}
	req, ok := decodeReadEvents(msg.Data)
	if !ok {
		return s, []action.Action{action.Error(msg.RequestID, "M_INVALID_REQUEST", "malformed read_events body")}
	}
	evt := capability.Event{Type: req.Type, StateKey: req.StateKey}
	if !s.ApprovedCapabilities.CanReadEvent(evt, s.Context) {
		return s, []action.Action{action.CapabilityDenied(msg.RequestID, "read_events", "missing capability to read "+req.Type)}
	}
	return s, []action.Action{action.ReadMatrixEvents(msg.RequestID, req.Type, req.StateKey, req.Limit)}
}

func processSendToDevice(s State, msg message.WidgetMessage) (State, []action.Action) {
	if !msg.HasRequestID() {
		return s, nil
	}
	req, ok := decodeSendToDevice(msg.Data)
	if !ok {
		return s, []action.Action{action.Error(msg.RequestID, "M_INVALID_REQUEST", "malformed send_to_device body")}
	}
	if filter.IsCryptoEvent(req.Type) || !hasToDeviceCapability(s.ApprovedCapabilities, req.Type) {
		return s, []action.Action{action.CapabilityDenied(msg.RequestID, "send_to_device", "missing capability to send to-device "+req.Type)}
	}
	return s, []action.Action{action.SendToDeviceMessage(msg.RequestID, req.Type, req.Encrypted, req.Messages)}
}

func hasToDeviceCapability(approved capability.Set, eventType string) bool {
	for _, f := range approved.Send {
		if f.Kind == capability.KindToDeviceWithType && f.EventType == eventType {
			return true
		}
	}
	return false
}

func processUpdateDelayedEvent(s State, msg message.WidgetMessage) (State, []action.Action) {
	if !msg.HasRequestID() {
		return s, nil
	}
	req, ok := decodeUpdateDelayedEvent(msg.Data)
	if !ok {
		return s, []action.Action{action.Error(msg.RequestID, "M_INVALID_REQUEST", "malformed update_delayed_event body")}
	}
	if !s.ApprovedCapabilities.UpdateDelayedEvent {
		return s, []action.Action{action.CapabilityDenied(msg.RequestID, "update_delayed_event", "missing update_delayed_event capability")}
	}
	return s, []action.Action{action.UpdateDelayedEvent(msg.RequestID, req.Action, req.DelayID)}
}

func processNavigate(s State, msg message.WidgetMessage) (State, []action.Action) {
	req, ok := decodeNavigate(msg.Data)
	if !ok {
		if msg.HasRequestID() {
			return s, []action.Action{action.Error(msg.RequestID, "M_INVALID_REQUEST", "malformed navigate body")}
		}
		return s, nil
	}
	return s, []action.Action{action.Navigate(msg.RequestID, req.URI)}
}

// ProcessCapabilityApproval is the second reducer entry point (spec
// §4.4.2): resolves an outstanding capability negotiation and, optionally,
// an OpenID decision.
func ProcessCapabilityApproval(s State, approved []string, openid OpenIDApproval) (State, []action.Action) {
	s.CapabilityState = Negotiated
	s.ApprovedCapabilities = capability.Parse(approved)

	var actions []action.Action

	if id, _, ok := s.Pending.EarliestPending(openIDPendingPrefix); ok {
		payload, extracted := s.Pending.Extract(id)
		requestID, _ := payload.(string)
		if !extracted || requestID == "" {
			requestID = id
		}
		actions = append(actions, action.SendToWidget(requestID, "capabilities", map[string]any{
			"capabilities": s.ApprovedCapabilities.Serialize(),
		}))
	}

	var openIDActions []action.Action
	s, openIDActions = ResolveOpenID(s, openid)
	return s, append(actions, openIDActions...)
}

// ResolveOpenID answers any pending `openid:`-prefixed request against an
// OpenID decision, independent of capability negotiation. The orchestrator
// calls this directly once RequestOpenID's client round trip completes,
// since a get_openid cache miss can occur before, during, or after
// negotiation (spec §4.4.1's get_openid entry is not gated on
// capability_state).
func ResolveOpenID(s State, openid OpenIDApproval) (State, []action.Action) {
	var actions []action.Action
	switch openid.Kind {
	case OpenIDAllowed:
		now := s.Now()
		s.openID = &openIDState{Credentials: openid.Credentials, AcquiredAt: now}
		if _, payload, ok := s.Pending.ExtractFirstWithPrefix(openIDPendingPrefix); ok {
			requestID, _ := payload.(string)
			actions = append(actions, action.SendToWidget(requestID, "openid_credentials", openIDAllowedPayload(openid.Credentials)))
		}
	case OpenIDBlocked:
		if _, payload, ok := s.Pending.ExtractFirstWithPrefix(openIDPendingPrefix); ok {
			requestID, _ := payload.(string)
			actions = append(actions, action.SendToWidget(requestID, "openid_credentials", map[string]any{"state": "blocked"}))
		}
	case OpenIDRequestPending:
		if _, payload, ok := s.Pending.ExtractFirstWithPrefix(openIDPendingPrefix); ok {
			requestID, _ := payload.(string)
			actions = append(actions, action.SendToWidget(requestID, "openid_credentials", map[string]any{"state": "request"}))
		}
	}
	return s, actions
}
