// Package orchestrator is the widget driver's non-pure glue (spec §4.5):
// it owns a single widget's transport and machine state, feeds inbound
// frames through the reducer, and executes the actions the reducer emits
// against the Matrix client, the capability UI, and the transport itself.
package orchestrator

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/matrix-org/widgetdriver/internal/widget/action"
	"github.com/matrix-org/widgetdriver/internal/widget/capability"
	"github.com/matrix-org/widgetdriver/internal/widget/filter"
	"github.com/matrix-org/widgetdriver/internal/widget/message"
	"github.com/matrix-org/widgetdriver/internal/widget/metrics"
	"github.com/matrix-org/widgetdriver/internal/widget/openidcache"
	"github.com/matrix-org/widgetdriver/internal/widget/statemachine"
	"github.com/matrix-org/widgetdriver/internal/widget/transport"
	"github.com/matrix-org/widgetdriver/setup/process"
)

// MatrixClient issues the Matrix operations a widget's approved actions
// translate into. The orchestrator awaits each call between reducer
// invocations; the reducer itself never blocks on one.
type MatrixClient interface {
	SendEvent(ctx context.Context, a action.Action) (eventID, roomID string, err error)
	ReadEvents(ctx context.Context, a action.Action) ([]message.MatrixEvent, error)
	SendToDevice(ctx context.Context, a action.Action) error
	UpdateDelayedEvent(ctx context.Context, a action.Action) error
	RequestOpenID(ctx context.Context, a action.Action) (statemachine.OpenIDCredentials, error)
	Navigate(ctx context.Context, a action.Action) error
}

// CapabilityUI asynchronously prompts the user for approval of a widget's
// requested capabilities, and for an OpenID decision if one is pending
// (spec §1, §4.5).
type CapabilityUI interface {
	RequestCapabilities(ctx context.Context, widgetID string, requested []string) ([]string, statemachine.OpenIDApproval, error)
}

// EventSource delivers room/state events the driver should consider
// forwarding to the widget, ahead of the FilterEngine/capability check
// (spec §4.5's "subscribes to room/state updates").
type EventSource interface {
	Events() <-chan message.MatrixEvent
}

// Orchestrator owns a single widget instance's reducer State and
// transport. It is not safe for concurrent use outside the goroutine Run
// starts; the state machine's state is owned solely by that goroutine
// (spec §5, "no locking is required because no structure crosses thread
// boundaries").
type Orchestrator struct {
	proc      *process.ProcessContext
	widgetID  string
	transport transport.Transport
	client    MatrixClient
	capUI     CapabilityUI
	events    EventSource
	openid    *openidcache.Cache

	state      statemachine.State
	readFilter *filter.Engine
}

// New constructs an Orchestrator for a single widget instance around an
// already-initialized reducer State (statemachine.New). openIDCache is
// shared across every widget connection the process serves: the reducer's
// own State already answers a repeated get_openid within one connection
// without touching the client, so openIDCache's only job is surviving
// what State doesn't, a reconnect of the same widget (spec §4.4.1's "cache
// hit (non-expired credential)").
func New(
	proc *process.ProcessContext,
	widgetID string,
	t transport.Transport,
	client MatrixClient,
	capUI CapabilityUI,
	events EventSource,
	openIDCache *openidcache.Cache,
	initial statemachine.State,
) *Orchestrator {
	return &Orchestrator{
		proc:       proc,
		widgetID:   widgetID,
		transport:  t,
		client:     client,
		capUI:      capUI,
		events:     events,
		openid:     openIDCache,
		state:      initial,
		readFilter: filter.Compile(initial.ApprovedCapabilities.Read),
	}
}

// Run drives the orchestrator's event loop until the transport closes or
// the process is shut down. It kicks off capability negotiation with
// requestedCapabilities before entering the loop. Run blocks; call it from
// its own goroutine.
func (o *Orchestrator) Run(requestedCapabilities []string) {
	o.proc.ComponentStarted()
	defer o.proc.ComponentFinished()

	ctx := o.proc.Context()

	var actions []action.Action
	o.state, actions = statemachine.BeginNegotiation(o.state, requestedCapabilities)
	o.dispatch(ctx, actions)

	for {
		select {
		case <-o.proc.WaitForShutdown():
			o.state.Pending.Clear()
			_ = o.transport.Close()
			return

		case frame, ok := <-o.transport.Inbound():
			if !ok {
				return
			}
			o.handleFrame(ctx, frame)

		case err, ok := <-o.transport.Errors():
			if !ok {
				continue
			}
			logrus.WithField("widget_id", o.widgetID).WithError(err).Warn("widget transport reported an error")

		case ev, ok := <-o.events.Events():
			if !ok {
				continue
			}
			o.handleEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleFrame(ctx context.Context, frame []byte) {
	var msg message.WidgetMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		logrus.WithField("widget_id", o.widgetID).WithError(err).Debug("dropping malformed widget frame")
		return
	}

	var actions []action.Action
	o.state, actions = statemachine.ProcessFromWidget(o.state, msg)
	o.dispatch(ctx, actions)
	metrics.PendingRegistrySize.Set(float64(o.state.Pending.Count()))
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev message.MatrixEvent) {
	evt := capability.Event{Type: ev.Type, StateKey: ev.StateKey, Msgtype: msgtypeOf(ev)}
	if filter.IsCryptoEvent(ev.Type) {
		return
	}
	if !o.readFilter.Match(evt, o.state.Context) {
		return
	}
	toWidgetAction := "notify_new_event"
	if evt.IsStateEvent() {
		toWidgetAction = "notify_state_update"
	}
	o.send(ctx, action.SendToWidget("", toWidgetAction, map[string]any{"event": ev}))
}

// dispatch executes actions in emission order, as spec §4.5 and §5 require:
// actions from a single reducer call are never interleaved with a later
// call's actions.
func (o *Orchestrator) dispatch(ctx context.Context, actions []action.Action) {
	for _, a := range actions {
		o.execute(ctx, a)
	}
}

func (o *Orchestrator) execute(ctx context.Context, a action.Action) {
	switch a.Kind {
	case action.KindSendToWidget:
		o.recordDenialMetrics(a)
		o.send(ctx, a)

	case action.KindSendMatrixEvent:
		eventID, roomID, err := o.client.SendEvent(ctx, a)
		if err != nil {
			o.fail(ctx, a.RequestID, err)
			return
		}
		metrics.ActionsDispatched.WithLabelValues("send_event", "ok").Inc()
		o.send(ctx, action.SendToWidget(a.RequestID, "send_event", map[string]any{"event_id": eventID, "room_id": roomID}))

	case action.KindReadMatrixEvents:
		events, err := o.client.ReadEvents(ctx, a)
		if err != nil {
			o.fail(ctx, a.RequestID, err)
			return
		}
		visible := make([]message.MatrixEvent, 0, len(events))
		for _, ev := range events {
			if !filter.IsCryptoEvent(ev.Type) {
				visible = append(visible, ev)
			}
		}
		metrics.ActionsDispatched.WithLabelValues("read_events", "ok").Inc()
		o.send(ctx, action.SendToWidget(a.RequestID, "read_events", map[string]any{"events": visible}))

	case action.KindSendToDeviceMessage:
		if err := o.client.SendToDevice(ctx, a); err != nil {
			o.fail(ctx, a.RequestID, err)
			return
		}
		metrics.ActionsDispatched.WithLabelValues("send_to_device", "ok").Inc()
		o.send(ctx, action.SendToWidget(a.RequestID, "send_to_device", map[string]any{}))

	case action.KindUpdateDelayedEvent:
		if err := o.client.UpdateDelayedEvent(ctx, a); err != nil {
			o.fail(ctx, a.RequestID, err)
			return
		}
		metrics.ActionsDispatched.WithLabelValues("update_delayed_event", "ok").Inc()
		o.send(ctx, action.SendToWidget(a.RequestID, "update_delayed_event", map[string]any{}))

	case action.KindNavigate:
		if err := o.client.Navigate(ctx, a); err != nil {
			if a.RequestID == "" {
				logrus.WithField("widget_id", o.widgetID).WithError(err).Warn("navigate failed; no requestId to answer")
				return
			}
			o.fail(ctx, a.RequestID, err)
			return
		}
		metrics.ActionsDispatched.WithLabelValues("navigate", "ok").Inc()
		if a.RequestID != "" {
			o.send(ctx, action.SendToWidget(a.RequestID, "navigate", map[string]any{}))
		}

	case action.KindRequestOpenID:
		userID, deviceID := o.state.Context.UserID, o.state.Context.DeviceID
		if creds, ok := o.openid.Get(userID, deviceID); ok {
			metrics.ActionsDispatched.WithLabelValues("request_openid", "cache_hit").Inc()
			o.dispatch(ctx, resolveOpenIDInPlace(&o.state, statemachine.OpenIDApproval{Kind: statemachine.OpenIDAllowed, Credentials: creds}))
			return
		}
		creds, err := o.client.RequestOpenID(ctx, a)
		if err != nil {
			metrics.ActionsDispatched.WithLabelValues("request_openid", "error").Inc()
			o.dispatch(ctx, resolveOpenIDInPlace(&o.state, statemachine.OpenIDApproval{Kind: statemachine.OpenIDBlocked}))
			return
		}
		o.openid.Put(userID, deviceID, creds)
		metrics.ActionsDispatched.WithLabelValues("request_openid", "ok").Inc()
		o.dispatch(ctx, resolveOpenIDInPlace(&o.state, statemachine.OpenIDApproval{Kind: statemachine.OpenIDAllowed, Credentials: creds}))

	case action.KindRequestCapabilities:
		approved, openid, err := o.capUI.RequestCapabilities(ctx, o.widgetID, a.RequestedCapabilities)
		if err != nil {
			logrus.WithField("widget_id", o.widgetID).WithError(err).Warn("capability UI request failed; denying all capabilities")
			approved = nil
		}
		var followUp []action.Action
		o.state, followUp = statemachine.ProcessCapabilityApproval(o.state, approved, openid)
		o.readFilter = filter.Compile(o.state.ApprovedCapabilities.Read)
		metrics.ActionsDispatched.WithLabelValues("request_capabilities", "ok").Inc()
		o.dispatch(ctx, followUp)
	}
}

// resolveOpenIDInPlace threads an OpenID decision through the reducer's
// ResolveOpenID and updates *s in place, mirroring the calling pattern the
// other Kind branches use for o.state.
func resolveOpenIDInPlace(s *statemachine.State, openid statemachine.OpenIDApproval) []action.Action {
	next, actions := statemachine.ResolveOpenID(*s, openid)
	*s = next
	return actions
}

// send delivers a SendToWidget action over the transport. A send failure is
// reported back to the widget as a best-effort error, except when the
// failing send was itself an error reply (spec §4.5).
func (o *Orchestrator) send(ctx context.Context, a action.Action) {
	frame, err := json.Marshal(message.WidgetMessage{
		API:       message.APIToWidget,
		RequestID: a.RequestID,
		WidgetID:  o.widgetID,
		Action:    a.ToWidgetAction,
		Data:      marshalData(a.ToWidgetData),
	})
	if err != nil {
		logrus.WithField("widget_id", o.widgetID).WithError(err).Warn("failed to marshal outgoing widget frame")
		return
	}
	if err := o.transport.Send(ctx, frame); err != nil && a.ToWidgetAction != "error" {
		o.fail(ctx, a.RequestID, err)
	}
}

// recordDenialMetrics attributes the two denial counters from an outgoing
// error Action, since the reducer that produced it stays side-effect-free:
// a.DeniedAction is set only by action.CapabilityDenied, and the
// M_LIMIT_EXCEEDED code is unique to a rejected pending.Registry.Insert
// (statemachine.processGetOpenID).
func (o *Orchestrator) recordDenialMetrics(a action.Action) {
	if a.ToWidgetAction != "error" {
		return
	}
	if a.DeniedAction != "" {
		metrics.CapabilityDenials.WithLabelValues(a.DeniedAction).Inc()
	}
	if code, _ := a.ToWidgetData["code"].(string); code == "M_LIMIT_EXCEEDED" {
		metrics.PendingRegistryRejections.Inc()
	}
}

func (o *Orchestrator) fail(ctx context.Context, requestID string, err error) {
	logrus.WithField("widget_id", o.widgetID).WithError(err).Warn("action execution failed")
	o.send(ctx, action.Error(requestID, "M_UNKNOWN", err.Error()))
}

func msgtypeOf(ev message.MatrixEvent) string {
	if ev.Type != "m.room.message" {
		return ""
	}
	var content struct {
		Msgtype string `json:"msgtype"`
	}
	_ = json.Unmarshal(ev.Content, &content)
	return content.Msgtype
}

func marshalData(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}
