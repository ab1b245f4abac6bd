package statemachine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-org/widgetdriver/internal/widget/action"
	"github.com/matrix-org/widgetdriver/internal/widget/capability"
	"github.com/matrix-org/widgetdriver/internal/widget/message"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func widgetMsg(requestID, act string, data any) message.WidgetMessage {
	raw, _ := json.Marshal(data)
	return message.WidgetMessage{API: message.APIFromWidget, RequestID: requestID, WidgetID: "w", Action: act, Data: raw}
}

// Scenario 1: supported versions probe.
func TestSupportedVersionsProbe(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("r1", "supported_api_versions", map[string]any{})

	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, action.KindSendToWidget, actions[0].Kind)
	assert.Equal(t, "supported_api_versions", actions[0].ToWidgetAction)
	assert.Equal(t, SupportedAPIVersions, actions[0].ToWidgetData["supported_versions"])
}

// Scenario 2: send denied before negotiation.
func TestSendDeniedBeforeNegotiation(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("r2", "send_event", map[string]any{"type": "m.room.message", "content": map[string]any{"body": "hi"}})

	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, action.KindSendToWidget, actions[0].Kind)
	assert.Equal(t, "error", actions[0].ToWidgetAction)
	assert.Equal(t, "M_FORBIDDEN", actions[0].ToWidgetData["code"])
}

// Scenario 3: send allowed after approval.
func TestSendAllowedAfterApproval(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc2762.send.event:m.room.message"}, OpenIDApproval{})

	msg := widgetMsg("r3", "send_event", map[string]any{"type": "m.room.message", "content": map[string]any{"body": "hi"}})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	require.Equal(t, action.KindSendMatrixEvent, actions[0].Kind)
	assert.Equal(t, "m.room.message", actions[0].EventType)
	assert.Equal(t, "hi", actions[0].Content["body"])
	assert.Nil(t, actions[0].StateKey)
}

// Scenario 4: crypto block overrides permission.
func TestCryptoBlockOverridesPermission(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc2762.send.event:m.room"}, OpenIDApproval{})

	msg := widgetMsg("r4", "send_event", map[string]any{"type": "m.room.encrypted", "content": map[string]any{}})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, "error", actions[0].ToWidgetAction)
	assert.Equal(t, "M_FORBIDDEN", actions[0].ToWidgetData["code"])
}

// Scenario 5: OpenID cache hit.
func TestOpenIDCacheHit(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(1000, 0)), nil)
	s.openID = &openIDState{
		Credentials: OpenIDCredentials{AccessToken: "tok", ExpiresIn: 3600, Homeserver: "example.org", TokenType: "Bearer"},
		AcquiredAt:  time.Unix(999, 0),
	}

	msg := widgetMsg("r5", "get_openid", map[string]any{})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, "openid_credentials", actions[0].ToWidgetAction)
	assert.Equal(t, "allowed", actions[0].ToWidgetData["state"])
	assert.Equal(t, "tok", actions[0].ToWidgetData["access_token"])
}

func TestGetOpenIDMissWithoutCacheRequestsFromClient(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("r6", "get_openid", map[string]any{})

	newState, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, action.KindRequestOpenID, actions[0].Kind)
	assert.True(t, newState.Pending.Contains("openid:r6"))
}

// Scenario 6: capability string round-trip.
func TestCapabilityStringRoundTrip(t *testing.T) {
	in := []string{
		"org.matrix.msc2762.send.event:m.room.message#m.text",
		"org.matrix.msc2762.send.state_event:m.room.member|@u:x",
		"require_client",
		"org.matrix.msc4157.send.delayed_event",
	}
	set := capability.Parse(in)
	assert.True(t, set.RequiresClient)
	assert.True(t, set.SendDelayedEvent)
	assert.False(t, set.UpdateDelayedEvent)
	assert.ElementsMatch(t, set.Serialize(), capability.Parse(set.Serialize()).Serialize())
}

func TestContentLoadedNoopBeforeNegotiated(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("r7", "content_loaded", map[string]any{})
	_, actions := ProcessFromWidget(s, msg)
	assert.Empty(t, actions)
}

func TestContentLoadedRespondsAfterNegotiated(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc2762.send.event:m.room.message"}, OpenIDApproval{})

	msg := widgetMsg("r8", "content_loaded", map[string]any{})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, "capabilities", actions[0].ToWidgetAction)
}

func TestUnknownActionWithRequestIDYieldsUnrecognized(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("r9", "totally_unknown", map[string]any{})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, "M_UNRECOGNIZED", actions[0].ToWidgetData["code"])
}

func TestUnknownActionWithoutRequestIDDroppedSilently(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("", "totally_unknown", map[string]any{})
	_, actions := ProcessFromWidget(s, msg)
	assert.Empty(t, actions)
}

func TestNavigateNeverGated(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("", "navigate", map[string]any{"uri": "https://example.org"})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, action.KindNavigate, actions[0].Kind)
	assert.Equal(t, "https://example.org", actions[0].NavigateURI)
}

func TestBeginNegotiationIsOneShot(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, actions := BeginNegotiation(s, []string{"org.matrix.msc2762.send.event:m.room.message"})
	require.Len(t, actions, 1)
	assert.Equal(t, Negotiating, s.CapabilityState)

	s2, actions2 := BeginNegotiation(s, []string{"org.matrix.msc2762.send.event:m.reaction"})
	assert.Empty(t, actions2)
	assert.Equal(t, s.RequestedCapabilities, s2.RequestedCapabilities)
}

func TestProcessCapabilityApprovalAnswersEarliestNonOpenIDPending(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	require.NoError(t, s.Pending.Insert("req-1", "req-1"))

	s, actions := ProcessCapabilityApproval(s, []string{"org.matrix.msc2762.send.event:m.room.message"}, OpenIDApproval{})
	require.Len(t, actions, 1)
	assert.Equal(t, "req-1", actions[0].RequestID)
	assert.Equal(t, "capabilities", actions[0].ToWidgetAction)
	assert.Equal(t, Negotiated, s.CapabilityState)
}

func TestProcessCapabilityApprovalDeliversOpenIDAllowed(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	require.NoError(t, s.Pending.Insert("openid:r10", "r10"))

	_, actions := ProcessCapabilityApproval(s, nil, OpenIDApproval{
		Kind:        OpenIDAllowed,
		Credentials: OpenIDCredentials{AccessToken: "tok2", ExpiresIn: 60, Homeserver: "example.org", TokenType: "Bearer"},
	})
	require.Len(t, actions, 1)
	assert.Equal(t, "r10", actions[0].RequestID)
	assert.Equal(t, "allowed", actions[0].ToWidgetData["state"])
}

func TestProcessCapabilityApprovalDeliversOpenIDBlocked(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	require.NoError(t, s.Pending.Insert("openid:r11", "r11"))

	_, actions := ProcessCapabilityApproval(s, nil, OpenIDApproval{Kind: OpenIDBlocked})
	require.Len(t, actions, 1)
	assert.Equal(t, "blocked", actions[0].ToWidgetData["state"])
}

func TestReadEventsRequiresCapability(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc2762.read.event:m.reaction"}, OpenIDApproval{})

	msg := widgetMsg("r12", "read_events", map[string]any{"type": "m.reaction"})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, action.KindReadMatrixEvents, actions[0].Kind)

	msg2 := widgetMsg("r13", "read_events", map[string]any{"type": "m.room.message"})
	_, actions2 := ProcessFromWidget(s, msg2)
	require.Len(t, actions2, 1)
	assert.Equal(t, "M_FORBIDDEN", actions2[0].ToWidgetData["code"])
}

func TestSendToDeviceRequiresExactTypeCapability(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc3819.send.to_device:m.call.invite"}, OpenIDApproval{})

	msg := widgetMsg("r14", "send_to_device", map[string]any{
		"type": "m.call.invite", "encrypted": false, "messages": map[string]any{"@u:x": map[string]any{"D1": map[string]any{}}},
	})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, action.KindSendToDeviceMessage, actions[0].Kind)
}

func TestUpdateDelayedEventRequiresFlag(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	msg := widgetMsg("r15", "update_delayed_event", map[string]any{"action": "send", "delay_id": "d1"})
	_, actions := ProcessFromWidget(s, msg)
	require.Len(t, actions, 1)
	assert.Equal(t, "M_FORBIDDEN", actions[0].ToWidgetData["code"])

	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc4157.update.delayed_event"}, OpenIDApproval{})
	_, actions2 := ProcessFromWidget(s, msg)
	require.Len(t, actions2, 1)
	assert.Equal(t, action.KindUpdateDelayedEvent, actions2[0].Kind)
}

// P5: two invocations of ProcessFromWidget on the same (state, message, time)
// yield equal actions.
func TestReducerIsDeterministic(t *testing.T) {
	s := New(capability.Context{}, fixedClock(time.Unix(0, 0)), nil)
	s, _ = ProcessCapabilityApproval(s, []string{"org.matrix.msc2762.send.event:m.room.message"}, OpenIDApproval{})
	msg := widgetMsg("r16", "send_event", map[string]any{"type": "m.room.message", "content": map[string]any{"body": "x"}})

	_, a1 := ProcessFromWidget(s, msg)
	_, a2 := ProcessFromWidget(s, msg)
	assert.Equal(t, a1, a2)
}
