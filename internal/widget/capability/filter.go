// Package capability implements the Widget API capability model: parsing of
// capability strings into typed event filters, and matching of events and
// outbound requests against an approved set.
//
// See MSC2762, MSC2871, MSC3819 and MSC4157 for the wire grammar this parses.
package capability

// Filter is a closed sum type over the five event-filter variants the widget
// capability grammar can express. Its single Matches method switches on
// Kind rather than type-asserting.
type Filter struct {
	Kind Kind

	// EventType is the type prefix (MessageLikeWithType), the exact state
	// event type (StateWithType, StateWithTypeAndStateKey), the to-device
	// type (ToDeviceWithType) or the empty string (RoomMessageWithMsgtype,
	// which is always "m.room.message").
	EventType string

	// Msgtype is set only for RoomMessageWithMsgtype.
	Msgtype string

	// StateKey is set only for StateWithTypeAndStateKey; it may still
	// contain the {userId}/{deviceId} template placeholders until expanded
	// by ExpandStateKey.
	StateKey string
}

// Kind discriminates the five Filter variants of spec §3.2.
type Kind int

const (
	// KindMessageLikeWithType matches any message-like event (no state key)
	// whose type has EventType as a prefix.
	KindMessageLikeWithType Kind = iota
	// KindRoomMessageWithMsgtype matches "m.room.message" events (no state
	// key) whose content.msgtype equals Msgtype.
	KindRoomMessageWithMsgtype
	// KindStateWithType matches any state event whose type equals EventType
	// exactly, regardless of state key.
	KindStateWithType
	// KindStateWithTypeAndStateKey matches a state event whose type equals
	// EventType and whose state key equals StateKey after context expansion.
	KindStateWithTypeAndStateKey
	// KindToDeviceWithType matches a to-device envelope whose type equals
	// EventType exactly.
	KindToDeviceWithType
)

// Context carries the values substituted into a StateKey template pattern.
type Context struct {
	UserID   string
	DeviceID string
}

// ExpandStateKey substitutes {userId} and {deviceId} in pattern with the
// values in ctx.
func ExpandStateKey(pattern string, ctx Context) string {
	return expandPlaceholders(pattern, ctx)
}

func expandPlaceholders(pattern string, ctx Context) string {
	out := make([]byte, 0, len(pattern))
	for i := 0; i < len(pattern); {
		if rest := pattern[i:]; hasPrefix(rest, "{userId}") {
			out = append(out, ctx.UserID...)
			i += len("{userId}")
			continue
		} else if hasPrefix(rest, "{deviceId}") {
			out = append(out, ctx.DeviceID...)
			i += len("{deviceId}")
			continue
		}
		out = append(out, pattern[i])
		i++
	}
	return string(out)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Event is the minimal shape of a Matrix event/to-device message the
// capability model needs to decide a match. The orchestrator's richer
// MatrixEvent type (grounded on gomatrixserverlib) is projected down to this
// before being handed to CanReadEvent/the FilterEngine.
type Event struct {
	Type     string
	StateKey *string // nil for message-like events
	Msgtype  string  // content.msgtype, only meaningful for m.room.message
}

// IsStateEvent reports whether the event carries a state key.
func (e Event) IsStateEvent() bool {
	return e.StateKey != nil
}

// Matches reports whether f matches e, given the substitution context used to
// expand any {userId}/{deviceId} template in f.StateKey.
func (f Filter) Matches(e Event, ctx Context) bool {
	switch f.Kind {
	case KindMessageLikeWithType:
		return !e.IsStateEvent() && hasPrefix(e.Type, f.EventType)
	case KindRoomMessageWithMsgtype:
		return !e.IsStateEvent() && e.Type == "m.room.message" && e.Msgtype == f.Msgtype
	case KindStateWithType:
		return e.IsStateEvent() && e.Type == f.EventType
	case KindStateWithTypeAndStateKey:
		if !e.IsStateEvent() || e.Type != f.EventType {
			return false
		}
		return *e.StateKey == ExpandStateKey(f.StateKey, ctx)
	case KindToDeviceWithType:
		return e.Type == f.EventType
	default:
		return false
	}
}

// Equal reports whether f and g describe the same filter, used to check that
// approved capabilities are a subset of requested ones (spec §3.5).
func (f Filter) Equal(g Filter) bool {
	return f.Kind == g.Kind && f.EventType == g.EventType && f.Msgtype == g.Msgtype && f.StateKey == g.StateKey
}

// Serialize renders f back into its canonical capability-string spec form
// (the part after the org.matrix.msc2762.{send,read}.{event,state_event}:
// prefix — see Set.Serialize for the full string).
func (f Filter) Serialize() string {
	switch f.Kind {
	case KindMessageLikeWithType, KindStateWithType, KindToDeviceWithType:
		return f.EventType
	case KindRoomMessageWithMsgtype:
		return "m.room.message#" + f.Msgtype
	case KindStateWithTypeAndStateKey:
		return f.EventType + "|" + f.StateKey
	default:
		return ""
	}
}
