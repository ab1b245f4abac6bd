package capability

import (
	"sort"
	"strings"
)

// Set is a capability set (spec §3.1): the outcome of parsing a widget's
// requested (or a user's approved) capability string list.
type Set struct {
	Read               []Filter
	Send               []Filter
	RequiresClient     bool
	SendDelayedEvent   bool
	UpdateDelayedEvent bool
}

const (
	prefixSendEvent      = "org.matrix.msc2762.send.event:"
	prefixReadEvent      = "org.matrix.msc2762.read.event:"
	prefixSendState      = "org.matrix.msc2762.send.state_event:"
	prefixReadState      = "org.matrix.msc2762.read.state_event:"
	prefixSendToDevice   = "org.matrix.msc3819.send.to_device:"
	prefixReadToDevice   = "org.matrix.msc3819.read.to_device:"
	capRequireClient     = "require_client"
	capRequireClientElem = "io.element.require_client"
	capSendDelayedEvent  = "org.matrix.msc4157.send.delayed_event"
	capUpdateDelayedEvt  = "org.matrix.msc4157.update.delayed_event"
	ioElementPrefix      = "io.element."
)

// Parse turns a capability string list into a Set. Malformed entries are
// silently skipped, per spec §4.1: the widget simply does not gain that
// capability, but Parse itself never fails.
func Parse(caps []string) Set {
	var s Set
	for _, c := range caps {
		parseOne(&s, c)
	}
	return s
}

func parseOne(s *Set, c string) {
	switch {
	case c == capRequireClient || c == capRequireClientElem:
		s.RequiresClient = true
	case c == capSendDelayedEvent:
		s.SendDelayedEvent = true
	case c == capUpdateDelayedEvt:
		s.UpdateDelayedEvent = true
	case strings.HasPrefix(c, prefixSendEvent):
		if f, ok := parseSpec(c[len(prefixSendEvent):], classMessageLike); ok {
			s.Send = append(s.Send, f)
		}
	case strings.HasPrefix(c, prefixReadEvent):
		if f, ok := parseSpec(c[len(prefixReadEvent):], classMessageLike); ok {
			s.Read = append(s.Read, f)
		}
	case strings.HasPrefix(c, prefixSendState):
		if f, ok := parseSpec(c[len(prefixSendState):], classState); ok {
			s.Send = append(s.Send, f)
		}
	case strings.HasPrefix(c, prefixReadState):
		if f, ok := parseSpec(c[len(prefixReadState):], classState); ok {
			s.Read = append(s.Read, f)
		}
	case strings.HasPrefix(c, prefixSendToDevice):
		s.Send = append(s.Send, Filter{Kind: KindToDeviceWithType, EventType: c[len(prefixSendToDevice):]})
	case strings.HasPrefix(c, prefixReadToDevice):
		s.Read = append(s.Read, Filter{Kind: KindToDeviceWithType, EventType: c[len(prefixReadToDevice):]})
	case strings.HasPrefix(c, ioElementPrefix):
		parseIOElement(s, c)
	}
	// Anything else is an unrecognized prefix: skipped per spec.
}

// class distinguishes the message-like vs. state operation families so a
// bare type (no '#' or '|') is turned into the right Filter kind.
type class int

const (
	classMessageLike class = iota
	classState
)

// parseSpec parses the <spec> portion of a capability string (the part after
// the operation prefix), splitting on the first ':' only happens one level
// up — caller has already stripped the known prefix, which itself ends in
// ':'. Spec grammar: "type#msgtype" | "type|stateKey" | "type".
func parseSpec(spec string, cls class) (Filter, bool) {
	if spec == "" {
		return Filter{}, false
	}
	if idx := strings.IndexByte(spec, '#'); idx >= 0 {
		eventType, msgtype := spec[:idx], spec[idx+1:]
		if eventType == "m.room.message" {
			return Filter{Kind: KindRoomMessageWithMsgtype, Msgtype: msgtype}, true
		}
		// msgtype is ignored for any other type per spec §4.1.
		return Filter{Kind: KindMessageLikeWithType, EventType: eventType}, true
	}
	if idx := strings.IndexByte(spec, '|'); idx >= 0 {
		eventType, stateKey := spec[:idx], spec[idx+1:]
		return Filter{Kind: KindStateWithTypeAndStateKey, EventType: eventType, StateKey: stateKey}, true
	}
	switch cls {
	case classState:
		return Filter{Kind: KindStateWithType, EventType: spec}, true
	default:
		return Filter{Kind: KindMessageLikeWithType, EventType: spec}, true
	}
}

// parseIOElement maps io.element.* capabilities with .send./.read. in their
// prefix onto the same event/state families as the msc2762 forms, per
// spec §4.1's "io.element.* with .send./.read. in prefix" rule.
func parseIOElement(s *Set, c string) {
	switch {
	case strings.Contains(c, ".send.state_event:"):
		if idx := strings.IndexByte(c, ':'); idx >= 0 {
			if f, ok := parseSpec(c[idx+1:], classState); ok {
				s.Send = append(s.Send, f)
			}
		}
	case strings.Contains(c, ".read.state_event:"):
		if idx := strings.IndexByte(c, ':'); idx >= 0 {
			if f, ok := parseSpec(c[idx+1:], classState); ok {
				s.Read = append(s.Read, f)
			}
		}
	case strings.Contains(c, ".send."):
		if idx := strings.IndexByte(c, ':'); idx >= 0 {
			if f, ok := parseSpec(c[idx+1:], classMessageLike); ok {
				s.Send = append(s.Send, f)
			}
		}
	case strings.Contains(c, ".read."):
		if idx := strings.IndexByte(c, ':'); idx >= 0 {
			if f, ok := parseSpec(c[idx+1:], classMessageLike); ok {
				s.Read = append(s.Read, f)
			}
		}
	}
}

// Serialize renders s back into its canonical, sorted capability-string form
// (spec §6.4), used for the idempotence property (spec P3).
func (s Set) Serialize() []string {
	out := make([]string, 0, len(s.Send)+len(s.Read)+3)
	for _, f := range s.Send {
		out = append(out, serializeOne(f, true))
	}
	for _, f := range s.Read {
		out = append(out, serializeOne(f, false))
	}
	if s.RequiresClient {
		out = append(out, capRequireClient)
	}
	if s.SendDelayedEvent {
		out = append(out, capSendDelayedEvent)
	}
	if s.UpdateDelayedEvent {
		out = append(out, capUpdateDelayedEvt)
	}
	sort.Strings(out)
	return out
}

func serializeOne(f Filter, send bool) string {
	body := f.Serialize()
	switch f.Kind {
	case KindToDeviceWithType:
		if send {
			return prefixSendToDevice + body
		}
		return prefixReadToDevice + body
	case KindStateWithType, KindStateWithTypeAndStateKey:
		if send {
			return prefixSendState + body
		}
		return prefixReadState + body
	default:
		if send {
			return prefixSendEvent + body
		}
		return prefixReadEvent + body
	}
}

// CanSend reports whether s.Send authorizes an outbound event of the given
// type and (optional) state key, per spec §4.1.
func (s Set) CanSend(eventType string, stateKey *string, ctx Context) bool {
	if stateKey != nil {
		for _, f := range s.Send {
			switch f.Kind {
			case KindStateWithType:
				if f.EventType == eventType {
					return true
				}
			case KindStateWithTypeAndStateKey:
				if f.EventType == eventType && ExpandStateKey(f.StateKey, ctx) == *stateKey {
					return true
				}
			}
		}
		return false
	}
	for _, f := range s.Send {
		switch f.Kind {
		case KindMessageLikeWithType:
			if strings.HasPrefix(eventType, f.EventType) {
				return true
			}
		case KindRoomMessageWithMsgtype:
			if eventType == "m.room.message" {
				return true
			}
		}
	}
	return false
}

// CanReadEvent reports whether s.Read authorizes reading e. A nil e.Type (the
// empty string) is treated as "read all", per spec §9's documented lenience,
// provided s.Read is non-empty — the widget already holds at least one read
// capability to reach this branch.
func (s Set) CanReadEvent(e Event, ctx Context) bool {
	if e.Type == "" {
		return len(s.Read) > 0
	}
	for _, f := range s.Read {
		if f.Matches(e, ctx) {
			return true
		}
	}
	return false
}

// IsSubsetOf reports whether every filter in s also appears in other, by
// filter equality — used to enforce spec invariant §3.5 ("approved_
// capabilities is a subset of requested_capabilities").
func (s Set) IsSubsetOf(other Set) bool {
	return filtersSubset(s.Send, other.Send) && filtersSubset(s.Read, other.Read)
}

func filtersSubset(a, b []Filter) bool {
	for _, fa := range a {
		found := false
		for _, fb := range b {
			if fa.Equal(fb) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
