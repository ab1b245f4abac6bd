// Package filter compiles a capability.Set's filters into lookup structures
// that decide, in roughly constant time, whether an event may cross the
// widget boundary — and enforces the crypto-event denylist that bypasses
// every user-granted permission (spec §4.2).
package filter

import (
	"strings"

	"github.com/matrix-org/widgetdriver/internal/widget/capability"
)

// Engine is a compiled FilterEngine: a prefix scan covering every
// message-like filter (capability.Filter.Matches treats KindMessageLikeWithType
// as a semantic prefix match unconditionally, so the engine unifies it with
// the syntactic "ends in *" form at compile time rather than branching on it
// per event), type-indexed second-pass tables, and a fallback list for
// filters that need full per-event evaluation (state-key templates).
type Engine struct {
	prefixTypes  []string
	messageIndex map[string][]capability.Filter
	stateIndex   map[string][]capability.Filter
	complex      []capability.Filter
}

// Compile builds an Engine from filters (typically a capability.Set's Read or
// Send list).
func Compile(filters []capability.Filter) *Engine {
	e := &Engine{
		messageIndex: make(map[string][]capability.Filter),
		stateIndex:   make(map[string][]capability.Filter),
	}
	for _, f := range filters {
		switch f.Kind {
		case capability.KindStateWithTypeAndStateKey:
			e.complex = append(e.complex, f)
		case capability.KindStateWithType:
			e.stateIndex[f.EventType] = append(e.stateIndex[f.EventType], f)
		case capability.KindMessageLikeWithType:
			e.prefixTypes = append(e.prefixTypes, strings.TrimSuffix(f.EventType, "*"))
		case capability.KindRoomMessageWithMsgtype, capability.KindToDeviceWithType:
			e.messageIndex[f.EventType] = append(e.messageIndex[f.EventType], f)
			e.complex = append(e.complex, f)
		}
	}
	return e
}

// Match reports whether e is matched by any filter compiled into the engine,
// under substitution context ctx. The crypto denylist is NOT checked here —
// callers that forward events to the widget must call IsCryptoEvent first
// and reject unconditionally (spec §4.2: "this check happens even if a
// user-approved filter matches").
func (e *Engine) Match(ev capability.Event, ctx capability.Context) bool {
	if !ev.IsStateEvent() {
		for _, prefix := range e.prefixTypes {
			if strings.HasPrefix(ev.Type, prefix) {
				return true
			}
		}
	}
	index := e.messageIndex
	if ev.IsStateEvent() {
		index = e.stateIndex
	}
	for _, f := range index[ev.Type] {
		if f.Matches(ev, ctx) {
			return true
		}
	}
	for _, f := range e.complex {
		if f.Matches(ev, ctx) {
			return true
		}
	}
	return false
}

// cryptoExact lists the crypto event types the denylist rejects outright.
var cryptoExact = map[string]struct{}{
	"m.room_key":           {},
	"m.room_key_request":   {},
	"m.forwarded_room_key": {},
	"m.room.encrypted":     {},
}

// cryptoPrefixes lists the prefixes the denylist rejects.
var cryptoPrefixes = []string{
	"m.secret.",
	"m.room_key.",
	"m.room_key_request.",
	"m.forwarded_room_key.",
}

// IsCryptoEvent reports whether eventType falls under the hard-coded crypto
// denylist (spec §4.2, GLOSSARY "Crypto event"). This check must run before,
// and independently of, any user-approved filter: crypto events are never
// forwarded, never a valid send_event target, and never a valid
// send_to_device payload type, regardless of capability state.
func IsCryptoEvent(eventType string) bool {
	if _, ok := cryptoExact[eventType]; ok {
		return true
	}
	for _, p := range cryptoPrefixes {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}
