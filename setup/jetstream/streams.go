package jetstream

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	RoomID    = "room_id"
	WidgetID  = "widget_id"
	RequestID = "request_id"
)

var (
	// WidgetRoomEvent carries room/state events the Matrix client delivers
	// via sync, scoped per room, for the orchestrator's room subscription
	// (spec §4.5: "subscribes to transport and sync").
	WidgetRoomEvent = "WidgetRoomEvent"

	// WidgetOutboundAction carries actions the orchestrator has executed
	// and whose result must be relayed back to a widget, used when the
	// orchestrator and the component issuing Matrix client calls run in
	// separate processes.
	WidgetOutboundAction = "WidgetOutboundAction"
)

var safeCharacters = regexp.MustCompile("[^A-Za-z0-9$]+")

func Tokenise(str string) string {
	return safeCharacters.ReplaceAllString(str, "_")
}

func WidgetRoomEventSubj(roomID string) string {
	return fmt.Sprintf("%s.%s", WidgetRoomEvent, Tokenise(roomID))
}

func WidgetOutboundActionSubj(widgetID string) string {
	return fmt.Sprintf("%s.%s", WidgetOutboundAction, Tokenise(widgetID))
}

var streams = []*nats.StreamConfig{
	{
		Name:      WidgetRoomEvent,
		Retention: nats.InterestPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    time.Hour * 24,
	},
	{
		Name:      WidgetOutboundAction,
		Retention: nats.InterestPolicy,
		Storage:   nats.MemoryStorage,
		MaxAge:    time.Minute * 5,
	},
}
