// Package roomsource adapts a JetStream subscription on a single room's
// event subject into an orchestrator.EventSource, grounded on the teacher's
// JetStreamConsumer pull-subscription helper.
package roomsource

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/matrix-org/widgetdriver/internal/widget/message"
	"github.com/matrix-org/widgetdriver/setup/jetstream"
)

// Source delivers the room events published to a single room's subject as
// message.MatrixEvent values, satisfying orchestrator.EventSource.
type Source struct {
	ch chan message.MatrixEvent
}

// Subscribe starts a durable pull consumer on roomID's subject and returns a
// Source that delivers decoded events until ctx is cancelled. durable
// distinguishes this widget connection's consumer from any other consumer
// on the same room subject.
func Subscribe(ctx context.Context, js nats.JetStreamContext, roomID, durable string) (*Source, error) {
	s := &Source{ch: make(chan message.MatrixEvent, 32)}

	err := jetstream.JetStreamConsumer(
		ctx, js, jetstream.WidgetRoomEventSubj(roomID), durable, 1,
		func(ctx context.Context, msgs []*nats.Msg) bool {
			for _, m := range msgs {
				var ev message.MatrixEvent
				if err := json.Unmarshal(m.Data, &ev); err != nil {
					logrus.WithError(err).Warn("dropping malformed room event from jetstream")
					continue
				}
				select {
				case s.ch <- ev:
				case <-ctx.Done():
					return true
				default:
					logrus.WithField("room_id", roomID).Warn("room event source backpressured, dropping event")
				}
			}
			return true
		},
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Events implements orchestrator.EventSource.
func (s *Source) Events() <-chan message.MatrixEvent { return s.ch }
