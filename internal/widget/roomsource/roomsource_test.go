package roomsource

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matrix-org/widgetdriver/internal/widget/message"
	"github.com/matrix-org/widgetdriver/setup/config"
	"github.com/matrix-org/widgetdriver/setup/jetstream"
)

func TestSubscribeDeliversPublishedEvent(t *testing.T) {
	cfg := &config.JetStream{InMemory: true, TopicPrefix: "RoomSourceTest_"}
	cfg.StoragePath = config.Path(t.TempDir())
	js := jetstream.Prepare(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	src, err := Subscribe(ctx, js, "!room:example.org", "RoomSourceTestConsumer")
	require.NoError(t, err)

	ev := message.MatrixEvent{Type: "m.room.message", Sender: "@alice:example.org", EventID: "$1"}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	_, err = js.Publish(jetstream.WidgetRoomEventSubj("!room:example.org"), payload)
	require.NoError(t, err)

	select {
	case got := <-src.Events():
		require.Equal(t, ev.Type, got.Type)
		require.Equal(t, ev.Sender, got.Sender)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for published room event")
	}
}
