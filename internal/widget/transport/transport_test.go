package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeSendRecordsFrame(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Send(context.Background(), []byte(`{"a":1}`)))
	require.Len(t, f.Sent, 1)
	assert.Equal(t, `{"a":1}`, string(f.Sent[0]))
}

func TestFakeSendAfterCloseFails(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Close())
	err := f.Send(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

func TestFakeInboundDeliversPushedFrames(t *testing.T) {
	f := NewFake()
	f.Incoming <- []byte(`{"action":"navigate"}`)
	frame := <-f.Inbound()
	assert.Equal(t, `{"action":"navigate"}`, string(frame))
}
