package matrixclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-org/widgetdriver/internal/widget/action"
	"github.com/matrix-org/widgetdriver/internal/widget/message"
)

func TestSendEventPutsToTransactionScopedEndpoint(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/_matrix/client/v3/rooms/!room:example.org/send/m.room.message/req1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "$abc"})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "example.org", "tok", "!room:example.org", "@alice:example.org")
	eventID, roomID, err := c.SendEvent(context.Background(), action.SendMatrixEvent("req1", "m.room.message", map[string]any{"body": "hi"}, nil))
	require.NoError(t, err)
	assert.Equal(t, "$abc", eventID)
	assert.Equal(t, "!room:example.org", roomID)
	assert.Equal(t, 1, calls)
}

func TestSendEventReplaysCachedResponseForRepeatedRequestID(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "$once"})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "example.org", "tok", "!room:example.org", "@alice:example.org")
	a := action.SendMatrixEvent("req-dedup", "m.room.message", map[string]any{"body": "hi"}, nil)

	eventID1, _, err := c.SendEvent(context.Background(), a)
	require.NoError(t, err)
	eventID2, _, err := c.SendEvent(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, eventID1, eventID2)
	assert.Equal(t, 1, calls)
}

func TestSendEventPutsStateWithStateKey(t *testing.T) {
	stateKey := ""
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]string{"event_id": "$def"})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "example.org", "tok", "!room:example.org", "@alice:example.org")
	eventID, _, err := c.SendEvent(context.Background(), action.SendMatrixEvent("req2", "m.room.topic", map[string]any{"topic": "hi"}, &stateKey))
	require.NoError(t, err)
	assert.Equal(t, "$def", eventID)
}

func TestSendEventPropagatesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "example.org", "tok", "!room:example.org", "@alice:example.org")
	_, _, err := c.SendEvent(context.Background(), action.SendMatrixEvent("req3", "m.room.message", map[string]any{}, nil))
	assert.Error(t, err)
}

func TestRequestOpenIDDecodesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_matrix/client/v3/user/@alice:example.org/openid/request_token", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "opentok",
			"token_type":         "Bearer",
			"expires_in":         3600,
			"matrix_server_name": "example.org",
		})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "example.org", "tok", "!room:example.org", "@alice:example.org")
	creds, err := c.RequestOpenID(context.Background(), action.RequestOpenID("req4"))
	require.NoError(t, err)
	assert.Equal(t, "opentok", creds.AccessToken)
	assert.Equal(t, int64(3600), creds.ExpiresIn)
}

func TestReadEventsFiltersByTypeAndStateKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_matrix/client/v3/rooms/!room:example.org/state", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]message.MatrixEvent{
			{Type: "m.room.topic", Sender: "@alice:example.org", Content: json.RawMessage(`{"topic":"old"}`)},
			{Type: "io.element.widget", Sender: "@bob:example.org", Content: json.RawMessage(`{"v":1}`)},
			{Type: "io.element.widget", Sender: "@carol:example.org", Content: json.RawMessage(`{"v":2}`)},
		})
	}))
	defer srv.Close()

	c := New(srv.Client(), srv.URL, "example.org", "tok", "!room:example.org", "@alice:example.org")
	events, err := c.ReadEvents(context.Background(), action.ReadMatrixEvents("req6", "io.element.widget", nil, 0))
	require.NoError(t, err)

	want := []message.MatrixEvent{
		{Type: "io.element.widget", Sender: "@bob:example.org", Content: json.RawMessage(`{"v":1}`)},
		{Type: "io.element.widget", Sender: "@carol:example.org", Content: json.RawMessage(`{"v":2}`)},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("ReadEvents() mismatch (-want +got):\n%s", diff)
	}
}

func TestNavigateNeverFails(t *testing.T) {
	c := New(nil, "http://example.invalid", "example.org", "tok", "!room:example.org", "@alice:example.org")
	assert.NoError(t, c.Navigate(context.Background(), action.Navigate("req5", "https://example.org")))
}
