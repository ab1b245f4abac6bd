// Package matrixclient implements orchestrator.MatrixClient as a thin
// Client-Server API HTTP client (no CS API SDK appears anywhere in the
// example pack; gomatrixserverlib only models federation, so this follows
// the teacher's own net/http + encoding/json calling convention instead, as
// used throughout clientapi/routing for outbound homeserver calls).
package matrixclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/matrix-org/widgetdriver/clientapi/openid"
	"github.com/matrix-org/widgetdriver/internal/transactions"
	"github.com/matrix-org/widgetdriver/internal/widget/action"
	"github.com/matrix-org/widgetdriver/internal/widget/message"
	"github.com/matrix-org/widgetdriver/internal/widget/statemachine"
)

// Client issues Client-Server API calls against a single homeserver on
// behalf of a single widget's room and user.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	serverName  spec.ServerName
	roomID      string
	userID      string
	txns        *transactions.Cache
}

// New constructs a Client scoped to a single room/user, with requests
// authenticated by accessToken (spec §1: the driver acts with the user's
// own Matrix session, never the widget's).
func New(httpClient *http.Client, baseURL string, serverName spec.ServerName, accessToken, roomID, userID string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		accessToken: accessToken,
		serverName:  serverName,
		roomID:      roomID,
		userID:      userID,
		txns:        transactions.New(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s returned %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// SendEvent implements orchestrator.MatrixClient. Non-state events are sent
// via the CS API's transaction-ID-scoped send endpoint, keyed by the
// widget's requestId, so a duplicate execution of the same SendMatrixEvent
// action (e.g. after an orchestrator restart) replays the cached response
// from txns instead of sending the room event twice.
func (c *Client) SendEvent(ctx context.Context, a action.Action) (string, string, error) {
	if a.StateKey != nil {
		path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s", url.PathEscape(c.roomID), url.PathEscape(a.EventType), url.PathEscape(*a.StateKey))
		var out struct {
			EventID string `json:"event_id"`
		}
		if err := c.do(ctx, http.MethodPut, path, nil, a.Content, &out); err != nil {
			return "", "", err
		}
		return out.EventID, c.roomID, nil
	}

	txnID := a.RequestID
	if txnID == "" {
		txnID = generateTxnID()
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s", url.PathEscape(c.roomID), url.PathEscape(a.EventType), url.PathEscape(txnID))
	cacheURL := &url.URL{Path: path}

	if cached, ok := c.txns.FetchTransaction(c.accessToken, txnID, cacheURL); ok {
		var out struct {
			EventID string `json:"event_id"`
		}
		if raw, err := json.Marshal(cached.JSON); err == nil {
			_ = json.Unmarshal(raw, &out)
		}
		return out.EventID, c.roomID, nil
	}

	var out struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, path, nil, a.Content, &out); err != nil {
		return "", "", err
	}
	c.txns.AddTransaction(c.accessToken, txnID, cacheURL, &util.JSONResponse{Code: http.StatusOK, JSON: out})
	return out.EventID, c.roomID, nil
}

// ReadEvents implements orchestrator.MatrixClient by reading the room's
// current state and filtering client-side to the requested type/state key,
// since the CS API has no endpoint for a single-type state slice beyond
// the full /state listing.
func (c *Client) ReadEvents(ctx context.Context, a action.Action) ([]message.MatrixEvent, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/state", url.PathEscape(c.roomID))
	var all []message.MatrixEvent
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &all); err != nil {
		return nil, err
	}

	matched := make([]message.MatrixEvent, 0, len(all))
	for _, ev := range all {
		if ev.Type != a.ReadType {
			continue
		}
		if a.ReadStateKey != nil && (ev.StateKey == nil || *ev.StateKey != *a.ReadStateKey) {
			continue
		}
		matched = append(matched, ev)
		if a.ReadLimit > 0 && len(matched) >= a.ReadLimit {
			break
		}
	}
	return matched, nil
}

// SendToDevice implements orchestrator.MatrixClient (MSC3819).
func (c *Client) SendToDevice(ctx context.Context, a action.Action) error {
	txnID := a.RequestID
	if txnID == "" {
		txnID = generateTxnID()
	}
	path := fmt.Sprintf("/_matrix/client/v3/sendToDevice/%s/%s", url.PathEscape(a.ToDeviceType), url.PathEscape(txnID))
	return c.do(ctx, http.MethodPut, path, nil, map[string]any{"messages": a.ToDeviceMessages}, nil)
}

// UpdateDelayedEvent implements orchestrator.MatrixClient (MSC4157).
func (c *Client) UpdateDelayedEvent(ctx context.Context, a action.Action) error {
	path := fmt.Sprintf("/_matrix/client/unstable/org.matrix.msc4140/delayed_events/%s", url.PathEscape(a.DelayID))
	return c.do(ctx, http.MethodPost, path, nil, map[string]any{"action": a.DelayedEventAction}, nil)
}

// RequestOpenID implements orchestrator.MatrixClient (spec §4.4.1's
// get_openid, §6.3).
func (c *Client) RequestOpenID(ctx context.Context, a action.Action) (statemachine.OpenIDCredentials, error) {
	path := fmt.Sprintf("/_matrix/client/v3/user/%s/openid/request_token", url.PathEscape(c.userID))
	var tok openid.Token
	if err := c.do(ctx, http.MethodPost, path, nil, struct{}{}, &tok); err != nil {
		return statemachine.OpenIDCredentials{}, err
	}
	return statemachine.OpenIDCredentials{
		AccessToken: tok.AccessToken,
		ExpiresIn:   tok.ExpiresIn,
		Homeserver:  tok.MatrixServerName,
		TokenType:   tok.TokenType,
	}, nil
}

// Navigate implements orchestrator.MatrixClient. The CS API has no
// server-side notion of client navigation; this is satisfied entirely by
// the host application, so the client has nothing to call and never fails.
func (c *Client) Navigate(ctx context.Context, a action.Action) error {
	return nil
}

// generateTxnID mints a fallback transaction ID for calls whose action
// carries no requestId (notifications the widget sent without expecting a
// reply still need a stable CS API transaction ID).
func generateTxnID() string {
	return "widgetdriver-" + uuid.NewString()
}
