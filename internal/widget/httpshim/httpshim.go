// Package httpshim bridges the orchestrator's synchronous CapabilityUI
// call to an actually-asynchronous, browser-side approval prompt (spec §1:
// "the capability UI asynchronously prompts the user for approval"). A
// widget's RequestCapabilities call blocks on a future that the capability
// UI resolves later by POSTing its decision back to this HTTP surface,
// grounded on the teacher's util.MakeJSONAPI handler-wrapping convention.
package httpshim

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/matrix-org/widgetdriver/clientapi/jsonerror"
	"github.com/matrix-org/widgetdriver/internal/widget/statemachine"
)

// pendingApproval is a single widget's outstanding capability prompt,
// resolved exactly once by an incoming decision POST.
type pendingApproval struct {
	requested []string
	result    chan decision
}

type decision struct {
	approved []string
	openid   statemachine.OpenIDApproval
}

// decisionBody is the wire shape a capability UI POSTs back.
type decisionBody struct {
	Capabilities []string `json:"capabilities"`
	OpenID       *struct {
		State       string `json:"state"`
		AccessToken string `json:"access_token,omitempty"`
		ExpiresIn   int64  `json:"expires_in,omitempty"`
		Homeserver  string `json:"matrix_server_name,omitempty"`
		TokenType   string `json:"token_type,omitempty"`
	} `json:"openid,omitempty"`
}

// Shim implements orchestrator.CapabilityUI over HTTP: RequestCapabilities
// parks a future keyed by widget ID, and the mux routes registered by
// Router let an external capability UI list pending prompts and resolve
// them.
type Shim struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
}

// New constructs an empty Shim.
func New() *Shim {
	return &Shim{pending: make(map[string]*pendingApproval)}
}

// RequestCapabilities implements orchestrator.CapabilityUI. It blocks until
// a decision POST resolves widgetID's prompt or ctx is cancelled, in which
// case every requested capability is treated as denied.
func (s *Shim) RequestCapabilities(ctx context.Context, widgetID string, requested []string) ([]string, statemachine.OpenIDApproval, error) {
	p := &pendingApproval{requested: requested, result: make(chan decision, 1)}

	s.mu.Lock()
	s.pending[widgetID] = p
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, widgetID)
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, statemachine.OpenIDApproval{}, ctx.Err()
	case d := <-p.result:
		return d.approved, d.openid, nil
	}
}

// Router registers the capability-UI callback routes on r.
func (s *Shim) Router(r *mux.Router) {
	r.HandleFunc("/widgets/{widgetId}/capabilities/pending", util.MakeJSONAPI(util.NewJSONRequestHandler(s.listPending))).Methods(http.MethodGet)
	r.HandleFunc("/widgets/{widgetId}/capabilities/decision", util.MakeJSONAPI(util.NewJSONRequestHandler(s.postDecision))).Methods(http.MethodPost)
}

func (s *Shim) listPending(req *http.Request) util.JSONResponse {
	widgetID := mux.Vars(req)["widgetId"]

	s.mu.Lock()
	p, ok := s.pending[widgetID]
	s.mu.Unlock()

	if !ok {
		return util.JSONResponse{Code: http.StatusNotFound, JSON: jsonerror.NotFound("no pending capability request for this widget")}
	}
	return util.JSONResponse{Code: http.StatusOK, JSON: struct {
		Capabilities []string `json:"capabilities"`
	}{p.requested}}
}

func (s *Shim) postDecision(req *http.Request) util.JSONResponse {
	widgetID := mux.Vars(req)["widgetId"]

	var body decisionBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return util.JSONResponse{Code: http.StatusBadRequest, JSON: jsonerror.InvalidRequest("malformed capability decision body")}
	}

	s.mu.Lock()
	p, ok := s.pending[widgetID]
	s.mu.Unlock()
	if !ok {
		return util.JSONResponse{Code: http.StatusNotFound, JSON: jsonerror.NotFound("no pending capability request for this widget")}
	}

	d := decision{approved: body.Capabilities}
	if body.OpenID != nil {
		switch body.OpenID.State {
		case "allowed":
			d.openid = statemachine.OpenIDApproval{
				Kind: statemachine.OpenIDAllowed,
				Credentials: statemachine.OpenIDCredentials{
					AccessToken: body.OpenID.AccessToken,
					ExpiresIn:   body.OpenID.ExpiresIn,
					Homeserver:  body.OpenID.Homeserver,
					TokenType:   body.OpenID.TokenType,
				},
			}
		case "blocked":
			d.openid = statemachine.OpenIDApproval{Kind: statemachine.OpenIDBlocked}
		case "request":
			d.openid = statemachine.OpenIDApproval{Kind: statemachine.OpenIDRequestPending}
		}
	}

	select {
	case p.result <- d:
	default:
		return util.JSONResponse{Code: http.StatusConflict, JSON: jsonerror.InvalidState("capability decision already submitted")}
	}
	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}
