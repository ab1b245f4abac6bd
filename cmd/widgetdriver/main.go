package main

import (
	"flag"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/matrix-org/widgetdriver/clientapi/jsonerror"
	"github.com/matrix-org/widgetdriver/internal/widget/capability"
	"github.com/matrix-org/widgetdriver/internal/widget/httpshim"
	"github.com/matrix-org/widgetdriver/internal/widget/matrixclient"
	"github.com/matrix-org/widgetdriver/internal/widget/openidcache"
	"github.com/matrix-org/widgetdriver/internal/widget/orchestrator"
	"github.com/matrix-org/widgetdriver/internal/widget/pending"
	"github.com/matrix-org/widgetdriver/internal/widget/roomsource"
	"github.com/matrix-org/widgetdriver/internal/widget/statemachine"
	"github.com/matrix-org/widgetdriver/internal/widget/urltemplate"
	"github.com/matrix-org/widgetdriver/setup/config"
	"github.com/matrix-org/widgetdriver/setup/jetstream"
	"github.com/matrix-org/widgetdriver/setup/process"
	"github.com/matrix-org/widgetdriver/transport/wswidget"
)

var (
	configPath   = flag.String("config", "widgetdriver.yaml", "The path to the widget driver's config file.")
	httpBindAddr = flag.String("http-bind-address", ":8080", "The HTTP listening address for widget connections and the capability UI API.")
)

var upgrader = websocket.Upgrader{
	// The widget transport is negotiated out of band (the widget's embedding
	// client supplies the connection); the origin check belongs to whatever
	// fronts this service, not the driver itself.
	CheckOrigin: func(*http.Request) bool { return true },
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	configErrs := &config.ConfigErrors{}
	cfg.Verify(configErrs)
	if len(*configErrs) > 0 {
		for _, e := range *configErrs {
			logrus.Errorf("configuration error: %s", e)
		}
		logrus.Fatal("failed to start due to configuration errors")
	}
	if len(cfg.Widgets.SupportedAPIVersions) > 0 {
		statemachine.SupportedAPIVersions = cfg.Widgets.SupportedAPIVersions
	}

	processCtx := process.NewProcessContext()
	js := jetstream.Prepare(&cfg.Global.JetStream)
	shim := httpshim.New()
	openIDCache := openidcache.New()

	upCounter := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "widgetdriver",
		Name:      "up",
		Help:      "A gauge that is always 1, used to discover whether the widget driver is reachable.",
	})
	upCounter.Set(1)
	prometheus.MustRegister(upCounter)

	router := mux.NewRouter()
	shim.Router(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/widgets/{widgetId}/stream", streamHandler(processCtx, js, shim, openIDCache, &cfg.Widgets)).Methods(http.MethodGet)
	router.HandleFunc("/widgets/{widgetId}/url", util.MakeJSONAPI(util.NewJSONRequestHandler(widgetURLHandler))).Methods(http.MethodGet)

	logrus.Infof("widget driver listening on %s", *httpBindAddr)
	srv := &http.Server{Addr: *httpBindAddr, Handler: router}
	processCtx.ComponentStarted()
	go func() {
		defer processCtx.ComponentFinished()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("widget driver HTTP server failed")
			processCtx.Shutdown()
		}
	}()

	<-processCtx.WaitForShutdown()
	_ = srv.Close()
	processCtx.WaitForComponentsToFinish()
}

// streamHandler upgrades a widget's connection to a websocket transport and
// drives it via an Orchestrator until the connection closes. Its query
// parameters identify the widget instance, room and user the connection is
// scoped to, along with the already-issued Matrix access token the client
// calls ride on; the host embedding the widget supplies these after its own
// authentication of the widget's user (spec §1: the driver never performs
// authentication itself).
func streamHandler(proc *process.ProcessContext, js nats.JetStreamContext, shim *httpshim.Shim, openIDCache *openidcache.Cache, widgets *config.Widgets) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		widgetID := mux.Vars(r)["widgetId"]
		q := r.URL.Query()
		roomID := q.Get("room_id")
		userID := q.Get("user_id")
		deviceID := q.Get("device_id")
		accessToken := q.Get("access_token")
		homeserverBaseURL := q.Get("homeserver_base_url")
		homeserverName := q.Get("homeserver_server_name")
		requested := q["requested_capabilities"]

		if roomID == "" || userID == "" || accessToken == "" || homeserverBaseURL == "" {
			http.Error(w, "missing room_id, user_id, access_token or homeserver_base_url", http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithField("widget_id", widgetID).WithError(err).Warn("failed to upgrade widget websocket")
			return
		}
		conn := wswidget.Wrap(ws, widgetID)

		events, err := roomsource.Subscribe(proc.Context(), js, roomID, jetstream.Tokenise(widgetID))
		if err != nil {
			logrus.WithField("widget_id", widgetID).WithError(err).Error("failed to subscribe to room events")
			_ = conn.Close()
			return
		}

		client := matrixclient.New(http.DefaultClient, homeserverBaseURL, spec.ServerName(homeserverName), accessToken, roomID, userID)

		state := statemachine.New(
			capability.Context{UserID: userID, DeviceID: deviceID},
			nil,
			pending.New(
				pending.WithMaxPending(widgets.PendingRequests.MaxPending),
				pending.WithTimeout(widgets.PendingRequests.Timeout),
			),
		)

		o := orchestrator.New(proc, widgetID, conn, client, shim, events, openIDCache, state)
		go o.Run(requested)
	}
}

// widgetURLHandler expands a widget's registered URL template against the
// room/user context supplied by the host (spec §6.5). This is the host's
// responsibility to call once, before it embeds the widget's iframe; the
// driver only owns the substitution logic, not the widget registry itself.
func widgetURLHandler(req *http.Request) util.JSONResponse {
	widgetID := mux.Vars(req)["widgetId"]
	q := req.URL.Query()
	tmpl := q.Get("template")
	if tmpl == "" {
		return util.JSONResponse{Code: http.StatusBadRequest, JSON: jsonerror.InvalidRequest("missing template")}
	}

	tmplCtx := urltemplate.Context{
		UserID:           q.Get("user_id"),
		RoomID:           q.Get("room_id"),
		WidgetID:         widgetID,
		AvatarURL:        q.Get("avatar_url"),
		DisplayName:      q.Get("display_name"),
		ClientLanguage:   q.Get("client_language"),
		ClientTheme:      q.Get("client_theme"),
		ClientID:         q.Get("client_id"),
		DeviceID:         q.Get("device_id"),
		MatrixBaseURL:    q.Get("homeserver_base_url"),
		ElementFontScale: q.Get("font_scale"),
		ElementFont:      q.Get("font"),
	}

	if q.Get("element_call") != "true" {
		return util.JSONResponse{Code: http.StatusOK, JSON: struct {
			URL string `json:"url"`
		}{urltemplate.Expand(tmpl, tmplCtx)}}
	}

	url, err := urltemplate.ElementCallURL(tmpl, tmplCtx, q.Get("parent_url"))
	if err != nil {
		return util.JSONResponse{Code: http.StatusBadRequest, JSON: jsonerror.InvalidRequest("malformed widget URL template")}
	}
	return util.JSONResponse{Code: http.StatusOK, JSON: struct {
		URL string `json:"url"`
	}{url}}
}
