package jetstream

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	natsclient "github.com/nats-io/nats.go"

	"github.com/matrix-org/widgetdriver/setup/config"
)

var natsServer *natsserver.Server
var natsServerMutex sync.Mutex

// Prepare returns a JetStream context the orchestrator subscribes room
// updates from. If cfg names external NATS addresses, it
// connects to those; otherwise it starts (once, process-wide) an embedded
// NATS server.
func Prepare(cfg *config.JetStream) nats.JetStreamContext {
	if len(cfg.Addresses) != 0 {
		return setupNATS(cfg, nil)
	}
	natsServerMutex.Lock()
	if natsServer == nil {
		var err error
		natsServer, err = natsserver.NewServer(&natsserver.Options{
			ServerName:      "widgetdriver",
			DontListen:      true,
			JetStream:       true,
			StoreDir:        string(cfg.StoragePath),
			NoSystemAccount: true,
		})
		if err != nil {
			panic(err)
		}
		natsServer.SetLoggerV2(NewLogAdapter(), false, false, false)
		go natsServer.Start()
	}
	natsServerMutex.Unlock()
	if !natsServer.ReadyForConnections(time.Second * 10) {
		logrus.Fatalln("NATS did not start in time")
	}
	nc, err := natsclient.Connect("", natsclient.InProcessServer(natsServer))
	if err != nil {
		logrus.Fatalln("Failed to create NATS client")
	}
	return setupNATS(cfg, nc)
}

func setupNATS(cfg *config.JetStream, nc *natsclient.Conn) nats.JetStreamContext {
	if nc == nil {
		var err error
		nc, err = nats.Connect(strings.Join(cfg.Addresses, ","))
		if err != nil {
			logrus.WithError(err).Panic("Unable to connect to NATS")
			return nil
		}
	}

	s, err := nc.JetStream()
	if err != nil {
		logrus.WithError(err).Panic("Unable to get JetStream context")
		return nil
	}

	for _, stream := range streams { // streams are defined in streams.go
		name := cfg.TopicFor(stream.Name)
		info, err := s.StreamInfo(name)
		if err != nil && err != natsclient.ErrStreamNotFound {
			logrus.WithError(err).Fatal("Unable to get stream info")
		}
		if info == nil {
			stream.Subjects = []string{stream.Name, stream.Name + ".>"}
			if cfg.InMemory {
				stream.Storage = nats.MemoryStorage
			}
			if _, err = s.AddStream(stream); err != nil {
				logrus.WithError(err).WithField("stream", name).Fatal("Unable to add stream")
			}
		}
	}

	return s
}
