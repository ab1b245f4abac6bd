// Package transport defines the widget driver's Transport contract (spec
// §6.1): a bidirectional stream of UTF-8 JSON strings whose framing and
// delivery are the transport's own problem.
package transport

import "context"

// Transport is implemented by whatever carries postMessage frames between
// the driver and the widget (transport/wswidget, or an in-process fake for
// tests). It must accept Send during all lifecycles prior to Close, and it
// must surface faults on its inbound stream without terminating unless the
// fault is truly fatal (spec §6.1).
type Transport interface {
	// Send delivers a single framed JSON message to the widget.
	Send(ctx context.Context, frame []byte) error

	// Inbound returns the channel of frames received from the widget. It is
	// closed when the transport disposes.
	Inbound() <-chan []byte

	// Errors returns the channel of non-fatal faults observed on the
	// inbound stream (spec §6.1: "surface errors... without terminating
	// unless truly fatal").
	Errors() <-chan error

	// Close disposes the transport. Send after Close returns an error.
	Close() error
}

// Fake is an in-memory Transport double for tests: Send appends to Sent and
// pushes a copy to SentCh, and pushing to Incoming or Faults delivers to
// Inbound/Errors.
type Fake struct {
	Sent     [][]byte
	SentCh   chan []byte
	Incoming chan []byte
	Faults   chan error
	closed   bool
}

// NewFake constructs a ready-to-use Fake with buffered channels.
func NewFake() *Fake {
	return &Fake{
		SentCh:   make(chan []byte, 64),
		Incoming: make(chan []byte, 64),
		Faults:   make(chan error, 8),
	}
}

func (f *Fake) Send(_ context.Context, frame []byte) error {
	if f.closed {
		return errClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.Sent = append(f.Sent, cp)
	f.SentCh <- cp
	return nil
}

func (f *Fake) Inbound() <-chan []byte { return f.Incoming }
func (f *Fake) Errors() <-chan error   { return f.Faults }

func (f *Fake) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.Incoming)
	close(f.Faults)
	return nil
}

var errClosed = transportError("transport: send after close")

type transportError string

func (e transportError) Error() string { return string(e) }
