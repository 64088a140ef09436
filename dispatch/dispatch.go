// Package dispatch implements the packet dispatcher (C6): a registry
// from packet type to Handler, a default behavior for unregistered
// types, and panic recovery so a misbehaving handler cannot take down
// the read loop that calls it.
package dispatch

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unixfreak0037/freeciv-agent/schema"
)

// Handler processes one decoded packet. A non-nil error is logged by
// the Dispatcher but never propagated to the read loop: a single bad
// packet should not tear down the connection.
type Handler func(rec schema.DecodedRecord) error

// Dispatcher maps packet types to handlers.
type Dispatcher struct {
	handlers map[uint16]Handler
	logger   *logrus.Logger
}

// New returns a Dispatcher with no handlers registered. A nil logger
// is replaced with logrus's standard logger.
func New(logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{handlers: make(map[uint16]Handler), logger: logger}
}

// Register installs h as the handler for packetType, replacing any
// previous registration.
func (d *Dispatcher) Register(packetType uint16, h Handler) {
	d.handlers[packetType] = h
}

// Dispatch invokes the handler registered for rec's packet type. An
// unregistered type is logged at debug level and dropped: an
// unrecognized packet type is not a fatal condition. handlerFailed
// reports whether the registered handler returned an error or
// panicked, so callers needing it (e.g. the connection driver's
// handler-failure metric) can react without re-deriving it from
// logs.
func (d *Dispatcher) Dispatch(packetType uint16, rec schema.DecodedRecord) (handlerFailed bool) {
	h, ok := d.handlers[packetType]
	if !ok {
		d.logger.WithField("packet_type", packetType).Debug("dispatch: no handler registered, dropping")
		return false
	}

	return d.invoke(packetType, h, rec)
}

// invoke runs h, converting a panic into a logged error so one
// handler's bug can never stop the dispatcher from processing the
// next packet.
func (d *Dispatcher) invoke(packetType uint16, h Handler, rec schema.DecodedRecord) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"packet_type": packetType,
				"panic":       fmt.Sprint(r),
			}).Error("dispatch: handler panicked")
			failed = true
		}
	}()

	if err := h(rec); err != nil {
		d.logger.WithFields(logrus.Fields{
			"packet_type": packetType,
			"error":       err,
		}).Error("dispatch: handler returned error")
		return true
	}

	return false
}
