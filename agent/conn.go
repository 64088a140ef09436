// Package agent implements the connection driver (C7): it owns the
// transport, the per-connection state (header mode, delta cache,
// shutdown flag), and the join handshake, and runs the frame-reader →
// dispatcher loop that is the system's single long-running task.
//
// Conn is a struct owning an io.Closer, configured via a
// functional-options constructor, with explicit Dial/Join/Run/Close
// verbs.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unixfreak0037/freeciv-agent/cache"
	"github.com/unixfreak0037/freeciv-agent/delta"
	"github.com/unixfreak0037/freeciv-agent/dispatch"
	"github.com/unixfreak0037/freeciv-agent/frame"
	"github.com/unixfreak0037/freeciv-agent/schema"
	"github.com/unixfreak0037/freeciv-agent/wire"
)

// ErrJoinTimeout is returned by Join when the deadline elapses before
// a join-reply is dispatched.
var ErrJoinTimeout = errors.New("agent: join timed out")

// ErrAlreadyJoined is returned by a second call to Join on the same
// connection.
var ErrAlreadyJoined = errors.New("agent: already joined")

const defaultJoinTimeout = 10 * time.Second

// versionLabel is sent verbatim in every join-request; it identifies
// this implementation to the server the way a user-agent string
// would.
const versionLabel = "freeciv-agent/1.0"

// Conn is one connection's worth of state: the transport, the
// registry it decodes against, the delta cache, the dispatcher, and
// the two-phase header mode. It is not safe for concurrent use beyond
// the signals Join/Close themselves provide — it is meant to
// be driven by exactly one goroutine running Run.
type Conn struct {
	transport io.ReadWriteCloser
	reader    *frame.Reader
	registry  *schema.Registry
	cache     *cache.Cache
	dispatch  *dispatch.Dispatcher
	logger    *logrus.Logger
	metrics   *Metrics

	joinTimeout time.Duration
	joined      atomic.Bool
	joinResult  chan error
	validation  bool

	shuttingDown atomic.Bool
}

// Option configures a Conn at construction time.
type Option func(*Conn)

// WithJoinTimeout overrides the default 10s deadline on Join.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Conn) { c.joinTimeout = d }
}

// WithLogger installs a logrus logger. A nil logger is replaced with
// logrus's standard logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Conn) {
		if logger == nil {
			logger = logrus.StandardLogger()
		}
		c.logger = logger
	}
}

// WithMetrics installs a Metrics collector that counts decodes,
// dispatch failures, and cache size. Optional: a Conn with no Metrics
// simply does not record anything.
func WithMetrics(m *Metrics) Option {
	return func(c *Conn) { c.metrics = m }
}

// WithRegistry overrides the packet schema registry. Most callers
// should use schema.NewRegistry with schema.Seed rather than building
// their own.
func WithRegistry(r *schema.Registry) Option {
	return func(c *Conn) { c.registry = r }
}

// WithLimits replaces the registry with one constructed via
// schema.NewRegistryWithLimits, re-seeded with the standard seed set.
// Combine with WithRegistry (applied after WithLimits) if the seed set
// itself needs to change; options run in the order given.
func WithLimits(limits schema.Limits) Option {
	return func(c *Conn) {
		r := schema.NewRegistryWithLimits(limits)
		_ = schema.Seed(r)
		c.registry = r
	}
}

// WithValidation enables the frame reader's byte-exactness assertion:
// every reconstructed frame's length must equal its length header,
// surfacing frame.ErrMalformedFrame otherwise. Off by default; this is
// a diagnostic "validation mode", not part of normal operation.
func WithValidation(enabled bool) Option {
	return func(c *Conn) { c.validation = enabled }
}

// New wraps an already-established transport. Most callers should use
// Dial instead; New exists so tests (and callers with an unusual
// transport, e.g. an in-memory pipe) can construct a Conn directly.
func New(transport io.ReadWriteCloser, opts ...Option) *Conn {
	registry := schema.NewRegistry()
	_ = schema.Seed(registry) // the seed set never fails validation; see schema_test.go

	c := &Conn{
		transport:   transport,
		reader:      frame.NewReader(transport),
		registry:    registry,
		cache:       cache.New(),
		logger:      logrus.StandardLogger(),
		joinTimeout: defaultJoinTimeout,
		joinResult:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.reader.Strict = c.validation
	c.dispatch = dispatch.New(c.logger)
	return c
}

// Dial establishes a TCP connection to addr (host:port; the port must
// be given, FreeCiv servers listen on 6556 by default) and wraps it in
// a Conn with a fresh,
// empty ConnectionState — header_mode = NEGOTIATION and an empty
// cache.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("agent: dial %s: %w", addr, err)
	}
	return New(nc, opts...), nil
}

// Registry exposes the packet schema registry so callers can Register
// additional schemas before calling Run.
func (c *Conn) Registry() *schema.Registry {
	return c.registry
}

// Handle registers h to run whenever a packet of packetType is
// dispatched. Registering a handler for PacketServerJoinReply before
// calling Join has no effect: Join installs its own handler for that
// type, replacing any earlier one, to drive the header-mode switch and
// the join result.
func (c *Conn) Handle(packetType uint16, h dispatch.Handler) {
	c.dispatch.Register(packetType, h)
}

// Join serializes and sends the join-request packet (username,
// versionLabel) under negotiation framing, then runs the read loop
// until a join-reply is dispatched or the join timeout elapses. On
// success, header_mode has already switched to FULL (triggered by the
// dispatch of type 5) and the Conn is ready for Run.
func (c *Conn) Join(ctx context.Context, username string) error {
	if !c.joined.CompareAndSwap(false, true) {
		return ErrAlreadyJoined
	}

	joinReqSchema, err := c.registry.Lookup(schema.PacketServerJoinReq)
	if err != nil {
		return fmt.Errorf("agent: join-request schema: %w", err)
	}

	body, err := delta.EncodeNonDelta(joinReqSchema, schema.DecodedRecord{
		"username":      username,
		"version_label": versionLabel,
	})
	if err != nil {
		return fmt.Errorf("agent: encode join-request: %w", err)
	}

	frameBytes := buildOutboundFrame(frame.Negotiation, schema.PacketServerJoinReq, body)
	if _, err := c.transport.Write(frameBytes); err != nil {
		return fmt.Errorf("agent: write join-request: %w", err)
	}

	c.dispatch.Register(schema.PacketServerJoinReply, func(rec schema.DecodedRecord) error {
		c.reader.SetFullHeader()
		accepted, _ := rec["accepted"].(bool)
		if !accepted {
			message, _ := rec["message"].(string)
			c.joinResult <- fmt.Errorf("agent: server refused join: %s", message)
			return nil
		}
		c.joinResult <- nil
		return nil
	})

	joinCtx, cancel := context.WithTimeout(ctx, c.joinTimeout)
	defer cancel()

	err = c.joinLoop(joinCtx)
	if err != nil {
		// A failed join (timeout or rejection) transitions the
		// connection straight to teardown rather than leaving it half
		// set up for a Run that will never succeed.
		c.teardown()
	}
	return err
}

func (c *Conn) joinLoop(joinCtx context.Context) error {
	for {
		select {
		case err := <-c.joinResult:
			return err
		default:
		}

		if err := c.step(joinCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrJoinTimeout
			}
			return err
		}
	}
}

// Run executes the frame-reader → dispatcher loop until ctx is
// canceled, the transport fails, or Close is called. It always tears
// down on return: the cache is cleared and the transport is closed.
func (c *Conn) Run(ctx context.Context) error {
	defer c.teardown()

	for {
		if c.shuttingDown.Load() {
			return nil
		}
		if err := c.step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// step reads exactly one frame, decodes it, and dispatches it. No
// partial packet is ever delivered: a cancellation or transport error
// during the read surfaces before any decode is attempted.
func (c *Conn) step(ctx context.Context) error {
	f, err := c.reader.Next(ctx)
	if err != nil {
		return err
	}

	sch, err := c.registry.Lookup(f.PacketType)
	if err != nil {
		if c.metrics != nil {
			c.metrics.recordUnregistered()
		}
		c.logger.WithField("packet_type", f.PacketType).Debug("agent: dropping unregistered packet type")
		return nil
	}

	rec, err := delta.Decode(sch, f.Body, c.cache)
	if err != nil {
		if c.metrics != nil {
			c.metrics.recordDecodeError()
		}
		return err
	}
	if c.metrics != nil {
		c.metrics.recordDecode(f.PacketType)
		c.metrics.setCacheSize(c.cache.Len())
	}

	if failed := c.dispatch.Dispatch(f.PacketType, rec); failed && c.metrics != nil {
		c.metrics.recordHandlerFailure()
	}

	return nil
}

// Close signals shutdown, closes the transport, and clears the cache.
// Safe to call more than once.
func (c *Conn) Close() error {
	c.shuttingDown.Store(true)
	return c.teardown()
}

func (c *Conn) teardown() error {
	c.cache.ClearAll()
	return c.transport.Close()
}

// buildOutboundFrame assembles a length-prefixed, uncompressed
// outbound frame. The core never compresses what it sends: this
// implementation is a client whose only outbound packet is the small
// join-request, so an outbound compression path has no caller and is
// intentionally not built.
func buildOutboundFrame(mode frame.HeaderMode, packetType uint16, body []byte) []byte {
	var typeField []byte
	typeSize := 2
	if mode == frame.Negotiation {
		typeField = wire.AppendU8(nil, uint8(packetType))
		typeSize = 1
	} else {
		typeField = wire.AppendU16(nil, packetType)
	}

	length := 2 + typeSize + len(body)
	out := wire.AppendU16(nil, uint16(length))
	out = append(out, typeField...)
	out = append(out, body...)
	return out
}
