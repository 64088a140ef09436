// Package frame implements the frame reader (C5): a byte-exact reader
// over the transport that parses the length field, distinguishes
// uncompressed / normal-compressed / jumbo-compressed frames, strips
// the framing header, and for compressed frames decompresses and
// yields the sequence of inner packets it contains.
//
// Reader is expressed as a lazy generator (Next) driven by an
// io.Reader transport: each call to Next either pops a buffered inner
// frame from the last decompressed envelope or blocks reading the
// transport for the next one.
package frame

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/unixfreak0037/freeciv-agent/wire"
)

// scratchPool recycles the *bytes.Buffer used to drain a zlib reader
// per envelope, avoiding a fresh allocation on every decode call under
// sustained traffic. The buffer's contents are always copied out into
// an owned slice before it is returned to the pool (see
// readCompressedEnvelope), so nothing downstream ever aliases pooled
// memory.
var scratchPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Compression constants for the wire framing.
const (
	CompressionBorder = 16385
	JumboSentinel     = 65535
)

// HeaderMode selects how many bytes the packet-type field occupies.
type HeaderMode int

const (
	// Negotiation is the 1-byte packet-type header mode a connection
	// starts in.
	Negotiation HeaderMode = iota
	// Full is the 2-byte packet-type header mode a connection switches
	// to permanently after a successful join-reply dispatch.
	Full
)

var (
	// ErrMalformedFrame covers a compressed envelope with trailing
	// bytes, a nested envelope, or a length field too small to hold
	// its own header.
	ErrMalformedFrame = errors.New("frame: malformed frame")

	// ErrDecompressionFailed wraps a zlib error while inflating a
	// compressed envelope.
	ErrDecompressionFailed = errors.New("frame: decompression failed")
)

// Frame is one decoded (packet_type, body) pair.
type Frame struct {
	PacketType uint16
	Body       []byte
}

// Reader consumes a byte stream and yields Frames in transport order,
// including in-order delivery of every inner frame of a compressed
// envelope before any later frame is read from the transport.
type Reader struct {
	transport io.Reader
	mode      HeaderMode
	pending   []Frame // inner frames from the most recent envelope, not yet yielded

	// Strict enables the byte-exactness cross-check: when
	// true, every frame's reconstructed length is compared against
	// its length header and a mismatch surfaces as ErrMalformedFrame
	// instead of silently trusting the arithmetic. Off by default
	// since it is pure redundancy over code whose correctness is
	// otherwise covered by tests.
	Strict bool
}

// NewReader builds a Reader starting in Negotiation header mode, the
// mode every connection starts in.
func NewReader(transport io.Reader) *Reader {
	return &Reader{transport: transport, mode: Negotiation}
}

// HeaderMode reports the reader's current header mode.
func (r *Reader) HeaderMode() HeaderMode {
	return r.mode
}

// SetFullHeader switches the reader permanently to the 2-byte
// packet-type header mode. This is called once, after the
// dispatcher reports successful handling of the join-reply packet; it
// takes effect for every subsequent frame, including inner frames of
// any later compression envelope. Calling it more than once is a
// no-op.
func (r *Reader) SetFullHeader() {
	r.mode = Full
}

// Next returns the next (packet_type, body) pair, blocking on the
// transport if no buffered inner frame is available. ctx governs only
// the transport read: that is the system's sole suspension
// point.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	if len(r.pending) > 0 {
		f := r.pending[0]
		r.pending = r.pending[1:]
		return f, nil
	}

	return r.readOuterFrame(ctx)
}

// readOuterFrame reads one frame directly from the transport: either
// yielding it (uncompressed) or expanding a compression envelope,
// buffering all but its first inner frame in r.pending and handing
// back the first.
func (r *Reader) readOuterFrame(ctx context.Context) (Frame, error) {
	length, err := r.readLength(ctx)
	if err != nil {
		return Frame{}, err
	}

	switch {
	case length < CompressionBorder:
		return r.readUncompressedFrame(ctx, length, 2)

	case length < JumboSentinel:
		compressedLen := length - CompressionBorder
		return r.readCompressedEnvelope(ctx, compressedLen)

	default: // length == JumboSentinel
		actualLen, err := r.readU32(ctx)
		if err != nil {
			return Frame{}, err
		}
		return r.readCompressedEnvelope(ctx, int(actualLen))
	}
}

// readUncompressedFrame reads the packet-type header (1 or 2 bytes
// depending on mode) and the remaining body, where length is the
// total frame length and headerSoFar counts the bytes of the length
// field already consumed (always 2: the u16 length prefix).
func (r *Reader) readUncompressedFrame(ctx context.Context, length, headerSoFar int) (Frame, error) {
	typeSize := r.typeFieldSize()
	if length < headerSoFar+typeSize {
		return Frame{}, fmt.Errorf("%w: length %d too small for %d-byte type header", ErrMalformedFrame, length, typeSize)
	}

	packetType, err := r.readPacketType(ctx)
	if err != nil {
		return Frame{}, err
	}

	bodyLen := length - headerSoFar - typeSize
	body, err := r.readExactly(ctx, bodyLen)
	if err != nil {
		return Frame{}, err
	}

	if r.Strict {
		consumed := headerSoFar + typeSize + bodyLen
		if consumed != length {
			return Frame{}, fmt.Errorf("%w: consumed %d bytes, length header said %d", ErrMalformedFrame, consumed, length)
		}
	}

	return Frame{PacketType: packetType, Body: body}, nil
}

// readCompressedEnvelope reads compressedLen bytes of zlib-wrapped
// DEFLATE data, inflates it, parses the decompressed buffer as a
// concatenation of complete uncompressed inner frames under the
// reader's *current* header mode, buffers them in r.pending, and
// returns the first one.
func (r *Reader) readCompressedEnvelope(ctx context.Context, compressedLen int) (Frame, error) {
	compressed, err := r.readExactly(ctx, compressedLen)
	if err != nil {
		return Frame{}, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecompressionFailed, err)
	}

	scratch := scratchPool.Get().(*bytes.Buffer)
	scratch.Reset()
	_, copyErr := io.Copy(scratch, zr)
	closeErr := zr.Close()
	if copyErr != nil {
		scratchPool.Put(scratch)
		return Frame{}, fmt.Errorf("%w: %v", ErrDecompressionFailed, copyErr)
	}
	if closeErr != nil {
		scratchPool.Put(scratch)
		return Frame{}, fmt.Errorf("%w: %v", ErrDecompressionFailed, closeErr)
	}

	decompressed := append([]byte(nil), scratch.Bytes()...)
	scratchPool.Put(scratch)

	inner, err := r.parseInnerFrames(decompressed)
	if err != nil {
		return Frame{}, err
	}
	if len(inner) == 0 {
		return Frame{}, fmt.Errorf("%w: compressed envelope contained no frames", ErrMalformedFrame)
	}

	r.pending = inner[1:]
	return inner[0], nil
}

// parseInnerFrames parses buf as a concatenation of complete
// uncompressed inner frames under the reader's current header mode,
// failing with ErrMalformedFrame if any trailing bytes remain.
// Envelopes never nest: an inner frame whose own length field would
// indicate a further compressed envelope is rejected.
func (r *Reader) parseInnerFrames(buf []byte) ([]Frame, error) {
	var frames []Frame
	offset := 0
	typeSize := r.typeFieldSize()

	for offset < len(buf) {
		length, next, err := wire.ReadU16(buf, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		offset = next

		if int(length) >= CompressionBorder {
			return nil, fmt.Errorf("%w: nested compression envelope", ErrMalformedFrame)
		}

		headerSoFar := 2
		if int(length) < headerSoFar+typeSize {
			return nil, fmt.Errorf("%w: inner length %d too small for %d-byte type header", ErrMalformedFrame, length, typeSize)
		}

		var packetType uint16
		if typeSize == 1 {
			v, next, err := wire.ReadU8(buf, offset)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			packetType, offset = uint16(v), next
		} else {
			v, next, err := wire.ReadU16(buf, offset)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
			}
			packetType, offset = v, next
		}

		bodyLen := int(length) - headerSoFar - typeSize
		if offset+bodyLen > len(buf) {
			return nil, fmt.Errorf("%w: inner frame body runs past envelope end", ErrMalformedFrame)
		}
		body := buf[offset : offset+bodyLen]
		offset += bodyLen

		frames = append(frames, Frame{PacketType: packetType, Body: body})
	}

	if offset != len(buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes after last inner frame", ErrMalformedFrame, len(buf)-offset)
	}

	return frames, nil
}

func (r *Reader) typeFieldSize() int {
	if r.mode == Negotiation {
		return 1
	}
	return 2
}

func (r *Reader) readPacketType(ctx context.Context) (uint16, error) {
	if r.typeFieldSize() == 1 {
		b, err := r.readExactly(ctx, 1)
		if err != nil {
			return 0, err
		}
		return uint16(b[0]), nil
	}

	b, err := r.readExactly(ctx, 2)
	if err != nil {
		return 0, err
	}
	v, _, err := wire.ReadU16(b, 0)
	return v, err
}

func (r *Reader) readLength(ctx context.Context) (int, error) {
	b, err := r.readExactly(ctx, 2)
	if err != nil {
		return 0, err
	}
	v, _, err := wire.ReadU16(b, 0)
	return int(v), err
}

func (r *Reader) readU32(ctx context.Context) (uint32, error) {
	b, err := r.readExactly(ctx, 4)
	if err != nil {
		return 0, err
	}
	v, _, err := wire.ReadU32(b, 0)
	return v, err
}

// readExactly reads exactly n bytes or fails with wire.ErrShortRead,
// honoring ctx cancellation. This is the sole suspension point in the
// whole core: everything else here is synchronous computation
// over already-read bytes.
func (r *Reader) readExactly(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, n)

	type result struct {
		err error
	}
	done := make(chan result, 1)

	go func() {
		_, err := io.ReadFull(r.transport, buf)
		done <- result{err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("%w: %v", wire.ErrShortRead, res.err)
		}
		return buf, nil
	}
}
