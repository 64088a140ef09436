package frame

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/unixfreak0037/freeciv-agent/wire"
)

func u16(v uint16) []byte {
	return wire.AppendU16(nil, v)
}

// buildUncompressedFrame assembles a raw uncompressed frame: length
// header + type field (sized per mode) + body.
func buildUncompressedFrame(mode HeaderMode, packetType uint16, body []byte) []byte {
	var typeField []byte
	typeSize := 2
	if mode == Negotiation {
		typeField = wire.AppendU8(nil, uint8(packetType))
		typeSize = 1
	} else {
		typeField = u16(packetType)
	}

	length := 2 + typeSize + len(body)
	var buf []byte
	buf = append(buf, u16(uint16(length))...)
	buf = append(buf, typeField...)
	buf = append(buf, body...)
	return buf
}

func TestUncompressedFrameNegotiationMode(t *testing.T) {
	body := []byte{0xAA, 0xBB, 0xCC}
	raw := buildUncompressedFrame(Negotiation, 4, body)

	r := NewReader(bytes.NewReader(raw))
	f, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.PacketType != 4 {
		t.Fatalf("packet type = %d, want 4", f.PacketType)
	}
	if !bytes.Equal(f.Body, body) {
		t.Fatalf("body = %v, want %v", f.Body, body)
	}
}

func TestUncompressedFrameFullMode(t *testing.T) {
	body := []byte{0x01, 0x02}
	raw := buildUncompressedFrame(Full, 300, body)

	r := NewReader(bytes.NewReader(raw))
	r.SetFullHeader()
	f, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.PacketType != 300 {
		t.Fatalf("packet type = %d, want 300", f.PacketType)
	}
}

func TestHeaderModeSwitchTakesEffectOnNextFrame(t *testing.T) {
	first := buildUncompressedFrame(Negotiation, 5, []byte{0x01})
	second := buildUncompressedFrame(Full, 8, []byte{0x02, 0x03})

	r := NewReader(bytes.NewReader(append(first, second...)))

	f1, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	if f1.PacketType != 5 {
		t.Fatalf("packet type 1 = %d, want 5", f1.PacketType)
	}

	r.SetFullHeader()

	f2, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}
	if f2.PacketType != 8 {
		t.Fatalf("packet type 2 = %d, want 8", f2.PacketType)
	}
}

func TestSetFullHeaderIsIdempotent(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	r.SetFullHeader()
	r.SetFullHeader()
	if r.HeaderMode() != Full {
		t.Fatalf("HeaderMode = %v, want Full", r.HeaderMode())
	}
}

func TestShortReadPropagatesAsErrShortRead(t *testing.T) {
	raw := []byte{0x00} // truncated length field
	r := NewReader(bytes.NewReader(raw))
	_, err := r.Next(context.Background())
	if !errors.Is(err, wire.ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

func TestTruncatedBodyIsShortRead(t *testing.T) {
	// length header claims a 10-byte body but only 2 bytes follow.
	raw := append(u16(13), byte(9))
	raw = append(raw, []byte{0x01, 0x02}...)
	r := NewReader(bytes.NewReader(raw))
	_, err := r.Next(context.Background())
	if !errors.Is(err, wire.ErrShortRead) {
		t.Fatalf("err = %v, want ErrShortRead", err)
	}
}

// compressBytes zlib-compresses data the way a real sender would
// build a compression envelope payload.
func compressBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func buildCompressedEnvelope(t *testing.T, inner []byte) []byte {
	t.Helper()
	compressed := compressBytes(t, inner)
	length := CompressionBorder + len(compressed)
	if length >= JumboSentinel {
		t.Fatalf("test payload too large for a normal envelope")
	}
	var buf []byte
	buf = append(buf, u16(uint16(length))...)
	buf = append(buf, compressed...)
	return buf
}

func buildJumboEnvelope(t *testing.T, inner []byte) []byte {
	t.Helper()
	compressed := compressBytes(t, inner)
	var buf []byte
	buf = append(buf, u16(JumboSentinel)...)
	buf = append(buf, wire.AppendU32(nil, uint32(len(compressed)))...)
	buf = append(buf, compressed...)
	return buf
}

// TestCompressedEnvelopeTwoInnerFrames covers a single compressed
// envelope containing two inner frames, both
// yielded in order before the transport is read again.
func TestCompressedEnvelopeTwoInnerFrames(t *testing.T) {
	innerA := buildUncompressedFrame(Negotiation, 6, []byte{0x10, 0x20})
	innerB := buildUncompressedFrame(Negotiation, 8, []byte{0x30})
	envelope := buildCompressedEnvelope(t, append(innerA, innerB...))

	r := NewReader(bytes.NewReader(envelope))

	f1, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	if f1.PacketType != 6 || !bytes.Equal(f1.Body, []byte{0x10, 0x20}) {
		t.Fatalf("frame 1 = %+v", f1)
	}

	f2, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}
	if f2.PacketType != 8 || !bytes.Equal(f2.Body, []byte{0x30}) {
		t.Fatalf("frame 2 = %+v", f2)
	}
}

func TestJumboCompressedEnvelope(t *testing.T) {
	inner := buildUncompressedFrame(Negotiation, 9, bytes.Repeat([]byte{0x7A}, 50))
	envelope := buildJumboEnvelope(t, inner)

	r := NewReader(bytes.NewReader(envelope))
	f, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.PacketType != 9 {
		t.Fatalf("packet type = %d, want 9", f.PacketType)
	}
}

func TestCompressedEnvelopeUsesReaderCurrentMode(t *testing.T) {
	inner := buildUncompressedFrame(Full, 11, []byte{0x01})
	envelope := buildCompressedEnvelope(t, inner)

	r := NewReader(bytes.NewReader(envelope))
	r.SetFullHeader()

	f, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.PacketType != 11 {
		t.Fatalf("packet type = %d, want 11", f.PacketType)
	}
}

func TestCompressedEnvelopeTrailingBytesIsMalformed(t *testing.T) {
	inner := buildUncompressedFrame(Negotiation, 6, []byte{0x01})
	inner = append(inner, 0xFF) // trailing byte that is not a full frame
	envelope := buildCompressedEnvelope(t, inner)

	r := NewReader(bytes.NewReader(envelope))
	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestNestedCompressionEnvelopeIsMalformed(t *testing.T) {
	// An inner "frame" whose own length field claims to be a
	// compression envelope itself.
	nestedLength := u16(CompressionBorder)
	envelope := buildCompressedEnvelope(t, nestedLength)

	r := NewReader(bytes.NewReader(envelope))
	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
}

func TestDecompressionFailureWrapsSentinel(t *testing.T) {
	length := CompressionBorder + 4
	var buf []byte
	buf = append(buf, u16(uint16(length))...)
	buf = append(buf, []byte{0xDE, 0xAD, 0xBE, 0xEF}...) // not valid zlib

	r := NewReader(bytes.NewReader(buf))
	_, err := r.Next(context.Background())
	if !errors.Is(err, ErrDecompressionFailed) {
		t.Fatalf("err = %v, want ErrDecompressionFailed", err)
	}
}

func TestContextCancellationDuringRead(t *testing.T) {
	// blockingReader never returns, simulating a connection that's
	// gone quiet mid-frame.
	pr, _ := func() (*blockingReader, func()) {
		br := &blockingReader{}
		return br, func() {}
	}()

	r := NewReader(pr)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// blockingReader never returns from Read until the test process
// exits; it stands in for a transport that has gone silent so the
// context-cancellation path can be exercised deterministically.
type blockingReader struct{}

func (b *blockingReader) Read(p []byte) (int, error) {
	select {}
}

func TestFrameExactnessNoTrailingBytesConsumed(t *testing.T) {
	body := []byte{0x01, 0x02, 0x03}
	raw := buildUncompressedFrame(Negotiation, 7, body)
	trailer := []byte{0x99, 0x99}
	combined := append(append([]byte{}, raw...), trailer...)

	buf := bytes.NewReader(combined)
	r := NewReader(buf)
	r.Strict = true

	f, err := r.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(f.Body, body) {
		t.Fatalf("body = %v, want %v", f.Body, body)
	}
	if buf.Len() != len(trailer) {
		t.Fatalf("reader consumed into trailing bytes: %d left, want %d", buf.Len(), len(trailer))
	}
}
