package jpeg

import (
    "bytes"
    "io"

    "github.com/icza/bitio"
)

// errEOFSentinel is returned by byte-layer reads past the end of the stream;
// §4.1 calls for "a distinguished sentinel" rather than silently returning
// zero bytes that could be mistaken for coded data.
var errEOFSentinel = newErr(UnexpectedEof, "bitio", "byte stream exhausted inside an entropy-coded segment")

// stuffedSource is the byte layer of §4.1: on read, 0xFF 0x00 is an
// escaped 0xFF byte; 0xFF followed by any other non-zero byte is a marker,
// and the source remembers it (pendingMarker) instead of consuming it, so
// the enclosing EntropyParser/orchestrator can dispatch on it exactly as
// if it had peeked ahead.
type stuffedSource struct {
    data []byte
    pos  int

    pendingMarker marker
    hasMarker     bool
}

func newStuffedSource(data []byte, pos int) *stuffedSource {
    return &stuffedSource{data: data, pos: pos}
}

// Read implements io.Reader, one unstuffed byte at a time, to satisfy
// bitio.NewReader's requirement of an io.Reader.
func (s *stuffedSource) Read(p []byte) (int, error) {
    if len(p) == 0 {
        return 0, nil
    }
    if s.hasMarker {
        return 0, io.EOF // the bit reader must stop; a marker is pending
    }
    if s.pos >= len(s.data) {
        return 0, io.EOF
    }
    b := s.data[s.pos]
    s.pos++
    if b == 0xff {
        if s.pos >= len(s.data) {
            return 0, io.EOF
        }
        nxt := s.data[s.pos]
        if nxt == 0x00 {
            s.pos++
            p[0] = 0xff
            s.peekMarker()
            return 1, nil
        }
        // A real marker: unget both bytes logically by recording it and
        // rewinding pos back over the 0xff we already consumed.
        s.pos--
        s.hasMarker = true
        s.pendingMarker = marker(0xff00 | uint16(nxt))
        return 0, io.EOF
    }
    p[0] = b
    s.peekMarker()
    return 1, nil
}

// peekMarker records a marker starting at the current position without
// consuming it, so it is reported as soon as the byte before it is read.
func (s *stuffedSource) peekMarker() {
    if s.pos+1 < len(s.data) && s.data[s.pos] == 0xff && s.data[s.pos+1] != 0x00 {
        s.hasMarker = true
        s.pendingMarker = marker(0xff00 | uint16(s.data[s.pos+1]))
    }
}

// Offset returns the position in the original byte stream immediately
// after the last byte consumed (stuffed bytes included).
func (s *stuffedSource) Offset() int { return s.pos }

// ConsumeMarker accepts the pending marker (e.g. after a restart marker or
// DNL has been handled) and resumes the byte layer past it.
func (s *stuffedSource) ConsumeMarker() (marker, bool) {
    if !s.hasMarker {
        return 0, false
    }
    m := s.pendingMarker
    s.pos += 2 // the 0xff and the marker's second byte
    s.hasMarker = false
    return m, true
}

// PeekMarker reports the marker the source is currently blocked on,
// without consuming it.
func (s *stuffedSource) PeekMarker() (marker, bool) {
    return s.pendingMarker, s.hasMarker
}

// stuffingWriter is the write side of the byte layer: any 0xFF byte
// emitted from the entropy stream is followed by 0x00 (§4.1).
type stuffingWriter struct {
    w   io.Writer
    buf bytes.Buffer
}

func newStuffingWriter(w io.Writer) *stuffingWriter { return &stuffingWriter{w: w} }

func (s *stuffingWriter) Write(p []byte) (int, error) {
    for _, b := range p {
        s.buf.WriteByte(b)
        if b == 0xff {
            s.buf.WriteByte(0x00)
        }
    }
    return len(p), nil
}

// Flush pushes the accumulated, already-stuffed bytes to the underlying
// writer.
func (s *stuffingWriter) Flush() error {
    _, err := s.w.Write(s.buf.Bytes())
    s.buf.Reset()
    return err
}

// HuffmanBitReader is the MSB-first Huffman bitstream reader of §4.1,
// layered over icza/bitio's raw bit-shifting primitive the way
// other_examples/mewkiz-flac layers FLAC subframe decoding over bitio.
type HuffmanBitReader struct {
    src *stuffedSource
    br  *bitio.Reader
}

func newHuffmanBitReader(data []byte, pos int) *HuffmanBitReader {
    src := newStuffedSource(data, pos)
    return &HuffmanBitReader{src: src, br: bitio.NewReader(src)}
}

// GetBits consumes n (1..32) bits MSB-first.
func (r *HuffmanBitReader) GetBits(n uint8) (uint32, error) {
    v, err := r.br.ReadBits(n)
    if err != nil {
        return 0, wrapErr(UnexpectedEof, "GetBits", err)
    }
    return uint32(v), nil
}

// GetBit consumes a single bit, the primitive the Huffman tree walk in
// tables.go drives.
func (r *HuffmanBitReader) GetBit() (bool, error) {
    b, err := r.br.ReadBool()
    if err != nil {
        return false, wrapErr(UnexpectedEof, "GetBit", err)
    }
    return b, nil
}

// Realign discards any partially consumed byte and reports the absolute
// byte offset the reader is now positioned at — used when a restart
// marker forces the bitstream back to a byte boundary (§4.2 restart()).
func (r *HuffmanBitReader) Realign() int {
    r.br = bitio.NewReader(r.src) // fresh bit cursor at the current byte
    return r.src.Offset()
}

// PendingMarker reports a marker the underlying byte layer is blocked on.
func (r *HuffmanBitReader) PendingMarker() (marker, bool) { return r.src.PeekMarker() }

// ConsumeMarker accepts the pending marker and lets reading resume past
// it (used by restart() and DNL handling).
func (r *HuffmanBitReader) ConsumeMarker() (marker, bool) {
    m, ok := r.src.ConsumeMarker()
    if ok {
        r.br = bitio.NewReader(r.src)
    }
    return m, ok
}

// HuffmanBitWriter is the encoder-side mirror of HuffmanBitReader. It
// tracks its own partial-byte bit count alongside bitio.Writer's internal
// buffering, since JPEG's final-byte padding convention (pad with 1-bits)
// differs from bitio's own Align (pads with 0-bits).
type HuffmanBitWriter struct {
    sink    *stuffingWriter
    bw      *bitio.Writer
    pending uint8 // bits written since the last byte boundary, mod 8
}

func newHuffmanBitWriter(w io.Writer) *HuffmanBitWriter {
    sink := newStuffingWriter(w)
    return &HuffmanBitWriter{sink: sink, bw: bitio.NewWriter(sink)}
}

// PutBits appends the low n bits of v.
func (w *HuffmanBitWriter) PutBits(v uint32, n uint8) error {
    if n == 0 {
        return nil
    }
    if err := w.bw.WriteBits(uint64(v), n); err != nil {
        return wrapErr(MalformedStream, "PutBits", err)
    }
    w.pending = (w.pending + n) % 8
    return nil
}

// Flush pads the final byte with 1-bits (the JPEG convention, not bitio's
// own zero-padding Align) and commits every stuffed byte to the
// underlying writer.
func (w *HuffmanBitWriter) Flush() error {
    if w.pending != 0 {
        remainder := 8 - w.pending
        if err := w.PutBits(uint32(1<<remainder)-1, remainder); err != nil {
            return err
        }
    }
    if err := w.bw.Close(); err != nil {
        return wrapErr(MalformedStream, "Flush", err)
    }
    return w.sink.Flush()
}
