package jpeg

// HiddenRefinementParser and HiddenResidualParser implement §4.3.9: a
// wrapper around a real EntropyParser that redirects its bitstream to an
// in-memory side buffer carried in an APP9 segment instead of the main
// codestream, used respectively for a refinement pass not meant to be
// visible to a conforming baseline reader and for the residual extension
// data of a differential hierarchical frame (§4.6).
//
// Both wrappers are driven exactly like their inner parser from the
// orchestrator's point of view; only StartRead/StartWrite differ,
// swapping the byte source/sink for the frame's hidden/residual side
// stream instead of the main marker-segment stream.
type HiddenRefinementParser struct {
    inner EntropyParser
    side  *hiddenSideStream
}

func newHiddenRefinementParser(inner EntropyParser, side *hiddenSideStream) *HiddenRefinementParser {
    return &HiddenRefinementParser{inner: inner, side: side}
}

func (h *HiddenRefinementParser) StartRead(data []byte, pos int) error {
    // The side stream is self-contained (committed whole from its APP9
    // payload), so the main stream's position is irrelevant here.
    return h.inner.StartRead(h.side.buf, h.side.offset)
}

func (h *HiddenRefinementParser) StartWrite(sink *stuffingWriter) error {
    h.side.buf = h.side.buf[:0]
    hiddenSink := newStuffingWriter(&sideStreamWriter{side: h.side})
    return h.inner.StartWrite(hiddenSink)
}

func (h *HiddenRefinementParser) StartMeasure() error           { return h.inner.StartMeasure() }
func (h *HiddenRefinementParser) StartMCURow() (bool, error)    { return h.inner.StartMCURow() }
func (h *HiddenRefinementParser) ParseMCU() (bool, error)       { return h.inner.ParseMCU() }
func (h *HiddenRefinementParser) WriteMCU() (bool, error)       { return h.inner.WriteMCU() }
func (h *HiddenRefinementParser) Restart() error                { return h.inner.Restart() }

// Flush commits the side buffer to the frame's hidden-stream segment once
// the final flush of the hidden scan happens; the orchestrator is
// responsible for packing h.side.buf into an APP9 segment afterward.
func (h *HiddenRefinementParser) Flush(final bool) error {
    return h.inner.Flush(final)
}

// WriteFrameType reports the real scan's process, since a hidden
// refinement scan is never itself announced by a frame header — the
// orchestrator skips emitting a SOF/SOS pair for it (§4.3.9).
func (h *HiddenRefinementParser) WriteFrameType() Process { return h.inner.WriteFrameType() }

// HiddenResidualParser is the differential-hierarchical sibling: the
// residual extension layer of §4.6, carried in the frame's residual side
// stream rather than its refinement side stream.
type HiddenResidualParser struct {
    HiddenRefinementParser
}

func newHiddenResidualParser(inner EntropyParser, side *hiddenSideStream) *HiddenResidualParser {
    return &HiddenResidualParser{HiddenRefinementParser: *newHiddenRefinementParser(inner, side)}
}

// sideStreamWriter adapts a hiddenSideStream to io.Writer so it can sit
// behind a stuffingWriter exactly like the main codestream's io.Writer.
type sideStreamWriter struct {
    side *hiddenSideStream
}

func (s *sideStreamWriter) Write(p []byte) (int, error) {
    s.side.buf = append(s.side.buf, p...)
    return len(p), nil
}
