package jpeg

import (
    "io"

    "github.com/rs/zerolog"
)

// Scan selects 1..4 of the frame's components and a (start, stop, highBit,
// lowBit) quadruple whose meaning is process-dependent (§3, §4.3). It owns
// the EntropyParser instantiated for it at start-of-scan time.
type Scan struct {
    id      int
    frame   *Frame // back-reference; frame owns the scan, never the reverse
    comps   []scanComponentRef
    start   uint8 // Ss: spectral selection start / lossless predictor selector
    stop    uint8 // Se: spectral selection end
    highBit uint8 // Ah: successive-approximation high bit
    lowBit  uint8 // Al: successive-approximation low bit / point transform

    // JPEG-LS specific scan parameters, valid only when frame.Process == JPEGLS.
    lsInterleave int // Ss field repurposed: 0 none, 1 line, 2 sample
    near         int

    restartInterval int // DRI value in effect for this scan, 0 disables restart
    parser          EntropyParser
}

type scanComponentRef struct {
    compIndex  int // index into Frame.Components
    dcSel      int // DC table selector (or mapping-table selector for LS)
    acSel      int // AC table selector, unused for lossless/LS
}

// Components returns the frame components this scan covers, in scan order.
func (s *Scan) Components() []Component {
    out := make([]Component, len(s.comps))
    for i, r := range s.comps {
        out[i] = s.frame.Components[r.compIndex]
    }
    return out
}

// Frame is one SOFn (or the DHP "dimensions" pseudo-frame) as described in
// §3: a process tag, dimensions, component list and an ordered list of
// owned scans.
type Frame struct {
    id         int
    Process    Process
    Width      int // X, 1..65535
    Height     int // Y, 0..65535; 0 means "supplied later by DNL"
    Precision  int
    Components []Component
    Scans      []*Scan

    heightFixed bool // true once Height has been set by SOFn or DNL (monotonic, §3)

    hidden   *hiddenSideStream // non-standard hidden refinement scans, §4.3.9
    residual *hiddenSideStream // non-standard residual side channel, §4.3.9

    image *Image // access to global image parameters
}

// NewScan allocates and appends a Scan to f, validating the component
// references and the standard's cap of 4 components for
// progressive/arithmetic scans (§3 "capped at 4 for progressive/AC").
func (f *Frame) NewScan(refs []scanComponentRef, start, stop, highBit, lowBit uint8) (*Scan, error) {
    if len(refs) < 1 || len(refs) > 4 {
        return nil, newErr(InvalidParameter, "NewScan", "scan selects %d components, want 1..4", len(refs))
    }
    if (f.Process.isProgressive() || f.Process.isArithmetic()) && len(f.Components) > 4 && len(refs) > 1 {
        return nil, newErr(InvalidParameter, "NewScan", "progressive/arithmetic frames cap interleaved scans at 4 components")
    }
    s := &Scan{
        id: len(f.Scans), frame: f, comps: refs,
        start: start, stop: stop, highBit: highBit, lowBit: lowBit,
    }
    f.Scans = append(f.Scans, s)
    return s, nil
}

// SetHeight installs the frame's height, enforcing the §3 invariant that a
// frame's height is monotonic: once fixed by SOFn (nonzero) or by DNL, it
// never changes again.
func (f *Frame) SetHeight(h int) error {
    if f.heightFixed && f.Height != h {
        return newErr(MalformedStream, "SetHeight", "frame height already fixed at %d, DNL claims %d", f.Height, h)
    }
    f.Height = h
    f.heightFixed = true
    return nil
}

// hiddenSideStream is the in-memory byte buffer backing a hidden
// refinement or residual scan (§4.3.9, §9 "side streams"): an explicit
// byte-stream object rather than a templated adapter, so the same
// EntropyParser code path reads/writes it exactly as it would the main
// codestream.
type hiddenSideStream struct {
    buf    []byte
    offset int
}

func (h *hiddenSideStream) Read(p []byte) (int, error) {
    if h.offset >= len(h.buf) {
        return 0, io.EOF
    }
    n := copy(p, h.buf[h.offset:])
    h.offset += n
    return n, nil
}

func (h *hiddenSideStream) Write(p []byte) (int, error) {
    h.buf = append(h.buf, p...)
    return len(p), nil
}

// Image is the top-level handle for a parsed or constructed JPEG/JPEG-LS
// codestream: one or more hierarchical Frames, the shared table state, and
// the diagnostic channel of §7/§9.
type Image struct {
    Frames []*Frame

    quantTables   [4]*QuantTable
    dcHuffTables  [4]*HuffmanTable
    acHuffTables  [4]*HuffmanTable
    dcConditioner [4]Conditioner
    acConditioner [4]Conditioner
    lsParams      *lsPresetParameters

    hierarchical bool
    dhpWidth     int
    dhpHeight    int

    Logger zerolog.Logger
    warnings
}

// NewImage creates an empty Image ready to be populated either by Parse
// (decoding) or by the encoder-side frame/scan builders.
func NewImage(logWriter io.Writer) *Image {
    return &Image{Logger: newLogger(logWriter)}
}

// warn records a non-fatal diagnostic: parsing surfaces warnings for stray
// markers, over-long fills, and recoverable out-of-sync conditions (§7);
// the parser advances, it never aborts mid-image on these.
func (img *Image) warn(kind ErrorKind, op, format string, args ...interface{}) {
    msg := newErr(kind, op, format, args...).Error()
    img.warnings.add(kind, op, msg)
    img.Logger.Warn().Str("op", op).Str("kind", kind.String()).Msg(msg)
}

// NewFrame appends a new Frame to the image, owned by it (frame-owns-scans
// cascades from image-owns-frames, §9 "cyclic graphs").
func (img *Image) NewFrame(process Process, width, height, precision int, comps []Component) (*Frame, error) {
    if err := checkSamplingLattice(comps); err != nil {
        return nil, err
    }
    if width <= 0 || width > 65535 || height < 0 || height > 65535 {
        return nil, newErr(Overflow, "NewFrame", "dimensions %dx%d out of range", width, height)
    }
    maxH, maxV := maxSampling(comps)
    out := make([]Component, len(comps))
    copy(out, comps)
    for i := range out {
        out[i].Index = i
        if process.isLossless() {
            out[i].MCUW, out[i].MCUH = 1, 1
        } else {
            out[i].MCUW = ceilDiv(out[i].H, 1)
            out[i].MCUH = ceilDiv(out[i].V, 1)
        }
    }
    _ = maxH
    _ = maxV
    f := &Frame{
        id: len(img.Frames), Process: process, Width: width, Height: height,
        Precision: precision, Components: out, image: img,
        heightFixed: height != 0,
    }
    img.Frames = append(img.Frames, f)
    return f, nil
}
