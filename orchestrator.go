package jpeg

import (
    "encoding/binary"
    "io"
)

// processForSOF maps a SOFn/SOF55 marker to its Process tag (Table B.1 and
// §3's process-tag table).
func processForSOF(m marker) (Process, bool) {
    switch m {
    case _SOF0:
        return Baseline, true
    case _SOF1:
        return SequentialHuffman, true
    case _SOF2:
        return ProgressiveHuffman, true
    case _SOF3:
        return LosslessHuffman, true
    case _SOF5:
        return DifferentialSequentialHuffman, true
    case _SOF6:
        return DifferentialProgressiveHuffman, true
    case _SOF7:
        return DifferentialLosslessHuffman, true
    case _SOF9:
        return SequentialArithmetic, true
    case _SOF10:
        return ProgressiveArithmetic, true
    case _SOF11:
        return LosslessArithmetic, true
    case _SOF13:
        return DifferentialSequentialArithmetic, true
    case _SOF14:
        return DifferentialProgressiveArithmetic, true
    case _SOF15:
        return DifferentialLosslessArithmetic, true
    case _SOFLS:
        return JPEGLS, true
    }
    return 0, false
}

// newParserFor constructs the EntropyParser variant matching scan's frame
// process, wiring it to the block or line buffer control appropriate to
// that process (§4.2/§4.4: the buffer-control choice is itself
// process-dependent, DCT processes use BlockBuffer, predictive/LS
// processes use LineBuffer).
func newParserFor(s *Scan, img *Image, blocks *BlockBuffer, lines *LineBuffer) (EntropyParser, error) {
    inner, err := baseParserFor(s, img, blocks, lines)
    if err != nil {
        return nil, err
    }
    // §4.3.9: a differential frame that carries a hidden refinement or
    // residual side channel codes that channel through the same
    // entropy alphabet as the visible scan, just redirected to the
    // frame's in-memory side stream instead of the main codestream.
    if s.frame.Process.isDifferential() {
        if s.frame.residual != nil {
            return newHiddenResidualParser(inner, s.frame.residual), nil
        }
        if s.frame.hidden != nil {
            return newHiddenRefinementParser(inner, s.frame.hidden), nil
        }
    }
    return inner, nil
}

func baseParserFor(s *Scan, img *Image, blocks *BlockBuffer, lines *LineBuffer) (EntropyParser, error) {
    p := s.frame.Process
    switch {
    case p == Baseline || p == SequentialHuffman || p.isDifferential() && !p.isProgressive() && !p.isLossless() && !p.isArithmetic():
        dc, ac := img.dcTablesFor(s), img.acTablesFor(s)
        return newSequentialHuffmanParser(s, img, blocks, dc, ac), nil
    case p == SequentialArithmetic || (p.isDifferential() && p.isArithmetic() && !p.isProgressive() && !p.isLossless()):
        return newSequentialArithmeticParser(s, img), nil
    case p == ProgressiveHuffman || (p.isDifferential() && p.isProgressive() && !p.isArithmetic()):
        // A DC scan always has Ss=Se=0 (§4.3.3); any other spectral band
        // is an AC scan over exactly one component (§4.3.4/§4.3.5).
        if s.start == 0 && s.stop == 0 {
            dc := img.dcTablesFor(s)
            return newProgressiveDCParser(s, img, blocks, dc), nil
        }
        ac := img.acTablesFor(s)
        return newProgressiveACParser(s, img, blocks, ac[0]), nil
    case p == ProgressiveArithmetic || (p.isDifferential() && p.isProgressive() && p.isArithmetic()):
        if s.start == 0 && s.stop == 0 {
            return newProgressiveArithmeticDCParser(s, img), nil
        }
        return newProgressiveArithmeticACParser(s, img), nil
    case p == LosslessHuffman || (p.isDifferential() && p.isLossless() && !p.isArithmetic()):
        tables := img.dcTablesFor(s)
        return newLosslessHuffmanParser(s, img, lines, tables), nil
    case p == LosslessArithmetic || (p.isDifferential() && p.isLossless() && p.isArithmetic()):
        return newLosslessArithmeticParser(s, img, lines), nil
    case p == JPEGLS:
        maxVal := (1 << uint(s.frame.Precision)) - 1
        params := defaultLSEParameters(maxVal, s.near)
        if img.lsParams != nil {
            params = *img.lsParams
        }
        return newJPEGLSParser(s, img, lines, params)
    }
    return nil, newErr(NotImplemented, "newParserFor", "process %s has no entropy parser", p)
}

// dcTablesFor/acTablesFor resolve each scan component's selected DHT
// destination, shared by every Huffman-family parser constructor.
func (img *Image) dcTablesFor(s *Scan) []*HuffmanTable {
    out := make([]*HuffmanTable, len(s.comps))
    for i, ref := range s.comps {
        out[i] = img.dcHuffTables[ref.dcSel]
    }
    return out
}

func (img *Image) acTablesFor(s *Scan) []*HuffmanTable {
    out := make([]*HuffmanTable, len(s.comps))
    for i, ref := range s.comps {
        out[i] = img.acHuffTables[ref.acSel]
    }
    return out
}

// Decoder drives a single Image through its full marker-segment structure
// (§6), dispatching to the right EntropyParser for each scan's MCU loop
// and handling the marker-level side effects (DRI, DNL, DHP/EXP
// hierarchical frames) the parsers themselves don't.
type Decoder struct {
    img    *Image
    data   []byte
    pos    int
    blocks *BlockBuffer
    lines  *LineBuffer

    dri int // current DRI value, carried across scans until redefined
}

// NewDecoder opens data (expected to start at SOI) against a fresh Image.
func NewDecoder(data []byte, logWriter io.Writer) *Decoder {
    return &Decoder{img: NewImage(logWriter), data: data}
}

func be16(b []byte) int { return int(binary.BigEndian.Uint16(b)) }

func (d *Decoder) readMarker() (marker, error) {
    if d.pos+2 > len(d.data) {
        return 0, errEOFSentinel
    }
    if d.data[d.pos] != 0xff {
        return 0, newErr(MalformedStream, "readMarker", "expected marker at offset %d, found 0x%02x", d.pos, d.data[d.pos])
    }
    m := marker(be16(d.data[d.pos:]))
    d.pos += 2
    return m, nil
}

func (d *Decoder) readSegment() ([]byte, error) {
    if d.pos+2 > len(d.data) {
        return nil, errEOFSentinel
    }
    length := be16(d.data[d.pos:])
    if length < 2 || d.pos+length > len(d.data) {
        return nil, newErr(MalformedStream, "readSegment", "segment length %d invalid at offset %d", length, d.pos)
    }
    payload := d.data[d.pos+2 : d.pos+length]
    d.pos += length
    return payload, nil
}

// Decode parses the full codestream, populating d.img with every Frame
// and Scan encountered and running each scan's entropy decoder to
// completion.
func (d *Decoder) Decode() (*Image, error) {
    m, err := d.readMarker()
    if err != nil {
        return nil, err
    }
    if m != _SOI {
        return nil, newErr(MalformedStream, "Decode", "stream does not start with SOI")
    }
    var curFrame *Frame
    for {
        m, err := d.readMarker()
        if err != nil {
            return nil, err
        }
        switch {
        case m == _EOI:
            return d.img, nil
        case isFrameMarker(m):
            f, err := d.parseSOF(m)
            if err != nil {
                return nil, err
            }
            curFrame = f
        case m == _DHT:
            if err := d.parseDHT(); err != nil {
                return nil, err
            }
        case m == _DQT:
            if err := d.parseDQT(); err != nil {
                return nil, err
            }
        case m == _DAC:
            if err := d.parseDAC(); err != nil {
                return nil, err
            }
        case m == _DRI:
            if err := d.parseDRI(); err != nil {
                return nil, err
            }
        case m == _DNL:
            if err := d.parseDNL(curFrame); err != nil {
                return nil, err
            }
        case m == _LSE:
            if err := d.parseLSE(); err != nil {
                return nil, err
            }
        case m == _DHP:
            f, err := d.parseDHP()
            if err != nil {
                return nil, err
            }
            curFrame = f
        case m == _EXP:
            if _, err := d.readSegment(); err != nil { // expand factors, not modelled further
                return nil, err
            }
        case m == _SOS:
            if curFrame == nil {
                return nil, newErr(MalformedStream, "Decode", "SOS with no preceding SOF")
            }
            if err := d.parseScan(curFrame); err != nil {
                return nil, err
            }
        case m == _APP9:
            payload, err := d.readSegment()
            if err != nil {
                return nil, err
            }
            // §4.3.9: the hidden refinement/residual side channel. The
            // payload bytes are captured onto the current frame's side
            // stream so a caller interested in the hidden scan can drive
            // HiddenRefinementParser/HiddenResidualParser over it
            // directly; this core library does not itself re-derive the
            // merged sample values from differential base + residual.
            if curFrame != nil {
                target := curFrame.hidden
                if curFrame.Process.isDifferential() {
                    if target == nil {
                        target = &hiddenSideStream{}
                        curFrame.hidden = target
                    }
                }
                if target != nil {
                    target.buf = append(target.buf[:0], payload...)
                }
            }
        case m >= _APP0 && m <= _APP15, m == _COM:
            if _, err := d.readSegment(); err != nil {
                return nil, err
            }
        case isRestart(m), m == _TEM:
            // stray restart/TEM outside a scan: ignorable per §7
            d.img.warn(MalformedStream, "Decode", "stray marker %04x outside any scan", m)
        default:
            d.img.warn(MalformedStream, "Decode", "unrecognised marker %04x, skipping as a segment", m)
            if _, err := d.readSegment(); err != nil {
                return nil, err
            }
        }
    }
}

func (d *Decoder) parseSOF(m marker) (*Frame, error) {
    payload, err := d.readSegment()
    if err != nil {
        return nil, err
    }
    if len(payload) < 6 {
        return nil, newErr(MalformedStream, "parseSOF", "SOF segment too short")
    }
    process, ok := processForSOF(m)
    if !ok {
        return nil, newErr(NotImplemented, "parseSOF", "unsupported SOF marker %04x", m)
    }
    precision := int(payload[0])
    height := be16(payload[1:])
    width := be16(payload[3:])
    nComp := int(payload[5])
    if len(payload) < 6+3*nComp {
        return nil, newErr(MalformedStream, "parseSOF", "SOF component list truncated")
    }
    comps := make([]Component, nComp)
    for i := 0; i < nComp; i++ {
        b := payload[6+3*i:]
        comps[i] = Component{
            ID: b[0], Precision: precision,
            H: int(b[1] >> 4), V: int(b[1] & 0x0f),
            QuantSel: int(b[2]),
        }
    }
    f, err := d.img.NewFrame(process, width, height, precision, comps)
    if err != nil {
        return nil, err
    }
    d.blocks = NewBlockBuffer(f.Components, f.Height)
    maxH, maxV := maxSampling(f.Components)
    d.lines = NewLineBuffer(f.Components, f.Height, maxH+maxV)
    return f, nil
}

func (d *Decoder) parseDHP() (*Frame, error) {
    payload, err := d.readSegment()
    if err != nil {
        return nil, err
    }
    if len(payload) < 6 {
        return nil, newErr(MalformedStream, "parseDHP", "DHP segment too short")
    }
    d.img.hierarchical = true
    d.img.dhpHeight = be16(payload[1:])
    d.img.dhpWidth = be16(payload[3:])
    nComp := int(payload[5])
    comps := make([]Component, nComp)
    for i := 0; i < nComp; i++ {
        b := payload[6+3*i:]
        comps[i] = Component{ID: b[0], H: int(b[1] >> 4), V: int(b[1] & 0x0f), QuantSel: int(b[2])}
    }
    f, err := d.img.NewFrame(dimensionsOnly, d.img.dhpWidth, d.img.dhpHeight, int(payload[0]), comps)
    return f, err
}

func (d *Decoder) parseDQT() error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    for len(payload) > 0 {
        pq := payload[0] >> 4
        tq := payload[0] & 0x0f
        payload = payload[1:]
        qt := &QuantTable{Precision16: pq == 1}
        if pq == 1 {
            for i := 0; i < 64; i++ {
                qt.Values[i] = uint16(be16(payload[2*i:]))
            }
            payload = payload[128:]
        } else {
            for i := 0; i < 64; i++ {
                qt.Values[i] = uint16(payload[i])
            }
            payload = payload[64:]
        }
        if tq > 3 {
            return newErr(InvalidParameter, "parseDQT", "quantization table destination %d out of range", tq)
        }
        d.img.quantTables[tq] = qt
    }
    return nil
}

func (d *Decoder) parseDHT() error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    for len(payload) > 0 {
        tc := payload[0] >> 4
        th := payload[0] & 0x0f
        payload = payload[1:]
        if len(payload) < 16 {
            return newErr(MalformedStream, "parseDHT", "DHT segment truncated before code-length counts")
        }
        counts := payload[:16]
        total := 0
        for _, c := range counts {
            total += int(c)
        }
        if len(payload) < 16+total {
            return newErr(MalformedStream, "parseDHT", "DHT segment truncated before symbol list")
        }
        symbols := payload[16 : 16+total]
        var bits [16][]uint8
        off := 0
        for i := 0; i < 16; i++ {
            n := int(counts[i])
            bits[i] = symbols[off : off+n]
            off += n
        }
        payload = payload[16+total:]
        ht, err := buildHuffmanTable(bits)
        if err != nil {
            return err
        }
        if th > 3 {
            return newErr(InvalidParameter, "parseDHT", "Huffman table destination %d out of range", th)
        }
        if tc == 0 {
            d.img.dcHuffTables[th] = ht
        } else {
            d.img.acHuffTables[th] = ht
        }
    }
    return nil
}

func (d *Decoder) parseDAC() error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    for i := 0; i+1 < len(payload); i += 2 {
        tc := payload[i] >> 4
        tb := payload[i] & 0x0f
        cs := payload[i+1]
        if tb > 3 {
            return newErr(InvalidParameter, "parseDAC", "conditioning destination %d out of range", tb)
        }
        if tc == 0 {
            d.img.dcConditioner[tb] = Conditioner{L: cs & 0x0f, U: cs >> 4}
        } else {
            d.img.acConditioner[tb] = Conditioner{Kx: cs}
        }
    }
    return nil
}

func (d *Decoder) parseDRI() error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    if len(payload) < 2 {
        return newErr(MalformedStream, "parseDRI", "DRI segment too short")
    }
    d.dri = be16(payload)
    return nil
}

func (d *Decoder) parseLSE() error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    if len(payload) < 1 {
        return newErr(MalformedStream, "parseLSE", "LSE segment empty")
    }
    if payload[0] != 1 { // ID=1: preset coding parameters (Annex C.2.4.1.1)
        return nil // mapping-table / thresholds-reset variants not modelled
    }
    if len(payload) < 11 {
        return newErr(MalformedStream, "parseLSE", "LSE preset-parameters segment too short")
    }
    p := lsPresetParameters{
        MaxVal: be16(payload[1:]), T1: be16(payload[3:]),
        T2: be16(payload[5:]), T3: be16(payload[7:]), Reset: be16(payload[9:]),
    }
    d.img.lsParams = &p
    return nil
}

func (d *Decoder) parseDNL(f *Frame) error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    if f == nil || len(payload) < 2 {
        return newErr(MalformedStream, "parseDNL", "DNL with no active frame or truncated segment")
    }
    return f.SetHeight(be16(payload))
}

// parseScan reads the SOS header, constructs the scan and its parser, and
// drives the MCU loop to completion, including restart-marker
// resynchronisation (delegated to scanBase). A DNL segment is not looked
// for inside the scan: the MCU loop runs against the frame height known
// when the scan starts, and Decode's marker loop applies a DNL height
// only after parseScan has returned.
func (d *Decoder) parseScan(f *Frame) error {
    payload, err := d.readSegment()
    if err != nil {
        return err
    }
    if len(payload) < 1 {
        return newErr(MalformedStream, "parseScan", "SOS segment empty")
    }
    ns := int(payload[0])
    refs := make([]scanComponentRef, ns)
    for i := 0; i < ns; i++ {
        b := payload[1+2*i:]
        id := b[0]
        ci := -1
        for idx, c := range f.Components {
            if c.ID == id {
                ci = idx
                break
            }
        }
        if ci < 0 {
            return newErr(MalformedStream, "parseScan", "SOS references unknown component id %d", id)
        }
        refs[i] = scanComponentRef{compIndex: ci, dcSel: int(b[1] >> 4), acSel: int(b[1] & 0x0f)}
    }
    tail := payload[1+2*ns:]
    start, stop, ahal := tail[0], tail[1], tail[2]
    s, err := f.NewScan(refs, start, stop, ahal>>4, ahal&0x0f)
    if err != nil {
        return err
    }
    s.restartInterval = d.dri
    if f.Process == JPEGLS {
        s.lsInterleave = int(start)
        s.near = int(stop)
    }

    parser, err := newParserFor(s, d.img, d.blocks, d.lines)
    if err != nil {
        return err
    }
    s.parser = parser
    if err := parser.StartRead(d.data, d.pos); err != nil {
        return err
    }
    for {
        more, err := parser.StartMCURow()
        if err != nil {
            return err
        }
        if !more {
            break
        }
        for {
            cont, err := parser.ParseMCU()
            if err != nil {
                if ce, ok := err.(*CodecError); ok && ce.Kind == OutOfSync {
                    d.img.warn(OutOfSync, "parseScan", "scan %d lost restart sync, ending scan early", s.id)
                    cont = false
                } else {
                    return err
                }
            }
            if !cont {
                break
            }
        }
    }
    if err := parser.Flush(true); err != nil {
        return err
    }
    d.pos = d.scanEndOffset(s)
    return nil
}

// scanEndOffset recovers the absolute byte position following a scan's
// entropy-coded segment so the marker-level loop can resume: Huffman
// variants expose it through their bit reader's byte source, arithmetic
// variants through the qmDecoder's Pos.
func (d *Decoder) scanEndOffset(s *Scan) int {
    switch p := s.parser.(type) {
    case *HiddenRefinementParser:
        // Self-contained side stream: the main codestream position
        // never advanced on its account.
        return d.pos
    case *HiddenResidualParser:
        return d.pos
    case *SequentialHuffmanParser:
        return p.reader.src.Offset()
    case *ProgressiveDCParser:
        return p.reader.src.Offset()
    case *ProgressiveACParser:
        return p.reader.src.Offset()
    case *LosslessHuffmanParser:
        return p.reader.src.Offset()
    case *JPEGLSParser:
        return p.reader.src.Offset()
    case *SequentialArithmeticParser:
        return p.dec.Pos()
    case *LosslessArithmeticParser:
        return p.dec.Pos()
    case *ProgressiveArithmeticDCParser:
        return p.dec.Pos()
    case *ProgressiveArithmeticACParser:
        return p.dec.Pos()
    }
    return d.pos
}
