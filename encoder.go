package jpeg

import (
    "encoding/binary"
    "io"
)

// Encoder is the write-side mirror of Decoder: given an already-built
// Image (Frames/Scans/Components/tables populated by the caller, and
// sample data committed into the block/line buffers ahead of time), it
// emits a conformant marker-segment stream (§6).
type Encoder struct {
    img *Image
    w   io.Writer
}

func NewEncoder(img *Image, w io.Writer) *Encoder {
    return &Encoder{img: img, w: w}
}

func (e *Encoder) writeMarker(m marker) error {
    var hdr [2]byte
    binary.BigEndian.PutUint16(hdr[:], uint16(m))
    _, err := e.w.Write(hdr[:])
    return err
}

func (e *Encoder) writeSegment(m marker, payload []byte) error {
    if err := e.writeMarker(m); err != nil {
        return err
    }
    var lenBuf [2]byte
    binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)+2))
    if _, err := e.w.Write(lenBuf[:]); err != nil {
        return err
    }
    _, err := e.w.Write(payload)
    return err
}

// Encode writes SOI, the installed quantisation tables (DQT), then every
// frame (SOF, then per scan its DHT segments, SOS and entropy data), then
// EOI. No DAC, DRI or LSE segment is written.
func (e *Encoder) Encode(blocks *BlockBuffer, lines *LineBuffer) error {
    if err := e.writeMarker(_SOI); err != nil {
        return err
    }
    if err := e.writeQuantTables(); err != nil {
        return err
    }
    for _, f := range e.img.Frames {
        if err := e.writeFrame(f, blocks, lines); err != nil {
            return err
        }
    }
    return e.writeMarker(_EOI)
}

func (e *Encoder) writeQuantTables() error {
    for tq, qt := range e.img.quantTables {
        if qt == nil {
            continue
        }
        var payload []byte
        pq := byte(0)
        if qt.Precision16 {
            pq = 1
        }
        payload = append(payload, pq<<4|byte(tq))
        for _, v := range qt.Values {
            if qt.Precision16 {
                payload = append(payload, byte(v>>8), byte(v))
            } else {
                payload = append(payload, byte(v))
            }
        }
        if err := e.writeSegment(_DQT, payload); err != nil {
            return err
        }
    }
    return nil
}

func sofMarkerFor(p Process) marker {
    switch p {
    case Baseline:
        return _SOF0
    case SequentialHuffman:
        return _SOF1
    case ProgressiveHuffman:
        return _SOF2
    case LosslessHuffman:
        return _SOF3
    case DifferentialSequentialHuffman:
        return _SOF5
    case DifferentialProgressiveHuffman:
        return _SOF6
    case DifferentialLosslessHuffman:
        return _SOF7
    case SequentialArithmetic:
        return _SOF9
    case ProgressiveArithmetic:
        return _SOF10
    case LosslessArithmetic:
        return _SOF11
    case DifferentialSequentialArithmetic:
        return _SOF13
    case DifferentialProgressiveArithmetic:
        return _SOF14
    case DifferentialLosslessArithmetic:
        return _SOF15
    case JPEGLS:
        return _SOFLS
    }
    return _SOF0
}

func (e *Encoder) writeFrame(f *Frame, blocks *BlockBuffer, lines *LineBuffer) error {
    if f.Process == dimensionsOnly {
        return e.writeDHP(f)
    }
    payload := []byte{byte(f.Precision), byte(f.Height >> 8), byte(f.Height), byte(f.Width >> 8), byte(f.Width), byte(len(f.Components))}
    for _, c := range f.Components {
        payload = append(payload, c.ID, byte(c.H<<4|c.V), byte(c.QuantSel))
    }
    if err := e.writeSegment(sofMarkerFor(f.Process), payload); err != nil {
        return err
    }
    for _, s := range f.Scans {
        if err := e.writeScan(s, blocks, lines); err != nil {
            return err
        }
    }
    return nil
}

func (e *Encoder) writeDHP(f *Frame) error {
    payload := []byte{byte(f.Precision), byte(f.Height >> 8), byte(f.Height), byte(f.Width >> 8), byte(f.Width), byte(len(f.Components))}
    for _, c := range f.Components {
        payload = append(payload, c.ID, byte(c.H<<4|c.V), byte(c.QuantSel))
    }
    return e.writeSegment(_DHP, payload)
}

// writeScan emits the Huffman tables the scan's components reference (each
// once per scan; a table used by several scans is written again for each),
// then the SOS header, then drives the entropy parser's write loop to
// completion.
func (e *Encoder) writeScan(s *Scan, blocks *BlockBuffer, lines *LineBuffer) error {
    // A hidden refinement/residual scan (§4.3.9) is never announced by
    // its own SOS in the main codestream: it carries no visible marker
    // segment at all, only the APP9 it commits to after its side buffer
    // is filled.
    hidden := s.frame.Process.isDifferential() && (s.frame.hidden != nil || s.frame.residual != nil)
    if !hidden {
        if err := e.writeHuffmanTables(s); err != nil {
            return err
        }
        payload := []byte{byte(len(s.comps))}
        for _, ref := range s.comps {
            c := s.frame.Components[ref.compIndex]
            payload = append(payload, c.ID, byte(ref.dcSel<<4|ref.acSel))
        }
        payload = append(payload, s.start, s.stop, s.highBit<<4|s.lowBit)
        if err := e.writeSegment(_SOS, payload); err != nil {
            return err
        }
    }

    parser, err := newParserFor(s, e.img, blocks, lines)
    if err != nil {
        return err
    }
    s.parser = parser
    sink := newStuffingWriter(e.w)
    if err := parser.StartWrite(sink); err != nil {
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
            cont, err := parser.WriteMCU()
            if err != nil {
                return err
            }
            if !cont {
                break
            }
        }
    }
    if err := parser.Flush(true); err != nil {
        return err
    }
    if !hidden {
        return nil
    }
    var side *hiddenSideStream
    if s.frame.residual != nil {
        side = s.frame.residual
    } else {
        side = s.frame.hidden
    }
    return e.writeSegment(_APP9, side.buf)
}

func (e *Encoder) writeHuffmanTables(s *Scan) error {
    seen := map[int]bool{}
    for _, ref := range s.comps {
        if !seen[ref.dcSel] {
            seen[ref.dcSel] = true
            if ht := e.img.dcHuffTables[ref.dcSel]; ht != nil {
                if err := e.writeOneHuffmanTable(0, ref.dcSel, ht); err != nil {
                    return err
                }
            }
        }
        if !seen[1000+ref.acSel] {
            seen[1000+ref.acSel] = true
            if ht := e.img.acHuffTables[ref.acSel]; ht != nil {
                if err := e.writeOneHuffmanTable(1, ref.acSel, ht); err != nil {
                    return err
                }
            }
        }
    }
    return nil
}

func (e *Encoder) writeOneHuffmanTable(tc int, th int, ht *HuffmanTable) error {
    payload := []byte{byte(tc<<4 | th)}
    for _, list := range ht.Bits {
        payload = append(payload, byte(len(list)))
    }
    for _, list := range ht.Bits {
        payload = append(payload, list...)
    }
    return e.writeSegment(_DHT, payload)
}
