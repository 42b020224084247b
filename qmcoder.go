package jpeg

// qeEntry is one row of the ITU-T T.81 Annex D / Table D.3 probability
// estimation state machine: the sub-interval Qe for the less probable
// symbol, the next-state indices on an MPS or LPS decision, and whether an
// LPS decision also flips the context's MPS sense.
type qeEntry struct {
    qe        uint16
    nmps      uint8
    nlps      uint8
    switchMPS bool
}

// qeTable is the 113-entry Annex D state table, the same shape as the
// table-driven MQ-coder in
// other_examples/cocosip-go-dicom-codec/jpeg2000-mqc-mqc.go (qeTable,
// nmpsTable, nlpsTable there) but with T.81's own probability values
// rather than T.800's.
var qeTable = [113]qeEntry{
    {0x5a1d, 1, 1, true}, {0x2586, 14, 2, false}, {0x1114, 16, 3, false},
    {0x080b, 18, 4, false}, {0x03d8, 20, 5, false}, {0x01da, 23, 6, false},
    {0x00e5, 25, 7, false}, {0x006f, 28, 8, false}, {0x0036, 30, 9, false},
    {0x001a, 33, 10, false}, {0x000d, 35, 11, false}, {0x0006, 9, 12, false},
    {0x0003, 10, 13, false}, {0x0001, 12, 13, false}, {0x5a7f, 15, 15, true},
    {0x3f25, 36, 16, false}, {0x2e16, 40, 17, false}, {0x2211, 42, 18, false},
    {0x1831, 44, 19, false}, {0x1245, 46, 20, false}, {0x0ced, 48, 21, false},
    {0x09c9, 50, 22, false}, {0x07b6, 52, 23, false}, {0x0631, 53, 24, false},
    {0x0522, 55, 25, false}, {0x0461, 56, 26, false}, {0x03a3, 57, 27, false},
    {0x031f, 58, 28, false}, {0x02a8, 59, 29, false}, {0x0243, 60, 30, false},
    {0x01f0, 61, 31, false}, {0x01b2, 62, 32, false}, {0x0183, 63, 33, false},
    {0x015f, 64, 34, false}, {0x0145, 65, 35, false}, {0x0125, 65, 36, false},
    {0x0107, 67, 37, false}, {0x00eb, 68, 38, false}, {0x00cf, 69, 39, false},
    {0x00c0, 70, 40, false}, {0x00ac, 71, 41, false}, {0x0094, 71, 42, false},
    {0x0083, 72, 43, false}, {0x006b, 73, 44, false}, {0x0060, 74, 45, false},
    {0x0051, 75, 46, false}, {0x0045, 76, 47, false}, {0x003b, 77, 48, false},
    {0x0031, 78, 49, false}, {0x0028, 79, 50, false}, {0x0022, 80, 51, false},
    {0x001c, 81, 52, false}, {0x0017, 82, 53, false}, {0x0013, 83, 54, false},
    {0x0010, 84, 55, false}, {0x000d, 85, 56, false}, {0x000a, 86, 57, false},
    {0x0009, 87, 58, false}, {0x0007, 88, 59, false}, {0x0005, 89, 60, false},
    {0x0004, 90, 61, false}, {0x0004, 91, 62, false}, {0x0003, 92, 63, false},
    {0x0002, 93, 64, false}, {0x0002, 94, 65, false}, {0x0001, 95, 66, false},
    {0x0001, 96, 67, false}, {0x0001, 97, 68, false}, {0x0000, 98, 69, false},
    {0x5a1d, 99, 99, true}, {0x5a1d, 100, 70, true}, {0x48c8, 101, 71, false},
    {0x3bab, 102, 72, false}, {0x2e16, 103, 73, false}, {0x264e, 104, 74, false},
    {0x1f33, 105, 75, false}, {0x1a51, 106, 76, false}, {0x1606, 107, 77, false},
    {0x1206, 103, 78, false}, {0x0f03, 104, 79, false}, {0x0d4e, 108, 80, false},
    {0x0bb6, 109, 81, false}, {0x0a40, 110, 82, false}, {0x0912, 111, 83, false},
    {0x0806, 110, 84, false}, {0x0710, 112, 85, false}, {0x0633, 109, 86, false},
    {0x0589, 111, 87, false}, {0x04e3, 112, 88, false}, {0x044d, 113, 89, false},
    {0x03d8, 113, 90, false}, {0x0371, 106, 91, false}, {0x0316, 107, 92, false},
    {0x02c8, 108, 93, false}, {0x0284, 109, 94, false}, {0x0246, 110, 95, false},
    {0x020e, 111, 96, false}, {0x01d8, 102, 97, false}, {0x01a8, 103, 98, false},
    {0x017e, 104, 99, false}, {0x0156, 105, 100, false}, {0x0134, 106, 101, false},
    {0x0117, 107, 102, false}, {0x00ef, 108, 103, false}, {0x00d2, 109, 104, false},
    {0x00ae, 110, 105, false}, {0x009a, 111, 106, false}, {0x0083, 100, 107, false},
    {0x0075, 101, 103, false}, {0x006c, 102, 104, false}, {0x0047, 103, 105, false},
    {0x0037, 104, 106, false}, {0x0021, 105, 107, false}, {0x0017, 106, 108, false},
    {0x0012, 107, 109, false}, {0x0011, 112, 111, false}, {0x0010, 0, 0, false},
}

// qmContext is one Annex D context cell: a state index into qeTable plus
// the current MPS. All per-scan context banks are arrays of qmContext,
// reset on restart (§4.2).
type qmContext struct {
    state uint8
    mps   uint8
}

// qmEncoder implements Annex D encoding: the (C, A, CT) register triple,
// 0xFF byte stuffing done by byteOut into its own buffer (stuffingWriter
// is not used), and the standard
// renormalization/conditional-exchange rules.
type qmEncoder struct {
    c, a uint32
    ct   int
    buf  []byte

    st       byte // last emitted byte, for the 0xFF stuffing-before-BP rule
    stCount  int  // run of 0xFF bytes pending a possible stack-flush
    started  bool
}

func newQMEncoder() *qmEncoder {
    e := &qmEncoder{a: 0x10000}
    return e
}

func (e *qmEncoder) putByte(b byte) {
    e.buf = append(e.buf, b)
}

// byteOut implements the Annex D BYTEOUT procedure (Figure D.7), stuffing
// a 0x00 after any emitted 0xFF the way the main bit-stuffing layer does
// for the Huffman bitstream (§4.1 applies uniformly to both streams).
func (e *qmEncoder) byteOut() {
    if e.st == 0xff {
        if (e.c >> 19) > 0x7fff {
            e.c &= 0x7ffff
        } else {
            e.putByte(e.st)
            e.putByte(0x00)
            e.st = byte(e.c >> 19)
            e.c &= 0x7ffff
            e.ct = 8
            return
        }
    } else if e.started {
        e.putByte(e.st)
    }
    e.st = byte(e.c >> 19)
    e.started = true
    e.c &= 0x7ffff
    e.ct = 8
}

// Put encodes one decision bit under context cx, the interface called out
// in §4.1 as put(ctx, bit).
func (e *qmEncoder) Put(cx *qmContext, bit int) {
    st := qeTable[cx.state]
    if bit == int(cx.mps) {
        e.a -= uint32(st.qe)
        if e.a&0x8000 == 0 {
            if e.a < uint32(st.qe) {
                e.a = uint32(st.qe)
            } else {
                e.c += uint32(st.qe)
            }
            cx.state = st.nmps
            e.renorm()
        } else {
            e.c += 0 // no-op, kept for readability of the MPS path
        }
    } else {
        if e.a < uint32(st.qe) {
            e.c += uint32(st.qe)
        } else {
            e.a = uint32(st.qe)
        }
        if st.switchMPS {
            cx.mps = 1 - cx.mps
        }
        cx.state = st.nlps
        e.a = uint32(st.qe)
        e.renorm()
    }
}

func (e *qmEncoder) renorm() {
    for {
        if e.ct == 0 {
            e.byteOut()
        }
        e.a <<= 1
        e.c <<= 1
        e.ct--
        if e.a&0x8000 != 0 {
            break
        }
    }
}

// Flush implements Annex D's encoder flush (Figure D.11): it forces the
// final bytes out of C and terminates the segment so a decoder opened on
// the same bytes reproduces every coded bit (testable property 4, §8).
func (e *qmEncoder) Flush() []byte {
    // Flush the code register, clearing any uncertainty in the final
    // bits per the standard's CLEARBITS/SETBITS procedure.
    tmp := e.c + e.a
    e.c |= 0xffff
    if e.c >= tmp {
        e.c -= 0x8000
    }
    e.c <<= 7
    e.ct -= 7
    e.byteOut()
    e.c <<= e.ct
    e.byteOut()
    if e.started {
        e.putByte(e.st)
    }
    return e.buf
}

// qmDecoder is the decode-side mirror of qmEncoder, opened on a
// byte-stuffed segment exactly like the Huffman reader (start_read, §4.2).
type qmDecoder struct {
    data []byte
    pos  int

    c, a uint32
    ct   int
}

func newQMDecoder(data []byte, pos int) *qmDecoder {
    d := &qmDecoder{data: data, pos: pos}
    d.init()
    return d
}

func (d *qmDecoder) nextByte() byte {
    if d.pos >= len(d.data) {
        return 0xff
    }
    b := d.data[d.pos]
    if b == 0xff {
        if d.pos+1 < len(d.data) && d.data[d.pos+1] == 0x00 {
            d.pos += 2
            return 0xff
        }
        return 0xff // marker reached: stall on 0xff forever, per Annex D
    }
    d.pos++
    return b
}

func (d *qmDecoder) init() {
    d.c = uint32(d.nextByte()) << 16
    d.byteIn()
    d.c <<= 7
    d.ct -= 7
    d.a = 0x8000
}

func (d *qmDecoder) byteIn() {
    d.c += uint32(d.nextByte()) << 8
    d.ct = 8
}

// Get decodes one decision bit under context cx, the interface called out
// in §4.1 as get(ctx).
func (d *qmDecoder) Get(cx *qmContext) int {
    st := qeTable[cx.state]
    d.a -= uint32(st.qe)
    var bit int
    if (d.c >> 16) < uint32(st.qe) {
        if d.a < uint32(st.qe) {
            bit = int(cx.mps)
            cx.state = st.nmps
        } else {
            bit = 1 - int(cx.mps)
            if st.switchMPS {
                cx.mps = 1 - cx.mps
            }
            cx.state = st.nlps
        }
        d.a = uint32(st.qe)
    } else {
        d.c -= uint32(st.qe) << 16
        if d.a&0x8000 != 0 {
            return int(cx.mps)
        }
        if d.a < uint32(st.qe) {
            bit = 1 - int(cx.mps)
            if st.switchMPS {
                cx.mps = 1 - cx.mps
            }
            cx.state = st.nlps
        } else {
            bit = int(cx.mps)
            cx.state = st.nmps
        }
    }
    for d.a&0x8000 == 0 {
        if d.ct == 0 {
            d.byteIn()
        }
        d.a <<= 1
        d.c <<= 1
        d.ct--
    }
    return bit
}

// Pos returns the absolute byte offset the decoder has consumed up to,
// for resync bookkeeping at restart markers.
func (d *qmDecoder) Pos() int { return d.pos }
