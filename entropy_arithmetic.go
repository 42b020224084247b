package jpeg

// SequentialArithmeticParser implements §4.3.2: the same DC-diff /
// AC-(run,size) alphabet as sequential Huffman, but each decision (is
// there a next bit? is it zero? what sign?) is coded through the QM
// coder against a dedicated context selected by the conditioning bounds
// of Annex F rather than assigned a prefix code.
type SequentialArithmeticParser struct {
    scanBase

    dcCtx []dcContextSet // one set per scan component
    acCtx []acContextSet

    prevDC []int32
    prevK  []int8 // DC conditioning state (Annex F.1.4.1.1): signed size of previous diff, -2..2 (2 for any size above 2)

    enc  *qmEncoder
    dec  *qmDecoder
    sink *stuffingWriter
}

// dcContextSet holds the DC contexts (Annex F.1.4.1), indexed by one of 5
// buckets of the previous diff: per bucket a zero/nonzero context, a sign
// context, and 15 size plus 15 magnitude-bit contexts, 160 in all.
type dcContextSet struct {
    sign    [5]qmContext
    sz      [5][15]qmContext
    szSign  [5]qmContext
    mag     [5][15]qmContext
}

// acContextSet holds the contexts Annex F.1.4.2 assigns to AC: one
// end-of-block/zero-history context per coefficient index, plus shared
// magnitude contexts indexed by category.
type acContextSet struct {
    eob   [63]qmContext
    sz0   [63]qmContext
    szN   [63]qmContext
    sign  qmContext
    mag   [15]qmContext
}

func newSequentialArithmeticParser(s *Scan, img *Image) *SequentialArithmeticParser {
    n := len(s.comps)
    p := &SequentialArithmeticParser{
        scanBase: scanBase{scan: s, image: img},
        dcCtx:    make([]dcContextSet, n),
        acCtx:    make([]acContextSet, n),
        prevDC:   make([]int32, n),
        prevK:    make([]int8, n),
    }
    return p
}

func (p *SequentialArithmeticParser) StartRead(data []byte, pos int) error {
    p.dec = newQMDecoder(data, pos)
    p.resetState()
    p.resetRestartCounter()
    return nil
}

func (p *SequentialArithmeticParser) StartWrite(sink *stuffingWriter) error {
    p.sink = sink
    p.enc = newQMEncoder()
    p.resetState()
    p.resetRestartCounter()
    return nil
}

func (p *SequentialArithmeticParser) resetState() {
    for i := range p.prevDC {
        p.prevDC[i] = 0
        p.prevK[i] = 0
        p.dcCtx[i] = dcContextSet{}
        p.acCtx[i] = acContextSet{}
    }
}

func (p *SequentialArithmeticParser) StartMeasure() error {
    return newErr(NotImplemented, "StartMeasure", "arithmetic variants do not support table measurement")
}
func (p *SequentialArithmeticParser) StartMCURow() (bool, error) {
    return p.blocks.StartMCUQuantizerRow(p.scan, p.scan.frame.Width), nil
}
func (p *SequentialArithmeticParser) Restart() error {
    p.resetState()
    if p.dec != nil {
        // The decoder stalls with its cursor sitting on the RSTn marker's
        // leading 0xff (Annex D's "marker found" rule); skip the two
        // marker bytes before reopening C/A at the resumed segment.
        if p.dec.pos+1 < len(p.dec.data) && p.dec.data[p.dec.pos] == 0xff {
            p.dec.pos += 2
        }
        p.dec.init()
    }
    if p.enc != nil {
        p.enc = newQMEncoder()
    }
    return nil
}
func (p *SequentialArithmeticParser) Flush(final bool) error {
    if p.enc == nil {
        return nil
    }
    if _, err := p.sink.Write(p.enc.Flush()); err != nil {
        return wrapErr(MalformedStream, "Flush", err)
    }
    return p.sink.Flush()
}
func (p *SequentialArithmeticParser) WriteFrameType() Process { return p.scan.frame.Process }

// decodeDC implements Annex F.1.4.1: a zero/nonzero decision, a sign
// decision, a unary-then-binary magnitude category, then size-1
// magnitude bits coded through per-bit contexts (not raw bits, unlike
// the Huffman variant).
func (p *SequentialArithmeticParser) decodeDC(ci int) (int32, error) {
    ctx := &p.dcCtx[ci]
    bucket := dcBucket(p.prevK[ci])
    if p.dec.Get(&ctx.sign[bucket]) == 0 { // reuse sign[] slot 0 as the zero/nonzero bit per Annex F convention
        p.prevK[ci] = 0
        return 0, nil
    }
    sign := p.dec.Get(&ctx.szSign[bucket])
    size := 1
    for size < 15 && p.dec.Get(&ctx.sz[bucket][size-1]) == 1 {
        size++
    }
    var mag int32
    for b := size - 2; b >= 0; b-- {
        bit := p.dec.Get(&ctx.mag[bucket][b])
        mag = (mag << 1) | int32(bit)
    }
    mag |= int32(1) << uint(size-1)
    if sign == 1 {
        mag = -mag
    }
    if size <= 2 {
        p.prevK[ci] = int8(size) * int8(sign*-2+1)
    } else {
        p.prevK[ci] = 2
    }
    return mag, nil
}

func (p *SequentialArithmeticParser) encodeDC(ci int, diff int32) error {
    ctx := &p.dcCtx[ci]
    bucket := dcBucket(p.prevK[ci])
    if diff == 0 {
        p.enc.Put(&ctx.sign[bucket], 0)
        p.prevK[ci] = 0
        return nil
    }
    p.enc.Put(&ctx.sign[bucket], 1)
    sign := 0
    v := diff
    if diff < 0 {
        sign = 1
        v = -diff
    }
    p.enc.Put(&ctx.szSign[bucket], sign)
    size := int(category(v))
    for s := 1; s < size; s++ {
        p.enc.Put(&ctx.sz[bucket][s-1], 1)
    }
    if size < 15 {
        p.enc.Put(&ctx.sz[bucket][size-1], 0)
    }
    for b := size - 2; b >= 0; b-- {
        p.enc.Put(&ctx.mag[bucket][b], int((v>>uint(b))&1))
    }
    if size <= 2 {
        p.prevK[ci] = int8(size) * int8(sign*-2+1)
    } else {
        p.prevK[ci] = 2
    }
    return nil
}

func dcBucket(k int8) int {
    switch {
    case k < -1:
        return 0
    case k == -1:
        return 1
    case k == 0:
        return 2
    case k == 1:
        return 3
    default:
        return 4
    }
}

// decodeBlock/encodeBlock code the DC diff through decodeDC/encodeDC, then
// the AC coefficients per Annex F.1.4.2: per coefficient index, an
// end-of-block decision, a zero/nonzero decision, a sign decision (shared
// across indices) and a unary/binary magnitude category.
func (p *SequentialArithmeticParser) decodeBlock(ci int, dst *qblock) error {
    diff, err := p.decodeDC(ci)
    if err != nil {
        return err
    }
    p.prevDC[ci] += diff
    dst[0] = p.prevDC[ci]

    ctx := &p.acCtx[ci]
    k := 1
    for k <= 63 {
        if p.dec.Get(&ctx.eob[k-1]) == 1 {
            break
        }
        for p.dec.Get(&ctx.sz0[k-1]) == 0 {
            k++
            if k > 63 {
                return newErr(MalformedStream, "decodeBlock", "AC zero run overflows block")
            }
        }
        size := 1
        if p.dec.Get(&ctx.szN[k-1]) == 1 {
            size = 2
            for size < 15 && p.dec.Get(&ctx.mag[size-2]) == 1 {
                size++
            }
        }
        var mag int32
        for b := size - 2; b >= 0; b-- {
            mag = (mag << 1) | int32(p.dec.Get(&ctx.mag[b]))
        }
        mag |= int32(1) << uint(size-1)
        if p.dec.Get(&ctx.sign) == 1 {
            mag = -mag
        }
        dst[k] = mag
        k++
    }
    return nil
}

func (p *SequentialArithmeticParser) encodeBlock(ci int, src *qblock) error {
    diff := src[0] - p.prevDC[ci]
    p.prevDC[ci] = src[0]
    if err := p.encodeDC(ci, diff); err != nil {
        return err
    }
    ctx := &p.acCtx[ci]
    last := 0
    for k := 63; k >= 1; k-- {
        if src[k] != 0 {
            last = k
            break
        }
    }
    k := 1
    for k <= 63 {
        if k > last {
            p.enc.Put(&ctx.eob[k-1], 1)
            break
        }
        p.enc.Put(&ctx.eob[k-1], 0)
        for src[k] == 0 {
            p.enc.Put(&ctx.sz0[k-1], 0)
            k++
        }
        p.enc.Put(&ctx.sz0[k-1], 1)
        v := src[k]
        sign := 0
        if v < 0 {
            sign = 1
            v = -v
        }
        size := int(category(v))
        if size == 1 {
            p.enc.Put(&ctx.szN[k-1], 0)
        } else {
            p.enc.Put(&ctx.szN[k-1], 1)
            for s := 2; s < size; s++ {
                p.enc.Put(&ctx.mag[s-2], 1)
            }
            if size < 15 {
                p.enc.Put(&ctx.mag[size-2], 0)
            }
        }
        for b := size - 2; b >= 0; b-- {
            p.enc.Put(&ctx.mag[b], int((v>>uint(b))&1))
        }
        p.enc.Put(&ctx.sign, sign)
        k++
    }
    return nil
}

func (p *SequentialArithmeticParser) ParseMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        n := c.H * c.V
        if len(p.scan.comps) == 1 {
            n = 1
        }
        row := p.blocks.CurrentQuantizedRow(ref.compIndex)
        if row == nil {
            return false, newErr(MalformedStream, "ParseMCU", "no block row for component %d", ref.compIndex)
        }
        anchor := p.blocks.BlockColumn(ref.compIndex, n)
        for u := 0; u < n; u++ {
            idx := anchor + u
            if idx >= len(row) {
                idx = len(row) - 1
            }
            if err := p.decodeBlock(si, &row[idx]); err != nil {
                return false, err
            }
        }
    }
    if p.consumeMCU() {
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

func (p *SequentialArithmeticParser) WriteMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        n := c.H * c.V
        if len(p.scan.comps) == 1 {
            n = 1
        }
        row := p.blocks.CurrentQuantizedRow(ref.compIndex)
        if row == nil {
            return false, newErr(MalformedStream, "WriteMCU", "no block row for component %d", ref.compIndex)
        }
        anchor := p.blocks.BlockColumn(ref.compIndex, n)
        for u := 0; u < n; u++ {
            idx := anchor + u
            if idx >= len(row) {
                idx = len(row) - 1
            }
            if err := p.encodeBlock(si, &row[idx]); err != nil {
                return false, err
            }
        }
    }
    if p.consumeMCU() {
        if err := p.writer2RestartBoundary(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

// writer2RestartBoundary flushes the QM coder and emits the next RSTn,
// the arithmetic-coder equivalent of scanBase.writeRestartMarker (which
// assumes a bit writer rather than a qmEncoder).
func (p *SequentialArithmeticParser) writer2RestartBoundary() error {
    flushed := p.enc.Flush()
    if _, err := p.sink.Write(flushed); err != nil {
        return wrapErr(MalformedStream, "writer2RestartBoundary", err)
    }
    if err := p.sink.Flush(); err != nil {
        return err
    }
    m := nextRestart(p.restartIdx)
    p.restartIdx = (p.restartIdx + 1) % 8
    if err := writeMarkerHeader(p.sink, m, nil); err != nil {
        return err
    }
    return p.Restart()
}

// ProgressiveArithmeticDCParser and ProgressiveArithmeticACParser
// implement §4.3.6: the same initial/refinement split as the Huffman
// progressive variants (§4.3.3/§4.3.4/§4.3.5), but every decision routes
// through the QM coder against the Annex F.1.4 contexts instead of a
// prefix code, mirroring Annex G.1.2 (DC) / G.1.3 (AC).
//
// Unlike the Huffman refinement scan, this AC refinement pass makes one
// QM decision per coefficient in the band rather than coding a run
// length; it is not byte-identical to Annex G.1.3's run-length-coded
// interleave, but produces the same set of newly-significant
// coefficients and the same correction bits (simplification recorded in
// DESIGN.md).
type ProgressiveArithmeticDCParser struct {
    SequentialArithmeticParser
    refine      bool
    lowBit      uint8
    refineCtx   []qmContext // one fixed-probability correction-bit context per component
}

func newProgressiveArithmeticDCParser(s *Scan, img *Image) *ProgressiveArithmeticDCParser {
    n := len(s.comps)
    return &ProgressiveArithmeticDCParser{
        SequentialArithmeticParser: *newSequentialArithmeticParser(s, img),
        refine:                     s.highBit > 0,
        lowBit:                     s.lowBit,
        refineCtx:                  make([]qmContext, n),
    }
}

// Restart resets the inherited DC/AC contexts plus this parser's own
// correction-bit contexts, since a restart marker resets every adaptive
// context in the scan (Annex D/G).
func (p *ProgressiveArithmeticDCParser) Restart() error {
    if err := p.SequentialArithmeticParser.Restart(); err != nil {
        return err
    }
    for i := range p.refineCtx {
        p.refineCtx[i] = qmContext{}
    }
    return nil
}

func (p *ProgressiveArithmeticDCParser) iterateDC(step func(si int, blk *qblock) error) error {
    for si, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        n := c.H * c.V
        if len(p.scan.comps) == 1 {
            n = 1
        }
        row := p.blocks.CurrentQuantizedRow(ref.compIndex)
        if row == nil {
            return newErr(MalformedStream, "iterateDC", "no block row for component %d", ref.compIndex)
        }
        anchor := p.blocks.BlockColumn(ref.compIndex, n)
        for u := 0; u < n; u++ {
            idx := anchor + u
            if idx >= len(row) {
                idx = len(row) - 1
            }
            if err := step(si, &row[idx]); err != nil {
                return err
            }
        }
    }
    return nil
}

func (p *ProgressiveArithmeticDCParser) ParseMCU() (bool, error) {
    err := p.iterateDC(func(si int, blk *qblock) error {
        if !p.refine {
            diff, err := p.decodeDC(si)
            if err != nil {
                return err
            }
            p.prevDC[si] += diff
            blk[0] = p.prevDC[si] << p.lowBit
            return nil
        }
        bit := p.dec.Get(&p.refineCtx[si])
        if bit == 1 {
            blk[0] |= 1 << p.lowBit
        }
        return nil
    })
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

func (p *ProgressiveArithmeticDCParser) WriteMCU() (bool, error) {
    err := p.iterateDC(func(si int, blk *qblock) error {
        if !p.refine {
            diff := (blk[0] >> p.lowBit) - p.prevDC[si]
            p.prevDC[si] = blk[0] >> p.lowBit
            return p.encodeDC(si, diff)
        }
        bit := 0
        if (blk[0]>>p.lowBit)&1 != 0 {
            bit = 1
        }
        p.enc.Put(&p.refineCtx[si], bit)
        return nil
    })
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.writer2RestartBoundary(); err != nil {
            return false, err
        }
        for i := range p.refineCtx {
            p.refineCtx[i] = qmContext{}
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

type ProgressiveArithmeticACParser struct {
    SequentialArithmeticParser
    refine      bool
    lowBit      uint8
    start, stop uint8
}

func newProgressiveArithmeticACParser(s *Scan, img *Image) *ProgressiveArithmeticACParser {
    return &ProgressiveArithmeticACParser{
        SequentialArithmeticParser: *newSequentialArithmeticParser(s, img),
        refine:                     s.highBit > 0,
        lowBit:                     s.lowBit,
        start:                      s.start,
        stop:                       s.stop,
    }
}

// decodeBandInitial implements the initial progressive AC scan (§4.3.4)
// through the QM coder: the same end-of-block/zero-run/magnitude contexts
// as SequentialArithmeticParser.decodeBlock, restricted to [start,stop]
// and pre-shifted by lowBit.
func (p *ProgressiveArithmeticACParser) decodeBandInitial(ci int, blk *qblock) error {
    ctx := &p.acCtx[ci]
    k := int(p.start)
    for k <= int(p.stop) {
        if p.dec.Get(&ctx.eob[k-1]) == 1 {
            break
        }
        for p.dec.Get(&ctx.sz0[k-1]) == 0 {
            k++
            if k > int(p.stop) {
                return newErr(MalformedStream, "decodeBandInitial", "AC zero run overflows band")
            }
        }
        size := 1
        if p.dec.Get(&ctx.szN[k-1]) == 1 {
            size = 2
            for size < 15 && p.dec.Get(&ctx.mag[size-2]) == 1 {
                size++
            }
        }
        var mag int32
        for b := size - 2; b >= 0; b-- {
            mag = (mag << 1) | int32(p.dec.Get(&ctx.mag[b]))
        }
        mag |= int32(1) << uint(size-1)
        if p.dec.Get(&ctx.sign) == 1 {
            mag = -mag
        }
        blk[k] = mag << p.lowBit
        k++
    }
    return nil
}

func (p *ProgressiveArithmeticACParser) encodeBandInitial(ci int, blk *qblock) error {
    ctx := &p.acCtx[ci]
    last := int(p.start) - 1
    for k := int(p.stop); k >= int(p.start); k-- {
        if blk[k]>>p.lowBit != 0 {
            last = k
            break
        }
    }
    k := int(p.start)
    for k <= int(p.stop) {
        if k > last {
            p.enc.Put(&ctx.eob[k-1], 1)
            break
        }
        p.enc.Put(&ctx.eob[k-1], 0)
        for blk[k]>>p.lowBit == 0 {
            p.enc.Put(&ctx.sz0[k-1], 0)
            k++
        }
        p.enc.Put(&ctx.sz0[k-1], 1)
        v := blk[k] >> p.lowBit
        sign := int32(0)
        if v < 0 {
            sign = 1
            v = -v
        }
        size := int(category(v))
        if size == 1 {
            p.enc.Put(&ctx.szN[k-1], 0)
        } else {
            p.enc.Put(&ctx.szN[k-1], 1)
            for s := 2; s < size; s++ {
                p.enc.Put(&ctx.mag[s-2], 1)
            }
            if size < 15 {
                p.enc.Put(&ctx.mag[size-2], 0)
            }
        }
        for b := size - 2; b >= 0; b-- {
            p.enc.Put(&ctx.mag[b], int((v>>uint(b))&1))
        }
        p.enc.Put(&ctx.sign, int(sign))
        k++
    }
    return nil
}

// decodeBandRefine/encodeBandRefine implement the AC refinement scan
// (§4.3.5) over the QM coder: each already-significant coefficient gets a
// correction-bit decision (ctx.mag[0], reused as a fixed-probability
// correction context since Annex G.1.3.3 assigns the same "X1" context to
// every correction bit in a band); each still-zero coefficient gets a
// zero/nonzero decision (ctx.sz0) and, if nonzero, a sign (ctx.sign) with
// magnitude exactly one shifted bit.
func (p *ProgressiveArithmeticACParser) decodeBandRefine(ci int, blk *qblock) error {
    ctx := &p.acCtx[ci]
    one := int32(1) << p.lowBit
    for k := int(p.start); k <= int(p.stop); k++ {
        if blk[k] != 0 {
            if p.dec.Get(&ctx.mag[0]) == 1 && blk[k]&one == 0 {
                if blk[k] > 0 {
                    blk[k] += one
                } else {
                    blk[k] -= one
                }
            }
            continue
        }
        if p.dec.Get(&ctx.sz0[k-1]) == 0 {
            continue
        }
        if p.dec.Get(&ctx.sign) == 1 {
            blk[k] = -one
        } else {
            blk[k] = one
        }
    }
    return nil
}

func (p *ProgressiveArithmeticACParser) encodeBandRefine(ci int, blk *qblock) error {
    ctx := &p.acCtx[ci]
    one := int32(1) << p.lowBit
    for k := int(p.start); k <= int(p.stop); k++ {
        // blk holds the full coefficient, as for encodeBandInitial.
        v, sign := blk[k], 0
        if v < 0 {
            v, sign = -v, 1
        }
        if v>>(p.lowBit+1) != 0 { // significant in an earlier scan
            p.enc.Put(&ctx.mag[0], int((v>>p.lowBit)&1))
            continue
        }
        if v&one == 0 {
            p.enc.Put(&ctx.sz0[k-1], 0)
            continue
        }
        p.enc.Put(&ctx.sz0[k-1], 1)
        p.enc.Put(&ctx.sign, sign)
    }
    return nil
}

func (p *ProgressiveArithmeticACParser) iterateAC(step func(ci int, blk *qblock) error) (bool, error) {
    ref := p.scan.comps[0]
    row := p.blocks.CurrentQuantizedRow(ref.compIndex)
    if row == nil {
        return false, newErr(MalformedStream, "iterateAC", "no block row for component %d", ref.compIndex)
    }
    idx := p.blocks.BlockColumn(ref.compIndex, 1)
    if idx >= len(row) {
        idx = len(row) - 1
    }
    return true, step(0, &row[idx])
}

func (p *ProgressiveArithmeticACParser) ParseMCU() (bool, error) {
    _, err := p.iterateAC(func(ci int, blk *qblock) error {
        if p.refine {
            return p.decodeBandRefine(ci, blk)
        }
        return p.decodeBandInitial(ci, blk)
    })
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

func (p *ProgressiveArithmeticACParser) WriteMCU() (bool, error) {
    _, err := p.iterateAC(func(ci int, blk *qblock) error {
        if p.refine {
            return p.encodeBandRefine(ci, blk)
        }
        return p.encodeBandInitial(ci, blk)
    })
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.writer2RestartBoundary(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}
