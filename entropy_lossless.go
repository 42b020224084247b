package jpeg

// losslessPredictor implements T.81 Annex H.1.2's eight predictors,
// selected by the scan header's `start` field (Ss) when the frame process
// is LosslessHuffman or LosslessArithmetic.
func losslessPredictor(sel uint8, a, b, c int32) int32 {
    switch sel {
    case 0:
        return 0 // predictor 0 is only legal for differential frames
    case 1:
        return a
    case 2:
        return b
    case 3:
        return c
    case 4:
        return a + b - c
    case 5:
        return a + (b-c)/2
    case 6:
        return b + (a-c)/2
    case 7:
        return (a + b) / 2
    default:
        return a
    }
}

// LosslessHuffmanParser implements §4.3.7: each sample's prediction
// residual is coded with the identical (size, value) Huffman alphabet as
// a DC difference, against one of Annex H.1.2's eight predictors, reading
// neighbour samples a (left), b (above), c (above-left) from the line
// buffer rather than a block buffer.
type LosslessHuffmanParser struct {
    scanBase
    tables []*HuffmanTable // one per scan component, reusing the DC table slot
    pred   uint8
    pointX []int // per-component current column, reset each row
}

func newLosslessHuffmanParser(s *Scan, img *Image, lines *LineBuffer, tables []*HuffmanTable) *LosslessHuffmanParser {
    return &LosslessHuffmanParser{
        scanBase: scanBase{scan: s, image: img, lines: lines},
        tables:   tables, pred: s.start,
        pointX: make([]int, len(s.comps)),
    }
}

func (p *LosslessHuffmanParser) StartRead(data []byte, pos int) error {
    p.reader = newHuffmanBitReader(data, pos)
    p.resetRestartCounter()
    return nil
}
func (p *LosslessHuffmanParser) StartWrite(sink *stuffingWriter) error {
    p.writer = newHuffmanBitWriter(sink)
    p.resetRestartCounter()
    return nil
}
func (p *LosslessHuffmanParser) StartMeasure() error { return nil }
func (p *LosslessHuffmanParser) StartMCURow() (bool, error) {
    for i, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        p.lines.StartLine(ref.compIndex, c.MCUW*p.scan.frame.Width)
        p.pointX[i] = 0
    }
    return p.lines.curY[p.scan.comps[0].compIndex] <= p.scan.frame.Height, nil
}
func (p *LosslessHuffmanParser) Restart() error {
    if p.reader != nil {
        p.reader.Realign()
    }
    return nil
}
func (p *LosslessHuffmanParser) Flush(final bool) error {
    if p.writer == nil {
        return nil
    }
    return p.writer.Flush()
}
func (p *LosslessHuffmanParser) WriteFrameType() Process { return p.scan.frame.Process }

// neighbours reads (a, b, c) around column x of the component's current
// and previous lines, duplicating edge samples at x==0. Per H.1.2.1 the
// predictor is forced to `a` on the first line (its first sample is
// predicted as 2^(P-1-Pt)) and to `b` on the first column of later lines.
func (p *LosslessHuffmanParser) neighbours(ci, x int) (a, b, c int32, predSel uint8) {
    cur := p.lines.CurrentLine(ci)
    row := p.lines.curY[ci] - 1 // StartLine has already counted the current line
    predSel = p.pred
    if row == 0 {
        if x == 0 {
            return int32(1) << uint(p.scan.frame.Precision-1-int(p.scan.lowBit)), 0, 0, 1 // first sample of the first line: 2^(P-1-Pt)
        }
        return cur.Samples[x-1], 0, 0, 1 // predictor forced to `a` on the first line
    }
    // previous line buffered via DefineRegion/FetchRegion in the general
    // buffer-control layer; lossless scans keep it directly reachable
    // through the line buffer's own two-row history instead.
    prev := p.lines.previous(ci)
    b = prev.Samples[x]
    if x == 0 {
        a = prev.Samples[0] // duplicate edge column
        c = prev.Samples[0]
        predSel = 2 // first column of non-first line: predictor forced to `b`
    } else {
        a = cur.Samples[x-1]
        c = prev.Samples[x-1]
    }
    return a, b, c, predSel
}

func (p *LosslessHuffmanParser) ParseMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        cur := p.lines.CurrentLine(ref.compIndex)
        x := p.pointX[si]
        a, b, c, sel := p.neighbours(ref.compIndex, x)
        pred := losslessPredictor(sel, a, b, c)
        diff, err := readDCDiff(p.tables[si], p.reader)
        if err != nil {
            return false, err
        }
        cur.Samples[x] = pred + diff
        p.pointX[si]++
    }
    more := p.pointX[0] < p.lines.CurrentLine(p.scan.comps[0].compIndex).Width
    if p.consumeMCU() {
        if err := p.resyncToRestart(); err != nil {
            return false, err
        }
        p.Restart()
    }
    if !more {
        for i, ref := range p.scan.comps {
            p.lines.AdvanceLine(ref.compIndex)
            p.pointX[i] = 0
        }
    }
    return more, nil
}

func (p *LosslessHuffmanParser) WriteMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        cur := p.lines.CurrentLine(ref.compIndex)
        x := p.pointX[si]
        a, b, c, sel := p.neighbours(ref.compIndex, x)
        pred := losslessPredictor(sel, a, b, c)
        diff := cur.Samples[x] - pred
        if err := writeDCDiff(p.tables[si], p.writer, diff); err != nil {
            return false, err
        }
        p.pointX[si]++
    }
    more := p.pointX[0] < p.lines.CurrentLine(p.scan.comps[0].compIndex).Width
    if p.consumeMCU() {
        if err := p.writeRestartMarker(); err != nil {
            return false, err
        }
        p.Restart()
    }
    if !more {
        for i, ref := range p.scan.comps {
            p.lines.AdvanceLine(ref.compIndex)
            p.pointX[i] = 0
        }
    }
    return more, nil
}

// LosslessArithmeticParser is the QM-coded sibling of LosslessHuffmanParser:
// the residual's sign and magnitude category are coded through the same
// DC-conditioning context structure as SequentialArithmeticParser's DC
// coding, against the predictor of Annex H.1.2.
type LosslessArithmeticParser struct {
    scanBase
    ctx    []dcContextSet
    prevK  []int8
    pred   uint8
    pointX []int
    enc    *qmEncoder
    dec    *qmDecoder
    sink   *stuffingWriter
}

func newLosslessArithmeticParser(s *Scan, img *Image, lines *LineBuffer) *LosslessArithmeticParser {
    n := len(s.comps)
    return &LosslessArithmeticParser{
        scanBase: scanBase{scan: s, image: img, lines: lines},
        ctx:      make([]dcContextSet, n), prevK: make([]int8, n),
        pred: s.start, pointX: make([]int, n),
    }
}

func (p *LosslessArithmeticParser) StartRead(data []byte, pos int) error {
    p.dec = newQMDecoder(data, pos)
    p.resetRestartCounter()
    return nil
}
func (p *LosslessArithmeticParser) StartWrite(sink *stuffingWriter) error {
    p.sink = sink
    p.enc = newQMEncoder()
    p.resetRestartCounter()
    return nil
}
func (p *LosslessArithmeticParser) StartMeasure() error {
    return newErr(NotImplemented, "StartMeasure", "arithmetic variants do not support table measurement")
}
func (p *LosslessArithmeticParser) StartMCURow() (bool, error) {
    for i, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        p.lines.StartLine(ref.compIndex, c.MCUW*p.scan.frame.Width)
        p.pointX[i] = 0
    }
    return p.lines.curY[p.scan.comps[0].compIndex] <= p.scan.frame.Height, nil
}
func (p *LosslessArithmeticParser) Restart() error {
    for i := range p.prevK {
        p.prevK[i] = 0
        p.ctx[i] = dcContextSet{}
    }
    if p.dec != nil {
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
func (p *LosslessArithmeticParser) Flush(final bool) error {
    if p.enc == nil {
        return nil
    }
    if _, err := p.sink.Write(p.enc.Flush()); err != nil {
        return wrapErr(MalformedStream, "Flush", err)
    }
    return p.sink.Flush()
}
func (p *LosslessArithmeticParser) WriteFrameType() Process { return p.scan.frame.Process }

func (p *LosslessArithmeticParser) neighbours(ci, x int) (a, b, c int32, predSel uint8) {
    cur := p.lines.CurrentLine(ci)
    row := p.lines.curY[ci] - 1 // StartLine has already counted the current line
    predSel = p.pred
    if row == 0 {
        if x == 0 {
            return int32(1) << uint(p.scan.frame.Precision-1-int(p.scan.lowBit)), 0, 0, 1
        }
        return cur.Samples[x-1], 0, 0, 1
    }
    prev := p.lines.previous(ci)
    b = prev.Samples[x]
    if x == 0 {
        a, c = prev.Samples[0], prev.Samples[0]
        predSel = 2
    } else {
        a = cur.Samples[x-1]
        c = prev.Samples[x-1]
    }
    return a, b, c, predSel
}

func (p *LosslessArithmeticParser) decodeResidual(ci int) (int32, error) {
    ctx := &p.ctx[ci]
    bucket := dcBucket(p.prevK[ci])
    if p.dec.Get(&ctx.sign[bucket]) == 0 {
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
        mag = (mag << 1) | int32(p.dec.Get(&ctx.mag[bucket][b]))
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

func (p *LosslessArithmeticParser) encodeResidual(ci int, diff int32) error {
    ctx := &p.ctx[ci]
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

func (p *LosslessArithmeticParser) ParseMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        cur := p.lines.CurrentLine(ref.compIndex)
        x := p.pointX[si]
        a, b, c, sel := p.neighbours(ref.compIndex, x)
        pred := losslessPredictor(sel, a, b, c)
        diff, err := p.decodeResidual(si)
        if err != nil {
            return false, err
        }
        cur.Samples[x] = pred + diff
        p.pointX[si]++
    }
    more := p.pointX[0] < p.lines.CurrentLine(p.scan.comps[0].compIndex).Width
    if p.consumeMCU() {
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    if !more {
        for i, ref := range p.scan.comps {
            p.lines.AdvanceLine(ref.compIndex)
            p.pointX[i] = 0
        }
    }
    return more, nil
}

func (p *LosslessArithmeticParser) WriteMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        cur := p.lines.CurrentLine(ref.compIndex)
        x := p.pointX[si]
        a, b, c, sel := p.neighbours(ref.compIndex, x)
        pred := losslessPredictor(sel, a, b, c)
        diff := cur.Samples[x] - pred
        if err := p.encodeResidual(si, diff); err != nil {
            return false, err
        }
        p.pointX[si]++
    }
    more := p.pointX[0] < p.lines.CurrentLine(p.scan.comps[0].compIndex).Width
    if p.consumeMCU() {
        flushed := p.enc.Flush()
        if _, err := p.sink.Write(flushed); err != nil {
            return false, wrapErr(MalformedStream, "WriteMCU", err)
        }
        if err := p.sink.Flush(); err != nil {
            return false, err
        }
        m := nextRestart(p.restartIdx)
        p.restartIdx = (p.restartIdx + 1) % 8
        if err := writeMarkerHeader(p.sink, m, nil); err != nil {
            return false, err
        }
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    if !more {
        for i, ref := range p.scan.comps {
            p.lines.AdvanceLine(ref.compIndex)
            p.pointX[i] = 0
        }
    }
    return more, nil
}
