package jpeg

// SequentialHuffmanParser implements §4.3.1: per block, DC is coded as a
// (size, value) difference from the previous DC of the same component
// (reset at restart, or at the start of every MCU row in differential
// mode); AC follows the canonical (run, size) alphabet with EOB/ZRL.
type SequentialHuffmanParser struct {
    scanBase

    dcTables []*HuffmanTable // indexed by position in scan.comps
    acTables []*HuffmanTable

    prevDC []int32 // one predictor per scan component

    differential bool
    lowBit       uint8

    measure *huffmanStats // non-nil while StartMeasure is active
}

// huffmanStats holds the per-symbol frequency counters StartMeasure
// allocates. blockEncode does not fill them: while measuring, symbols are
// still written through the bit writer and the counters stay zero.
type huffmanStats struct {
    dcFreq [][256]int
    acFreq [][256]int
}

func newSequentialHuffmanParser(s *Scan, img *Image, blocks *BlockBuffer,
    dc, ac []*HuffmanTable) *SequentialHuffmanParser {
    return &SequentialHuffmanParser{
        scanBase:     scanBase{scan: s, image: img, blocks: blocks},
        dcTables:     dc, acTables: ac,
        prevDC:       make([]int32, len(s.comps)),
        differential: s.frame.Process.isDifferential(),
        lowBit:       s.lowBit,
    }
}

func (p *SequentialHuffmanParser) StartRead(data []byte, pos int) error {
    p.reader = newHuffmanBitReader(data, pos)
    p.bytePos = pos
    for i := range p.prevDC {
        p.prevDC[i] = 0
    }
    p.resetRestartCounter()
    return nil
}

func (p *SequentialHuffmanParser) StartWrite(sink *stuffingWriter) error {
    p.writer = newHuffmanBitWriter(sink)
    for i := range p.prevDC {
        p.prevDC[i] = 0
    }
    p.resetRestartCounter()
    return nil
}

func (p *SequentialHuffmanParser) StartMeasure() error {
    p.measure = &huffmanStats{
        dcFreq: make([][256]int, len(p.scan.comps)),
        acFreq: make([][256]int, len(p.scan.comps)),
    }
    return nil
}

func (p *SequentialHuffmanParser) StartMCURow() (bool, error) {
    if p.differential {
        for i := range p.prevDC {
            p.prevDC[i] = 0
        }
    }
    return p.blocks.StartMCUQuantizerRow(p.scan, p.scan.frame.Width), nil
}

func (p *SequentialHuffmanParser) Restart() error {
    for i := range p.prevDC {
        if p.differential {
            p.prevDC[i] = 0
        } else {
            p.prevDC[i] = 0
        }
    }
    if p.reader != nil {
        p.reader.Realign()
    }
    return nil
}

func (p *SequentialHuffmanParser) Flush(final bool) error {
    if p.writer == nil {
        return nil
    }
    return p.writer.Flush()
}

func (p *SequentialHuffmanParser) WriteFrameType() Process { return p.scan.frame.Process }

// blockDecode decodes one block's DC + AC coefficients for scan-component
// index si into dst, in zig-zag order.
func (p *SequentialHuffmanParser) blockDecode(si int, dst *qblock) error {
    diff, err := readDCDiff(p.dcTables[si], p.reader)
    if err != nil {
        return err
    }
    p.prevDC[si] += diff
    dst[0] = p.prevDC[si] << p.lowBit

    k := 1
    ac := p.acTables[si]
    for k <= 63 {
        rs, err := readHuffmanValue(ac, p.reader)
        if err != nil {
            return err
        }
        run := int(rs >> 4)
        size := rs & 0x0f
        if rs == acEOB {
            break
        }
        if rs == acZRL {
            k += 16
            continue
        }
        k += run
        if k > 63 {
            return newErr(MalformedStream, "blockDecode", "AC run overflows block at k=%d", k)
        }
        bits, err := p.reader.GetBits(size)
        if err != nil {
            return err
        }
        dst[k] = extend(bits, size) << p.lowBit
        k++
    }
    return nil
}

func (p *SequentialHuffmanParser) blockEncode(si int, src *qblock) error {
    diff := src[0] - p.prevDC[si]
    p.prevDC[si] = src[0]
    if err := writeDCDiff(p.dcTables[si], p.writer, diff); err != nil {
        return err
    }
    ac := p.acTables[si]
    run := 0
    for k := 1; k <= 63; k++ {
        v := src[k]
        if v == 0 {
            run++
            continue
        }
        for run >= 16 {
            if err := writeHuffmanSymbol(ac, p.writer, acZRL); err != nil {
                return err
            }
            run -= 16
        }
        size := category(v)
        if err := writeHuffmanSymbol(ac, p.writer, uint8(run<<4)|size); err != nil {
            return err
        }
        if err := p.writer.PutBits(magnitudeBits(v, size), size); err != nil {
            return err
        }
        run = 0
    }
    if run > 0 {
        return writeHuffmanSymbol(ac, p.writer, acEOB)
    }
    return nil
}

// ParseMCU decodes one MCU: the (Hi*Vi) blocks of every component in scan
// order for an interleaved scan, or one block for a non-interleaved scan.
func (p *SequentialHuffmanParser) ParseMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        n := c.H * c.V
        if len(p.scan.comps) == 1 {
            n = 1
        }
        row := p.blocks.CurrentQuantizedRow(ref.compIndex)
        if row == nil {
            return false, newErr(MalformedStream, "ParseMCU", "no block row allocated for component %d", ref.compIndex)
        }
        anchor := p.blocks.BlockColumn(ref.compIndex, n)
        for u := 0; u < n; u++ {
            idx := anchor + u
            if idx >= len(row) {
                idx = len(row) - 1
            }
            if err := p.blockDecode(si, &row[idx]); err != nil {
                return false, err
            }
        }
    }
    hit := p.consumeMCU()
    if hit {
        if err := p.resyncToRestart(); err != nil {
            return false, err
        }
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

func (p *SequentialHuffmanParser) WriteMCU() (bool, error) {
    for si, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        n := c.H * c.V
        if len(p.scan.comps) == 1 {
            n = 1
        }
        row := p.blocks.CurrentQuantizedRow(ref.compIndex)
        if row == nil {
            return false, newErr(MalformedStream, "WriteMCU", "no block row allocated for component %d", ref.compIndex)
        }
        anchor := p.blocks.BlockColumn(ref.compIndex, n)
        for u := 0; u < n; u++ {
            idx := anchor + u
            if idx >= len(row) {
                idx = len(row) - 1
            }
            if err := p.blockEncode(si, &row[idx]); err != nil {
                return false, err
            }
        }
    }
    hit := p.consumeMCU()
    if hit {
        if err := p.writeRestartMarker(); err != nil {
            return false, err
        }
        if err := p.Restart(); err != nil {
            return false, err
        }
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}
