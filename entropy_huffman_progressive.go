package jpeg

// ProgressiveDCParser implements §4.3.3: the first DC scan codes the same
// (size, value) alphabet as sequential, but the DC is pre-shifted right by
// lowBit; later DC refinement scans code a single unmodelled bit per
// block.
type ProgressiveDCParser struct {
    scanBase
    dcTables []*HuffmanTable
    prevDC   []int32
    refine   bool // true once highBit > 0, i.e. a refinement scan
    lowBit   uint8
}

func newProgressiveDCParser(s *Scan, img *Image, blocks *BlockBuffer, dc []*HuffmanTable) *ProgressiveDCParser {
    return &ProgressiveDCParser{
        scanBase: scanBase{scan: s, image: img, blocks: blocks},
        dcTables: dc, prevDC: make([]int32, len(s.comps)),
        refine: s.highBit > 0, lowBit: s.lowBit,
    }
}

func (p *ProgressiveDCParser) StartRead(data []byte, pos int) error {
    p.reader = newHuffmanBitReader(data, pos)
    for i := range p.prevDC {
        p.prevDC[i] = 0
    }
    p.resetRestartCounter()
    return nil
}
func (p *ProgressiveDCParser) StartWrite(sink *stuffingWriter) error {
    p.writer = newHuffmanBitWriter(sink)
    for i := range p.prevDC {
        p.prevDC[i] = 0
    }
    p.resetRestartCounter()
    return nil
}
func (p *ProgressiveDCParser) StartMeasure() error { return nil }
func (p *ProgressiveDCParser) StartMCURow() (bool, error) {
    return p.blocks.StartMCUQuantizerRow(p.scan, p.scan.frame.Width), nil
}
func (p *ProgressiveDCParser) Restart() error {
    for i := range p.prevDC {
        p.prevDC[i] = 0
    }
    if p.reader != nil {
        p.reader.Realign()
    }
    return nil
}
func (p *ProgressiveDCParser) Flush(final bool) error {
    if p.writer == nil {
        return nil
    }
    return p.writer.Flush()
}
func (p *ProgressiveDCParser) WriteFrameType() Process { return p.scan.frame.Process }

func (p *ProgressiveDCParser) iterate(step func(si int, blk *qblock) error) (bool, error) {
    for si, ref := range p.scan.comps {
        c := p.scan.frame.Components[ref.compIndex]
        n := c.H * c.V
        if len(p.scan.comps) == 1 {
            n = 1
        }
        row := p.blocks.CurrentQuantizedRow(ref.compIndex)
        if row == nil {
            return false, newErr(MalformedStream, "iterate", "no block row for component %d", ref.compIndex)
        }
        anchor := p.blocks.BlockColumn(ref.compIndex, n)
        for u := 0; u < n; u++ {
            idx := anchor + u
            if idx >= len(row) {
                idx = len(row) - 1
            }
            if err := step(si, &row[idx]); err != nil {
                return false, err
            }
        }
    }
    return true, nil
}

func (p *ProgressiveDCParser) ParseMCU() (bool, error) {
    more, err := p.iterate(func(si int, blk *qblock) error {
        if !p.refine {
            diff, err := readDCDiff(p.dcTables[si], p.reader)
            if err != nil {
                return err
            }
            p.prevDC[si] += diff
            blk[0] = p.prevDC[si] << p.lowBit
            return nil
        }
        bit, err := p.reader.GetBit()
        if err != nil {
            return err
        }
        if bit {
            blk[0] |= 1 << p.lowBit
        }
        return nil
    })
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.resyncToRestart(); err != nil {
            return false, err
        }
        p.Restart()
    }
    return more && (p.mcusToGo != 0 || p.scan.restartInterval == 0), nil
}

func (p *ProgressiveDCParser) WriteMCU() (bool, error) {
    more, err := p.iterate(func(si int, blk *qblock) error {
        if !p.refine {
            diff := (blk[0] >> p.lowBit) - p.prevDC[si]
            p.prevDC[si] = blk[0] >> p.lowBit
            return writeDCDiff(p.dcTables[si], p.writer, diff)
        }
        bit := (blk[0]>>p.lowBit)&1 != 0
        return p.writer.PutBits(b2u(bit), 1)
    })
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.writeRestartMarker(); err != nil {
            return false, err
        }
        p.Restart()
    }
    return more && (p.mcusToGo != 0 || p.scan.restartInterval == 0), nil
}

func b2u(b bool) uint32 {
    if b {
        return 1
    }
    return 0
}

// ProgressiveACParser implements §4.3.4 (initial scan) and §4.3.5
// (refinement scan) over a single component. eobRun carries an EOBn run
// of all-zero remainders across block boundaries within the scan.
type ProgressiveACParser struct {
    scanBase
    acTable *HuffmanTable
    refine  bool
    start, stop, lowBit, highBit uint8
    eobRun  int
}

func newProgressiveACParser(s *Scan, img *Image, blocks *BlockBuffer, ac *HuffmanTable) *ProgressiveACParser {
    return &ProgressiveACParser{
        scanBase: scanBase{scan: s, image: img, blocks: blocks},
        acTable:  ac, refine: s.highBit > 0,
        start: s.start, stop: s.stop, lowBit: s.lowBit, highBit: s.highBit,
    }
}

func (p *ProgressiveACParser) StartRead(data []byte, pos int) error {
    p.reader = newHuffmanBitReader(data, pos)
    p.eobRun = 0
    p.resetRestartCounter()
    return nil
}
func (p *ProgressiveACParser) StartWrite(sink *stuffingWriter) error {
    p.writer = newHuffmanBitWriter(sink)
    p.eobRun = 0
    p.resetRestartCounter()
    return nil
}
func (p *ProgressiveACParser) StartMeasure() error { return nil }
func (p *ProgressiveACParser) StartMCURow() (bool, error) {
    return p.blocks.StartMCUQuantizerRow(p.scan, p.scan.frame.Width), nil
}
func (p *ProgressiveACParser) Restart() error {
    p.eobRun = 0
    if p.reader != nil {
        p.reader.Realign()
    }
    return nil
}
func (p *ProgressiveACParser) Flush(final bool) error {
    if p.writer == nil {
        return nil
    }
    return p.writer.Flush()
}
func (p *ProgressiveACParser) WriteFrameType() Process { return p.scan.frame.Process }

// decodeInitial implements §4.3.4: (run,size) pairs with EOBn run codes
// 0xE0..0xEF, coefficients pre-shifted by lowBit.
func (p *ProgressiveACParser) decodeInitial(blk *qblock) error {
    if p.eobRun > 0 {
        p.eobRun--
        return nil
    }
    k := int(p.start)
    for k <= int(p.stop) {
        rs, err := readHuffmanValue(p.acTable, p.reader)
        if err != nil {
            return err
        }
        run := int(rs >> 4)
        size := rs & 0x0f
        if size == 0 {
            if run == 15 {
                k += 16
                continue
            }
            // EOBn: run is the log2 band, read `run` extra bits for the
            // exact count (minus the implicit 1).
            count := 1 << uint(run)
            if run > 0 {
                extra, err := p.reader.GetBits(uint8(run))
                if err != nil {
                    return err
                }
                count += int(extra)
            }
            p.eobRun = count - 1
            return nil
        }
        k += run
        if k > int(p.stop) {
            return newErr(MalformedStream, "decodeInitial", "AC run overflows band at k=%d", k)
        }
        bits, err := p.reader.GetBits(size)
        if err != nil {
            return err
        }
        blk[k] = extend(bits, size) << p.lowBit
        k++
    }
    return nil
}

// decodeRefine implements §4.3.5, the most intricate Huffman variant:
// newly-nonzero coefficients are produced in run order; correction bits of
// previously-nonzero coefficients are produced immediately as the scan
// passes them, and EOBn interleaves correction bits for the coefficients
// it still covers. This mirrors the canonical Annex G algorithm: the
// ordering here is not an invitation to simplify (§9).
func (p *ProgressiveACParser) decodeRefine(blk *qblock) error {
    k := int(p.start)
    one := int32(1) << p.lowBit
    negone := -one

    correctAlreadySignificant := func(upto int) error {
        for ; k <= upto; k++ {
            if blk[k] == 0 {
                continue
            }
            bit, err := p.reader.GetBit()
            if err != nil {
                return err
            }
            if bit && blk[k]&one == 0 {
                if blk[k] > 0 {
                    blk[k] += one
                } else {
                    blk[k] += negone
                }
            }
        }
        return nil
    }

    if p.eobRun > 0 {
        if err := correctAlreadySignificant(int(p.stop)); err != nil {
            return err
        }
        p.eobRun--
        return nil
    }

    for k <= int(p.stop) {
        rs, err := readHuffmanValue(p.acTable, p.reader)
        if err != nil {
            return err
        }
        run := int(rs >> 4)
        size := rs & 0x0f
        var newVal int32
        if size != 0 {
            // size is always 1 here (Annex G): the sign of the new coefficient.
            bit, err := p.reader.GetBit()
            if err != nil {
                return err
            }
            if bit {
                newVal = one
            } else {
                newVal = negone
            }
        } else if run != 15 {
            count := 1 << uint(run)
            if run > 0 {
                extra, err := p.reader.GetBits(uint8(run))
                if err != nil {
                    return err
                }
                count += int(extra)
            }
            p.eobRun = count - 1
            if err := correctAlreadySignificant(int(p.stop)); err != nil {
                return err
            }
            return nil
        }
        // Skip `run` previously-zero coefficients, correcting any
        // previously-nonzero coefficient passed along the way.
        zerosToSkip := run
        for k <= int(p.stop) {
            if blk[k] != 0 {
                bit, err := p.reader.GetBit()
                if err != nil {
                    return err
                }
                if bit && blk[k]&one == 0 {
                    if blk[k] > 0 {
                        blk[k] += one
                    } else {
                        blk[k] += negone
                    }
                }
                k++
                continue
            }
            if zerosToSkip == 0 {
                break
            }
            zerosToSkip--
            k++
        }
        // k sits on the zero that ends the run: the new coefficient's
        // position, or the 16th zero of a ZRL, which is passed over too.
        if k <= int(p.stop) {
            if newVal != 0 {
                blk[k] = newVal
            }
            k++
        }
    }
    return nil
}

func (p *ProgressiveACParser) ParseMCU() (bool, error) {
    ref := p.scan.comps[0]
    row := p.blocks.CurrentQuantizedRow(ref.compIndex)
    if row == nil {
        return false, newErr(MalformedStream, "ParseMCU", "no block row for component %d", ref.compIndex)
    }
    // Single-component progressive AC scans are never interleaved (§4.3.4);
    // one call here decodes one block, advancing across the row.
    idx := p.blocks.BlockColumn(ref.compIndex, 1)
    if idx >= len(row) {
        idx = len(row) - 1
    }
    blk := &row[idx]
    var err error
    if p.refine {
        err = p.decodeRefine(blk)
    } else {
        err = p.decodeInitial(blk)
    }
    if err != nil {
        return false, err
    }
    if p.consumeMCU() {
        if err := p.resyncToRestart(); err != nil {
            return false, err
        }
        p.Restart()
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

// WriteMCU mirrors ParseMCU for initial scans only. For a refinement scan
// (highBit > 0) it writes no bits for the block: there is no
// refinement-scan encoder, only the restart bookkeeping runs.
func (p *ProgressiveACParser) WriteMCU() (bool, error) {
    ref := p.scan.comps[0]
    row := p.blocks.CurrentQuantizedRow(ref.compIndex)
    if row == nil {
        return false, newErr(MalformedStream, "WriteMCU", "no block row for component %d", ref.compIndex)
    }
    idx := p.blocks.BlockColumn(ref.compIndex, 1)
    if idx >= len(row) {
        idx = len(row) - 1
    }
    blk := &row[idx]
    if !p.refine {
        if err := p.encodeInitial(blk); err != nil {
            return false, err
        }
    }
    if p.consumeMCU() {
        if err := p.writeRestartMarker(); err != nil {
            return false, err
        }
        p.Restart()
    }
    return p.mcusToGo != 0 || p.scan.restartInterval == 0, nil
}

func (p *ProgressiveACParser) encodeInitial(blk *qblock) error {
    k := int(p.start)
    run := 0
    for k <= int(p.stop) {
        v := blk[k] >> p.lowBit
        if v == 0 {
            run++
            k++
            continue
        }
        for run >= 16 {
            if err := writeHuffmanSymbol(p.acTable, p.writer, 0xf0); err != nil {
                return err
            }
            run -= 16
        }
        size := category(v)
        if err := writeHuffmanSymbol(p.acTable, p.writer, uint8(run<<4)|size); err != nil {
            return err
        }
        if err := p.writer.PutBits(magnitudeBits(v, size), size); err != nil {
            return err
        }
        run = 0
        k++
    }
    if run > 0 {
        return writeHuffmanSymbol(p.acTable, p.writer, 0x00)
    }
    return nil
}
