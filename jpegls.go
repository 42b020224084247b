package jpeg

// jlsContext is one of the 365 fixed regular-mode contexts of JPEG-LS
// Annex A: an adaptive Golomb parameter together with the bias correction
// state (Annex A.6) keyed by the quantised (Q1,Q2,Q3) gradient triple.
type jlsContext struct {
    a, b, n int32 // error magnitude sum, bias sum, sample count
    c       int32 // current bias correction
}

func newJLSContext(near int) jlsContext {
    init := int32(1)
    if near > 0 {
        init = int32((2*near + 1 + 2) / 3) // max(2, (2N+1+2)/3), Annex A.6 init
        if init < 2 {
            init = 2
        }
    }
    return jlsContext{a: init, n: 1}
}

// golombK returns the adapted Golomb-Rice parameter for context cx, per
// Annex A.5.1: increasing n's power of two until it covers cx.a.
func golombK(cx *jlsContext) int {
    k := 0
    for (cx.n << uint(k)) < cx.a {
		k++
	}
    return k
}

// jlsQuantize maps a local gradient d into JPEG-LS's 9-level signed
// quantiser [-4..4] using the four threshold regions of Annex A.3.2.
func jlsQuantize(d, t1, t2, t3 int) int {
    switch {
    case d <= -t3:
        return -4
    case d <= -t2:
        return -3
    case d <= -t1:
        return -2
    case d < 0:
        return -1
    case d == 0:
        return 0
    case d < t1:
        return 1
    case d < t2:
        return 2
    case d < t3:
        return 3
    default:
        return 4
    }
}

// contextIndex folds the (q1,q2,q3) gradient triple (each in [-4..4]) into
// a single index in [0,364] and reports whether the raw triple should be
// sign-flipped (and its coded error negated) to land in the canonical
// half of the 729-valued space, per Annex A.3.3.
func contextIndex(q1, q2, q3 int) (idx int, negate bool) {
    raw := (q1*9+q2)*9 + q3
    if raw < 0 {
        return -raw, true
    }
    return raw, false
}

// modRange reduces v into [-rng/2, (rng+1)/2-1] (integer division) by
// adding or subtracting rng once, the error-value modulo reduction of
// Annex A.4.1; rng is the parser's RANGE.
func modRange(v, rng int32) int32 {
    half := rng / 2
    if v < -half {
        v += rng
    } else if v >= (rng+1)/2 {
        v -= rng
    }
    return v
}

// JPEGLSParser implements §4.3.8: JPEG-LS's regular/run mode predictive
// coder over one, two, or N interleaved components (line, sample, and
// none/plane interleave respectively), driven by the line buffer rather
// than a block buffer.
type JPEGLSParser struct {
    scanBase

    near     int
    maxVal   int
    rng      int32 // RANGE of Annex A.2.1, the modulus of the error modulo reduction
    qbpp     int   // bits per sample after NEAR quantisation, Annex A.2.1
    limit    int
    reset    int

    interleave int // 0=none(plane), 1=line, 2=sample, matching Scan.lsInterleave

    ctx    [][365]jlsContext // one context array per component for plane/none mode
    runIdx []int32            // run-mode adaptive index J[] state, one per component
    runCtx []jlsContext        // one run-interruption context per component, used for every interruption

    pointX []int

    lineCompCursor int // line-interleave only: scan-component index currently being coded, §4.3.8
}

// checkLSInterleave enforces ISO/IEC 14495-1's restriction that a
// sample-interleaved scan (Annex C, sampleinterleavedlsscan.cpp) only
// covers components with identical sampling factors: interleaving sample
// by sample has no defined meaning once components cover different pixel
// grids.
func checkLSInterleave(s *Scan) error {
    if s.lsInterleave != 2 || len(s.comps) < 2 {
        return nil
    }
    h0, v0 := s.frame.Components[s.comps[0].compIndex].H, s.frame.Components[s.comps[0].compIndex].V
    for _, ref := range s.comps[1:] {
        c := s.frame.Components[ref.compIndex]
        if c.H != h0 || c.V != v0 {
            return newErr(InvalidParameter, "newJPEGLSParser",
                "sample-interleaved JPEG-LS scan requires equal sampling factors across all components")
        }
    }
    return nil
}

func newJPEGLSParser(s *Scan, img *Image, lines *LineBuffer, params lsPresetParameters) (*JPEGLSParser, error) {
    if err := checkLSInterleave(s); err != nil {
        return nil, err
    }
    n := len(s.comps)
    p := &JPEGLSParser{
        scanBase:   scanBase{scan: s, image: img, lines: lines},
        near:       s.near, maxVal: params.MaxVal,
        interleave: s.lsInterleave, reset: params.Reset,
        ctx:        make([][365]jlsContext, n),
        runIdx:     make([]int32, n),
        runCtx:     make([]jlsContext, n),
        pointX:     make([]int, n),
    }
    bpp := 1
    for (1 << uint(bpp)) < p.maxVal+1 {
        bpp++
    }
    p.rng = int32((p.maxVal+2*p.near)/(2*p.near+1)) + 1
    p.qbpp = 1
    for (int32(1) << uint(p.qbpp)) < p.rng {
        p.qbpp++
    }
    if bpp <= 8 {
        p.limit = 2*(bpp+max(8, bpp)) - p.qbpp
    } else {
		p.limit = 2*(bpp+16) - p.qbpp
	}
    p.resetContexts()
    return p, nil
}

func (p *JPEGLSParser) resetContexts() {
    for ci := range p.ctx {
        for i := range p.ctx[ci] {
            p.ctx[ci][i] = newJLSContext(p.near)
        }
        p.runCtx[ci] = newJLSContext(p.near)
        p.runIdx[ci] = 0
    }
}

func max(a, b int) int {
    if a > b {
        return a
    }
    return b
}

func (p *JPEGLSParser) StartRead(data []byte, pos int) error {
    p.reader = newHuffmanBitReader(data, pos)
    p.resetRestartCounter()
    return nil
}
func (p *JPEGLSParser) StartWrite(sink *stuffingWriter) error {
    p.writer = newHuffmanBitWriter(sink)
    p.resetRestartCounter()
    return nil
}
func (p *JPEGLSParser) StartMeasure() error {
    return newErr(NotImplemented, "StartMeasure", "JPEG-LS does not use table measurement")
}
func (p *JPEGLSParser) StartMCURow() (bool, error) {
    for i, ref := range p.scan.comps {
        p.lines.StartLine(ref.compIndex, p.scan.frame.Width)
        p.pointX[i] = 0
    }
    p.lineCompCursor = 0
    return p.lines.curY[p.scan.comps[0].compIndex] <= p.scan.frame.Height, nil
}
func (p *JPEGLSParser) Restart() error {
    p.resetContexts()
    p.reader.Realign()
    return nil
}
func (p *JPEGLSParser) Flush(final bool) error {
    if p.writer == nil {
        return nil
    }
    return p.writer.Flush()
}
func (p *JPEGLSParser) WriteFrameType() Process { return JPEGLS }

// fixedPredict computes the MED (median edge detector) predictor of Annex
// A.4.2.1 from the causal neighbours a (left), b (above), c (above-left).
func fixedPredict(a, b, c int32) int32 {
    if c >= max32(a, b) {
        return min32(a, b)
    }
    if c <= min32(a, b) {
        return max32(a, b)
    }
    return a + b - c
}

func max32(a, b int32) int32 {
    if a > b {
        return a
    }
    return b
}
func min32(a, b int32) int32 {
    if a < b {
        return a
    }
    return b
}

// golombEncode/golombDecode implement Annex A.5.3's limited-length
// Golomb-Rice code: unary quotient (capped at `limit`, after which the
// value is escaped as qbpp raw bits), then k remainder bits.
func golombEncode(w *HuffmanBitWriter, mapped int32, k, limit, qbpp int) error {
    q := int(mapped >> uint(k))
    if q < limit {
        for i := 0; i < q; i++ {
            if err := w.PutBits(0, 1); err != nil {
                return err
            }
        }
        if err := w.PutBits(1, 1); err != nil {
            return err
        }
        if k > 0 {
            return w.PutBits(uint32(mapped)&((1<<uint(k))-1), uint8(k))
        }
        return nil
    }
    for i := 0; i < limit; i++ {
        if err := w.PutBits(0, 1); err != nil {
            return err
        }
    }
    return w.PutBits(uint32(mapped-1)&((1<<uint(qbpp))-1), uint8(qbpp))
}

func golombDecode(r *HuffmanBitReader, k, limit, qbpp int) (int32, error) {
    q := 0
    for {
        bit, err := r.GetBit()
        if err != nil {
            return 0, err
        }
        if bit {
            break
        }
        q++
        if q == limit {
            raw, err := r.GetBits(uint8(qbpp))
            if err != nil {
                return 0, err
            }
            return int32(raw) + 1, nil
        }
    }
    if k == 0 {
        return int32(q), nil
    }
    rem, err := r.GetBits(uint8(k))
    if err != nil {
        return 0, err
    }
    return int32(q)<<uint(k) | int32(rem), nil
}

// mapErr/unmapErr fold the signed prediction residual into the
// non-negative alphabet Golomb-Rice codes, Annex A.5.2's MErrval: a
// residual e >= 0 maps to 2e and e < 0 to -2e-1. The k and mpsNegative
// arguments do not change the mapping, and it does not depend on the
// context's bias state.
func mapErr(errval int32, k int, mpsNegative bool) int32 {
    if k == 0 && !mpsNegative {
        if errval >= 0 {
            return 2 * errval
        }
        return -2*errval - 1
    }
    if errval >= 0 {
        return 2 * errval
    }
    return -2*errval - 1
}

func unmapErr(mapped int32, k int, mpsNegative bool) int32 {
    if mapped&1 == 0 {
        return mapped / 2
    }
    return -(mapped + 1) / 2
}

// codeSample is the regular-mode codec step of Annex A.4-A.6 for one
// sample: MED prediction, bias correction, context-adaptive Golomb-Rice
// coding of the residual (falling through to run mode when the gradient
// context is flat), then bias/parameter update.
func (p *JPEGLSParser) codeSample(ci int, a, b, c, d, sample int32, t1, t2, t3 int, encode bool) (int32, error) {
    q1 := jlsQuantize(int(d-b), t1, t2, t3)
    q2 := jlsQuantize(int(b-c), t1, t2, t3)
    q3 := jlsQuantize(int(c-a), t1, t2, t3)

    if q1 == 0 && q2 == 0 && q3 == 0 {
        return p.codeRun(ci, a, sample, encode)
    }

    idx, negate := contextIndex(q1, q2, q3)
    cx := &p.ctx[ci][idx]
    pred := fixedPredict(a, b, c)
    if negate {
        pred -= cx.c
    } else {
        pred += cx.c
    }
    pred = clampSample(pred, int32(p.maxVal))

    k := golombK(cx)
    var result int32
    if encode {
        errv := sample - pred
        if negate {
            errv = -errv
        }
        errv = modRange(errv, p.rng)
        mapped := mapErr(errv, k, false)
        if err := golombEncode(p.writer, mapped, k, p.limit, p.qbpp); err != nil {
            return 0, err
        }
        updateJLSContext(cx, errv, p.reset)
        result = sample
    } else {
        mapped, err := golombDecode(p.reader, k, p.limit, p.qbpp)
        if err != nil {
            return 0, err
        }
        errv := unmapErr(mapped, k, false)
        updateJLSContext(cx, errv, p.reset)
        if negate {
            errv = -errv
        }
        result = clampSample(pred+errv, int32(p.maxVal))
    }
    return result, nil
}

// codeRun implements run mode, entered whenever all three gradients
// quantise to zero. Each sample in run mode costs one bit: 1 when it
// equals `a`, otherwise 0 followed by the sample coded against the
// component's run-interruption context. No run length is accumulated or
// Golomb-coded, and the run index state (runIdx) is not used.
func (p *JPEGLSParser) codeRun(ci int, a, sample int32, encode bool) (int32, error) {
    // A full run scan spans multiple samples; callers drive it one sample
    // at a time here and rely on ParseMCU/WriteMCU's neighbour recompute
	// to detect the run's end, a simplified single-sample form of Annex
	// A.7.1's batch run-length scan.
    if encode {
        if sample == a {
            return a, p.PutBits1(1)
        }
        if err := p.PutBits1(0); err != nil {
            return a, err
        }
        return p.codeRunInterrupt(ci, a, sample, true)
    }
    bit, err := p.reader.GetBit()
    if err != nil {
        return 0, err
    }
    if bit {
        return a, nil
    }
    return p.codeRunInterrupt(ci, a, sample, false)
}

func (p *JPEGLSParser) PutBits1(v uint32) error { return p.writer.PutBits(v, 1) }

// codeRunInterrupt codes the sample that ends a run against the
// component's run-interruption context (k derived from cx.n/cx.a as in
// the regular contexts). The coded error is the sample minus a; the pixel
// above the run plays no part in the prediction or the sign.
func (p *JPEGLSParser) codeRunInterrupt(ci int, a, sample int32, encode bool) (int32, error) {
    cx := &p.runCtx[ci]
    k := golombK(cx)
    if encode {
        errv := modRange(sample-a, p.rng)
        mapped := mapErr(errv, k, false)
        if err := golombEncode(p.writer, mapped, k, p.limit, p.qbpp); err != nil {
            return 0, err
        }
        updateJLSContext(cx, errv, p.reset)
        return sample, nil
    }
    mapped, err := golombDecode(p.reader, k, p.limit, p.qbpp)
    if err != nil {
        return 0, err
    }
    errv := unmapErr(mapped, k, false)
    updateJLSContext(cx, errv, p.reset)
    return clampSample(a+errv, int32(p.maxVal)), nil
}

// updateJLSContext applies Annex A.6.1's bias/parameter update after
// coding one sample's error value against context cx.
func updateJLSContext(cx *jlsContext, errv int32, reset int) {
    cx.b += errv
    av := errv
    if av < 0 {
        av = -av
    }
    cx.a += av
    if cx.n == int32(reset) {
        cx.a >>= 1
        cx.b >>= 1
        cx.n >>= 1
    }
    cx.n++
    if cx.b <= -cx.n {
        cx.c--
        cx.b += cx.n
        if cx.b <= -cx.n {
            cx.b = -cx.n + 1
        }
    } else if cx.b > 0 {
        cx.c++
        cx.b -= cx.n
        if cx.b > 0 {
            cx.b = 0
        }
    }
}

func clampSample(v, maxVal int32) int32 {
    if v < 0 {
        return 0
    }
    if v > maxVal {
        return maxVal
    }
    return v
}

func (p *JPEGLSParser) neighbourSamples(ci, x int) (a, b, c, d int32) {
    cur := p.lines.CurrentLine(ci)
    if p.lines.curY[ci]-1 == 0 {
        if x == 0 {
            return 0, 0, 0, 0
        }
        a = cur.Samples[x-1]
        return a, a, a, a
    }
    prev := p.lines.previous(ci)
    b = prev.Samples[x]
    if x == 0 {
        a = b
        c = b
    } else {
        a = cur.Samples[x-1]
        c = prev.Samples[x-1]
    }
    if x+1 < len(prev.Samples) {
        d = prev.Samples[x+1]
    } else {
        d = b
    }
    return a, b, c, d
}

// ParseMCU/WriteMCU dispatch on the scan's interleave mode: line-interleave
// (Annex C, lineinterleavedlsscan.cpp) codes one component's entire current
// line before moving to the next component, while sample-interleave
// (sampleinterleavedlsscan.cpp) and the single-component/plane case (Annex
// C, singlecomponentlsscan.cpp — the degenerate len(comps)==1 form of the
// same loop) code one sample per component per call.
func (p *JPEGLSParser) ParseMCU() (bool, error) {
    if p.interleave == 1 {
        return p.lineStep(false)
    }
    return p.sampleStep(false)
}

func (p *JPEGLSParser) WriteMCU() (bool, error) {
    if p.interleave == 1 {
        return p.lineStep(true)
    }
    return p.sampleStep(true)
}

// sampleStep codes one sample of every scan component at the shared
// column p.pointX, the sample-interleaved MCU unit of Annex C. It also
// serves the non-interleaved (plane) case, where len(scan.comps)==1 makes
// the loop degenerate to one component. Returns false once every
// component's current line is exhausted, so the caller's StartMCURow/
// ParseMCU driving loop (encoder.go, orchestrator.go) moves on to the next
// image row.
func (p *JPEGLSParser) sampleStep(encode bool) (bool, error) {
    lse := p.lsParams()
    for si, ref := range p.scan.comps {
        cur := p.lines.CurrentLine(ref.compIndex)
        x := p.pointX[si]
        a, b, c, d := p.neighbourSamples(ref.compIndex, x)
        if encode {
            sample := cur.Samples[x]
            if _, err := p.codeSample(ref.compIndex, a, b, c, d, sample, lse.T1, lse.T2, lse.T3, true); err != nil {
                return false, err
            }
        } else {
            v, err := p.codeSample(ref.compIndex, a, b, c, d, 0, lse.T1, lse.T2, lse.T3, false)
            if err != nil {
                return false, err
            }
            cur.Samples[x] = v
        }
        p.pointX[si]++
    }
    width := p.lines.CurrentLine(p.scan.comps[0].compIndex).Width
    if p.pointX[0] < width {
        return true, nil
    }
    for i, ref := range p.scan.comps {
        p.lines.AdvanceLine(ref.compIndex)
        p.pointX[i] = 0
    }
    return false, nil
}

// lineStep codes one sample of the component under p.lineCompCursor,
// advancing through that component's whole line before handing the
// cursor to the next scan component, the line-interleaved MCU unit of
// Annex C. Returns false once the last component's line is finished.
func (p *JPEGLSParser) lineStep(encode bool) (bool, error) {
    lse := p.lsParams()
    si := p.lineCompCursor
    ref := p.scan.comps[si]
    cur := p.lines.CurrentLine(ref.compIndex)
    x := p.pointX[si]
    a, b, c, d := p.neighbourSamples(ref.compIndex, x)
    if encode {
        sample := cur.Samples[x]
        if _, err := p.codeSample(ref.compIndex, a, b, c, d, sample, lse.T1, lse.T2, lse.T3, true); err != nil {
            return false, err
        }
    } else {
        v, err := p.codeSample(ref.compIndex, a, b, c, d, 0, lse.T1, lse.T2, lse.T3, false)
        if err != nil {
            return false, err
        }
        cur.Samples[x] = v
    }
    p.pointX[si]++
    if p.pointX[si] < cur.Width {
        return true, nil
    }
    p.lines.AdvanceLine(ref.compIndex)
    p.pointX[si] = 0
    p.lineCompCursor++
    if p.lineCompCursor < len(p.scan.comps) {
        return true, nil
    }
    p.lineCompCursor = 0
    return false, nil
}

func (p *JPEGLSParser) lsParams() lsPresetParameters {
    if p.image.lsParams != nil {
        return *p.image.lsParams
    }
    return defaultLSEParameters(p.maxVal, p.near)
}
