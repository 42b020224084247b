package jpeg

// Process is one of the 13 process tags of §3: a (coding, differential,
// entropy-coding) tuple, plus the JPEG-LS and hierarchical-dimensions
// pseudo-tags.
type Process int

const (
    Baseline Process = iota // sequential DCT, Huffman, non-differential, 8-bit only
    SequentialHuffman
    SequentialArithmetic
    ProgressiveHuffman
    ProgressiveArithmetic
    LosslessHuffman
    LosslessArithmetic
    DifferentialSequentialHuffman
    DifferentialSequentialArithmetic
    DifferentialProgressiveHuffman
    DifferentialProgressiveArithmetic
    DifferentialLosslessHuffman
    DifferentialLosslessArithmetic
    JPEGLS
    dimensionsOnly // pseudo-tag for a DHP frame: "dimensions", §3
)

func (p Process) String() string {
    names := [...]string{
        "baseline", "sequential-huffman", "sequential-arithmetic",
        "progressive-huffman", "progressive-arithmetic",
        "lossless-huffman", "lossless-arithmetic",
        "differential-sequential-huffman", "differential-sequential-arithmetic",
        "differential-progressive-huffman", "differential-progressive-arithmetic",
        "differential-lossless-huffman", "differential-lossless-arithmetic",
        "jpeg-ls", "dimensions",
    }
    if int(p) < 0 || int(p) >= len(names) {
        return "unknown"
    }
    return names[p]
}

func (p Process) isArithmetic() bool {
    switch p {
    case SequentialArithmetic, ProgressiveArithmetic, LosslessArithmetic,
        DifferentialSequentialArithmetic, DifferentialProgressiveArithmetic,
        DifferentialLosslessArithmetic:
        return true
    }
    return false
}

func (p Process) isProgressive() bool {
    switch p {
    case ProgressiveHuffman, ProgressiveArithmetic,
        DifferentialProgressiveHuffman, DifferentialProgressiveArithmetic:
        return true
    }
    return false
}

func (p Process) isLossless() bool {
    switch p {
    case LosslessHuffman, LosslessArithmetic,
        DifferentialLosslessHuffman, DifferentialLosslessArithmetic, JPEGLS:
        return true
    }
    return false
}

func (p Process) isDifferential() bool {
    switch p {
    case DifferentialSequentialHuffman, DifferentialSequentialArithmetic,
        DifferentialProgressiveHuffman, DifferentialProgressiveArithmetic,
        DifferentialLosslessHuffman, DifferentialLosslessArithmetic:
        return true
    }
    return false
}

// Component describes one sample plane of a Frame (§3). Hi/Vi are the
// horizontal/vertical sampling factors in [1,4]; MCUW/MCUH are the derived
// per-MCU block/sample counts for this component.
type Component struct {
    ID        uint8 // 8-bit label as it appears in SOFn
    Index     int   // positional index inside the frame
    Precision int   // sample precision P, in [2,16] (DCT: {8,12})
    H, V      int   // horizontal/vertical sampling factors, [1,4]
    QuantSel  int   // quantization-table selector (DCT) or mapping-table selector (LS)
    DCSel     int   // DC (or predictor) entropy-table selector
    ACSel     int   // AC entropy-table selector (unused in lossless/LS)

    MCUW, MCUH int // derived per-MCU block size (DCT) or 1,1 (lossless/LS)
}

// checkSamplingLattice enforces the invariant of §3: maxH/Hi and maxV/Vi
// must be integers for every component (the standard's subsampling
// lattice).
func checkSamplingLattice(comps []Component) error {
    maxH, maxV := 1, 1
    for _, c := range comps {
        if c.H > maxH {
            maxH = c.H
        }
        if c.V > maxV {
            maxV = c.V
        }
    }
    for _, c := range comps {
        if maxH%c.H != 0 || maxV%c.V != 0 {
            return newErr(InvalidParameter, "checkSamplingLattice",
                "component %d: (%d,%d) does not divide frame max (%d,%d)",
                c.ID, c.H, c.V, maxH, maxV)
        }
    }
    return nil
}

func maxSampling(comps []Component) (maxH, maxV int) {
    maxH, maxV = 1, 1
    for _, c := range comps {
        if c.H > maxH {
            maxH = c.H
        }
        if c.V > maxV {
            maxV = c.V
        }
    }
    return
}

// ceilDiv is the integer ceiling division used throughout the MCU-layout
// math (§3, §4.4).
func ceilDiv(a, b int) int { return (a + b - 1) / b }
