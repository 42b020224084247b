package jpeg

import (
    "bytes"
    "testing"
)

func TestJLSQuantizeSymmetry(t *testing.T) {
    t1, t2, t3 := 3, 7, 21
    cases := []struct {
        d    int
        want int
    }{
        {0, 0}, {1, 1}, {-1, -1}, {5, 2}, {-5, -2}, {10, 3}, {30, 4}, {-30, -4},
    }
    for _, c := range cases {
        if got := jlsQuantize(c.d, t1, t2, t3); got != c.want {
            t.Errorf("jlsQuantize(%d) = %d, want %d", c.d, got, c.want)
        }
    }
}

func TestContextIndexFolding(t *testing.T) {
    idx, neg := contextIndex(0, 0, 0)
    if idx != 0 || neg {
        t.Errorf("contextIndex(0,0,0) = (%d,%v), want (0,false)", idx, neg)
    }
    idxPos, negPos := contextIndex(1, 2, 3)
    idxNeg, negNeg := contextIndex(-1, -2, -3)
    if negPos {
        t.Errorf("a positive raw triple should not be negated")
    }
    if !negNeg {
        t.Errorf("a negative raw triple should be negated")
    }
    if idxPos != idxNeg {
        t.Errorf("negated triple should fold to the same index: %d vs %d", idxPos, idxNeg)
    }
}

func TestFixedPredictMED(t *testing.T) {
    cases := []struct{ a, b, c, want int32 }{
        {10, 20, 5, 20},  // c <= min(a,b): predict max(a,b)
        {20, 10, 5, 20},  // c <= min(a,b): predict max(a,b)
        {10, 20, 25, 10}, // c >= max(a,b): predict min(a,b)
        {10, 20, 15, 15}, // else: a+b-c
    }
    for _, c := range cases {
        if got := fixedPredict(c.a, c.b, c.c); got != c.want {
            t.Errorf("fixedPredict(%d,%d,%d) = %d, want %d", c.a, c.b, c.c, got, c.want)
        }
    }
}

func TestGolombKGrows(t *testing.T) {
    cx := &jlsContext{a: 1, n: 1}
    if k := golombK(cx); k != 0 {
        t.Errorf("golombK with a=1,n=1 = %d, want 0", k)
    }
    cx = &jlsContext{a: 100, n: 1}
    if k := golombK(cx); k < 6 {
        t.Errorf("golombK with a=100,n=1 = %d, want >= 6", k)
    }
}

func TestMapUnmapErrRoundTrip(t *testing.T) {
    for _, v := range []int32{0, 1, -1, 5, -5, 127, -128} {
        mapped := mapErr(v, 0, false)
        if mapped < 0 {
            t.Fatalf("mapErr(%d) produced a negative value", v)
        }
        got := unmapErr(mapped, 0, false)
        if got != v {
            t.Errorf("unmapErr(mapErr(%d)) = %d, want %d", v, got, v)
        }
    }
}

func newTestJLSScan(interleave int, comps []Component) *Scan {
    refs := make([]scanComponentRef, len(comps))
    for i, c := range comps {
        refs[i] = scanComponentRef{compIndex: c.Index}
    }
    frame := &Frame{Components: comps, Width: 8, Height: 8}
    return &Scan{frame: frame, comps: refs, lsInterleave: interleave, near: 0}
}

func TestCheckLSInterleaveRejectsSubsampledSampleInterleave(t *testing.T) {
    comps := []Component{
        {ID: 1, Index: 0, H: 2, V: 2},
        {ID: 2, Index: 1, H: 1, V: 1},
    }
    scan := newTestJLSScan(2, comps)
    if err := checkLSInterleave(scan); err == nil {
        t.Fatalf("expected sample-interleave with unequal sampling factors to be rejected")
    }
    scan.lsInterleave = 1
    if err := checkLSInterleave(scan); err != nil {
        t.Errorf("line-interleave should not enforce equal sampling factors: %v", err)
    }
}

func TestCheckLSInterleaveAcceptsEqualSampling(t *testing.T) {
    comps := []Component{
        {ID: 1, Index: 0, H: 1, V: 1},
        {ID: 2, Index: 1, H: 1, V: 1},
    }
    scan := newTestJLSScan(2, comps)
    if err := checkLSInterleave(scan); err != nil {
        t.Errorf("equal sampling factors should be accepted for sample-interleave: %v", err)
    }
}

// TestJPEGLSLineInterleaveRoundTrip drives a two-component, line-interleaved
// scan through WriteMCU then ParseMCU and checks the samples survive,
// exercising lineStep's per-component-full-line MCU assembly (§4.3.8).
func TestJPEGLSLineInterleaveRoundTrip(t *testing.T) {
    comps := []Component{
        {ID: 1, Index: 0, H: 1, V: 1},
        {ID: 2, Index: 1, H: 1, V: 1},
    }
    scan := newTestJLSScan(1, comps)
    img := &Image{}

    encLines := NewLineBuffer(comps, 8, 0)
    enc, err := newJPEGLSParser(scan, img, encLines, defaultLSEParameters(255, 0))
    if err != nil {
        t.Fatalf("newJPEGLSParser: %v", err)
    }
    if _, err := enc.StartMCURow(); err != nil {
        t.Fatalf("StartMCURow: %v", err)
    }
    want := map[int][]int32{
        0: {10, 11, 12, 13, 14, 15, 16, 17},
        1: {20, 19, 18, 17, 16, 15, 14, 13},
    }
    for ci, samples := range want {
        line := encLines.CurrentLine(ci)
        copy(line.Samples, samples)
    }

    var encoded bytes.Buffer
    sink := newStuffingWriter(&encoded)
    if err := enc.StartWrite(sink); err != nil {
        t.Fatalf("StartWrite: %v", err)
    }
    for {
        cont, err := enc.WriteMCU()
        if err != nil {
            t.Fatalf("WriteMCU: %v", err)
        }
        if !cont {
            break
        }
    }
    if err := enc.Flush(true); err != nil {
        t.Fatalf("Flush: %v", err)
    }

    decLines := NewLineBuffer(comps, 8, 0)
    dec, err := newJPEGLSParser(scan, img, decLines, defaultLSEParameters(255, 0))
    if err != nil {
        t.Fatalf("newJPEGLSParser (decode): %v", err)
    }
    if _, err := dec.StartMCURow(); err != nil {
        t.Fatalf("StartMCURow (decode): %v", err)
    }
    if err := dec.StartRead(encoded.Bytes(), 0); err != nil {
        t.Fatalf("StartRead: %v", err)
    }
    for {
        cont, err := dec.ParseMCU()
        if err != nil {
            t.Fatalf("ParseMCU: %v", err)
        }
        if !cont {
            break
        }
    }
    for ci, samples := range want {
        got := decLines.prevLine[ci].Samples
        for x, s := range samples {
            if got[x] != s {
                t.Errorf("component %d sample %d = %d, want %d", ci, x, got[x], s)
            }
        }
    }
}
