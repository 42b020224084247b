package jpeg

import "testing"

func testComponents() []Component {
    return []Component{
        {ID: 1, H: 2, V: 2, Index: 0},
        {ID: 2, H: 1, V: 1, Index: 1},
        {ID: 3, H: 1, V: 1, Index: 2},
    }
}

func TestBlockBufferRowRecycling(t *testing.T) {
    comps := testComponents()
    bb := NewBlockBuffer(comps, 16)

    scan := &Scan{comps: []scanComponentRef{{compIndex: 0}, {compIndex: 1}, {compIndex: 2}}}
    scan.frame = &Frame{Components: comps, Width: 16, Height: 16}

    if more := bb.StartMCUQuantizerRow(scan, 16); !more {
        t.Fatalf("expected a first MCU row to be available")
    }
    row0 := bb.CurrentQuantizedRow(0)
    if row0 == nil || len(row0) == 0 {
        t.Fatalf("expected a non-empty quantised row for component 0")
    }
    bb.AdvanceRow(0)
    bb.AdvanceRow(1)
    bb.AdvanceRow(2)

    if more := bb.StartMCUQuantizerRow(scan, 16); !more {
        t.Fatalf("expected a second MCU row to be available")
    }
    if bb.CurrentQuantizedRow(0) == nil {
        t.Fatalf("expected the recycled row to be usable")
    }
}

func TestBlocksPerRow(t *testing.T) {
    comps := testComponents()
    bb := NewBlockBuffer(comps, 16)
    // maxH=2, ceil(W/(8*maxH/Hi))*Hi: component 0 (H=2) gets
    // ceil(16/8)*2 = 4; component 1/2 (H=1) get ceil(16/16)*1 = 1.
    if n := bb.blocksPerRow(0, 16); n != 4 {
        t.Errorf("blocksPerRow(comp0, 16) = %d, want 4", n)
    }
    if n := bb.blocksPerRow(1, 16); n != 1 {
        t.Errorf("blocksPerRow(comp1, 16) = %d, want 1", n)
    }
}

func TestLineBufferAdvanceAndPrevious(t *testing.T) {
    comps := []Component{{ID: 1, H: 1, V: 1}}
    lb := NewLineBuffer(comps, 4, 2)

    first := lb.StartLine(0, 8)
    for i := range first.Samples {
        first.Samples[i] = 10
    }
    lb.AdvanceLine(0)

    second := lb.StartLine(0, 8)
    for i := range second.Samples {
        second.Samples[i] = 20
    }

    prev := lb.previous(0)
    if prev.Samples[0] != 10 {
        t.Errorf("previous() returned samples from the wrong line: got %d, want 10", prev.Samples[0])
    }
    if lb.CurrentLine(0).Samples[0] != 20 {
        t.Errorf("CurrentLine should be the second line")
    }
}

func TestLineDuplicateEdges(t *testing.T) {
    l := newLine(4, 1)
    l.Samples[2] = 100 // pad(1)+1 = index 2 is the first real sample
    l.Samples[5] = 200 // pad+width = index 5 is the last real sample
    l.DuplicateEdges(1)
    if l.Samples[0] != 100 || l.Samples[1] != 100 {
        t.Errorf("left guard columns not duplicated: %v", l.Samples[:2])
    }
    if l.Samples[6] != 200 || l.Samples[7] != 200 {
        t.Errorf("right guard columns not duplicated: %v", l.Samples[6:])
    }
}
