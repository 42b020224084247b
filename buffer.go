package jpeg

// qblock is a quantised 8x8 DCT block in zig-zag scan order (§3).
type qblock [64]int32

// blockRowNode is one MCU-height row of blocks for a single component,
// chained into the singly-linked list described in §3/§4.4. Nodes are
// recycled through BlockBuffer's free list rather than garbage collected,
// modelling the source's manual arena (§9 "Manual arenas").
type blockRowNode struct {
    blocks []qblock
    next   *blockRowNode
}

// BlockBuffer is the DCT-path sibling of LineBuffer (§4.4): it owns, per
// component, the linked list of quantised rows together with the read and
// write cursors the entropy parser steps through MCU row by MCU row.
type BlockBuffer struct {
    comps []Component

    topRow      []*blockRowNode
    writeCursor []*blockRowNode
    readCursor  []*blockRowNode
    nextY       []int // next line to allocate, in subsampled pixels
    curY        []int // line the cursor currently sits on
    col         []int // next block-column anchor within the current row, §4.4

    topResidualRow      []*blockRowNode // residual-extension parallel rows, §4.4
    residualWriteCursor []*blockRowNode
    residualReadCursor  []*blockRowNode

    free *blockRowNode // free list, reused across MCU rows (§9 manual arenas)

    imageHeight int
    maxH, maxV  int
}

// NewBlockBuffer allocates the per-component cursor state for comps. The
// linked lists themselves stay empty until StartMCUQuantizerRow is called.
func NewBlockBuffer(comps []Component, imageHeight int) *BlockBuffer {
    n := len(comps)
    maxH, maxV := maxSampling(comps)
    return &BlockBuffer{
        comps: comps, imageHeight: imageHeight, maxH: maxH, maxV: maxV,
        topRow: make([]*blockRowNode, n), writeCursor: make([]*blockRowNode, n),
        readCursor: make([]*blockRowNode, n), nextY: make([]int, n), curY: make([]int, n),
        col: make([]int, n),
        topResidualRow: make([]*blockRowNode, n), residualWriteCursor: make([]*blockRowNode, n),
        residualReadCursor: make([]*blockRowNode, n),
    }
}

// alloc returns a recycled node from the free list, or a fresh one.
func (b *BlockBuffer) alloc(n int) *blockRowNode {
    if b.free != nil {
        node := b.free
        b.free = node.next
        node.next = nil
        if cap(node.blocks) >= n {
            node.blocks = node.blocks[:n]
            for i := range node.blocks {
                node.blocks[i] = qblock{}
            }
            return node
        }
    }
    return &blockRowNode{blocks: make([]qblock, n)}
}

func (b *BlockBuffer) release(node *blockRowNode) {
    node.next = b.free
    b.free = node
}

// blocksPerRow is the invariant of §3: ceil(W / (8*maxH/Hi)) * Hi blocks
// per quantised row for component index ci, given frame width w.
func (b *BlockBuffer) blocksPerRow(ci, w int) int {
    c := b.comps[ci]
    cellW := 8 * b.maxH / c.H
    return ceilDiv(w, cellW) * c.H
}

// StartMCUQuantizerRow allocates MCUHi*8 new lines' worth of blocks per
// component in scan, rounded by image height, reusing free-list entries
// when available (§4.4). It returns false once the frame has no more rows.
func (b *BlockBuffer) StartMCUQuantizerRow(scan *Scan, frameWidth int) bool {
    anyMore := false
    for _, ref := range scan.comps {
        ci := ref.compIndex
        c := b.comps[ci]
        cellH := 8 * b.maxV / c.V
        if b.imageHeight > 0 && b.curY[ci] >= b.imageHeight {
            continue
        }
        n := b.blocksPerRow(ci, frameWidth)
        node := b.alloc(n)
        if b.topRow[ci] == nil {
            b.topRow[ci] = node
            b.readCursor[ci] = node
        } else {
            b.writeCursor[ci].next = node
        }
        b.writeCursor[ci] = node
        b.curY[ci] = b.nextY[ci]
        b.nextY[ci] += cellH
        b.col[ci] = 0
        anyMore = true
    }
    return anyMore
}

// BlockColumn returns the block-column anchor for component ci within its
// current quantised row and advances the anchor by n. An interleaved
// scan's ParseMCU/WriteMCU calls this once per component per MCU so
// successive MCUs land on successive columns of the row instead of all
// rereading/rewriting the row's first n blocks (§4.4).
func (b *BlockBuffer) BlockColumn(ci, n int) int {
    col := b.col[ci]
    b.col[ci] += n
    return col
}

// CurrentQuantizedRow returns the row under the read cursor for component
// index ci, the primitive parse_mcu/write_mcu step through MCU by MCU
// within a row (§4.4).
func (b *BlockBuffer) CurrentQuantizedRow(ci int) []qblock {
    if b.readCursor[ci] == nil {
        return nil
    }
    return b.readCursor[ci].blocks
}

// AdvanceRow moves the read cursor for component ci to the next row,
// returning its recycled node to the free list.
func (b *BlockBuffer) AdvanceRow(ci int) {
    old := b.readCursor[ci]
    if old == nil {
        return
    }
    b.readCursor[ci] = old.next
    if old == b.topRow[ci] {
        b.topRow[ci] = old.next
    }
    b.release(old)
}

// BufferedLines reports, for the component range [first,last], the
// minimum number of fully available reconstructed lines across those
// components, clipped to image height (§4.4 BufferedLines).
func (b *BlockBuffer) BufferedLines(first, last int) int {
    min := -1
    for ci := first; ci <= last; ci++ {
        y := b.curY[ci] * (b.maxV / b.comps[ci].V)
        if min == -1 || y < min {
            min = y
        }
    }
    if min == -1 {
        return 0
    }
    if b.imageHeight > 0 && min > b.imageHeight {
        min = b.imageHeight
    }
    return min
}

// Line is one reconstructed sample row (after subsampling) plus one guard
// column on each side; samples are signed 32-bit throughout to absorb the
// point transform and hidden-bit extension (§3).
type Line struct {
    Samples []int32 // [ -1 .. W ] logically; index 0 is the left guard
    Width   int
}

func newLine(width, mcuPad int) *Line {
    return &Line{Samples: make([]int32, width+2*mcuPad+2), Width: width}
}

// DuplicateEdges copies the first and last real samples into the guard
// columns, so sub-sampled extension at the image's right edge is free
// (§4.4).
func (l *Line) DuplicateEdges(pad int) {
    first := l.Samples[pad+1]
    last := l.Samples[pad+l.Width]
    for i := 0; i <= pad; i++ {
        l.Samples[i] = first
        l.Samples[pad+l.Width+1+i] = last
    }
}

// lineRowNode chains Lines the same way blockRowNode chains qblocks.
type lineRowNode struct {
    line *Line
    next *lineRowNode
}

// LineBuffer is the lossless/JPEG-LS sibling of BlockBuffer: each node is
// a single sample line rather than an MCU-height of 8x8 blocks (§4.4).
type LineBuffer struct {
    comps []Component

    topRow      []*lineRowNode
    writeCursor []*lineRowNode
    readCursor  []*lineRowNode
    curY        []int

    free        *lineRowNode
    imageHeight int
    mcuPad      int

    prevLine []*Line // line the read cursor sat on before the last AdvanceLine
}

// NewLineBuffer allocates per-component cursor state; mcuPad is the guard
// width added on each side of every line.
func NewLineBuffer(comps []Component, imageHeight, mcuPad int) *LineBuffer {
    n := len(comps)
    return &LineBuffer{
        comps: comps, imageHeight: imageHeight, mcuPad: mcuPad,
        topRow: make([]*lineRowNode, n), writeCursor: make([]*lineRowNode, n),
        readCursor: make([]*lineRowNode, n), curY: make([]int, n),
        prevLine: make([]*Line, n),
    }
}

// previous returns the line immediately above the current read cursor for
// component ci (nil on the first line), used by the lossless/JPEG-LS
// predictors to reach the `b` and `c` neighbours (§4.3.7, §4.3.8).
func (b *LineBuffer) previous(ci int) *Line {
    if b.prevLine[ci] == nil {
        return &Line{Samples: make([]int32, 2*b.mcuPad+2)} // all-zero line above the image top
    }
    return b.prevLine[ci]
}

func (b *LineBuffer) alloc(width int) *lineRowNode {
    if b.free != nil {
        node := b.free
        b.free = node.next
        node.next = nil
        if len(node.line.Samples) >= width+2*b.mcuPad+2 {
            for i := range node.line.Samples {
                node.line.Samples[i] = 0
            }
            node.line.Width = width
            return node
        }
    }
    return &lineRowNode{line: newLine(width, b.mcuPad)}
}

// StartLine allocates (or recycles) the next line for component ci.
func (b *LineBuffer) StartLine(ci, width int) *Line {
    node := b.alloc(width)
    if b.topRow[ci] == nil {
        b.topRow[ci] = node
        b.readCursor[ci] = node
    } else {
        b.writeCursor[ci].next = node
    }
    b.writeCursor[ci] = node
    b.curY[ci]++
    return node.line
}

// CurrentLine returns the line under the read cursor for component ci.
func (b *LineBuffer) CurrentLine(ci int) *Line {
    if b.readCursor[ci] == nil {
        return nil
    }
    return b.readCursor[ci].line
}

// AdvanceLine moves ci's read cursor forward, recycling the old node.
func (b *LineBuffer) AdvanceLine(ci int) {
    old := b.readCursor[ci]
    if old == nil {
        return
    }
    b.readCursor[ci] = old.next
    if old == b.topRow[ci] {
        b.topRow[ci] = old.next
    }
    // Copy rather than alias: old.line's backing array is about to be
    // recycled (and zeroed in place) by the next StartLine call, which
    // would otherwise corrupt the row predictors still need.
    snap := &Line{Samples: make([]int32, len(old.line.Samples)), Width: old.line.Width}
    copy(snap.Samples, old.line.Samples)
    b.prevLine[ci] = snap
    old.next = b.free
    b.free = old
}

// blockSample is an 8-sample chunk exchanged with the resamplers.
type blockSample [8]int32

// DefineRegion writes an 8-sample chunk at block-column bx of the line at
// read-cursor depth `row` lines below the current cursor for component ci
// (§4.4 define_region).
func (b *LineBuffer) DefineRegion(ci, bx, row int, data blockSample) {
    node := b.readCursor[ci]
    for i := 0; i < row && node != nil; i++ {
        node = node.next
    }
    if node == nil {
        return
    }
    off := b.mcuPad + 1 + bx*8
    copy(node.line.Samples[off:off+8], data[:])
}

// FetchRegion is the read-side mirror of DefineRegion (§4.4 fetch_region).
func (b *LineBuffer) FetchRegion(ci, bx, row int) blockSample {
    var out blockSample
    node := b.readCursor[ci]
    for i := 0; i < row && node != nil; i++ {
        node = node.next
    }
    if node == nil {
        return out
    }
    off := b.mcuPad + 1 + bx*8
    copy(out[:], node.line.Samples[off:off+8])
    return out
}
