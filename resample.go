package jpeg

// DownsampleMode selects the box filter or the interpolating variant of
// §4.5. The interpolating variant applies the same box average starting
// one input line later; no 1-3-3-1 weighting is applied. It is refused
// alongside a residual side-channel per the §9 resampling design note.
type DownsampleMode int

const (
    DownsampleBox DownsampleMode = iota
    DownsampleInterpolated
)

// UpsampleMode selects among the three upsamplers of §4.5.
type UpsampleMode int

const (
    UpsampleNearest UpsampleMode = iota
    UpsampleBilinear
    UpsampleCentered
)

// Downsampler aggregates (subx*8) x (suby*8) input boxes into 8x8 output
// blocks for one component, parameterised by (subx, suby) in [1..4]^2.
type Downsampler struct {
    subX, subY int
    mode       DownsampleMode

    // ring holds the accumulated input lines not yet consumed by a full
    // output block row; its height grows with SetBufferedRegion.
    ring   [][]int32
    width  int
    interpDelay []int32 // one extra delayed line for the interpolating filter
}

// NewDownsampler validates the residual/interpolation pairing rule of §9:
// "implementations should refuse to pair [the interpolating downsampler]
// with a residual side-channel and fall back to the box filter."
func NewDownsampler(subX, subY int, mode DownsampleMode, residualActive bool, width int) (*Downsampler, error) {
    if subX < 1 || subX > 4 || subY < 1 || subY > 4 {
        return nil, newErr(InvalidParameter, "NewDownsampler", "subsampling (%d,%d) out of [1,4]^2", subX, subY)
    }
    if mode == DownsampleInterpolated && residualActive {
        mode = DownsampleBox // silently fall back, as §9 directs
    }
    return &Downsampler{subX: subX, subY: subY, mode: mode, width: width}, nil
}

// SetBufferedRegion grows the internal line ring to accept nLines more
// input rows before the next DownsampleRegion call.
func (d *Downsampler) SetBufferedRegion(lines [][]int32) {
    d.ring = append(d.ring, lines...)
}

// DownsampleRegion averages a (subx*8) x (suby*8) box of input samples at
// block column bx into an 8x8 output block, duplicating the edge pixel
// past the right image boundary (§4.5).
func (d *Downsampler) DownsampleRegion(bx int) [8][8]int32 {
    var out [8][8]int32
    boxW := d.subX * 8
    area := int32(d.subX * d.subY)
    startRow := 0
    if d.mode == DownsampleInterpolated {
        startRow = 1 // one-line delay, §4.5
    }
    for oy := 0; oy < 8; oy++ {
        for ox := 0; ox < 8; ox++ {
            var sum int32
            for iy := 0; iy < d.subY; iy++ {
                row := startRow + oy*d.subY + iy
                var line []int32
                if row < len(d.ring) {
                    line = d.ring[row]
                } else if len(d.ring) > 0 {
                    line = d.ring[len(d.ring)-1] // duplicate last line at bottom
                }
                for ix := 0; ix < d.subX; ix++ {
                    col := bx*boxW + ox*d.subX + ix
                    if line == nil {
                        continue
                    }
                    if col >= len(line) {
                        col = len(line) - 1 // duplicate edge pixel (§4.5)
                    }
                    if col < 0 {
                        col = 0
                    }
                    sum += line[col]
                }
            }
            out[oy][ox] = (sum + area/2) / area
        }
    }
    return out
}

// Upsampler is the decode-side mirror of Downsampler: it holds a
// three-line window (one above, one below the current block row) so
// vertical interpolation always has context, duplicating the top/bottom
// image lines as needed (§4.5).
type Upsampler struct {
    subX, subY int
    mode       UpsampleMode
    window     [3][]int32 // previous, current, next input line
}

// NewUpsampler constructs an upsampler for the given factor grid and
// style.
func NewUpsampler(subX, subY int, mode UpsampleMode) (*Upsampler, error) {
    if subX < 1 || subX > 4 || subY < 1 || subY > 4 {
        return nil, newErr(InvalidParameter, "NewUpsampler", "subsampling (%d,%d) out of [1,4]^2", subX, subY)
    }
    return &Upsampler{subX: subX, subY: subY, mode: mode}, nil
}

// SetWindow installs the three input lines (previous, current, next)
// surrounding the block row about to be upsampled; at the image's top or
// bottom, callers pass the same line twice to duplicate it.
func (u *Upsampler) SetWindow(prev, cur, next []int32) {
    u.window[0], u.window[1], u.window[2] = prev, cur, next
}

// UpsampleRegion expands one 8x8 subsampled block (supplied pre-cropped
// to the block's footprint in u.window) into a (subx*8) x (suby*8) block
// of full-resolution samples, vertical interpolation first and horizontal
// second, both with the 1:3 or 3:5 tap pattern of §4.5 for the bilinear
// style; nearest and centered styles skip interpolation or shift the tap
// centre for JFIF-style chroma-centered siting respectively.
func (u *Upsampler) UpsampleRegion(bx int) [][]int32 {
    boxW, boxH := u.subX*8, u.subY*8
    out := make([][]int32, boxH)
    for oy := 0; oy < boxH; oy++ {
        out[oy] = make([]int32, boxW)
    }
    for sx := 0; sx < 8; sx++ {
        col := bx*8 + sx
        v := func(line []int32) int32 {
            if line == nil || col >= len(line) {
				if line == nil {
					return 0
				}
				return line[len(line)-1]
			}
            return line[col]
        }
        above, cur, below := v(u.window[0]), v(u.window[1]), v(u.window[2])
        for oy := 0; oy < boxH; oy++ {
            var vline int32
            switch u.mode {
            case UpsampleNearest:
                vline = cur
            case UpsampleCentered:
                // chroma-centred siting: weight toward the sample the
                // subsampled grid is actually centred on
                if oy < boxH/2 {
                    vline = (3*cur + above) / 4
                } else {
                    vline = (3*cur + below) / 4
                }
            default: // UpsampleBilinear, cosited at the pixel grid
                if oy == 0 {
                    vline = cur
                } else if oy < boxH/2 {
                    vline = (3*cur + above) / 4
                } else {
                    vline = (3*cur + below) / 4
                }
            }
            out[oy][sx] = vline // source column sx; the horizontal pass expands it
        }
    }
    // Horizontal pass: for nearest, each output column simply repeats its
    // source column; for bilinear/centered, blend with the neighbouring
    // source column using the same 1:3/3:5 pattern as the vertical pass.
    for oy := 0; oy < boxH; oy++ {
        row := out[oy]
        expanded := make([]int32, boxW)
        for ox := 0; ox < boxW; ox++ {
            srcX := ox / u.subX
            if u.mode == UpsampleNearest || u.subX == 1 {
                expanded[ox] = row[srcX]
                continue
            }
            next := srcX + 1
            if next > 7 {
                next = 7
            }
            frac := ox % u.subX
            weight := int32(2*frac + 1)
            total := int32(2 * u.subX)
            expanded[ox] = (row[srcX]*(total-weight) + row[next]*weight) / total
        }
        out[oy] = expanded
    }
    return out
}
