package jpeg

import "testing"

// TestBuildHuffmanTableRoundTrip constructs the canonical baseline luma DC
// table (Annex K.3, Table K.3) and checks that every symbol's encoded code
// decodes back to itself when walked bit by bit through decodeOne.
func TestBuildHuffmanTableRoundTrip(t *testing.T) {
    var bits [16][]uint8
    bits[1] = []uint8{0}
    bits[2] = []uint8{1, 2, 3, 4, 5}
    bits[3] = []uint8{6}
    bits[4] = []uint8{7}
    bits[5] = []uint8{8}
    bits[6] = []uint8{9}
    bits[7] = []uint8{10}
    bits[8] = []uint8{11}

    ht, err := buildHuffmanTable(bits)
    if err != nil {
        t.Fatalf("buildHuffmanTable: %v", err)
    }

    for _, list := range bits {
        for _, symbol := range list {
            code, length, err := ht.encode(symbol)
            if err != nil {
                t.Fatalf("encode(%d): %v", symbol, err)
            }
            pos := 0
            next := func() (bool, error) {
                bit := (code>>(length-1-uint8(pos)))&1 == 1
                pos++
                return bit, nil
            }
            decoded, err := ht.decodeOne(next)
            if err != nil {
                t.Fatalf("decodeOne after encoding %d: %v", symbol, err)
            }
            if decoded != symbol {
                t.Errorf("round trip: encoded %d, decoded %d", symbol, decoded)
            }
        }
    }
}

func TestBuildHuffmanTableRejectsOverflow(t *testing.T) {
    var bits [16][]uint8
    // Three one-bit codes are one too many: only "0" and "1" exist at
    // length 1, so the third symbol overflows.
    bits[0] = []uint8{0, 1, 2}
    if _, err := buildHuffmanTable(bits); err == nil {
        t.Fatalf("expected an overflow error for too many length-1 codes")
    }
}

func TestCategoryAndExtend(t *testing.T) {
    cases := []struct {
        v    int32
        size uint8
    }{
        {0, 0}, {1, 1}, {-1, 1}, {2, 2}, {-3, 2}, {127, 7}, {-128, 8},
    }
    for _, c := range cases {
        if got := category(c.v); got != c.size {
            t.Errorf("category(%d) = %d, want %d", c.v, got, c.size)
        }
    }
    for _, c := range cases {
        if c.size == 0 {
            continue
        }
        mag := magnitudeBits(c.v, c.size)
        got := extend(mag, c.size)
        if got != c.v {
            t.Errorf("extend(magnitudeBits(%d, %d), %d) = %d, want %d", c.v, c.size, c.size, got, c.v)
        }
    }
}

func TestDefaultLSEParameters(t *testing.T) {
    p := defaultLSEParameters(255, 0)
    if p.T1 <= 0 || p.T2 <= p.T1 || p.T3 <= p.T2 || p.T3 > 255 {
        t.Errorf("default JPEG-LS thresholds out of order: %+v", p)
    }
    if p.Reset != 64 {
        t.Errorf("default RESET = %d, want 64", p.Reset)
    }
}
