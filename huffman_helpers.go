package jpeg

// category returns the number of bits needed to represent the magnitude of
// v (0 for v==0), the "size" half of the (size, value) alphabet shared by
// DC coding (§4.3.1) and the lossless predictive residual coding
// (§4.3.7).
func category(v int32) uint8 {
    if v < 0 {
        v = -v
    }
    var n uint8
    for v != 0 {
        n++
        v >>= 1
    }
    return n
}

// extend maps a `size`-bit raw magnitude back to its signed value,
// T.81's EXTEND procedure (Figure F.12): values in the lower half of the
// size-bit range are negative.
func extend(v uint32, size uint8) int32 {
    if size == 0 {
        return 0
    }
    vt := int32(1) << (size - 1)
    iv := int32(v)
    if iv < vt {
        return iv - (int32(1)<<size - 1)
    }
    return iv
}

// magnitudeBits returns the `size`-bit raw magnitude to emit for signed
// value v, the inverse of extend.
func magnitudeBits(v int32, size uint8) uint32 {
    if v < 0 {
        v += int32(1)<<size - 1
    }
    return uint32(v)
}

// readHuffmanValue decodes one Huffman symbol using br as the bit source,
// via ht's decode tree.
func readHuffmanValue(ht *HuffmanTable, br *HuffmanBitReader) (uint8, error) {
    return ht.decodeOne(br.GetBit)
}

// writeHuffmanSymbol emits symbol's canonical code via bw.
func writeHuffmanSymbol(ht *HuffmanTable, bw *HuffmanBitWriter, symbol uint8) error {
    code, length, err := ht.encode(symbol)
    if err != nil {
        return err
    }
    return bw.PutBits(uint32(code), length)
}

// readDCDiff decodes one (size, value) DC/lossless-residual pair: a
// Huffman-coded size followed by `size` raw magnitude bits (§4.3.1,
// §4.3.7).
func readDCDiff(ht *HuffmanTable, br *HuffmanBitReader) (int32, error) {
    size, err := readHuffmanValue(ht, br)
    if err != nil {
        return 0, err
    }
    if size == 0 {
        return 0, nil
    }
    if size > 16 {
        return 0, newErr(MalformedStream, "readDCDiff", "DC size category %d out of range", size)
    }
    bits, err := br.GetBits(size)
    if err != nil {
        return 0, err
    }
    return extend(bits, size), nil
}

// writeDCDiff is the encoder-side mirror of readDCDiff.
func writeDCDiff(ht *HuffmanTable, bw *HuffmanBitWriter, diff int32) error {
    size := category(diff)
    if err := writeHuffmanSymbol(ht, bw, size); err != nil {
        return err
    }
    if size == 0 {
        return nil
    }
    return bw.PutBits(magnitudeBits(diff, size), size)
}

const (
    acEOB = 0x00 // end of block, run=0 size=0
    acZRL = 0xf0 // zero run length: 16 zero coefficients, no value follows
)
