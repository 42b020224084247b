package jpeg

// marker is a 16-bit JPEG codestream marker, always of the form 0xffXX.
// All multi-byte fields in the codestream are big-endian (§6).
type marker uint16

const (
    _TEM  marker = 0xff01 // temporary use in arithmetic coding

    // Start Of Frame markers, Table B.1. SOF4, SOF8, SOF12 do not exist.
    _SOF0  marker = 0xffc0 // baseline DCT, Huffman
    _SOF1  marker = 0xffc1 // extended sequential DCT, Huffman
    _SOF2  marker = 0xffc2 // progressive DCT, Huffman
    _SOF3  marker = 0xffc3 // lossless (sequential), Huffman
    _DHT   marker = 0xffc4 // define Huffman table(s)
    _SOF5  marker = 0xffc5 // differential sequential DCT, Huffman
    _SOF6  marker = 0xffc6 // differential progressive DCT, Huffman
    _SOF7  marker = 0xffc7 // differential lossless, Huffman
    _JPG   marker = 0xffc8 // reserved (JPG extensions)
    _SOF9  marker = 0xffc9 // extended sequential DCT, arithmetic
    _SOF10 marker = 0xffca // progressive DCT, arithmetic
    _SOF11 marker = 0xffcb // lossless (sequential), arithmetic
    _DAC   marker = 0xffcc // define arithmetic coding conditioning(s)
    _SOF13 marker = 0xffcd // differential sequential DCT, arithmetic
    _SOF14 marker = 0xffce // differential progressive DCT, arithmetic
    _SOF15 marker = 0xffcf // differential lossless, arithmetic

    _RST0 marker = 0xffd0 // restart markers RST0..RST7 cycle mod 8
    _RST1 marker = 0xffd1
    _RST2 marker = 0xffd2
    _RST3 marker = 0xffd3
    _RST4 marker = 0xffd4
    _RST5 marker = 0xffd5
    _RST6 marker = 0xffd6
    _RST7 marker = 0xffd7

    _SOI marker = 0xffd8 // start of image
    _EOI marker = 0xffd9 // end of image
    _SOS marker = 0xffda // start of scan
    _DQT marker = 0xffdb // define quantization table(s)
    _DNL marker = 0xffdc // define number of lines
    _DRI marker = 0xffdd // define restart interval
    _DHP marker = 0xffde // define hierarchical progression (dimensions)
    _EXP marker = 0xffdf // expand reference components

    _APP0  marker = 0xffe0
    _APP9  marker = 0xffe9 // hidden-refinement/residual side channel payload
    _APP15 marker = 0xffef

    _COM marker = 0xfffe // comment

    _SOFLS marker = 0xfff7 // SOF55, JPEG-LS (ITU-T T.87)
    _LSE   marker = 0xfff8 // JPEG-LS preset parameters
)

func isRestart(m marker) bool { return m >= _RST0 && m <= _RST7 }

func isFrameMarker(m marker) bool {
    switch m {
    case _SOF0, _SOF1, _SOF2, _SOF3, _SOF5, _SOF6, _SOF7,
        _SOF9, _SOF10, _SOF11, _SOF13, _SOF14, _SOF15, _SOFLS:
        return true
    }
    return false
}

// restartIndex returns n such that m == RSTn, or -1 if m is not a restart
// marker.
func restartIndex(m marker) int {
    if !isRestart(m) {
        return -1
    }
    return int(m - _RST0)
}

// nextRestart returns the marker for RST(n mod 8), implementing the
// "eight-state counter" of §6.
func nextRestart(n int) marker {
    return _RST0 + marker(n%8)
}
