package jpeg

import "testing"

func TestStuffingWriterEscapesFF(t *testing.T) {
    var buf fakeWriter
    sw := newStuffingWriter(&buf)
    if _, err := sw.Write([]byte{0x01, 0xff, 0x02}); err != nil {
        t.Fatalf("Write: %v", err)
    }
    if err := sw.Flush(); err != nil {
        t.Fatalf("Flush: %v", err)
    }
    want := []byte{0x01, 0xff, 0x00, 0x02}
    if string(buf.data) != string(want) {
        t.Errorf("got %x, want %x", buf.data, want)
    }
}

func TestHuffmanBitReaderUnstuffsAndFindsMarker(t *testing.T) {
    data := []byte{0xaa, 0xff, 0x00, 0x55, 0xff, 0xd0}
    r := newHuffmanBitReader(data, 0)
    v, err := r.GetBits(8)
    if err != nil || v != 0xaa {
        t.Fatalf("first byte: got %x, err %v", v, err)
    }
    v, err = r.GetBits(8)
    if err != nil || v != 0xff {
        t.Fatalf("unstuffed 0xff: got %x, err %v", v, err)
    }
    v, err = r.GetBits(8)
    if err != nil || v != 0x55 {
        t.Fatalf("third byte: got %x, err %v", v, err)
    }
    m, ok := r.PendingMarker()
    if !ok || m != _RST0 {
        t.Fatalf("expected pending RST0 marker, got %04x ok=%v", m, ok)
    }
}

func TestHuffmanBitWriterPadsWithOnes(t *testing.T) {
    var buf fakeWriter
    w := newHuffmanBitWriter(&buf)
    if err := w.PutBits(0x0d, 4); err != nil { // 1101
        t.Fatalf("PutBits: %v", err)
    }
    if err := w.Flush(); err != nil {
        t.Fatalf("Flush: %v", err)
    }
    if len(buf.data) != 1 {
        t.Fatalf("expected exactly one byte, got %d", len(buf.data))
    }
    if buf.data[0] != 0xdf { // 1101 then four 1-bit pad = 1101_1111
        t.Errorf("got %08b, want %08b", buf.data[0], 0xdf)
    }
}

type fakeWriter struct{ data []byte }

func (f *fakeWriter) Write(p []byte) (int, error) {
    f.data = append(f.data, p...)
    return len(p), nil
}
