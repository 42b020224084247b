package jpeg

import "testing"

func TestIsFrameMarker(t *testing.T) {
    for _, m := range []marker{_SOF0, _SOF1, _SOF2, _SOF3, _SOF5, _SOF9, _SOFLS} {
        if !isFrameMarker(m) {
            t.Errorf("marker %04x should be a frame marker", m)
        }
    }
    for _, m := range []marker{_DHT, _SOS, _EOI, _DQT} {
        if isFrameMarker(m) {
            t.Errorf("marker %04x should not be a frame marker", m)
        }
    }
}

func TestRestartIndexAndNext(t *testing.T) {
    for i := 0; i < 8; i++ {
        m := nextRestart(i)
        if !isRestart(m) {
            t.Fatalf("nextRestart(%d) = %04x is not a restart marker", i, m)
        }
        if idx := restartIndex(m); idx != i {
            t.Errorf("restartIndex(nextRestart(%d)) = %d, want %d", i, idx, i)
        }
    }
    if nextRestart(8) != _RST0 {
        t.Errorf("nextRestart should wrap mod 8")
    }
    if restartIndex(_SOS) != -1 {
        t.Errorf("restartIndex of a non-restart marker should be -1")
    }
}
