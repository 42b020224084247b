package jpeg

import (
    "io"
    "os"
    "sync"

    "github.com/rs/zerolog"
)

// warningRingSize bounds the diagnostic channel kept on every Image: the
// parser never aborts mid-image on a recoverable condition (§4.2, §7), it
// records a warning and keeps going, so the ring must not grow without
// bound across a large, badly mangled stream.
const warningRingSize = 64

// Warning is one recoverable anomaly observed while parsing or writing.
type Warning struct {
    Kind ErrorKind
    Op   string
    Msg  string
}

// warnings is a bounded ring buffer of the most recent Warning values,
// embedded in Image. §9 calls for "warnings as a diagnostic channel on the
// parser object (bounded ring) rather than a global sink" - this is that
// ring.
type warnings struct {
    mu   sync.Mutex
    buf  [warningRingSize]Warning
    next int
    n    int
}

func (w *warnings) add(kind ErrorKind, op, msg string) {
    w.mu.Lock()
    defer w.mu.Unlock()
    w.buf[w.next] = Warning{Kind: kind, Op: op, Msg: msg}
    w.next = (w.next + 1) % warningRingSize
    if w.n < warningRingSize {
        w.n++
    }
}

// Warnings returns the recorded warnings in the order they were raised,
// oldest first, capped at warningRingSize entries.
func (w *warnings) Warnings() []Warning {
    w.mu.Lock()
    defer w.mu.Unlock()
    out := make([]Warning, w.n)
    start := w.next - w.n
    if start < 0 {
        start += warningRingSize
    }
    for i := 0; i < w.n; i++ {
        out[i] = w.buf[(start+i)%warningRingSize]
    }
    return out
}

// newLogger builds the zerolog.Logger carried by Image. Image.warn writes
// each warning through it at Warn level; nothing is logged at Debug. This
// matches the way bugVanisher-streamer wires zerolog: one logger
// instance threaded through the object it instruments, not a package
// global.
func newLogger(w io.Writer) zerolog.Logger {
    if w == nil {
        w = os.Stderr
    }
    return zerolog.New(w).With().Timestamp().Logger()
}
