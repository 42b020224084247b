package jpeg

// EntropyParser is the uniform contract every scan-kind variant
// implements (§4.2): one polymorphic scan engine per (frame-type,
// scan-parameters) pair, modelled here as a Go interface with one
// concrete type per variant rather than the source's virtual dispatch
// plus template specialisation (§9 "Polymorphic scan engines").
type EntropyParser interface {
    // StartRead binds the parser to a byte stream positioned after SOS,
    // resetting all per-scan state and the buffer cursor of every
    // component in the scan.
    StartRead(data []byte, pos int) error

    // StartWrite opens the bit/arithmetic coder on sink. The SOS marker
    // and the scan's DHT segments are written by Encoder.writeScan before
    // this call, not by the parser.
    StartWrite(sink *stuffingWriter) error

    // StartMeasure prepares table measurement. Arithmetic variants return
    // NotImplemented. SequentialHuffmanParser allocates zeroed per-symbol
    // counters; the other Huffman variants do nothing. No variant records
    // symbols into counters: WriteMCU always codes through the bit writer.
    StartMeasure() error

    // StartMCURow reports whether another MCU row exists in the frame,
    // cueing the buffer control to allocate blocks/lines.
    StartMCURow() (bool, error)

    // ParseMCU/WriteMCU consume or produce one MCU, returning true if
    // more MCUs remain in the current row.
    ParseMCU() (bool, error)
    WriteMCU() (bool, error)

    // Restart resets DC predictors, QM contexts and run index, then
    // reopens the coder at the next byte-aligned position.
    Restart() error

    // Flush pads and closes the coder on the encoder side; on the final
    // call it also commits any side-stream buffer to its marker.
    Flush(final bool) error

    // WriteFrameType reports the process tag this scan should be
    // announced under in the frame header. Hidden/residual wrappers
    // override this to report the *next* real scan's type, since they
    // are not themselves announced by a frame header (§4.3.9).
    WriteFrameType() Process
}

// scanBase is embedded by every concrete parser: the restart-interval
// bookkeeping shared across all 13 variants (§4.2 "Restart-interval
// handling (shared base)").
type scanBase struct {
    scan   *Scan
    image  *Image
    blocks *BlockBuffer
    lines  *LineBuffer

    reader *HuffmanBitReader
    writer *HuffmanBitWriter

    mcusToGo   int // counts down from DRI to 0
    restartIdx int // next expected RSTn, 0..7

    bytePos int // absolute offset, decode side
}

func (b *scanBase) resetRestartCounter() {
    b.mcusToGo = b.scan.restartInterval
    b.restartIdx = 0
}

// consumeMCU decrements the restart counter and reports whether a restart
// boundary was just crossed.
func (b *scanBase) consumeMCU() (hitRestart bool) {
    if b.scan.restartInterval == 0 {
        return false
    }
    b.mcusToGo--
    if b.mcusToGo == 0 {
        b.mcusToGo = b.scan.restartInterval
        return true
    }
    return false
}

// writeRestartMarker emits the next RSTn (n cycling 0..7) on the encoder
// side, flushing the bit writer to a byte boundary first.
func (b *scanBase) writeRestartMarker() error {
    if err := b.writer.Flush(); err != nil {
        return err
    }
    m := nextRestart(b.restartIdx)
    b.restartIdx = (b.restartIdx + 1) % 8
    return writeMarkerHeader(b.writer.sink, m, nil)
}

// resyncToRestart implements the decode-side resync policy of §4.2 on the
// marker the reader has stopped at: 0xFF fill bytes in front of it are
// skipped; if the marker matches the expected RSTn it is consumed and
// decoding continues; if it is another RST0..RST7 less than 4 (mod 8)
// ahead, it is accepted and the counter follows it; if it is 4 or more
// ahead, an OutOfSync error is returned, on which the orchestrator ends
// the scan. There is no forward search: when the reader is not at a
// marker, UnexpectedEof is returned.
func (b *scanBase) resyncToRestart() error {
    expected := nextRestart(b.restartIdx)
    for {
        m, ok := b.reader.PendingMarker()
        if !ok {
            // Not at a marker: the segment holds data the MCUs did not
            // consume. Realign only drops the partial byte.
            b.reader.Realign()
            m, ok = b.reader.PendingMarker()
            if !ok {
                return newErr(UnexpectedEof, "resyncToRestart", "no marker found while resyncing to %04x", expected)
            }
        }
        if m == 0xffff { // fill byte: step over one 0xff and look again
            src := b.reader.src
            src.hasMarker = false
            src.pos++
            src.peekMarker()
            continue
        }
        if m == expected {
            b.reader.ConsumeMarker()
            b.restartIdx = (b.restartIdx + 1) % 8
            return nil
        }
        if isRestart(m) {
            gap := (restartIndex(m) - restartIndex(expected) + 8) % 8
            if gap >= 4 {
                b.image.warn(OutOfSync, "resyncToRestart",
                    "restart marker %04x is far ahead of expected %04x; abandoning current interval", m, expected)
                return &CodecError{Kind: OutOfSync, op: "resyncToRestart"}
            }
            // A nearer, but still unexpected, restart marker: accept it
            // and resynchronise the counter to it rather than stalling.
            b.reader.ConsumeMarker()
            b.restartIdx = (restartIndex(m) + 1) % 8
            return nil
        }
        // Any other marker in 0xFFC0..0xFFEF range ends the scan; DNL is
        // handled by the orchestrator before re-entering the parser.
        return &CodecError{Kind: OutOfSync, op: "resyncToRestart", err: errScanEnded}
    }
}

var errScanEnded = newErr(MalformedStream, "resyncToRestart", "non-restart marker ends the scan")

// writeMarkerHeader writes a bare marker (no length/payload), used for
// RSTn which carries none.
func writeMarkerHeader(w *stuffingWriter, m marker, payload []byte) error {
    hdr := []byte{byte(m >> 8), byte(m)}
    if _, err := w.w.Write(hdr); err != nil {
        return wrapErr(MalformedStream, "writeMarkerHeader", err)
    }
    if payload != nil {
        if _, err := w.w.Write(payload); err != nil {
            return wrapErr(MalformedStream, "writeMarkerHeader", err)
        }
    }
    return nil
}
