package biff

import (
	"errors"
	"fmt"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"github.com/pbnjay/biffcodec"
)

var (
	// ErrRecordTooLarge is returned when a single value can never fit in one record.
	ErrRecordTooLarge = biffcodec.WrapErr(errors.New("biff: value larger than a record"), biffcodec.ErrContract)

	// ErrWriterTerminated is returned for writes after Terminate.
	ErrWriterTerminated = biffcodec.WrapErr(errors.New("biff: record already terminated"), biffcodec.ErrContract)
)

// record type used by counting writers; it is never emitted
const countingSid RecordType = 0xFD09

// String option flags (2.5.293).
const (
	flagHighByte  = 0x01 // characters are 16-bit
	flagExtString = 0x04 // phonetic/extended data follows
	flagRichText  = 0x08 // formatting runs follow
)

// frameOutput is one record frame whose size is written once the payload is
// complete. Outputs that support Delay get the size patched in place;
// for all others the payload is buffered and flushed on terminate.
type frameOutput struct {
	orig Output
	size Output
	buf  *BufferOutput
	out  Output // nil after terminate
	n    int
}

func newFrameOutput(out Output, sid RecordType) *frameOutput {
	f := &frameOutput{orig: out}
	out.WriteUint16(uint16(sid))
	if d, ok := out.(DelayableOutput); ok {
		f.size = d.Delay(2)
		f.out = out
	} else {
		f.size = out
		f.buf = NewBufferOutput(MaxRecordDataSize)
		f.out = f.buf
	}
	return f
}

func (f *frameOutput) available() int {
	return MaxRecordDataSize - f.n
}

func (f *frameOutput) totalSize() int {
	return HeaderSize + f.n
}

func (f *frameOutput) terminate() {
	f.size.WriteUint16(uint16(f.n))
	if f.buf != nil {
		f.orig.WriteBytes(f.buf.Bytes())
	}
	f.out = nil
}

func (f *frameOutput) writeUint8(v uint8)   { f.out.WriteUint8(v); f.n++ }
func (f *frameOutput) writeUint16(v uint16) { f.out.WriteUint16(v); f.n += 2 }
func (f *frameOutput) writeUint32(v uint32) { f.out.WriteUint32(v); f.n += 4 }
func (f *frameOutput) writeUint64(v uint64) { f.out.WriteUint64(v); f.n += 8 }
func (f *frameOutput) writeFloat64(v float64) {
	f.out.WriteFloat64(v)
	f.n += 8
}
func (f *frameOutput) writeBytes(p []byte) { f.out.WriteBytes(p); f.n += len(p) }

// ContinuableWriter writes one logical record, splitting it into Continue
// records whenever the next value does not fit in the current frame. Values
// are never split, except by WriteSpanning and inside strings.
//
// Errors are sticky: after the first one every write is ignored and Err and
// Terminate report it.
type ContinuableWriter struct {
	out      Output
	frame    *frameOutput
	previous int // total size of finished frames, headers included
	done     bool
	err      error
}

// NewContinuableWriter starts a record of type sid on out.
func NewContinuableWriter(out Output, sid RecordType) *ContinuableWriter {
	return &ContinuableWriter{
		out:   out,
		frame: newFrameOutput(out, sid),
	}
}

// NewCountingWriter returns a writer that emits nothing and only computes TotalSize.
func NewCountingWriter() *ContinuableWriter {
	return NewContinuableWriter(&CountingOutput{}, countingSid)
}

// TotalSize returns the size of all frames written so far, headers included.
func (w *ContinuableWriter) TotalSize() int {
	return w.previous + w.frame.totalSize()
}

// AvailableSpace returns the free payload bytes in the current frame.
func (w *ContinuableWriter) AvailableSpace() int {
	if w.done {
		return 0
	}
	return w.frame.available()
}

// Err returns the first error encountered.
func (w *ContinuableWriter) Err() error {
	if w.err != nil {
		return w.err
	}
	return w.out.Err()
}

// Terminate finishes the last frame. The writer cannot be used afterwards.
func (w *ContinuableWriter) Terminate() error {
	if w.done {
		if w.err == nil {
			w.err = ErrWriterTerminated
		}
		return w.err
	}
	w.done = true
	w.frame.terminate()
	return w.Err()
}

// WriteContinue finishes the current frame and starts a Continue record.
func (w *ContinuableWriter) WriteContinue() {
	if !w.usable() {
		return
	}
	w.frame.terminate()
	w.previous += w.frame.totalSize()
	w.frame = newFrameOutput(w.out, RecTypeContinue)
}

// WriteContinueIfRequired starts a Continue record unless n bytes fit in the
// current frame.
func (w *ContinuableWriter) WriteContinueIfRequired(n int) {
	if !w.usable() {
		return
	}
	if n > MaxRecordDataSize {
		w.err = biffcodec.WrapErr(fmt.Errorf("biff: %d bytes cannot fit in a %d byte record", n, MaxRecordDataSize), ErrRecordTooLarge)
		return
	}
	if w.frame.available() < n {
		w.WriteContinue()
	}
}

func (w *ContinuableWriter) usable() bool {
	if w.err != nil {
		return false
	}
	if w.done {
		w.err = ErrWriterTerminated
		return false
	}
	return true
}

// reserve makes room for n contiguous bytes and reports whether the write may go ahead.
func (w *ContinuableWriter) reserve(n int) bool {
	w.WriteContinueIfRequired(n)
	return w.err == nil
}

func (w *ContinuableWriter) WriteUint8(v uint8) {
	if w.reserve(1) {
		w.frame.writeUint8(v)
	}
}

func (w *ContinuableWriter) WriteUint16(v uint16) {
	if w.reserve(2) {
		w.frame.writeUint16(v)
	}
}

func (w *ContinuableWriter) WriteUint32(v uint32) {
	if w.reserve(4) {
		w.frame.writeUint32(v)
	}
}

func (w *ContinuableWriter) WriteUint64(v uint64) {
	if w.reserve(8) {
		w.frame.writeUint64(v)
	}
}

func (w *ContinuableWriter) WriteFloat64(v float64) {
	if w.reserve(8) {
		w.frame.writeFloat64(v)
	}
}

// WriteBytes writes p into a single frame.
func (w *ContinuableWriter) WriteBytes(p []byte) {
	if w.reserve(len(p)) {
		w.frame.writeBytes(p)
	}
}

// WriteSpanning writes p, filling each frame before continuing in the next.
func (w *ContinuableWriter) WriteSpanning(p []byte) {
	for len(p) > 0 && w.usable() {
		n := w.frame.available()
		if n == 0 {
			w.WriteContinue()
			continue
		}
		if n > len(p) {
			n = len(p)
		}
		w.frame.writeBytes(p[:n])
		p = p[n:]
	}
}

// encodeString returns the characters of s and whether they need 16 bits.
// Characters outside ISO-8859-1 force the 16-bit encoding.
func encodeString(s string) (units []uint16, wide bool) {
	runes := []rune(s)
	for _, r := range runes {
		if _, ok := charmap.ISO8859_1.EncodeRune(r); !ok {
			return utf16.Encode(runes), true
		}
	}
	units = make([]uint16, len(runes))
	for i, r := range runes {
		b, _ := charmap.ISO8859_1.EncodeRune(r)
		units[i] = uint16(b)
	}
	return units, false
}

// WriteStringData writes the option byte and characters of s, without a
// length (the caller writes it elsewhere).
func (w *ContinuableWriter) WriteStringData(s string) {
	units, wide := encodeString(s)
	keepTogether := 1 + 1 // option byte, at least one character byte
	var flags uint8
	if wide {
		flags |= flagHighByte
		keepTogether++
	}
	w.WriteContinueIfRequired(keepTogether)
	w.WriteUint8(flags)
	w.writeCharacterData(units, wide)
}

// WriteString writes s as an XLUnicodeRichExtendedString header followed by its
// characters. The caller writes the numRuns formatting runs and extSize bytes
// of extended data afterwards.
func (w *ContinuableWriter) WriteString(s string, numRuns int, extSize int) {
	units, wide := encodeString(s)
	if err := checkStringCounts(len(units), numRuns, extSize); err != nil {
		if w.usable() {
			w.err = err
		}
		return
	}
	keepTogether := 2 + 1 + 1 // length, option byte, at least one character byte
	var flags uint8
	if wide {
		flags |= flagHighByte
		keepTogether++
	}
	if numRuns > 0 {
		flags |= flagRichText
		keepTogether += 2
	}
	if extSize > 0 {
		flags |= flagExtString
		keepTogether += 4
	}
	w.WriteContinueIfRequired(keepTogether)
	w.WriteUint16(uint16(len(units)))
	w.WriteUint8(flags)
	if numRuns > 0 {
		w.WriteUint16(uint16(numRuns))
	}
	if extSize > 0 {
		w.WriteUint32(uint32(extSize))
	}
	w.writeCharacterData(units, wide)
}

// ErrStringTooLong is returned for strings whose character, run or extended
// data counts do not fit their length fields.
var ErrStringTooLong = biffcodec.WrapErr(errors.New("biff: string too long for its length field"), biffcodec.ErrContract)

func checkStringCounts(nchars, numRuns, extSize int) error {
	switch {
	case nchars > 0xFFFF:
		return biffcodec.WrapErr(fmt.Errorf("biff: %d characters in a string, at most %d allowed", nchars, 0xFFFF), ErrStringTooLong)
	case numRuns < 0 || numRuns > 0xFFFF:
		return biffcodec.WrapErr(fmt.Errorf("biff: %d formatting runs in a string, at most %d allowed", numRuns, 0xFFFF), ErrStringTooLong)
	case extSize < 0 || int64(extSize) > 0xFFFFFFFF:
		return biffcodec.WrapErr(fmt.Errorf("biff: %d bytes of extended string data", extSize), ErrStringTooLong)
	}
	return nil
}

// writeCharacterData fills each frame with as many whole characters as fit.
// Every Continue started here begins with a fresh option byte.
func (w *ContinuableWriter) writeCharacterData(units []uint16, wide bool) {
	size := 1
	var flags uint8
	if wide {
		size = 2
		flags = flagHighByte
	}
	for w.err == nil {
		n := w.frame.available() / size
		if n > len(units) {
			n = len(units)
		}
		for _, u := range units[:n] {
			if wide {
				w.frame.writeUint16(u)
			} else {
				w.frame.writeUint8(uint8(u))
			}
		}
		units = units[n:]
		if len(units) == 0 {
			return
		}
		w.WriteContinue()
		w.WriteUint8(flags)
	}
}

// WriteUnicodeString writes a complete XLUnicodeRichExtendedString.
func (w *ContinuableWriter) WriteUnicodeString(u UnicodeString) {
	w.WriteString(u.Text, len(u.Runs), len(u.ExtData))
	for _, r := range u.Runs {
		w.WriteContinueIfRequired(4)
		w.WriteUint16(r.CharIndex)
		w.WriteUint16(r.FontIndex)
	}
	w.WriteSpanning(u.ExtData)
}
