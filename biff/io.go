package biff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/pbnjay/biffcodec"
)

// Input reads little-endian primitives. Reads return io.EOF when no bytes were
// available and io.ErrUnexpectedEOF when a value was cut short.
type Input interface {
	// Available returns the number of bytes left, or -1 when unknown.
	Available() int

	ReadUint8() (uint8, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadFloat64() (float64, error)
	ReadFull(p []byte) error
}

// Output writes little-endian primitives. Writes do not report errors
// individually; the first failure is kept and returned by Err, and later writes
// are dropped.
type Output interface {
	WriteUint8(v uint8)
	WriteUint16(v uint16)
	WriteUint32(v uint32)
	WriteUint64(v uint64)
	WriteFloat64(v float64)
	WriteBytes(p []byte)

	Err() error
}

// DelayableOutput is an Output that can reserve bytes at the current position
// and fill them in later, such as a record size that is only known once
// the payload has been written.
type DelayableOutput interface {
	Output

	// Delay reserves n bytes and returns an Output limited to them.
	Delay(n int) Output
}

/////////////

type readerInput struct {
	r   io.Reader
	buf [8]byte
}

// NewInput returns an Input reading from r. Available is exact when r has a
// Len method (such as *bytes.Reader).
func NewInput(r io.Reader) Input {
	return &readerInput{r: r}
}

func (in *readerInput) Available() int {
	if l, ok := in.r.(interface{ Len() int }); ok {
		return l.Len()
	}
	return -1
}

func (in *readerInput) read(n int) ([]byte, error) {
	_, err := io.ReadFull(in.r, in.buf[:n])
	return in.buf[:n], err
}

func (in *readerInput) ReadUint8() (uint8, error) {
	b, err := in.read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (in *readerInput) ReadUint16() (uint16, error) {
	b, err := in.read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (in *readerInput) ReadUint32() (uint32, error) {
	b, err := in.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (in *readerInput) ReadUint64() (uint64, error) {
	b, err := in.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (in *readerInput) ReadFloat64() (float64, error) {
	v, err := in.ReadUint64()
	return math.Float64frombits(v), err
}

func (in *readerInput) ReadFull(p []byte) error {
	_, err := io.ReadFull(in.r, p)
	return err
}

/////////////

// BufferOutput collects output in memory. It supports Delay.
type BufferOutput struct {
	buf []byte
}

var _ DelayableOutput = &BufferOutput{}

// NewBufferOutput returns an empty BufferOutput with room for capacity bytes.
func NewBufferOutput(capacity int) *BufferOutput {
	return &BufferOutput{buf: make([]byte, 0, capacity)}
}

// Bytes returns the written data. It aliases the internal buffer.
func (o *BufferOutput) Bytes() []byte { return o.buf }

// Len returns the number of bytes written.
func (o *BufferOutput) Len() int { return len(o.buf) }

// Reset discards all written data.
func (o *BufferOutput) Reset() { o.buf = o.buf[:0] }

func (o *BufferOutput) WriteUint8(v uint8) { o.buf = append(o.buf, v) }

func (o *BufferOutput) WriteUint16(v uint16) {
	o.buf = binary.LittleEndian.AppendUint16(o.buf, v)
}

func (o *BufferOutput) WriteUint32(v uint32) {
	o.buf = binary.LittleEndian.AppendUint32(o.buf, v)
}

func (o *BufferOutput) WriteUint64(v uint64) {
	o.buf = binary.LittleEndian.AppendUint64(o.buf, v)
}

func (o *BufferOutput) WriteFloat64(v float64) { o.WriteUint64(math.Float64bits(v)) }

func (o *BufferOutput) WriteBytes(p []byte) { o.buf = append(o.buf, p...) }

func (o *BufferOutput) Err() error { return nil }

// Delay implements DelayableOutput.
func (o *BufferOutput) Delay(n int) Output {
	off := len(o.buf)
	o.buf = append(o.buf, make([]byte, n)...)
	return &delayedOutput{parent: o, off: off, end: off + n}
}

// delayedOutput writes into a reserved range of its parent. The parent slice may
// be reallocated by later appends, so positions are kept as offsets.
type delayedOutput struct {
	parent   *BufferOutput
	off, end int
	err      error
}

var errDelayedOverflow = biffcodec.WrapErr(errors.New("biff: write past reserved space"), biffcodec.ErrContract)

func (d *delayedOutput) put(p []byte) {
	if d.err != nil {
		return
	}
	if d.off+len(p) > d.end {
		d.err = errDelayedOverflow
		return
	}
	d.off += copy(d.parent.buf[d.off:d.end], p)
}

func (d *delayedOutput) WriteUint8(v uint8) { d.put([]byte{v}) }

func (d *delayedOutput) WriteUint16(v uint16) {
	d.put(binary.LittleEndian.AppendUint16(nil, v))
}

func (d *delayedOutput) WriteUint32(v uint32) {
	d.put(binary.LittleEndian.AppendUint32(nil, v))
}

func (d *delayedOutput) WriteUint64(v uint64) {
	d.put(binary.LittleEndian.AppendUint64(nil, v))
}

func (d *delayedOutput) WriteFloat64(v float64) { d.WriteUint64(math.Float64bits(v)) }

func (d *delayedOutput) WriteBytes(p []byte) { d.put(p) }

func (d *delayedOutput) Err() error { return d.err }

/////////////

// StreamOutput writes to an io.Writer. It cannot Delay, so record frames
// written through it are buffered until their size is known.
type StreamOutput struct {
	w   io.Writer
	n   int64
	err error
	buf [8]byte
}

// NewStreamOutput returns an Output writing to w.
func NewStreamOutput(w io.Writer) *StreamOutput {
	return &StreamOutput{w: w}
}

func (o *StreamOutput) write(p []byte) {
	if o.err != nil {
		return
	}
	n, err := o.w.Write(p)
	o.n += int64(n)
	if err != nil {
		o.err = fmt.Errorf("biff: write failed: %w", err)
	}
}

// Written returns the number of bytes accepted by the writer.
func (o *StreamOutput) Written() int64 { return o.n }

func (o *StreamOutput) WriteUint8(v uint8) {
	o.buf[0] = v
	o.write(o.buf[:1])
}

func (o *StreamOutput) WriteUint16(v uint16) {
	binary.LittleEndian.PutUint16(o.buf[:], v)
	o.write(o.buf[:2])
}

func (o *StreamOutput) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(o.buf[:], v)
	o.write(o.buf[:4])
}

func (o *StreamOutput) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(o.buf[:], v)
	o.write(o.buf[:8])
}

func (o *StreamOutput) WriteFloat64(v float64) { o.WriteUint64(math.Float64bits(v)) }

func (o *StreamOutput) WriteBytes(p []byte) { o.write(p) }

func (o *StreamOutput) Err() error { return o.err }

/////////////

// CountingOutput discards everything and counts bytes.
type CountingOutput struct {
	N int
}

var _ DelayableOutput = &CountingOutput{}

func (o *CountingOutput) WriteUint8(uint8)     { o.N++ }
func (o *CountingOutput) WriteUint16(uint16)   { o.N += 2 }
func (o *CountingOutput) WriteUint32(uint32)   { o.N += 4 }
func (o *CountingOutput) WriteUint64(uint64)   { o.N += 8 }
func (o *CountingOutput) WriteFloat64(float64) { o.N += 8 }
func (o *CountingOutput) WriteBytes(p []byte)  { o.N += len(p) }
func (o *CountingOutput) Err() error           { return nil }

// Delay counts the reserved bytes now; writes to the result are not counted again.
func (o *CountingOutput) Delay(n int) Output {
	o.N += n
	return &CountingOutput{}
}
