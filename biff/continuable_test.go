package biff

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbnjay/biffcodec"
)

type valueKind int

const (
	kindUint8 valueKind = iota
	kindUint16
	kindUint32
	kindUint64
	kindFloat64
	kindBytes
	numKinds
)

var kindSize = [numKinds]int{1, 2, 4, 8, 8, 13}

type value struct {
	kind valueKind
	n    uint64
	f    float64
	b    []byte
}

// valuesOfSize returns a mix of every value kind whose encoding is exactly size bytes.
func valuesOfSize(size int) []value {
	var res []value
	total := 0
	for i := 0; total < size; i++ {
		k := valueKind(i % int(numKinds))
		if kindSize[k] > size-total {
			k = kindUint8
		}
		v := value{kind: k, n: uint64(i)*0x9E3779B97F4A7C15 + 1}
		switch k {
		case kindFloat64:
			v.f = float64(i) * 1.25
		case kindBytes:
			v.b = []byte(fmt.Sprintf("raw bytes %03d", i%1000))
		}
		res = append(res, v)
		total += kindSize[k]
	}
	return res
}

func writeValues(out Output, values []value) {
	for _, v := range values {
		switch v.kind {
		case kindUint8:
			out.WriteUint8(uint8(v.n))
		case kindUint16:
			out.WriteUint16(uint16(v.n))
		case kindUint32:
			out.WriteUint32(uint32(v.n))
		case kindUint64:
			out.WriteUint64(v.n)
		case kindFloat64:
			out.WriteFloat64(v.f)
		case kindBytes:
			out.WriteBytes(v.b)
		}
	}
}

func readValues(t *testing.T, in Input, values []value) {
	t.Helper()
	for i, v := range values {
		var err error
		switch v.kind {
		case kindUint8:
			var x uint8
			x, err = in.ReadUint8()
			assert.Equal(t, uint8(v.n), x, "value %d", i)
		case kindUint16:
			var x uint16
			x, err = in.ReadUint16()
			assert.Equal(t, uint16(v.n), x, "value %d", i)
		case kindUint32:
			var x uint32
			x, err = in.ReadUint32()
			assert.Equal(t, uint32(v.n), x, "value %d", i)
		case kindUint64:
			var x uint64
			x, err = in.ReadUint64()
			assert.Equal(t, v.n, x, "value %d", i)
		case kindFloat64:
			var x float64
			x, err = in.ReadFloat64()
			assert.Equal(t, v.f, x, "value %d", i)
		case kindBytes:
			x := make([]byte, len(v.b))
			err = in.ReadFull(x)
			assert.Equal(t, v.b, x, "value %d", i)
		}
		require.NoError(t, err, "value %d", i)
	}
}

func payloads(t *testing.T, data []byte) []byte {
	t.Helper()
	recs, err := Records(data)
	require.NoError(t, err)
	var all []byte
	for i, r := range recs {
		if i > 0 {
			assert.Equal(t, RecTypeContinue, r.Type)
		}
		assert.LessOrEqual(t, len(r.Data), MaxRecordDataSize)
		all = append(all, r.Data...)
	}
	return all
}

var roundTripSizes = []int{0, 1, 7, 100, 8223, 8224, 8225, 8230, 2*8224 - 3, 2 * 8224, 3*8224 + 11, 5 * 8224}

func TestWriterRoundTrip(t *testing.T) {
	for _, size := range roundTripSizes {
		values := valuesOfSize(size)

		flat := NewBufferOutput(size)
		writeValues(flat, values)
		require.Equal(t, size, flat.Len())

		out := NewBufferOutput(0)
		w := NewContinuableWriter(out, RecTypeSST)
		writeValues(w, values)
		require.NoError(t, w.Terminate(), "size %d", size)
		data := out.Bytes()

		assert.Equal(t, flat.Bytes(), payloads(t, data), "size %d", size)
		assert.Equal(t, len(data), w.TotalSize(), "size %d", size)

		// atomic reads line up with the atomic writes
		rs := plainStream(data)
		nextRecord(t, rs)
		readValues(t, rs, values)
		ok, err := rs.IsContinueNext()
		require.NoError(t, err)
		assert.False(t, ok, "size %d", size)

		// and so do byte-composed reads
		rs = plainStream(data)
		nextRecord(t, rs)
		readValues(t, NewContinuableReader(rs), values)
		ok, err = rs.HasNextRecord()
		require.NoError(t, err)
		assert.False(t, ok, "size %d", size)
	}
}

func TestWriterExactBytes(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeNumber)
	w.WriteUint16(1)
	w.WriteUint32(2)
	require.NoError(t, w.Terminate())
	assert.Equal(t, []byte{0x03, 0x02, 0x06, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00}, out.Bytes())
}

func TestWriterContinuesBeforeValue(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeSST)
	w.WriteSpanning(make([]byte, MaxRecordDataSize-1))
	assert.Equal(t, 1, w.AvailableSpace())
	w.WriteUint16(0xBEEF)
	require.NoError(t, w.Terminate())

	recs, err := Records(out.Bytes())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, RecTypeSST, recs[0].Type)
	assert.Len(t, recs[0].Data, MaxRecordDataSize-1)
	assert.Equal(t, RecTypeContinue, recs[1].Type)
	assert.Equal(t, []byte{0xEF, 0xBE}, recs[1].Data)
}

func TestWriterSpanning(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 2*MaxRecordDataSize+5)
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeMsoDrawingGroup)
	w.WriteUint8(1)
	w.WriteSpanning(data)
	require.NoError(t, w.Terminate())

	recs, err := Records(out.Bytes())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Len(t, recs[0].Data, MaxRecordDataSize)
	assert.Len(t, recs[1].Data, MaxRecordDataSize)
	assert.Len(t, recs[2].Data, 6)
}

func TestWriterStreamOutputMatchesBuffer(t *testing.T) {
	values := valuesOfSize(3*MaxRecordDataSize + 100)

	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeSST)
	writeValues(w, values)
	w.WriteString(strings.Repeat("stream €", 1500), 0, 0)
	require.NoError(t, w.Terminate())

	var buf bytes.Buffer
	so := NewStreamOutput(&buf)
	w = NewContinuableWriter(so, RecTypeSST)
	writeValues(w, values)
	w.WriteString(strings.Repeat("stream €", 1500), 0, 0)
	require.NoError(t, w.Terminate())

	assert.Equal(t, out.Bytes(), buf.Bytes())
	assert.Equal(t, int64(buf.Len()), so.Written())
}

func TestCountingWriter(t *testing.T) {
	u := UnicodeString{
		Text:    strings.Repeat("counting ü ", 2000),
		Runs:    []FormatRun{{0, 1}, {10, 2}},
		ExtData: make([]byte, 9000),
	}
	values := valuesOfSize(8000)

	c := NewCountingWriter()
	writeValues(c, values)
	c.WriteUnicodeString(u)
	require.NoError(t, c.Terminate())

	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeSST)
	writeValues(w, values)
	w.WriteUnicodeString(u)
	require.NoError(t, w.Terminate())

	assert.Equal(t, out.Len(), c.TotalSize())
	assert.Equal(t, out.Len(), w.TotalSize())
}

func TestWriterValueTooLarge(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeSST)
	w.WriteBytes(make([]byte, MaxRecordDataSize+1))

	err := w.Err()
	assert.True(t, errors.Is(err, ErrRecordTooLarge))
	assert.True(t, errors.Is(err, biffcodec.ErrContract))

	// sticky
	w.WriteUint8(1)
	assert.Equal(t, err, w.Terminate())
	assert.Equal(t, HeaderSize, out.Len())

	w = NewContinuableWriter(NewBufferOutput(0), RecTypeSST)
	w.WriteBytes(make([]byte, MaxRecordDataSize))
	assert.NoError(t, w.Err())
}

func TestWriterStringTooLong(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeLabel)
	w.WriteString(strings.Repeat("a", 70000), 0, 0)
	err := w.Terminate()
	assert.True(t, errors.Is(err, ErrStringTooLong))
	assert.True(t, errors.Is(err, biffcodec.ErrContract))
	assert.Equal(t, HeaderSize, out.Len())

	w = NewContinuableWriter(NewBufferOutput(0), RecTypeSST)
	w.WriteString("ab", 70000, 0)
	assert.True(t, errors.Is(w.Terminate(), biffcodec.ErrContract))

	w = NewContinuableWriter(NewBufferOutput(0), RecTypeSST)
	w.WriteUnicodeString(UnicodeString{Text: strings.Repeat("€", 0x10000)})
	assert.True(t, errors.Is(w.Terminate(), ErrStringTooLong))

	w = NewContinuableWriter(NewBufferOutput(0), RecTypeSST)
	w.WriteString(strings.Repeat("a", 0xFFFF), 0, 0)
	assert.NoError(t, w.Terminate())
}

func TestWriterAfterTerminate(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeEOF)
	require.NoError(t, w.Terminate())
	assert.Equal(t, []byte{0x0A, 0x00, 0x00, 0x00}, out.Bytes())
	assert.Equal(t, 0, w.AvailableSpace())

	w.WriteUint32(7)
	assert.True(t, errors.Is(w.Err(), ErrWriterTerminated))
	assert.True(t, errors.Is(w.Terminate(), ErrWriterTerminated))
	assert.Equal(t, 4, out.Len())

	w = NewContinuableWriter(NewBufferOutput(0), RecTypeEOF)
	require.NoError(t, w.Terminate())
	assert.True(t, errors.Is(w.Terminate(), biffcodec.ErrContract))
}

func TestWriterStringEncoding(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeLabel)
	w.WriteString("hé", 0, 0)
	w.WriteString("€", 0, 0)
	require.NoError(t, w.Terminate())

	assert.Equal(t, []byte{
		0x02, 0x00, 0x00, 'h', 0xE9,
		0x01, 0x00, 0x01, 0xAC, 0x20,
	}, out.Bytes()[HeaderSize:])
}

func TestWriterStringStraddlesFrames(t *testing.T) {
	for _, pad := range []int{0, 1, 3, 4, 5, 6, 100} {
		strs := []UnicodeString{
			{Text: strings.Repeat("latin1 é ", 2500)},
			{Text: strings.Repeat("wide € ", 3000)},
			{
				Text:    strings.Repeat("rich ", 1000),
				Runs:    []FormatRun{{0, 5}, {4, 6}, {4000, 7}},
				ExtData: bytes.Repeat([]byte{1, 2, 3}, 3000),
			},
			{Text: ""},
		}

		out := NewBufferOutput(0)
		w := NewContinuableWriter(out, RecTypeSST)
		w.WriteSpanning(make([]byte, MaxRecordDataSize-pad))
		for _, u := range strs {
			w.WriteUnicodeString(u)
		}
		require.NoError(t, w.Terminate())

		rs := plainStream(out.Bytes())
		nextRecord(t, rs)
		require.NoError(t, rs.ReadFull(make([]byte, MaxRecordDataSize-pad)))
		r := NewContinuableReader(rs)
		for i, want := range strs {
			got, err := r.ReadUnicodeString()
			require.NoError(t, err, "pad %d string %d", pad, i)
			assert.Equal(t, want.Text, got.Text, "pad %d string %d", pad, i)
			assert.Equal(t, want.Runs, got.Runs, "pad %d string %d", pad, i)
			assert.Equal(t, want.ExtData, got.ExtData, "pad %d string %d", pad, i)
		}
		ok, err := rs.HasNextRecord()
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestWriterStringData(t *testing.T) {
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeSST)
	w.WriteSpanning(make([]byte, MaxRecordDataSize-1))
	w.WriteStringData("xyz")
	require.NoError(t, w.Terminate())

	recs, err := Records(out.Bytes())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []byte{0x00, 'x', 'y', 'z'}, recs[1].Data)
}

func TestContinuableReaderStraddlingValues(t *testing.T) {
	data := join(
		rec(RecTypeSST, 0x01, 0x02, 0x03),
		rec(RecTypeContinue, 0x04, 0x05),
		rec(RecTypeContinue, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0),
		rec(RecTypeContinue, 0x3F),
	)
	rs := plainStream(data)
	nextRecord(t, rs)
	r := NewContinuableReader(rs)

	a, err := r.ReadUint16()
	require.NoError(t, err)
	b, err := r.ReadUint16()
	require.NoError(t, err)
	c, err := r.ReadUint8()
	require.NoError(t, err)
	f, err := r.ReadFloat64()
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0201), a)
	assert.Equal(t, uint16(0x0403), b)
	assert.Equal(t, uint8(0x05), c)
	assert.Equal(t, 1.0, f)
}

func TestContinuableReaderTruncated(t *testing.T) {
	rs := plainStream(rec(RecTypeSST, 0x01))
	nextRecord(t, rs)
	_, err := NewContinuableReader(rs).ReadUint32()
	assert.True(t, errors.Is(err, biffcodec.ErrMalformed))

	// string header promising more characters than present
	rs = plainStream(rec(RecTypeSST, 0x05, 0x00, 0x00, 'a', 'b'))
	nextRecord(t, rs)
	_, err = NewContinuableReader(rs).ReadUnicodeString()
	assert.True(t, errors.Is(err, biffcodec.ErrMalformed))
}

func TestWriterNaNRoundTrip(t *testing.T) {
	// plain streams carry NaN unchanged; only decryption rejects it
	out := NewBufferOutput(0)
	w := NewContinuableWriter(out, RecTypeNumber)
	w.WriteFloat64(math.NaN())
	require.NoError(t, w.Terminate())

	rs := plainStream(out.Bytes())
	nextRecord(t, rs)
	f, err := rs.ReadFloat64()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))
}
