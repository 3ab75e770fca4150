package biff

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"github.com/pbnjay/biffcodec"
)

// ErrLeftoverData is returned when moving to the next record before the
// current one has been fully read.
var ErrLeftoverData = biffcodec.WrapErr(errors.New("biff: unread data left in record"), biffcodec.ErrContract)

// longest string accepted by ReadString, in characters
const maxStringLength = 0x100000

const (
	noNextRecord  = -1
	sizeNotLoaded = -1
)

func malformed(format string, args ...interface{}) error {
	return biffcodec.WrapErr(fmt.Errorf("biff: "+format, args...), biffcodec.ErrMalformed)
}

// eofErr converts an io.EOF in the middle of a record into a malformed error.
func eofErr(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return biffcodec.WrapErr(fmt.Errorf("biff: unexpected end of data reading %s", what),
			biffcodec.ErrMalformed, io.ErrUnexpectedEOF)
	}
	return err
}

// RecordStream reads the records of a BIFF stream one at a time. Primitive
// reads move transparently into a following Continue record when the current
// record has been used up exactly; they never split a value across records.
type RecordStream struct {
	in RecordInput

	sid     RecordType
	nextSid int // peeked type of the following record, or noNextRecord

	size   int // payload size of the current record, or sizeNotLoaded
	offset int // bytes read from the current payload
	peeked bool
}

var _ Input = &RecordStream{}

// NewRecordStream reads records from in.
func NewRecordStream(in RecordInput) *RecordStream {
	return &RecordStream{in: in, size: 0, nextSid: noNextRecord}
}

// Sid returns the type of the current record.
func (s *RecordStream) Sid() RecordType {
	return s.sid
}

// Remaining returns the unread payload bytes of the current record.
func (s *RecordStream) Remaining() int {
	if s.size == sizeNotLoaded {
		return 0
	}
	return s.size - s.offset
}

// Available returns the unread payload bytes of the current record, so a
// RecordStream may be used as an Input.
func (s *RecordStream) Available() int {
	return s.Remaining()
}

// HasNextRecord reports whether another record follows. The current record must
// have been read completely.
func (s *RecordStream) HasNextRecord() (bool, error) {
	if s.size != sizeNotLoaded && s.offset != s.size {
		return false, biffcodec.WrapErr(fmt.Errorf("biff: %d of %d bytes left in %s", s.size-s.offset, s.size, s.sid), ErrLeftoverData)
	}
	if !s.peeked {
		if err := s.readNextSid(); err != nil {
			return false, err
		}
	}
	return s.nextSid != noNextRecord, nil
}

func (s *RecordStream) readNextSid() error {
	s.peeked = true
	s.nextSid = noNextRecord
	if n := s.in.Available(); n >= 0 && n < HeaderSize {
		// trailing scrap is not a record
		return nil
	}
	sid, err := s.in.ReadRecordType()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eofErr(err, "record type")
	}
	if sid == 0 {
		// zero padding at the end of the stream
		return nil
	}
	s.nextSid = int(sid)
	s.size = sizeNotLoaded
	return nil
}

// NextRecord advances to the record found by HasNextRecord.
func (s *RecordStream) NextRecord() error {
	if !s.peeked {
		return biffcodec.WrapErr(errors.New("biff: NextRecord called without HasNextRecord"), biffcodec.ErrContract)
	}
	if s.nextSid == noNextRecord {
		return biffcodec.WrapErr(errors.New("biff: no next record available"), biffcodec.ErrContract)
	}
	s.sid = RecordType(s.nextSid)
	s.peeked = false
	s.offset = 0

	n, err := s.in.ReadDataSize()
	if err != nil {
		return eofErr(err, "record size")
	}
	if n > MaxRecordDataSize {
		return malformed("%s has size %d, larger than %d bytes", s.sid, n, MaxRecordDataSize)
	}
	s.size = int(n)
	return nil
}

// IsContinueNext reports whether the record following the current one is a
// Continue record. The current record must have been read completely.
func (s *RecordStream) IsContinueNext() (bool, error) {
	ok, err := s.HasNextRecord()
	if err != nil || !ok {
		return false, err
	}
	return RecordType(s.nextSid) == RecTypeContinue, nil
}

// require makes sure n contiguous bytes can be read, moving into a Continue
// record if the current one is exhausted.
func (s *RecordStream) require(n int) error {
	rem := s.Remaining()
	if rem >= n {
		return nil
	}
	if rem == 0 {
		cont, err := s.IsContinueNext()
		if err != nil {
			return err
		}
		if cont {
			if err = s.NextRecord(); err != nil {
				return err
			}
			if s.Remaining() >= n {
				return nil
			}
			rem = s.Remaining()
		}
	}
	return biffcodec.WrapErr(fmt.Errorf("biff: not enough data (%d) to read requested (%d) bytes in %s", rem, n, s.sid),
		biffcodec.ErrMalformed, io.ErrUnexpectedEOF)
}

func (s *RecordStream) ReadUint8() (uint8, error) {
	if err := s.require(1); err != nil {
		return 0, err
	}
	v, err := s.in.ReadUint8()
	if err != nil {
		return 0, eofErr(err, "byte")
	}
	s.offset++
	return v, nil
}

func (s *RecordStream) ReadUint16() (uint16, error) {
	if err := s.require(2); err != nil {
		return 0, err
	}
	v, err := s.in.ReadUint16()
	if err != nil {
		return 0, eofErr(err, "short")
	}
	s.offset += 2
	return v, nil
}

func (s *RecordStream) ReadUint32() (uint32, error) {
	if err := s.require(4); err != nil {
		return 0, err
	}
	v, err := s.in.ReadUint32()
	if err != nil {
		return 0, eofErr(err, "int")
	}
	s.offset += 4
	return v, nil
}

func (s *RecordStream) ReadUint64() (uint64, error) {
	if err := s.require(8); err != nil {
		return 0, err
	}
	v, err := s.in.ReadUint64()
	if err != nil {
		return 0, eofErr(err, "long")
	}
	s.offset += 8
	return v, nil
}

func (s *RecordStream) ReadFloat64() (float64, error) {
	if err := s.require(8); err != nil {
		return 0, err
	}
	v, err := s.in.ReadFloat64()
	if err != nil {
		return 0, eofErr(err, "double")
	}
	s.offset += 8
	return v, nil
}

// ReadFull fills p, continuing into following Continue records as needed.
func (s *RecordStream) ReadFull(p []byte) error {
	for len(p) > 0 {
		if err := s.require(1); err != nil {
			return err
		}
		n := s.Remaining()
		if n > len(p) {
			n = len(p)
		}
		if err := s.in.ReadFull(p[:n]); err != nil {
			return eofErr(err, "bytes")
		}
		s.offset += n
		p = p[n:]
	}
	return nil
}

// ReadPlain reads len(p) bytes of the current record without decrypting them.
func (s *RecordStream) ReadPlain(p []byte) error {
	if err := s.require(len(p)); err != nil {
		return err
	}
	var err error
	if pr, ok := s.in.(PlainReader); ok {
		err = pr.ReadPlain(p)
	} else {
		err = s.in.ReadFull(p)
	}
	if err != nil {
		return eofErr(err, "bytes")
	}
	s.offset += len(p)
	return nil
}

// ReadRemainder returns the unread payload of the current record.
func (s *RecordStream) ReadRemainder() ([]byte, error) {
	buf := make([]byte, s.Remaining())
	if len(buf) == 0 {
		return buf, nil
	}
	if err := s.in.ReadFull(buf); err != nil {
		return nil, eofErr(err, "record payload")
	}
	s.offset += len(buf)
	return buf, nil
}

// ReadAllContinued returns the rest of the current record followed by the
// payloads of all directly following Continue records.
func (s *RecordStream) ReadAllContinued() ([]byte, error) {
	all, err := s.ReadRemainder()
	for err == nil {
		var cont bool
		cont, err = s.IsContinueNext()
		if err != nil || !cont {
			break
		}
		if err = s.NextRecord(); err != nil {
			break
		}
		var more []byte
		more, err = s.ReadRemainder()
		all = append(all, more...)
	}
	return all, err
}

// Skip discards the rest of the current record.
func (s *RecordStream) Skip() error {
	_, err := s.ReadRemainder()
	return err
}

// ReadString reads nchars characters, 8-bit when compressed and UTF-16LE
// otherwise. When the characters spill into a Continue record, that record
// starts with a new option byte which may switch the encoding.
func (s *RecordStream) ReadString(nchars int, compressed bool) (string, error) {
	if nchars < 0 || nchars > maxStringLength {
		return "", malformed("bad requested string length (%d)", nchars)
	}
	units := make([]uint16, 0, nchars)
	for {
		avail := s.Remaining()
		if !compressed {
			avail /= 2
		}
		for ; avail > 0 && len(units) < nchars; avail-- {
			if compressed {
				b, err := s.ReadUint8()
				if err != nil {
					return "", err
				}
				units = append(units, uint16(charmap.ISO8859_1.DecodeByte(b)))
			} else {
				u, err := s.ReadUint16()
				if err != nil {
					return "", err
				}
				units = append(units, u)
			}
		}
		if len(units) == nchars {
			return string(utf16.Decode(units)), nil
		}

		// string has been spilled into the next continue record
		if s.Remaining() != 0 {
			return "", malformed("odd number of bytes (%d) left behind in %s", s.Remaining(), s.sid)
		}
		cont, err := s.IsContinueNext()
		if err != nil {
			return "", err
		}
		if !cont {
			return "", malformed("expected a Continue record to read remaining %d of %d chars", nchars-len(units), nchars)
		}
		if err = s.NextRecord(); err != nil {
			return "", err
		}
		flag, err := s.ReadUint8()
		if err != nil {
			return "", err
		}
		compressed = (flag & 0x01) == 0
	}
}
