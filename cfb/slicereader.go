package cfb

import (
	"errors"
	"io"
)

// SliceReader reads a stream stored as a list of sectors without copying them.
type SliceReader struct {
	Data   [][]byte
	Index  uint
	Offset uint
}

var (
	_ io.ReadSeeker = &SliceReader{}
	_ io.ByteReader = &SliceReader{}
)

func (s *SliceReader) Read(b []byte) (int, error) {
	if s.Index >= uint(len(s.Data)) {
		return 0, io.EOF
	}
	n := copy(b, s.Data[s.Index][s.Offset:])
	if n > 0 {
		s.Offset += uint(n)
		if s.Offset == uint(len(s.Data[s.Index])) {
			s.Offset = 0
			s.Index++
		}
		return n, nil
	}

	return 0, io.EOF
}

// ReadByte implements io.ByteReader.
func (s *SliceReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := s.Read(b[:])
	return b[0], err
}

// Size returns the total length of the stream.
func (s *SliceReader) Size() int64 {
	var n int64
	for _, d := range s.Data {
		n += int64(len(d))
	}
	return n
}

func (s *SliceReader) pos() int64 {
	var n int64
	for _, d := range s.Data[:s.Index] {
		n += int64(len(d))
	}
	return n + int64(s.Offset)
}

// Len returns the number of unread bytes.
func (s *SliceReader) Len() int {
	if s.Index >= uint(len(s.Data)) {
		return 0
	}
	return int(s.Size() - s.pos())
}

var errNegativeSeek = errors.New("cfb: seek to negative position")

// Seek implements io.Seeker.
func (s *SliceReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		if s.Index >= uint(len(s.Data)) {
			offset += s.Size()
		} else {
			offset += s.pos()
		}
	case io.SeekEnd:
		offset += s.Size()
	default:
		return 0, errors.New("cfb: invalid whence")
	}
	if offset < 0 {
		return 0, errNegativeSeek
	}

	target := offset
	s.Index, s.Offset = 0, 0
	for s.Index < uint(len(s.Data)) {
		n := int64(len(s.Data[s.Index]))
		if target < n {
			s.Offset = uint(target)
			return offset, nil
		}
		target -= n
		s.Index++
	}
	// at or beyond the end, reads return io.EOF
	return offset, nil
}
