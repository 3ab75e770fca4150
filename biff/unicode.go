package biff

import (
	"math"
)

// FormatRun applies a font to the characters starting at CharIndex (2.5.129).
type FormatRun struct {
	CharIndex uint16
	FontIndex uint16
}

// UnicodeString is an XLUnicodeRichExtendedString (2.5.293), the string form
// used by SST and other records that may span Continue records.
type UnicodeString struct {
	Text    string
	Runs    []FormatRun
	ExtData []byte // phonetic data (ExtRst), kept opaque
}

// ContinuableReader reads values that may be split at any byte across
// Continue records. Multi-byte values are assembled one byte at a time.
type ContinuableReader struct {
	s *RecordStream
}

var _ Input = &ContinuableReader{}

// NewContinuableReader reads from the current record of s.
func NewContinuableReader(s *RecordStream) *ContinuableReader {
	return &ContinuableReader{s: s}
}

// Available returns the unread bytes of the current frame.
func (r *ContinuableReader) Available() int {
	return r.s.Remaining()
}

func (r *ContinuableReader) ReadUint8() (uint8, error) {
	return r.s.ReadUint8()
}

func (r *ContinuableReader) readLE(n int) (uint64, error) {
	var v uint64
	for i := 0; i < n; i++ {
		b, err := r.s.ReadUint8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

func (r *ContinuableReader) ReadUint16() (uint16, error) {
	v, err := r.readLE(2)
	return uint16(v), err
}

func (r *ContinuableReader) ReadUint32() (uint32, error) {
	v, err := r.readLE(4)
	return uint32(v), err
}

func (r *ContinuableReader) ReadUint64() (uint64, error) {
	return r.readLE(8)
}

func (r *ContinuableReader) ReadFloat64() (float64, error) {
	v, err := r.readLE(8)
	return math.Float64frombits(v), err
}

func (r *ContinuableReader) ReadFull(p []byte) error {
	return r.s.ReadFull(p)
}

// ReadUnicodeString reads an XLUnicodeRichExtendedString.
func (r *ContinuableReader) ReadUnicodeString() (UnicodeString, error) {
	var u UnicodeString
	cch, err := r.ReadUint16()
	if err != nil {
		return u, err
	}
	flags, err := r.ReadUint8()
	if err != nil {
		return u, err
	}

	var cRun uint16
	var cbExtRst uint32
	if (flags & flagRichText) != 0 {
		// rich formating data is present
		if cRun, err = r.ReadUint16(); err != nil {
			return u, err
		}
	}
	if (flags & flagExtString) != 0 {
		// phonetic string data is present
		if cbExtRst, err = r.ReadUint32(); err != nil {
			return u, err
		}
	}

	u.Text, err = r.s.ReadString(int(cch), (flags&flagHighByte) == 0)
	if err != nil {
		return u, err
	}

	if cRun > 0 {
		u.Runs = make([]FormatRun, cRun)
		for i := range u.Runs {
			if u.Runs[i].CharIndex, err = r.ReadUint16(); err != nil {
				return u, err
			}
			if u.Runs[i].FontIndex, err = r.ReadUint16(); err != nil {
				return u, err
			}
		}
	}
	if cbExtRst > 0 {
		if int(cbExtRst) > maxStringLength {
			return u, malformed("extended string data too large (%d bytes)", cbExtRst)
		}
		u.ExtData = make([]byte, cbExtRst)
		if err = r.s.ReadFull(u.ExtData); err != nil {
			return u, err
		}
	}
	return u, nil
}
