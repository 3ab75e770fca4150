package crypto

import (
	"github.com/sirupsen/logrus"

	"github.com/pbnjay/biffcodec"
)

// Record types whose payload is never encrypted (MS-XLS 2.2.10).
const (
	sidBOF          = 0x0809 // 2.4.21
	sidFilePass     = 0x002F // 2.4.117
	sidUsrExcl      = 0x0194 // 2.4.339
	sidFileLock     = 0x0195 // 2.4.116
	sidInterfaceHdr = 0x00E1 // 2.4.146
	sidRRDInfo      = 0x0196 // 2.4.227
	sidRRDHead      = 0x0138 // 2.4.226
)

// IsNeverEncrypted reports whether records of type sid are stored in
// plaintext inside an encrypted stream.
func IsNeverEncrypted(sid uint16) bool {
	switch sid {
	case sidBOF, sidFilePass, sidUsrExcl, sidFileLock, sidInterfaceHdr, sidRRDInfo, sidRRDHead:
		return true
	}
	return false
}

// Stream is the RC4 keystream of one BIFF record stream. The block number
// is zero at the start of the stream and the cipher is re-keyed at each
// 1024-byte boundary. Record headers and unencrypted records still consume
// keystream so later bytes stay aligned.
//
// A Stream has a single owner and is not safe for concurrent use.
type Stream struct {
	key KeyDigest
	rc  *Cipher

	pos       int // bytes of the record stream processed so far
	nextBlock int // offset where the current block key expires
	block     uint32

	skipRecord bool
}

// NewStream returns a cipher stream positioned at initialOffset, usually the
// offset of the first record following FILEPASS.
func NewStream(key KeyDigest, initialOffset int) *Stream {
	if initialOffset < 0 {
		initialOffset = 0
	}
	s := &Stream{key: key, pos: initialOffset}
	s.rekey()
	s.rc.Discard(initialOffset % BlockSize)
	return s
}

func (s *Stream) rekey() {
	s.block = uint32(s.pos / BlockSize)
	s.rc = s.key.NewBlockCipher(s.block)
	s.nextBlock = int(s.block+1) * BlockSize
	if log := biffcodec.Logger(); log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		log.WithField("block", s.block).Debug("rc4 rekey")
	}
}

// advance moves the position by n bytes, never past the current block, and
// re-keys as soon as the block is used up.
func (s *Stream) advance(n int) {
	s.pos += n
	if s.pos >= s.nextBlock {
		s.rekey()
	}
}

// Position is the number of stream bytes processed, including the initial offset.
func (s *Stream) Position() int {
	return s.pos
}

// Block is the index of the active block key.
func (s *Stream) Block() uint32 {
	return s.block
}

// StartRecord notes the type of the record whose payload follows.
func (s *Stream) StartRecord(sid uint16) {
	s.skipRecord = IsNeverEncrypted(sid)
}

// SkipRecord reports whether the current record's payload is stored in plaintext.
func (s *Stream) SkipRecord() bool {
	return s.skipRecord
}

// nextMask returns the next keystream byte, or zero while inside an
// unencrypted record.
func (s *Stream) nextMask() byte {
	mask := s.rc.NextByte()
	s.advance(1)
	if s.skipRecord {
		return 0
	}
	return mask
}

// SkipTwoBytes consumes the keystream for a 2-byte header field.
func (s *Stream) SkipTwoBytes() {
	s.Skip(2)
}

// Skip consumes n keystream bytes without using them.
func (s *Stream) Skip(n int) {
	for n > 0 {
		x := s.nextBlock - s.pos
		if x > n {
			x = n
		}
		s.rc.Discard(x)
		s.advance(x)
		n -= x
	}
}

// XorUint8 transforms one byte.
func (s *Stream) XorUint8(v uint8) uint8 {
	return v ^ s.nextMask()
}

// XorUint16 transforms a little-endian 16-bit value.
func (s *Stream) XorUint16(v uint16) uint16 {
	b0 := uint16(s.nextMask())
	b1 := uint16(s.nextMask())
	return v ^ (b1<<8 | b0)
}

// XorUint32 transforms a little-endian 32-bit value.
func (s *Stream) XorUint32(v uint32) uint32 {
	var mask uint32
	for i := 0; i < 4; i++ {
		mask |= uint32(s.nextMask()) << (8 * i)
	}
	return v ^ mask
}

// XorUint64 transforms a little-endian 64-bit value.
func (s *Stream) XorUint64(v uint64) uint64 {
	var mask uint64
	for i := 0; i < 8; i++ {
		mask |= uint64(s.nextMask()) << (8 * i)
	}
	return v ^ mask
}

// XorBuffer transforms buf in place, re-keying as often as needed. Unlike the
// typed helpers it ignores StartRecord; callers decide which bytes to pass.
func (s *Stream) XorBuffer(buf []byte) {
	for len(buf) > 0 {
		n := s.nextBlock - s.pos
		if n > len(buf) {
			n = len(buf)
		}
		s.rc.Encrypt(buf[:n])
		s.advance(n)
		buf = buf[n:]
	}
}
