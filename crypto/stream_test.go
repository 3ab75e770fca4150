package crypto

import (
	"encoding/binary"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/pbnjay/biffcodec"
)

var testKey = KeyDigest{0xC2, 0xD9, 0x56, 0xB2, 0x6B}

func testData(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

// referenceKeystream computes a keystream of n bytes by hand, one block key per
// 1024 bytes, starting at stream offset 0.
func referenceKeystream(key KeyDigest, n int) []byte {
	out := make([]byte, n)
	for block := 0; block*BlockSize < n; block++ {
		c := key.NewBlockCipher(uint32(block))
		end := (block + 1) * BlockSize
		if end > n {
			end = n
		}
		c.Encrypt(out[block*BlockSize : end])
	}
	return out
}

func TestStreamMatchesReference(t *testing.T) {
	data := testData(5000)
	ks := referenceKeystream(testKey, len(data))

	s := NewStream(testKey, 0)
	got := append([]byte(nil), data...)
	s.XorBuffer(got)

	for i := range data {
		if got[i] != data[i]^ks[i] {
			t.Fatalf("mismatch at %d", i)
		}
	}
	assert.Equal(t, 5000, s.Position())
	assert.Equal(t, uint32(4), s.Block())
}

func TestStreamChunkingTransparent(t *testing.T) {
	data := testData(4500)

	whole := append([]byte(nil), data...)
	NewStream(testKey, 0).XorBuffer(whole)

	for _, chunk := range []int{1, 3, 100, 1000, 1023, 1025, 2049} {
		s := NewStream(testKey, 0)
		got := append([]byte(nil), data...)
		for off := 0; off < len(got); off += chunk {
			end := off + chunk
			if end > len(got) {
				end = len(got)
			}
			s.XorBuffer(got[off:end])
		}
		assert.Equal(t, whole, got, "chunk size %d", chunk)
		assert.Equal(t, len(data), s.Position())
	}
}

func TestStreamInitialOffset(t *testing.T) {
	data := testData(3000)
	ks := referenceKeystream(testKey, 200+len(data))

	for _, off := range []int{0, 1, 200, 1023, 1024, 1500} {
		if off+len(data) > len(ks) {
			ks = referenceKeystream(testKey, off+len(data))
		}
		s := NewStream(testKey, off)
		got := append([]byte(nil), data...)
		s.XorBuffer(got)
		for i := range got {
			if got[i] != data[i]^ks[off+i] {
				t.Fatalf("offset %d mismatch at %d", off, i)
			}
		}
	}
}

func TestStreamTypedAcrossBoundary(t *testing.T) {
	data := testData(16)

	// a long value straddling the first block boundary
	ref := append([]byte(nil), data...)
	r := NewStream(testKey, 1020)
	r.XorBuffer(ref)

	s := NewStream(testKey, 1020)
	v := s.XorUint64(binary.LittleEndian.Uint64(data))
	assert.Equal(t, binary.LittleEndian.Uint64(ref), v)
	assert.Equal(t, 1028, s.Position())
	assert.Equal(t, uint32(1), s.Block())

	v32 := s.XorUint32(binary.LittleEndian.Uint32(data[8:]))
	assert.Equal(t, binary.LittleEndian.Uint32(ref[8:]), v32)
	v16 := s.XorUint16(binary.LittleEndian.Uint16(data[12:]))
	assert.Equal(t, binary.LittleEndian.Uint16(ref[12:]), v16)
	assert.Equal(t, ref[14], s.XorUint8(data[14]))
}

func TestStreamExemptRecordConsumesKeystream(t *testing.T) {
	s := NewStream(testKey, 0)
	s.StartRecord(sidBOF)
	assert.True(t, s.SkipRecord())
	assert.Equal(t, uint16(0x1234), s.XorUint16(0x1234))
	assert.Equal(t, uint32(0xCAFEBABE), s.XorUint32(0xCAFEBABE))
	assert.Equal(t, 6, s.Position())

	s.StartRecord(0x0042)
	assert.False(t, s.SkipRecord())

	ks := referenceKeystream(testKey, 7)
	assert.Equal(t, ks[6], s.XorUint8(0))
}

func TestStreamSkip(t *testing.T) {
	ks := referenceKeystream(testKey, 3000)

	s := NewStream(testKey, 0)
	s.SkipTwoBytes()
	s.Skip(2500)
	assert.Equal(t, 2502, s.Position())
	assert.Equal(t, ks[2502], s.XorUint8(0))
}

func TestIsNeverEncrypted(t *testing.T) {
	for _, sid := range []uint16{0x0809, 0x002F, 0x00E1, 0x0194, 0x0195, 0x0196, 0x0138} {
		assert.True(t, IsNeverEncrypted(sid), "sid 0x%04X", sid)
	}
	for _, sid := range []uint16{0x003C, 0x0085, 0x00FC, 0x000A} {
		assert.False(t, IsNeverEncrypted(sid), "sid 0x%04X", sid)
	}
}

func TestStreamLogsRekey(t *testing.T) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	old := biffcodec.Logger()
	biffcodec.SetLogger(logrus.NewEntry(l))
	defer biffcodec.SetLogger(old)

	s := NewStream(testKey, 0)
	s.XorBuffer(make([]byte, 2*BlockSize+1))

	var blocks []interface{}
	for _, e := range hook.AllEntries() {
		if e.Message == "rc4 rekey" {
			blocks = append(blocks, e.Data["block"])
		}
	}
	assert.Equal(t, []interface{}{uint32(0), uint32(1), uint32(2)}, blocks)

	hook.Reset()
	l.SetLevel(logrus.InfoLevel)
	NewStream(testKey, 0).XorBuffer(make([]byte, 2*BlockSize))
	assert.Empty(t, hook.AllEntries())
}
