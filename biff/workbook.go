package biff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pbnjay/biffcodec"
	"github.com/pbnjay/biffcodec/crypto"
)

// Record is one physical record of a stream.
type Record struct {
	Offset int // position of the record header within the stream
	Type   RecordType
	Data   []byte
}

// Records splits a stream into its physical records without interpreting or
// decrypting them. Continue records are returned as separate entries.
func Records(data []byte) ([]Record, error) {
	rs := NewRecordStream(NewPlainRecordInput(NewInput(bytes.NewReader(data))))
	var res []Record
	pos := 0
	for {
		ok, err := rs.HasNextRecord()
		if err != nil {
			return res, err
		}
		if !ok {
			return res, nil
		}
		if err = rs.NextRecord(); err != nil {
			return res, err
		}
		r := Record{Offset: pos, Type: rs.Sid()}
		if r.Data, err = rs.ReadRemainder(); err != nil {
			return res, err
		}
		res = append(res, r)
		pos += HeaderSize + len(r.Data)
	}
}

// findFilePass returns the FILEPASS record of a workbook stream. It must
// follow the first BOF record.
func findFilePass(recs []Record) (int, *crypto.FilePass, error) {
	for i, r := range recs {
		if r.Type != RecTypeFilePass {
			continue
		}
		fp, err := crypto.ParseFilePass(r.Data)
		return i, fp, err
	}
	return -1, nil, biffcodec.ErrNotEncrypted
}

// encryptedStart returns the offset of the first byte after FILEPASS, where
// encryption starts.
func encryptedStart(r Record) int {
	return r.Offset + HeaderSize + len(r.Data)
}

// DecryptStream decrypts an RC4 encrypted workbook stream. The result has the
// same layout as data, FILEPASS included, so stream offsets such as the
// BoundSheet8 positions stay valid. A stream without FILEPASS returns
// ErrNotEncrypted.
func DecryptStream(data []byte, opts *biffcodec.Options) ([]byte, error) {
	log := opts.Log("decrypt")
	password := opts.EffectivePassword()

	recs, err := Records(data)
	if err != nil {
		return nil, err
	}
	i, fp, err := findFilePass(recs)
	if err != nil {
		return nil, err
	}
	key, err := fp.Key(password)
	if err != nil {
		return nil, err
	}
	start := encryptedStart(recs[i])
	log.WithField("offset", start).Debug("decrypting stream with standard RC4")

	out := NewBufferOutput(len(data))
	out.WriteBytes(data[:start])

	rs := NewRecordStream(NewDecryptingInput(NewInput(bytes.NewReader(data[start:])), key, start))
	pos := start
	for {
		ok, err := rs.HasNextRecord()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err = rs.NextRecord(); err != nil {
			return nil, err
		}
		n := rs.Remaining()
		out.WriteUint16(uint16(rs.Sid()))
		out.WriteUint16(uint16(n))

		if rs.Sid() == RecTypeBoundSheet8 && n >= 4 {
			// lbPlyPos is always stored in plaintext
			var plyPos [4]byte
			if err = rs.ReadPlain(plyPos[:]); err != nil {
				return nil, err
			}
			out.WriteBytes(plyPos[:])
		}
		payload, err := rs.ReadRemainder()
		if err != nil {
			return nil, err
		}
		out.WriteBytes(payload)
		pos += HeaderSize + n
	}

	// zero padding or trailing scrap
	out.WriteBytes(data[pos:])
	log.WithField("bytes", out.Len()).Debug("stream decrypted")
	return out.Bytes(), nil
}

// EncryptStream encrypts a plaintext workbook stream that already carries a
// FILEPASS record, such as the output of DecryptStream or AddFilePass. The
// password must match the FILEPASS verifier.
func EncryptStream(data []byte, opts *biffcodec.Options) ([]byte, error) {
	log := opts.Log("encrypt")

	recs, err := Records(data)
	if err != nil {
		return nil, err
	}
	i, fp, err := findFilePass(recs)
	if err != nil {
		return nil, err
	}
	key, err := fp.Key(opts.EffectivePassword())
	if err != nil {
		return nil, err
	}
	start := encryptedStart(recs[i])
	log.WithField("offset", start).Debug("encrypting stream with standard RC4")

	res := make([]byte, len(data))
	copy(res, data)
	s := crypto.NewStream(key, start)
	for _, r := range recs[i+1:] {
		s.SkipTwoBytes()
		s.StartRecord(uint16(r.Type))
		s.SkipTwoBytes()

		payload := res[r.Offset+HeaderSize : r.Offset+HeaderSize+len(r.Data)]
		if s.SkipRecord() {
			s.Skip(len(payload))
			continue
		}
		if r.Type == RecTypeBoundSheet8 && len(payload) >= 4 {
			s.Skip(4)
			payload = payload[4:]
		}
		s.XorBuffer(payload)
	}
	return res, nil
}

// AddFilePass inserts a new RC4 FILEPASS record for opts' password after the
// first BOF of a plaintext workbook stream. The absolute stream positions in
// BoundSheet8, Index and ExtSST records are moved to match; offsets inside
// other records (such as drawing or revision data) are left alone. Pass the
// result to EncryptStream. random may be nil.
func AddFilePass(data []byte, opts *biffcodec.Options, random io.Reader) ([]byte, error) {
	recs, err := Records(data)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 || recs[0].Type != RecTypeBOF {
		return nil, biffcodec.WrapErr(fmt.Errorf("biff: stream does not start with a BOF record"), biffcodec.ErrNotInFormat)
	}
	if _, _, err = findFilePass(recs); err != biffcodec.ErrNotEncrypted {
		if err == nil {
			err = fmt.Errorf("biff: stream already has a FILEPASS record")
		}
		return nil, err
	}
	fp, _, err := crypto.NewFilePass(opts.EffectivePassword(), random)
	if err != nil {
		return nil, err
	}
	payload := fp.Bytes()
	at := encryptedStart(recs[0])
	shift := HeaderSize + len(payload)

	out := NewBufferOutput(len(data) + shift)
	out.WriteBytes(data[:at])
	out.WriteUint16(uint16(RecTypeFilePass))
	out.WriteUint16(uint16(len(payload)))
	out.WriteBytes(payload)
	out.WriteBytes(data[at:])

	res := out.Bytes()
	for _, r := range recs[1:] {
		p := res[r.Offset+shift+HeaderSize : r.Offset+shift+HeaderSize+len(r.Data)]
		for _, off := range streamPositions(r.Type, len(p)) {
			if pos := binary.LittleEndian.Uint32(p[off:]); int(pos) >= at {
				binary.LittleEndian.PutUint32(p[off:], pos+uint32(shift))
			}
		}
	}
	opts.Log("encrypt").WithField("offset", at).Debug("inserted FILEPASS record")
	return res, nil
}

// streamPositions returns the payload offsets of the 32-bit absolute stream
// positions held by a record of type t with n payload bytes.
func streamPositions(t RecordType, n int) []int {
	var res []int
	switch t {
	case RecTypeBoundSheet8:
		// lbPlyPos (2.4.28)
		if n >= 4 {
			res = append(res, 0)
		}
	case RecTypeIndex:
		// ibXF, then rgibRw (2.4.144)
		for off := 12; off+4 <= n; off += 4 {
			res = append(res, off)
		}
	case RecTypeExtSST:
		// ib of each ISSTInf after dsst (2.4.107)
		for off := 2; off+8 <= n; off += 8 {
			res = append(res, off)
		}
	}
	return res
}

// Dump writes one line per record of data to w: offset, type and size,
// followed by the first bytes of the payload.
func Dump(w io.Writer, data []byte) error {
	recs, err := Records(data)
	for _, r := range recs {
		head := r.Data
		if len(head) > 16 {
			head = head[:16]
		}
		if _, werr := fmt.Fprintf(w, "%08x %-28s %5d  % x\n", r.Offset, r.Type, len(r.Data), head); werr != nil {
			return werr
		}
	}
	return err
}
