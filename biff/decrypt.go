package biff

import (
	"math"

	"github.com/pbnjay/biffcodec"
	"github.com/pbnjay/biffcodec/crypto"
)

// RecordInput is an Input that also reads the two record header fields.
// Record header fields are never encrypted.
type RecordInput interface {
	Input

	ReadRecordType() (RecordType, error)
	ReadDataSize() (uint16, error)
}

// PlainReader is implemented by inputs that can read bytes without
// transforming them, for fields stored in plaintext within encrypted
// records (such as the BoundSheet8 stream position).
type PlainReader interface {
	ReadPlain(p []byte) error
}

// IsNeverEncrypted reports whether records of type t are stored in plaintext
// inside an encrypted stream.
func IsNeverEncrypted(t RecordType) bool {
	return crypto.IsNeverEncrypted(uint16(t))
}

type plainRecordInput struct {
	Input
}

// NewPlainRecordInput reads records from an unencrypted Input.
func NewPlainRecordInput(in Input) RecordInput {
	return plainRecordInput{in}
}

func (p plainRecordInput) ReadRecordType() (RecordType, error) {
	v, err := p.ReadUint16()
	return RecordType(v), err
}

func (p plainRecordInput) ReadDataSize() (uint16, error) {
	return p.ReadUint16()
}

func (p plainRecordInput) ReadPlain(b []byte) error {
	return p.ReadFull(b)
}

/////////////

// DecryptingInput decrypts record payloads read from an RC4 encrypted stream.
// Header fields and never-encrypted records are returned as stored, while the
// keystream still advances over them.
type DecryptingInput struct {
	in Input
	rc *crypto.Stream
}

var (
	_ RecordInput = &DecryptingInput{}
	_ PlainReader = &DecryptingInput{}
)

// NewDecryptingInput decrypts in with key. initialOffset is the position of
// in's first byte within the record stream.
func NewDecryptingInput(in Input, key crypto.KeyDigest, initialOffset int) *DecryptingInput {
	return &DecryptingInput{in: in, rc: crypto.NewStream(key, initialOffset)}
}

// Position returns the offset of the next byte within the record stream.
func (d *DecryptingInput) Position() int {
	return d.rc.Position()
}

func (d *DecryptingInput) Available() int {
	return d.in.Available()
}

// ReadRecordType reads the record type in plaintext and decides whether the
// payload that follows is encrypted.
func (d *DecryptingInput) ReadRecordType() (RecordType, error) {
	sid, err := d.in.ReadUint16()
	if err != nil {
		return 0, err
	}
	d.rc.SkipTwoBytes()
	d.rc.StartRecord(sid)
	return RecordType(sid), nil
}

// ReadDataSize reads the record size in plaintext.
func (d *DecryptingInput) ReadDataSize() (uint16, error) {
	n, err := d.in.ReadUint16()
	if err != nil {
		return 0, err
	}
	d.rc.SkipTwoBytes()
	return n, nil
}

func (d *DecryptingInput) ReadUint8() (uint8, error) {
	v, err := d.in.ReadUint8()
	if err != nil {
		return 0, err
	}
	return d.rc.XorUint8(v), nil
}

func (d *DecryptingInput) ReadUint16() (uint16, error) {
	v, err := d.in.ReadUint16()
	if err != nil {
		return 0, err
	}
	return d.rc.XorUint16(v), nil
}

func (d *DecryptingInput) ReadUint32() (uint32, error) {
	v, err := d.in.ReadUint32()
	if err != nil {
		return 0, err
	}
	return d.rc.XorUint32(v), nil
}

func (d *DecryptingInput) ReadUint64() (uint64, error) {
	v, err := d.in.ReadUint64()
	if err != nil {
		return 0, err
	}
	return d.rc.XorUint64(v), nil
}

// ReadFloat64 reads a decrypted IEEE 754 double. A NaN result in an encrypted
// record means the key does not match the stream and is reported as
// ErrDecryptionFailed.
func (d *DecryptingInput) ReadFloat64() (float64, error) {
	bits, err := d.ReadUint64()
	if err != nil {
		return 0, err
	}
	f := math.Float64frombits(bits)
	if math.IsNaN(f) && !d.rc.SkipRecord() {
		return 0, biffcodec.ErrDecryptionFailed
	}
	return f, nil
}

func (d *DecryptingInput) ReadFull(p []byte) error {
	if err := d.in.ReadFull(p); err != nil {
		return err
	}
	if d.rc.SkipRecord() {
		d.rc.Skip(len(p))
	} else {
		d.rc.XorBuffer(p)
	}
	return nil
}

// ReadPlain reads p without decrypting it, keeping the keystream aligned.
func (d *DecryptingInput) ReadPlain(p []byte) error {
	if err := d.in.ReadFull(p); err != nil {
		return err
	}
	d.rc.Skip(len(p))
	return nil
}
