package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pbnjay/biffcodec"
)

// Important notes from MS-XLS section 2.2.10:
// https://docs.microsoft.com/en-us/openspecs/office_file_formats/ms-xls/cd03cb5f-ca02-4934-a391-bb674cb8aa06

// When obfuscating or encrypting BIFF records in these streams the record type and
// record size components MUST NOT be obfuscated or encrypted.
// In addition the following records MUST NOT be obfuscated or encrypted:
// BOF (section 2.4.21), FilePass (section 2.4.117), UsrExcl (section 2.4.339),
// FileLock (section 2.4.116), InterfaceHdr (section 2.4.146), RRDInfo (section 2.4.227),
// and RRDHead (section 2.4.226). Additionally, the lbPlyPos field of the BoundSheet8
// record (section 2.4.28) MUST NOT be encrypted.

// Encryption types of the FILEPASS wEncryptionType field.
const (
	EncryptionXOR uint16 = 0
	EncryptionRC4 uint16 = 1
)

// FilePassSize is the payload size of a FILEPASS record using standard RC4.
const FilePassSize = 2 + 4 + 3*16

// FilePass is the RC4 encryption header stored in the FILEPASS record (2.3.6.1).
type FilePass struct {
	MajorVersion uint16
	MinorVersion uint16
	DocID        [16]byte // Salt
	SaltData     [16]byte // EncryptedVerifier
	SaltHash     [16]byte // EncryptedVerifierHash
}

// ParseFilePass decodes a FILEPASS record payload. Only standard RC4
// (version 1.1) is supported.
func ParseFilePass(data []byte) (*FilePass, error) {
	if len(data) < 2 {
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: FILEPASS record too short (%d bytes)", len(data)), biffcodec.ErrMalformed)
	}
	etype := binary.LittleEndian.Uint16(data)
	switch etype {
	case EncryptionRC4:
	case EncryptionXOR:
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: XOR obfuscation is not supported"), biffcodec.ErrUnsupportedEncryption)
	default:
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: unknown encryption type %d", etype), biffcodec.ErrUnsupportedEncryption)
	}

	h := &FilePass{}
	err := binary.Read(bytes.NewReader(data[2:]), binary.LittleEndian, h)
	if err != nil {
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: FILEPASS record truncated: %w", err), biffcodec.ErrMalformed)
	}
	if h.MinorVersion != 1 {
		// 2, 3 and 4 are the CryptoAPI variants
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: unknown basic-RC4 minor version %d (%d byte record)",
			h.MinorVersion, len(data)), biffcodec.ErrUnsupportedEncryption)
	}
	if len(data) != FilePassSize {
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: data length is invalid (expected %d bytes, got %d)",
			FilePassSize, len(data)), biffcodec.ErrMalformed)
	}
	return h, nil
}

// NewFilePass creates the encryption header for a new document. The
// document id and verifier are read from random, or crypto/rand when nil.
func NewFilePass(password string, random io.Reader) (*FilePass, KeyDigest, error) {
	if random == nil {
		random = rand.Reader
	}
	h := &FilePass{MajorVersion: 1, MinorVersion: 1}

	var verifier [16]byte
	if _, err := io.ReadFull(random, h.DocID[:]); err != nil {
		return nil, KeyDigest{}, fmt.Errorf("crypto: reading document id: %w", err)
	}
	if _, err := io.ReadFull(random, verifier[:]); err != nil {
		return nil, KeyDigest{}, fmt.Errorf("crypto: reading verifier: %w", err)
	}

	key, err := DeriveKeyDigest(password, h.DocID[:])
	if err != nil {
		return nil, key, err
	}
	h.SaltData, h.SaltHash, err = EncryptVerifier(key, verifier[:])
	return h, key, err
}

// Key derives the key digest for password and checks it against the verifier.
func (h *FilePass) Key(password string) (KeyDigest, error) {
	key, err := DeriveKeyDigest(password, h.DocID[:])
	if err != nil {
		return key, err
	}
	ok, err := ValidatePassword(key, h.SaltData[:], h.SaltHash[:])
	if err != nil {
		return key, err
	}
	if !ok {
		return key, biffcodec.ErrBadPassword
	}
	return key, nil
}

// Bytes encodes the FILEPASS record payload.
func (h *FilePass) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, FilePassSize))
	binary.Write(buf, binary.LittleEndian, EncryptionRC4)
	binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}
