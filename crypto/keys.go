package crypto

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"unicode/utf16"

	"github.com/pbnjay/biffcodec"
)

const (
	// DocIDSize is the length of the per-document salt.
	DocIDSize = 16

	// KeyDigestSize is the length of the derived key (40 bits).
	KeyDigestSize = 5

	// BlockSize is the number of stream bytes encrypted by one block key.
	BlockSize = 1024

	// only the first 16 UTF-16 code units of a password are significant
	maxPasswordUnits = 16
)

// ErrInvalidKeyMaterial is returned for salts, verifiers or passwords of the wrong length.
var ErrInvalidKeyMaterial = biffcodec.WrapErr(errors.New("crypto: invalid key material"), biffcodec.ErrContract)

// KeyDigest is the 40-bit key derived from a password and document id (Hfinal
// truncated, 2.3.6.2). It is a value; copies are independent.
type KeyDigest [KeyDigestSize]byte

// DeriveKeyDigest computes the key digest for password and docID as
// specified in MS-OFFCRYPTO 2.3.6.2.
func DeriveKeyDigest(password string, docID []byte) (KeyDigest, error) {
	var d KeyDigest
	if len(docID) != DocIDSize {
		return d, ErrInvalidKeyMaterial
	}
	units := utf16.Encode([]rune(password))
	if len(units) == 0 {
		return d, ErrInvalidKeyMaterial
	}
	if len(units) > maxPasswordUnits {
		units = units[:maxPasswordUnits]
	}

	passBytes := make([]byte, len(units)*2)
	for i, c := range units {
		binary.LittleEndian.PutUint16(passBytes[2*i:], c)
	}

	// digest the password then mix with the salt
	h0 := md5.Sum(passBytes)

	msum := md5.New()
	for i := 0; i < 16; i++ {
		msum.Write(h0[:KeyDigestSize])
		msum.Write(docID)
	}
	h1 := msum.Sum(nil)
	copy(d[:], h1)
	return d, nil
}

// BlockKey returns the RC4 key for the given 1024-byte block.
func (d KeyDigest) BlockKey(block uint32) [16]byte {
	var buf [KeyDigestSize + 4]byte
	copy(buf[:], d[:])
	binary.LittleEndian.PutUint32(buf[KeyDigestSize:], block)
	return md5.Sum(buf[:])
}

// NewBlockCipher returns a fresh cipher keyed for block.
func (d KeyDigest) NewBlockCipher(block uint32) *Cipher {
	k := d.BlockKey(block)
	c, err := NewCipher(k[:])
	if err != nil {
		// 16 byte keys are always accepted
		panic(err)
	}
	return c
}

// ValidatePassword reports whether d decrypts the encrypted verifier
// (saltData) and verifier hash (saltHash) taken from a FILEPASS record.
// A false result is an ordinary outcome, not an error.
func ValidatePassword(d KeyDigest, saltData, saltHash []byte) (bool, error) {
	if len(saltData) != 16 || len(saltHash) != 16 {
		return false, ErrInvalidKeyMaterial
	}

	var verifier, verifierHash [16]byte
	copy(verifier[:], saltData)
	copy(verifierHash[:], saltHash)

	c := d.NewBlockCipher(0)
	c.Encrypt(verifier[:])
	c.Encrypt(verifierHash[:])

	sum := md5.Sum(verifier[:])
	return subtle.ConstantTimeCompare(sum[:], verifierHash[:]) == 1, nil
}

// EncryptVerifier produces the (saltData, saltHash) pair stored in FILEPASS
// for a plaintext verifier. It is the inverse of ValidatePassword.
func EncryptVerifier(d KeyDigest, verifier []byte) (saltData, saltHash [16]byte, err error) {
	if len(verifier) != 16 {
		err = ErrInvalidKeyMaterial
		return
	}
	copy(saltData[:], verifier)
	saltHash = md5.Sum(verifier)

	c := d.NewBlockCipher(0)
	c.Encrypt(saltData[:])
	c.Encrypt(saltHash[:])
	return
}
