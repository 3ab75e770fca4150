// Package crypto implements the RC4 encryption used by BIFF8 workbook streams.
//
// Algorithms designed based on specs in MS-OFFCRYPTO:
// https://docs.microsoft.com/en-us/openspecs/office_file_formats/ms-offcrypto/3c34d72a-1a61-4b52-a893-196f9157f083
package crypto

import (
	"crypto/rc4"
	"fmt"

	"github.com/pbnjay/biffcodec"
)

// Cipher is a single RC4 keystream. It is not safe for concurrent use.
type Cipher struct {
	rc  *rc4.Cipher
	one [1]byte
}

// NewCipher runs the RC4 key schedule over key, which must be 1 to 256 bytes.
func NewCipher(key []byte) (*Cipher, error) {
	rc, err := rc4.NewCipher(key)
	if err != nil {
		return nil, biffcodec.WrapErr(fmt.Errorf("crypto: %v", err), biffcodec.ErrContract)
	}
	return &Cipher{rc: rc}, nil
}

// NextByte returns the next keystream byte.
func (c *Cipher) NextByte() byte {
	c.one[0] = 0
	c.rc.XORKeyStream(c.one[:], c.one[:])
	return c.one[0]
}

// Encrypt XORs buf in place with the keystream. Decryption is the same operation.
func (c *Cipher) Encrypt(buf []byte) {
	c.rc.XORKeyStream(buf, buf)
}

// Discard advances the keystream by n bytes.
func (c *Cipher) Discard(n int) {
	var scratch [256]byte
	for n > 0 {
		x := n
		if x > len(scratch) {
			x = len(scratch)
		}
		c.rc.XORKeyStream(scratch[:x], scratch[:x])
		n -= x
	}
}
