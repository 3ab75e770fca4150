package biffcodec

import "errors"

// Error categories. Framing and usage errors match (via errors.Is) one of
// ErrMalformed or ErrContract; the remaining sentinels below describe
// encryption setup.
var (
	// ErrMalformed is used when the byte stream does not follow the BIFF8 framing
	// rules, or decrypts to garbage.
	ErrMalformed = errors.New("biff: malformed record stream")

	// ErrContract is used when a caller breaks the API contract, such as writing a
	// value that can never fit in a single record.
	ErrContract = errors.New("biff: invalid usage")
)

// ErrNotInFormat is returned when the input is not a BIFF8 stream or compound document.
var ErrNotInFormat = errors.New("biff: data is not in this format")

// ErrDecryptionFailed is returned when decrypted content is clearly invalid,
// usually because the key does not match the stream.
var ErrDecryptionFailed = WrapErr(errors.New("biff: decryption produced invalid data"), ErrMalformed)

// ErrBadPassword is returned when the password does not validate against the
// FILEPASS verifier.
var ErrBadPassword = errors.New("biff: password is incorrect")

// ErrUnsupportedEncryption is returned for FILEPASS methods other than standard RC4.
var ErrUnsupportedEncryption = errors.New("biff: unsupported encryption method")

// ErrNotEncrypted is returned when a decrypt is requested on a stream without FILEPASS.
var ErrNotEncrypted = errors.New("biff: stream is not encrypted")

type errx struct {
	errs []error
}

func (e errx) Error() string {
	return e.errs[0].Error()
}

func (e errx) Unwrap() []error {
	return e.errs
}

// WrapErr wraps a set of errors. The message is the first error's, and
// errors.Is matches any of them.
func WrapErr(e ...error) error {
	if len(e) == 1 {
		return e[0]
	}
	return errx{errs: e}
}

// UserMessage turns an error from this module into a message suitable for an
// end user, without cipher or framing details.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBadPassword), errors.Is(err, ErrDecryptionFailed):
		return "the password is incorrect or the file is corrupted"
	case errors.Is(err, ErrUnsupportedEncryption):
		return "the file uses an encryption method that is not supported"
	case errors.Is(err, ErrNotInFormat):
		return "the file is not a BIFF8 workbook"
	case errors.Is(err, ErrMalformed):
		return "the file is corrupted"
	default:
		return "the file could not be processed"
	}
}
