// Package biffcodec reads and writes BIFF8 record streams, the record layer of
// legacy .xls workbooks, including the RC4 encrypted variant.
//
// The record framing and continuation codec lives in package biff, the RC4 key
// derivation and re-keying cipher stream in package crypto, and a read-only
// compound document reader in package cfb.
package biffcodec

import (
	"github.com/sirupsen/logrus"
)

var (
	// configure at build time by adding go build arguments:
	//   -ldflags="-X github.com/pbnjay/biffcodec.loglevel=debug"
	loglevel string = "warn"

	// Debug should be set to true to expose detailed logging.
	Debug bool = (loglevel == "debug")
)

var logger = newLogger()

func newLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	if Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l)
}

// Logger returns the package-wide logger used when Options carry none.
func Logger() *logrus.Entry {
	return logger
}

// SetLogger replaces the package-wide logger. It is not safe to call while
// streams are being processed.
func SetLogger(l *logrus.Entry) {
	if l == nil {
		l = newLogger()
	}
	logger = l
}

// DefaultPassword is used by Excel when a workbook is only protected and not
// encrypted with a user password (MS-XLS 2.4.191, note <100>).
const DefaultPassword = "VelvetSweatshop"

// Options are the per-operation settings for opening or saving a stream.  The
// password is read exactly once, when the operation starts, so one Options value
// may be shared by concurrent operations as long as it is not modified.
type Options struct {
	// Password used to encrypt or decrypt. Empty means DefaultPassword.
	Password string

	// Logger overrides the package-wide logger.
	Logger *logrus.Entry
}

// EffectivePassword returns the password to derive keys from.
func (o *Options) EffectivePassword() string {
	if o == nil || o.Password == "" {
		return DefaultPassword
	}
	return o.Password
}

// Log returns the logger for this operation, tagged with component.
func (o *Options) Log(component string) *logrus.Entry {
	l := logger
	if o != nil && o.Logger != nil {
		l = o.Logger
	}
	return l.WithField("component", component)
}
