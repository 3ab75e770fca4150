package biffcodec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestWrapErr(t *testing.T) {
	specific := errors.New("biff: bad size")
	err := WrapErr(specific, ErrMalformed)
	assert.True(t, errors.Is(err, specific))
	assert.True(t, errors.Is(err, ErrMalformed))
	assert.False(t, errors.Is(err, ErrContract))
	assert.Equal(t, "biff: bad size", err.Error())

	assert.Equal(t, specific, WrapErr(specific))
	assert.True(t, errors.Is(ErrDecryptionFailed, ErrMalformed))
}

func TestUserMessage(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrBadPassword, "the password is incorrect or the file is corrupted"},
		{fmt.Errorf("reading: %w", ErrDecryptionFailed), "the password is incorrect or the file is corrupted"},
		{ErrUnsupportedEncryption, "the file uses an encryption method that is not supported"},
		{ErrNotInFormat, "the file is not a BIFF8 workbook"},
		{WrapErr(errors.New("x"), ErrMalformed), "the file is corrupted"},
		{errors.New("disk full"), "the file could not be processed"},
	} {
		assert.Equal(t, tc.want, UserMessage(tc.err), "%v", tc.err)
	}
}

func TestOptions(t *testing.T) {
	var none *Options
	assert.Equal(t, DefaultPassword, none.EffectivePassword())
	assert.Equal(t, DefaultPassword, (&Options{}).EffectivePassword())
	assert.Equal(t, "pw", (&Options{Password: "pw"}).EffectivePassword())

	l, hook := test.NewNullLogger()
	o := &Options{Logger: logrus.NewEntry(l)}
	o.Log("decrypt").Warn("hello")
	if assert.Len(t, hook.Entries, 1) {
		assert.Equal(t, "decrypt", hook.LastEntry().Data["component"])
	}

	assert.NotNil(t, none.Log("x"))
}

func TestSetLogger(t *testing.T) {
	old := Logger()
	defer SetLogger(old)

	l, hook := test.NewNullLogger()
	SetLogger(logrus.NewEntry(l))
	(*Options)(nil).Log("cfb").Error("boom")
	assert.Len(t, hook.Entries, 1)

	SetLogger(nil)
	assert.NotNil(t, Logger())
}
