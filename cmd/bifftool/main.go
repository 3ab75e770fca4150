// Command bifftool inspects, decrypts and encrypts BIFF8 workbook streams,
// either raw or inside an .xls compound document.
package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/pbnjay/biffcodec"
	"github.com/pbnjay/biffcodec/biff"
	"github.com/pbnjay/biffcodec/cfb"
)

func main() {
	if err := Main(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "bifftool: %s\n", biffcodec.UserMessage(err))
		logrus.WithError(err).Debug("failed")
		os.Exit(1)
	}
}

// Main runs one command with the given arguments.
func Main(args []string, stdout, stderr io.Writer) error {
	c, err := Parse(args, stderr)
	if err != nil {
		return err
	}
	log, err := c.Logger(stderr)
	if err != nil {
		return err
	}
	biffcodec.SetLogger(log)
	logrus.SetLevel(log.Logger.Level)

	if len(c.Args) == 0 {
		return errors.New("a command is needed")
	}
	cmd, files := c.Args[0], c.Args[1:]
	want := 1
	if cmd == "decrypt" || cmd == "encrypt" {
		want = 2
	}
	if len(files) != want {
		return fmt.Errorf("%s needs %d file names, got %d", cmd, want, len(files))
	}

	data, err := readStream(files[0], c.Stream, log)
	if err != nil {
		return fmt.Errorf("open %q: %w", files[0], err)
	}
	opts := c.Options(log.WithField("file", files[0]))

	switch cmd {
	case "dump":
		return dump(stdout, data, opts)
	case "verify":
		return verify(stdout, data, opts)
	case "decrypt":
		plain, err := biff.DecryptStream(data, opts)
		if err != nil {
			return err
		}
		return writeFile(files[1], plain)
	case "encrypt":
		sealed, err := encrypt(data, opts)
		if err != nil {
			return err
		}
		return writeFile(files[1], sealed)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// readStream returns the BIFF stream in filename. Compound documents are
// opened and the named stream is extracted, anything else is used as is.
func readStream(filename, stream string, log *logrus.Entry) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if !cfb.IsCompoundFile(data) {
		log.WithField("bytes", len(data)).Debug("reading raw BIFF stream")
		return data, nil
	}
	doc, err := cfb.Load(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		names, _ := doc.List()
		log.WithField("streams", names).Debug("compound document")
	}
	return doc.ReadStream(stream)
}

// dump lists the records of data, decrypted when the password allows it.
func dump(w io.Writer, data []byte, opts *biffcodec.Options) error {
	plain, err := biff.DecryptStream(data, opts)
	switch {
	case err == nil:
		data = plain
	case errors.Is(err, biffcodec.ErrNotEncrypted):
	default:
		opts.Log("dump").WithError(err).Warn("showing encrypted records")
	}
	bw := bufio.NewWriter(w)
	if err = biff.Dump(bw, data); err != nil {
		return err
	}
	return bw.Flush()
}

func verify(w io.Writer, data []byte, opts *biffcodec.Options) error {
	_, err := biff.DecryptStream(data, opts)
	switch {
	case err == nil:
		fmt.Fprintln(w, "encrypted, password ok")
		return nil
	case errors.Is(err, biffcodec.ErrNotEncrypted):
		fmt.Fprintln(w, "not encrypted")
		return nil
	}
	return err
}

// encrypt adds a FILEPASS record when needed and encrypts data.
func encrypt(data []byte, opts *biffcodec.Options) ([]byte, error) {
	sealed, err := biff.EncryptStream(data, opts)
	if !errors.Is(err, biffcodec.ErrNotEncrypted) {
		return sealed, err
	}
	if data, err = biff.AddFilePass(data, opts, nil); err != nil {
		return nil, err
	}
	return biff.EncryptStream(data, opts)
}

func writeFile(filename string, data []byte) error {
	return os.WriteFile(filename, data, 0o644)
}
