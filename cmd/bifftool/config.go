package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/pbnjay/biffcodec"
)

// Config holds the settings shared by all commands. Values come from the
// command line first and from the YAML config file second.
type Config struct {
	ConfigPath string
	Password   string
	Stream     string
	Debug      bool
	LogFormat  string

	Args []string
}

func newFlagSet(c *Config, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("bifftool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.ConfigPath, "config", "", "path to a YAML config file")
	fs.StringVar(&c.Password, "password", "", "workbook password (default is the Excel built-in password)")
	fs.StringVar(&c.Stream, "stream", "Workbook", "name of the BIFF stream inside a compound document")
	fs.BoolVar(&c.Debug, "debug", false, "log debug messages")
	fs.StringVar(&c.LogFormat, "log_format", "text", "log format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "USAGE: bifftool [flags] dump|verify FILE\n")
		fmt.Fprintf(stderr, "       bifftool [flags] decrypt|encrypt IN OUT\n")
		fs.PrintDefaults()
	}
	return fs
}

// Parse reads flags from args, then fills every flag not given on the command
// line from the YAML file named by -config.
func Parse(args []string, stderr io.Writer) (*Config, error) {
	c := &Config{}
	fs := newFlagSet(c, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	c.Args = fs.Args()
	if c.ConfigPath == "" {
		return c, nil
	}

	data, err := os.ReadFile(c.ConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	yamlConfig := map[string]interface{}{}
	if err = yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, fmt.Errorf("config %q: %w", c.ConfigPath, err)
	}

	setArgs := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setArgs[f.Name] = true
	})
	// generate args list for Parse as if it came from the command line
	var extra []string
	fs.VisitAll(func(f *flag.Flag) {
		if setArgs[f.Name] {
			return
		}
		if value, ok := yamlConfig[f.Name]; ok && value != nil {
			extra = append(extra, fmt.Sprintf("--%v=%v", f.Name, value))
		}
	})
	if err = fs.Parse(extra); err != nil {
		return nil, fmt.Errorf("config %q: %w", c.ConfigPath, err)
	}
	return c, nil
}

// Options returns the library options for c.
func (c *Config) Options(log *logrus.Entry) *biffcodec.Options {
	return &biffcodec.Options{Password: c.Password, Logger: log}
}

// Logger builds the logger selected by c.
func (c *Config) Logger(out io.Writer) (*logrus.Entry, error) {
	l := logrus.New()
	l.SetOutput(out)
	switch c.LogFormat {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	l.SetLevel(logrus.InfoLevel)
	if c.Debug || biffcodec.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return logrus.NewEntry(l).WithField("app", "bifftool"), nil
}
